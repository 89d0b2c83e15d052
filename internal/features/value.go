package features

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// decimalNumber accepts signed decimal tokens with an optional exponent, such as
// "45", "-2", "23.5", ".5", "7." and "1e5".
var decimalNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// radixNumber accepts unsigned hex, octal and binary integer literals such as "0x1A".
var radixNumber = regexp.MustCompile(`^0([xX][0-9a-fA-F]+|[oO][0-7]+|[bB][01]+)$`)

// Value is a single scalar feature value, either numeric or textual
type Value struct {
	num     float64
	str     string
	numeric bool
}

// Number returns a numeric Value
func Number(f float64) Value {
	return Value{num: f, numeric: true}
}

// String returns a textual Value
func String(s string) Value {
	return Value{str: s}
}

// ParseValue types a raw token: finite numeric literals become numbers, everything
// else is kept as a string. "Infinity" and "NaN" stay strings since JSON cannot carry
// them. Surrounding whitespace is trimmed.
func ParseValue(raw string) Value {
	tok := strings.TrimSpace(raw)
	switch {
	case decimalNumber.MatchString(tok):
		if f, err := strconv.ParseFloat(tok, 64); err == nil {
			return Number(f)
		}
	case radixNumber.MatchString(tok):
		if n, err := strconv.ParseUint(tok, 0, 64); err == nil {
			return Number(float64(n))
		}
	}
	return String(tok)
}

// IsNumeric reports whether the value holds a number
func (v Value) IsNumeric() bool {
	return v.numeric
}

// Float returns the numeric value and whether the value is numeric
func (v Value) Float() (float64, bool) {
	return v.num, v.numeric
}

// IsEmpty reports whether the value carries nothing. Numbers are never empty.
func (v Value) IsEmpty() bool {
	return !v.numeric && v.str == ""
}

// String renders the value the way a user would type it
func (v Value) String() string {
	if v.numeric {
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
	return v.str
}

// MarshalJSON encodes numbers as JSON numbers and text as JSON strings
func (v Value) MarshalJSON() ([]byte, error) {
	if v.numeric {
		return []byte(strconv.FormatFloat(v.num, 'f', -1, 64)), nil
	}
	return json.Marshal(v.str)
}

// UnmarshalJSON accepts a JSON number or string
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("feature value must be a number or string: %w", err)
	}
	*v = Number(f)
	return nil
}
