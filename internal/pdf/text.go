package pdf

import (
	"strings"

	"github.com/ledongthuc/pdf"
)

// wordSpaceAdjust is the TJ displacement, in thousandths of an em, from which a
// kerning gap is read as a space between words.
const wordSpaceAdjust = -250

// pageText interprets a page content stream and returns its text items in stream
// order. Every string shown by Tj, ', " or TJ is one item; items are joined with a
// space, and with a newline where a new text object or line starts.
func pageText(page pdf.Page) string {
	contents := page.V.Key("Contents")
	if contents.Kind() == pdf.Null {
		return ""
	}

	encoders := make(map[string]pdf.TextEncoding)
	for _, name := range page.Fonts() {
		encoders[name] = page.Font(name).Encoder()
	}

	var (
		b       strings.Builder
		enc     pdf.TextEncoding
		newLine bool
	)
	decode := func(raw string) string {
		if enc == nil {
			return raw
		}
		return enc.Decode(raw)
	}
	emit := func(s string) {
		if strings.TrimSpace(s) == "" {
			return
		}
		if b.Len() > 0 {
			if newLine {
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
		}
		newLine = false
		b.WriteString(s)
	}

	pdf.Interpret(contents, func(stk *pdf.Stack, op string) {
		args := make([]pdf.Value, stk.Len())
		for i := len(args) - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}

		switch op {
		case "BT", "T*":
			newLine = true
		case "Tf":
			if len(args) == 2 {
				enc = encoders[args[0].Name()]
			}
		case "'", "\"":
			newLine = true
			if len(args) > 0 {
				emit(decode(args[len(args)-1].RawString()))
			}
		case "Tj":
			if len(args) == 1 {
				emit(decode(args[0].RawString()))
			}
		case "TJ":
			if len(args) == 1 {
				emit(showArray(args[0], decode))
			}
		}
	})

	return b.String()
}

// showArray joins the strings of a TJ array, turning wide negative adjustments
// into spaces
func showArray(v pdf.Value, decode func(string) string) string {
	var b strings.Builder
	for i := 0; i < v.Len(); i++ {
		x := v.Index(i)
		switch x.Kind() {
		case pdf.String:
			b.WriteString(decode(x.RawString()))
		case pdf.Integer, pdf.Real:
			if x.Float64() <= wordSpaceAdjust && b.Len() > 0 {
				b.WriteByte(' ')
			}
		}
	}
	return b.String()
}
