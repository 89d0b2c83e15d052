package predict

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// RiskCategory is the coarse classification of a risk score
type RiskCategory string

const (
	RiskLow      RiskCategory = "Low"
	RiskModerate RiskCategory = "Moderate"
	RiskHigh     RiskCategory = "High"
	RiskUnknown  RiskCategory = "Unknown"
)

// Score thresholds used by the prediction service
const (
	HighThreshold     = 70.0
	ModerateThreshold = 50.0
)

// CategoryForScore maps a percentage score to a risk category
func CategoryForScore(score float64) RiskCategory {
	switch {
	case score > HighThreshold:
		return RiskHigh
	case score > ModerateThreshold:
		return RiskModerate
	default:
		return RiskLow
	}
}

// ParseCategory normalises a category name returned by the service
func ParseCategory(s string) RiskCategory {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return RiskLow
	case "moderate", "medium":
		return RiskModerate
	case "high":
		return RiskHigh
	default:
		return RiskUnknown
	}
}

// DiseaseResult is the outcome for a single disease. Exactly one of Error or
// (Risk, Score) is meaningful.
type DiseaseResult struct {
	Disease string       `json:"disease"`
	Risk    RiskCategory `json:"risk,omitempty"`
	Score   float64      `json:"score"`
	Error   string       `json:"error,omitempty"`
}

// Failed reports whether the disease result carries an error
func (d DiseaseResult) Failed() bool {
	return d.Error != ""
}

// Result holds per-disease outcomes of one submission
type Result struct {
	Predictions map[string]DiseaseResult `json:"predictions"`
}

// Diseases returns disease names sorted alphabetically
func (r *Result) Diseases() []string {
	names := make([]string, 0, len(r.Predictions))
	for name := range r.Predictions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Succeeded returns the disease results without errors
func (r *Result) Succeeded() []DiseaseResult {
	var out []DiseaseResult
	for _, name := range r.Diseases() {
		if d := r.Predictions[name]; !d.Failed() {
			out = append(out, d)
		}
	}
	return out
}

// Failed returns the disease results that carry an error
func (r *Result) Failed() []DiseaseResult {
	var out []DiseaseResult
	for _, name := range r.Diseases() {
		if d := r.Predictions[name]; d.Failed() {
			out = append(out, d)
		}
	}
	return out
}

// wireResponse is the body returned by the prediction endpoint
type wireResponse struct {
	Predictions map[string]json.RawMessage `json:"predictions"`
	Error       string                     `json:"error"`
}

type wireDisease struct {
	Risk  *string      `json:"risk"`
	Score *json.Number `json:"score"`
	Error *string      `json:"error"`
}

var errNoPredictions = errors.New("response has no predictions")

// parseResponse decodes a prediction response. Failures inside one disease entry
// are recorded on that entry only.
func parseResponse(body []byte) (*Result, error) {
	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("invalid response body: %w", err)
	}
	if wire.Error != "" {
		return nil, errors.New(wire.Error)
	}
	if wire.Predictions == nil {
		return nil, errNoPredictions
	}

	result := &Result{Predictions: make(map[string]DiseaseResult, len(wire.Predictions))}
	for name, raw := range wire.Predictions {
		result.Predictions[name] = parseDisease(name, raw)
	}
	return result, nil
}

func parseDisease(name string, raw json.RawMessage) DiseaseResult {
	out := DiseaseResult{Disease: name}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] != '{' {
		// bare numeric score
		var score float64
		if err := json.Unmarshal(trimmed, &score); err != nil {
			out.Error = "unrecognised result format"
			return out
		}
		return withScore(out, score, "")
	}

	var wd wireDisease
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&wd); err != nil {
		out.Error = "unrecognised result format"
		return out
	}

	if wd.Error != nil {
		out.Error = *wd.Error
		if out.Error == "" {
			out.Error = "prediction unavailable"
		}
		return out
	}
	if wd.Score == nil {
		out.Error = "result has no score"
		return out
	}

	score, err := wd.Score.Float64()
	if err != nil {
		out.Error = "result score is not a number"
		return out
	}

	risk := ""
	if wd.Risk != nil {
		risk = *wd.Risk
	}
	return withScore(out, score, risk)
}

func withScore(out DiseaseResult, score float64, risk string) DiseaseResult {
	if score < 0 || score > 100 {
		out.Error = fmt.Sprintf("score %.2f is outside 0-100", score)
		return out
	}

	out.Score = score
	if risk == "" {
		out.Risk = CategoryForScore(score)
	} else {
		out.Risk = ParseCategory(risk)
	}
	return out
}
