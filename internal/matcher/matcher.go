// Package matcher turns extracted report text into a partial feature record.
package matcher

import (
	"regexp"
	"sync"

	"github.com/a3tai/cardiopredict/internal/features"
)

// Matcher extracts feature values from free text. Implementations return only the
// features they found; absent features are left for reconciliation.
type Matcher interface {
	Match(text string, schema *features.Schema) features.Record
}

// RegexMatcher finds "<name>[:-] <token>" pairs, case-insensitively.
//
// Known limitation: the pattern is not anchored to word boundaries and the captured
// token is not checked for plausibility, so a short name such as "K" also matches
// inside "Kidney" and binds "idney". Only the first occurrence in document order is
// used, so repeated panels never override earlier ones.
type RegexMatcher struct {
	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

// NewRegexMatcher creates a matcher with an empty pattern cache
func NewRegexMatcher() *RegexMatcher {
	return &RegexMatcher{
		patterns: make(map[string]*regexp.Regexp),
	}
}

// Match implements Matcher
func (m *RegexMatcher) Match(text string, schema *features.Schema) features.Record {
	record := make(features.Record)
	if text == "" {
		return record
	}

	for _, name := range schema.Names() {
		match := m.pattern(name).FindStringSubmatch(text)
		if match == nil {
			continue
		}
		record[name] = features.ParseValue(match[1])
	}

	return record
}

// pattern returns the compiled pattern for a feature name
func (m *RegexMatcher) pattern(name string) *regexp.Regexp {
	m.mu.Lock()
	defer m.mu.Unlock()

	if re, ok := m.patterns[name]; ok {
		return re
	}
	re := regexp.MustCompile(FeaturePattern(name))
	m.patterns[name] = re
	return re
}

// space matches Unicode whitespace as well as ASCII; RE2's \s alone misses the
// no-break spaces common in report text.
const space = `[\s\v\p{Zs}\x{FEFF}\x{2028}\x{2029}]`

// FeaturePattern returns the regular expression used for a feature name
func FeaturePattern(name string) string {
	return `(?i)` + regexp.QuoteMeta(name) + space + `*[:\-]?` + space + `*([A-Za-z0-9.]+)`
}
