package features

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Disease is a named subset of the feature schema used by one risk model
type Disease struct {
	Name     string   `yaml:"name"`
	Title    string   `yaml:"title"`
	Features []string `yaml:"features"`
}

// Schema is the ordered, immutable set of features the prediction service requires.
// The canonical feature set is the union of every disease subset, in first-seen order.
type Schema struct {
	names    []string
	index    map[string]int
	diseases []Disease
}

// NewSchema builds a schema from disease subsets. Features shared by several
// diseases appear once in the canonical set.
func NewSchema(diseases []Disease) (*Schema, error) {
	if len(diseases) == 0 {
		return nil, errors.New("schema must define at least one disease")
	}

	s := &Schema{
		index:    make(map[string]int),
		diseases: make([]Disease, 0, len(diseases)),
	}

	seenDisease := make(map[string]bool, len(diseases))
	for _, d := range diseases {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return nil, errors.New("disease name cannot be empty")
		}
		if seenDisease[name] {
			return nil, fmt.Errorf("duplicate disease: %s", name)
		}
		seenDisease[name] = true

		subset := make([]string, 0, len(d.Features))
		inSubset := make(map[string]bool, len(d.Features))
		for _, f := range d.Features {
			f = strings.TrimSpace(f)
			if f == "" {
				return nil, fmt.Errorf("disease %s has an empty feature name", name)
			}
			if inSubset[f] {
				continue
			}
			inSubset[f] = true
			subset = append(subset, f)

			if _, ok := s.index[f]; !ok {
				s.index[f] = len(s.names)
				s.names = append(s.names, f)
			}
		}
		if len(subset) == 0 {
			return nil, fmt.Errorf("disease %s has no features", name)
		}

		title := d.Title
		if title == "" {
			title = name
		}
		s.diseases = append(s.diseases, Disease{Name: name, Title: title, Features: subset})
	}

	return s, nil
}

// MustSchema is NewSchema for package-level literals
func MustSchema(diseases []Disease) *Schema {
	s, err := NewSchema(diseases)
	if err != nil {
		panic(err)
	}
	return s
}

type schemaFile struct {
	Diseases []Disease `yaml:"diseases"`
}

// LoadSchema reads a schema from a YAML file of the form
//
//	diseases:
//	  - name: stroke
//	    title: Stroke
//	    features: [Age, BMI, ...]
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	var sf schemaFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse schema file %s: %w", path, err)
	}

	s, err := NewSchema(sf.Diseases)
	if err != nil {
		return nil, fmt.Errorf("invalid schema file %s: %w", path, err)
	}
	return s, nil
}

// Names returns the canonical feature names in schema order
func (s *Schema) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len returns the number of canonical features
func (s *Schema) Len() int {
	return len(s.names)
}

// Has reports whether name is a canonical feature (exact match)
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Diseases returns the disease subsets in definition order
func (s *Schema) Diseases() []Disease {
	out := make([]Disease, len(s.diseases))
	for i, d := range s.diseases {
		out[i] = Disease{Name: d.Name, Title: d.Title, Features: append([]string(nil), d.Features...)}
	}
	return out
}

// Disease looks up a disease subset by name
func (s *Schema) Disease(name string) (Disease, bool) {
	for _, d := range s.diseases {
		if d.Name == name {
			return Disease{Name: d.Name, Title: d.Title, Features: append([]string(nil), d.Features...)}, true
		}
	}
	return Disease{}, false
}

// DiseasesFor returns the names of the diseases that require feature
func (s *Schema) DiseasesFor(feature string) []string {
	var out []string
	for _, d := range s.diseases {
		for _, f := range d.Features {
			if f == feature {
				out = append(out, d.Name)
				break
			}
		}
	}
	return out
}
