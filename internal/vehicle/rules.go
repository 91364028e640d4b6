package vehicle

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

type MakeRule struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
	// ModelOf lists makes this name is also a model of ("Dodge Ram"). When
	// one of them is named too, the word stays in the model text.
	ModelOf []string `yaml:"model_of"`
	// Yields marks a name that is everyday vehicle vocabulary ("mini van").
	// It only counts as the make when no other make is named.
	Yields bool `yaml:"yields"`
}

// Rules is the catalog the extractor matches against.
type Rules struct {
	Makes    []MakeRule `yaml:"makes"`
	Ignition struct {
		PushToStart []string `yaml:"push_to_start"`
		StandardKey []string `yaml:"standard_key"`
	} `yaml:"ignition"`
	StopWords []string `yaml:"stop_words"`
}

// DefaultRules returns the embedded catalog.
func DefaultRules() *Rules {
	r, err := ParseRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("vehicle: embedded rules: %v", err))
	}
	return r
}

// LoadRules reads a YAML catalog from path, or the embedded one when path is empty.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRules(b)
}

func ParseRules(b []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	if len(r.Makes) == 0 {
		return nil, fmt.Errorf("vehicle rules define no makes")
	}
	return &r, nil
}
