package calendar

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CyclesFile is the YAML layout of the product cycle table
//
//	max_steps: 48
//	products:
//	  KC: [H, K, N, U, Z]
//	  CC: "H K N U Z"
type CyclesFile struct {
	MaxSteps int               `yaml:"max_steps" json:"max_steps"`
	Products map[string]Months `yaml:"products" json:"products"`
}

// Months accepts either a YAML list of month letters or one space separated string
type Months []string

// UnmarshalYAML implements yaml.Unmarshaler
func (m *Months) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*m = strings.Fields(node.Value)
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*m = list
		return nil
	default:
		return fmt.Errorf("line %d: months must be a list or a string", node.Line)
	}
}

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadCycles reads a product cycle file and builds a Calendar over defaults + file overrides
// KnownFields(true): a typo in the file fails loudly instead of silently using defaults.
func LoadCycles(path string, opts ...Option) (*Calendar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cycles file: %w", err)
	}
	return ParseCycles(data, opts...)
}

// ParseCycles is LoadCycles over in-memory YAML
func ParseCycles(data []byte, opts ...Option) (*Calendar, error) {
	var file CyclesFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse cycles yaml: %w", err)
	}

	cycles, err := file.Validate()
	if err != nil {
		return nil, err
	}

	merged := DefaultCycles()
	for root, cycle := range cycles {
		merged[root] = cycle
	}

	if file.MaxSteps > 0 {
		opts = append([]Option{WithMaxSteps(file.MaxSteps)}, opts...)
	}
	return New(merged, opts...), nil
}

// Validate checks the file and returns the parsed cycles keyed by upper-case root
func (f *CyclesFile) Validate() (map[string]TradingCycle, error) {
	if f.MaxSteps < 0 {
		return nil, ValidationError{"max_steps", "must be >= 0"}
	}

	cycles := make(map[string]TradingCycle, len(f.Products))
	for root, months := range f.Products {
		field := "products." + root
		key, err := NormalizeRoot(root)
		if err != nil {
			return nil, ValidationError{field, "root must be letters only"}
		}
		if _, dup := cycles[key]; dup {
			return nil, ValidationError{field, "duplicate root"}
		}
		cycle, err := ParseCycleLetters(months...)
		if err != nil {
			return nil, ValidationError{field, err.Error()}
		}
		cycles[key] = cycle
	}
	return cycles, nil
}
