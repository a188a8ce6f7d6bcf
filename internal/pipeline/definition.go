package pipeline

import (
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/appgen/pkg/constants"
	"github.com/agentstation/appgen/pkg/errors"
)

// Definition is an ordered list of stages loaded from YAML:
//
//	name: webapp
//	stages:
//	  - name: plan
//	    description: Analyse requirements
//	    command: ["sh", "-c", "cat > requirements.md"]
//	    timeout: 5m
//	    env:
//	      LANG: C
type Definition struct {
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
	Stages      []Stage `yaml:"stages" json:"stages"`
}

// Stage is one pipeline node.
type Stage struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Command     []string          `yaml:"command,omitempty" json:"command,omitempty"`
	Timeout     string            `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Env         map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// TimeoutDuration returns the stage timeout, or the default when unset.
func (s Stage) TimeoutDuration() time.Duration {
	if s.Timeout == "" {
		return constants.StageTimeout
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil || d <= 0 {
		return constants.StageTimeout
	}
	return d
}

// Default returns the built-in definition used when no pipeline file is
// configured. Its stages have no command and only record their description.
func Default() *Definition {
	return &Definition{
		Name:        "default",
		Description: "Requirements to documentation",
		Stages: []Stage{
			{Name: "requirements_analysis", Description: "Analyse the project requirements"},
			{Name: "architecture_design", Description: "Design the system architecture"},
			{Name: "code_generation", Description: "Generate the application code"},
			{Name: "testing", Description: "Generate and run tests"},
			{Name: "documentation", Description: "Write the project documentation"},
		},
	}
}

// LoadDefinition reads a definition from path. An empty path yields Default.
func LoadDefinition(path string) (*Definition, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}
	def, err := ParseDefinition(data)
	if err != nil {
		var parseErr *errors.ParseError
		if errors.As(err, &parseErr) {
			parseErr.File = path
		}
		return nil, err
	}
	return def, nil
}

// ParseDefinition decodes and validates a YAML definition.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, errors.WrapParse("yaml", "", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks that stages exist, have unique names and valid timeouts.
func (d *Definition) Validate() error {
	if len(d.Stages) == 0 {
		return errors.NewValidationError("stages", nil, "pipeline has no stages")
	}
	seen := make(map[string]bool, len(d.Stages))
	for i, s := range d.Stages {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return errors.NewValidationError("stages", i, "stage name is required")
		}
		if seen[name] {
			return errors.NewValidationError("stages", name, "duplicate stage name")
		}
		seen[name] = true
		if s.Timeout != "" {
			if d, err := time.ParseDuration(s.Timeout); err != nil || d <= 0 {
				return errors.NewValidationError("timeout", s.Timeout, "invalid timeout for stage "+name)
			}
		}
	}
	return nil
}

// Stage looks a stage up by name.
func (d *Definition) Stage(name string) (Stage, bool) {
	for _, s := range d.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return Stage{}, false
}

// Select returns the stages to run. With no override every stage runs in
// definition order; otherwise the named stages run in the order given.
func (d *Definition) Select(nodes []string) ([]Stage, error) {
	if len(nodes) == 0 {
		return append([]Stage(nil), d.Stages...), nil
	}
	out := make([]Stage, 0, len(nodes))
	for _, name := range nodes {
		s, ok := d.Stage(name)
		if !ok {
			return nil, errors.NewValidationError("nodes", name, "unknown pipeline node "+name)
		}
		out = append(out, s)
	}
	return out, nil
}
