package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrDuplicateWorkflow is returned when two definitions share a name.
var ErrDuplicateWorkflow = errors.New("duplicate workflow name")

type descriptorFile struct {
	Workflows []Definition `yaml:"workflows"`
}

// strictFile decodes without UnmarshalYAML so KnownFields reaches every level.
type strictFile struct {
	Workflows []plainDefinition `yaml:"workflows"`
}

type plainDefinition Definition

// UnmarshalYAML fills unset fields with the built-in defaults before decoding,
// so a descriptor only has to name what differs.
func (d *Definition) UnmarshalYAML(value *yaml.Node) error {
	p := plainDefinition{
		APIKeySecret:  DefaultAPIKeySecret,
		WebhookSecret: DefaultWebhookSecret,
		Retry:         DefaultRetryPolicy(),
	}
	if err := value.Decode(&p); err != nil {
		return err
	}
	*d = Definition(p)
	return nil
}

// LoadDefinitionsFile reads a workflow descriptor from path.
func LoadDefinitionsFile(path string) ([]Definition, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow descriptor: %w", err)
	}
	defs, err := LoadDefinitions(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// LoadDefinitions decodes and validates a descriptor of the form
//
//	workflows:
//	  - name: snow
//	    default_city: Alpine Meadows
//	    ...
//
// Unknown fields are rejected.
func LoadDefinitions(r io.Reader) ([]Definition, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading workflow descriptor: %w", err)
	}

	strict := yaml.NewDecoder(bytes.NewReader(raw))
	strict.KnownFields(true)
	if err := strict.Decode(&strictFile{}); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: descriptor is empty", ErrInvalidDefinition)
		}
		return nil, fmt.Errorf("decoding workflow descriptor: %w", err)
	}

	var file descriptorFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decoding workflow descriptor: %w", err)
	}
	if len(file.Workflows) == 0 {
		return nil, fmt.Errorf("%w: descriptor lists no workflows", ErrInvalidDefinition)
	}

	seen := make(map[string]struct{}, len(file.Workflows))
	for _, def := range file.Workflows {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[def.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateWorkflow, def.Name)
		}
		seen[def.Name] = struct{}{}
	}

	return file.Workflows, nil
}
