package scriptfile

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/fightstick/fightstick/macro"
)

// buttonList accepts either a "Y+B" scalar or a sequence of names.
type buttonList []string

func (b *buttonList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*b = buttonList{node.Value}
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return err
		}
		*b = names
		return nil
	}
	return fmt.Errorf("%w: line %d: buttons must be a string or a list", ErrMalformed, node.Line)
}

type yamlStep struct {
	Buttons  buttonList `yaml:"buttons"`
	Dir      string     `yaml:"dir"`
	Duration *int64     `yaml:"duration"`
}

type yamlDocument struct {
	Steps []yamlStep `yaml:"steps"`
}

func parseYAML(data []byte) (*macro.Script, error) {
	var doc yamlDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	raw := make([]rawStep, len(doc.Steps))
	for i, s := range doc.Steps {
		raw[i] = rawStep{buttons: s.Buttons, dir: s.Dir, duration: s.Duration}
	}
	return buildScript(raw)
}

func encodeYAML(s *macro.Script) ([]byte, error) {
	return yaml.Marshal(toOutDocument(s))
}
