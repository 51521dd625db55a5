package scriptfile

import (
	"fmt"

	"github.com/pelletier/go-toml"

	"github.com/fightstick/fightstick/macro"
)

func parseTOML(data []byte) (*macro.Script, error) {
	tree, err := toml.LoadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	var tables []*toml.Tree
	switch v := tree.Get("steps").(type) {
	case nil:
	case []*toml.Tree:
		tables = v
	case []any:
		for _, e := range v {
			t, ok := e.(*toml.Tree)
			if !ok {
				return nil, fmt.Errorf("%w: steps must be tables", ErrMalformed)
			}
			tables = append(tables, t)
		}
	default:
		return nil, fmt.Errorf("%w: steps must be an array of tables", ErrMalformed)
	}

	raw := make([]rawStep, len(tables))
	for i, t := range tables {
		r, err := tomlStep(t)
		if err != nil {
			return nil, &macro.StepError{Index: i, Err: err}
		}
		raw[i] = r
	}
	return buildScript(raw)
}

func tomlStep(t *toml.Tree) (rawStep, error) {
	var r rawStep
	switch b := t.Get("buttons").(type) {
	case nil:
	case string:
		r.buttons = []string{b}
	case []any:
		for _, e := range b {
			name, ok := e.(string)
			if !ok {
				return r, fmt.Errorf("%w: button names must be strings", ErrMalformed)
			}
			r.buttons = append(r.buttons, name)
		}
	default:
		return r, fmt.Errorf("%w: buttons must be a string or a list", ErrMalformed)
	}

	if d := t.Get("dir"); d != nil {
		s, ok := d.(string)
		if !ok {
			return r, fmt.Errorf("%w: dir must be a string", ErrMalformed)
		}
		r.dir = s
	}

	if d := t.Get("duration"); d != nil {
		n, ok := d.(int64)
		if !ok {
			return r, fmt.Errorf("%w: duration must be an integer", ErrMalformed)
		}
		r.duration = &n
	}
	return r, nil
}

func encodeTOML(s *macro.Script) ([]byte, error) {
	return toml.Marshal(toOutDocument(s))
}
