package scriptfile

import (
	"fmt"
	"math"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"github.com/fightstick/fightstick/macro"
)

func parseJSON(data []byte) (*macro.Script, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}
	steps := gjson.GetBytes(data, "steps")
	if steps.Exists() && !steps.IsArray() {
		return nil, fmt.Errorf("%w: steps must be an array", ErrMalformed)
	}

	items := steps.Array()
	raw := make([]rawStep, len(items))
	for i, item := range items {
		r, err := jsonStep(item)
		if err != nil {
			return nil, &macro.StepError{Index: i, Err: err}
		}
		raw[i] = r
	}
	return buildScript(raw)
}

func jsonStep(item gjson.Result) (rawStep, error) {
	var r rawStep
	if !item.IsObject() {
		return r, fmt.Errorf("%w: step must be an object", ErrMalformed)
	}

	switch b := item.Get("buttons"); {
	case !b.Exists() || b.Type == gjson.Null:
	case b.Type == gjson.String:
		r.buttons = []string{b.Str}
	case b.IsArray():
		for _, e := range b.Array() {
			if e.Type != gjson.String {
				return r, fmt.Errorf("%w: button names must be strings", ErrMalformed)
			}
			r.buttons = append(r.buttons, e.Str)
		}
	default:
		return r, fmt.Errorf("%w: buttons must be a string or a list", ErrMalformed)
	}

	if d := item.Get("dir"); d.Exists() {
		if d.Type != gjson.String {
			return r, fmt.Errorf("%w: dir must be a string", ErrMalformed)
		}
		r.dir = d.Str
	}

	if d := item.Get("duration"); d.Exists() {
		if d.Type != gjson.Number || d.Num != math.Trunc(d.Num) {
			return r, fmt.Errorf("%w: duration must be an integer", ErrMalformed)
		}
		n := d.Int()
		r.duration = &n
	}
	return r, nil
}

func encodeJSON(s *macro.Script) ([]byte, error) {
	out := []byte(`{"steps":[]}`)
	for i, in := range s.Steps() {
		names := in.Buttons.Names()
		if names == nil {
			names = []string{}
		}
		var err error
		out, err = sjson.SetBytes(out, "steps.-1", map[string]any{
			"buttons":  names,
			"dir":      in.Direction.String(),
			"duration": in.Duration,
		})
		if err != nil {
			return nil, &macro.StepError{Index: i, Err: err}
		}
	}
	return pretty.Pretty(out), nil
}
