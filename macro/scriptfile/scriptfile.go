// Package scriptfile loads and writes macro scripts.
//
// Text formats share one document shape:
//
//	steps:
//	  - buttons: [Y, B]    # or "Y+B"; omitted or "none" for no buttons
//	    dir: right         # omitted for center
//	    duration: 17       # 0..255 time units
//
// Lua sources build the same list by calling step(). Binary sources are
// packed macro instructions.
package scriptfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fightstick/fightstick/device/pokken"
	"github.com/fightstick/fightstick/macro"
)

// BuiltinName selects the macro compiled into the binary.
const BuiltinName = "builtin"

type Format string

const (
	FormatYAML   Format = "yaml"
	FormatTOML   Format = "toml"
	FormatJSON   Format = "json"
	FormatLua    Format = "lua"
	FormatBinary Format = "bin"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported script format")
	ErrMissingDuration   = errors.New("duration is required")
	ErrDurationRange     = errors.New("duration must be between 0 and 255")
	ErrMalformed         = errors.New("malformed script document")
)

// ParseFormat resolves a format name or file extension, with or without
// the leading dot.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	case "json":
		return FormatJSON, nil
	case "lua":
		return FormatLua, nil
	case "bin":
		return FormatBinary, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// Load reads a script from path. BuiltinName returns macro.Builtin().
func Load(path string) (*macro.Script, error) {
	if path == BuiltinName {
		return macro.Builtin(), nil
	}
	f, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	s, err := Parse(data, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a script.
func Parse(data []byte, f Format) (*macro.Script, error) {
	switch f {
	case FormatYAML:
		return parseYAML(data)
	case FormatTOML:
		return parseTOML(data)
	case FormatJSON:
		return parseJSON(data)
	case FormatLua:
		return parseLua(string(data))
	case FormatBinary:
		return macro.UnmarshalScript(data)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}

// Encode writes s in format f. Lua is read-only.
func Encode(s *macro.Script, f Format) ([]byte, error) {
	switch f {
	case FormatYAML:
		return encodeYAML(s)
	case FormatTOML:
		return encodeTOML(s)
	case FormatJSON:
		return encodeJSON(s)
	case FormatBinary:
		return s.MarshalBinary()
	}
	return nil, fmt.Errorf("%w for writing: %q", ErrUnsupportedFormat, f)
}

// Save encodes s to path, choosing the format from its extension.
func Save(s *macro.Script, path string) error {
	f, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	data, err := Encode(s, f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// rawStep is one step as read from a document, before validation.
type rawStep struct {
	buttons  []string
	dir      string
	duration *int64
}

func (r rawStep) instruction() (macro.Instruction, error) {
	var in macro.Instruction
	for _, combo := range r.buttons {
		b, err := pokken.ParseButtons(combo)
		if err != nil {
			return in, err
		}
		in.Buttons |= b
	}
	d, err := pokken.ParseDirection(r.dir)
	if err != nil {
		return in, err
	}
	in.Direction = d
	if r.duration == nil {
		return in, ErrMissingDuration
	}
	if *r.duration < 0 || *r.duration > 255 {
		return in, fmt.Errorf("%w: %d", ErrDurationRange, *r.duration)
	}
	in.Duration = uint8(*r.duration)
	return in, in.Validate()
}

func buildScript(raw []rawStep) (*macro.Script, error) {
	steps := make([]macro.Instruction, len(raw))
	for i, r := range raw {
		in, err := r.instruction()
		if err != nil {
			return nil, &macro.StepError{Index: i, Err: err}
		}
		steps[i] = in
	}
	return macro.NewScript(steps...)
}

// outStep is the written form of one step, shared by the YAML and TOML
// encoders.
type outStep struct {
	Buttons  string `yaml:"buttons" toml:"buttons"`
	Dir      string `yaml:"dir" toml:"dir"`
	Duration uint8  `yaml:"duration" toml:"duration"`
}

type outDocument struct {
	Steps []outStep `yaml:"steps" toml:"steps"`
}

func toOutDocument(s *macro.Script) outDocument {
	doc := outDocument{Steps: make([]outStep, 0, s.Len())}
	for _, in := range s.Steps() {
		doc.Steps = append(doc.Steps, outStep{
			Buttons:  in.Buttons.String(),
			Dir:      in.Direction.String(),
			Duration: in.Duration,
		})
	}
	return doc
}
