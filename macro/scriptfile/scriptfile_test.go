package scriptfile_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fightstick/fightstick/device/pokken"
	"github.com/fightstick/fightstick/macro"
	"github.com/fightstick/fightstick/macro/scriptfile"
)

var want = []macro.Instruction{
	{Buttons: pokken.ButtonNone, Direction: pokken.DirCenter, Duration: 4},
	{Buttons: pokken.ButtonL | pokken.ButtonR, Direction: pokken.DirCenter, Duration: 3},
	{Buttons: pokken.ButtonY | pokken.ButtonB, Direction: pokken.DirRight, Duration: 17},
	{Buttons: pokken.ButtonPlus, Direction: pokken.DirDownRight, Duration: 0},
}

func TestParseSources(t *testing.T) {
	type testCase struct {
		name   string
		format scriptfile.Format
		src    string
	}

	cases := []testCase{
		{
			name:   "yaml",
			format: scriptfile.FormatYAML,
			src: `
steps:
  - duration: 4
  - buttons: [L, R]
    duration: 3
  - buttons: "Y+B"
    dir: right
    duration: 17
  - buttons: [PLUS]
    dir: down-right
    duration: 0
`,
		},
		{
			name:   "toml",
			format: scriptfile.FormatTOML,
			src: `
[[steps]]
duration = 4

[[steps]]
buttons = ["L", "R"]
duration = 3

[[steps]]
buttons = "Y+B"
dir = "right"
duration = 17

[[steps]]
buttons = "+"
dir = "DownRight"
duration = 0
`,
		},
		{
			name:   "json",
			format: scriptfile.FormatJSON,
			src: `{"steps": [
				{"duration": 4},
				{"buttons": ["l", "r"], "duration": 3},
				{"buttons": "Y+B", "dir": "e", "duration": 17},
				{"buttons": ["START"], "dir": "down_right", "duration": 0}
			]}`,
		},
		{
			name:   "lua table form",
			format: scriptfile.FormatLua,
			src: `
step{duration = 4}
step{buttons = {"L", "R"}, duration = 3}
step{buttons = {"Y", "B"}, dir = "right", duration = 17}
step{buttons = "PLUS", dir = "down-right", duration = 0}
`,
		},
		{
			name:   "lua positional form",
			format: scriptfile.FormatLua,
			src: `
step(nil, nil, 4)
step("L+R", "center", 3)
for i = 1, 1 do step("Y+B", "right", 17) end
step("PLUS", "down-right", 0)
`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := scriptfile.Parse([]byte(tc.src), tc.format)
			require.NoError(t, err)
			require.Equal(t, len(want), s.Len())
			for i, in := range s.Steps() {
				assert.Equal(t, want[i], in, "step %d", i)
			}
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	for _, f := range []scriptfile.Format{scriptfile.FormatYAML, scriptfile.FormatTOML, scriptfile.FormatJSON, scriptfile.FormatBinary} {
		t.Run(string(f), func(t *testing.T) {
			data, err := scriptfile.Encode(macro.Builtin(), f)
			require.NoError(t, err)
			back, err := scriptfile.Parse(data, f)
			require.NoError(t, err)
			assert.Equal(t, macro.Builtin().Fingerprint(), back.Fingerprint())
		})
	}

	_, err := scriptfile.Encode(macro.Builtin(), scriptfile.FormatLua)
	assert.ErrorIs(t, err, scriptfile.ErrUnsupportedFormat)
}

func TestParseErrors(t *testing.T) {
	type testCase struct {
		name    string
		format  scriptfile.Format
		src     string
		wantErr error
		index   int
	}

	cases := []testCase{
		{name: "empty", format: scriptfile.FormatYAML, src: "steps: []", wantErr: macro.ErrEmptyScript, index: -1},
		{name: "unknown button", format: scriptfile.FormatYAML, src: "steps:\n  - duration: 1\n  - buttons: [Q]\n    duration: 1\n", wantErr: pokken.ErrUnknownButton, index: 1},
		{name: "home not scriptable", format: scriptfile.FormatJSON, src: `{"steps":[{"buttons":"HOME","duration":1}]}`, wantErr: macro.ErrInvalidButtons, index: 0},
		{name: "bad direction", format: scriptfile.FormatTOML, src: "[[steps]]\ndir = \"sideways\"\nduration = 1\n", wantErr: pokken.ErrUnknownDirection, index: 0},
		{name: "duration range", format: scriptfile.FormatJSON, src: `{"steps":[{"duration":256}]}`, wantErr: scriptfile.ErrDurationRange, index: 0},
		{name: "negative duration", format: scriptfile.FormatLua, src: `step(nil, nil, -1)`, wantErr: scriptfile.ErrDurationRange, index: 0},
		{name: "missing duration", format: scriptfile.FormatYAML, src: "steps:\n  - buttons: A\n", wantErr: scriptfile.ErrMissingDuration, index: 0},
		{name: "fractional duration", format: scriptfile.FormatJSON, src: `{"steps":[{"duration":1.5}]}`, wantErr: scriptfile.ErrMalformed, index: 0},
		{name: "invalid json", format: scriptfile.FormatJSON, src: `{"steps":`, wantErr: scriptfile.ErrMalformed, index: -1},
		{name: "lua error", format: scriptfile.FormatLua, src: `error("boom")`, wantErr: scriptfile.ErrMalformed, index: -1},
		{name: "lua no io", format: scriptfile.FormatLua, src: `io.open("/etc/passwd")`, wantErr: scriptfile.ErrMalformed, index: -1},
		{name: "lua no dofile", format: scriptfile.FormatLua, src: `dofile("x.lua")`, wantErr: scriptfile.ErrMalformed, index: -1},
		{name: "truncated binary", format: scriptfile.FormatBinary, src: "\x00\x00", wantErr: macro.ErrTruncated, index: -1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := scriptfile.Parse([]byte(tc.src), tc.format)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
			if tc.index >= 0 {
				var se *macro.StepError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, tc.index, se.Index)
			}
		})
	}
}

func TestLuaTimeout(t *testing.T) {
	old := scriptfile.LuaTimeout
	scriptfile.LuaTimeout = 50 * time.Millisecond
	defer func() { scriptfile.LuaTimeout = old }()

	_, err := scriptfile.Parse([]byte(`while true do end`), scriptfile.FormatLua)
	assert.Error(t, err)
}

func TestLoadAndSave(t *testing.T) {
	s, err := scriptfile.Load(scriptfile.BuiltinName)
	require.NoError(t, err)
	assert.Same(t, macro.Builtin(), s)

	dir := t.TempDir()
	for _, name := range []string{"macro.yml", "macro.toml", "macro.json", "macro.bin"} {
		path := filepath.Join(dir, name)
		require.NoError(t, scriptfile.Save(s, path))
		back, err := scriptfile.Load(path)
		require.NoError(t, err, name)
		assert.Equal(t, s.Fingerprint(), back.Fingerprint(), name)
	}

	_, err = scriptfile.Load(filepath.Join(dir, "macro.txt"))
	assert.ErrorIs(t, err, scriptfile.ErrUnsupportedFormat)

	_, err = scriptfile.Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
