package cmd_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yaml "gopkg.in/yaml.v3"

	"github.com/fightstick/fightstick/internal/cmd"
	"github.com/fightstick/fightstick/internal/log"
	"github.com/fightstick/fightstick/internal/server/usb"
	"github.com/fightstick/fightstick/macro"
	"github.com/fightstick/fightstick/macro/scriptfile"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestScriptInfo(t *testing.T) {
	var out bytes.Buffer
	c := &cmd.ScriptInfo{Path: scriptfile.BuiltinName, Repeat: 4, Interval: 5 * time.Millisecond, Steps: true, Out: &out}
	require.NoError(t, c.Run())

	text := out.String()
	assert.Contains(t, text, macro.Builtin().Fingerprint())
	assert.Regexp(t, `steps\s+42`, text)
	assert.Regexp(t, `startup polls\s+10`, text)
	assert.Contains(t, text, "Y+B")

	c.Repeat = -1
	assert.ErrorIs(t, c.Run(), macro.ErrInvalidRepeat)
}

func TestScriptConvertAndValidate(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "builtin.yaml")

	conv := &cmd.ScriptConvert{Input: scriptfile.BuiltinName, Output: dest}
	require.NoError(t, conv.Run(quiet))
	assert.Error(t, conv.Run(quiet), "existing file without --force")
	conv.Force = true
	require.NoError(t, conv.Run(quiet))

	s, err := scriptfile.Load(dest)
	require.NoError(t, err)
	assert.Equal(t, macro.Builtin().Fingerprint(), s.Fingerprint())

	packed := filepath.Join(dir, "packed.dat")
	require.NoError(t, (&cmd.ScriptConvert{Input: dest, Output: packed, Format: "bin"}).Run(quiet))
	data, err := os.ReadFile(packed)
	require.NoError(t, err)
	assert.Len(t, data, macro.Builtin().Len()*macro.InstructionSize)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("steps:\n  - {buttons: Q, duration: 1}\n"), 0o644))
	err = (&cmd.ScriptValidate{Paths: []string{dest, bad}}).Run(quiet)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.yaml")
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "play.json")
	require.NoError(t, (&cmd.ConfigInit{Command: "play", Format: "json", Output: jsonPath}).Run())
	raw, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "builtin", doc["script"])
	assert.EqualValues(t, 4, doc["repeat"])
	assert.Equal(t, false, doc["control_requests"])
	assert.Equal(t, "10s", doc["connection_timeout"])
	assert.Equal(t, map[string]any{"addr": ":3240"}, doc["usb"])

	assert.Error(t, (&cmd.ConfigInit{Command: "play", Format: "json", Output: jsonPath}).Run())

	yamlPath := filepath.Join(dir, "play.yaml")
	require.NoError(t, (&cmd.ConfigInit{Command: "play", Format: "yaml", Output: yamlPath}).Run())
	raw, err = os.ReadFile(yamlPath)
	require.NoError(t, err)
	doc = nil
	require.NoError(t, yaml.Unmarshal(raw, &doc))
	assert.Equal(t, false, doc["auto_attach"])

	tomlPath := filepath.Join(dir, "play.toml")
	require.NoError(t, (&cmd.ConfigInit{Command: "play", Format: "toml", Output: tomlPath}).Run())
	raw, err = os.ReadFile(tomlPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[usb]")
}

func TestPlayStartErrors(t *testing.T) {
	base := func() *cmd.Play {
		return &cmd.Play{
			Script:          scriptfile.BuiltinName,
			Repeat:          macro.DefaultRepeat,
			Bus:             8201,
			UsbServerConfig: usb.ServerConfig{Addr: "127.0.0.1:0"},
		}
	}

	tests := []struct {
		name   string
		mutate func(p *cmd.Play)
		target error
	}{
		{"missing script", func(p *cmd.Play) { p.Script = filepath.Join(t.TempDir(), "none.yaml") }, os.ErrNotExist},
		{"unknown format", func(p *cmd.Play) { p.Script = "macro.txt" }, scriptfile.ErrUnsupportedFormat},
		{"negative repeat", func(p *cmd.Play) { p.Repeat = -1 }, macro.ErrInvalidRepeat},
		{"bad vid", func(p *cmd.Play) { p.Vid = "0x1ffff" }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base()
			tt.mutate(p)
			err := p.Start(context.Background(), quiet, log.NewRaw(nil))
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

func TestPlayStopsOnCancel(t *testing.T) {
	p := &cmd.Play{
		Script:            scriptfile.BuiltinName,
		Repeat:            macro.DefaultRepeat,
		Vid:               "0x057e",
		Bus:               8202,
		UsbServerConfig:   usb.ServerConfig{Addr: "127.0.0.1:0"},
		ConnectionTimeout: time.Second,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Start(ctx, quiet, log.NewRaw(nil)) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("play did not stop")
	}

	// The bus is released on exit.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel2()
	assert.NoError(t, p.Start(ctx2, quiet, log.NewRaw(nil)))
}
