package configpaths_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fightstick/fightstick/internal/configpaths"
)

func TestDefaultConfigDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("AppData", dir)

	got, err := configpaths.DefaultConfigDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "fightstick"), got)

	p, err := configpaths.DefaultNamedConfigPath("play", "yml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "fightstick", "play.yaml"), p)
}

func TestConfigCandidatePaths(t *testing.T) {
	tests := []struct {
		user string
		in   func(j, y, tm []string) []string
	}{
		{"custom.yml", func(_, y, _ []string) []string { return y }},
		{"custom.toml", func(_, _, tm []string) []string { return tm }},
		{"custom.json", func(j, _, _ []string) []string { return j }},
		{"custom.conf", func(j, _, _ []string) []string { return j }},
	}
	for _, tt := range tests {
		t.Run(tt.user, func(t *testing.T) {
			j, y, tm := configpaths.ConfigCandidatePaths(tt.user)
			list := tt.in(j, y, tm)
			require.NotEmpty(t, list)
			assert.Equal(t, tt.user, list[0])
		})
	}

	j, _, _ := configpaths.ConfigCandidatePaths("")
	assert.NotContains(t, j, "")
}
