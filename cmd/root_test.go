package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiodevicebuffer/internal/conf"
)

func execute(t *testing.T, args ...string) (string, *conf.Settings, error) {
	t.Helper()
	var settings conf.Settings
	root := RootCommand(viper.New(), &settings)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), &settings, err
}

func TestConfigCommandPrintsEffectiveSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("audio:\n  samplerate: 22050\n"), 0o600))

	out, settings, err := execute(t, "config", "--config", path, "--loglevel", "debug")
	require.NoError(t, err)
	assert.Contains(t, out, "samplerate: 22050")
	assert.Contains(t, out, "default_level: debug")
	assert.Equal(t, 22050, settings.Audio.SampleRate)
}

func TestConfigInitWritesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfgArg := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(cfgArg, []byte("{}\n"), 0o600))

	out, _, err := execute(t, "config", "init", path, "--config", cfgArg)
	require.NoError(t, err)
	assert.Contains(t, out, "Created default config file at:")

	loaded, err := conf.Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, conf.Default().Audio, loaded.Audio)
}

func TestInvalidConfigFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("audio:\n  samplerate: 12\n"), 0o600))

	_, _, err := execute(t, "config", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audio.samplerate")
}

func TestVersionCommandSkipsSettings(t *testing.T) {
	out, settings, err := execute(t, "version", "--config", "/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "audiodevicebuffer unknown")
	assert.Zero(t, settings.Audio.SampleRate)
}
