package conf

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tphakala/audiodevicebuffer/internal/errors"
)

// WriteYAML encodes s as YAML to w.
func WriteYAML(w io.Writer, s *Settings) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}
	return enc.Close()
}

// SaveYAMLConfig writes s to configPath atomically through a temporary file
// in the same directory. Comments in an existing file are not preserved.
func SaveYAMLConfig(configPath string, s *Settings) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fileError(err, "create_config_dir", dir)
	}

	tempFile, err := os.CreateTemp(dir, "config-*.yaml")
	if err != nil {
		return fileError(err, "create_temp_file", dir)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if err := WriteYAML(tempFile, s); err != nil {
		tempFile.Close()
		return fileError(err, "write_temp_file", tempFileName)
	}
	if err := tempFile.Close(); err != nil {
		return fileError(err, "close_temp_file", tempFileName)
	}
	if err := os.Rename(tempFileName, configPath); err != nil {
		return fileError(err, "replace_config", configPath)
	}
	return nil
}

// WriteDefault writes the built-in defaults to configPath unless a file
// already exists there.
func WriteDefault(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return errors.Newf("config file already exists: %s", configPath).
			Component(ComponentConf).
			Category(errors.CategoryFileIO).
			Build()
	}
	return SaveYAMLConfig(configPath, Default())
}

func fileError(err error, op, path string) error {
	return errors.New(err).
		Component(ComponentConf).
		Category(errors.CategoryFileIO).
		Context("operation", op).
		Context("path", path).
		Build()
}
