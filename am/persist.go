package am

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/teranos/scholar/errors"
)

// Formats accepted by Marshal.
const (
	FormatTOML = "toml"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Settings returns the effective configuration as a nested map.
func Settings() (map[string]interface{}, error) {
	v, err := GetViper()
	if err != nil {
		return nil, err
	}
	return v.AllSettings(), nil
}

// DefaultSettings returns the built-in defaults as a nested map.
func DefaultSettings() map[string]interface{} {
	v := viper.New()
	SetDefaults(v)
	return v.AllSettings()
}

// Marshal encodes settings as toml, json or yaml.
func Marshal(settings map[string]interface{}, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case FormatTOML, "":
		return toml.Marshal(settings)
	case FormatJSON:
		out, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	case FormatYAML, "yml":
		return yaml.Marshal(settings)
	default:
		return nil, errors.WithHint(errors.Newf("unknown format %q", format),
			"format must be toml, json or yaml")
	}
}

// WriteDefaults writes the default configuration to path as TOML, keeping
// rotating backups of any file it replaces.
func WriteDefaults(path string) error {
	data, err := Marshal(DefaultSettings(), FormatTOML)
	if err != nil {
		return errors.Wrap(err, "failed to encode default config")
	}
	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create %s", filepath.Dir(path))
	}
	if err := createBackup(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// createBackup rotates backups (.back1, .back2, .back3) before a config is replaced
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	back1 := configPath + ".back1"
	back2 := configPath + ".back2"
	back3 := configPath + ".back3"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to delete old backup %s", back3)
	}
	for _, step := range [][2]string{{back2, back3}, {back1, back2}} {
		if _, err := os.Stat(step[0]); err == nil {
			if err := os.Rename(step[0], step[1]); err != nil {
				return errors.Wrapf(err, "failed to rotate %s", step[0])
			}
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}
	if err := os.WriteFile(back1, content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}
	return nil
}
