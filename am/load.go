package am

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/teranos/scholar/errors"
)

var (
	mu            sync.Mutex
	globalConfig  *Config
	viperInstance *viper.Viper

	// ConfigSources records which file supplied each key during the last load.
	// Keys absent here come from defaults or the environment.
	ConfigSources = map[string]SourceInfo{}
)

// configFile is one layer of the file cascade.
type configFile struct {
	Path   string
	Source ConfigSource
}

// Load reads the scholar configuration using Viper. The result is cached
// until Reset.
func Load() (*Config, error) {
	mu.Lock()
	defer mu.Unlock()
	if globalConfig != nil {
		return globalConfig, nil
	}

	v, err := initViper()
	if err != nil {
		return nil, err
	}
	config, err := LoadWithViper(v)
	if err != nil {
		return nil, err
	}
	globalConfig = config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() (*viper.Viper, error) {
	mu.Lock()
	defer mu.Unlock()
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads defaults plus a single config file, ignoring the cascade
// and the environment.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}
	return LoadWithViper(v)
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	viperInstance = nil
	ConfigSources = map[string]SourceInfo{}
}

// initViper builds the layered configuration. Callers hold mu.
func initViper() (*viper.Viper, error) {
	if viperInstance != nil {
		return viperInstance, nil
	}

	v := newViper()
	sources, err := mergeConfigFiles(v, configFiles())
	if err != nil {
		return nil, err
	}
	ConfigSources = sources
	viperInstance = v
	return v, nil
}

// newViper returns a Viper with defaults and SCHOLAR_* environment binding.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// configFiles lists the cascade, lowest precedence first:
// system < user < project (found by walking up from the working directory).
func configFiles() []configFile {
	files := []configFile{{Path: "/etc/scholar/am.toml", Source: SourceSystem}}
	if home, err := os.UserHomeDir(); err == nil {
		files = append(files, configFile{Path: filepath.Join(home, ".scholar", "am.toml"), Source: SourceUser})
	}
	if project := findProjectConfig(); project != "" {
		files = append(files, configFile{Path: project, Source: SourceProject})
	}
	return files
}

// findProjectConfig searches for am.toml by walking up the directory tree
// Returns the path to the first config file found, or empty string if none found
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		amPath := filepath.Join(dir, "am.toml")
		if _, err := os.Stat(amPath); err == nil {
			return amPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// mergeConfigFiles merges each existing file into v's config layer, so that
// environment variables still take precedence. Missing files are skipped; a
// file that exists but does not parse is an error.
func mergeConfigFiles(v *viper.Viper, files []configFile) (map[string]SourceInfo, error) {
	sources := map[string]SourceInfo{}
	for _, f := range files {
		if _, err := os.Stat(f.Path); err != nil {
			continue
		}

		layer := viper.New()
		layer.SetConfigFile(f.Path)
		layer.SetConfigType("toml")
		if err := layer.ReadInConfig(); err != nil {
			return nil, errors.WithHintf(
				errors.Wrapf(err, "failed to read config file %s", f.Path),
				"fix or remove %s", f.Path)
		}
		if err := v.MergeConfigMap(layer.AllSettings()); err != nil {
			return nil, errors.Wrapf(err, "failed to merge config file %s", f.Path)
		}
		for _, key := range layer.AllKeys() {
			sources[key] = SourceInfo{Source: f.Source, Path: f.Path}
		}
	}
	return sources, nil
}

// Keys lists every known configuration key, sorted.
func Keys() []string {
	v := viper.New()
	SetDefaults(v)
	keys := v.AllKeys()
	sort.Strings(keys)
	return keys
}

// EnvKey returns the environment variable that overrides key.
func EnvKey(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Get returns a configuration value using dot notation
func Get(key string) (interface{}, error) {
	v, err := GetViper()
	if err != nil {
		return nil, err
	}
	if !v.IsSet(key) {
		return nil, errors.NewNotFoundError("config key %q", key)
	}
	return v.Get(key), nil
}
