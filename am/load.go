package am

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"github.com/teranos/p8ls/errors"
)

// ProjectConfigName is the per-project config file, searched upward from the working directory
const ProjectConfigName = "p8ls.toml"

// EnvPrefix prefixes environment overrides: P8LS_LSP_MAX_DOCUMENTS=20
const EnvPrefix = "P8LS"

var (
	mu            sync.Mutex
	globalConfig  *Config
	viperInstance *viper.Viper
	loadedFiles   []ConfigFile
	loadErr       error
)

// ConfigFile is a config file that contributed to the active configuration
type ConfigFile struct {
	Path   string
	Source ConfigSource
}

// Load reads the p8ls configuration using Viper. The result is cached until Reset.
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

// GetViper returns the Viper instance for flag binding and key lookups
func GetViper() *viper.Viper {
	mu.Lock()
	defer mu.Unlock()

	// A broken config file surfaces through Load; flag binding still needs an instance
	v, _ := initViper()
	return v
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path on top of the defaults
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	// Defaults only, no environment binding for this specific load
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	config, err := LoadWithViper(v)
	if err != nil {
		return nil, errors.Wrapf(err, "config file %s", configPath)
	}
	return config, nil
}

// Reset clears the cached configuration, so the next Load re-reads all sources
func Reset() {
	mu.Lock()
	defer mu.Unlock()

	globalConfig = nil
	viperInstance = nil
	loadedFiles = nil
	loadErr = nil
}

// LoadedFiles returns the config files merged into the active configuration,
// lowest precedence first
func LoadedFiles() []ConfigFile {
	mu.Lock()
	defer mu.Unlock()
	return append([]ConfigFile(nil), loadedFiles...)
}

// initViper initializes Viper with configuration sources and defaults.
// Callers hold mu.
func initViper() (*viper.Viper, error) {
	if viperInstance != nil {
		return viperInstance, loadErr
	}

	v := viper.New()

	// Set up environment variable binding
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindEnvVars(v)

	// Set defaults first
	SetDefaults(v)

	// Merge configs in precedence order: system -> user -> project; env vars and flags stay on top
	viperInstance = v
	loadedFiles, loadErr = mergeConfigFiles(v)
	return v, loadErr
}

// ConfigPaths returns the candidate config files, lowest precedence first
func ConfigPaths() []ConfigFile {
	paths := []ConfigFile{
		{Path: "/etc/p8ls/am.toml", Source: SourceSystem},
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, ConfigFile{Path: filepath.Join(homeDir, ".p8ls", "am.toml"), Source: SourceUser})
	}

	if project := findProjectConfig(); project != "" {
		paths = append(paths, ConfigFile{Path: project, Source: SourceProject})
	}
	return paths
}

// findProjectConfig searches for p8ls.toml by walking up the directory tree.
// Returns the path to the first config file found, or empty string if none found.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(dir, ProjectConfigName)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			return ""
		}
		dir = parent
	}
}

// mergeConfigFiles merges every existing config file into v. Values are merged
// as config (not overrides) so environment variables and bound flags keep
// precedence over files.
func mergeConfigFiles(v *viper.Viper) ([]ConfigFile, error) {
	var merged []ConfigFile
	for _, file := range ConfigPaths() {
		if _, err := os.Stat(file.Path); err != nil {
			continue
		}

		tempViper := viper.New()
		tempViper.SetConfigFile(file.Path)
		tempViper.SetConfigType("toml")

		if err := tempViper.ReadInConfig(); err != nil {
			return merged, errors.WithHint(
				errors.Wrapf(err, "failed to read %s config %s", file.Source, file.Path),
				"fix the TOML syntax or remove the file",
			)
		}

		if err := v.MergeConfigMap(tempViper.AllSettings()); err != nil {
			return merged, errors.Wrapf(err, "failed to merge %s", file.Path)
		}
		merged = append(merged, file)
	}
	return merged, nil
}

// Get returns a configuration value using dot notation
func Get(key string) interface{} {
	return GetViper().Get(key)
}

// GetString returns a configuration value as string using dot notation
func GetString(key string) string {
	return GetViper().GetString(key)
}

// GetBool returns a configuration value as bool using dot notation
func GetBool(key string) bool {
	return GetViper().GetBool(key)
}

// GetInt returns a configuration value as int using dot notation
func GetInt(key string) int {
	return GetViper().GetInt(key)
}

// GetStringSlice returns a configuration value as []string using dot notation
func GetStringSlice(key string) []string {
	return GetViper().GetStringSlice(key)
}
