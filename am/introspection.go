package am

import (
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"github.com/teranos/p8ls/errors"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/p8ls/am.toml
	SourceUser        ConfigSource = "user"        // ~/.p8ls/am.toml
	SourceProject     ConfigSource = "project"     // p8ls.toml in the working directory or above
	SourceEnvironment ConfigSource = "environment" // P8LS_* env vars
)

// SettingInfo contains metadata about a configuration setting
type SettingInfo struct {
	Key        string       `json:"key"`
	Value      interface{}  `json:"value"`
	Source     ConfigSource `json:"source"`
	SourcePath string       `json:"source_path,omitempty"` // File path or env var name
}

// Introspect returns every effective setting with the source it came from,
// sorted by key
func Introspect() ([]SettingInfo, error) {
	if _, err := Load(); err != nil {
		return nil, errors.Wrap(err, "failed to load config for introspection")
	}

	v := GetViper()
	sources, err := buildSourceMap(LoadedFiles())
	if err != nil {
		return nil, err
	}
	return settingsWithSources(v, sources), nil
}

// buildSourceMap records, for every key set in a config file, the highest
// precedence file that sets it
func buildSourceMap(files []ConfigFile) (map[string]ConfigFile, error) {
	sources := make(map[string]ConfigFile)
	for _, file := range files {
		fv := viper.New()
		fv.SetConfigFile(file.Path)
		fv.SetConfigType("toml")
		if err := fv.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to re-read %s", file.Path)
		}
		for _, key := range fv.AllKeys() {
			sources[key] = file
		}
	}
	return sources, nil
}

func settingsWithSources(v *viper.Viper, sources map[string]ConfigFile) []SettingInfo {
	keys := v.AllKeys()
	sort.Strings(keys)

	settings := make([]SettingInfo, 0, len(keys))
	for _, key := range keys {
		info := SettingInfo{
			Key:        key,
			Value:      v.Get(key),
			Source:     SourceDefault,
			SourcePath: "built-in default",
		}
		if file, ok := sources[key]; ok {
			info.Source = file.Source
			info.SourcePath = file.Path
		}

		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if _, ok := os.LookupEnv(envKey); ok {
			info.Source = SourceEnvironment
			info.SourcePath = envKey
		}

		settings = append(settings, info)
	}
	return settings
}
