package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Loader assembles Options from defaults, an optional config file,
// environment variables, and command-line flags, in that increasing order
// of precedence.
type Loader struct {
	envPrefix  string
	configPath string
}

// NewLoader creates a loader. envPrefix is upper-cased and used as the
// environment variable prefix (e.g. "NUPM" binds NUPM_BASE_DIR).
func NewLoader(envPrefix, configPath string) *Loader {
	return &Loader{envPrefix: envPrefix, configPath: configPath}
}

// Load returns defaults overlaid by the config file, if any.
func (l *Loader) Load() (*Options, error) {
	v := l.newViper()

	if l.configPath != "" {
		v.SetConfigFile(l.configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &opts, nil
}

// LoadWithEnv loads the file, then overlays environment variables.
func (l *Loader) LoadWithEnv() (*Options, error) {
	v := l.newViper()

	if l.configPath != "" {
		v.SetConfigFile(l.configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(strings.ToUpper(l.envPrefix))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &opts, nil
}

// LoadWithFlags loads file + env, then overlays flags (highest precedence).
// flags maps an Options mapstructure key (e.g. "base_dir") to its value;
// only present keys override.
func (l *Loader) LoadWithFlags(flags map[string]any) (*Options, error) {
	v := l.newViper()

	if l.configPath != "" {
		v.SetConfigFile(l.configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(strings.ToUpper(l.envPrefix))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	for key, val := range flags {
		v.Set(key, val)
	}

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &opts, nil
}

func (l *Loader) newViper() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("base_dir", d.BaseDir)
	v.SetDefault("nupm_home", d.NupmHome)
	v.SetDefault("manifest_path", d.ManifestPath)
	v.SetDefault("registry_root", d.RegistryRoot)
	v.SetDefault("connection_policy", d.ConnectionPolicy)
	v.SetDefault("use_registry", d.UseRegistry)
	v.SetDefault("delete_existing", d.DeleteExisting)
	v.SetDefault("allow_build_commands", d.AllowBuildCommands)
	v.SetDefault("max_parallel", d.MaxParallel)
	v.SetDefault("enable_script", d.EnableScript)
	v.SetDefault("enable_overlay", d.EnableOverlay)
	v.SetDefault("handle_nu_plugins", d.HandleNuPlugins)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	return v
}

func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"base_dir", "nupm_home", "manifest_path", "registry_root",
		"connection_policy", "use_registry", "delete_existing",
		"allow_build_commands", "max_parallel", "enable_script",
		"enable_overlay", "handle_nu_plugins", "log_level", "log_format",
	} {
		_ = v.BindEnv(key)
	}
}
