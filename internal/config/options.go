package config

// Options is the fully-resolved configuration consumed by pkg/nupm.Client
// and the scheduler. Default returns the baseline values for a fresh
// install, so callers need only set what they care about on top of it.
type Options struct {
	// BaseDir holds the git store (<base_dir>/store/git/...).
	BaseDir string `mapstructure:"base_dir"`

	// NupmHome is the install prefix materialized by the scheduler.
	NupmHome string `mapstructure:"nupm_home"`

	// ManifestPath is the root manifest document to parse.
	ManifestPath string `mapstructure:"manifest_path"`

	// RegistryRoot, if set, is consulted to fill dangling manifest fields.
	RegistryRoot string `mapstructure:"registry_root"`

	// ConnectionPolicy is one of "offline", "download", "update".
	ConnectionPolicy string `mapstructure:"connection_policy"`

	// UseRegistry enables registry overlay for under-specified packages.
	UseRegistry bool `mapstructure:"use_registry"`

	// DeleteExisting allows the scheduler to delete-and-recreate an
	// existing NupmHome instead of failing with DestinationExists.
	DeleteExisting bool `mapstructure:"delete_existing"`

	// AllowBuildCommands is the caller-side half of a package's effective
	// build permission.
	AllowBuildCommands bool `mapstructure:"allow_build_commands"`

	// MaxParallel bounds per-layer build concurrency; 0 means unbounded.
	MaxParallel int `mapstructure:"max_parallel"`

	// EnableScript, EnableOverlay, HandleNuPlugins are accepted and
	// threaded through to callers but not consumed by the scheduler
	// itself; they exist for front-ends that layer script generation or
	// plugin registration on top of a materialized install.
	EnableScript    bool `mapstructure:"enable_script"`
	EnableOverlay   bool `mapstructure:"enable_overlay"`
	HandleNuPlugins bool `mapstructure:"handle_nu_plugins"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Default returns the zero-configuration baseline: download connection
// policy, registry overlay on, build commands disabled, human-readable
// logging at info level.
func Default() *Options {
	return &Options{
		ConnectionPolicy: "download",
		UseRegistry:      true,
		LogLevel:         "INFO",
		LogFormat:        "console",
	}
}
