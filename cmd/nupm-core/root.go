package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nupm-dev/nupm-core/internal/config"
	"github.com/nupm-dev/nupm-core/internal/corelog"
)

// globalFlags holds the persistent flags shared across every subcommand.
type globalFlags struct {
	baseDir            string
	nupmHome           string
	manifestPath       string
	registryRoot       string
	connectionPolicy   string
	useRegistry        bool
	deleteExisting     bool
	allowBuildCommands bool
	maxParallel        int
	configFile         string
	logJSON            bool
	verbose            int
}

var flags globalFlags

// NewRootCommand builds the root cobra command.
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "nupm-core",
		Short:         "Resolve, fetch, and materialize nu package manifests",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n\n", err)
		_ = cmd.Usage()
		return err
	})

	defaults := config.Default()

	root.PersistentFlags().StringVar(&flags.configFile, "config", "",
		"path to a config file (yaml/json/toml, resolved by viper)")
	root.PersistentFlags().StringVar(&flags.baseDir, "base-dir", defaults.BaseDir,
		"directory holding the git store")
	root.PersistentFlags().StringVar(&flags.nupmHome, "nupm-home", defaults.NupmHome,
		"install prefix to materialize packages into")
	root.PersistentFlags().StringVarP(&flags.manifestPath, "manifest", "m", defaults.ManifestPath,
		"path to the root manifest document")
	root.PersistentFlags().StringVar(&flags.registryRoot, "registry-root", defaults.RegistryRoot,
		"directory of registry package records")
	root.PersistentFlags().StringVar(&flags.connectionPolicy, "connection-policy", defaults.ConnectionPolicy,
		"one of offline, download, update")
	root.PersistentFlags().BoolVar(&flags.useRegistry, "use-registry", defaults.UseRegistry,
		"fill under-specified packages from the registry")
	root.PersistentFlags().BoolVar(&flags.deleteExisting, "delete-existing", defaults.DeleteExisting,
		"delete and recreate an existing install prefix instead of failing")
	root.PersistentFlags().BoolVar(&flags.allowBuildCommands, "allow-build-commands", defaults.AllowBuildCommands,
		"permit packages to run their declared build command")
	root.PersistentFlags().IntVar(&flags.maxParallel, "max-parallel", defaults.MaxParallel,
		"max concurrent builds per dependency layer (0 = unbounded)")
	root.PersistentFlags().BoolVar(&flags.logJSON, "log-json", false,
		"emit logs as JSON instead of console text")
	root.PersistentFlags().CountVarP(&flags.verbose, "verbose", "v",
		"increase log verbosity: -v (info), -vv (debug)")

	root.AddCommand(newInstallCommand())
	root.AddCommand(newResolveCommand())
	root.AddCommand(newFetchRegistryCommand())

	return root
}

// buildOptions resolves config.Options from the flags explicitly set on cmd,
// layered over env vars, an optional config file, and defaults.
func buildOptions(cmd *cobra.Command) (*config.Options, error) {
	loader := config.NewLoader("NUPM", flags.configFile)

	set := map[string]any{}
	assign := func(name, key string, val any) {
		if cmd.Flags().Changed(name) {
			set[key] = val
		}
	}
	assign("base-dir", "base_dir", flags.baseDir)
	assign("nupm-home", "nupm_home", flags.nupmHome)
	assign("manifest", "manifest_path", flags.manifestPath)
	assign("registry-root", "registry_root", flags.registryRoot)
	assign("connection-policy", "connection_policy", flags.connectionPolicy)
	assign("use-registry", "use_registry", flags.useRegistry)
	assign("delete-existing", "delete_existing", flags.deleteExisting)
	assign("allow-build-commands", "allow_build_commands", flags.allowBuildCommands)
	assign("max-parallel", "max_parallel", flags.maxParallel)

	return loader.LoadWithFlags(set)
}

// buildLogger constructs the console or JSON logger implied by the global
// flags. Verbosity 0 logs at warn level; -v is info; -vv+ is debug.
func buildLogger(w io.Writer) corelog.Logger {
	level := "WARN"
	switch {
	case flags.verbose == 1:
		level = "INFO"
	case flags.verbose >= 2:
		level = "DEBUG"
	}

	if flags.logJSON {
		return corelog.NewJSONLogger(w, level)
	}
	return corelog.NewConsoleLogger(w, level)
}

// argsWithUsage wraps a cobra args validator so validation errors print
// usage alongside the error message.
func argsWithUsage(validator cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validator(cmd, args); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n\n", err)
			_ = cmd.Usage()
			return err
		}
		return nil
	}
}
