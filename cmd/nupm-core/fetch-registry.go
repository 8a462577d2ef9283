package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nupm-dev/nupm-core/internal/version"
	"github.com/nupm-dev/nupm-core/pkg/nupm"
)

// newFetchRegistryCommand creates the fetch-registry command.
func newFetchRegistryCommand() *cobra.Command {
	var versionPattern string

	cmd := &cobra.Command{
		Use:   "fetch-registry <name>",
		Short: "Look up a single package record in --registry-root",
		Long: `fetch-registry reads <registry-root>/<name>.json, selects the
record whose version best matches --version (default: latest), and prints
the resulting package fields. It does not consult any manifest and performs
no fetching of the package's source itself.`,
		Args: argsWithUsage(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetchRegistry(cmd, args[0], versionPattern)
		},
	}

	cmd.Flags().StringVar(&versionPattern, "version", "", "version pattern to match (default: latest)")

	return cmd
}

func runFetchRegistry(cmd *cobra.Command, name, versionPattern string) error {
	opts, err := buildOptions(cmd)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	pattern := version.Latest()
	if versionPattern != "" {
		pattern, err = version.Parse(versionPattern)
		if err != nil {
			return fmt.Errorf("parse --version: %w", err)
		}
	}

	log := buildLogger(cmd.ErrOrStderr())

	client, err := nupm.NewClient(*opts, log)
	if err != nil {
		return fmt.Errorf("construct client: %w", err)
	}

	pkg, err := client.FetchRegistry(cmd.Context(), name, pattern)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "name: %s\n", pkg.Name)
	if pkg.HasSource {
		fmt.Fprintf(out, "source: %s@%s\n", pkg.Source.URI, pkg.Source.Ref)
	}
	if pkg.HasVersion {
		fmt.Fprintf(out, "version: %s\n", pkg.Version)
	}
	if pkg.HasBuildCommand {
		fmt.Fprintf(out, "build_command: %s\n", pkg.BuildCommand)
	}

	return nil
}
