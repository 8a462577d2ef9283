package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nupm-dev/nupm-core/pkg/nupm"
)

// newInstallCommand creates the install command.
func newInstallCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Resolve the manifest, fetch dependencies, and materialize the install prefix",
		Long: `install parses the manifest named by --manifest, fills any
under-specified package with data from --registry-root (unless
--use-registry=false), fetches every source_type=git dependency according
to --connection-policy, prepares --nupm-home, and creates each package's
linkin symlinks inside that package's fetched worktree.`,
		Args: argsWithUsage(cobra.NoArgs),
		RunE: runInstall,
	}

	return cmd
}

func runInstall(cmd *cobra.Command, _ []string) error {
	opts, err := buildOptions(cmd)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log := buildLogger(cmd.ErrOrStderr())

	client, err := nupm.NewClient(*opts, log)
	if err != nil {
		return fmt.Errorf("construct client: %w", err)
	}

	result, err := client.Install(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "materialized %d package(s) into %s\n", len(result.Packages), result.NupmHome)
	for _, p := range result.Packages {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s -> %s\n", p.Name, p.BasePath)
	}

	return nil
}
