package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nupm-dev/nupm-core/pkg/nupm"
)

// newResolveCommand creates the resolve command.
func newResolveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the dependency closure's build layers without fetching or materializing",
		Long: `resolve parses the manifest named by --manifest, fills any
under-specified package with data from --registry-root (unless
--use-registry=false), and prints the resulting dependency graph in
topological build-layer order. No git operations or build commands run.`,
		Args: argsWithUsage(cobra.NoArgs),
		RunE: runResolve,
	}

	return cmd
}

func runResolve(cmd *cobra.Command, _ []string) error {
	opts, err := buildOptions(cmd)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log := buildLogger(cmd.ErrOrStderr())

	client, err := nupm.NewClient(*opts, log)
	if err != nil {
		return fmt.Errorf("construct client: %w", err)
	}

	result, err := client.Resolve(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, layer := range result.Layers {
		fmt.Fprintf(out, "layer %d:\n", i)
		for _, pkg := range layer {
			if pkg.HasSource {
				fmt.Fprintf(out, "  %s (%s@%s)\n", pkg.Name, pkg.SourceURI, pkg.SourceRef)
			} else {
				fmt.Fprintf(out, "  %s (no source)\n", pkg.Name)
			}
		}
	}

	return nil
}
