// Package nupm is the public facade over the resolver/fetcher/scheduler
// pipeline: parse a manifest, overlay registry data, and materialize the
// result into an install prefix.
package nupm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/nupm-dev/nupm-core/internal/config"
	"github.com/nupm-dev/nupm-core/internal/coreerr"
	"github.com/nupm-dev/nupm-core/internal/corelog"
	"github.com/nupm-dev/nupm-core/internal/fetcher"
	"github.com/nupm-dev/nupm-core/internal/manifestparse"
	"github.com/nupm-dev/nupm-core/internal/pkgmodel"
	"github.com/nupm-dev/nupm-core/internal/registrycore"
	"github.com/nupm-dev/nupm-core/internal/scheduler"
	"github.com/nupm-dev/nupm-core/internal/version"
)

// Client is a facade that delegates manifest parsing, registry overlay, and
// scheduling to their respective packages. Safe for concurrent use once
// constructed; a given Client should not run two Install calls against the
// same Options.NupmHome concurrently.
type Client struct {
	opts   config.Options
	log    corelog.Logger
	fetch  *fetcher.Fetcher
	policy fetcher.ConnectionPolicy
}

// NewClient builds a Client from opts. Returns an error if opts names an
// unrecognized connection policy.
func NewClient(opts config.Options, log corelog.Logger) (*Client, error) {
	policy, err := parsePolicy(opts.ConnectionPolicy)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = corelog.Noop{}
	}

	return &Client{
		opts:   opts,
		log:    log,
		fetch:  fetcher.New(opts.BaseDir, log),
		policy: policy,
	}, nil
}

func parsePolicy(s string) (fetcher.ConnectionPolicy, error) {
	switch s {
	case "", "download":
		return fetcher.Download, nil
	case "offline":
		return fetcher.Offline, nil
	case "update":
		return fetcher.Update, nil
	default:
		return 0, coreerr.InvalidManifestField{Field: "connection_policy", Value: s}
	}
}

// InstallResult summarizes a completed Install call.
type InstallResult struct {
	NupmHome string
	Packages []scheduler.PackageResult
}

// Install parses the configured manifest, overlays registry data for
// under-specified packages, schedules the dependency graph, and
// materializes it (see scheduler.Materialize). An existing opts.NupmHome
// fails with coreerr.DestinationExists unless opts.DeleteExisting is set.
func (c *Client) Install(ctx context.Context) (InstallResult, error) {
	if !c.opts.DeleteExisting {
		if _, err := os.Stat(c.opts.NupmHome); err == nil {
			return InstallResult{}, coreerr.DestinationExists{Path: c.opts.NupmHome}
		}
	}

	doc, err := readJSONDoc(c.opts.ManifestPath)
	if err != nil {
		return InstallResult{}, err
	}

	collection := pkgmodel.NewCollection()
	parsed, err := manifestparse.ParseRoot(doc, collection)
	if err != nil {
		return InstallResult{}, err
	}

	if c.opts.UseRegistry && c.opts.RegistryRoot != "" {
		if err := c.overlayRegistry(collection, parsed); err != nil {
			return InstallResult{}, err
		}
	}

	sched := scheduler.New(collection, c.fetch, c.log)
	packages, err := sched.Materialize(ctx, parsed.Root, scheduler.Options{
		NupmHome:           c.opts.NupmHome,
		Preserve:           !c.opts.DeleteExisting,
		Policy:             c.policy,
		AllowBuildCommands: c.opts.AllowBuildCommands,
		MaxParallel:        c.opts.MaxParallel,
	})
	if err != nil {
		return InstallResult{}, err
	}

	return InstallResult{NupmHome: c.opts.NupmHome, Packages: packages}, nil
}

// ResolveResult summarizes a completed Resolve call: the dependency closure
// of the root package, laid out in build-layer order with no fetching or
// materialization performed.
type ResolveResult struct {
	Layers [][]ResolvedPackage
}

// ResolvedPackage names one package's position in the resolved graph.
type ResolvedPackage struct {
	Name       string
	HasSource  bool
	SourceURI  string
	SourceRef  string
	BuildOrder int
}

// Resolve parses the configured manifest, overlays registry data the same
// way Install does, and returns the dependency closure's topological build
// layers without fetching or materializing anything. Useful for previewing
// what an Install would do.
func (c *Client) Resolve(_ context.Context) (ResolveResult, error) {
	doc, err := readJSONDoc(c.opts.ManifestPath)
	if err != nil {
		return ResolveResult{}, err
	}

	collection := pkgmodel.NewCollection()
	parsed, err := manifestparse.ParseRoot(doc, collection)
	if err != nil {
		return ResolveResult{}, err
	}

	if c.opts.UseRegistry && c.opts.RegistryRoot != "" {
		if err := c.overlayRegistry(collection, parsed); err != nil {
			return ResolveResult{}, err
		}
	}

	sched := scheduler.New(collection, c.fetch, c.log)
	layers, err := sched.Layers(parsed.Root)
	if err != nil {
		return ResolveResult{}, err
	}

	result := ResolveResult{Layers: make([][]ResolvedPackage, len(layers))}
	for i, layer := range layers {
		resolved := make([]ResolvedPackage, len(layer))
		for j, h := range layer {
			pkg := collection.Get(h)
			resolved[j] = ResolvedPackage{
				Name:       pkg.Name,
				HasSource:  pkg.HasSource,
				SourceURI:  pkg.Source.URI,
				SourceRef:  pkg.Source.Ref,
				BuildOrder: i,
			}
		}
		result.Layers[i] = resolved
	}
	return result, nil
}

// FetchRegistry looks up a single package by name and version pattern
// directly against opts.RegistryRoot, without touching a manifest. It
// exercises internal/registrycore.Lookup standalone, the way a package
// author might query the registry for what's actually published.
func (c *Client) FetchRegistry(_ context.Context, name string, pattern version.Version) (pkgmodel.Package, error) {
	collection := pkgmodel.NewCollection()
	handle, err := registrycore.Lookup(c.opts.RegistryRoot, name, pattern, collection, pkgmodel.Unset)
	if err != nil {
		return pkgmodel.Package{}, err
	}
	return collection.Get(handle), nil
}

// overlayRegistry walks every package discovered during manifest parsing
// that is missing a source and fills it in from the registry, unless the
// package opted out with ignore_registry.
func (c *Client) overlayRegistry(collection *pkgmodel.Collection, parsed manifestparse.ParseResult) error {
	for _, h := range collection.Handles() {
		pkg := collection.Get(h)
		if pkg.HasSource || pkg.IgnoreRegistry || pkg.Name == "" {
			continue
		}

		pattern := pkg.Version
		if !pkg.HasVersion {
			pattern = version.Latest()
		}

		registryHandle, err := registrycore.Lookup(c.opts.RegistryRoot, pkg.Name, pattern, collection, pkg.AllowBuildCommands)
		if err != nil {
			if err == registrycore.ErrNotFound {
				continue
			}
			return fmt.Errorf("registry overlay for %q: %w", pkg.Name, err)
		}

		collection.FillNull(h, collection.Get(registryHandle))
	}
	return nil
}

func readJSONDoc(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, coreerr.IOError{Op: "read", Path: path, Err: err}
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, coreerr.InvalidJSON{Path: path, Err: err}
	}
	return doc, nil
}
