// Package scheduler orders a parsed package collection into build layers
// and materializes it: per-package worktree resolution, linkin symlink
// injection, and gated build-command execution, with a layer's packages
// built in parallel and layers processed strictly in sequence.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/nupm-dev/nupm-core/internal/corelog"
	"github.com/nupm-dev/nupm-core/internal/coreerr"
	"github.com/nupm-dev/nupm-core/internal/fetcher"
	"github.com/nupm-dev/nupm-core/internal/pathutil"
	"github.com/nupm-dev/nupm-core/internal/pkgmodel"
)

// Runner resolves a package's on-disk base path. internal/fetcher.Fetcher
// satisfies this; tests substitute a stub.
type Runner interface {
	Resolve(ctx context.Context, uri, ref string, policy fetcher.ConnectionPolicy) (string, error)
}

// Options configures a materialize run.
type Options struct {
	// NupmHome is the install prefix. Materialize creates it if missing;
	// linkin symlinks and build outputs are placed under each package's
	// own base path, not under NupmHome.
	NupmHome string
	// Preserve, if true, keeps an existing NupmHome as it is; otherwise an
	// existing NupmHome is deleted and recreated empty.
	Preserve bool
	// Policy is the connection policy forwarded to every fetcher.Resolve call.
	Policy fetcher.ConnectionPolicy
	// AllowBuildCommands is the caller-side half of the effective build
	// permission: true only if both the caller and the package allow it.
	AllowBuildCommands bool
	// MaxParallel bounds per-layer concurrency; zero means unbounded.
	MaxParallel int
}

// PackageResult records the outcome of materializing one package.
type PackageResult struct {
	Handle   pkgmodel.Handle
	Name     string
	BasePath string
}

// Scheduler topologically layers a collection and materializes it.
type Scheduler struct {
	collection *pkgmodel.Collection
	fetch      Runner
	log        corelog.Logger
}

// New creates a Scheduler over collection, using fetch to resolve each
// package's on-disk base path.
func New(collection *pkgmodel.Collection, fetch Runner, log corelog.Logger) *Scheduler {
	if log == nil {
		log = corelog.Noop{}
	}
	return &Scheduler{collection: collection, fetch: fetch, log: log}
}

// Materialize prepares opts.NupmHome, then resolves every package in the
// dependency closure of root layer by layer, creating its linkin symlinks
// inside its own base path and running its build command there.
func (s *Scheduler) Materialize(ctx context.Context, root pkgmodel.Handle, opts Options) ([]PackageResult, error) {
	if err := s.prepareDestination(opts); err != nil {
		return nil, err
	}

	layers, err := s.layer(root)
	if err != nil {
		return nil, err
	}

	worktreeLocks := newKeyedMutex()
	results := make(map[pkgmodel.Handle]PackageResult)
	var resultsMu sync.Mutex

	for layerIndex, layer := range layers {
		s.log.Info(ctx, "scheduler_layer_start", "layer", layerIndex, "size", len(layer))

		if err := s.runLayer(ctx, layer, opts, worktreeLocks, func(h pkgmodel.Handle, r PackageResult) {
			resultsMu.Lock()
			results[h] = r
			resultsMu.Unlock()
		}); err != nil {
			return nil, err
		}
	}

	ordered := make([]PackageResult, 0, len(results))
	for _, layer := range layers {
		for _, h := range layer {
			ordered = append(ordered, results[h])
		}
	}
	return ordered, nil
}

func (s *Scheduler) prepareDestination(opts Options) error {
	info, err := os.Stat(opts.NupmHome)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(opts.NupmHome, 0o755); mkErr != nil {
				return coreerr.IOError{Op: "mkdir", Path: opts.NupmHome, Err: mkErr}
			}
			return nil
		}
		return coreerr.IOError{Op: "stat", Path: opts.NupmHome, Err: err}
	}
	if !info.IsDir() {
		return coreerr.IOError{Op: "stat", Path: opts.NupmHome, Err: fmt.Errorf("not a directory")}
	}
	if opts.Preserve {
		return nil
	}
	if err := os.RemoveAll(opts.NupmHome); err != nil {
		return coreerr.IOError{Op: "remove", Path: opts.NupmHome, Err: err}
	}
	if err := os.MkdirAll(opts.NupmHome, 0o755); err != nil {
		return coreerr.IOError{Op: "mkdir", Path: opts.NupmHome, Err: err}
	}
	return nil
}

// Layers exposes the topological build-layer ordering of root's dependency
// closure without fetching or materializing anything, for callers that only
// need to preview what Materialize would do.
func (s *Scheduler) Layers(root pkgmodel.Handle) ([][]pkgmodel.Handle, error) {
	return s.layer(root)
}

// layer performs Kahn's-algorithm topological layering over the closure of
// root under depends+linkin edges. Each inner slice is a build layer whose
// packages have no mutual dependency.
func (s *Scheduler) layer(root pkgmodel.Handle) ([][]pkgmodel.Handle, error) {
	edges := make(map[pkgmodel.Handle][]pkgmodel.Handle)
	inDegree := make(map[pkgmodel.Handle]int)

	var visit func(h pkgmodel.Handle)
	visited := make(map[pkgmodel.Handle]bool)
	visit = func(h pkgmodel.Handle) {
		if visited[h] {
			return
		}
		visited[h] = true
		if _, ok := inDegree[h]; !ok {
			inDegree[h] = 0
		}

		pkg := s.collection.Get(h)
		deps := make([]pkgmodel.Handle, 0, len(pkg.Depends)+len(pkg.Linkin))
		deps = append(deps, pkg.Depends...)
		for _, dep := range pkg.Linkin {
			deps = append(deps, dep)
		}

		for _, dep := range deps {
			edges[dep] = append(edges[dep], h)
			inDegree[h]++
			visit(dep)
		}
	}
	visit(root)

	remaining := make(map[pkgmodel.Handle]int, len(inDegree))
	for h, d := range inDegree {
		remaining[h] = d
	}

	var layers [][]pkgmodel.Handle
	for len(remaining) > 0 {
		var layerHandles []pkgmodel.Handle
		for h, d := range remaining {
			if d == 0 {
				layerHandles = append(layerHandles, h)
			}
		}
		if len(layerHandles) == 0 {
			return nil, coreerr.CircularDependencies{Packages: handleNames(s.collection, sortedHandles(remaining))}
		}

		sort.Slice(layerHandles, func(i, j int) bool { return layerHandles[i] < layerHandles[j] })
		layers = append(layers, layerHandles)

		for _, h := range layerHandles {
			delete(remaining, h)
		}
		for _, h := range layerHandles {
			for _, downstream := range edges[h] {
				if _, ok := remaining[downstream]; ok {
					remaining[downstream]--
				}
			}
		}
	}

	return layers, nil
}

func sortedHandles(m map[pkgmodel.Handle]int) []pkgmodel.Handle {
	out := make([]pkgmodel.Handle, 0, len(m))
	for h := range m {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func handleNames(c *pkgmodel.Collection, handles []pkgmodel.Handle) []string {
	names := make([]string, len(handles))
	for i, h := range handles {
		names[i] = c.Get(h).Name
	}
	return names
}

func (s *Scheduler) runLayer(ctx context.Context, layer []pkgmodel.Handle, opts Options, locks *keyedMutex, record func(pkgmodel.Handle, PackageResult)) error {
	type outcome struct {
		handle pkgmodel.Handle
		result PackageResult
		err    error
	}

	sem := make(chan struct{}, maxParallel(opts.MaxParallel, len(layer)))
	outcomes := make(chan outcome, len(layer))
	var wg sync.WaitGroup

	for _, h := range layer {
		wg.Add(1)
		go func(h pkgmodel.Handle) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			result, err := s.buildPackage(ctx, h, opts, locks)
			outcomes <- outcome{handle: h, result: result, err: err}
		}(h)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var firstErr error
	for o := range outcomes {
		if o.err != nil {
			s.log.Error(ctx, "package_build_failed", "package", s.collection.Get(o.handle).Name, "error", o.err)
			if firstErr == nil {
				firstErr = o.err
			}
			continue
		}
		record(o.handle, o.result)
	}
	return firstErr
}

func maxParallel(configured, layerSize int) int {
	if configured <= 0 || configured > layerSize {
		return layerSize
	}
	return configured
}

func (s *Scheduler) buildPackage(ctx context.Context, h pkgmodel.Handle, opts Options, locks *keyedMutex) (PackageResult, error) {
	pkg := s.collection.Get(h)

	var basePath string
	if pkg.HasSource {
		worktreeKey := pkg.Source.URI + "@" + pkg.Source.Ref
		locks.Lock(worktreeKey)
		resolved, err := s.fetch.Resolve(ctx, pkg.Source.URI, pkg.Source.Ref, opts.Policy)
		locks.Unlock(worktreeKey)
		if err != nil {
			return PackageResult{}, err
		}
		basePath = resolved
		if pkg.HasPathOffset {
			basePath = filepath.Join(basePath, pkg.PathOffset)
		}
	}

	for destSpec, depHandle := range pkg.Linkin {
		if err := s.linkin(ctx, pkg, basePath, destSpec, depHandle); err != nil {
			return PackageResult{}, err
		}
	}

	if pkg.HasBuildCommand {
		if err := s.runBuildCommand(ctx, pkg, basePath, opts); err != nil {
			return PackageResult{}, err
		}
	}

	s.log.Debug(ctx, "package_materialized", "package", pkg.Name, "base_path", basePath)
	return PackageResult{Handle: h, Name: pkg.Name, BasePath: basePath}, nil
}

// linkin resolves destSpec ("A" or "A:B") and symlinks the dependency's
// subpath B (or its whole root, when no colon is present) into the
// consumer's tree at A.
func (s *Scheduler) linkin(ctx context.Context, pkg pkgmodel.Package, basePath, destSpec string, depHandle pkgmodel.Handle) error {
	dep := s.collection.Get(depHandle)
	depBase, err := s.basePathFor(ctx, dep)
	if err != nil {
		return err
	}

	destPath, subPath, hasSub := strings.Cut(destSpec, ":")

	source := depBase
	if hasSub {
		source = filepath.Join(depBase, subPath)
	}

	target := filepath.Join(basePath, destPath)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return coreerr.IOError{Op: "mkdir", Path: filepath.Dir(target), Err: err}
	}

	s.log.Debug(ctx, "linkin_symlink", "package", pkg.Name, "from", source, "to", target)
	return pathutil.Symlink(source, target)
}

func (s *Scheduler) basePathFor(ctx context.Context, pkg pkgmodel.Package) (string, error) {
	if !pkg.HasSource {
		return "", coreerr.InvalidManifestField{Pkg: pkg.Name, Field: "source", Value: "<unset>"}
	}
	path, err := s.fetch.Resolve(ctx, pkg.Source.URI, pkg.Source.Ref, fetcher.Offline)
	if err != nil {
		return "", err
	}
	if pkg.HasPathOffset {
		path = filepath.Join(path, pkg.PathOffset)
	}
	return path, nil
}

const cargoReleaseFastPath = "cargo build --release"

// runBuildCommand gates execution on the effective build permission (true
// only if both the caller and the package allow it; an explicit false
// anywhere in the chain already baked into pkg.AllowBuildCommands forces
// false), then dispatches either the hard-coded cargo fast path or a
// generic nu command. nu, not a POSIX shell, is the interpreter build
// commands are written against (this is a nu package manager), so the
// fallback shells to it with history/config suppressed rather than to sh.
func (s *Scheduler) runBuildCommand(ctx context.Context, pkg pkgmodel.Package, basePath string, opts Options) error {
	if !effectiveAllow(opts.AllowBuildCommands, pkg.AllowBuildCommands) {
		return coreerr.BuildCommandBlocked{Pkg: pkg.Name, Command: pkg.BuildCommand}
	}

	s.log.Info(ctx, "running_build_command", "package", pkg.Name, "command", pkg.BuildCommand)

	if pkg.BuildCommand == cargoReleaseFastPath {
		_, err := pathutil.TryRunCommand(ctx, basePath, "cargo", "build", "--release", "--quiet")
		return err
	}

	_, err := pathutil.TryRunCommand(ctx, basePath, "nu",
		"--log-level", "trace", "--no-history", "--no-config-file", "--commands", pkg.BuildCommand)
	return err
}

func effectiveAllow(callerAllows bool, pkgState pkgmodel.TriState) bool {
	if pkgState == pkgmodel.False {
		return false
	}
	if !callerAllows {
		return false
	}
	return pkgState == pkgmodel.True
}

// keyedMutex serializes operations on the same string key (a worktree's
// (uri, ref) identity), so two packages sharing a worktree never run
// concurrent git operations against it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) Lock(key string) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()
	l.Lock()
}

func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	l := k.locks[key]
	k.mu.Unlock()
	l.Unlock()
}
