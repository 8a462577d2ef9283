package scheduler_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nupm-dev/nupm-core/internal/coreerr"
	"github.com/nupm-dev/nupm-core/internal/fetcher"
	"github.com/nupm-dev/nupm-core/internal/pkgmodel"
	"github.com/nupm-dev/nupm-core/internal/scheduler"
)

// stubFetcher resolves every (uri, ref) to a distinct directory under root,
// created on first resolve, so linkin symlinks have something real to point at.
type stubFetcher struct {
	root string
}

func (s *stubFetcher) Resolve(ctx context.Context, uri, ref string, policy fetcher.ConnectionPolicy) (string, error) {
	dir := filepath.Join(s.root, uri, ref)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func newCollectionWithChain(t *testing.T) (*pkgmodel.Collection, pkgmodel.Handle) {
	t.Helper()
	c := pkgmodel.NewCollection()

	base := pkgmodel.New()
	base.Name = "base"
	base.HasSource = true
	base.Source = pkgmodel.Source{Type: pkgmodel.SourceGit, URI: "scheme://h/base", Ref: "main"}
	baseHandle := c.Insert(base)

	root := pkgmodel.New()
	root.Name = "root"
	root.HasSource = true
	root.Source = pkgmodel.Source{Type: pkgmodel.SourceGit, URI: "scheme://h/root", Ref: "main"}
	root.Depends = []pkgmodel.Handle{baseHandle}
	root.Linkin = map[string]pkgmodel.Handle{"vendor/base": baseHandle}
	rootHandle := c.Insert(root)

	return c, rootHandle
}

func TestMaterialize_LayersAndLinksInOrder(t *testing.T) {
	storeRoot := t.TempDir()
	nupmHome := filepath.Join(t.TempDir(), "nupm_home")

	collection, root := newCollectionWithChain(t)
	s := scheduler.New(collection, &stubFetcher{root: storeRoot}, nil)

	results, err := s.Materialize(context.Background(), root, scheduler.Options{
		NupmHome: nupmHome,
		Policy:   fetcher.Download,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "base", results[0].Name, "dependency must be materialized before its consumer")
	assert.Equal(t, "root", results[1].Name)

	link := filepath.Join(results[1].BasePath, "vendor/base")
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, results[0].BasePath, target)
}

func TestMaterialize_CircularDependency(t *testing.T) {
	c := pkgmodel.NewCollection()

	a := pkgmodel.New()
	a.Name = "a"
	aHandle := c.Insert(a)

	b := pkgmodel.New()
	b.Name = "b"
	b.Depends = []pkgmodel.Handle{aHandle}
	bHandle := c.Insert(b)

	aWithCycle := pkgmodel.New()
	aWithCycle.Name = "a"
	aWithCycle.Depends = []pkgmodel.Handle{bHandle}
	// Mutating through FillNull to introduce the back-edge without a second
	// Insert call changing a's identity/handle.
	c.FillNull(aHandle, aWithCycle)

	s := scheduler.New(c, &stubFetcher{root: t.TempDir()}, nil)
	_, err := s.Materialize(context.Background(), bHandle, scheduler.Options{
		NupmHome: filepath.Join(t.TempDir(), "nupm_home"),
	})

	require.Error(t, err)
	var cycleErr coreerr.CircularDependencies
	require.ErrorAs(t, err, &cycleErr)
}

func TestMaterialize_PreserveKeepsExistingDestination(t *testing.T) {
	c, root := newCollectionWithChain(t)
	s := scheduler.New(c, &stubFetcher{root: t.TempDir()}, nil)

	nupmHome := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(nupmHome, "marker"), []byte("x"), 0o644))

	_, err := s.Materialize(context.Background(), root, scheduler.Options{
		NupmHome: nupmHome,
		Preserve: true,
	})
	require.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(nupmHome, "marker"))
	assert.NoError(t, statErr, "Preserve must keep existing contents")
}

func TestMaterialize_BuildCommandBlockedWithoutPermission(t *testing.T) {
	c := pkgmodel.NewCollection()
	pkg := pkgmodel.New()
	pkg.Name = "needs-build"
	pkg.HasSource = true
	pkg.Source = pkgmodel.Source{Type: pkgmodel.SourceGit, URI: "scheme://h/nb", Ref: "main"}
	pkg.HasBuildCommand = true
	pkg.BuildCommand = "make"
	pkg.AllowBuildCommands = pkgmodel.Unset
	handle := c.Insert(pkg)

	s := scheduler.New(c, &stubFetcher{root: t.TempDir()}, nil)
	_, err := s.Materialize(context.Background(), handle, scheduler.Options{
		NupmHome:           filepath.Join(t.TempDir(), "nupm_home"),
		AllowBuildCommands: false,
	})

	require.Error(t, err)
	var blocked coreerr.BuildCommandBlocked
	require.ErrorAs(t, err, &blocked)
}

func TestMaterialize_BuildCommandRunsWhenAllowed(t *testing.T) {
	c := pkgmodel.NewCollection()
	pkg := pkgmodel.New()
	pkg.Name = "needs-build"
	pkg.HasSource = true
	pkg.Source = pkgmodel.Source{Type: pkgmodel.SourceGit, URI: "scheme://h/nb2", Ref: "main"}
	pkg.HasBuildCommand = true
	pkg.BuildCommand = "touch built.marker"
	pkg.AllowBuildCommands = pkgmodel.True
	handle := c.Insert(pkg)

	storeRoot := t.TempDir()
	s := scheduler.New(c, &stubFetcher{root: storeRoot}, nil)
	results, err := s.Materialize(context.Background(), handle, scheduler.Options{
		NupmHome:           filepath.Join(t.TempDir(), "nupm_home"),
		AllowBuildCommands: true,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	_, statErr := os.Stat(filepath.Join(results[0].BasePath, "built.marker"))
	assert.NoError(t, statErr)
}

func TestMaterialize_BuildCommandUsesNuInterpreter(t *testing.T) {
	if _, err := exec.LookPath("nu"); err != nil {
		t.Skip("nu not installed")
	}

	c := pkgmodel.NewCollection()
	pkg := pkgmodel.New()
	pkg.Name = "needs-nu-build"
	pkg.HasSource = true
	pkg.Source = pkgmodel.Source{Type: pkgmodel.SourceGit, URI: "scheme://h/nb3", Ref: "main"}
	pkg.HasBuildCommand = true
	// [1 2 3] | length is nu list/pipeline syntax; sh -c would fail on it
	// (command not found: a bareword list followed by a bad pipe target),
	// so this only passes if the fallback actually shells to nu.
	pkg.BuildCommand = `[1 2 3] | length | save built.marker`
	pkg.AllowBuildCommands = pkgmodel.True
	handle := c.Insert(pkg)

	storeRoot := t.TempDir()
	s := scheduler.New(c, &stubFetcher{root: storeRoot}, nil)
	results, err := s.Materialize(context.Background(), handle, scheduler.Options{
		NupmHome:           filepath.Join(t.TempDir(), "nupm_home"),
		AllowBuildCommands: true,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	_, statErr := os.Stat(filepath.Join(results[0].BasePath, "built.marker"))
	assert.NoError(t, statErr)
}
