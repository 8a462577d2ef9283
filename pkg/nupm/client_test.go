package nupm_test

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nupm-dev/nupm-core/internal/config"
	"github.com/nupm-dev/nupm-core/internal/version"
	"github.com/nupm-dev/nupm-core/pkg/nupm"
)

func initLocalRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}
	run("init", "-b", "main")
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	run("add", ".")
	run("commit", "-m", "initial")
	return dir
}

func writeManifest(t *testing.T, dir string, doc map[string]any) string {
	t.Helper()
	path := filepath.Join(dir, "manifest.json")
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func TestClient_InstallResolvesFetchesAndLinks(t *testing.T) {
	libRepo := initLocalRepo(t, map[string]string{"lib.nu": "export def x [] {}\n"})

	rootRepo := initLocalRepo(t, map[string]string{"root.nu": "export def y [] {}\n"})

	manifestDir := t.TempDir()
	manifestPath := writeManifest(t, manifestDir, map[string]any{
		"name":        "root",
		"source_type": "git",
		"source_uri":  "file://" + rootRepo,
		"git_ref":     "main",
		"depends": []any{
			map[string]any{
				"name":        "lib",
				"source_type": "git",
				"source_uri":  "file://" + libRepo,
				"git_ref":     "main",
			},
		},
		"linkin": map[string]any{
			"vendor/lib": map[string]any{
				"name":        "lib",
				"source_type": "git",
				"source_uri":  "file://" + libRepo,
				"git_ref":     "main",
			},
		},
	})

	opts := *config.Default()
	opts.BaseDir = t.TempDir()
	opts.NupmHome = filepath.Join(t.TempDir(), "nupm_home")
	opts.ManifestPath = manifestPath
	opts.ConnectionPolicy = "download"
	opts.UseRegistry = false

	client, err := nupm.NewClient(opts, nil)
	require.NoError(t, err)

	result, err := client.Install(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, result.Packages)

	var rootPath string
	for _, p := range result.Packages {
		if p.Name == "root" {
			rootPath = p.BasePath
		}
	}
	require.NotEmpty(t, rootPath)

	link := filepath.Join(rootPath, "vendor/lib")
	_, err = os.Readlink(link)
	assert.NoError(t, err)
}

func TestNewClient_RejectsUnknownConnectionPolicy(t *testing.T) {
	opts := *config.Default()
	opts.ConnectionPolicy = "bogus"
	_, err := nupm.NewClient(opts, nil)
	require.Error(t, err)
}

func TestClient_ResolveReturnsLayersWithoutFetching(t *testing.T) {
	libRepo := initLocalRepo(t, map[string]string{"lib.nu": "export def x [] {}\n"})
	rootRepo := initLocalRepo(t, map[string]string{"root.nu": "export def y [] {}\n"})

	manifestDir := t.TempDir()
	manifestPath := writeManifest(t, manifestDir, map[string]any{
		"name":        "root",
		"source_type": "git",
		"source_uri":  "file://" + rootRepo,
		"git_ref":     "main",
		"depends": []any{
			map[string]any{
				"name":        "lib",
				"source_type": "git",
				"source_uri":  "file://" + libRepo,
				"git_ref":     "main",
			},
		},
	})

	opts := *config.Default()
	opts.BaseDir = t.TempDir()
	opts.ManifestPath = manifestPath
	opts.UseRegistry = false

	client, err := nupm.NewClient(opts, nil)
	require.NoError(t, err)

	result, err := client.Resolve(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Layers, 2)

	assert.Equal(t, "lib", result.Layers[0][0].Name, "dependency must resolve into the earlier layer")
	assert.Equal(t, "root", result.Layers[1][0].Name)

	// Resolve must not have touched the store: no worktree directories
	// should exist under BaseDir.
	entries, err := os.ReadDir(opts.BaseDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "resolve must not fetch any source")
}

func TestClient_FetchRegistryLooksUpByNameAndVersion(t *testing.T) {
	registryRoot := t.TempDir()
	registryDoc := map[string]any{
		"1.0.0": map[string]any{
			"name":        "tool",
			"source_type": "git",
			"source_uri":  "file:///tmp/does-not-matter",
			"git_ref":     "main",
		},
	}
	raw, err := json.Marshal(registryDoc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(registryRoot, "tool.json"), raw, 0o644))

	opts := *config.Default()
	opts.RegistryRoot = registryRoot

	client, err := nupm.NewClient(opts, nil)
	require.NoError(t, err)

	pkg, err := client.FetchRegistry(context.Background(), "tool", version.Latest())
	require.NoError(t, err)
	assert.Equal(t, "tool", pkg.Name)
	assert.True(t, pkg.HasSource)
	assert.Equal(t, "main", pkg.Source.Ref)
}
