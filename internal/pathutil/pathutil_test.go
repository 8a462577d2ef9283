package pathutil_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nupm-dev/nupm-core/internal/coreerr"
	"github.com/nupm-dev/nupm-core/internal/pathutil"
)

func TestFilesystemSafe_AllowedCharacterClass(t *testing.T) {
	out := pathutil.FilesystemSafe("scheme://host/path?a=b#frag weird!.git")
	for _, r := range out {
		ok := (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') ||
			r == '_' || r == '-' || r == '.' || r == ' '
		assert.True(t, ok, "unexpected rune %q in %q", r, out)
	}
}

func TestFilesystemSafe_PreservesAllowedChars(t *testing.T) {
	assert.Equal(t, "hello-world_1.2 3", pathutil.FilesystemSafe("hello-world_1.2 3"))
}

func TestSymlink_CreatesLink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	link := filepath.Join(dir, "link")
	require.NoError(t, pathutil.Symlink(target, link))

	resolved, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, target, resolved)
}

func TestSymlink_ErrorIsStructured(t *testing.T) {
	dir := t.TempDir()
	// Parent directory doesn't exist -> symlink fails.
	err := pathutil.Symlink(filepath.Join(dir, "a"), filepath.Join(dir, "missing", "link"))
	require.Error(t, err)
	var ioErr coreerr.IOError
	assert.ErrorAs(t, err, &ioErr)
}

func TestTryRunCommand_Success(t *testing.T) {
	result, err := pathutil.TryRunCommand(context.Background(), t.TempDir(), "echo", "hello")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Code)
	assert.Contains(t, result.Stdout, "hello")
}

func TestTryRunCommand_NonZeroExit(t *testing.T) {
	_, err := pathutil.TryRunCommand(context.Background(), t.TempDir(), "sh", "-c", "echo out; echo err >&2; exit 3")
	require.Error(t, err)
	var exitErr coreerr.ExternalCommandExitcode
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.Code)
	assert.Contains(t, exitErr.Stdout, "out")
	assert.Contains(t, exitErr.Stderr, "err")
}

func TestTryRunCommand_SpawnFailure(t *testing.T) {
	_, err := pathutil.TryRunCommand(context.Background(), t.TempDir(), "definitely-not-a-real-binary-xyz")
	require.Error(t, err)
	var ioErr coreerr.ExternalCommandIO
	assert.ErrorAs(t, err, &ioErr)
}
