// Package pathutil provides filesystem-safe name escaping, atomic
// symlinking, and a subprocess wrapper that captures stdout/stderr/exit
// code into structured errors.
package pathutil

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/nupm-dev/nupm-core/internal/coreerr"
)

// FilesystemSafe replaces any character outside [A-Za-z0-9_\-. ] with '_'.
func FilesystemSafe(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') ||
			r == '_' || r == '-' || r == '.' || r == ' ' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Symlink creates a filesystem symlink atomically. No fallback to copying
// is permitted: a failure surfaces as a structured IOError.
func Symlink(target, linkpath string) error {
	if err := os.Symlink(target, linkpath); err != nil {
		return coreerr.IOError{Op: "symlink", Path: linkpath, Err: err}
	}
	return nil
}

// CommandResult carries the full detail of a completed (or failed-to-start)
// subprocess invocation.
type CommandResult struct {
	Cmd    string
	Stdout string
	Stderr string
	Code   int
}

// TryRunCommand executes name with args, capturing stdout/stderr. On a
// non-zero exit it returns coreerr.ExternalCommandExitcode carrying both
// streams and the exit code; on a failure to spawn, it returns
// coreerr.ExternalCommandIO.
func TryRunCommand(ctx context.Context, dir string, name string, args ...string) (CommandResult, error) {
	cmdLine := reproCmdLine(name, args)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = io.Writer(&stdout)
	cmd.Stderr = io.Writer(&stderr)

	err := cmd.Run()
	result := CommandResult{Cmd: cmdLine, Stdout: stdout.String(), Stderr: stderr.String()}

	if err == nil {
		result.Code = 0
		return result, nil
	}

	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		result.Code = exitErr.ExitCode()
		return result, coreerr.ExternalCommandExitcode{
			Cmd:    cmdLine,
			Stdout: result.Stdout,
			Stderr: result.Stderr,
			Code:   result.Code,
		}
	}

	return result, coreerr.ExternalCommandIO{Cmd: cmdLine, Err: err}
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

func reproCmdLine(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	parts = append(parts, args...)
	return strings.Join(parts, " ")
}
