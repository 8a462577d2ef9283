package fetcher

import (
	"path/filepath"
	"strings"

	"github.com/nupm-dev/nupm-core/internal/pathutil"
)

// bareDirName is the shared bare clone's directory name under a sanitized
// (uri) directory.
const bareDirName = "__bare__"

// sanitizeURIPath strips the "scheme://" prefix from uri, splits the
// remainder into path segments, sanitizes each independently with
// pathutil.FilesystemSafe, and drops any segment whose characters are all
// dots (""., "..") to prevent escape attacks.
func sanitizeURIPath(uri string) string {
	rest := uri
	if idx := strings.Index(uri, "://"); idx >= 0 {
		rest = uri[idx+3:]
	}

	segments := strings.Split(rest, "/")
	kept := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" || isAllDots(seg) {
			continue
		}
		kept = append(kept, pathutil.FilesystemSafe(seg))
	}
	return filepath.Join(kept...)
}

func isAllDots(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != '.' {
			return false
		}
	}
	return true
}

// uriDir returns the per-URI directory under <baseDir>/store/git that holds
// the shared bare clone and every ref's worktree.
func uriDir(baseDir, uri string) string {
	return filepath.Join(baseDir, "store", "git", sanitizeURIPath(uri))
}

// BarePath returns the shared bare clone's path for uri.
func BarePath(baseDir, uri string) string {
	return filepath.Join(uriDir(baseDir, uri), bareDirName)
}

// WorktreePath returns the per-ref worktree path for (uri, ref), before any
// path_offset is applied. This is the path computed and returned
// unconditionally under Offline policy.
func WorktreePath(baseDir, uri, ref string) string {
	sanitizedRef := pathutil.FilesystemSafe(ref)
	return filepath.Join(uriDir(baseDir, uri), sanitizedRef)
}
