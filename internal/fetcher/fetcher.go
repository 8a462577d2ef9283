// Package fetcher maps a (uri, ref) pair to an on-disk worktree under a
// content-addressed store directory, honoring a tri-state connection
// policy. go-git is wired for the parts of the workflow it models well
// (the shared bare clone, and fetch/reset against an already-checked-out
// worktree); git's multi-worktree feature has no go-git equivalent, so
// worktree add, the short-hash unshallow retry, and the
// untracked-file clean step shell out through internal/pathutil.TryRunCommand
// instead.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"github.com/nupm-dev/nupm-core/internal/coreerr"
	"github.com/nupm-dev/nupm-core/internal/corelog"
	"github.com/nupm-dev/nupm-core/internal/pathutil"
)

// ConnectionPolicy is the tri-state selector over offline / download-if-
// missing / update-when-present for all network operations. Every fetcher
// call receives it explicitly; there is no implicit global.
type ConnectionPolicy int

const (
	// Offline returns the computed worktree path without any I/O check.
	Offline ConnectionPolicy = iota
	// Download ensures the bare clone and the ref's worktree exist, but
	// never refreshes an existing worktree.
	Download
	// Update does everything Download does, plus refreshes an existing
	// worktree: clean, fetch, hard-reset.
	Update
)

// Fetcher resolves (uri, ref) pairs to on-disk worktree paths.
type Fetcher struct {
	baseDir string
	log     corelog.Logger
}

// New creates a Fetcher rooted at baseDir (<base_dir>/store/git/...).
func New(baseDir string, log corelog.Logger) *Fetcher {
	if log == nil {
		log = corelog.Noop{}
	}
	return &Fetcher{baseDir: baseDir, log: log}
}

// Resolve computes the worktree path for (uri, ref) and, depending on
// policy, ensures it exists and is up to date.
func (f *Fetcher) Resolve(ctx context.Context, uri, ref string, policy ConnectionPolicy) (string, error) {
	if ref == "" {
		ref = "main"
	}

	worktreePath := WorktreePath(f.baseDir, uri, ref)

	if policy == Offline {
		f.log.Debug(ctx, "fetcher_offline_path_computed", "uri", uri, "ref", ref, "path", worktreePath)
		return worktreePath, nil
	}

	barePath := BarePath(f.baseDir, uri)
	auth := ResolveAuth(uri)

	if err := f.ensureBareClone(ctx, uri, barePath, auth); err != nil {
		return "", err
	}

	existed := dirExists(worktreePath)
	if !existed {
		if err := f.addWorktree(ctx, barePath, worktreePath, ref, uri, auth); err != nil {
			return "", err
		}
		f.log.Info(ctx, "worktree_created", "uri", uri, "ref", ref, "path", worktreePath)
	}

	if policy == Update && existed {
		if err := f.refreshWorktree(ctx, worktreePath, ref, auth); err != nil {
			return "", err
		}
		f.log.Info(ctx, "worktree_updated", "uri", uri, "ref", ref, "path", worktreePath)
	}

	return worktreePath, nil
}

func (f *Fetcher) ensureBareClone(ctx context.Context, uri, barePath string, auth AuthMethod) error {
	if dirExists(barePath) {
		return nil
	}

	f.log.Debug(ctx, "cloning_bare_repository", "uri", uri, "path", barePath)

	gitAuth, err := toTransportAuth(auth)
	if err != nil {
		return err
	}

	_, err = git.PlainCloneContext(ctx, barePath, true, &git.CloneOptions{
		URL:   uri,
		Depth: 1,
		Auth:  gitAuth,
	})
	if err != nil {
		return coreerr.IOError{Op: "clone", Path: barePath, Err: err}
	}
	return nil
}

// addWorktree runs `git worktree add` against the bare clone. If the
// shallow fetch underlying the initial clone left the ref unreachable (a
// common failure for short commit hashes, which cannot be resolved against
// a depth-1 shallow history) and ref looks like a hex commit id, the bare
// clone is unshallowed and the add is retried once.
func (f *Fetcher) addWorktree(ctx context.Context, barePath, worktreePath, ref, uri string, auth AuthMethod) error {
	_, err := pathutil.TryRunCommand(ctx, barePath, "git", "worktree", "add", worktreePath, ref)
	if err == nil {
		return nil
	}

	if !isAllHex(ref) {
		return err
	}

	f.log.Warn(ctx, "worktree_add_failed_attempting_unshallow", "uri", uri, "ref", ref, "error", err.Error())
	if _, unshallowErr := pathutil.TryRunCommand(ctx, barePath, "git", "fetch", "--unshallow"); unshallowErr != nil {
		return err
	}

	_, err = pathutil.TryRunCommand(ctx, barePath, "git", "worktree", "add", worktreePath, ref)
	return err
}

// refreshWorktree cleans untracked files (preserving "target"), fetches
// origin/<ref>, and hard-resets to FETCH_HEAD.
func (f *Fetcher) refreshWorktree(ctx context.Context, worktreePath, ref string, auth AuthMethod) error {
	if _, err := pathutil.TryRunCommand(ctx, worktreePath, "git", "clean", "-xfd", "-e", "target"); err != nil {
		return err
	}

	repo, err := git.PlainOpen(worktreePath)
	if err != nil {
		return coreerr.IOError{Op: "open", Path: worktreePath, Err: err}
	}

	gitAuth, err := toTransportAuth(auth)
	if err != nil {
		return err
	}

	refSpec := config.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/origin/%s", ref, ref))
	fetchErr := repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: "origin",
		RefSpecs:   []config.RefSpec{refSpec},
		Auth:       gitAuth,
		Force:      true,
	})
	if fetchErr != nil && !errors.Is(fetchErr, git.NoErrAlreadyUpToDate) {
		// Fall back to a plain `git fetch origin <ref>` + hard reset via
		// subprocess: go-git's refspec-based Fetch does not populate
		// FETCH_HEAD the way the git CLI does, and arbitrary commit-ish
		// refs (tags, short hashes) don't always map to a clean refspec.
		if _, err := pathutil.TryRunCommand(ctx, worktreePath, "git", "fetch", "origin", ref); err != nil {
			return err
		}
		_, err := pathutil.TryRunCommand(ctx, worktreePath, "git", "reset", "--hard", "FETCH_HEAD")
		return err
	}

	head, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", ref), true)
	if err != nil {
		_, err := pathutil.TryRunCommand(ctx, worktreePath, "git", "reset", "--hard", "FETCH_HEAD")
		return err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return coreerr.IOError{Op: "worktree", Path: worktreePath, Err: err}
	}
	if err := wt.Reset(&git.ResetOptions{Commit: head.Hash(), Mode: git.HardReset}); err != nil {
		return coreerr.IOError{Op: "reset", Path: worktreePath, Err: err}
	}
	return nil
}

func toTransportAuth(auth AuthMethod) (transport.AuthMethod, error) {
	switch auth.Kind {
	case AuthToken:
		return &githttp.BasicAuth{Username: "x-access-token", Password: auth.Token}, nil
	case AuthSSHKey:
		keys, err := gitssh.NewPublicKeysFromFile("git", auth.PrivateKeyPath, "")
		if err != nil {
			return nil, coreerr.IOError{Op: "load-ssh-key", Path: auth.PrivateKeyPath, Err: err}
		}
		return keys, nil
	default:
		return nil, nil
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isAllHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		isHex := (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
		if !isHex {
			return false
		}
	}
	return true
}

// StatOffline reports whether the worktree for (uri, ref) already exists on
// disk, used by Offline-policy callers that must surface
// OfflineResourceUnavailable themselves when they need the path to exist.
func (f *Fetcher) StatOffline(uri, ref string) (string, bool) {
	if ref == "" {
		ref = "main"
	}
	path := WorktreePath(f.baseDir, uri, ref)
	return path, dirExists(path)
}

// RequireOffline is a convenience for callers that resolved a path under
// Offline policy and now need to use it: it returns
// coreerr.OfflineResourceUnavailable if nothing was ever fetched there.
func RequireOffline(path string) error {
	if !dirExists(path) {
		return coreerr.OfflineResourceUnavailable{Path: path}
	}
	return nil
}
