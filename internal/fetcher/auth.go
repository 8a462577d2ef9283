package fetcher

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cli/go-gh/pkg/auth"
)

// AuthMethod is the resolved credential strategy for a clone/fetch against a
// given URI.
type AuthMethod struct {
	Kind           AuthKind
	Token          string
	PrivateKeyPath string
}

type AuthKind int

const (
	AuthNone AuthKind = iota
	AuthToken
	AuthSSHKey
)

// envTokenVars are checked in order; the first non-empty value wins.
var envTokenVars = []string{"GITHUB_TOKEN", "GIT_TOKEN"}

// sshKeyNames are checked, in order, under ~/.ssh.
var sshKeyNames = []string{"id_ed25519", "id_rsa"}

// ResolveAuth determines the appropriate authentication method for a source
// URI by walking a priority chain: an env token first, then an SSH key for
// SSH-shaped URIs, then the gh CLI's stored token for GitHub HTTPS URIs, and
// finally no auth for public repositories.
func ResolveAuth(uri string) AuthMethod {
	for _, candidate := range []func(string) (AuthMethod, bool){
		envToken,
		sshKeyForURI,
		githubCLIToken,
	} {
		if method, ok := candidate(uri); ok {
			return method
		}
	}
	return AuthMethod{Kind: AuthNone}
}

func envToken(string) (AuthMethod, bool) {
	for _, name := range envTokenVars {
		if token := os.Getenv(name); token != "" {
			return AuthMethod{Kind: AuthToken, Token: token}, true
		}
	}
	return AuthMethod{}, false
}

func sshKeyForURI(uri string) (AuthMethod, bool) {
	if !isSSHURL(uri) {
		return AuthMethod{}, false
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return AuthMethod{}, false
	}
	keyPath, ok := findSSHKey(homeDir)
	if !ok {
		return AuthMethod{}, false
	}
	return AuthMethod{Kind: AuthSSHKey, PrivateKeyPath: keyPath}, true
}

func githubCLIToken(uri string) (AuthMethod, bool) {
	if isSSHURL(uri) || !isGitHubURL(uri) {
		return AuthMethod{}, false
	}
	token, err := auth.TokenForHost("github.com")
	if err != nil || token == "" {
		return AuthMethod{}, false
	}
	return AuthMethod{Kind: AuthToken, Token: token}, true
}

func isSSHURL(uri string) bool {
	return strings.HasPrefix(uri, "git@") || strings.HasPrefix(uri, "ssh://")
}

func isGitHubURL(uri string) bool {
	return strings.Contains(uri, "github.com")
}

// findSSHKey returns the first existing key under homeDir/.ssh among
// sshKeyNames.
func findSSHKey(homeDir string) (string, bool) {
	for _, name := range sshKeyNames {
		path := filepath.Join(homeDir, ".ssh", name)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}
