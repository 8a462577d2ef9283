// Package registrycore implements the registry backend: given a registry
// checkout root, a package name, and a version pattern, it produces at most
// one Package record, parsed via internal/manifestparse.
package registrycore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nupm-dev/nupm-core/internal/coreerr"
	"github.com/nupm-dev/nupm-core/internal/manifestparse"
	"github.com/nupm-dev/nupm-core/internal/pkgmodel"
	"github.com/nupm-dev/nupm-core/internal/version"
)

// ErrNotFound indicates no candidate in the registry file matched the
// requested pattern.
var ErrNotFound = fmt.Errorf("registry: no matching version found")

// Lookup reads <root>/<name>.json, selects the best version matching
// pattern, parses it (and any "_" fallback record) into collection, and
// returns the resulting package's handle.
func Lookup(root, name string, pattern version.Version, collection *pkgmodel.Collection, inheritedAllow pkgmodel.TriState) (pkgmodel.Handle, error) {
	path, err := canonicalRegistryPath(root, name)
	if err != nil {
		return 0, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, coreerr.IOError{Op: "read", Path: path, Err: err}
	}

	var records map[string]map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		return 0, coreerr.InvalidJSON{Path: path, Err: err}
	}

	type candidate struct {
		version version.Version
		doc     map[string]any
	}

	var best *candidate
	var fallback map[string]any

	for key, doc := range records {
		v, err := version.Parse(key)
		if err != nil {
			return 0, coreerr.InvalidRegistryFormat{Path: path, Reason: fmt.Sprintf("key %q: %v", key, err)}
		}
		if v.Kind == version.KindRegistryFallback {
			fallback = doc
			continue
		}
		if !pattern.Matches(v) {
			continue
		}
		if best == nil || v.GreaterThan(best.version) {
			best = &candidate{version: v, doc: doc}
		}
	}

	if best == nil {
		return 0, ErrNotFound
	}

	handle, err := manifestparse.ParsePackageDoc(best.doc, collection, inheritedAllow)
	if err != nil {
		return 0, err
	}

	if fallback != nil {
		fallbackHandle, err := manifestparse.ParsePackageDoc(fallback, collection, inheritedAllow)
		if err != nil {
			return 0, err
		}
		collection.FillNull(handle, collection.Get(fallbackHandle))
	}

	return handle, nil
}

// canonicalRegistryPath resolves <root>/<name>.json and verifies the result
// stays under root, guarding against ".." escape attempts in name.
func canonicalRegistryPath(root, name string) (string, error) {
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return "", coreerr.Security{Path: name, Reason: "registry name must not contain path separators or \"..\""}
	}

	joined := filepath.Join(root, name+".json")
	cleanRoot := filepath.Clean(root)
	cleanJoined := filepath.Clean(joined)

	rel, err := filepath.Rel(cleanRoot, cleanJoined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", coreerr.Security{Path: name, Reason: "registry name escapes registry root"}
	}
	return cleanJoined, nil
}
