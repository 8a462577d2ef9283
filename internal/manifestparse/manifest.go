// Package manifestparse walks a structured document (decoded JSON: nested
// maps/arrays/strings/bools) into packages and dependency edges
// materialized in a pkgmodel.Collection.
package manifestparse

import (
	"fmt"

	"github.com/nupm-dev/nupm-core/internal/coreerr"
	"github.com/nupm-dev/nupm-core/internal/pkgmodel"
	"github.com/nupm-dev/nupm-core/internal/version"
)

var packageFormats = map[string]pkgmodel.PackageFormat{
	"numng":     pkgmodel.FormatNumng,
	"nupm":      pkgmodel.FormatNupm,
	"packer.nu": pkgmodel.FormatPacker,
	"packer":    pkgmodel.FormatPacker,
}

var shellConfigKeys = map[string]pkgmodel.ShellConfigKey{
	"source":     pkgmodel.ShellConfigSource,
	"use":        pkgmodel.ShellConfigUse,
	"use_all":    pkgmodel.ShellConfigUseAll,
	"source_env": pkgmodel.ShellConfigSourceEnv,
}

// ParseResult is the outcome of parsing a root manifest document.
type ParseResult struct {
	Root             pkgmodel.Handle
	RegistryPackages []pkgmodel.Handle
}

// ParseRoot parses the root manifest document into collection, returning the
// root package's handle and the handles of any top-level "registry" entries.
// Registry packages have depends/linkin stripped before use, since
// registries are pure locators, not dependency roots.
func ParseRoot(doc map[string]any, collection *pkgmodel.Collection) (ParseResult, error) {
	root, err := parsePackage(doc, collection, pkgmodel.Unset)
	if err != nil {
		return ParseResult{}, err
	}

	var registryHandles []pkgmodel.Handle
	if rawRegistry, ok := doc["registry"]; ok {
		entries, err := asPackageList(rawRegistry)
		if err != nil {
			return ParseResult{}, fmt.Errorf("registry: %w", err)
		}
		for _, entry := range entries {
			stripped, err := stripDependsAndLinkin(entry)
			if err != nil {
				return ParseResult{}, fmt.Errorf("registry: %w", err)
			}
			h, err := parsePackage(stripped, collection, pkgmodel.Unset)
			if err != nil {
				return ParseResult{}, err
			}
			registryHandles = append(registryHandles, h)
		}
	}

	return ParseResult{Root: root, RegistryPackages: registryHandles}, nil
}

// stripDependsAndLinkin returns a shallow copy of raw with "depends" and
// "linkin" removed, for registry-declared packages.
func stripDependsAndLinkin(raw any) (map[string]any, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, coreerr.InvalidManifestField{Field: "registry", Value: fmt.Sprintf("%v", raw)}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k == "depends" || k == "linkin" {
			continue
		}
		out[k] = v
	}
	return out, nil
}

// ParsePackageDoc parses a single package-shaped document (as used by
// internal/registrycore for registry record files) into collection,
// threading inheritedAllow the same way a nested depends/linkin entry
// would. Exported for callers, such as the registry backend, that parse
// package documents outside the context of a root manifest.
func ParsePackageDoc(doc map[string]any, collection *pkgmodel.Collection, inheritedAllow pkgmodel.TriState) (pkgmodel.Handle, error) {
	return parsePackageMap(doc, collection, inheritedAllow)
}

// parsePackage parses a package-shaped value (a mapping, or a bare string
// that becomes a {name}-only package) into collection, returning its
// handle. inheritedAllow is the allow_build_commands state inherited from
// an ancestor package; once False, it propagates to every descendant
// regardless of what the descendant itself declares.
func parsePackage(raw any, collection *pkgmodel.Collection, inheritedAllow pkgmodel.TriState) (pkgmodel.Handle, error) {
	switch v := raw.(type) {
	case string:
		pkg := pkgmodel.New()
		pkg.Name = v
		pkg.AllowBuildCommands = inheritedAllow
		return collection.Insert(pkg), nil
	case map[string]any:
		return parsePackageMap(v, collection, inheritedAllow)
	default:
		return 0, coreerr.InvalidManifestField{Field: "package", Value: fmt.Sprintf("%v", raw)}
	}
}

func parsePackageMap(m map[string]any, collection *pkgmodel.Collection, inheritedAllow pkgmodel.TriState) (pkgmodel.Handle, error) {
	pkg := pkgmodel.New()

	name, err := optionalString(m, "name")
	if err != nil {
		return 0, err
	}
	pkg.Name = name

	gitRef, err := optionalString(m, "git_ref")
	if err != nil {
		return 0, err
	}
	sourceURI, err := optionalString(m, "source_uri")
	if err != nil {
		return 0, err
	}
	if _, hasURI := m["source_uri"]; hasURI {
		pkg.HasSource = true
		pkg.Source.Type = pkgmodel.SourceGit
		pkg.Source.URI = sourceURI
	}
	if _, hasRef := m["git_ref"]; hasRef {
		pkg.HasSource = true
		pkg.Source.Ref = gitRef
	}
	if pkg.HasSource && pkg.Source.Ref == "" {
		pkg.Source.Ref = "main"
	}

	if rawSourceType, ok := m["source_type"]; ok {
		s, ok := rawSourceType.(string)
		if !ok || s != "git" {
			return 0, coreerr.InvalidManifestField{Pkg: pkg.Name, Field: "source_type", Value: fmt.Sprintf("%v", rawSourceType)}
		}
		pkg.HasSource = true
		pkg.Source.Type = pkgmodel.SourceGit
	}

	pathOffset, err := optionalString(m, "path_offset")
	if err != nil {
		return 0, err
	}
	if _, ok := m["path_offset"]; ok {
		pkg.HasPathOffset = true
		pkg.PathOffset = pathOffset
	}

	buildCommand, err := optionalString(m, "build_command")
	if err != nil {
		return 0, err
	}
	if _, ok := m["build_command"]; ok {
		pkg.HasBuildCommand = true
		pkg.BuildCommand = buildCommand
	}

	if rawFormat, ok := m["package_format"]; ok {
		s, ok := rawFormat.(string)
		if !ok {
			return 0, coreerr.InvalidManifestField{Pkg: pkg.Name, Field: "package_format", Value: fmt.Sprintf("%v", rawFormat)}
		}
		format, known := packageFormats[s]
		if !known {
			return 0, coreerr.InvalidManifestField{Pkg: pkg.Name, Field: "package_format", Value: s}
		}
		pkg.HasFormat = true
		pkg.Format = format
	}

	if rawIgnore, ok := m["ignore_registry"]; ok {
		b, ok := rawIgnore.(bool)
		if !ok {
			return 0, coreerr.InvalidManifestField{Pkg: pkg.Name, Field: "ignore_registry", Value: fmt.Sprintf("%v", rawIgnore)}
		}
		pkg.IgnoreRegistry = b
	}

	// allow_build_commands: inherit first, then apply this package's own
	// explicit value. A False ancestor is sticky and wins regardless of
	// what this level declares.
	pkg.AllowBuildCommands = inheritedAllow
	if rawAllow, ok := m["allow_build_commands"]; ok {
		b, ok := rawAllow.(bool)
		if !ok {
			return 0, coreerr.InvalidManifestField{Pkg: pkg.Name, Field: "allow_build_commands", Value: fmt.Sprintf("%v", rawAllow)}
		}
		if inheritedAllow != pkgmodel.False {
			if b {
				pkg.AllowBuildCommands = pkgmodel.True
			} else {
				pkg.AllowBuildCommands = pkgmodel.False
			}
		}
	}
	effectiveAllowForChildren := pkg.AllowBuildCommands

	if rawVersion, ok := m["version"]; ok {
		s, ok := rawVersion.(string)
		if !ok {
			return 0, coreerr.InvalidManifestField{Pkg: pkg.Name, Field: "version", Value: fmt.Sprintf("%v", rawVersion)}
		}
		v, err := version.Parse(s)
		if err != nil {
			return 0, err
		}
		pkg.HasVersion = true
		pkg.Version = v
	}

	if rawPlugins, ok := m["nu_plugins"]; ok {
		list, err := stringArray(rawPlugins)
		if err != nil {
			return 0, fmt.Errorf("package %q: nu_plugins: %w", pkg.Name, err)
		}
		pkg.NuPlugins = list
	}

	if rawLibs, ok := m["nu_libs"]; ok {
		sm, err := stringStringMap(rawLibs)
		if err != nil {
			return 0, fmt.Errorf("package %q: nu_libs: %w", pkg.Name, err)
		}
		pkg.NuLibs = sm
	}

	if rawBin, ok := m["bin"]; ok {
		sm, err := stringStringMap(rawBin)
		if err != nil {
			return 0, fmt.Errorf("package %q: bin: %w", pkg.Name, err)
		}
		pkg.Bin = sm
	}

	if rawShellConfig, ok := m["shell_config"]; ok {
		sc, err := parseShellConfig(rawShellConfig)
		if err != nil {
			return 0, fmt.Errorf("package %q: shell_config: %w", pkg.Name, err)
		}
		pkg.ShellConfig = sc
	}

	// Parse children before inserting this package itself: depends/linkin
	// targets only need to reference earlier-or-concurrently-inserted
	// entries, never this package's own not-yet-existing handle, so there
	// is no ordering hazard in resolving them first and building the
	// final, complete record in one Insert call.
	if rawDepends, ok := m["depends"]; ok {
		deps, err := parseDepends(rawDepends, collection, effectiveAllowForChildren)
		if err != nil {
			return 0, err
		}
		pkg.Depends = deps
	}

	if rawLinkin, ok := m["linkin"]; ok {
		linkin, err := parseLinkin(rawLinkin, collection, effectiveAllowForChildren)
		if err != nil {
			return 0, err
		}
		pkg.Linkin = linkin
	}

	return collection.Insert(pkg), nil
}

func parseDepends(raw any, collection *pkgmodel.Collection, inheritedAllow pkgmodel.TriState) ([]pkgmodel.Handle, error) {
	items, err := asPackageList(raw)
	if err != nil {
		return nil, fmt.Errorf("depends: %w", err)
	}
	handles := make([]pkgmodel.Handle, 0, len(items))
	for _, item := range items {
		h, err := parsePackage(item, collection, inheritedAllow)
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

func parseLinkin(raw any, collection *pkgmodel.Collection, inheritedAllow pkgmodel.TriState) (map[string]pkgmodel.Handle, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, coreerr.InvalidManifestField{Field: "linkin", Value: fmt.Sprintf("%v", raw)}
	}
	out := make(map[string]pkgmodel.Handle, len(m))
	for dest, rawPkg := range m {
		h, err := parsePackage(rawPkg, collection, inheritedAllow)
		if err != nil {
			return nil, fmt.Errorf("linkin[%q]: %w", dest, err)
		}
		out[dest] = h
	}
	return out, nil
}

func parseShellConfig(raw any) (map[pkgmodel.ShellConfigKey][]string, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, coreerr.InvalidManifestField{Field: "shell_config", Value: fmt.Sprintf("%v", raw)}
	}
	out := make(map[pkgmodel.ShellConfigKey][]string, len(m))
	for k, v := range m {
		key, known := shellConfigKeys[k]
		if !known {
			return nil, coreerr.InvalidManifestField{Field: "shell_config", Value: k}
		}
		list, err := stringArray(v)
		if err != nil {
			return nil, err
		}
		out[key] = list
	}
	return out, nil
}

// stringArray accepts either a single string (wrapped to a one-element
// slice) or an array of strings.
func stringArray(raw any) ([]string, error) {
	switch v := raw.(type) {
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, coreerr.InvalidManifestField{Field: "array element", Value: fmt.Sprintf("%v", item)}
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, coreerr.InvalidManifestField{Field: "array", Value: fmt.Sprintf("%v", raw)}
	}
}

func stringStringMap(raw any) (map[string]string, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, coreerr.InvalidManifestField{Field: "mapping", Value: fmt.Sprintf("%v", raw)}
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		s, ok := v.(string)
		if !ok {
			return nil, coreerr.InvalidManifestField{Field: k, Value: fmt.Sprintf("%v", v)}
		}
		out[k] = s
	}
	return out, nil
}

// asPackageList normalizes depends/registry's "single string, single
// mapping, or array of either" shape into a slice.
func asPackageList(raw any) ([]any, error) {
	switch v := raw.(type) {
	case string, map[string]any:
		return []any{v}, nil
	case []any:
		return v, nil
	default:
		return nil, coreerr.InvalidManifestField{Field: "list", Value: fmt.Sprintf("%v", raw)}
	}
}

func optionalString(m map[string]any, key string) (string, error) {
	raw, ok := m[key]
	if !ok {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", coreerr.InvalidManifestField{Field: key, Value: fmt.Sprintf("%v", raw)}
	}
	return s, nil
}
