// Package pkgmodel implements the package data model: the Package record
// with every field optional to permit later merging, and the Handle type
// used to reference packages within a Collection.
package pkgmodel

import "github.com/nupm-dev/nupm-core/internal/version"

// Handle is a stable, never-reused, never-invalidated reference into a
// Collection's arena.
type Handle int

// SourceType discriminates Package.Source. Only SourceGit is defined; any
// other source kind is out of scope.
type SourceType int

const (
	SourceNone SourceType = iota
	SourceGit
)

// Source is a tagged variant; only git is implemented.
type Source struct {
	Type SourceType
	URI  string
	Ref  string // branch, tag, or commit-ish; default "main"
}

// PackageFormat is the closed set of recognized package formats. The
// parser accepts every value in the set; the scheduler does not consult
// Format, so every package is materialized the same way whatever format
// it declares.
type PackageFormat int

const (
	FormatUnset PackageFormat = iota
	FormatNumng
	FormatNupm
	FormatPacker
)

// TriState distinguishes "unset" from an explicit true/false. Used for
// allow_build_commands, where unset must never collapse to false during
// parsing.
type TriState int

const (
	Unset TriState = iota
	True
	False
)

// ShellConfigKey is the closed set of recognized internal/manifestparse
// shell_config keys.
type ShellConfigKey string

const (
	ShellConfigSource    ShellConfigKey = "source"
	ShellConfigUse       ShellConfigKey = "use"
	ShellConfigUseAll    ShellConfigKey = "use_all"
	ShellConfigSourceEnv ShellConfigKey = "source_env"
)

// Package is the mutable-until-scheduling record. Every field
// is optional (zero value means "unset") except where a bool field uses a
// *bool or TriState to distinguish unset from false.
type Package struct {
	Name string

	HasSource bool
	Source    Source

	HasPathOffset bool
	PathOffset    string

	HasVersion bool
	Version    version.Version

	HasFormat bool
	Format    PackageFormat

	IgnoreRegistry bool

	Depends []Handle

	// Linkin maps a destination path spec ("A" or "A:B") to the dependency
	// package supplying the linked content.
	Linkin map[string]Handle

	NuPlugins []string
	NuLibs    map[string]string
	Bin       map[string]string

	ShellConfig map[ShellConfigKey][]string

	HasBuildCommand bool
	BuildCommand    string

	AllowBuildCommands TriState
}

// New returns a zero Package with initialized maps, ready for field-by-field
// population by the manifest parser.
func New() Package {
	return Package{
		Linkin:      make(map[string]Handle),
		NuLibs:      make(map[string]string),
		Bin:         make(map[string]string),
		ShellConfig: make(map[ShellConfigKey]([]string)),
	}
}

// equivalent reports whether two packages have the same observable fields,
// for Collection's insertion-time deduplication.
func equivalent(a, b Package) bool {
	if a.Name != b.Name || a.HasSource != b.HasSource || a.Source != b.Source {
		return false
	}
	if a.HasPathOffset != b.HasPathOffset || a.PathOffset != b.PathOffset {
		return false
	}
	if a.HasVersion != b.HasVersion || a.Version.String() != b.Version.String() {
		return false
	}
	if a.HasFormat != b.HasFormat || a.Format != b.Format {
		return false
	}
	if a.IgnoreRegistry != b.IgnoreRegistry {
		return false
	}
	if a.HasBuildCommand != b.HasBuildCommand || a.BuildCommand != b.BuildCommand {
		return false
	}
	if a.AllowBuildCommands != b.AllowBuildCommands {
		return false
	}
	if !handlesEqual(a.Depends, b.Depends) {
		return false
	}
	if !linkinEqual(a.Linkin, b.Linkin) {
		return false
	}
	if !stringsEqual(a.NuPlugins, b.NuPlugins) {
		return false
	}
	if !stringMapEqual(a.NuLibs, b.NuLibs) || !stringMapEqual(a.Bin, b.Bin) {
		return false
	}
	if !shellConfigEqual(a.ShellConfig, b.ShellConfig) {
		return false
	}
	return true
}

func handlesEqual(a, b []Handle) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func linkinEqual(a, b map[string]Handle) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stringMapEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func shellConfigEqual(a, b map[ShellConfigKey][]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok || !stringsEqual(v, bv) {
			return false
		}
	}
	return true
}
