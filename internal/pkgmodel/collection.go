package pkgmodel

// Collection is an append-only arena of packages referenced by stable
// integer handles. Insertion deduplicates: inserting an
// observationally-equivalent package returns the existing handle instead of
// appending a duplicate entry.
type Collection struct {
	packages []Package
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{}
}

// Insert appends pkg, returning its handle. If an equivalent package already
// exists, its handle is returned instead and no new entry is appended.
func (c *Collection) Insert(pkg Package) Handle {
	for i, existing := range c.packages {
		if equivalent(existing, pkg) {
			return Handle(i)
		}
	}
	c.packages = append(c.packages, pkg)
	return Handle(len(c.packages) - 1)
}

// Get returns an immutable view of the package at h. Panics on an
// out-of-range handle, which would indicate a bug in the caller: handles
// are only ever produced by this Collection and are never invalidated.
func (c *Collection) Get(h Handle) Package {
	return c.packages[h]
}

// Len returns the number of distinct packages in the collection.
func (c *Collection) Len() int {
	return len(c.packages)
}

// Handles returns every handle currently in the collection, in insertion
// order.
func (c *Collection) Handles() []Handle {
	out := make([]Handle, len(c.packages))
	for i := range c.packages {
		out[i] = Handle(i)
	}
	return out
}

// FillNull merges src's fields into the package at h, copying a field from
// src only when the target's own value is absent. Every field is overlaid
// independently of every other, so a package can take its version from one
// source and its git ref from another without either field contaminating
// the other.
//
// ignore_registry and allow_build_commands are never overlaid: a package
// with IgnoreRegistry set is expected to never reach FillNull from registry
// overlay in the first place (pkg/nupm's registry overlay checks this before
// calling in), and a filler must never be able to widen a package's own
// build permission.
func (c *Collection) FillNull(h Handle, src Package) {
	dst := c.packages[h]

	if !dst.HasSource {
		dst.HasSource = src.HasSource
		dst.Source = src.Source
	} else if dst.HasSource && src.HasSource {
		// Overlay independently within Source's own sub-fields: a package
		// that specified only a ref should still pick up the registry's
		// URI, and vice versa.
		if dst.Source.URI == "" {
			dst.Source.URI = src.Source.URI
		}
		if dst.Source.Ref == "" {
			dst.Source.Ref = src.Source.Ref
		}
		if dst.Source.Type == SourceNone {
			dst.Source.Type = src.Source.Type
		}
	}

	if !dst.HasPathOffset && src.HasPathOffset {
		dst.HasPathOffset = true
		dst.PathOffset = src.PathOffset
	}
	if !dst.HasVersion && src.HasVersion {
		dst.HasVersion = true
		dst.Version = src.Version
	}
	if !dst.HasFormat && src.HasFormat {
		dst.HasFormat = true
		dst.Format = src.Format
	}
	if !dst.HasBuildCommand && src.HasBuildCommand {
		dst.HasBuildCommand = true
		dst.BuildCommand = src.BuildCommand
	}
	// AllowBuildCommands is deliberately never overlaid here: a package's
	// own build permission must never be widened by a filler's (e.g. a
	// registry record's) value.
	if len(dst.Depends) == 0 && len(src.Depends) > 0 {
		dst.Depends = append([]Handle(nil), src.Depends...)
	}
	if len(dst.Linkin) == 0 && len(src.Linkin) > 0 {
		dst.Linkin = copyLinkin(src.Linkin)
	}
	if len(dst.NuPlugins) == 0 && len(src.NuPlugins) > 0 {
		dst.NuPlugins = append([]string(nil), src.NuPlugins...)
	}
	if len(dst.NuLibs) == 0 && len(src.NuLibs) > 0 {
		dst.NuLibs = copyStringMap(src.NuLibs)
	}
	if len(dst.Bin) == 0 && len(src.Bin) > 0 {
		dst.Bin = copyStringMap(src.Bin)
	}
	if len(dst.ShellConfig) == 0 && len(src.ShellConfig) > 0 {
		dst.ShellConfig = copyShellConfig(src.ShellConfig)
	}

	c.packages[h] = dst
}

func copyLinkin(m map[string]Handle) map[string]Handle {
	out := make(map[string]Handle, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyShellConfig(m map[ShellConfigKey][]string) map[ShellConfigKey][]string {
	out := make(map[ShellConfigKey][]string, len(m))
	for k, v := range m {
		out[k] = append([]string(nil), v...)
	}
	return out
}
