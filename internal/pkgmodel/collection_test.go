package pkgmodel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nupm-dev/nupm-core/internal/pkgmodel"
)

func TestCollection_InsertAndGet(t *testing.T) {
	c := pkgmodel.NewCollection()
	pkg := pkgmodel.New()
	pkg.Name = "a"

	h := c.Insert(pkg)
	assert.Equal(t, "a", c.Get(h).Name)
	assert.Equal(t, 1, c.Len())
}

func TestCollection_DeduplicatesEquivalentPackages(t *testing.T) {
	c := pkgmodel.NewCollection()
	a := pkgmodel.New()
	a.Name = "a"
	b := pkgmodel.New()
	b.Name = "a"

	h1 := c.Insert(a)
	h2 := c.Insert(b)
	assert.Equal(t, h1, h2)
	assert.Equal(t, 1, c.Len())
}

func TestCollection_NonEquivalentPackagesGetDistinctHandles(t *testing.T) {
	c := pkgmodel.NewCollection()
	a := pkgmodel.New()
	a.Name = "a"
	b := pkgmodel.New()
	b.Name = "b"

	h1 := c.Insert(a)
	h2 := c.Insert(b)
	assert.NotEqual(t, h1, h2)
	assert.Equal(t, 2, c.Len())
}

func TestCollection_HandleNeverReused(t *testing.T) {
	c := pkgmodel.NewCollection()
	a := pkgmodel.New()
	a.Name = "a"
	h1 := c.Insert(a)

	b := pkgmodel.New()
	b.Name = "b"
	h2 := c.Insert(b)

	// Re-inserting an equivalent "a" must still resolve to h1, not collide
	// with h2 or get a fresh handle.
	again := pkgmodel.New()
	again.Name = "a"
	h3 := c.Insert(again)

	assert.Equal(t, h1, h3)
	assert.NotEqual(t, h2, h3)
}

func TestCollection_FillNull_FillsOnlyAbsentFields(t *testing.T) {
	c := pkgmodel.NewCollection()
	pkg := pkgmodel.New()
	pkg.Name = "b"
	pkg.HasPathOffset = true
	pkg.PathOffset = "explicit"
	h := c.Insert(pkg)

	overlay := pkgmodel.New()
	overlay.HasSource = true
	overlay.Source = pkgmodel.Source{Type: pkgmodel.SourceGit, URI: "scheme://h/b", Ref: "main"}
	overlay.HasPathOffset = true
	overlay.PathOffset = "ignored-because-already-set"

	c.FillNull(h, overlay)

	got := c.Get(h)
	assert.True(t, got.HasSource)
	assert.Equal(t, "scheme://h/b", got.Source.URI)
	assert.Equal(t, "explicit", got.PathOffset, "existing field must not be overwritten")
}

func TestCollection_FillNull_AllowBuildCommandsStickyFalse(t *testing.T) {
	c := pkgmodel.NewCollection()
	pkg := pkgmodel.New()
	pkg.AllowBuildCommands = pkgmodel.False
	h := c.Insert(pkg)

	overlay := pkgmodel.New()
	overlay.AllowBuildCommands = pkgmodel.True

	c.FillNull(h, overlay)
	assert.Equal(t, pkgmodel.False, c.Get(h).AllowBuildCommands, "explicit false must not be overlaid away")
}
