package version_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nupm-dev/nupm-core/internal/version"
)

func u16(n uint16) *uint16 { return &n }

func TestParse_LatestAndFallback(t *testing.T) {
	v, err := version.Parse("")
	require.NoError(t, err)
	assert.Equal(t, version.KindLatest, v.Kind)

	v, err = version.Parse("latest")
	require.NoError(t, err)
	assert.Equal(t, version.KindLatest, v.Kind)

	v, err = version.Parse("_")
	require.NoError(t, err)
	assert.Equal(t, version.KindRegistryFallback, v.Kind)
}

func TestParse_Custom(t *testing.T) {
	v, err := version.Parse("git")
	require.NoError(t, err)
	assert.Equal(t, version.KindCustom, v.Kind)
	assert.Equal(t, "git", v.Custom)
}

func TestParse_Normal(t *testing.T) {
	v, err := version.Parse("1.2.3")
	require.NoError(t, err)
	assert.Equal(t, version.KindNormal, v.Kind)
	assert.Equal(t, version.OpEq, v.Operator)
	assert.Equal(t, uint16(1), v.Major.Value)
	assert.True(t, v.Minor.Present)
	assert.Equal(t, uint16(2), v.Minor.Value)
	assert.True(t, v.Patch.Present)
	assert.Equal(t, uint16(3), v.Patch.Value)

	v, err = version.Parse("^1.2")
	require.NoError(t, err)
	assert.Equal(t, version.OpCar, v.Operator)
	assert.False(t, v.Patch.Present)
}

func TestParse_Rejects(t *testing.T) {
	for _, bad := range []string{"1.2.3.4", ">>1", "1.2a", "1.2.3a"} {
		_, err := version.Parse(bad)
		assert.Error(t, err, bad)
	}
}

func TestParse_RenderRoundTrip(t *testing.T) {
	cases := []version.Version{
		version.Normal(version.OpEq, 1, nil, nil),
		version.Normal(version.OpTil, 1, u16(2), nil),
		version.Normal(version.OpCar, 1, u16(2), u16(3)),
		version.Normal(version.OpLt, 0, u16(9), u16(1)),
	}
	for _, v := range cases {
		parsed, err := version.Parse(v.String())
		require.NoError(t, err)
		assert.Equal(t, v.Operator, parsed.Operator)
		assert.Equal(t, v.Major, parsed.Major)
		assert.Equal(t, v.Minor, parsed.Minor)
		assert.Equal(t, v.Patch, parsed.Patch)
	}
}

func mustParse(t *testing.T, s string) version.Version {
	t.Helper()
	v, err := version.Parse(s)
	require.NoError(t, err)
	return v
}

func TestGreaterThan(t *testing.T) {
	assert.True(t, version.Latest().GreaterThan(mustParse(t, "9.9.9")))
	assert.False(t, mustParse(t, "9.9.9").GreaterThan(version.Latest()))
	assert.True(t, mustParse(t, "2.0.0").GreaterThan(mustParse(t, "1.9.9")))
	assert.True(t, mustParse(t, "1.3.0").GreaterThan(mustParse(t, "1.2.9")))
	assert.True(t, mustParse(t, "1.2.4").GreaterThan(mustParse(t, "1.2.3")))
	assert.False(t, mustParse(t, "1.2").GreaterThan(mustParse(t, "1.2.3")))
	assert.False(t, version.Custom("git").GreaterThan(mustParse(t, "0.0.0")))
}

func TestMatches_Table(t *testing.T) {
	tests := []struct {
		pattern   string
		candidate string
		want      bool
	}{
		{"=1.2.3", "1.2.3", true},
		{"=1.2.3", "1.2.4", false},
		{"=1.2", "1.2.9", true}, // pattern has no patch, so only major and minor are compared
		{"~1.2.3", "1.2.3", true},
		{"~1.2.3", "1.2.4", true},
		{"~1.2.3", "1.3.0", false},
		{"~1.2.3", "1.2.2", false},
		{"^1.2.3", "1.2.3", true},
		{"^1.2.3", "1.2.4", true},
		{"^1.2.3", "1.3.0", true},
		{"^1.2.3", "1.2.2", false},
		{"^1.2.3", "2.0.0", false},
		{"<1.2.3", "1.2.2", true},
		{"<1.2.3", "1.2.3", false},
		{">1.2.3", "1.2.4", true},
		{">1.2.3", "1.2.3", false},
		{"latest", "1.2.3", true},
		{"latest", "git", false},
		{"git", "git", true},
		{"git", "1.2.3", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"_"+tt.candidate, func(t *testing.T) {
			pattern := mustParse(t, tt.pattern)
			candidate := mustParse(t, tt.candidate)
			assert.Equal(t, tt.want, pattern.Matches(candidate))
		})
	}
}
