// Package version implements the version-expression algebra: parsing,
// total ordering over Normal/Latest values, and pattern matching.
package version

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nupm-dev/nupm-core/internal/coreerr"
)

// Operator is the comparison operator prefixing a Normal version expression.
type Operator byte

const (
	OpEq  Operator = '='
	OpTil Operator = '~'
	OpCar Operator = '^'
	OpLt  Operator = '<'
	OpGt  Operator = '>'
)

// Kind discriminates the Version sum type.
type Kind int

const (
	// KindLatest is the literal "latest" or an empty string.
	KindLatest Kind = iota
	// KindRegistryFallback is the literal "_" sentinel used by registry files.
	KindRegistryFallback
	// KindCustom is a free string with no ASCII digit, e.g. "git".
	KindCustom
	// KindNormal is a {major, minor?, patch?} version with an operator.
	KindNormal
)

// Component holds an optional version component: present distinguishes an
// explicit 0 from an absent ("unknown") component.
type Component struct {
	Value   uint16
	Present bool
}

func present(v uint16) Component { return Component{Value: v, Present: true} }

// Version is a parsed version expression: one of Latest, RegistryFallback,
// Custom, or Normal.
type Version struct {
	Kind     Kind
	Custom   string // set iff Kind == KindCustom
	Operator Operator
	Major    Component
	Minor    Component
	Patch    Component
}

// Latest returns the Latest version value.
func Latest() Version { return Version{Kind: KindLatest} }

// RegistryFallback returns the "_" sentinel value.
func RegistryFallback() Version { return Version{Kind: KindRegistryFallback} }

// Custom returns a Custom(s) version value.
func Custom(s string) Version { return Version{Kind: KindCustom, Custom: s} }

// Normal returns a Normal version value with the given operator and components.
func Normal(op Operator, major uint16, minor, patch *uint16) Version {
	v := Version{Kind: KindNormal, Operator: op, Major: present(major)}
	if minor != nil {
		v.Minor = present(*minor)
	}
	if patch != nil {
		v.Patch = present(*patch)
	}
	return v
}

// Parse parses a version expression.
//
// Grammar: "latest" or "" => Latest; "_" => RegistryFallback; a string
// containing no ASCII digit => Custom; otherwise an optional leading
// operator character (default '='), followed by up to three dot-separated
// nonnegative integers.
func Parse(text string) (Version, error) {
	if text == "" || text == "latest" {
		return Latest(), nil
	}
	if text == "_" {
		return RegistryFallback(), nil
	}
	if !containsDigit(text) {
		return Custom(text), nil
	}

	op := OpEq
	rest := text
	switch text[0] {
	case '=', '~', '^', '<', '>':
		op = Operator(text[0])
		rest = text[1:]
	}

	parts := strings.Split(rest, ".")
	if len(parts) > 3 {
		return Version{}, coreerr.InvalidVersion{Text: text, Reason: "more than three dot-separated components"}
	}

	nums := make([]uint16, len(parts))
	for i, p := range parts {
		if p == "" || !isAllDigits(p) {
			return Version{}, coreerr.InvalidVersion{Text: text, Reason: fmt.Sprintf("component %q is not a nonnegative integer", p)}
		}
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return Version{}, coreerr.InvalidVersion{Text: text, Reason: err.Error()}
		}
		nums[i] = uint16(n)
	}

	v := Version{Kind: KindNormal, Operator: op, Major: present(nums[0])}
	if len(nums) > 1 {
		v.Minor = present(nums[1])
	}
	if len(nums) > 2 {
		v.Patch = present(nums[2])
	}
	return v, nil
}

func containsDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// String renders a Version back to its textual form.
func (v Version) String() string {
	switch v.Kind {
	case KindLatest:
		return "latest"
	case KindRegistryFallback:
		return "_"
	case KindCustom:
		return v.Custom
	case KindNormal:
		var b strings.Builder
		if v.Operator != OpEq {
			b.WriteByte(byte(v.Operator))
		}
		fmt.Fprintf(&b, "%d", v.Major.Value)
		if v.Minor.Present {
			fmt.Fprintf(&b, ".%d", v.Minor.Value)
		}
		if v.Patch.Present {
			fmt.Fprintf(&b, ".%d", v.Patch.Value)
		}
		return b.String()
	default:
		return ""
	}
}

// GreaterThan is a total order on Latest+Normal values.
// Latest is greater than everything else; Custom/RegistryFallback are never
// greater than a Normal. Among Normal values, compare major, then minor,
// then patch; an absent minor/patch on the left-hand side is "unknown" and
// prevents the left side from being declared greater via that component.
func (v Version) GreaterThan(other Version) bool {
	if v.Kind == KindLatest {
		return other.Kind != KindLatest
	}
	if other.Kind == KindLatest {
		return false
	}
	if v.Kind != KindNormal || other.Kind != KindNormal {
		return false
	}

	if v.Major.Value != other.Major.Value {
		return v.Major.Value > other.Major.Value
	}
	if !v.Minor.Present {
		return false
	}
	if !other.Minor.Present {
		return true
	}
	if v.Minor.Value != other.Minor.Value {
		return v.Minor.Value > other.Minor.Value
	}
	if !v.Patch.Present {
		return false
	}
	if !other.Patch.Present {
		return true
	}
	return v.Patch.Value > other.Patch.Value
}

func componentOr(c Component, def uint16) uint16 {
	if c.Present {
		return c.Value
	}
	return def
}

// Matches reports whether candidate satisfies the pattern (the receiver),
// The receiver is the user's
// requirement; candidate is the registry/package's actual version.
func (pattern Version) Matches(candidate Version) bool {
	switch pattern.Kind {
	case KindLatest:
		return candidate.Kind != KindCustom
	case KindCustom:
		return candidate.Kind == KindCustom && candidate.Custom == pattern.Custom
	case KindRegistryFallback:
		return false
	case KindNormal:
		if candidate.Kind != KindNormal {
			return false
		}
		cMajor := componentOr(candidate.Major, 0)
		cMinor := componentOr(candidate.Minor, 0)
		cPatch := componentOr(candidate.Patch, 0)
		pMajor := componentOr(pattern.Major, 0)
		pMinor := componentOr(pattern.Minor, 0)
		pPatch := componentOr(pattern.Patch, 0)

		switch pattern.Operator {
		case OpEq:
			if pattern.Major.Present && cMajor != pMajor {
				return false
			}
			if pattern.Minor.Present && cMinor != pMinor {
				return false
			}
			if pattern.Patch.Present && cPatch != pPatch {
				return false
			}
			return true
		case OpTil:
			return cMajor == pMajor && cMinor == pMinor && cPatch >= pPatch
		case OpCar:
			if cMajor != pMajor {
				return false
			}
			if cMinor > pMinor {
				return true
			}
			return cMinor == pMinor && cPatch >= pPatch
		case OpLt:
			return lexLess(cMajor, cMinor, cPatch, pMajor, pMinor, pPatch)
		case OpGt:
			return lexLess(pMajor, pMinor, pPatch, cMajor, cMinor, cPatch)
		default:
			return false
		}
	default:
		return false
	}
}

func lexLess(aMajor, aMinor, aPatch, bMajor, bMinor, bPatch uint16) bool {
	if aMajor != bMajor {
		return aMajor < bMajor
	}
	if aMinor != bMinor {
		return aMinor < bMinor
	}
	return aPatch < bPatch
}
