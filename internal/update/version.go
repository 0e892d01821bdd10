package update

import (
	"strconv"
	"strings"
)

// Version is an ordered tuple of non-negative integer components,
// e.g. 1.2 or 1.2.3. The zero value is "0". Versions are immutable.
type Version struct {
	components []uint64
}

// ParseVersion parses a release identifier.
// Noise around the numeric core is dropped, so "v1.2.3", "1.2-beta" and
// "release 2.0 (final)" parse as 1.2.3, 1.2 and 2.0.
func ParseVersion(s string) (Version, error) {
	start := strings.IndexFunc(s, isDigit)
	if start < 0 {
		return Version{}, Errorf(KindInvalidVersion, "parse version", "no numeric component in %q", s)
	}

	core := s[start:]
	end := strings.IndexFunc(core, func(r rune) bool {
		return !isDigit(r) && r != '.'
	})
	if end >= 0 {
		core = core[:end]
	}

	parts := strings.Split(core, ".")
	components := make([]uint64, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return Version{}, Errorf(KindInvalidVersion, "parse version", "empty component in %q", s)
		}
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return Version{}, NewError(KindInvalidVersion, "parse version", err)
		}
		components = append(components, n)
	}

	return Version{components: components}, nil
}

// MustParseVersion is like ParseVersion but panics on error.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// Components returns a copy of the numeric components.
func (v Version) Components() []uint64 {
	out := make([]uint64, len(v.components))
	copy(out, v.components)
	return out
}

// String formats the version with the components it was parsed from.
func (v Version) String() string {
	if len(v.components) == 0 {
		return "0"
	}
	parts := make([]string, len(v.components))
	for i, c := range v.components {
		parts[i] = strconv.FormatUint(c, 10)
	}
	return strings.Join(parts, ".")
}

func (v Version) component(i int) uint64 {
	if i < len(v.components) {
		return v.components[i]
	}
	return 0
}

// Compare compares two versions.
// Returns:
//   - 1 if v > other
//   - 0 if v == other
//   - -1 if v < other
//
// Missing trailing components compare as zero, so 1.2 == 1.2.0.
func (v Version) Compare(other Version) int {
	n := len(v.components)
	if len(other.components) > n {
		n = len(other.components)
	}
	for i := 0; i < n; i++ {
		a, b := v.component(i), other.component(i)
		if a > b {
			return 1
		}
		if a < b {
			return -1
		}
	}
	return 0
}

// IsGreaterThan returns true if v > other
func (v Version) IsGreaterThan(other Version) bool {
	return v.Compare(other) > 0
}

// IsLessThan returns true if v < other
func (v Version) IsLessThan(other Version) bool {
	return v.Compare(other) < 0
}

// IsEqual returns true if v == other
func (v Version) IsEqual(other Version) bool {
	return v.Compare(other) == 0
}

// IsUpgrade reports whether candidate is strictly newer than current.
func IsUpgrade(candidate, current Version) bool {
	return candidate.IsGreaterThan(current)
}

// CompareVersions compares two version strings
// Returns:
//   - 1 if v1 > v2
//   - 0 if v1 == v2
//   - -1 if v1 < v2
//   - error if either version is invalid
func CompareVersions(v1, v2 string) (int, error) {
	ver1, err := ParseVersion(v1)
	if err != nil {
		return 0, err
	}

	ver2, err := ParseVersion(v2)
	if err != nil {
		return 0, err
	}

	return ver1.Compare(ver2), nil
}
