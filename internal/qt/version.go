package qt

import (
	"fmt"
	"strconv"
	"strings"

	"go.trai.ch/zerr"
	"golang.org/x/mod/semver"
)

// Version is a major.minor.patch Qt version
type Version struct {
	Major, Minor, Patch int
}

// Unpack decodes the QT_VERSION integer, 0xMMNNPP
func Unpack(v uint64) Version {
	return Version{
		Major: int(v >> 16),
		Minor: int(v>>8) % 256,
		Patch: int(v % 256),
	}
}

// ParseVersion parses "4", "4.8" or "4.8.6"
func ParseVersion(s string) (Version, error) {
	var v Version
	parts := strings.Split(strings.TrimPrefix(strings.TrimSpace(s), "v"), ".")
	if len(parts) > 3 {
		return v, zerr.With(zerr.Wrap(ErrInvalidVersion, s), "version", s)
	}
	fields := []*int{&v.Major, &v.Minor, &v.Patch}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return v, zerr.With(zerr.Wrap(ErrInvalidVersion, s), "version", s)
		}
		*fields[i] = n
	}
	return v, nil
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func (v Version) MarshalYAML() (any, error) {
	return v.String(), nil
}

func (v Version) semver() string {
	return "v" + v.String()
}

type constraint struct {
	op string
	// v is a semver string, possibly shortened to vMAJOR or vMAJOR.MINOR
	v string
}

func (c constraint) match(v Version) bool {
	sv := v.semver()
	switch c.op {
	case ">=":
		return semver.Compare(sv, c.v) >= 0
	case ">":
		return semver.Compare(sv, c.v) > 0
	case "<=":
		return semver.Compare(sv, c.v) <= 0
	case "<":
		return semver.Compare(sv, c.v) < 0
	case "!=":
		return !prefixMatch(sv, c.v)
	default:
		return prefixMatch(sv, c.v)
	}
}

// prefixMatch treats a shortened version as the set of versions sharing its components:
// "4.8" holds 4.8.0 and 4.8.6 but not 4.9.0
func prefixMatch(sv, want string) bool {
	switch strings.Count(want, ".") {
	case 0:
		return semver.Major(sv) == want
	case 1:
		return semver.MajorMinor(sv) == want
	default:
		return semver.Compare(sv, want) == 0
	}
}

// Range is a conjunction of version constraints such as ">=4.7 <5". The zero Range holds
// every version.
type Range struct {
	raw         string
	constraints []constraint
}

var rangeOps = []string{">=", "<=", "!=", "==", ">", "<", "="}

// ParseRange parses whitespace or comma separated constraints. A bare version matches by
// prefix.
func ParseRange(s string) (Range, error) {
	r := Range{raw: strings.TrimSpace(s)}
	fields := strings.FieldsFunc(s, func(c rune) bool { return c == ',' || c == ' ' || c == '\t' })
	for i := 0; i < len(fields); i++ {
		field := fields[i]
		op := ""
		for _, o := range rangeOps {
			if strings.HasPrefix(field, o) {
				op = o
				break
			}
		}
		rest := strings.TrimPrefix(field, op)
		if rest == "" && op != "" && i+1 < len(fields) {
			// ">= 4.7"
			i++
			rest = fields[i]
		}
		v := "v" + strings.TrimPrefix(rest, "v")
		if !semver.IsValid(v) || semver.Prerelease(v) != "" || semver.Build(v) != "" {
			return Range{}, zerr.With(zerr.Wrap(ErrInvalidVersion, s), "constraint", field)
		}
		if op == "==" || op == "=" {
			op = ""
		}
		r.constraints = append(r.constraints, constraint{op: op, v: v})
	}
	return r, nil
}

// MustParseRange is ParseRange for constants
func MustParseRange(s string) Range {
	r, err := ParseRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Contains reports whether v satisfies every constraint
func (r Range) Contains(v Version) bool {
	for _, c := range r.constraints {
		if !c.match(v) {
			return false
		}
	}
	return true
}

func (r Range) String() string {
	if r.raw == "" {
		return "any"
	}
	return r.raw
}
