// Package semverx provides version normalization and comparison helpers
// tolerant of the loose version strings found in package manifests.
//
// Inputs routinely arrive dirty: bare integers ("14"), partial versions
// ("14.1"), "v"-prefixed strings, prerelease-only fragments, or the
// symbolic dist-tags "latest" and "next". Every comparator routes its
// inputs through NormalizeVersion so callers never have to pre-clean.
package semverx

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// TagLatest and TagNext are the symbolic dist-tags that bypass
// normalization and reach the registry verbatim.
const (
	TagLatest = "latest"
	TagNext   = "next"
)

var zero = semver.MustParse("0.0.0")

// IsTag reports whether version is a symbolic dist-tag rather than a
// concrete or partial version.
func IsTag(version string) bool {
	return version == TagLatest || version == TagNext
}

// NormalizeVersion coerces a loose version string into a full semver
// literal. Missing components are filled with zero; three variants
// (full, drop-patch, drop-patch-and-minor) are tried in turn against
// the predicate > 0.0.0, and the first that parses and passes wins.
// Anything unusable yields "0.0.0".
func NormalizeVersion(version string) string {
	v := strings.TrimPrefix(strings.TrimSpace(version), "v")
	base, prerelease, _ := strings.Cut(v, "-")

	parts := strings.Split(base, ".")
	for len(parts) < 3 {
		parts = append(parts, "0")
	}

	full := strings.Join(parts[:3], ".")
	if prerelease != "" {
		full += "-" + prerelease
	}

	candidates := []string{
		full,
		parts[0] + "." + parts[1] + ".0",
		parts[0] + ".0.0",
	}
	for _, c := range candidates {
		sv, err := semver.NewVersion(c)
		if err == nil && sv.GreaterThan(zero) {
			return c
		}
	}
	return "0.0.0"
}

// NormalizeVersionWithTagCheck passes the dist-tags "latest" and "next"
// through unchanged; everything else goes through NormalizeVersion.
func NormalizeVersionWithTagCheck(version string) string {
	if IsTag(version) {
		return version
	}
	return NormalizeVersion(version)
}

// CleanSemver parses a dirty version string into a semver value,
// cleaning and coercing as needed. Unusable input parses as 0.0.0.
func CleanSemver(version string) *semver.Version {
	trimmed := strings.TrimSpace(version)
	trimmed = strings.TrimLeft(trimmed, "=v")
	if sv, err := semver.NewVersion(trimmed); err == nil {
		return sv
	}
	return semver.MustParse(NormalizeVersion(version))
}

func parse(version string) *semver.Version {
	// NormalizeVersion output always parses; 0.0.0 is the floor.
	return semver.MustParse(NormalizeVersion(version))
}

// Gt reports a > b after normalization.
func Gt(a, b string) bool {
	return parse(a).GreaterThan(parse(b))
}

// Gte reports a >= b after normalization.
func Gte(a, b string) bool {
	return !parse(a).LessThan(parse(b))
}

// Lt reports a < b after normalization.
func Lt(a, b string) bool {
	return parse(a).LessThan(parse(b))
}

// Lte reports a <= b after normalization.
func Lte(a, b string) bool {
	return !parse(a).GreaterThan(parse(b))
}

// Satisfies reports whether version satisfies the semver range. Prerelease
// versions are included: if the range rejects the version solely because
// of its prerelease component, the check is retried against the release
// version it precedes.
func Satisfies(version, constraint string) bool {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false
	}
	v := parse(version)
	if c.Check(v) {
		return true
	}
	if v.Prerelease() != "" {
		release, err := v.SetPrerelease("")
		if err == nil && c.Check(&release) {
			return true
		}
	}
	return false
}
