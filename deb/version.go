package deb

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var packageNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9+.-]+$`)
var versionRe = regexp.MustCompile(`^(?:[0-9]+:)?[0-9][A-Za-z0-9.+~-]*$`)

// ValidatePackageName checks a package name against Debian policy's grammar:
// lower-case letters, digits, plus, minus, period, at least two characters,
// starting with an alphanumeric.
func ValidatePackageName(name string) error {
	if !packageNameRe.MatchString(name) {
		return fmt.Errorf("invalid package name %q", name)
	}
	return nil
}

// ValidateVersion checks a version string against the [epoch:]upstream[-revision]
// grammar: optional numeric epoch, a leading digit, then digits, letters, and
// the characters . + ~ - .
func ValidateVersion(version string) error {
	if !versionRe.MatchString(version) {
		return fmt.Errorf("invalid version %q", version)
	}
	return nil
}

// splitEpoch separates an optional "N:" epoch prefix from the rest of a
// version string. Epoch defaults to 0 when absent.
func splitEpoch(v string) (int, string) {
	if i := strings.IndexByte(v, ':'); i >= 0 {
		if epoch, err := strconv.Atoi(v[:i]); err == nil {
			return epoch, v[i+1:]
		}
	}
	return 0, v
}

// splitVersion separates the upstream_version from the debian_revision
// (everything after the last hyphen). A version with no hyphen has an empty
// revision.
func splitVersion(v string) (string, string) {
	lastHyphen := strings.LastIndex(v, "-")
	if lastHyphen == -1 {
		return v, ""
	}
	return v[:lastHyphen], v[lastHyphen+1:]
}

// isDigit reports whether b is an ASCII digit.
func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// order maps a byte to the dpkg "lexical" ordering used when comparing the
// non-numeric runs of a version part: letters sort before non-letters, and
// '~' sorts before everything, including the empty string.
func order(b byte) int {
	switch {
	case b == '~':
		return -1
	case isDigit(b):
		return 0
	case (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z'):
		return int(b)
	case b == 0:
		return 0
	default:
		return int(b) + 256
	}
}

// compareFragment implements dpkg's version-part comparison algorithm:
// alternating non-digit and digit runs are compared in turn, non-digit runs
// lexically by the `order` mapping (so "~" sorts lowest and letters sort
// before other non-letter characters), digit runs numerically.
func compareFragment(a, b string) int {
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		// compare non-digit runs
		for (i < len(a) && !isDigit(a[i])) || (j < len(b) && !isDigit(b[j])) {
			var ca, cb byte
			if i < len(a) {
				ca = a[i]
			}
			if j < len(b) {
				cb = b[j]
			}
			if order(ca) != order(cb) {
				if order(ca) < order(cb) {
					return -1
				}
				return 1
			}
			if i < len(a) {
				i++
			}
			if j < len(b) {
				j++
			}
		}

		// compare digit runs numerically, ignoring leading zeros
		startI, startJ := i, j
		for i < len(a) && isDigit(a[i]) {
			i++
		}
		for j < len(b) && isDigit(b[j]) {
			j++
		}
		na := strings.TrimLeft(a[startI:i], "0")
		nb := strings.TrimLeft(b[startJ:j], "0")
		if len(na) != len(nb) {
			if len(na) < len(nb) {
				return -1
			}
			return 1
		}
		if na != nb {
			if na < nb {
				return -1
			}
			return 1
		}
	}
	return 0
}

// CompareVersions implements Debian's dpkg version ordering:
// epoch, then upstream_version, then debian_revision, each compared with
// compareFragment. Returns <0, 0, >0 as a.Compare(b).
func CompareVersions(a, b string) int {
	epochA, restA := splitEpoch(a)
	epochB, restB := splitEpoch(b)
	if epochA != epochB {
		if epochA < epochB {
			return -1
		}
		return 1
	}

	upstreamA, revisionA := splitVersion(restA)
	upstreamB, revisionB := splitVersion(restB)

	if c := compareFragment(upstreamA, upstreamB); c != 0 {
		return c
	}
	return compareFragment(revisionA, revisionB)
}

// BumpVersion increments the iteration number of a Debian version string.
// It ensures the new version is considered newer by Debian sorting rules.
//
// Strategy:
//  1. If no iteration (no hyphen), append "-1".
//  2. If iteration is purely numeric, increment it (e.g. "1.0-1" -> "1.0-2").
//  3. Otherwise, find the last alphanumeric character in the iteration and bump it
//     using the range 0-9, a-z. (e.g. "1.0-1a" -> "1.0-1b", "1.0-1.9" -> "1.0-1.a").
//     If the character is 'z', '0' is appended ("1.0-1z" -> "1.0-1z0").
func BumpVersion(v string) string {
	idx := strings.LastIndex(v, "-")
	if idx == -1 {
		return v + "-1"
	}
	prefix := v[:idx+1]
	rev := v[idx+1:]
	if rev == "" {
		return prefix + "1"
	}

	// Try numeric bump
	if i, err := strconv.Atoi(rev); err == nil {
		return prefix + strconv.Itoa(i+1)
	}

	// Alphanumeric bump
	runes := []rune(rev)
	for i := len(runes) - 1; i >= 0; i-- {
		c := runes[i]
		if c >= '0' && c < '9' {
			runes[i]++
			return prefix + string(runes)
		}
		if c == '9' {
			runes[i] = 'a'
			return prefix + string(runes)
		}
		if c >= 'a' && c < 'z' {
			runes[i]++
			return prefix + string(runes)
		}
		if c == 'z' {
			return prefix + string(runes[:i+1]) + "0" + string(runes[i+1:])
		}
	}
	return v + "1"
}
