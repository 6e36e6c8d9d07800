// Package semver provides dotted-version helpers for firmware API levels.
// Device API levels are "major.minor" strings; catalog queries and the
// protocol revision gate both compare them numerically, not lexically
// ("0.10" is newer than "0.9").
package semver

import (
	"fmt"
	"strconv"
	"strings"
)

// GetNumericVersion flattens a dotted version into a single comparable
// integer. Each segment occupies three decimal digits, so versions with up
// to 999 per segment compare correctly.
func GetNumericVersion(version string) int {
	parts := strings.Split(version, ".")
	result := 0
	for _, part := range parts {
		num, _ := strconv.Atoi(strings.TrimSpace(part))
		result = result*1000 + num
	}
	return result
}

// AtLeast reports whether version is greater than or equal to min. Both are
// dotted strings with the same number of segments; a malformed segment
// counts as zero.
func AtLeast(version, min string) bool {
	return GetNumericVersion(version) >= GetNumericVersion(min)
}

// JoinAPI combines major and minor level strings into the canonical
// "major.minor" form used by the catalog. Empty parts default to "0".
func JoinAPI(major, minor string) string {
	if strings.TrimSpace(major) == "" {
		major = "0"
	}
	if strings.TrimSpace(minor) == "" {
		minor = "0"
	}
	return fmt.Sprintf("%s.%s", major, minor)
}
