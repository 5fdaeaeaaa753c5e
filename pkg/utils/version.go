package utils

import (
	"strconv"
	"strings"
)

// VersionLessThan compares two versions of the form major.minor.patch
// and returns true if a is less than b. Missing or malformed parts count
// as zero, so "1.2" equals "1.2.0".
func VersionLessThan(a, b string) bool {
	aParts := versionParts(a)
	bParts := versionParts(b)

	for i := range aParts {
		if aParts[i] != bParts[i] {
			return aParts[i] < bParts[i]
		}
	}
	return false
}

func versionParts(v string) [3]int {
	var parts [3]int
	for i, s := range strings.SplitN(strings.TrimPrefix(v, "v"), ".", 3) {
		parts[i], _ = strconv.Atoi(s)
	}
	return parts
}
