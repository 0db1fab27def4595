package farmhand

import (
	"fmt"
	"regexp"
)

// Worker version strings look like "15.1v3": major.minor plus a patch
// suffix. Job templates pin only the major.minor pair.
var majorMinorRE = regexp.MustCompile(`^(\d+\.\d+)`)

// MajorMinor extracts the "major.minor" prefix of a worker version string.
func MajorMinor(version string) (string, error) {
	m := majorMinorRE.FindStringSubmatch(version)
	if m == nil {
		return "", fmt.Errorf("parse worker version %q: expected a major.minor prefix", version)
	}
	return m[1], nil
}
