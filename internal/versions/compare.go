package versions

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// IsIncompatibleTarget reports whether a package built for target cannot be
// installed on a binary at appVersion. target is either a single version, which
// is incompatible when newer than appVersion, or a semver range such as "^1.2.0"
// or "1.x", which is incompatible when it does not include appVersion.
// An empty target is compatible with every binary. Strings that are not semver
// are compared lexicographically.
func IsIncompatibleTarget(target, appVersion string) bool {
	target = strings.TrimSpace(target)
	if target == "" {
		return false
	}

	app, err := semver.NewVersion(appVersion)
	if err != nil {
		return target > appVersion
	}

	if v, err := semver.NewVersion(target); err == nil {
		return v.GreaterThan(app)
	}

	constraint, err := semver.NewConstraint(target)
	if err != nil {
		return target > appVersion
	}
	return !constraint.Check(app)
}
