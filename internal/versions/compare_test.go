package versions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsIncompatibleTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		target     string
		appVersion string
		expected   bool
	}{
		{name: "no target", target: "", appVersion: "1.0.0", expected: false},
		{name: "blank target", target: "  ", appVersion: "1.0.0", expected: false},
		{name: "same version", target: "1.4.0", appVersion: "1.4.0", expected: false},
		{name: "older target", target: "1.3.9", appVersion: "1.4.0", expected: false},
		{name: "newer patch", target: "1.4.1", appVersion: "1.4.0", expected: true},
		{name: "newer major", target: "2.0.0", appVersion: "1.4.0", expected: true},
		{name: "v prefix", target: "v1.5.0", appVersion: "v1.4.0", expected: true},
		{name: "release over prerelease binary", target: "1.0.0", appVersion: "1.0.0-beta", expected: true},
		{name: "caret range includes binary", target: "^1.2.0", appVersion: "1.4.0", expected: false},
		{name: "caret range excludes next major", target: "^1.2.0", appVersion: "2.0.0", expected: true},
		{name: "wildcard range", target: "1.x", appVersion: "1.9.3", expected: false},
		{name: "wildcard range excludes", target: "1.x", appVersion: "2.0.0", expected: true},
		{name: "explicit range", target: ">=1.2.0, <1.5.0", appVersion: "1.5.0", expected: true},
		{name: "non-semver binary newer target", target: "build-b", appVersion: "build-a", expected: true},
		{name: "non-semver binary older target", target: "build-a", appVersion: "build-b", expected: false},
		{name: "unparseable target", target: "~~", appVersion: "1.0.0", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, IsIncompatibleTarget(tt.target, tt.appVersion))
		})
	}
}
