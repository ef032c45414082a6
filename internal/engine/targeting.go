package engine

import (
	"strings"

	"golang.org/x/mod/semver"

	"github.com/carsuggester/roadtest/internal/store"
)

// Context carries the caller-supplied evaluation context a targeting
// predicate is checked against.
type Context struct {
	Platform     string   `json:"platform,omitempty"`
	AppVersion   string   `json:"app_version,omitempty"`
	SessionCount int      `json:"session_count,omitempty"`
	Segments     []string `json:"segments,omitempty"`
}

// matchTargeting reports whether the context satisfies the predicate.
// A nil predicate matches everyone; each populated field narrows the
// audience and all populated fields must pass.
func matchTargeting(t *store.Targeting, c Context) bool {
	if t == nil {
		return true
	}

	if len(t.Platforms) > 0 && !containsFold(t.Platforms, c.Platform) {
		return false
	}

	if t.MinVersion != "" || t.MaxVersion != "" {
		v := canonicalVersion(c.AppVersion)
		if v == "" {
			// Version-bounded targeting with no usable version in the
			// context is a mismatch, not a pass.
			return false
		}
		if min := canonicalVersion(t.MinVersion); min != "" && semver.Compare(v, min) < 0 {
			return false
		}
		if max := canonicalVersion(t.MaxVersion); max != "" && semver.Compare(v, max) > 0 {
			return false
		}
	}

	if t.MinSessions != nil && c.SessionCount < *t.MinSessions {
		return false
	}
	if t.MaxSessions != nil && c.SessionCount > *t.MaxSessions {
		return false
	}

	if len(t.Segments) > 0 {
		have := make(map[string]bool, len(c.Segments))
		for _, s := range c.Segments {
			have[strings.ToLower(s)] = true
		}
		for _, want := range t.Segments {
			if !have[strings.ToLower(want)] {
				return false
			}
		}
	}

	return true
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}

// canonicalVersion normalizes "1.2.3" to the "v1.2.3" form x/mod/semver
// expects. Returns "" for versions semver cannot parse.
func canonicalVersion(v string) string {
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return v
}
