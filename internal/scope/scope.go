// Package scope implements hierarchical scope matching.
//
// Scopes are "/"-separated segments, each optionally typed as "type:value",
// for example "repo:acme/backend/folder:src". A scope applies to every scope
// it is a segment-wise prefix of; segments may contain "*" wildcards.
package scope

import (
	"path"
	"strings"
)

const defaultTypeRank = 10

var typeRanks = map[string]int{
	"user":     60,
	"channel":  50,
	"team":     40,
	"org":      30,
	"folder":   25,
	"repo":     20,
	"workflow": 15,
	"global":   10,
}

// Split returns the non-empty segments of s.
func Split(s string) []string {
	parts := strings.Split(s, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Matches reports whether prefix applies to target: every prefix segment must
// glob-match the target segment at the same position.
func Matches(prefix, target string) bool {
	if prefix == "" || target == "" {
		return false
	}
	prefixParts := Split(prefix)
	targetParts := Split(target)
	if len(prefixParts) > len(targetParts) {
		return false
	}
	for i, pattern := range prefixParts {
		if !matchSegment(pattern, targetParts[i]) {
			return false
		}
	}
	return true
}

func matchSegment(pattern, segment string) bool {
	if !strings.ContainsAny(pattern, "*?[") {
		return pattern == segment
	}
	ok, err := path.Match(pattern, segment)
	if err != nil {
		// Malformed patterns only match themselves.
		return pattern == segment
	}
	return ok
}

// Specificity is the number of segments in s.
func Specificity(s string) int {
	return len(Split(s))
}

// TypeRank returns the hierarchy rank of the type of the first segment of s.
func TypeRank(s string) int {
	first, _, found := strings.Cut(s, ":")
	if !found {
		return defaultTypeRank
	}
	if rank, ok := typeRanks[first]; ok {
		return rank
	}
	return defaultTypeRank
}

// EnhancedSpecificity weights depth and scope type: depth*10 + TypeRank.
func EnhancedSpecificity(s string) float64 {
	return float64(Specificity(s)*10 + TypeRank(s))
}
