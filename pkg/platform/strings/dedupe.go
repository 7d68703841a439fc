// Package strings normalizes list-valued configuration.
package strings

import (
	"strings"
)

// SplitList flattens comma-separated entries, trims each element and drops
// empties and duplicates. Order of first appearance is preserved.
//
//	SplitList([]string{"a, b", "a", " "}) // []string{"a", "b"}
func SplitList(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if _, ok := seen[trimmed]; !ok {
				seen[trimmed] = struct{}{}
				result = append(result, trimmed)
			}
		}
	}
	return result
}
