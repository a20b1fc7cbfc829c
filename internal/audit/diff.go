package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/bastionhq/bastion/internal/models"
)

// maxValueLen bounds the size of a single value inside a diff summary
const maxValueLen = 80

// Diff produces a human-readable summary of the changes between two entity
// snapshots. One line per changed key:
//
//	+ key: value        added
//	- key: value        removed
//	~ key: old → new    changed
//
// Keys are emitted in deterministic sorted order over the union of both key
// sets. The summary is a denormalized convenience; the snapshots remain the
// source of truth. An empty string means no differences.
func Diff(before, after models.Snapshot) string {
	keys := unionKeys(before, after)

	var lines []string
	for _, key := range keys {
		beforeVal, inBefore := before[key]
		afterVal, inAfter := after[key]

		switch {
		case !inBefore:
			lines = append(lines, fmt.Sprintf("+ %s: %s", key, canonical(afterVal)))
		case !inAfter:
			lines = append(lines, fmt.Sprintf("- %s: %s", key, canonical(beforeVal)))
		default:
			oldStr := canonical(beforeVal)
			newStr := canonical(afterVal)
			if oldStr != newStr {
				lines = append(lines, fmt.Sprintf("~ %s: %s → %s", key, oldStr, newStr))
			}
		}
	}

	return strings.Join(lines, "\n")
}

func unionKeys(before, after models.Snapshot) []string {
	seen := make(map[string]bool, len(before)+len(after))
	keys := make([]string, 0, len(before)+len(after))

	for key := range before {
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	for key := range after {
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)
	return keys
}

// canonical serializes a value for comparison and display, truncating long
// values to bound record size
func canonical(v any) string {
	var s string
	switch val := v.(type) {
	case nil:
		s = "null"
	case string:
		s = val
	default:
		b, err := json.Marshal(val)
		if err != nil {
			s = fmt.Sprintf("%v", val)
		} else {
			s = string(b)
		}
	}

	if runes := []rune(s); len(runes) > maxValueLen {
		s = string(runes[:maxValueLen]) + "…"
	}
	return s
}
