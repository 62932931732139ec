package orchestrator

import (
	"strings"
	"time"

	"sentinel/internal/ports"
)

func nowUTCString(now time.Time) string {
	return now.UTC().Format(ports.TimestampLayout)
}

func firstLine(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	parts := strings.SplitN(trimmed, "\n", 2)
	return strings.TrimSpace(parts[0])
}

// replaceLabels computes the next full label set from the current one:
// the removals and additions land in a single atomic SetLabels call.
func replaceLabels(current []string, remove []string, add []string) []string {
	drop := make(map[string]bool, len(remove))
	for _, label := range remove {
		drop[label] = true
	}

	next := make([]string, 0, len(current)+len(add))
	seen := make(map[string]bool, len(current)+len(add))
	for _, label := range current {
		trimmed := strings.TrimSpace(label)
		if trimmed == "" || drop[trimmed] || seen[trimmed] {
			continue
		}
		next = append(next, trimmed)
		seen[trimmed] = true
	}
	for _, label := range add {
		trimmed := strings.TrimSpace(label)
		if trimmed == "" || seen[trimmed] {
			continue
		}
		next = append(next, trimmed)
		seen[trimmed] = true
	}
	return next
}
