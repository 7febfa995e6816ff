package services

import (
	"strings"

	"fintrack/internal/core"
)

// uncategorizedName is the fallback bucket used when a proposed category
// name matches nothing the user has.
const uncategorizedName = "Uncategorized"

// resolveCategory maps a free-form category name onto one of the user's
// categories. Rules in priority order: exact match ignoring case, substring
// containment in either direction, then the "Uncategorized" fallback. The
// boolean is false when nothing resolves.
func resolveCategory(name string, categories []core.Category) (core.Category, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return fallbackCategory(categories)
	}

	for _, c := range categories {
		if strings.ToLower(c.Name) == needle {
			return c, true
		}
	}

	for _, c := range categories {
		have := strings.ToLower(c.Name)
		if strings.Contains(have, needle) || strings.Contains(needle, have) {
			return c, true
		}
	}

	return fallbackCategory(categories)
}

func fallbackCategory(categories []core.Category) (core.Category, bool) {
	for _, c := range categories {
		if strings.EqualFold(c.Name, uncategorizedName) {
			return c, true
		}
	}
	return core.Category{}, false
}
