package cli

import (
	"strconv"
	"strings"
	"time"

	"pivotscan/internal/errors"
	"pivotscan/internal/models"
)

// parseDateFlag parses a YYYY-MM-DD flag value. Empty yields the zero time.
func parseDateFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := models.ParseDate(value)
	if err != nil {
		return time.Time{}, errors.NewValidationError(name, value, "expected YYYY-MM-DD")
	}
	return t, nil
}

func itoa(n int) string     { return strconv.Itoa(n) }
func itoa64(n int64) string { return strconv.FormatInt(n, 10) }
func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

func pivotText(pivot float64) string {
	if pivot <= 0 {
		return "-"
	}
	return ftoa(pivot)
}

func patternNames(kinds []models.PatternKind) string {
	if len(kinds) == 0 {
		return "-"
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.DisplayName()
	}
	return strings.Join(names, ", ")
}

func nearMissText(misses []models.NearMiss) string {
	if len(misses) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(misses))
	for _, nm := range misses {
		parts = append(parts, nm.Name+" "+nm.Progress)
	}
	return strings.Join(parts, "; ")
}
