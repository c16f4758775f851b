package repository

import (
	"database/sql"
	"fmt"
	"time"
)

// timeLayout keeps nanoseconds so intervals compare equal after a round
// trip through storage.
const timeLayout = time.RFC3339Nano

// parseNullableTime parses a nullable column into a *time.Time.
// NULL and empty strings yield nil.
func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil, fmt.Errorf("parsing time %q: %w", s.String, err)
	}
	return &t, nil
}

// nullableTimeToString converts a *time.Time to a value suitable for SQLite
// storage. A nil pointer becomes SQL NULL.
func nullableTimeToString(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

// nullableString maps "" to SQL NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intToBool(i int) bool {
	return i != 0
}

// nowUTC returns the current UTC time formatted as RFC3339.
func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
