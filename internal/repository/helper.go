package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// ParseTime parses a date string in "2006-01-02" or RFC3339 format.
func ParseTime(str string) (time.Time, error) {
	returnTime, err := time.Parse("2006-01-02", str)
	if err != nil {
		returnTime, err = time.Parse(time.RFC3339, str)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to parse date: %w", err)
		}
	}
	return returnTime.UTC(), nil
}

// Placeholders returns a comma-separated list of n "?" markers for IN clauses.
func Placeholders(n int) string {
	markers := make([]string, n)
	for i := range markers {
		markers[i] = "?"
	}
	return strings.Join(markers, ",")
}

// DateArg formats a date for binding against a DATE column.
func DateArg(t time.Time) string {
	return t.Format("2006-01-02")
}

// NullStr converts an empty string to a SQL NULL.
func NullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// StrOrEmpty unwraps a nullable string column.
func StrOrEmpty(s sql.NullString) string {
	if s.Valid {
		return s.String
	}
	return ""
}

// NullDate converts a zero time to a SQL NULL, otherwise a DATE string.
func NullDate(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: DateArg(t), Valid: true}
}

// DateOrZero unwraps a nullable DATE column.
func DateOrZero(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	return ParseTime(s.String)
}
