package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

// MakeID returns a fresh UUID string.
func MakeID() string {
	return uuid.New().String()
}

// Date parses a YYYY-MM-DD string, failing the test on a typo.
func Date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("Invalid test date %q: %v", s, err)
	}
	return d.UTC()
}
