package calendar

import (
	"testing"
	"time"
)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("Invalid test date %q: %v", s, err)
	}
	return d.UTC()
}

func TestIsBusinessDay(t *testing.T) {
	if !IsBusinessDay(date(t, "2024-01-05")) { // Friday
		t.Error("Expected Friday to be a business day")
	}
	if IsBusinessDay(date(t, "2024-01-06")) { // Saturday
		t.Error("Expected Saturday not to be a business day")
	}
	if IsBusinessDay(date(t, "2024-01-07")) { // Sunday
		t.Error("Expected Sunday not to be a business day")
	}
}

func TestPrevBusinessDay(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"midweek", "2024-01-10", "2024-01-09"},
		{"monday skips weekend", "2024-01-08", "2024-01-05"},
		{"sunday skips to friday", "2024-01-07", "2024-01-05"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PrevBusinessDay(date(t, tt.in))
			if !got.Equal(date(t, tt.want)) {
				t.Errorf("PrevBusinessDay(%s) = %s, want %s", tt.in, got.Format(DateFormat), tt.want)
			}
		})
	}
}

func TestSnapToBusinessDay(t *testing.T) {
	if got := SnapToBusinessDay(date(t, "2024-01-10")); !got.Equal(date(t, "2024-01-10")) {
		t.Errorf("Expected weekday to snap to itself, got %s", got.Format(DateFormat))
	}
	if got := SnapToBusinessDay(date(t, "2024-01-07")); !got.Equal(date(t, "2024-01-05")) {
		t.Errorf("Expected Sunday to snap to Friday, got %s", got.Format(DateFormat))
	}
}

func TestBusinessDays(t *testing.T) {
	days := BusinessDays(date(t, "2024-01-05"), date(t, "2024-01-09"))
	if len(days) != 3 {
		t.Fatalf("Expected 3 business days over the weekend span, got %d", len(days))
	}
	want := []string{"2024-01-05", "2024-01-08", "2024-01-09"}
	for i, d := range days {
		if d.Format(DateFormat) != want[i] {
			t.Errorf("Day %d = %s, want %s", i, d.Format(DateFormat), want[i])
		}
	}
}

func TestBusinessDayIndex(t *testing.T) {
	from := date(t, "2024-01-01") // Monday
	to := date(t, "2024-01-12")   // Friday

	if got := BusinessDayIndex(from, to, date(t, "2024-01-01")); got != 1 {
		t.Errorf("Expected index 1 for the first day, got %d", got)
	}
	if got := BusinessDayIndex(from, to, date(t, "2024-01-08")); got != 6 {
		t.Errorf("Expected index 6 for the second Monday, got %d", got)
	}
	if got := BusinessDayIndex(from, to, date(t, "2024-01-06")); got != 0 {
		t.Errorf("Expected index 0 for a Saturday, got %d", got)
	}
	if got := BusinessDayIndex(from, to, date(t, "2024-02-01")); got != 0 {
		t.Errorf("Expected index 0 outside the window, got %d", got)
	}
}

func TestPeriodBoundaries(t *testing.T) {
	d := date(t, "2024-05-15")

	if got := LastBusinessDayOfPreviousYear(d); !got.Equal(date(t, "2023-12-29")) {
		t.Errorf("LastBusinessDayOfPreviousYear = %s, want 2023-12-29", got.Format(DateFormat))
	}
	if got := LastBusinessDayOfPreviousQuarter(d); !got.Equal(date(t, "2024-03-29")) {
		t.Errorf("LastBusinessDayOfPreviousQuarter = %s, want 2024-03-29", got.Format(DateFormat))
	}
	if got := LastBusinessDayOfPreviousMonth(d); !got.Equal(date(t, "2024-04-30")) {
		t.Errorf("LastBusinessDayOfPreviousMonth = %s, want 2024-04-30", got.Format(DateFormat))
	}
	if got := MonthEnd(d); !got.Equal(date(t, "2024-05-31")) {
		t.Errorf("MonthEnd = %s, want 2024-05-31", got.Format(DateFormat))
	}
	if got := MonthEnd(date(t, "2024-02-10")); !got.Equal(date(t, "2024-02-29")) {
		t.Errorf("MonthEnd leap February = %s, want 2024-02-29", got.Format(DateFormat))
	}
}
