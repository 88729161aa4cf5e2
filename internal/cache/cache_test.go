package cache

import (
	"testing"
	"time"

	"github.com/sokolovdp/finmars-core-sub005/internal/report"
	"github.com/sokolovdp/finmars-core-sub005/internal/testutil"
)

func TestCacheRoundTrip(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c := New(db, time.Hour)

	reportDate := testutil.Date(t, "2024-01-31")
	stored := &report.Result{ReportDate: reportDate, ReportType: "balance", TotalCount: 3}
	if err := c.Put("fp1", "tenant1", reportDate, "policy1", stored); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}

	var loaded report.Result
	hit, err := c.Get("fp1", &loaded)
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if !hit {
		t.Fatal("Expected a cache hit")
	}
	if loaded.ReportType != "balance" || loaded.TotalCount != 3 {
		t.Errorf("Expected the stored result back, got %+v", loaded)
	}
}

func TestCacheMiss(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c := New(db, time.Hour)

	var out report.Result
	hit, err := c.Get("unknown", &out)
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if hit {
		t.Error("Expected a miss for an unknown fingerprint")
	}
}

func TestCacheExpiry(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c := New(db, -time.Minute) // Entries are born expired

	reportDate := testutil.Date(t, "2024-01-31")
	if err := c.Put("fp1", "tenant1", reportDate, "policy1", &report.Result{}); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}

	var out report.Result
	hit, err := c.Get("fp1", &out)
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if hit {
		t.Error("Expected an expired entry to count as a miss")
	}

	// The expired row is dropped lazily.
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM report_cache`).Scan(&count); err != nil {
		t.Fatalf("Failed to count rows: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected the expired row removed, found %d", count)
	}
}

func TestCacheOverwrite(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c := New(db, time.Hour)

	reportDate := testutil.Date(t, "2024-01-31")
	if err := c.Put("fp1", "tenant1", reportDate, "policy1", &report.Result{TotalCount: 1}); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	if err := c.Put("fp1", "tenant1", reportDate, "policy1", &report.Result{TotalCount: 2}); err != nil {
		t.Fatalf("Failed to overwrite: %v", err)
	}

	var out report.Result
	if hit, _ := c.Get("fp1", &out); !hit || out.TotalCount != 2 {
		t.Errorf("Expected the overwritten value, got %+v", out)
	}
}

func TestCacheInvalidateScope(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c := New(db, time.Hour)

	jan := testutil.Date(t, "2024-01-31")
	feb := testutil.Date(t, "2024-02-29")
	put := func(fp, tenant string, date time.Time, policy string) {
		t.Helper()
		if err := c.Put(fp, tenant, date, policy, &report.Result{}); err != nil {
			t.Fatalf("Failed to put %s: %v", fp, err)
		}
	}
	put("jan", "tenant1", jan, "policy1")
	put("feb", "tenant1", feb, "policy1")
	put("feb_other_policy", "tenant1", feb, "policy2")
	put("feb_other_tenant", "tenant2", feb, "policy1")

	// New market data on Feb 1 touches reports valued on or after it.
	if err := c.InvalidateScope("tenant1", testutil.Date(t, "2024-02-01"), "policy1"); err != nil {
		t.Fatalf("Failed to invalidate: %v", err)
	}

	expect := func(fp string, wantHit bool) {
		t.Helper()
		var out report.Result
		hit, err := c.Get(fp, &out)
		if err != nil {
			t.Fatalf("Failed to get %s: %v", fp, err)
		}
		if hit != wantHit {
			t.Errorf("Entry %s: hit = %v, want %v", fp, hit, wantHit)
		}
	}
	expect("jan", true)
	expect("feb", false)
	expect("feb_other_policy", true)
	expect("feb_other_tenant", true)
}

func TestCachePurgeExpired(t *testing.T) {
	db := testutil.SetupTestDB(t)

	expired := New(db, -time.Minute)
	fresh := New(db, time.Hour)
	reportDate := testutil.Date(t, "2024-01-31")
	if err := expired.Put("old", "tenant1", reportDate, "policy1", &report.Result{}); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	if err := fresh.Put("new", "tenant1", reportDate, "policy1", &report.Result{}); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}

	if err := fresh.PurgeExpired(); err != nil {
		t.Fatalf("Failed to purge: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM report_cache`).Scan(&count); err != nil {
		t.Fatalf("Failed to count rows: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected only the fresh entry to survive, found %d", count)
	}
}
