// Package cache stores serialized report results keyed by a fingerprint of
// their full input envelope. Entries expire on a TTL and are additionally
// invalidated by scope whenever new market data lands for a tenant.
package cache

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// ReportCache is a TTL cache over the report_cache table.
type ReportCache struct {
	db  *sql.DB
	ttl time.Duration
}

// New creates a ReportCache with the given entry lifetime.
func New(db *sql.DB, ttl time.Duration) *ReportCache {
	return &ReportCache{db: db, ttl: ttl}
}

// Get loads a cached result into out. The boolean reports a hit; expired
// entries count as misses and are removed lazily.
func (c *ReportCache) Get(fingerprint string, out any) (bool, error) {
	var payload []byte
	var expiresAt string
	err := c.db.QueryRow(`
		SELECT payload, expires_at FROM report_cache WHERE fingerprint = ?
	`, fingerprint).Scan(&payload, &expiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query report_cache table: %w", err)
	}

	expiry, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil || time.Now().UTC().After(expiry) {
		_, _ = c.db.Exec(`DELETE FROM report_cache WHERE fingerprint = ?`, fingerprint)
		return false, nil
	}

	if err := msgpack.Unmarshal(payload, out); err != nil {
		return false, fmt.Errorf("failed to decode cached report: %w", err)
	}
	return true, nil
}

// Put stores a result under its fingerprint with the scope columns used for
// targeted invalidation.
func (c *ReportCache) Put(fingerprint, masterUserID string, reportDate time.Time, pricingPolicyID string, value any) error {
	payload, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode report for cache: %w", err)
	}
	expiresAt := time.Now().UTC().Add(c.ttl).Format(time.RFC3339)
	_, err = c.db.Exec(`
		INSERT INTO report_cache (fingerprint, master_user_id, report_date, pricing_policy_id, payload, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at
	`, fingerprint, masterUserID, reportDate.Format("2006-01-02"), pricingPolicyID, payload, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert into report_cache table: %w", err)
	}
	return nil
}

// InvalidateScope drops every cached report of the tenant and policy whose
// report date is on or after the given date. New market data for a date can
// only affect reports valued on that date or later.
func (c *ReportCache) InvalidateScope(masterUserID string, date time.Time, pricingPolicyID string) error {
	_, err := c.db.Exec(`
		DELETE FROM report_cache
		WHERE master_user_id = ? AND pricing_policy_id = ? AND report_date >= ?
	`, masterUserID, pricingPolicyID, date.Format("2006-01-02"))
	if err != nil {
		return fmt.Errorf("failed to delete from report_cache table: %w", err)
	}
	return nil
}

// PurgeExpired removes entries past their TTL.
func (c *ReportCache) PurgeExpired() error {
	_, err := c.db.Exec(`DELETE FROM report_cache WHERE expires_at < ?`, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to delete from report_cache table: %w", err)
	}
	return nil
}
