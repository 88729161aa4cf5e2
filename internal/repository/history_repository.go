package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sokolovdp/finmars-core-sub005/internal/apperrors"
	"github.com/sokolovdp/finmars-core-sub005/internal/model"
)

// PriceHistoryRepository provides data access for stored instrument prices.
// Rows are unique on (instrument, pricing policy, date); the register
// pipeline upserts on that key.
type PriceHistoryRepository struct {
	db *sql.DB
}

// NewPriceHistoryRepository creates a new PriceHistoryRepository with the provided database connection.
func NewPriceHistoryRepository(db *sql.DB) *PriceHistoryRepository {
	return &PriceHistoryRepository{db: db}
}

const priceHistoryColumns = `
	id, instrument_id, pricing_policy_id, date, principal_price, accrued_price,
	factor, ytm, modified_duration, long_delta, short_delta, nav, cash_flow
`

func scanPriceHistory(rows *sql.Rows) (*model.PriceHistory, error) {
	var p model.PriceHistory
	var dateStr string
	err := rows.Scan(
		&p.ID, &p.InstrumentID, &p.PricingPolicyID, &dateStr,
		&p.PrincipalPrice, &p.AccruedPrice, &p.Factor, &p.YTM,
		&p.ModifiedDuration, &p.LongDelta, &p.ShortDelta, &p.Nav, &p.CashFlow,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan price_history table results: %w", err)
	}
	if p.Date, err = ParseTime(dateStr); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPricesOn returns every price row of the policy on the given date,
// keyed by instrument id.
func (s *PriceHistoryRepository) GetPricesOn(pricingPolicyID string, date time.Time) (map[string]*model.PriceHistory, error) {
	rows, err := s.db.Query(`
		SELECT `+priceHistoryColumns+`
		FROM price_history
		WHERE pricing_policy_id = ? AND date = ?
	`, pricingPolicyID, DateArg(date))
	if err != nil {
		return nil, fmt.Errorf("failed to query price_history table: %w", err)
	}
	defer rows.Close()

	prices := make(map[string]*model.PriceHistory)
	for rows.Next() {
		p, err := scanPriceHistory(rows)
		if err != nil {
			return nil, err
		}
		prices[p.InstrumentID] = p
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price_history table: %w", err)
	}

	return prices, nil
}

// Upsert writes or updates a price row keyed by
// (instrument, pricing policy, date).
func (s *PriceHistoryRepository) Upsert(p *model.PriceHistory) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	_, err := s.db.Exec(`
		INSERT INTO price_history (
			id, instrument_id, pricing_policy_id, date, principal_price,
			accrued_price, factor, ytm, modified_duration, long_delta,
			short_delta, nav, cash_flow
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(instrument_id, pricing_policy_id, date) DO UPDATE SET
			principal_price = excluded.principal_price,
			accrued_price = excluded.accrued_price,
			factor = excluded.factor,
			ytm = excluded.ytm,
			modified_duration = excluded.modified_duration,
			long_delta = excluded.long_delta,
			short_delta = excluded.short_delta,
			nav = excluded.nav,
			cash_flow = excluded.cash_flow
	`,
		p.ID, p.InstrumentID, p.PricingPolicyID, DateArg(p.Date), p.PrincipalPrice,
		p.AccruedPrice, p.Factor, p.YTM, p.ModifiedDuration, p.LongDelta,
		p.ShortDelta, p.Nav, p.CashFlow,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert into price_history table: %w", err)
	}
	return nil
}

// CacheInvalidator is notified when a history write makes cached reports
// stale. Invalidation is scoped by (tenant, date, pricing policy) rather
// than clearing the whole cache.
type CacheInvalidator interface {
	InvalidateScope(masterUserID string, date time.Time, pricingPolicyID string) error
}

// CurrencyHistoryRepository provides data access for stored FX rates.
// Rows are unique on (currency, pricing policy, date). A zero rate is
// refused at write.
type CurrencyHistoryRepository struct {
	db          *sql.DB
	invalidator CacheInvalidator
}

// NewCurrencyHistoryRepository creates a new CurrencyHistoryRepository with the provided database connection.
func NewCurrencyHistoryRepository(db *sql.DB) *CurrencyHistoryRepository {
	return &CurrencyHistoryRepository{db: db}
}

// SetInvalidator wires the report cache so FX writes invalidate the
// affected scope.
func (s *CurrencyHistoryRepository) SetInvalidator(invalidator CacheInvalidator) {
	s.invalidator = invalidator
}

// GetRatesUpTo returns every FX row of the policy dated on or before the
// given date as currencyID -> date string -> rate. Report builders revalue
// cost bases at the rate of each transaction's accounting date, so the full
// range is loaded once per report instead of per row.
func (s *CurrencyHistoryRepository) GetRatesUpTo(pricingPolicyID string, date time.Time) (map[string]map[string]float64, error) {
	rows, err := s.db.Query(`
		SELECT currency_id, date, fx_rate
		FROM currency_history
		WHERE pricing_policy_id = ? AND date <= ?
	`, pricingPolicyID, DateArg(date))
	if err != nil {
		return nil, fmt.Errorf("failed to query currency_history table: %w", err)
	}
	defer rows.Close()

	rates := make(map[string]map[string]float64)
	for rows.Next() {
		var currencyID, dateStr string
		var rate float64
		if err := rows.Scan(&currencyID, &dateStr, &rate); err != nil {
			return nil, fmt.Errorf("failed to scan currency_history table results: %w", err)
		}
		dateKey, err := ParseTime(dateStr)
		if err != nil {
			return nil, err
		}
		if rates[currencyID] == nil {
			rates[currencyID] = make(map[string]float64)
		}
		rates[currencyID][DateArg(dateKey)] = rate
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating currency_history table: %w", err)
	}

	return rates, nil
}

// GetRateOn returns the FX rate for one currency/policy/date triple.
func (s *CurrencyHistoryRepository) GetRateOn(currencyID, pricingPolicyID string, date time.Time) (float64, error) {
	var rate float64
	err := s.db.QueryRow(`
		SELECT fx_rate
		FROM currency_history
		WHERE currency_id = ? AND pricing_policy_id = ? AND date = ?
	`, currencyID, pricingPolicyID, DateArg(date)).Scan(&rate)
	if err == sql.ErrNoRows {
		return 0, apperrors.ErrCurrencyHistoryNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query currency_history table: %w", err)
	}
	return rate, nil
}

// Insert writes an FX observation. A zero rate is rejected
// (apperrors.ErrZeroFXRate). On success the report-cache scope covering the
// write is invalidated.
func (s *CurrencyHistoryRepository) Insert(masterUserID string, h *model.CurrencyHistory) error {
	if h.FXRate == 0 {
		return apperrors.ErrZeroFXRate
	}
	if h.ID == "" {
		h.ID = uuid.New().String()
	}

	_, err := s.db.Exec(`
		INSERT INTO currency_history (id, currency_id, pricing_policy_id, date, fx_rate)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(currency_id, pricing_policy_id, date) DO UPDATE SET
			fx_rate = excluded.fx_rate
	`, h.ID, h.CurrencyID, h.PricingPolicyID, DateArg(h.Date), h.FXRate)
	if err != nil {
		return fmt.Errorf("failed to insert into currency_history table: %w", err)
	}

	if s.invalidator != nil {
		if err := s.invalidator.InvalidateScope(masterUserID, h.Date, h.PricingPolicyID); err != nil {
			return fmt.Errorf("failed to invalidate report cache: %w", err)
		}
	}
	return nil
}
