package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sokolovdp/finmars-core-sub005/internal/apperrors"
	"github.com/sokolovdp/finmars-core-sub005/internal/model"
)

// RegisterRepository provides data access for portfolio registers, their
// derived records, bundles and performance snapshots. Register records are
// exclusively owned by the register pipeline, which deletes and re-creates
// cash-flow records on every run.
type RegisterRepository struct {
	db *sql.DB
}

// NewRegisterRepository creates a new RegisterRepository with the provided database connection.
func NewRegisterRepository(db *sql.DB) *RegisterRepository {
	return &RegisterRepository{db: db}
}

const registerColumns = `
	id, master_user_id, user_code, name, portfolio_id,
	COALESCE(linked_instrument_id, ''), COALESCE(valuation_pricing_policy_id, ''),
	COALESCE(valuation_currency_id, ''), default_price
`

func scanRegister(rows *sql.Rows) (*model.PortfolioRegister, error) {
	var r model.PortfolioRegister
	err := rows.Scan(
		&r.ID, &r.MasterUserID, &r.UserCode, &r.Name, &r.PortfolioID,
		&r.LinkedInstrumentID, &r.ValuationPricingPolicyID,
		&r.ValuationCurrencyID, &r.DefaultPrice,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan portfolio_register table results: %w", err)
	}
	return &r, nil
}

func (s *RegisterRepository) queryRegisters(query string, args ...any) ([]*model.PortfolioRegister, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio_register table: %w", err)
	}
	defer rows.Close()

	var registers []*model.PortfolioRegister
	for rows.Next() {
		r, err := scanRegister(rows)
		if err != nil {
			return nil, err
		}
		registers = append(registers, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolio_register table: %w", err)
	}

	return registers, nil
}

// GetRegisters returns every register of the tenant.
func (s *RegisterRepository) GetRegisters(masterUserID string) ([]*model.PortfolioRegister, error) {
	return s.queryRegisters(`
		SELECT `+registerColumns+`
		FROM portfolio_register
		WHERE master_user_id = ?
		ORDER BY user_code ASC
	`, masterUserID)
}

// GetRegisterTenants lists the distinct tenants that have registers
// configured. The nightly scheduler iterates this set.
func (s *RegisterRepository) GetRegisterTenants() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT master_user_id FROM portfolio_register ORDER BY master_user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio_register table: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var masterUserID string
		if err := rows.Scan(&masterUserID); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio_register table results: %w", err)
		}
		tenants = append(tenants, masterUserID)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolio_register table: %w", err)
	}
	return tenants, nil
}

// GetRegistersForPortfolios returns the tenant's registers whose portfolio
// is in the given set.
func (s *RegisterRepository) GetRegistersForPortfolios(masterUserID string, portfolioIDs []string) ([]*model.PortfolioRegister, error) {
	if len(portfolioIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT ` + registerColumns + `
		FROM portfolio_register
		WHERE master_user_id = ?
		AND portfolio_id IN (` + Placeholders(len(portfolioIDs)) + `)
		ORDER BY user_code ASC
	`
	args := make([]any, 0, len(portfolioIDs)+1)
	args = append(args, masterUserID)
	for _, id := range portfolioIDs {
		args = append(args, id)
	}
	return s.queryRegisters(query, args...)
}

// GetRegistersByUserCodes resolves register user codes to registers.
func (s *RegisterRepository) GetRegistersByUserCodes(masterUserID string, userCodes []string) ([]*model.PortfolioRegister, error) {
	if len(userCodes) == 0 {
		return nil, nil
	}
	query := `
		SELECT ` + registerColumns + `
		FROM portfolio_register
		WHERE master_user_id = ?
		AND user_code IN (` + Placeholders(len(userCodes)) + `)
		ORDER BY user_code ASC
	`
	args := make([]any, 0, len(userCodes)+1)
	args = append(args, masterUserID)
	for _, code := range userCodes {
		args = append(args, code)
	}
	return s.queryRegisters(query, args...)
}

// CreateRegister inserts a register row.
func (s *RegisterRepository) CreateRegister(r *model.PortfolioRegister) error {
	_, err := s.db.Exec(`
		INSERT INTO portfolio_register (
			id, master_user_id, user_code, name, portfolio_id,
			linked_instrument_id, valuation_pricing_policy_id,
			valuation_currency_id, default_price
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.MasterUserID, r.UserCode, r.Name, r.PortfolioID,
		NullStr(r.LinkedInstrumentID), NullStr(r.ValuationPricingPolicyID),
		NullStr(r.ValuationCurrencyID), r.DefaultPrice,
	)
	if err != nil {
		return fmt.Errorf("failed to insert into portfolio_register table: %w", err)
	}
	return nil
}

// CreateBundle inserts a bundle and its register memberships.
func (s *RegisterRepository) CreateBundle(b *model.PortfolioBundle) error {
	if _, err := s.db.Exec(`
		INSERT INTO portfolio_bundle (id, master_user_id, user_code, name)
		VALUES (?, ?, ?, ?)
	`, b.ID, b.MasterUserID, b.UserCode, b.Name); err != nil {
		return fmt.Errorf("failed to insert into portfolio_bundle table: %w", err)
	}

	for _, registerID := range b.RegisterIDs {
		if _, err := s.db.Exec(`
			INSERT INTO bundle_register (bundle_id, register_id) VALUES (?, ?)
		`, b.ID, registerID); err != nil {
			return fmt.Errorf("failed to insert into bundle_register table: %w", err)
		}
	}
	return nil
}

// GetBundleByUserCode resolves a bundle and its register ids.
func (s *RegisterRepository) GetBundleByUserCode(masterUserID, userCode string) (*model.PortfolioBundle, error) {
	var b model.PortfolioBundle
	err := s.db.QueryRow(`
		SELECT id, master_user_id, user_code, name
		FROM portfolio_bundle
		WHERE master_user_id = ? AND user_code = ?
	`, masterUserID, userCode).Scan(&b.ID, &b.MasterUserID, &b.UserCode, &b.Name)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrBundleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio_bundle table: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT register_id FROM bundle_register WHERE bundle_id = ?
	`, b.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bundle_register table: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var registerID string
		if err := rows.Scan(&registerID); err != nil {
			return nil, fmt.Errorf("failed to scan bundle_register table results: %w", err)
		}
		b.RegisterIDs = append(b.RegisterIDs, registerID)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bundle_register table: %w", err)
	}

	return &b, nil
}

const recordColumns = `
	id, master_user_id, register_id, transaction_id, COALESCE(complex_transaction_id, ''),
	transaction_class, transaction_date, cash_amount, COALESCE(cash_currency_id, ''),
	COALESCE(valuation_currency_id, ''), fx_rate, cash_amount_valuation_currency,
	nav_previous_day_valuation_currency, n_shares_previous_day, n_shares_added,
	dealing_price_valuation_currency, rolling_shares_of_the_day,
	share_price_calculation_type, COALESCE(previous_date_record_id, '')
`

func scanRecord(rows *sql.Rows) (*model.PortfolioRegisterRecord, error) {
	var r model.PortfolioRegisterRecord
	var dateStr string
	err := rows.Scan(
		&r.ID, &r.MasterUserID, &r.RegisterID, &r.TransactionID, &r.ComplexTransactionID,
		&r.TransactionClass, &dateStr, &r.CashAmount, &r.CashCurrencyID,
		&r.ValuationCurrencyID, &r.FXRate, &r.CashAmountValuationCurrency,
		&r.NavPreviousDayValuationCurrency, &r.NSharesPreviousDay, &r.NSharesAdded,
		&r.DealingPriceValuationCurrency, &r.RollingSharesOfTheDay,
		&r.SharePriceCalculationType, &r.PreviousDateRecordID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan portfolio_register_record table results: %w", err)
	}
	if r.TransactionDate, err = ParseTime(dateStr); err != nil {
		return nil, err
	}
	return &r, nil
}

// DeleteCashFlowRecords removes the cash inflow/outflow records for the
// given registers. The pipeline pre-deletes before deriving fresh records;
// injection and distribution records are kept.
func (s *RegisterRepository) DeleteCashFlowRecords(registerIDs []string) error {
	if len(registerIDs) == 0 {
		return nil
	}
	query := `
		DELETE FROM portfolio_register_record
		WHERE transaction_class IN (?, ?)
		AND register_id IN (` + Placeholders(len(registerIDs)) + `)
	`
	args := []any{string(model.ClassCashInflow), string(model.ClassCashOutflow)}
	for _, id := range registerIDs {
		args = append(args, id)
	}
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to delete from portfolio_register_record table: %w", err)
	}
	return nil
}

// InsertRecord stores one derived register record. A record reusing an
// existing id replaces that row, so reruns refresh kept records in place.
func (s *RegisterRepository) InsertRecord(r *model.PortfolioRegisterRecord) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	_, err := s.db.Exec(`
		INSERT INTO portfolio_register_record (
			id, master_user_id, register_id, transaction_id, complex_transaction_id,
			transaction_class, transaction_date, cash_amount, cash_currency_id,
			valuation_currency_id, fx_rate, cash_amount_valuation_currency,
			nav_previous_day_valuation_currency, n_shares_previous_day, n_shares_added,
			dealing_price_valuation_currency, rolling_shares_of_the_day,
			share_price_calculation_type, previous_date_record_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			transaction_date = excluded.transaction_date,
			cash_amount = excluded.cash_amount,
			cash_currency_id = excluded.cash_currency_id,
			valuation_currency_id = excluded.valuation_currency_id,
			fx_rate = excluded.fx_rate,
			cash_amount_valuation_currency = excluded.cash_amount_valuation_currency,
			nav_previous_day_valuation_currency = excluded.nav_previous_day_valuation_currency,
			n_shares_previous_day = excluded.n_shares_previous_day,
			n_shares_added = excluded.n_shares_added,
			dealing_price_valuation_currency = excluded.dealing_price_valuation_currency,
			rolling_shares_of_the_day = excluded.rolling_shares_of_the_day,
			share_price_calculation_type = excluded.share_price_calculation_type,
			previous_date_record_id = excluded.previous_date_record_id
	`,
		r.ID, r.MasterUserID, r.RegisterID, r.TransactionID, NullStr(r.ComplexTransactionID),
		string(r.TransactionClass), DateArg(r.TransactionDate), r.CashAmount, NullStr(r.CashCurrencyID),
		NullStr(r.ValuationCurrencyID), r.FXRate, r.CashAmountValuationCurrency,
		r.NavPreviousDayValuationCurrency, r.NSharesPreviousDay, r.NSharesAdded,
		r.DealingPriceValuationCurrency, r.RollingSharesOfTheDay,
		string(r.SharePriceCalculationType), NullStr(r.PreviousDateRecordID),
	)
	if err != nil {
		return fmt.Errorf("failed to insert into portfolio_register_record table: %w", err)
	}
	return nil
}

// GetRecords returns the register's records ordered by
// (transaction_date, id). This is the documented "previous record" order.
func (s *RegisterRepository) GetRecords(registerID string) ([]*model.PortfolioRegisterRecord, error) {
	rows, err := s.db.Query(`
		SELECT `+recordColumns+`
		FROM portfolio_register_record
		WHERE register_id = ?
		ORDER BY transaction_date ASC, id ASC
	`, registerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio_register_record table: %w", err)
	}
	defer rows.Close()

	var records []*model.PortfolioRegisterRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolio_register_record table: %w", err)
	}

	return records, nil
}

// GetLatestRecordOnOrBefore finds the register record effective on the
// given date: the last one by (transaction_date, id) dated on or before it.
// Returns nil when the register has no record yet.
func (s *RegisterRepository) GetLatestRecordOnOrBefore(registerID string, date time.Time) (*model.PortfolioRegisterRecord, error) {
	rows, err := s.db.Query(`
		SELECT `+recordColumns+`
		FROM portfolio_register_record
		WHERE register_id = ? AND transaction_date <= ?
		ORDER BY transaction_date DESC, id DESC
		LIMIT 1
	`, registerID, DateArg(date))
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio_register_record table: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err = rows.Err(); err != nil {
			return nil, fmt.Errorf("error iterating portfolio_register_record table: %w", err)
		}
		return nil, nil
	}
	return scanRecord(rows)
}

// UpsertPortfolioHistory writes a performance snapshot, replacing any
// previous snapshot with the same user code.
func (s *RegisterRepository) UpsertPortfolioHistory(h *model.PortfolioHistoryRecord) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	_, err := s.db.Exec(`
		INSERT INTO portfolio_history (
			id, master_user_id, user_code, portfolio_id, currency_id,
			pricing_policy_id, period_type, date_from, date, nav, cash_flow,
			cumulative_return, annualized_return, status, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_code) DO UPDATE SET
			nav = excluded.nav,
			cash_flow = excluded.cash_flow,
			cumulative_return = excluded.cumulative_return,
			annualized_return = excluded.annualized_return,
			status = excluded.status,
			error_message = excluded.error_message
	`,
		h.ID, h.MasterUserID, h.UserCode, h.PortfolioID, NullStr(h.CurrencyID),
		NullStr(h.PricingPolicyID), h.PeriodType, DateArg(h.DateFrom), DateArg(h.Date),
		h.Nav, h.CashFlow, h.CumulativeReturn, h.AnnualizedReturn,
		string(h.Status), NullStr(h.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert into portfolio_history table: %w", err)
	}
	return nil
}
