package repository

import (
	"database/sql"
	"fmt"

	"github.com/sokolovdp/finmars-core-sub005/internal/apperrors"
	"github.com/sokolovdp/finmars-core-sub005/internal/model"
)

// ReferenceRepository provides read access to the reference-data store:
// currencies, instruments, accounts, strategies, portfolios, pricing
// policies and the per-tenant ecosystem defaults. The reporting core treats
// all of these as read-only.
type ReferenceRepository struct {
	db *sql.DB
}

// NewReferenceRepository creates a new ReferenceRepository with the provided database connection.
func NewReferenceRepository(db *sql.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

// GetCurrencies returns every currency of the tenant keyed by id.
func (s *ReferenceRepository) GetCurrencies(masterUserID string) (map[string]*model.Currency, error) {
	rows, err := s.db.Query(`
		SELECT id, master_user_id, user_code, name, COALESCE(short_name, '')
		FROM currency
		WHERE master_user_id = ?
	`, masterUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to query currency table: %w", err)
	}
	defer rows.Close()

	currencies := make(map[string]*model.Currency)
	for rows.Next() {
		var c model.Currency
		if err := rows.Scan(&c.ID, &c.MasterUserID, &c.UserCode, &c.Name, &c.ShortName); err != nil {
			return nil, fmt.Errorf("failed to scan currency table results: %w", err)
		}
		currencies[c.ID] = &c
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating currency table: %w", err)
	}

	return currencies, nil
}

// GetInstruments returns every instrument of the tenant keyed by id.
func (s *ReferenceRepository) GetInstruments(masterUserID string) (map[string]*model.Instrument, error) {
	rows, err := s.db.Query(`
		SELECT id, master_user_id, user_code, name, COALESCE(short_name, ''),
		       COALESCE(instrument_type_id, ''), instrument_class,
		       pricing_currency_id, accrued_currency_id,
		       price_multiplier, accrued_multiplier, default_price,
		       exposure_calculation_model, underlying_long_multiplier,
		       COALESCE(long_underlying_id, ''), COALESCE(co_directional_currency_id, ''),
		       has_linked_with_portfolio
		FROM instrument
		WHERE master_user_id = ?
	`, masterUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to query instrument table: %w", err)
	}
	defer rows.Close()

	instruments := make(map[string]*model.Instrument)
	for rows.Next() {
		var i model.Instrument
		err := rows.Scan(
			&i.ID, &i.MasterUserID, &i.UserCode, &i.Name, &i.ShortName,
			&i.InstrumentTypeID, &i.InstrumentClass,
			&i.PricingCurrencyID, &i.AccruedCurrencyID,
			&i.PriceMultiplier, &i.AccruedMultiplier, &i.DefaultPrice,
			&i.ExposureCalculationModel, &i.UnderlyingLongMultiplier,
			&i.LongUnderlyingID, &i.CoDirectionalCurrencyID,
			&i.HasLinkedWithPortfolio,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instrument table results: %w", err)
		}
		instruments[i.ID] = &i
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instrument table: %w", err)
	}

	return instruments, nil
}

// GetInstrumentTypes returns every instrument type of the tenant keyed by id.
func (s *ReferenceRepository) GetInstrumentTypes(masterUserID string) (map[string]*model.InstrumentType, error) {
	rows, err := s.db.Query(`
		SELECT id, master_user_id, user_code, name, has_second_exposure_currency
		FROM instrument_type
		WHERE master_user_id = ?
	`, masterUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to query instrument_type table: %w", err)
	}
	defer rows.Close()

	types := make(map[string]*model.InstrumentType)
	for rows.Next() {
		var t model.InstrumentType
		if err := rows.Scan(&t.ID, &t.MasterUserID, &t.UserCode, &t.Name, &t.HasSecondExposureCurrency); err != nil {
			return nil, fmt.Errorf("failed to scan instrument_type table results: %w", err)
		}
		types[t.ID] = &t
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instrument_type table: %w", err)
	}

	return types, nil
}

// GetAccounts returns every account of the tenant keyed by id.
func (s *ReferenceRepository) GetAccounts(masterUserID string) (map[string]*model.Account, error) {
	rows, err := s.db.Query(`
		SELECT id, master_user_id, user_code, name, COALESCE(short_name, '')
		FROM account
		WHERE master_user_id = ?
	`, masterUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to query account table: %w", err)
	}
	defer rows.Close()

	accounts := make(map[string]*model.Account)
	for rows.Next() {
		var a model.Account
		if err := rows.Scan(&a.ID, &a.MasterUserID, &a.UserCode, &a.Name, &a.ShortName); err != nil {
			return nil, fmt.Errorf("failed to scan account table results: %w", err)
		}
		accounts[a.ID] = &a
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account table: %w", err)
	}

	return accounts, nil
}

// GetStrategies returns every strategy of the tenant keyed by id, all three
// levels together.
func (s *ReferenceRepository) GetStrategies(masterUserID string) (map[string]*model.Strategy, error) {
	rows, err := s.db.Query(`
		SELECT id, master_user_id, level, user_code, name
		FROM strategy
		WHERE master_user_id = ?
	`, masterUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategy table: %w", err)
	}
	defer rows.Close()

	strategies := make(map[string]*model.Strategy)
	for rows.Next() {
		var st model.Strategy
		if err := rows.Scan(&st.ID, &st.MasterUserID, &st.Level, &st.UserCode, &st.Name); err != nil {
			return nil, fmt.Errorf("failed to scan strategy table results: %w", err)
		}
		strategies[st.ID] = &st
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating strategy table: %w", err)
	}

	return strategies, nil
}

// GetPortfolios returns every portfolio of the tenant keyed by id.
func (s *ReferenceRepository) GetPortfolios(masterUserID string) (map[string]*model.Portfolio, error) {
	rows, err := s.db.Query(`
		SELECT id, master_user_id, user_code, name, COALESCE(short_name, '')
		FROM portfolio
		WHERE master_user_id = ?
	`, masterUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio table: %w", err)
	}
	defer rows.Close()

	portfolios := make(map[string]*model.Portfolio)
	for rows.Next() {
		var p model.Portfolio
		if err := rows.Scan(&p.ID, &p.MasterUserID, &p.UserCode, &p.Name, &p.ShortName); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio table results: %w", err)
		}
		portfolios[p.ID] = &p
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolio table: %w", err)
	}

	return portfolios, nil
}

// GetPortfoliosByUserCodes resolves a list of portfolio user codes to
// portfolios. Unknown user codes are silently skipped, matching the filter
// semantics of the pipeline task options.
func (s *ReferenceRepository) GetPortfoliosByUserCodes(masterUserID string, userCodes []string) ([]model.Portfolio, error) {
	if len(userCodes) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, master_user_id, user_code, name, COALESCE(short_name, '')
		FROM portfolio
		WHERE master_user_id = ? AND user_code IN (` + Placeholders(len(userCodes)) + `)
	`
	args := make([]any, 0, len(userCodes)+1)
	args = append(args, masterUserID)
	for _, code := range userCodes {
		args = append(args, code)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio table: %w", err)
	}
	defer rows.Close()

	var portfolios []model.Portfolio
	for rows.Next() {
		var p model.Portfolio
		if err := rows.Scan(&p.ID, &p.MasterUserID, &p.UserCode, &p.Name, &p.ShortName); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio table results: %w", err)
		}
		portfolios = append(portfolios, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolio table: %w", err)
	}

	return portfolios, nil
}

// GetPricingPolicies returns every pricing policy of the tenant.
func (s *ReferenceRepository) GetPricingPolicies(masterUserID string) ([]model.PricingPolicy, error) {
	rows, err := s.db.Query(`
		SELECT id, master_user_id, user_code, name
		FROM pricing_policy
		WHERE master_user_id = ?
	`, masterUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pricing_policy table: %w", err)
	}
	defer rows.Close()

	var policies []model.PricingPolicy
	for rows.Next() {
		var p model.PricingPolicy
		if err := rows.Scan(&p.ID, &p.MasterUserID, &p.UserCode, &p.Name); err != nil {
			return nil, fmt.Errorf("failed to scan pricing_policy table results: %w", err)
		}
		policies = append(policies, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pricing_policy table: %w", err)
	}

	return policies, nil
}

// GetEcosystemDefault returns the tenant's placeholder entity row.
func (s *ReferenceRepository) GetEcosystemDefault(masterUserID string) (model.EcosystemDefault, error) {
	var d model.EcosystemDefault
	var portfolioID, accountID, s1, s2, s3, instrumentID, policyID sql.NullString

	err := s.db.QueryRow(`
		SELECT master_user_id, currency_id, portfolio_id, account_id,
		       strategy1_id, strategy2_id, strategy3_id, instrument_id, pricing_policy_id
		FROM ecosystem_default
		WHERE master_user_id = ?
	`, masterUserID).Scan(
		&d.MasterUserID, &d.CurrencyID, &portfolioID, &accountID,
		&s1, &s2, &s3, &instrumentID, &policyID,
	)
	if err == sql.ErrNoRows {
		return model.EcosystemDefault{}, apperrors.ErrEcosystemDefaultNotFound
	}
	if err != nil {
		return model.EcosystemDefault{}, fmt.Errorf("failed to scan ecosystem_default table results: %w", err)
	}

	d.PortfolioID = StrOrEmpty(portfolioID)
	d.AccountID = StrOrEmpty(accountID)
	d.Strategy1ID = StrOrEmpty(s1)
	d.Strategy2ID = StrOrEmpty(s2)
	d.Strategy3ID = StrOrEmpty(s3)
	d.InstrumentID = StrOrEmpty(instrumentID)
	d.PricingPolicyID = StrOrEmpty(policyID)

	return d, nil
}

// MarkInstrumentLinked flags an instrument as backed by a portfolio
// register. Called when a register is created.
func (s *ReferenceRepository) MarkInstrumentLinked(instrumentID string) error {
	result, err := s.db.Exec(`
		UPDATE instrument SET has_linked_with_portfolio = TRUE WHERE id = ?
	`, instrumentID)
	if err != nil {
		return fmt.Errorf("failed to update instrument table: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrInstrumentNotFound
	}
	return nil
}
