package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/sokolovdp/finmars-core-sub005/internal/model"
)

// Fixture holds a minimal tenant universe: reference entities every report
// build joins against. Tests add transactions and market data on top.
type Fixture struct {
	MasterUserID string
	USD          model.Currency
	EUR          model.Currency
	Policy       model.PricingPolicy
	Portfolio    model.Portfolio
	Account      model.Account
	Strategy1    model.Strategy
	Defaults     model.EcosystemDefault
}

// NewFixture seeds the reference tables and ecosystem defaults for one
// tenant. USD is the ecosystem-default currency.
func NewFixture(t *testing.T, db *sql.DB) *Fixture {
	t.Helper()

	f := &Fixture{MasterUserID: MakeID()}
	f.USD = InsertCurrency(t, db, f.MasterUserID, "USD", "US Dollar")
	f.EUR = InsertCurrency(t, db, f.MasterUserID, "EUR", "Euro")
	f.Policy = InsertPricingPolicy(t, db, f.MasterUserID, "std", "Standard")
	f.Portfolio = InsertPortfolio(t, db, f.MasterUserID, "main", "Main Portfolio")
	f.Account = InsertAccount(t, db, f.MasterUserID, "acc", "Main Account")
	f.Strategy1 = InsertStrategy(t, db, f.MasterUserID, 1, "s1", "Strategy One")

	f.Defaults = model.EcosystemDefault{
		MasterUserID:    f.MasterUserID,
		CurrencyID:      f.USD.ID,
		PortfolioID:     f.Portfolio.ID,
		AccountID:       f.Account.ID,
		Strategy1ID:     f.Strategy1.ID,
		Strategy2ID:     f.Strategy1.ID,
		Strategy3ID:     f.Strategy1.ID,
		PricingPolicyID: f.Policy.ID,
	}
	_, err := db.Exec(`
		INSERT INTO ecosystem_default (master_user_id, currency_id, portfolio_id, account_id,
			strategy1_id, strategy2_id, strategy3_id, instrument_id, pricing_policy_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?)
	`, f.MasterUserID, f.USD.ID, f.Portfolio.ID, f.Account.ID,
		f.Strategy1.ID, f.Strategy1.ID, f.Strategy1.ID, f.Policy.ID)
	if err != nil {
		t.Fatalf("Failed to create test ecosystem default: %v", err)
	}
	return f
}

// InsertCurrency creates a currency row.
func InsertCurrency(t *testing.T, db *sql.DB, masterUserID, userCode, name string) model.Currency {
	t.Helper()
	c := model.Currency{ID: MakeID(), MasterUserID: masterUserID, UserCode: userCode, Name: name, ShortName: userCode}
	_, err := db.Exec(`
		INSERT INTO currency (id, master_user_id, user_code, name, short_name)
		VALUES (?, ?, ?, ?, ?)
	`, c.ID, c.MasterUserID, c.UserCode, c.Name, c.ShortName)
	if err != nil {
		t.Fatalf("Failed to create test currency: %v", err)
	}
	return c
}

// InsertPricingPolicy creates a pricing policy row.
func InsertPricingPolicy(t *testing.T, db *sql.DB, masterUserID, userCode, name string) model.PricingPolicy {
	t.Helper()
	p := model.PricingPolicy{ID: MakeID(), MasterUserID: masterUserID, UserCode: userCode, Name: name}
	_, err := db.Exec(`
		INSERT INTO pricing_policy (id, master_user_id, user_code, name)
		VALUES (?, ?, ?, ?)
	`, p.ID, p.MasterUserID, p.UserCode, p.Name)
	if err != nil {
		t.Fatalf("Failed to create test pricing policy: %v", err)
	}
	return p
}

// InsertPortfolio creates a portfolio row.
func InsertPortfolio(t *testing.T, db *sql.DB, masterUserID, userCode, name string) model.Portfolio {
	t.Helper()
	p := model.Portfolio{ID: MakeID(), MasterUserID: masterUserID, UserCode: userCode, Name: name, ShortName: userCode}
	_, err := db.Exec(`
		INSERT INTO portfolio (id, master_user_id, user_code, name, short_name)
		VALUES (?, ?, ?, ?, ?)
	`, p.ID, p.MasterUserID, p.UserCode, p.Name, p.ShortName)
	if err != nil {
		t.Fatalf("Failed to create test portfolio: %v", err)
	}
	return p
}

// InsertAccount creates an account row.
func InsertAccount(t *testing.T, db *sql.DB, masterUserID, userCode, name string) model.Account {
	t.Helper()
	a := model.Account{ID: MakeID(), MasterUserID: masterUserID, UserCode: userCode, Name: name, ShortName: userCode}
	_, err := db.Exec(`
		INSERT INTO account (id, master_user_id, user_code, name, short_name)
		VALUES (?, ?, ?, ?, ?)
	`, a.ID, a.MasterUserID, a.UserCode, a.Name, a.ShortName)
	if err != nil {
		t.Fatalf("Failed to create test account: %v", err)
	}
	return a
}

// InsertStrategy creates a strategy row.
func InsertStrategy(t *testing.T, db *sql.DB, masterUserID string, level int, userCode, name string) model.Strategy {
	t.Helper()
	s := model.Strategy{ID: MakeID(), MasterUserID: masterUserID, Level: level, UserCode: userCode, Name: name}
	_, err := db.Exec(`
		INSERT INTO strategy (id, master_user_id, level, user_code, name)
		VALUES (?, ?, ?, ?, ?)
	`, s.ID, s.MasterUserID, s.Level, s.UserCode, s.Name)
	if err != nil {
		t.Fatalf("Failed to create test strategy: %v", err)
	}
	return s
}

// InsertInstrument creates a general instrument priced in the given currency.
func InsertInstrument(t *testing.T, db *sql.DB, masterUserID, userCode string, pricingCurrencyID string) model.Instrument {
	t.Helper()
	i := model.Instrument{
		ID:                       MakeID(),
		MasterUserID:             masterUserID,
		UserCode:                 userCode,
		Name:                     userCode,
		ShortName:                userCode,
		InstrumentClass:          model.InstrumentClassGeneral,
		PricingCurrencyID:        pricingCurrencyID,
		AccruedCurrencyID:        pricingCurrencyID,
		PriceMultiplier:          1,
		AccruedMultiplier:        1,
		ExposureCalculationModel: model.ExposureMarketValue,
		UnderlyingLongMultiplier: 1,
	}
	_, err := db.Exec(`
		INSERT INTO instrument (id, master_user_id, user_code, name, short_name,
			instrument_class, pricing_currency_id, accrued_currency_id,
			price_multiplier, accrued_multiplier, exposure_calculation_model, underlying_long_multiplier)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, i.ID, i.MasterUserID, i.UserCode, i.Name, i.ShortName,
		string(i.InstrumentClass), i.PricingCurrencyID, i.AccruedCurrencyID,
		i.PriceMultiplier, i.AccruedMultiplier, string(i.ExposureCalculationModel), i.UnderlyingLongMultiplier)
	if err != nil {
		t.Fatalf("Failed to create test instrument: %v", err)
	}
	return i
}

// InsertPrice creates a price-history row.
func InsertPrice(t *testing.T, db *sql.DB, instrumentID, pricingPolicyID string, date time.Time, principalPrice float64) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO price_history (id, instrument_id, pricing_policy_id, date, principal_price)
		VALUES (?, ?, ?, ?, ?)
	`, MakeID(), instrumentID, pricingPolicyID, date.Format("2006-01-02"), principalPrice)
	if err != nil {
		t.Fatalf("Failed to create test price: %v", err)
	}
}

// InsertRate creates a currency-history row.
func InsertRate(t *testing.T, db *sql.DB, currencyID, pricingPolicyID string, date time.Time, rate float64) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO currency_history (id, currency_id, pricing_policy_id, date, fx_rate)
		VALUES (?, ?, ?, ?, ?)
	`, MakeID(), currencyID, pricingPolicyID, date.Format("2006-01-02"), rate)
	if err != nil {
		t.Fatalf("Failed to create test fx rate: %v", err)
	}
}

// TransactionBuilder provides a fluent interface for creating test
// transactions.
//
// Example usage:
//
//	testutil.NewTransaction(f).
//	    Buy(instrument.ID, 100, -1000).
//	    On("2024-01-10").
//	    Build(t, db)
type TransactionBuilder struct {
	txn model.Transaction
}

// NewTransaction creates a builder with the fixture's defaults filled in.
func NewTransaction(f *Fixture) *TransactionBuilder {
	return &TransactionBuilder{txn: model.Transaction{
		ID:                    MakeID(),
		MasterUserID:          f.MasterUserID,
		PortfolioID:           f.Portfolio.ID,
		TransactionCurrencyID: f.USD.ID,
		SettlementCurrencyID:  f.USD.ID,
		ReferenceFXRate:       1,
		AccountPositionID:     f.Account.ID,
		AccountCashID:         f.Account.ID,
		AccountInterimID:      f.Account.ID,
		Strategy1PositionID:   f.Strategy1.ID,
		Strategy1CashID:       f.Strategy1.ID,
	}}
}

// Buy books a position purchase: size units for the given principal
// (negative for an outflow).
func (b *TransactionBuilder) Buy(instrumentID string, size, principal float64) *TransactionBuilder {
	b.txn.TransactionClass = model.ClassBuy
	b.txn.InstrumentID = instrumentID
	b.txn.PositionSizeWithSign = size
	b.txn.PrincipalWithSign = principal
	b.txn.CashConsideration = principal
	return b
}

// Sell books a position sale.
func (b *TransactionBuilder) Sell(instrumentID string, size, principal float64) *TransactionBuilder {
	b.txn.TransactionClass = model.ClassSell
	b.txn.InstrumentID = instrumentID
	b.txn.PositionSizeWithSign = size
	b.txn.PrincipalWithSign = principal
	b.txn.CashConsideration = principal
	return b
}

// CashIn books an external cash inflow.
func (b *TransactionBuilder) CashIn(amount float64) *TransactionBuilder {
	b.txn.TransactionClass = model.ClassCashInflow
	b.txn.CashConsideration = amount
	return b
}

// CashOut books an external cash outflow.
func (b *TransactionBuilder) CashOut(amount float64) *TransactionBuilder {
	b.txn.TransactionClass = model.ClassCashOutflow
	b.txn.CashConsideration = amount
	return b
}

// WithClass overrides the transaction class.
func (b *TransactionBuilder) WithClass(class model.TransactionClass) *TransactionBuilder {
	b.txn.TransactionClass = class
	return b
}

// On sets transaction, accounting and cash dates to the same day.
func (b *TransactionBuilder) On(t *testing.T, date string) *TransactionBuilder {
	d := Date(t, date)
	b.txn.TransactionDate = d
	b.txn.AccountingDate = d
	b.txn.CashDate = d
	return b
}

// WithAccountingDate overrides the accounting date.
func (b *TransactionBuilder) WithAccountingDate(t *testing.T, date string) *TransactionBuilder {
	b.txn.AccountingDate = Date(t, date)
	return b
}

// WithCashDate overrides the cash date.
func (b *TransactionBuilder) WithCashDate(t *testing.T, date string) *TransactionBuilder {
	b.txn.CashDate = Date(t, date)
	return b
}

// WithCurrency sets transaction and settlement currency.
func (b *TransactionBuilder) WithCurrency(currencyID string) *TransactionBuilder {
	b.txn.TransactionCurrencyID = currencyID
	b.txn.SettlementCurrencyID = currencyID
	return b
}

// WithCarry sets the carry amount.
func (b *TransactionBuilder) WithCarry(carry float64) *TransactionBuilder {
	b.txn.CarryWithSign = carry
	return b
}

// WithOverheads sets the overheads amount.
func (b *TransactionBuilder) WithOverheads(overheads float64) *TransactionBuilder {
	b.txn.OverheadsWithSign = overheads
	return b
}

// WithTradePrice sets the trade price.
func (b *TransactionBuilder) WithTradePrice(price float64) *TransactionBuilder {
	b.txn.TradePrice = price
	return b
}

// WithPortfolio overrides the portfolio.
func (b *TransactionBuilder) WithPortfolio(portfolioID string) *TransactionBuilder {
	b.txn.PortfolioID = portfolioID
	return b
}

// WithPositionSize overrides the signed position size.
func (b *TransactionBuilder) WithPositionSize(size float64) *TransactionBuilder {
	b.txn.PositionSizeWithSign = size
	return b
}

// Deleted marks the row soft-deleted.
func (b *TransactionBuilder) Deleted() *TransactionBuilder {
	b.txn.IsDeleted = true
	return b
}

// Txn returns the built transaction without persisting it.
func (b *TransactionBuilder) Txn() *model.Transaction {
	t := b.txn
	return &t
}

// Build persists the transaction and returns it.
func (b *TransactionBuilder) Build(t *testing.T, db *sql.DB) *model.Transaction {
	t.Helper()
	txn := b.Txn()
	_, err := db.Exec(`
		INSERT INTO "transaction" (
			id, master_user_id, portfolio_id, transaction_class,
			instrument_id, transaction_currency_id, settlement_currency_id,
			position_size_with_sign, cash_consideration, principal_with_sign,
			carry_with_sign, overheads_with_sign, reference_fx_rate, trade_price,
			transaction_date, accounting_date, cash_date,
			account_position_id, account_cash_id, account_interim_id,
			strategy1_position_id, strategy1_cash_id, is_deleted
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		txn.ID, txn.MasterUserID, txn.PortfolioID, string(txn.TransactionClass),
		nullable(txn.InstrumentID), txn.TransactionCurrencyID, txn.SettlementCurrencyID,
		txn.PositionSizeWithSign, txn.CashConsideration, txn.PrincipalWithSign,
		txn.CarryWithSign, txn.OverheadsWithSign, txn.ReferenceFXRate, txn.TradePrice,
		txn.TransactionDate.Format("2006-01-02"), txn.AccountingDate.Format("2006-01-02"), txn.CashDate.Format("2006-01-02"),
		txn.AccountPositionID, txn.AccountCashID, txn.AccountInterimID,
		txn.Strategy1PositionID, txn.Strategy1CashID, txn.IsDeleted,
	)
	if err != nil {
		t.Fatalf("Failed to create test transaction: %v", err)
	}
	return txn
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// InsertRegister creates a portfolio register row.
func InsertRegister(t *testing.T, db *sql.DB, f *Fixture, userCode, portfolioID, linkedInstrumentID string, defaultPrice float64) model.PortfolioRegister {
	t.Helper()
	r := model.PortfolioRegister{
		ID:                       MakeID(),
		MasterUserID:             f.MasterUserID,
		UserCode:                 userCode,
		Name:                     userCode,
		PortfolioID:              portfolioID,
		LinkedInstrumentID:       linkedInstrumentID,
		ValuationPricingPolicyID: f.Policy.ID,
		ValuationCurrencyID:      f.USD.ID,
		DefaultPrice:             defaultPrice,
	}
	_, err := db.Exec(`
		INSERT INTO portfolio_register (id, master_user_id, user_code, name, portfolio_id,
			linked_instrument_id, valuation_pricing_policy_id, valuation_currency_id, default_price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.MasterUserID, r.UserCode, r.Name, r.PortfolioID,
		r.LinkedInstrumentID, r.ValuationPricingPolicyID, r.ValuationCurrencyID, r.DefaultPrice)
	if err != nil {
		t.Fatalf("Failed to create test register: %v", err)
	}
	return r
}
