package model

import "time"

// TransactionClass identifies the accounting nature of a ledger row.
type TransactionClass string

const (
	ClassBuy             TransactionClass = "buy"
	ClassSell            TransactionClass = "sell"
	ClassCashInflow      TransactionClass = "cash_inflow"
	ClassCashOutflow     TransactionClass = "cash_outflow"
	ClassInstrumentPL    TransactionClass = "instrument_pl"
	ClassTransactionPL   TransactionClass = "transaction_pl"
	ClassFXTrade         TransactionClass = "fx_trade"
	ClassFXVariation     TransactionClass = "fx_variation"
	ClassDistribution    TransactionClass = "distribution"
	ClassInjection       TransactionClass = "injection"
	ClassInitialPosition TransactionClass = "initial_position"
	ClassInitialCash     TransactionClass = "initial_cash"
)

// IsInitial reports whether the class is one of the initial-position classes.
// Initial rows contribute to a report only when their effective date equals
// the report date.
func (c TransactionClass) IsInitial() bool {
	return c == ClassInitialPosition || c == ClassInitialCash
}

// IsCashFlow reports whether the class represents an external cash flow into
// or out of a portfolio. Cash-flow rows drive the portfolio-register pipeline.
func (c TransactionClass) IsCashFlow() bool {
	switch c {
	case ClassCashInflow, ClassCashOutflow, ClassInjection, ClassDistribution:
		return true
	}
	return false
}

// ComplexTransactionStatus is the booking state of a complex transaction.
type ComplexTransactionStatus string

const (
	ComplexStatusBooked  ComplexTransactionStatus = "booked"
	ComplexStatusPending ComplexTransactionStatus = "pending"
	ComplexStatusIgnored ComplexTransactionStatus = "ignored"
)

// ComplexTransaction groups several base transactions booked together
// (e.g. the position and cash legs of one trade).
type ComplexTransaction struct {
	ID           string                   `json:"id"`
	MasterUserID string                   `json:"masterUserId"`
	Code         int64                    `json:"code"`
	Status       ComplexTransactionStatus `json:"status"`
	Date         time.Time                `json:"date"`
	Text         string                   `json:"text"`
}

// Transaction is one ledger row. The ledger is append-only from the reporting
// viewpoint; rows with IsDeleted = true are ignored by every builder.
type Transaction struct {
	ID                   string           `json:"id"`
	MasterUserID         string           `json:"masterUserId"`
	ComplexTransactionID string           `json:"complexTransactionId,omitempty"`
	PortfolioID          string           `json:"portfolioId"`
	TransactionClass     TransactionClass `json:"transactionClass"`

	InstrumentID          string `json:"instrumentId,omitempty"` // "" for cash-only rows
	TransactionCurrencyID string `json:"transactionCurrencyId"`
	SettlementCurrencyID  string `json:"settlementCurrencyId"`

	PositionSizeWithSign float64 `json:"positionSizeWithSign"`
	CashConsideration    float64 `json:"cashConsideration"`
	PrincipalWithSign    float64 `json:"principalWithSign"`
	CarryWithSign        float64 `json:"carryWithSign"`
	OverheadsWithSign    float64 `json:"overheadsWithSign"`
	ReferenceFXRate      float64 `json:"referenceFxRate"`
	TradePrice           float64 `json:"tradePrice"`

	TransactionDate time.Time `json:"transactionDate"`
	AccountingDate  time.Time `json:"accountingDate"`
	CashDate        time.Time `json:"cashDate"`

	AccountPositionID string `json:"accountPositionId"`
	AccountCashID     string `json:"accountCashId"`
	AccountInterimID  string `json:"accountInterimId"`

	Strategy1PositionID string `json:"strategy1PositionId"`
	Strategy2PositionID string `json:"strategy2PositionId"`
	Strategy3PositionID string `json:"strategy3PositionId"`
	Strategy1CashID     string `json:"strategy1CashId"`
	Strategy2CashID     string `json:"strategy2CashId"`
	Strategy3CashID     string `json:"strategy3CashId"`

	AllocationBalanceID string `json:"allocationBalanceId"`
	AllocationPLID      string `json:"allocationPlId"`

	UserDate1 time.Time `json:"userDate1,omitempty"`
	UserDate2 time.Time `json:"userDate2,omitempty"`
	UserDate3 time.Time `json:"userDate3,omitempty"`
	UserDate4 time.Time `json:"userDate4,omitempty"`
	UserDate5 time.Time `json:"userDate5,omitempty"`

	IsDeleted bool      `json:"isDeleted"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// MinDate returns the earlier of accounting and cash date. It is the single
// effective date used for ordering and for the initial-position gate.
func (t *Transaction) MinDate() time.Time {
	if t.CashDate.Before(t.AccountingDate) {
		return t.CashDate
	}
	return t.AccountingDate
}
