package model

import "time"

// SharePriceCalculationType records how a register record's dealing price
// was determined.
type SharePriceCalculationType string

const (
	// SharePriceAutomatic means the dealing price was derived from the
	// previous-day NAV (or the register's default price).
	SharePriceAutomatic SharePriceCalculationType = "automatic"
	// SharePriceManual means the booked transaction carried an explicit
	// trade price for a cash inflow/outflow.
	SharePriceManual SharePriceCalculationType = "manual"
)

// PortfolioRegister treats a portfolio as a priceable instrument. It maps
// the portfolio onto a linked instrument whose price history is written by
// the register pipeline.
type PortfolioRegister struct {
	ID                        string  `json:"id"`
	MasterUserID              string  `json:"masterUserId"`
	UserCode                  string  `json:"userCode"`
	Name                      string  `json:"name"`
	PortfolioID               string  `json:"portfolioId"`
	LinkedInstrumentID        string  `json:"linkedInstrumentId"`
	ValuationPricingPolicyID  string  `json:"valuationPricingPolicyId"`
	ValuationCurrencyID       string  `json:"valuationCurrencyId"`
	DefaultPrice              float64 `json:"defaultPrice"`
}

// PortfolioBundle is a named set of registers evaluated together by the
// performance builder. Creating a register auto-creates a bundle of the
// same user code containing that register.
type PortfolioBundle struct {
	ID           string   `json:"id"`
	MasterUserID string   `json:"masterUserId"`
	UserCode     string   `json:"userCode"`
	Name         string   `json:"name"`
	RegisterIDs  []string `json:"registerIds"`
}

// PortfolioRegisterRecord is the derived row produced for each cash-flow
// transaction of a register's portfolio. Within one register, ordering by
// (transaction date, id) yields RollingSharesOfTheDay equal to the running
// sum of NSharesAdded.
type PortfolioRegisterRecord struct {
	ID                   string           `json:"id"`
	MasterUserID         string           `json:"masterUserId"`
	RegisterID           string           `json:"registerId"`
	TransactionID        string           `json:"transactionId"`
	ComplexTransactionID string           `json:"complexTransactionId,omitempty"`
	TransactionClass     TransactionClass `json:"transactionClass"`
	TransactionDate      time.Time        `json:"transactionDate"`

	CashAmount                      float64 `json:"cashAmount"`
	CashCurrencyID                  string  `json:"cashCurrencyId"`
	ValuationCurrencyID             string  `json:"valuationCurrencyId"`
	FXRate                          float64 `json:"fxRate"`
	CashAmountValuationCurrency     float64 `json:"cashAmountValuationCurrency"`
	NavPreviousDayValuationCurrency float64 `json:"navPreviousDayValuationCurrency"`
	NSharesPreviousDay              float64 `json:"nSharesPreviousDay"`
	NSharesAdded                    float64 `json:"nSharesAdded"`
	DealingPriceValuationCurrency   float64 `json:"dealingPriceValuationCurrency"`
	RollingSharesOfTheDay           float64 `json:"rollingSharesOfTheDay"`

	SharePriceCalculationType SharePriceCalculationType `json:"sharePriceCalculationType"`
	PreviousDateRecordID      string                    `json:"previousDateRecordId,omitempty"`
}

// PortfolioHistoryStatus marks whether a performance snapshot computed
// cleanly.
type PortfolioHistoryStatus string

const (
	PortfolioHistoryOK    PortfolioHistoryStatus = "ok"
	PortfolioHistoryError PortfolioHistoryStatus = "error"
)

// PortfolioHistoryRecord is a per-(portfolio, period type, window) snapshot
// of performance outputs, recomputed on demand and addressed by a unique
// generated user code.
type PortfolioHistoryRecord struct {
	ID               string                 `json:"id"`
	MasterUserID     string                 `json:"masterUserId"`
	UserCode         string                 `json:"userCode"`
	PortfolioID      string                 `json:"portfolioId"`
	CurrencyID       string                 `json:"currencyId"`
	PricingPolicyID  string                 `json:"pricingPolicyId"`
	PeriodType       string                 `json:"periodType"`
	DateFrom         time.Time              `json:"dateFrom"`
	Date             time.Time              `json:"date"`
	Nav              float64                `json:"nav"`
	CashFlow         float64                `json:"cashFlow"`
	CumulativeReturn float64                `json:"cumulativeReturn"`
	AnnualizedReturn float64                `json:"annualizedReturn"`
	Status           PortfolioHistoryStatus `json:"status"`
	ErrorMessage     string                 `json:"errorMessage,omitempty"`
}
