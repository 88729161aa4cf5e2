// Package report implements the reporting core: consolidation of ledger
// transactions along configurable dimensions, balance and P&L valuation,
// and windowed transaction listings with custom-field evaluation.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/sokolovdp/finmars-core-sub005/internal/apperrors"
	"github.com/sokolovdp/finmars-core-sub005/internal/model"
)

// Mode is the consolidation mode of one report dimension.
type Mode string

const (
	// ModeIgnore collapses the dimension: all transactions sum into one
	// bucket on that axis and the key is back-filled from the ecosystem
	// defaults.
	ModeIgnore Mode = "ignore"
	// ModeIndependent keeps the dimension as its own group-by key.
	ModeIndependent Mode = "independent"
	// ModeInterdependent keeps the dimension but lets interim-period
	// synthetic rows mirror the opposite side's key.
	ModeInterdependent Mode = "interdependent"
)

// ParseMode validates a mode selector, defaulting empty to ignore.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeIgnore, nil
	case ModeIgnore, ModeIndependent, ModeInterdependent:
		return Mode(s), nil
	}
	return "", apperrors.ErrInvalidDimensionMode
}

// Dimensions holds the six per-dimension consolidation modes of a report.
type Dimensions struct {
	Portfolio  Mode `json:"portfolioMode"`
	Account    Mode `json:"accountMode"`
	Strategy1  Mode `json:"strategy1Mode"`
	Strategy2  Mode `json:"strategy2Mode"`
	Strategy3  Mode `json:"strategy3Mode"`
	Allocation Mode `json:"allocationMode"`
}

// CostMethod selects how realised P&L is split from unrealised.
type CostMethod string

const (
	// CostMethodAVCO applies the running average cost uniformly to each sell.
	CostMethodAVCO CostMethod = "avco"
	// CostMethodFIFO consumes buy lots in chronological order.
	CostMethodFIFO CostMethod = "fifo"
)

// ParseCostMethod validates a cost-method selector, defaulting empty to AVCO.
func ParseCostMethod(s string) (CostMethod, error) {
	switch CostMethod(s) {
	case "":
		return CostMethodAVCO, nil
	case CostMethodAVCO, CostMethodFIFO:
		return CostMethod(s), nil
	}
	return "", apperrors.ErrInvalidCostMethod
}

// CustomField is a caller-supplied expression evaluated against each
// transaction-report row.
type CustomField struct {
	Name      string `json:"name"`
	Expr      string `json:"expr"`
	ValueType string `json:"value_type"`
}

// DateField selects which date column drives the transaction-report window.
type DateField string

const (
	DateFieldTransaction DateField = "transaction_date"
	DateFieldAccounting  DateField = "accounting_date"
	DateFieldCash        DateField = "cash_date"
	DateFieldUser1       DateField = "user_date_1"
	DateFieldUser2       DateField = "user_date_2"
	DateFieldUser3       DateField = "user_date_3"
	DateFieldUser4       DateField = "user_date_4"
	DateFieldUser5       DateField = "user_date_5"
)

// DepthLevel selects whether the transaction report lists base or complex
// transactions.
type DepthLevel string

const (
	DepthBase    DepthLevel = "base_transaction"
	DepthComplex DepthLevel = "complex_transaction"
)

// Spec is the immutable description of one report build. It is never
// mutated by the builders; diagnostics and rows come back in a Result.
type Spec struct {
	MasterUserID string `json:"-"`

	ReportDate  time.Time `json:"reportDate"`
	PLFirstDate time.Time `json:"plFirstDate"` // zero means since inception
	ReportType  string    `json:"reportType"`  // "balance" | "pl"

	ReportCurrencyID string     `json:"reportCurrency"`
	PricingPolicyID  string     `json:"pricingPolicy"`
	CostMethod       CostMethod `json:"costMethod"`

	Dims Dimensions `json:"dims"`

	PortfolioIDs       []string                 `json:"portfolios"`
	AccountIDs         []string                 `json:"accounts"`
	AccountPositionIDs []string                 `json:"accountsPosition"`
	AccountCashIDs     []string                 `json:"accountsCash"`
	Strategy1IDs       []string                 `json:"strategies1"`
	Strategy2IDs       []string                 `json:"strategies2"`
	Strategy3IDs       []string                 `json:"strategies3"`
	TransactionClasses []model.TransactionClass `json:"transactionClasses"`

	ShowTransactionDetails     bool    `json:"showTransactionDetails"`
	ShowBalanceExposureDetails bool    `json:"showBalanceExposureDetails"`
	ApproachMultiplier         float64 `json:"approachMultiplier"`
	OnlyNumbers                bool    `json:"onlyNumbers"`

	// Transaction-report parameters.
	BeginDate            time.Time                      `json:"beginDate"`
	EndDate              time.Time                      `json:"endDate"`
	DateField            DateField                      `json:"dateField"`
	DepthLevel           DepthLevel                     `json:"depthLevel"`
	ComplexStatusFilter  model.ComplexTransactionStatus `json:"complexTransactionStatus"`
	CustomFields         []CustomField                  `json:"customFields"`
	ExpressionIterations int                            `json:"expressionIterationsCount"`

	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// Fingerprint returns a stable cache key covering every input that affects
// report output for a tenant.
func (s *Spec) Fingerprint() string {
	payload, _ := json.Marshal(s)
	digest := sha256.Sum256(append([]byte(s.MasterUserID+"|"), payload...))
	return hex.EncodeToString(digest[:])
}

// Result is the outcome of one report build: rows plus diagnostics.
// Missing price or FX lookups never abort a build; they null the affected
// numbers and append to ErrorMessages.
type Result struct {
	ReportDate    time.Time         `json:"reportDate"`
	ReportType    string            `json:"reportType"`
	Items         []BalanceItem     `json:"items,omitempty"`
	PLItems       []PLItem          `json:"plItems,omitempty"`
	Transactions  []TransactionItem `json:"transactions,omitempty"`
	TotalCount    int               `json:"totalCount,omitempty"`
	ErrorMessages []string          `json:"errorMessages,omitempty"`
}

// ErrorMessage joins the accumulated diagnostics into the single free-text
// field of the report envelope.
func (r *Result) ErrorMessage() string {
	if len(r.ErrorMessages) == 0 {
		return ""
	}
	msg := r.ErrorMessages[0]
	for _, m := range r.ErrorMessages[1:] {
		msg += "; " + m
	}
	return msg
}
