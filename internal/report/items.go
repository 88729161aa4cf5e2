package report

import (
	"time"

	"github.com/sokolovdp/finmars-core-sub005/internal/model"
)

// Item types of a balance row.
const (
	ItemTypeInstrument = 1
	ItemTypeCurrency   = 2
)

// GroupKey identifies one consolidation bucket. Fields of ignored
// dimensions hold the ecosystem-default id after backfill.
type GroupKey struct {
	PortfolioID  string `json:"portfolioId"`
	AccountID    string `json:"accountId"`
	Strategy1ID  string `json:"strategy1Id"`
	Strategy2ID  string `json:"strategy2Id"`
	Strategy3ID  string `json:"strategy3Id"`
	AllocationID string `json:"allocationId"`
}

// CostSeries carries the cost-price and invested-amount outputs shared by
// balance and P&L rows. Loc variants are in the instrument's pricing
// currency; the rest in report currency.
type CostSeries struct {
	NetCostPrice         float64 `json:"netCostPrice"`
	NetCostPriceLoc      float64 `json:"netCostPriceLoc"`
	GrossCostPrice       float64 `json:"grossCostPrice"`
	GrossCostPriceLoc    float64 `json:"grossCostPriceLoc"`
	PrincipalInvested    float64 `json:"principalInvested"`
	PrincipalInvestedLoc float64 `json:"principalInvestedLoc"`
	AmountInvested       float64 `json:"amountInvested"`
	AmountInvestedLoc    float64 `json:"amountInvestedLoc"`
	PositionReturn       float64 `json:"positionReturn"`
	PositionReturnLoc    float64 `json:"positionReturnLoc"`
	NetPositionReturn    float64 `json:"netPositionReturn"`
	NetPositionReturnLoc float64 `json:"netPositionReturnLoc"`
	TimeInvested         float64 `json:"timeInvested"`
	ReturnAnnually       float64 `json:"returnAnnually"`
	YTM                  float64 `json:"ytm"`
	ModifiedDuration     float64 `json:"modifiedDuration"`
	YTMAtCost            float64 `json:"ytmAtCost"`
}

// ExposureDetails carries the per-variant exposure numbers emitted when the
// caller requests balance exposure details.
type ExposureDetails struct {
	LongUnderlyingPrice      float64 `json:"longUnderlyingPrice"`
	LongUnderlyingPriceDelta float64 `json:"longUnderlyingPriceDelta"`
	LongUnderlyingFXRate     float64 `json:"longUnderlyingFxRate"`
	LongUnderlyingFXDelta    float64 `json:"longUnderlyingFxRateDelta"`
}

// BalanceItem is one row of a balance report: a position per instrument or
// a cash balance per settlement currency, valued at the report date.
//
// MarketValue and MarketValueLoc are nil when a required price or FX lookup
// was missing; such rows are excluded from NAV totals and the report
// carries the lookup failure in its error messages.
type BalanceItem struct {
	ItemType     int    `json:"itemType"`
	ItemTypeName string `json:"itemTypeName"`

	GroupKey

	InstrumentID      string `json:"instrumentId,omitempty"`
	CurrencyID        string `json:"currencyId,omitempty"`
	PricingCurrencyID string `json:"pricingCurrencyId,omitempty"`

	Name      string `json:"name"`
	ShortName string `json:"shortName"`
	UserCode  string `json:"userCode"`

	PositionSize        float64 `json:"positionSize"`
	NominalPositionSize float64 `json:"nominalPositionSize"`
	FXRate              float64 `json:"fxRate"`

	MarketValue    *float64 `json:"marketValue"`
	MarketValueLoc *float64 `json:"marketValueLoc"`

	Exposure     float64          `json:"exposure"`
	ExposureLoc  float64          `json:"exposureLoc"`
	Exposure2    float64          `json:"exposure2"`
	Exposure2Loc float64          `json:"exposure2Loc"`
	Details      *ExposureDetails `json:"exposureDetails,omitempty"`

	CostSeries
}

// PLComponent is one P&L family valued four ways: report currency, local
// currency, and the fixed/fx split of the report-currency number. Fixed is
// the component at the FX rates of each flow's accounting date; FX is the
// remainder attributable to currency movement.
type PLComponent struct {
	Total float64 `json:"total"`
	Loc   float64 `json:"loc"`
	Fixed float64 `json:"fixed"`
	FX    float64 `json:"fx"`
}

// PLItem is one row of a P&L report.
type PLItem struct {
	ItemType     int    `json:"itemType"`
	ItemTypeName string `json:"itemTypeName"`

	GroupKey

	InstrumentID      string                 `json:"instrumentId,omitempty"`
	TransactionClass  model.TransactionClass `json:"transactionClass,omitempty"`
	PricingCurrencyID string                 `json:"pricingCurrencyId,omitempty"`

	Name      string `json:"name"`
	ShortName string `json:"shortName"`
	UserCode  string `json:"userCode"`

	PositionSize float64  `json:"positionSize"`
	MarketValue  *float64 `json:"marketValue"`

	PrincipalOpened PLComponent `json:"principalOpened"`
	CarryOpened     PLComponent `json:"carryOpened"`
	OverheadsOpened PLComponent `json:"overheadsOpened"`
	TotalOpened     PLComponent `json:"totalOpened"`
	PrincipalClosed PLComponent `json:"principalClosed"`
	CarryClosed     PLComponent `json:"carryClosed"`
	OverheadsClosed PLComponent `json:"overheadsClosed"`
	TotalClosed     PLComponent `json:"totalClosed"`

	CostSeries
}

// TransactionItem is one row of a transaction report: the base or complex
// transaction plus computed custom-field columns.
type TransactionItem struct {
	Transaction        *model.Transaction        `json:"transaction"`
	ComplexTransaction *model.ComplexTransaction `json:"complexTransaction,omitempty"`
	Date               time.Time                 `json:"date"`
	CustomFields       map[string]any            `json:"customFields,omitempty"`
}
