package model

// DashUserCode marks the "null" placeholder entity. Placeholder rows are
// omitted from report output unless the caller explicitly requests them.
const DashUserCode = "-"

// Currency represents a currency from the reference-data store.
type Currency struct {
	ID           string `json:"id"`
	MasterUserID string `json:"masterUserId"`
	UserCode     string `json:"userCode"`
	Name         string `json:"name"`
	ShortName    string `json:"shortName"`
}

// PricingPolicy is a named partition of price and FX histories
// (e.g. "bloomberg mid"). Valuation lookups are always scoped to one policy.
type PricingPolicy struct {
	ID           string `json:"id"`
	MasterUserID string `json:"masterUserId"`
	UserCode     string `json:"userCode"`
	Name         string `json:"name"`
}

// ExposureModel selects one of the exposure calculation variants for an
// instrument's balance rows.
type ExposureModel string

const (
	ExposureZero                ExposureModel = "zero"
	ExposureLongUnderlyingPrice ExposureModel = "long_underlying_price"
	ExposureLongUnderlyingDelta ExposureModel = "long_underlying_price_delta"
	ExposureLongUnderlyingFX    ExposureModel = "long_underlying_fx_rate"
	ExposureLongUnderlyingFXDlt ExposureModel = "long_underlying_fx_rate_delta"
	ExposureMarketValue         ExposureModel = "market_value"
)

// InstrumentClass categorizes instruments for valuation purposes.
// Variable-cost instruments (futures-like contracts) are marked to value
// against their open cost price instead of full principal.
type InstrumentClass string

const (
	InstrumentClassGeneral      InstrumentClass = "general"
	InstrumentClassVariableCost InstrumentClass = "variable_cost"
)

// InstrumentType groups instruments and carries type-level valuation flags.
type InstrumentType struct {
	ID                        string `json:"id"`
	MasterUserID              string `json:"masterUserId"`
	UserCode                  string `json:"userCode"`
	Name                      string `json:"name"`
	HasSecondExposureCurrency bool   `json:"hasSecondExposureCurrency"`
}

// Instrument represents a priceable instrument from the reference-data store.
// An instrument whose prices are derived from a portfolio register carries
// HasLinkedWithPortfolio = true.
type Instrument struct {
	ID                       string          `json:"id"`
	MasterUserID             string          `json:"masterUserId"`
	UserCode                 string          `json:"userCode"`
	Name                     string          `json:"name"`
	ShortName                string          `json:"shortName"`
	InstrumentTypeID         string          `json:"instrumentTypeId"`
	InstrumentClass          InstrumentClass `json:"instrumentClass"`
	PricingCurrencyID        string          `json:"pricingCurrencyId"`
	AccruedCurrencyID        string          `json:"accruedCurrencyId"`
	PriceMultiplier          float64         `json:"priceMultiplier"`
	AccruedMultiplier        float64         `json:"accruedMultiplier"`
	DefaultPrice             float64         `json:"defaultPrice"`
	ExposureCalculationModel ExposureModel   `json:"exposureCalculationModel"`
	UnderlyingLongMultiplier float64         `json:"underlyingLongMultiplier"`
	LongUnderlyingID         string          `json:"longUnderlyingId"`        // underlying instrument, "" when none
	CoDirectionalCurrencyID  string          `json:"coDirectionalCurrencyId"` // exposure currency, "" when none
	HasLinkedWithPortfolio   bool            `json:"hasLinkedWithPortfolio"`
}

// Account represents a custody or cash account.
type Account struct {
	ID           string `json:"id"`
	MasterUserID string `json:"masterUserId"`
	UserCode     string `json:"userCode"`
	Name         string `json:"name"`
	ShortName    string `json:"shortName"`
}

// Strategy represents one strategy dimension value. Level is 1, 2 or 3,
// matching the three independent strategy axes on every transaction.
type Strategy struct {
	ID           string `json:"id"`
	MasterUserID string `json:"masterUserId"`
	Level        int    `json:"level"`
	UserCode     string `json:"userCode"`
	Name         string `json:"name"`
}

// Portfolio represents a portfolio owned by a tenant.
type Portfolio struct {
	ID           string `json:"id"`
	MasterUserID string `json:"masterUserId"`
	UserCode     string `json:"userCode"`
	Name         string `json:"name"`
	ShortName    string `json:"shortName"`
}

// EcosystemDefault holds the per-tenant placeholder entities used to fill
// absent group-by keys in report rows. Treated as a read-only snapshot
// fetched once per report, never mutated during a build.
type EcosystemDefault struct {
	MasterUserID    string `json:"masterUserId"`
	CurrencyID      string `json:"currencyId"`
	PortfolioID     string `json:"portfolioId"`
	AccountID       string `json:"accountId"`
	Strategy1ID     string `json:"strategy1Id"`
	Strategy2ID     string `json:"strategy2Id"`
	Strategy3ID     string `json:"strategy3Id"`
	InstrumentID    string `json:"instrumentId"`
	PricingPolicyID string `json:"pricingPolicyId"`
}
