package model

import "time"

// PriceHistory is one stored price observation for an instrument under a
// pricing policy. The (instrument, pricing policy, date) triple is unique.
//
// Factor defaults to 1; a stored factor of 0 is treated as 1 when
// consolidating nominal size. Nav and CashFlow are populated only for
// instruments whose prices are derived from a portfolio register.
type PriceHistory struct {
	ID               string    `json:"id"`
	InstrumentID     string    `json:"instrumentId"`
	PricingPolicyID  string    `json:"pricingPolicyId"`
	Date             time.Time `json:"date"`
	PrincipalPrice   float64   `json:"principalPrice"`
	AccruedPrice     float64   `json:"accruedPrice"`
	Factor           float64   `json:"factor"`
	YTM              float64   `json:"ytm"`
	ModifiedDuration float64   `json:"modifiedDuration"`
	LongDelta        float64   `json:"longDelta"`
	ShortDelta       float64   `json:"shortDelta"`
	Nav              float64   `json:"nav"`
	CashFlow         float64   `json:"cashFlow"`
}

// EffectiveFactor returns the consolidation factor, substituting 1 for a
// missing or zero stored factor.
func (p *PriceHistory) EffectiveFactor() float64 {
	if p == nil || p.Factor == 0 {
		return 1
	}
	return p.Factor
}

// CurrencyHistory is one stored FX observation for a currency under a
// pricing policy. The rate converts one unit of the currency into the
// tenant's ecosystem-default currency. A zero rate is rejected at write.
//
// The ecosystem-default currency itself is never looked up: its rate is
// implicitly 1 on every date.
type CurrencyHistory struct {
	ID              string    `json:"id"`
	CurrencyID      string    `json:"currencyId"`
	PricingPolicyID string    `json:"pricingPolicyId"`
	Date            time.Time `json:"date"`
	FXRate          float64   `json:"fxRate"`
}
