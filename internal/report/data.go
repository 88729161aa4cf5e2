package report

import (
	"time"

	"github.com/sokolovdp/finmars-core-sub005/internal/model"
)

// Data is the prefetched input of one report build: the tenant's filtered
// ledger plus the reference-data snapshots the builders join against.
// Builders treat it as read-only.
type Data struct {
	Defaults        model.EcosystemDefault
	Currencies      map[string]*model.Currency
	Instruments     map[string]*model.Instrument
	InstrumentTypes map[string]*model.InstrumentType
	Accounts        map[string]*model.Account
	Portfolios      map[string]*model.Portfolio
	Transactions    []*model.Transaction
	Complex         map[string]*model.ComplexTransaction
	Valuation       *Valuation
}

// Convert translates an amount between two currencies at the rates
// prevailing on the given date.
func (v *Valuation) Convert(amount float64, fromCurrencyID, toCurrencyID string, date time.Time) (float64, bool) {
	if fromCurrencyID == toCurrencyID {
		return amount, true
	}
	from, okFrom := v.FXOn(fromCurrencyID, date)
	to, okTo := v.FXOn(toCurrencyID, date)
	if !okFrom || !okTo || to == 0 {
		return 0, false
	}
	return amount * from / to, true
}

func (d *Data) currencyInfo(id string) (name, shortName, userCode string) {
	if c, ok := d.Currencies[id]; ok {
		return c.Name, c.ShortName, c.UserCode
	}
	return "", "", ""
}

func (d *Data) instrumentInfo(id string) (name, shortName, userCode string) {
	if i, ok := d.Instruments[id]; ok {
		return i.Name, i.ShortName, i.UserCode
	}
	return "", "", ""
}

// isPlaceholder reports whether the entity behind the id is the tenant's
// dash placeholder. Placeholder rows never reach report output.
func (d *Data) isPlaceholderInstrument(id string) bool {
	i, ok := d.Instruments[id]
	return ok && i.UserCode == model.DashUserCode
}

func (d *Data) isPlaceholderCurrency(id string) bool {
	c, ok := d.Currencies[id]
	return ok && c.UserCode == model.DashUserCode
}
