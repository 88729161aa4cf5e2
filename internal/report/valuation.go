package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/sokolovdp/finmars-core-sub005/internal/model"
)

type fxPoint struct {
	date time.Time
	rate float64
}

// Valuation resolves price and FX lookups for one report build against
// prefetched history maps. Lookups never fail hard: a miss is recorded as a
// diagnostic and reported to the caller through the boolean return.
//
// FX rates convert one unit of a currency into the tenant's ecosystem
// default currency, whose own rate is implicitly 1 on every date.
type Valuation struct {
	defaultCurrencyID string
	prices            map[string]*model.PriceHistory
	fx                map[string][]fxPoint

	seen     map[string]struct{}
	problems []string
}

// NewValuation builds a lookup environment from price rows at the report
// date and FX rows up to it.
func NewValuation(defaultCurrencyID string, prices map[string]*model.PriceHistory, rates map[string]map[string]float64) *Valuation {
	fx := make(map[string][]fxPoint, len(rates))
	for currencyID, byDate := range rates {
		points := make([]fxPoint, 0, len(byDate))
		for dateStr, rate := range byDate {
			d, err := time.Parse("2006-01-02", dateStr)
			if err != nil {
				continue
			}
			points = append(points, fxPoint{date: d.UTC(), rate: rate})
		}
		sort.Slice(points, func(i, j int) bool { return points[i].date.Before(points[j].date) })
		fx[currencyID] = points
	}
	return &Valuation{
		defaultCurrencyID: defaultCurrencyID,
		prices:            prices,
		fx:                fx,
		seen:              make(map[string]struct{}),
	}
}

// FXOn returns the rate prevailing on the given date: the rate of the most
// recent observation on or before it. The ecosystem-default currency (and
// an empty currency id) always resolves to 1 without lookup.
func (v *Valuation) FXOn(currencyID string, date time.Time) (float64, bool) {
	if currencyID == "" || currencyID == v.defaultCurrencyID {
		return 1, true
	}

	points := v.fx[currencyID]
	idx := sort.Search(len(points), func(i int) bool { return points[i].date.After(date) })
	if idx == 0 {
		v.record(fmt.Sprintf("missing fx rate for currency %s on %s", currencyID, date.Format("2006-01-02")))
		return 0, false
	}
	return points[idx-1].rate, true
}

// PriceOf returns the price row of an instrument at the report date.
func (v *Valuation) PriceOf(instrumentID string) (*model.PriceHistory, bool) {
	p, ok := v.prices[instrumentID]
	if !ok {
		v.record(fmt.Sprintf("missing price for instrument %s", instrumentID))
		return nil, false
	}
	return p, true
}

func (v *Valuation) record(problem string) {
	if _, dup := v.seen[problem]; dup {
		return
	}
	v.seen[problem] = struct{}{}
	v.problems = append(v.problems, problem)
}

// Problems returns the accumulated lookup diagnostics in first-seen order.
func (v *Valuation) Problems() []string {
	return v.problems
}
