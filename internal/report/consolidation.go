package report

import (
	"time"

	"github.com/sokolovdp/finmars-core-sub005/internal/model"
)

// PositionLeg is the position-side contribution of a projected transaction.
type PositionLeg struct {
	AccountID   string
	Strategy1ID string
	Strategy2ID string
	Strategy3ID string
}

// CashLeg is one cash-side contribution of a projected transaction. A
// transaction can emit up to two cash legs when its accounting and cash
// dates straddle the report date.
type CashLeg struct {
	AccountID   string
	Strategy1ID string
	Strategy2ID string
	Strategy3ID string
	Amount      float64
	Interim     bool
}

// Projection is the consolidated view of one transaction at a report date.
type Projection struct {
	Txn      *model.Transaction
	Position *PositionLeg
	Cash     []CashLeg
}

// Project rewrites a transaction for the report date, synthesizing interim
// legs when the accounting and cash dates straddle it:
//
//  1. accounting_date <= report_date < cash_date: the position is booked
//     as-is and the cash consideration lands on the interim account.
//  2. cash_date <= report_date < accounting_date: the position is not yet
//     recognized; the settled cash is booked on the cash account and an
//     offsetting negated amount on the interim account.
//  3. Otherwise the transaction is emitted unchanged.
//
// Synthesis fires only on a strict straddle: when the two dates are equal,
// or both are on or before the report date, no interim leg is created.
//
// Each strategy dimension set to interdependent makes the synthetic interim
// leg mirror the position side's strategy for that dimension; a dimension
// left independent keeps the cash side's own strategy.
func Project(t *model.Transaction, reportDate time.Time, dims Dimensions) Projection {
	p := Projection{Txn: t}

	positionIncluded := !t.AccountingDate.After(reportDate)
	cashIncluded := !t.CashDate.After(reportDate)

	if positionIncluded {
		p.Position = &PositionLeg{
			AccountID:   t.AccountPositionID,
			Strategy1ID: t.Strategy1PositionID,
			Strategy2ID: t.Strategy2PositionID,
			Strategy3ID: t.Strategy3PositionID,
		}
	}

	interim := func(amount float64) CashLeg {
		leg := CashLeg{
			AccountID:   t.AccountInterimID,
			Strategy1ID: t.Strategy1CashID,
			Strategy2ID: t.Strategy2CashID,
			Strategy3ID: t.Strategy3CashID,
			Amount:      amount,
			Interim:     true,
		}
		if dims.Strategy1 == ModeInterdependent {
			leg.Strategy1ID = t.Strategy1PositionID
		}
		if dims.Strategy2 == ModeInterdependent {
			leg.Strategy2ID = t.Strategy2PositionID
		}
		if dims.Strategy3 == ModeInterdependent {
			leg.Strategy3ID = t.Strategy3PositionID
		}
		return leg
	}

	switch {
	case positionIncluded && !cashIncluded:
		p.Cash = append(p.Cash, interim(t.CashConsideration))
	case cashIncluded && !positionIncluded:
		p.Cash = append(p.Cash,
			CashLeg{
				AccountID:   t.AccountCashID,
				Strategy1ID: t.Strategy1CashID,
				Strategy2ID: t.Strategy2CashID,
				Strategy3ID: t.Strategy3CashID,
				Amount:      t.CashConsideration,
			},
			interim(-t.CashConsideration),
		)
	case positionIncluded && cashIncluded:
		p.Cash = append(p.Cash, CashLeg{
			AccountID:   t.AccountCashID,
			Strategy1ID: t.Strategy1CashID,
			Strategy2ID: t.Strategy2CashID,
			Strategy3ID: t.Strategy3CashID,
			Amount:      t.CashConsideration,
		})
	}

	return p
}

// Included applies the effective-date gate: initial-position classes
// contribute only when their min date equals the report date, every other
// class when it is on or before it.
func Included(t *model.Transaction, reportDate time.Time) bool {
	minDate := t.MinDate()
	if t.TransactionClass.IsInitial() {
		return minDate.Equal(reportDate)
	}
	return !minDate.After(reportDate)
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// MatchesFilters narrows the transaction stream by the spec's filter lists.
// Empty lists pass everything. The accounts list matches either side; the
// position/cash account lists match their own side only.
func MatchesFilters(t *model.Transaction, spec *Spec) bool {
	if len(spec.PortfolioIDs) > 0 && !contains(spec.PortfolioIDs, t.PortfolioID) {
		return false
	}
	if len(spec.AccountIDs) > 0 &&
		!contains(spec.AccountIDs, t.AccountPositionID) &&
		!contains(spec.AccountIDs, t.AccountCashID) {
		return false
	}
	if len(spec.AccountPositionIDs) > 0 && !contains(spec.AccountPositionIDs, t.AccountPositionID) {
		return false
	}
	if len(spec.AccountCashIDs) > 0 && !contains(spec.AccountCashIDs, t.AccountCashID) {
		return false
	}
	if len(spec.Strategy1IDs) > 0 &&
		!contains(spec.Strategy1IDs, t.Strategy1PositionID) &&
		!contains(spec.Strategy1IDs, t.Strategy1CashID) {
		return false
	}
	if len(spec.Strategy2IDs) > 0 &&
		!contains(spec.Strategy2IDs, t.Strategy2PositionID) &&
		!contains(spec.Strategy2IDs, t.Strategy2CashID) {
		return false
	}
	if len(spec.Strategy3IDs) > 0 &&
		!contains(spec.Strategy3IDs, t.Strategy3PositionID) &&
		!contains(spec.Strategy3IDs, t.Strategy3CashID) {
		return false
	}
	if len(spec.TransactionClasses) > 0 {
		found := false
		for _, class := range spec.TransactionClasses {
			if class == t.TransactionClass {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Consolidate filters and projects the transaction stream for a report.
func Consolidate(transactions []*model.Transaction, spec *Spec) []Projection {
	projections := make([]Projection, 0, len(transactions))
	for _, t := range transactions {
		if t.IsDeleted || !Included(t, spec.ReportDate) || !MatchesFilters(t, spec) {
			continue
		}
		projections = append(projections, Project(t, spec.ReportDate, spec.Dims))
	}
	return projections
}

func dimKey(mode Mode, value string) string {
	if mode == ModeIgnore {
		return ""
	}
	return value
}

// PositionGroupKey resolves the group-by key of a position-side row.
// allocationID is the allocation of the report flavor (balance or P&L).
func (d Dimensions) PositionGroupKey(t *model.Transaction, leg *PositionLeg, allocationID string) GroupKey {
	return GroupKey{
		PortfolioID:  dimKey(d.Portfolio, t.PortfolioID),
		AccountID:    dimKey(d.Account, leg.AccountID),
		Strategy1ID:  dimKey(d.Strategy1, leg.Strategy1ID),
		Strategy2ID:  dimKey(d.Strategy2, leg.Strategy2ID),
		Strategy3ID:  dimKey(d.Strategy3, leg.Strategy3ID),
		AllocationID: dimKey(d.Allocation, allocationID),
	}
}

// CashGroupKey resolves the group-by key of a cash-side row.
func (d Dimensions) CashGroupKey(t *model.Transaction, leg CashLeg, allocationID string) GroupKey {
	return GroupKey{
		PortfolioID:  dimKey(d.Portfolio, t.PortfolioID),
		AccountID:    dimKey(d.Account, leg.AccountID),
		Strategy1ID:  dimKey(d.Strategy1, leg.Strategy1ID),
		Strategy2ID:  dimKey(d.Strategy2, leg.Strategy2ID),
		Strategy3ID:  dimKey(d.Strategy3, leg.Strategy3ID),
		AllocationID: dimKey(d.Allocation, allocationID),
	}
}

// Backfill substitutes the tenant's ecosystem defaults for every empty
// (ignored or unset) key field.
func (k GroupKey) Backfill(defaults model.EcosystemDefault) GroupKey {
	fill := func(id, fallback string) string {
		if id == "" {
			return fallback
		}
		return id
	}
	return GroupKey{
		PortfolioID:  fill(k.PortfolioID, defaults.PortfolioID),
		AccountID:    fill(k.AccountID, defaults.AccountID),
		Strategy1ID:  fill(k.Strategy1ID, defaults.Strategy1ID),
		Strategy2ID:  fill(k.Strategy2ID, defaults.Strategy2ID),
		Strategy3ID:  fill(k.Strategy3ID, defaults.Strategy3ID),
		AllocationID: fill(k.AllocationID, defaults.InstrumentID),
	}
}
