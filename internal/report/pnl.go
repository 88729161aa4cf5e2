package report

import (
	"sort"

	"github.com/sokolovdp/finmars-core-sub005/internal/model"
)

type plBucketKey struct {
	GroupKey
	instrumentID string
}

type plBucket struct {
	key          GroupKey
	instrumentID string
	size         float64
	engine       *LotEngine

	// Realised amounts accumulated before the P&L window opens; subtracted
	// from the engine totals so closed families cover the window only.
	preWindowLoc   Basis
	preWindowFixed Basis
}

type plEventKey struct {
	GroupKey
	class model.TransactionClass
}

type plEvent struct {
	key   GroupKey
	class model.TransactionClass
	loc   Basis
	fixed Basis
	total Basis
}

// nonPositionPL reports whether the class books P&L without moving an
// instrument position.
func nonPositionPL(class model.TransactionClass) bool {
	switch class {
	case model.ClassFXTrade, model.ClassFXVariation, model.ClassTransactionPL, model.ClassInstrumentPL:
		return true
	}
	return false
}

// BuildPL computes a P&L report over [PLFirstDate, ReportDate]. A zero
// PLFirstDate means since inception. Flows before the window still shape the
// open cost basis; only their realised amounts are excluded.
func BuildPL(spec *Spec, data *Data) *Result {
	result := &Result{ReportDate: spec.ReportDate, ReportType: "pl"}

	projections := Consolidate(data.Transactions, spec)
	// The ledger stream arrives in transaction-date order, but the window
	// test and the lot engines run on accounting dates. Replay in accounting
	// order so every pre-window flow is seen before any in-window one.
	sort.SliceStable(projections, func(i, j int) bool {
		a, b := projections[i].Txn, projections[j].Txn
		if !a.AccountingDate.Equal(b.AccountingDate) {
			return a.AccountingDate.Before(b.AccountingDate)
		}
		return a.ID < b.ID
	})
	repFX, repOK := data.Valuation.FXOn(spec.ReportCurrencyID, spec.ReportDate)

	buckets := make(map[plBucketKey]*plBucket)
	events := make(map[plEventKey]*plEvent)
	var bucketOrder []*plBucket
	var eventOrder []*plEvent

	for _, p := range projections {
		t := p.Txn

		if nonPositionPL(t.TransactionClass) {
			if !spec.PLFirstDate.IsZero() && t.AccountingDate.Before(spec.PLFirstDate) {
				continue
			}
			accumulatePLEvent(spec, data, events, &eventOrder, p)
			continue
		}

		if p.Position == nil || t.InstrumentID == "" || !positionAffecting(t.TransactionClass) {
			continue
		}

		key := spec.Dims.PositionGroupKey(t, p.Position, t.AllocationPLID).Backfill(data.Defaults)
		bk := plBucketKey{GroupKey: key, instrumentID: t.InstrumentID}
		b, ok := buckets[bk]
		if !ok {
			b = &plBucket{key: key, instrumentID: t.InstrumentID, engine: NewLotEngine(spec.CostMethod)}
			buckets[bk] = b
			bucketOrder = append(bucketOrder, b)
		}

		preWindow := !spec.PLFirstDate.IsZero() && t.AccountingDate.Before(spec.PLFirstDate)
		b.size += t.PositionSizeWithSign

		pricingCcy := t.TransactionCurrencyID
		if instr, found := data.Instruments[t.InstrumentID]; found {
			pricingCcy = instr.PricingCurrencyID
		}
		b.engine.Add(newPositionFlow(t, pricingCcy, spec.ReportCurrencyID, data.Valuation))
		if preWindow {
			b.preWindowLoc = b.engine.ClosedLoc()
			b.preWindowFixed = b.engine.ClosedFixed()
		}
	}

	for _, b := range bucketOrder {
		if data.isPlaceholderInstrument(b.instrumentID) {
			continue
		}
		result.PLItems = append(result.PLItems, buildPLPositionItem(spec, data, b, repFX, repOK))
	}
	for _, e := range eventOrder {
		result.PLItems = append(result.PLItems, buildPLEventItem(e))
	}

	sortPLItems(result.PLItems)
	result.ErrorMessages = data.Valuation.Problems()
	return result
}

func accumulatePLEvent(spec *Spec, data *Data, events map[plEventKey]*plEvent, order *[]*plEvent, p Projection) {
	t := p.Txn

	var key GroupKey
	if p.Position != nil {
		key = spec.Dims.PositionGroupKey(t, p.Position, t.AllocationPLID).Backfill(data.Defaults)
	} else if len(p.Cash) > 0 {
		key = spec.Dims.CashGroupKey(t, p.Cash[0], t.AllocationPLID).Backfill(data.Defaults)
	}

	ek := plEventKey{GroupKey: key, class: t.TransactionClass}
	e, ok := events[ek]
	if !ok {
		e = &plEvent{key: key, class: t.TransactionClass}
		events[ek] = e
		*order = append(*order, e)
	}

	loc := Basis{Principal: t.PrincipalWithSign, Carry: t.CarryWithSign, Overheads: t.OverheadsWithSign}
	e.loc = e.loc.add(loc)

	fixedOf := func(amount float64) float64 {
		converted, ok := data.Valuation.Convert(amount, t.TransactionCurrencyID, spec.ReportCurrencyID, t.AccountingDate)
		if !ok {
			return amount
		}
		return converted
	}
	totalOf := func(amount float64) float64 {
		converted, ok := data.Valuation.Convert(amount, t.TransactionCurrencyID, spec.ReportCurrencyID, spec.ReportDate)
		if !ok {
			return amount
		}
		return converted
	}
	e.fixed = e.fixed.add(Basis{fixedOf(t.PrincipalWithSign), fixedOf(t.CarryWithSign), fixedOf(t.OverheadsWithSign)})
	e.total = e.total.add(Basis{totalOf(t.PrincipalWithSign), totalOf(t.CarryWithSign), totalOf(t.OverheadsWithSign)})
}

// component assembles one P&L family from its loc and fixed legs. Total is
// the loc amount revalued at the report date; FX is the part of Total not
// explained by accounting-date rates.
func component(loc, fixed, locToRep float64) PLComponent {
	total := loc * locToRep
	return PLComponent{Total: total, Loc: loc, Fixed: fixed, FX: total - fixed}
}

func buildPLPositionItem(spec *Spec, data *Data, b *plBucket, repFX float64, repOK bool) PLItem {
	name, shortName, userCode := data.instrumentInfo(b.instrumentID)
	item := PLItem{
		ItemType:     ItemTypeInstrument,
		ItemTypeName: "instrument",
		GroupKey:     b.key,
		InstrumentID: b.instrumentID,
		Name:         name,
		ShortName:    shortName,
		UserCode:     userCode,
		PositionSize: b.size,
	}

	instrument, haveInstrument := data.Instruments[b.instrumentID]
	if !haveInstrument {
		return item
	}
	item.PricingCurrencyID = instrument.PricingCurrencyID

	price, priceOK := data.Valuation.PriceOf(b.instrumentID)
	pchFX, pchOK := data.Valuation.FXOn(instrument.PricingCurrencyID, spec.ReportDate)
	achFX, achOK := data.Valuation.FXOn(instrument.AccruedCurrencyID, spec.ReportDate)
	valued := priceOK && pchOK && achOK && repOK && repFX != 0 && pchFX != 0

	pchToRep := 0.0
	if repOK && repFX != 0 {
		pchToRep = pchFX / repFX
	}

	var mvPrincipalLoc, mvCarryLoc float64
	if valued {
		mvPrincipalLoc = b.size * price.PrincipalPrice * instrument.PriceMultiplier
		mvCarryLoc = b.size * price.AccruedPrice * instrument.AccruedMultiplier * achFX / pchFX
		mv := (mvPrincipalLoc + mvCarryLoc) * pchToRep
		item.MarketValue = &mv
	}

	openLoc := b.engine.OpenLoc()
	openFixed := b.engine.OpenFixed()

	item.PrincipalOpened = component(mvPrincipalLoc+openLoc.Principal, mvPrincipalLoc*pchToRep+openFixed.Principal, pchToRep)
	item.CarryOpened = component(mvCarryLoc+openLoc.Carry, mvCarryLoc*pchToRep+openFixed.Carry, pchToRep)
	item.OverheadsOpened = component(openLoc.Overheads, openFixed.Overheads, pchToRep)
	item.TotalOpened = PLComponent{
		Total: item.PrincipalOpened.Total + item.CarryOpened.Total + item.OverheadsOpened.Total,
		Loc:   item.PrincipalOpened.Loc + item.CarryOpened.Loc + item.OverheadsOpened.Loc,
		Fixed: item.PrincipalOpened.Fixed + item.CarryOpened.Fixed + item.OverheadsOpened.Fixed,
		FX:    item.PrincipalOpened.FX + item.CarryOpened.FX + item.OverheadsOpened.FX,
	}

	closedLoc := b.engine.ClosedLoc()
	closedFixed := b.engine.ClosedFixed()
	windowLoc := Basis{
		Principal: closedLoc.Principal - b.preWindowLoc.Principal,
		Carry:     closedLoc.Carry - b.preWindowLoc.Carry,
		Overheads: closedLoc.Overheads - b.preWindowLoc.Overheads,
	}
	windowFixed := Basis{
		Principal: closedFixed.Principal - b.preWindowFixed.Principal,
		Carry:     closedFixed.Carry - b.preWindowFixed.Carry,
		Overheads: closedFixed.Overheads - b.preWindowFixed.Overheads,
	}

	item.PrincipalClosed = component(windowLoc.Principal, windowFixed.Principal, pchToRep)
	item.CarryClosed = component(windowLoc.Carry, windowFixed.Carry, pchToRep)
	item.OverheadsClosed = component(windowLoc.Overheads, windowFixed.Overheads, pchToRep)
	item.TotalClosed = PLComponent{
		Total: item.PrincipalClosed.Total + item.CarryClosed.Total + item.OverheadsClosed.Total,
		Loc:   item.PrincipalClosed.Loc + item.CarryClosed.Loc + item.OverheadsClosed.Loc,
		Fixed: item.PrincipalClosed.Fixed + item.CarryClosed.Fixed + item.OverheadsClosed.Fixed,
		FX:    item.PrincipalClosed.FX + item.CarryClosed.FX + item.OverheadsClosed.FX,
	}

	mvLoc := mvPrincipalLoc + mvCarryLoc
	item.CostSeries = buildCostSeries(b.engine, instrument, price, mvLoc, valued, pchToRep, spec.ReportDate)
	return item
}

func buildPLEventItem(e *plEvent) PLItem {
	item := PLItem{
		ItemType:         ItemTypeCurrency,
		ItemTypeName:     string(e.class),
		GroupKey:         e.key,
		TransactionClass: e.class,
		Name:             string(e.class),
		UserCode:         string(e.class),
	}
	item.PrincipalClosed = PLComponent{Total: e.total.Principal, Loc: e.loc.Principal, Fixed: e.fixed.Principal, FX: e.total.Principal - e.fixed.Principal}
	item.CarryClosed = PLComponent{Total: e.total.Carry, Loc: e.loc.Carry, Fixed: e.fixed.Carry, FX: e.total.Carry - e.fixed.Carry}
	item.OverheadsClosed = PLComponent{Total: e.total.Overheads, Loc: e.loc.Overheads, Fixed: e.fixed.Overheads, FX: e.total.Overheads - e.fixed.Overheads}
	item.TotalClosed = PLComponent{
		Total: e.total.Total(),
		Loc:   e.loc.Total(),
		Fixed: e.fixed.Total(),
		FX:    e.total.Total() - e.fixed.Total(),
	}
	return item
}

func sortPLItems(items []PLItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ItemType != items[j].ItemType {
			return items[i].ItemType < items[j].ItemType
		}
		return items[i].UserCode < items[j].UserCode
	})
}
