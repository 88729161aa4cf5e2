package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/sokolovdp/finmars-core-sub005/internal/model"
)

type cashBucketKey struct {
	GroupKey
	currencyID string
}

type cashBucket struct {
	key        GroupKey
	currencyID string
	amount     float64
}

type positionBucketKey struct {
	GroupKey
	instrumentID string
}

type positionBucket struct {
	key          GroupKey
	instrumentID string
	size         float64
	engine       *LotEngine
}

// positionAffecting reports whether the class moves instrument positions.
func positionAffecting(class model.TransactionClass) bool {
	return class == model.ClassBuy || class == model.ClassSell || class == model.ClassInitialPosition
}

// newPositionFlow converts one position-affecting transaction into a lot
// engine flow: loc amounts in the instrument's pricing currency, fixed
// amounts in report currency, both at the rates prevailing on the
// accounting date.
func newPositionFlow(t *model.Transaction, pricingCurrencyID, reportCurrencyID string, v *Valuation) Flow {
	loc := func(amount float64) float64 {
		converted, ok := v.Convert(amount, t.TransactionCurrencyID, pricingCurrencyID, t.AccountingDate)
		if !ok {
			return amount
		}
		return converted
	}
	fixed := func(amount float64) float64 {
		converted, ok := v.Convert(amount, t.TransactionCurrencyID, reportCurrencyID, t.AccountingDate)
		if !ok {
			return amount
		}
		return converted
	}
	return Flow{
		Date: t.AccountingDate,
		Size: t.PositionSizeWithSign,
		Loc: Basis{
			Principal: loc(t.PrincipalWithSign),
			Carry:     loc(t.CarryWithSign),
			Overheads: loc(t.OverheadsWithSign),
		},
		Fixed: Basis{
			Principal: fixed(t.PrincipalWithSign),
			Carry:     fixed(t.CarryWithSign),
			Overheads: fixed(t.OverheadsWithSign),
		},
	}
}

// buildCostSeries derives the cost-price and invested-amount outputs of a
// position bucket from its surviving open basis.
func buildCostSeries(engine *LotEngine, instrument *model.Instrument, price *model.PriceHistory, mvLoc float64, mvOK bool, pchToRep float64, reportDate time.Time) CostSeries {
	var cs CostSeries

	size := engine.OpenSize()
	openLoc := engine.OpenLoc()
	mult := instrument.PriceMultiplier
	if mult == 0 {
		mult = 1
	}

	if size != 0 {
		cs.GrossCostPriceLoc = -openLoc.Principal / (size * mult)
		cs.NetCostPriceLoc = -openLoc.Total() / (size * mult)
		cs.GrossCostPrice = cs.GrossCostPriceLoc * pchToRep
		cs.NetCostPrice = cs.NetCostPriceLoc * pchToRep
	}

	cs.PrincipalInvestedLoc = -openLoc.Principal
	cs.AmountInvestedLoc = -openLoc.Total()
	cs.PrincipalInvested = cs.PrincipalInvestedLoc * pchToRep
	cs.AmountInvested = cs.AmountInvestedLoc * pchToRep

	if mvOK {
		cs.PositionReturnLoc = mvLoc + openLoc.Principal + openLoc.Carry
		cs.NetPositionReturnLoc = mvLoc + openLoc.Total()
		cs.PositionReturn = cs.PositionReturnLoc * pchToRep
		cs.NetPositionReturn = cs.NetPositionReturnLoc * pchToRep
	}

	if opened := engine.OldestOpenDate(); !opened.IsZero() && reportDate.After(opened) {
		cs.TimeInvested = reportDate.Sub(opened).Hours() / 24 / 365
		if cs.AmountInvested != 0 && cs.TimeInvested > 0 {
			cs.ReturnAnnually = cs.NetPositionReturn / cs.AmountInvested / cs.TimeInvested
		}
	}

	if price != nil {
		cs.YTM = price.YTM
		cs.ModifiedDuration = price.ModifiedDuration
		cs.YTMAtCost = price.YTM
		if cs.GrossCostPriceLoc != 0 {
			cs.YTMAtCost = price.YTM * price.PrincipalPrice / cs.GrossCostPriceLoc
		}
	}

	return cs
}

// BuildBalance computes a balance report: cash rows per settlement currency
// and position rows per instrument, valued at the report date.
func BuildBalance(spec *Spec, data *Data) *Result {
	result := &Result{ReportDate: spec.ReportDate, ReportType: "balance"}

	projections := Consolidate(data.Transactions, spec)
	cash, positions := accumulate(spec, data, projections)

	repFX, repOK := data.Valuation.FXOn(spec.ReportCurrencyID, spec.ReportDate)

	for _, b := range cash {
		if b.amount == 0 || data.isPlaceholderCurrency(b.currencyID) {
			continue
		}
		result.Items = append(result.Items, buildCashItem(spec, data, b, repFX, repOK))
	}
	for _, b := range positions {
		if b.size == 0 || data.isPlaceholderInstrument(b.instrumentID) {
			continue
		}
		result.Items = append(result.Items, buildPositionItem(spec, data, b, repFX, repOK))
	}

	sortBalanceItems(result.Items)
	result.ErrorMessages = data.Valuation.Problems()
	return result
}

// accumulate folds projections into cash and position buckets in stream
// order, so lot engines see flows ordered by (transaction_date, id).
func accumulate(spec *Spec, data *Data, projections []Projection) ([]*cashBucket, []*positionBucket) {
	cashBuckets := make(map[cashBucketKey]*cashBucket)
	positionBuckets := make(map[positionBucketKey]*positionBucket)
	var cashOrder []*cashBucket
	var positionOrder []*positionBucket

	for _, p := range projections {
		t := p.Txn

		for _, leg := range p.Cash {
			key := spec.Dims.CashGroupKey(t, leg, t.AllocationBalanceID).Backfill(data.Defaults)
			bk := cashBucketKey{GroupKey: key, currencyID: t.SettlementCurrencyID}
			b, ok := cashBuckets[bk]
			if !ok {
				b = &cashBucket{key: key, currencyID: t.SettlementCurrencyID}
				cashBuckets[bk] = b
				cashOrder = append(cashOrder, b)
			}
			b.amount += leg.Amount
		}

		if p.Position == nil || t.InstrumentID == "" || !positionAffecting(t.TransactionClass) {
			continue
		}
		key := spec.Dims.PositionGroupKey(t, p.Position, t.AllocationBalanceID).Backfill(data.Defaults)
		bk := positionBucketKey{GroupKey: key, instrumentID: t.InstrumentID}
		b, ok := positionBuckets[bk]
		if !ok {
			b = &positionBucket{key: key, instrumentID: t.InstrumentID, engine: NewLotEngine(spec.CostMethod)}
			positionBuckets[bk] = b
			positionOrder = append(positionOrder, b)
		}
		b.size += t.PositionSizeWithSign

		pricingCcy := t.TransactionCurrencyID
		if instr, found := data.Instruments[t.InstrumentID]; found {
			pricingCcy = instr.PricingCurrencyID
		}
		b.engine.Add(newPositionFlow(t, pricingCcy, spec.ReportCurrencyID, data.Valuation))
	}

	return cashOrder, positionOrder
}

func buildCashItem(spec *Spec, data *Data, b *cashBucket, repFX float64, repOK bool) BalanceItem {
	name, shortName, userCode := data.currencyInfo(b.currencyID)
	item := BalanceItem{
		ItemType:     ItemTypeCurrency,
		ItemTypeName: "currency",
		GroupKey:     b.key,
		CurrencyID:   b.currencyID,
		Name:         name,
		ShortName:    shortName,
		UserCode:     userCode,
		PositionSize: b.amount,
	}

	fx, fxOK := data.Valuation.FXOn(b.currencyID, spec.ReportDate)
	if !fxOK || !repOK || repFX == 0 {
		return item
	}
	item.FXRate = fx
	mvLoc := b.amount * fx
	mv := mvLoc / repFX
	item.MarketValueLoc = &mvLoc
	item.MarketValue = &mv
	item.Exposure = mv
	item.ExposureLoc = mvLoc
	return item
}

func buildPositionItem(spec *Spec, data *Data, b *positionBucket, repFX float64, repOK bool) BalanceItem {
	name, shortName, userCode := data.instrumentInfo(b.instrumentID)
	item := BalanceItem{
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
		data.Valuation.record(fmt.Sprintf("unknown instrument %s", b.instrumentID))
		return item
	}
	item.PricingCurrencyID = instrument.PricingCurrencyID

	price, priceOK := data.Valuation.PriceOf(b.instrumentID)
	item.NominalPositionSize = b.size
	if priceOK {
		item.NominalPositionSize = b.size / price.EffectiveFactor()
	}

	pchFX, pchOK := data.Valuation.FXOn(instrument.PricingCurrencyID, spec.ReportDate)
	achFX, achOK := data.Valuation.FXOn(instrument.AccruedCurrencyID, spec.ReportDate)
	item.FXRate = pchFX

	valued := priceOK && pchOK && achOK && repOK && repFX != 0 && pchFX != 0

	var mvLoc, mv float64
	if valued {
		mvLoc = b.size*price.PrincipalPrice*instrument.PriceMultiplier +
			b.size*price.AccruedPrice*instrument.AccruedMultiplier*achFX/pchFX
		mv = mvLoc * pchFX / repFX
	}

	pchToRep := 0.0
	if repOK && repFX != 0 {
		pchToRep = pchFX / repFX
	}
	item.CostSeries = buildCostSeries(b.engine, instrument, price, mvLoc, valued, pchToRep, spec.ReportDate)

	if valued && instrument.InstrumentClass == model.InstrumentClassVariableCost {
		mvLoc = b.size * (price.PrincipalPrice - item.GrossCostPriceLoc) * instrument.PriceMultiplier
		mv = mvLoc * pchFX / repFX
	}

	if valued {
		item.MarketValueLoc = &mvLoc
		item.MarketValue = &mv
		applyExposure(spec, data, instrument, price, b.size, mv, mvLoc, pchFX, achFX, repFX, &item)
	}
	return item
}

// applyExposure fills the exposure fields per the instrument's exposure
// calculation model.
func applyExposure(spec *Spec, data *Data, instrument *model.Instrument, price *model.PriceHistory, size, mv, mvLoc, pchFX, achFX, repFX float64, item *BalanceItem) {
	var details ExposureDetails

	switch instrument.ExposureCalculationModel {
	case model.ExposureZero:
		// Exposure stays zero.

	case model.ExposureLongUnderlyingPrice, model.ExposureLongUnderlyingDelta:
		underlying, ok := data.Instruments[instrument.LongUnderlyingID]
		if !ok {
			data.Valuation.record(fmt.Sprintf("missing long underlying for instrument %s", instrument.ID))
			return
		}
		uPrice, priceOK := data.Valuation.PriceOf(underlying.ID)
		if !priceOK {
			return
		}
		exposure := instrument.UnderlyingLongMultiplier *
			(uPrice.PrincipalPrice*underlying.PriceMultiplier + uPrice.AccruedPrice*underlying.AccruedMultiplier)
		details.LongUnderlyingPrice = exposure
		if instrument.ExposureCalculationModel == model.ExposureLongUnderlyingDelta {
			exposure *= price.LongDelta
			details.LongUnderlyingPriceDelta = exposure
		}
		item.ExposureLoc = exposure
		if repFX != 0 {
			item.Exposure = exposure * pchFX / repFX
		}

	case model.ExposureLongUnderlyingFX, model.ExposureLongUnderlyingFXDlt:
		fx, ok := data.Valuation.FXOn(instrument.CoDirectionalCurrencyID, spec.ReportDate)
		if !ok {
			return
		}
		exposure := instrument.UnderlyingLongMultiplier * fx
		details.LongUnderlyingFXRate = exposure
		if instrument.ExposureCalculationModel == model.ExposureLongUnderlyingFXDlt {
			exposure *= price.LongDelta
			details.LongUnderlyingFXDelta = exposure
		}
		item.ExposureLoc = exposure
		if repFX != 0 {
			item.Exposure = exposure * pchFX / repFX
		}

	default:
		item.ExposureLoc = size*price.PrincipalPrice*instrument.PriceMultiplier*pchFX +
			size*price.AccruedPrice*instrument.AccruedMultiplier*achFX
		if repFX != 0 {
			item.Exposure = item.ExposureLoc / repFX
		}
	}

	if it, ok := data.InstrumentTypes[instrument.InstrumentTypeID]; ok && it.HasSecondExposureCurrency {
		item.Exposure2 = -item.Exposure
		item.Exposure2Loc = -item.ExposureLoc
	}

	if spec.ShowBalanceExposureDetails {
		item.Details = &details
	}
}

func sortBalanceItems(items []BalanceItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ItemType != items[j].ItemType {
			return items[i].ItemType < items[j].ItemType
		}
		return items[i].UserCode < items[j].UserCode
	})
}
