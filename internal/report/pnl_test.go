package report

import (
	"testing"

	"github.com/sokolovdp/finmars-core-sub005/internal/model"
)

func plSpec(t *testing.T, reportDate string) *Spec {
	return &Spec{
		ReportDate:       day(t, reportDate),
		ReportType:       "pl",
		ReportCurrencyID: "usd",
		CostMethod:       CostMethodAVCO,
	}
}

func sellTxn(t *testing.T, date string, size, principal float64) *model.Transaction {
	txn := buyTxn(t, date, size, principal)
	txn.ID = "sell_" + date
	txn.TransactionClass = model.ClassSell
	return txn
}

func findPLItem(items []PLItem, itemType int, id string) *PLItem {
	for i := range items {
		it := &items[i]
		if it.ItemType != itemType {
			continue
		}
		if it.InstrumentID == id || string(it.TransactionClass) == id {
			return it
		}
	}
	return nil
}

func TestBuildPLOpenPosition(t *testing.T) {
	txn := buyTxn(t, "2024-01-10", 100, -95)
	data := testData([]*model.Transaction{txn},
		map[string]*model.PriceHistory{"bond1": {InstrumentID: "bond1", PrincipalPrice: 1.00}}, nil)

	result := BuildPL(plSpec(t, "2024-01-31"), data)

	item := findPLItem(result.PLItems, ItemTypeInstrument, "bond1")
	if item == nil {
		t.Fatal("Expected a P&L row for bond1")
	}
	if !approx(item.PrincipalOpened.Total, 5) {
		t.Errorf("Expected opened principal 5 (mv 100 - cost 95), got %f", item.PrincipalOpened.Total)
	}
	if !approx(item.TotalOpened.Total, 5) {
		t.Errorf("Expected total opened 5, got %f", item.TotalOpened.Total)
	}
	if !approx(item.TotalClosed.Total, 0) {
		t.Errorf("Expected no realised P&L on an open position, got %f", item.TotalClosed.Total)
	}
	if item.MarketValue == nil || !approx(*item.MarketValue, 100) {
		t.Errorf("Expected market value 100, got %v", item.MarketValue)
	}
}

func TestBuildPLClosedPosition(t *testing.T) {
	txns := []*model.Transaction{
		buyTxn(t, "2024-01-10", 100, -100),
		sellTxn(t, "2024-01-20", -100, 120),
	}
	data := testData(txns,
		map[string]*model.PriceHistory{"bond1": {InstrumentID: "bond1", PrincipalPrice: 1.20}}, nil)

	result := BuildPL(plSpec(t, "2024-01-31"), data)

	item := findPLItem(result.PLItems, ItemTypeInstrument, "bond1")
	if item == nil {
		t.Fatal("Expected a P&L row for bond1")
	}
	if !approx(item.PrincipalClosed.Total, 20) {
		t.Errorf("Expected realised principal 20, got %f", item.PrincipalClosed.Total)
	}
	if !approx(item.TotalOpened.Total, 0) {
		t.Errorf("Expected no unrealised P&L on a flat position, got %f", item.TotalOpened.Total)
	}
	if item.PositionSize != 0 {
		t.Errorf("Expected a flat position size, got %f", item.PositionSize)
	}
}

func TestBuildPLCarryAndOverheadsFamilies(t *testing.T) {
	txn := buyTxn(t, "2024-01-10", 100, -95)
	txn.CarryWithSign = -2
	txn.OverheadsWithSign = -1
	data := testData([]*model.Transaction{txn},
		map[string]*model.PriceHistory{"bond1": {InstrumentID: "bond1", PrincipalPrice: 1.00}}, nil)

	result := BuildPL(plSpec(t, "2024-01-31"), data)

	item := findPLItem(result.PLItems, ItemTypeInstrument, "bond1")
	if item == nil {
		t.Fatal("Expected a P&L row for bond1")
	}
	if !approx(item.CarryOpened.Total, -2) {
		t.Errorf("Expected opened carry -2, got %f", item.CarryOpened.Total)
	}
	if !approx(item.OverheadsOpened.Total, -1) {
		t.Errorf("Expected opened overheads -1, got %f", item.OverheadsOpened.Total)
	}
	if !approx(item.TotalOpened.Total, 2) {
		t.Errorf("Expected total opened 5 - 2 - 1 = 2, got %f", item.TotalOpened.Total)
	}
}

func TestBuildPLWindow(t *testing.T) {
	// A full round trip before the window and one inside it. Only the
	// in-window realised amount may show.
	txns := []*model.Transaction{
		buyTxn(t, "2024-01-10", 100, -100),
		sellTxn(t, "2024-01-20", -100, 110),
		buyTxn(t, "2024-02-10", 100, -100),
		sellTxn(t, "2024-02-20", -100, 130),
	}
	data := testData(txns,
		map[string]*model.PriceHistory{"bond1": {InstrumentID: "bond1", PrincipalPrice: 1.30}}, nil)

	spec := plSpec(t, "2024-02-28")
	spec.PLFirstDate = day(t, "2024-02-01")
	result := BuildPL(spec, data)

	item := findPLItem(result.PLItems, ItemTypeInstrument, "bond1")
	if item == nil {
		t.Fatal("Expected a P&L row for bond1")
	}
	if !approx(item.PrincipalClosed.Total, 30) {
		t.Errorf("Expected only the in-window realised 30, got %f", item.PrincipalClosed.Total)
	}
}

func TestBuildPLWindowKeepsBasis(t *testing.T) {
	// A buy before the window shapes the cost basis of an in-window sell.
	txns := []*model.Transaction{
		buyTxn(t, "2024-01-10", 100, -100),
		sellTxn(t, "2024-02-20", -100, 130),
	}
	data := testData(txns,
		map[string]*model.PriceHistory{"bond1": {InstrumentID: "bond1", PrincipalPrice: 1.30}}, nil)

	spec := plSpec(t, "2024-02-28")
	spec.PLFirstDate = day(t, "2024-02-01")
	result := BuildPL(spec, data)

	item := findPLItem(result.PLItems, ItemTypeInstrument, "bond1")
	if item == nil {
		t.Fatal("Expected a P&L row for bond1")
	}
	if !approx(item.PrincipalClosed.Total, 30) {
		t.Errorf("Expected realised 30 against the pre-window basis, got %f", item.PrincipalClosed.Total)
	}
}

func TestBuildPLWindowUnorderedStream(t *testing.T) {
	// The ledger stream is ordered by transaction date, so a flow with a
	// pre-window accounting date can arrive after the in-window sell. Its
	// snapshot must not erase the sell's realised amount.
	lateBuy := buyTxn(t, "2024-01-15", 50, -50)
	lateBuy.ID = "buy_booked_late"
	lateBuy.TransactionDate = day(t, "2024-02-25")
	txns := []*model.Transaction{
		buyTxn(t, "2024-01-10", 100, -100),
		sellTxn(t, "2024-02-20", -100, 130),
		lateBuy,
	}
	data := testData(txns,
		map[string]*model.PriceHistory{"bond1": {InstrumentID: "bond1", PrincipalPrice: 1.30}}, nil)

	spec := plSpec(t, "2024-02-28")
	spec.PLFirstDate = day(t, "2024-02-01")
	result := BuildPL(spec, data)

	item := findPLItem(result.PLItems, ItemTypeInstrument, "bond1")
	if item == nil {
		t.Fatal("Expected a P&L row for bond1")
	}
	if !approx(item.PrincipalClosed.Total, 30) {
		t.Errorf("Expected the in-window realised 30 to survive, got %f", item.PrincipalClosed.Total)
	}
	if item.PositionSize != 50 {
		t.Errorf("Expected the late buy to remain open, got size %f", item.PositionSize)
	}
}

func TestBuildPLEventRows(t *testing.T) {
	fx := newTestTxn(model.ClassFXVariation, day(t, "2024-01-15"), day(t, "2024-01-15"))
	fx.ID = "fx1"
	fx.PrincipalWithSign = -5
	fx.CashConsideration = -5

	data := testData([]*model.Transaction{fx}, nil, nil)
	result := BuildPL(plSpec(t, "2024-01-31"), data)

	item := findPLItem(result.PLItems, ItemTypeCurrency, string(model.ClassFXVariation))
	if item == nil {
		t.Fatal("Expected an fx_variation row")
	}
	if !approx(item.TotalClosed.Total, -5) {
		t.Errorf("Expected -5 realised, got %f", item.TotalClosed.Total)
	}
	if item.ItemTypeName != string(model.ClassFXVariation) {
		t.Errorf("Expected the class as item type name, got %s", item.ItemTypeName)
	}
}

func TestBuildPLEventBeforeWindowSkipped(t *testing.T) {
	fx := newTestTxn(model.ClassFXVariation, day(t, "2024-01-15"), day(t, "2024-01-15"))
	fx.ID = "fx1"
	fx.PrincipalWithSign = -5

	data := testData([]*model.Transaction{fx}, nil, nil)
	spec := plSpec(t, "2024-02-28")
	spec.PLFirstDate = day(t, "2024-02-01")
	result := BuildPL(spec, data)

	if len(result.PLItems) != 0 {
		t.Errorf("Expected the pre-window event to be skipped, got %d items", len(result.PLItems))
	}
}

func TestBuildPLFXSplit(t *testing.T) {
	// A EUR round trip with a moving rate: loc gain 10 EUR, revalued at the
	// report-date rate, against fixed amounts frozen at each accounting date.
	txns := []*model.Transaction{
		buyTxn(t, "2024-01-10", 100, -100),
		sellTxn(t, "2024-02-12", -100, 110),
	}
	for _, txn := range txns {
		txn.TransactionCurrencyID = "eur"
		txn.SettlementCurrencyID = "eur"
	}
	rates := map[string]map[string]float64{
		"eur": {"2024-01-10": 1.0, "2024-02-12": 1.1, "2024-03-29": 1.2},
	}
	data := testData(txns,
		map[string]*model.PriceHistory{"bond1": {InstrumentID: "bond1", PrincipalPrice: 1.10}}, rates)
	data.Instruments["bond1"].PricingCurrencyID = "eur"
	data.Instruments["bond1"].AccruedCurrencyID = "eur"

	result := BuildPL(plSpec(t, "2024-03-29"), data)

	item := findPLItem(result.PLItems, ItemTypeInstrument, "bond1")
	if item == nil {
		t.Fatal("Expected a P&L row for bond1")
	}
	closed := item.PrincipalClosed
	if !approx(closed.Loc, 10) {
		t.Errorf("Expected realised 10 EUR, got %f", closed.Loc)
	}
	if !approx(closed.Total, 12) {
		t.Errorf("Expected 10 EUR at the report-date rate 1.2 = 12, got %f", closed.Total)
	}
	if !approx(closed.Fixed, 21) {
		t.Errorf("Expected fixed -100 + 110*1.1 = 21, got %f", closed.Fixed)
	}
	if !approx(closed.FX, closed.Total-closed.Fixed) {
		t.Errorf("Expected FX to reconcile total and fixed, got %f", closed.FX)
	}
}
