package performance

import (
	"context"
	"database/sql"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sokolovdp/finmars-core-sub005/internal/model"
	"github.com/sokolovdp/finmars-core-sub005/internal/report"
	"github.com/sokolovdp/finmars-core-sub005/internal/repository"
	"github.com/sokolovdp/finmars-core-sub005/internal/testutil"
)

type perfEnv struct {
	db        *sql.DB
	service   *Service
	registers *repository.RegisterRepository
	fixture   *testutil.Fixture
	register  model.PortfolioRegister
	stock     model.Instrument
}

func newPerfEnv(t *testing.T) *perfEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixture(t, db)

	fund := testutil.InsertInstrument(t, db, f.MasterUserID, "fund_unit", f.USD.ID)
	register := testutil.InsertRegister(t, db, f, "main_register", f.Portfolio.ID, fund.ID, 1)
	stock := testutil.InsertInstrument(t, db, f.MasterUserID, "stock1", f.USD.ID)

	log := zerolog.Nop()
	transactionRepo := repository.NewTransactionRepository(db)
	referenceRepo := repository.NewReferenceRepository(db)
	priceRepo := repository.NewPriceHistoryRepository(db)
	rateRepo := repository.NewCurrencyHistoryRepository(db)
	registerRepo := repository.NewRegisterRepository(db)

	reports := report.NewService(log, transactionRepo, referenceRepo, priceRepo, rateRepo, nil)
	service := NewService(log, registerRepo, transactionRepo, referenceRepo, rateRepo, reports)

	return &perfEnv{
		db:        db,
		service:   service,
		registers: registerRepo,
		fixture:   f,
		register:  register,
		stock:     stock,
	}
}

func (e *perfEnv) request(t *testing.T, begin, end string) Request {
	t.Helper()
	return Request{
		MasterUserID:      e.fixture.MasterUserID,
		RegisterUserCodes: []string{e.register.UserCode},
		BeginDate:         testutil.Date(t, begin),
		EndDate:           testutil.Date(t, end),
		ReportCurrencyID:  e.fixture.USD.ID,
		PricingPolicyID:   e.fixture.Policy.ID,
	}
}

func (e *perfEnv) insertRecord(t *testing.T, txnID, date string, amount float64) {
	t.Helper()
	err := e.registers.InsertRecord(&model.PortfolioRegisterRecord{
		ID:                          testutil.MakeID(),
		MasterUserID:                e.fixture.MasterUserID,
		RegisterID:                  e.register.ID,
		TransactionID:               txnID,
		TransactionClass:            model.ClassCashInflow,
		TransactionDate:             testutil.Date(t, date),
		CashAmount:                  amount,
		CashCurrencyID:              e.fixture.USD.ID,
		ValuationCurrencyID:         e.fixture.USD.ID,
		FXRate:                      1,
		CashAmountValuationCurrency: amount,
		NSharesAdded:                amount,
		RollingSharesOfTheDay:       amount,
		SharePriceCalculationType:   model.SharePriceAutomatic,
	})
	if err != nil {
		t.Fatalf("Failed to insert register record: %v", err)
	}
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestTimeWeightedReturn(t *testing.T) {
	env := newPerfEnv(t)
	f := env.fixture

	// 100 units bought at 10, priced 10 on Thursday and 11 on Friday.
	testutil.NewTransaction(f).CashIn(1000).On(t, "2024-01-08").Build(t, env.db)
	testutil.NewTransaction(f).Buy(env.stock.ID, 100, -1000).On(t, "2024-01-08").Build(t, env.db)
	testutil.InsertPrice(t, env.db, env.stock.ID, f.Policy.ID, testutil.Date(t, "2024-01-11"), 10)
	testutil.InsertPrice(t, env.db, env.stock.ID, f.Policy.ID, testutil.Date(t, "2024-01-12"), 11)

	req := env.request(t, "2024-01-11", "2024-01-12")
	req.CalculationType = CalculationTimeWeighted
	req.SegmentationType = SegmentationDays
	result, err := env.service.Compute(context.Background(), req)
	if err != nil {
		t.Fatalf("Failed to compute: %v", err)
	}

	if !closeTo(result.GrandReturn, 0.10) {
		t.Errorf("Expected return 0.10 (1000 to 1100, no flows), got %f", result.GrandReturn)
	}
	if !closeTo(result.BeginNav, 1000) || !closeTo(result.EndNav, 1100) {
		t.Errorf("Expected NAVs 1000 to 1100, got %f to %f", result.BeginNav, result.EndNav)
	}
	if len(result.Periods) != 1 {
		t.Fatalf("Expected one daily segment, got %d", len(result.Periods))
	}
	if !closeTo(result.Periods[0].Return, 0.10) {
		t.Errorf("Expected segment return 0.10, got %f", result.Periods[0].Return)
	}
}

func TestTimeWeightedReturnExcludesCashFlow(t *testing.T) {
	env := newPerfEnv(t)
	f := env.fixture

	testutil.NewTransaction(f).CashIn(1000).On(t, "2024-01-08").Build(t, env.db)
	testutil.NewTransaction(f).Buy(env.stock.ID, 100, -1000).On(t, "2024-01-08").Build(t, env.db)
	testutil.InsertPrice(t, env.db, env.stock.ID, f.Policy.ID, testutil.Date(t, "2024-01-11"), 10)
	testutil.InsertPrice(t, env.db, env.stock.ID, f.Policy.ID, testutil.Date(t, "2024-01-12"), 11)

	// A 100 subscription lands on Friday, in the ledger and the register.
	flow := testutil.NewTransaction(f).CashIn(100).On(t, "2024-01-12").Build(t, env.db)
	env.insertRecord(t, flow.ID, "2024-01-12", 100)

	req := env.request(t, "2024-01-11", "2024-01-12")
	req.CalculationType = CalculationTimeWeighted
	req.SegmentationType = SegmentationDays
	result, err := env.service.Compute(context.Background(), req)
	if err != nil {
		t.Fatalf("Failed to compute: %v", err)
	}

	// Friday NAV 1210 = 1100 position + 100 cash; the flow is backed out.
	if !closeTo(result.GrandReturn, 0.11) {
		t.Errorf("Expected return 0.11 with the flow backed out, got %f", result.GrandReturn)
	}
	if !closeTo(result.GrandCashFlow, 100) {
		t.Errorf("Expected grand cash flow 100, got %f", result.GrandCashFlow)
	}
}

func TestModifiedDietzReturn(t *testing.T) {
	env := newPerfEnv(t)
	f := env.fixture

	testutil.NewTransaction(f).CashIn(1000).On(t, "2024-01-02").Build(t, env.db)
	testutil.NewTransaction(f).Buy(env.stock.ID, 100, -1000).On(t, "2024-01-02").Build(t, env.db)
	testutil.InsertPrice(t, env.db, env.stock.ID, f.Policy.ID, testutil.Date(t, "2024-01-08"), 10)
	testutil.InsertPrice(t, env.db, env.stock.ID, f.Policy.ID, testutil.Date(t, "2024-01-12"), 12)

	// A 100 flow on Wednesday, halfway through the Monday-Friday window.
	// Its ledger leg is zero so the NAV gain carries the whole move.
	flow := testutil.NewTransaction(f).CashIn(0).On(t, "2024-01-10").Build(t, env.db)
	env.insertRecord(t, flow.ID, "2024-01-10", 100)

	req := env.request(t, "2024-01-08", "2024-01-12")
	req.CalculationType = CalculationModifiedDietz
	result, err := env.service.Compute(context.Background(), req)
	if err != nil {
		t.Fatalf("Failed to compute: %v", err)
	}

	// (1200 - 1000 - 100) / (1000 + 100*0.5)
	if !closeTo(result.GrandReturn, 100.0/1050.0) {
		t.Errorf("Expected return %f, got %f", 100.0/1050.0, result.GrandReturn)
	}
	if !closeTo(result.GrandCashFlow, 100) {
		t.Errorf("Expected cash flow 100, got %f", result.GrandCashFlow)
	}
}

func TestModifiedDietzEmptyWindow(t *testing.T) {
	env := newPerfEnv(t)
	f := env.fixture

	testutil.NewTransaction(f).CashIn(1000).On(t, "2024-01-02").Build(t, env.db)
	testutil.NewTransaction(f).Buy(env.stock.ID, 100, -1000).On(t, "2024-01-02").Build(t, env.db)
	testutil.InsertPrice(t, env.db, env.stock.ID, f.Policy.ID, testutil.Date(t, "2024-01-12"), 12)

	req := env.request(t, "2024-01-12", "2024-01-12")
	req.CalculationType = CalculationModifiedDietz
	result, err := env.service.Compute(context.Background(), req)
	if err != nil {
		t.Fatalf("Failed to compute: %v", err)
	}

	if result.GrandReturn != 0 {
		t.Errorf("Expected a zero return over an empty window, got %f", result.GrandReturn)
	}
}

func TestComputeAnnualized(t *testing.T) {
	env := newPerfEnv(t)
	f := env.fixture

	testutil.NewTransaction(f).CashIn(1000).On(t, "2024-01-08").Build(t, env.db)
	testutil.NewTransaction(f).Buy(env.stock.ID, 100, -1000).On(t, "2024-01-08").Build(t, env.db)
	testutil.InsertPrice(t, env.db, env.stock.ID, f.Policy.ID, testutil.Date(t, "2024-01-11"), 10)
	testutil.InsertPrice(t, env.db, env.stock.ID, f.Policy.ID, testutil.Date(t, "2024-01-12"), 11)

	req := env.request(t, "2024-01-11", "2024-01-12")
	req.AdjustmentType = AdjustmentAnnualized
	result, err := env.service.Compute(context.Background(), req)
	if err != nil {
		t.Fatalf("Failed to compute: %v", err)
	}

	want := math.Pow(1.10, 365) - 1
	if math.Abs(result.AnnualizedReturn-want)/want > 1e-3 {
		t.Errorf("Expected a one-day 10%% gain annualized to %g, got %g", want, result.AnnualizedReturn)
	}
}

func TestSnapshot(t *testing.T) {
	env := newPerfEnv(t)
	f := env.fixture

	testutil.NewTransaction(f).CashIn(1000).On(t, "2024-01-08").Build(t, env.db)
	testutil.NewTransaction(f).Buy(env.stock.ID, 100, -1000).On(t, "2024-01-08").Build(t, env.db)
	testutil.InsertPrice(t, env.db, env.stock.ID, f.Policy.ID, testutil.Date(t, "2024-01-11"), 10)
	testutil.InsertPrice(t, env.db, env.stock.ID, f.Policy.ID, testutil.Date(t, "2024-01-12"), 11)

	records, err := env.service.Snapshot(context.Background(), env.request(t, "2024-01-11", "2024-01-12"))
	if err != nil {
		t.Fatalf("Failed to snapshot: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected one snapshot row, got %d", len(records))
	}

	record := records[0]
	if record.Status != model.PortfolioHistoryOK {
		t.Errorf("Expected an ok snapshot, got %s (%s)", record.Status, record.ErrorMessage)
	}
	if !closeTo(record.CumulativeReturn, 0.10) {
		t.Errorf("Expected cumulative return 0.10, got %f", record.CumulativeReturn)
	}
	if record.UserCode != "main_register_inception_2024-01-12" {
		t.Errorf("Unexpected snapshot user code %s", record.UserCode)
	}

	var count int
	if err := env.db.QueryRow(`SELECT COUNT(*) FROM portfolio_history`).Scan(&count); err != nil {
		t.Fatalf("Failed to count snapshots: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected one persisted snapshot, got %d", count)
	}

	// A second snapshot over the same window replaces, not duplicates.
	if _, err := env.service.Snapshot(context.Background(), env.request(t, "2024-01-11", "2024-01-12")); err != nil {
		t.Fatalf("Failed to re-snapshot: %v", err)
	}
	if err := env.db.QueryRow(`SELECT COUNT(*) FROM portfolio_history`).Scan(&count); err != nil {
		t.Fatalf("Failed to count snapshots: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected the snapshot upserted, got %d rows", count)
	}
}

func TestSegments(t *testing.T) {
	begin := testutil.Date(t, "2024-01-15")
	end := testutil.Date(t, "2024-03-10")

	t.Run("months", func(t *testing.T) {
		spans := segments(begin, end, SegmentationMonths)
		if len(spans) != 3 {
			t.Fatalf("Expected 3 month segments, got %d", len(spans))
		}
		if !spans[0][1].Equal(testutil.Date(t, "2024-01-31")) {
			t.Errorf("Expected the first segment to end at month end, got %s", spans[0][1].Format("2006-01-02"))
		}
		if !spans[1][1].Equal(testutil.Date(t, "2024-02-29")) {
			t.Errorf("Expected the second segment to end at leap-February end, got %s", spans[1][1].Format("2006-01-02"))
		}
		if !spans[2][1].Equal(end) {
			t.Errorf("Expected the last segment clipped to the window end, got %s", spans[2][1].Format("2006-01-02"))
		}
	})

	t.Run("days", func(t *testing.T) {
		spans := segments(testutil.Date(t, "2024-01-11"), testutil.Date(t, "2024-01-15"), SegmentationDays)
		// Friday and Monday, one segment per business day after begin.
		if len(spans) != 2 {
			t.Fatalf("Expected 2 day segments, got %d", len(spans))
		}
		if !spans[0][0].Equal(testutil.Date(t, "2024-01-11")) || !spans[0][1].Equal(testutil.Date(t, "2024-01-12")) {
			t.Errorf("Unexpected first segment %v", spans[0])
		}
	})
}

func TestResolveWindowPeriods(t *testing.T) {
	env := newPerfEnv(t)
	end := testutil.Date(t, "2024-05-15")

	tests := []struct {
		period string
		want   string
	}{
		{PeriodYTD, "2023-12-29"},
		{PeriodQTD, "2024-03-29"},
		{PeriodMTD, "2024-04-30"},
		{PeriodDaily, "2024-05-14"},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			req := Request{MasterUserID: env.fixture.MasterUserID, EndDate: end, PeriodType: tt.period}
			begin, gotEnd, err := env.service.resolveWindow(req, nil)
			if err != nil {
				t.Fatalf("Failed to resolve: %v", err)
			}
			if !begin.Equal(testutil.Date(t, tt.want)) {
				t.Errorf("Expected begin %s, got %s", tt.want, begin.Format("2006-01-02"))
			}
			if !gotEnd.Equal(end) {
				t.Errorf("Expected end unchanged, got %s", gotEnd.Format("2006-01-02"))
			}
		})
	}

	t.Run("weekend end snaps back", func(t *testing.T) {
		req := Request{EndDate: testutil.Date(t, "2024-01-13"), PeriodType: PeriodDaily}
		_, gotEnd, err := env.service.resolveWindow(req, nil)
		if err != nil {
			t.Fatalf("Failed to resolve: %v", err)
		}
		if !gotEnd.Equal(testutil.Date(t, "2024-01-12")) {
			t.Errorf("Expected Saturday snapped to Friday, got %s", gotEnd.Format("2006-01-02"))
		}
	})
}

func TestAnnualize(t *testing.T) {
	begin := testutil.Date(t, "2023-01-01")
	end := begin.Add(365 * 24 * time.Hour)
	if got := annualize(0.1, begin, end); !closeTo(got, 0.1) {
		t.Errorf("Expected a one-year return unchanged, got %f", got)
	}
	if got := annualize(0.5, begin, begin); got != 0 {
		t.Errorf("Expected 0 over a zero-length window, got %f", got)
	}
	if got := annualize(-1.5, begin, end); got != 0 {
		t.Errorf("Expected 0 for a sub--100%% return, got %f", got)
	}
}
