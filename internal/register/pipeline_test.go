package register

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sokolovdp/finmars-core-sub005/internal/apperrors"
	"github.com/sokolovdp/finmars-core-sub005/internal/model"
	"github.com/sokolovdp/finmars-core-sub005/internal/report"
	"github.com/sokolovdp/finmars-core-sub005/internal/repository"
	"github.com/sokolovdp/finmars-core-sub005/internal/testutil"
)

type pipelineEnv struct {
	db        *sql.DB
	pipeline  *Pipeline
	registers *repository.RegisterRepository
	prices    *repository.PriceHistoryRepository
	tasks     *repository.TaskRepository
	fixture   *testutil.Fixture
	register  model.PortfolioRegister
	fund      model.Instrument
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// newPipelineEnv wires the pipeline against an in-memory database with one
// register whose linked instrument prices in the default currency.
func newPipelineEnv(t *testing.T) *pipelineEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	f := testutil.NewFixture(t, db)

	fund := testutil.InsertInstrument(t, db, f.MasterUserID, "fund_unit", f.USD.ID)
	register := testutil.InsertRegister(t, db, f, "main_register", f.Portfolio.ID, fund.ID, 1)

	log := zerolog.Nop()
	transactionRepo := repository.NewTransactionRepository(db)
	referenceRepo := repository.NewReferenceRepository(db)
	priceRepo := repository.NewPriceHistoryRepository(db)
	rateRepo := repository.NewCurrencyHistoryRepository(db)
	registerRepo := repository.NewRegisterRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	reports := report.NewService(log, transactionRepo, referenceRepo, priceRepo, rateRepo, nil)
	pipeline := NewPipeline(log, registerRepo, transactionRepo, referenceRepo, priceRepo, rateRepo, reports, taskRepo)

	return &pipelineEnv{
		db:        db,
		pipeline:  pipeline,
		registers: registerRepo,
		prices:    priceRepo,
		tasks:     taskRepo,
		fixture:   f,
		register:  register,
		fund:      fund,
	}
}

func (e *pipelineEnv) run(t *testing.T, endDate string) {
	t.Helper()
	err := e.pipeline.Run(context.Background(), "", Options{
		MasterUserID: e.fixture.MasterUserID,
		EndDate:      testutil.Date(t, endDate),
	})
	if err != nil {
		t.Fatalf("Pipeline run failed: %v", err)
	}
}

func TestPipelineDerivesRecords(t *testing.T) {
	env := newPipelineEnv(t)
	f := env.fixture

	testutil.NewTransaction(f).CashIn(1000).On(t, "2024-01-10").Build(t, env.db)
	testutil.NewTransaction(f).CashIn(500).On(t, "2024-01-12").Build(t, env.db)

	env.run(t, "2024-01-12")

	records, err := env.registers.GetRecords(env.register.ID)
	if err != nil {
		t.Fatalf("Failed to load records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}

	first, second := records[0], records[1]
	if first.NSharesAdded != 1000 || first.RollingSharesOfTheDay != 1000 {
		t.Errorf("Expected 1000 shares rolling after the first flow, got %f/%f",
			first.NSharesAdded, first.RollingSharesOfTheDay)
	}
	if first.DealingPriceValuationCurrency != 1 {
		t.Errorf("Expected the default price 1 on the first flow, got %f", first.DealingPriceValuationCurrency)
	}
	if second.NSharesAdded != 500 || second.RollingSharesOfTheDay != 1500 {
		t.Errorf("Expected rolling 1500 after the second flow, got %f/%f",
			second.NSharesAdded, second.RollingSharesOfTheDay)
	}
	if second.DealingPriceValuationCurrency != 1 {
		t.Errorf("Expected dealing price 1 (nav 1000 / 1000 shares), got %f", second.DealingPriceValuationCurrency)
	}

	for _, record := range records {
		if record.SharePriceCalculationType != model.SharePriceAutomatic {
			t.Errorf("Expected automatic share pricing, got %s", record.SharePriceCalculationType)
		}
	}
	if first.PreviousDateRecordID != "" {
		t.Errorf("Expected no predecessor on the first record, got %s", first.PreviousDateRecordID)
	}
	if second.PreviousDateRecordID != first.ID {
		t.Errorf("Expected the records chained, got %s", second.PreviousDateRecordID)
	}
	if second.NSharesPreviousDay != 1000 {
		t.Errorf("Expected 1000 shares carried into the second flow, got %f", second.NSharesPreviousDay)
	}
}

func TestPipelineRollingIsRunningSum(t *testing.T) {
	env := newPipelineEnv(t)
	f := env.fixture

	amounts := []float64{1000, 500, -200, 300}
	dates := []string{"2024-01-10", "2024-01-11", "2024-01-12", "2024-01-15"}
	for i, amount := range amounts {
		b := testutil.NewTransaction(f)
		if amount >= 0 {
			b.CashIn(amount)
		} else {
			b.CashOut(amount)
		}
		b.On(t, dates[i]).Build(t, env.db)
	}

	env.run(t, "2024-01-15")

	records, err := env.registers.GetRecords(env.register.ID)
	if err != nil {
		t.Fatalf("Failed to load records: %v", err)
	}
	if len(records) != len(amounts) {
		t.Fatalf("Expected %d records, got %d", len(amounts), len(records))
	}
	var rolling float64
	for i, record := range records {
		rolling += record.NSharesAdded
		if !approxEqual(record.RollingSharesOfTheDay, rolling) {
			t.Errorf("Record %d: rolling %f, want the running sum %f", i, record.RollingSharesOfTheDay, rolling)
		}
	}
}

func TestPipelineDealingPriceFromNav(t *testing.T) {
	env := newPipelineEnv(t)
	f := env.fixture

	// Seed the portfolio with cash, buy an instrument, and let its price
	// move before the next subscription.
	stock := testutil.InsertInstrument(t, env.db, f.MasterUserID, "stock1", f.USD.ID)
	testutil.NewTransaction(f).CashIn(1000).On(t, "2024-01-10").Build(t, env.db)
	testutil.NewTransaction(f).Buy(stock.ID, 100, -1000).On(t, "2024-01-10").Build(t, env.db)
	testutil.InsertPrice(t, env.db, stock.ID, f.Policy.ID, testutil.Date(t, "2024-01-14"), 11)
	testutil.NewTransaction(f).CashIn(500).On(t, "2024-01-15").Build(t, env.db)

	env.run(t, "2024-01-15")

	records, err := env.registers.GetRecords(env.register.ID)
	if err != nil {
		t.Fatalf("Failed to load records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}

	// Previous-day NAV: 100 units at 11 = 1100, over 1000 rolling shares.
	second := records[1]
	if !approxEqual(second.DealingPriceValuationCurrency, 1.1) {
		t.Errorf("Expected dealing price 1.1, got %f", second.DealingPriceValuationCurrency)
	}
	if !approxEqual(second.NSharesAdded, 500/1.1) {
		t.Errorf("Expected %f shares added, got %f", 500/1.1, second.NSharesAdded)
	}
	if !approxEqual(second.NavPreviousDayValuationCurrency, 1100) {
		t.Errorf("Expected previous-day NAV 1100, got %f", second.NavPreviousDayValuationCurrency)
	}
}

func TestPipelineManualSharePricing(t *testing.T) {
	env := newPipelineEnv(t)
	f := env.fixture

	testutil.NewTransaction(f).CashIn(1000).WithTradePrice(2).On(t, "2024-01-10").Build(t, env.db)
	testutil.NewTransaction(f).CashIn(300).WithClass(model.ClassInjection).WithTradePrice(2).
		On(t, "2024-01-11").Build(t, env.db)

	env.run(t, "2024-01-11")

	records, err := env.registers.GetRecords(env.register.ID)
	if err != nil {
		t.Fatalf("Failed to load records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}

	manual := records[0]
	if manual.SharePriceCalculationType != model.SharePriceManual {
		t.Errorf("Expected manual pricing for a cash inflow with a trade price, got %s", manual.SharePriceCalculationType)
	}
	if !approxEqual(manual.DealingPriceValuationCurrency, 2) || !approxEqual(manual.NSharesAdded, 500) {
		t.Errorf("Expected 500 shares at price 2, got %f at %f", manual.NSharesAdded, manual.DealingPriceValuationCurrency)
	}

	// The trade price still drives the dealing price for other classes, but
	// the record stays automatic.
	injection := records[1]
	if injection.SharePriceCalculationType != model.SharePriceAutomatic {
		t.Errorf("Expected automatic pricing for an injection, got %s", injection.SharePriceCalculationType)
	}
}

func TestPipelineEmitsPrices(t *testing.T) {
	env := newPipelineEnv(t)
	f := env.fixture

	testutil.NewTransaction(f).CashIn(1000).On(t, "2024-01-10").Build(t, env.db)

	env.run(t, "2024-01-12")

	prices, err := env.prices.GetPricesOn(f.Policy.ID, testutil.Date(t, "2024-01-12"))
	if err != nil {
		t.Fatalf("Failed to load prices: %v", err)
	}
	price, ok := prices[env.fund.ID]
	if !ok {
		t.Fatal("Expected a derived price for the linked instrument")
	}
	// NAV 1000 in cash over 1000 rolling shares.
	if !approxEqual(price.PrincipalPrice, 1) {
		t.Errorf("Expected principal price 1, got %f", price.PrincipalPrice)
	}
	if !approxEqual(price.Nav, 1000) {
		t.Errorf("Expected nav 1000 on the price row, got %f", price.Nav)
	}

	var linked bool
	if err := env.db.QueryRow(`SELECT has_linked_with_portfolio FROM instrument WHERE id = ?`, env.fund.ID).Scan(&linked); err != nil {
		t.Fatalf("Failed to read instrument: %v", err)
	}
	if !linked {
		t.Error("Expected the linked instrument to be marked")
	}
}

func TestPipelineRerunReplacesRecords(t *testing.T) {
	env := newPipelineEnv(t)
	f := env.fixture

	testutil.NewTransaction(f).CashIn(1000).On(t, "2024-01-10").Build(t, env.db)
	env.run(t, "2024-01-10")
	env.run(t, "2024-01-10")

	records, err := env.registers.GetRecords(env.register.ID)
	if err != nil {
		t.Fatalf("Failed to load records: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected the rerun to replace records, got %d", len(records))
	}
}

func TestPipelineRerunKeepsInjectionRecords(t *testing.T) {
	env := newPipelineEnv(t)
	f := env.fixture

	testutil.NewTransaction(f).CashIn(1000).On(t, "2024-01-10").Build(t, env.db)
	testutil.NewTransaction(f).CashIn(300).WithClass(model.ClassInjection).On(t, "2024-01-11").Build(t, env.db)

	env.run(t, "2024-01-11")

	records, err := env.registers.GetRecords(env.register.ID)
	if err != nil {
		t.Fatalf("Failed to load records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records after the first run, got %d", len(records))
	}
	var injectionID string
	for _, record := range records {
		if record.TransactionClass == model.ClassInjection {
			injectionID = record.ID
		}
	}
	if injectionID == "" {
		t.Fatal("Expected an injection record after the first run")
	}

	env.run(t, "2024-01-11")

	records, err = env.registers.GetRecords(env.register.ID)
	if err != nil {
		t.Fatalf("Failed to load records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records after the rerun, got %d", len(records))
	}
	injections := 0
	for _, record := range records {
		if record.TransactionClass == model.ClassInjection {
			injections++
			if record.ID != injectionID {
				t.Errorf("Expected the injection record rewritten in place, got id %s", record.ID)
			}
		}
	}
	if injections != 1 {
		t.Errorf("Expected 1 injection record after the rerun, got %d", injections)
	}
}

func TestPipelineRejectsConcurrentRun(t *testing.T) {
	env := newPipelineEnv(t)
	tenant := env.fixture.MasterUserID

	if err := env.pipeline.acquire(tenant); err != nil {
		t.Fatalf("Failed to acquire: %v", err)
	}
	defer env.pipeline.release(tenant)

	if !env.pipeline.Busy(tenant) {
		t.Error("Expected the tenant to be busy while held")
	}
	err := env.pipeline.Run(context.Background(), "", Options{MasterUserID: tenant})
	if !errors.Is(err, apperrors.ErrPipelineAlreadyRunning) {
		t.Errorf("Expected ErrPipelineAlreadyRunning, got %v", err)
	}
	if env.pipeline.Busy("other-tenant") {
		t.Error("Expected other tenants unaffected")
	}
}

func TestPipelineMisconfiguredRegister(t *testing.T) {
	env := newPipelineEnv(t)
	f := env.fixture

	broken := model.PortfolioRegister{
		ID:           testutil.MakeID(),
		MasterUserID: f.MasterUserID,
		UserCode:     "broken",
		Name:         "broken",
		PortfolioID:  f.Portfolio.ID,
	}
	if err := env.registers.CreateRegister(&broken); err != nil {
		t.Fatalf("Failed to create register: %v", err)
	}

	err := env.pipeline.Run(context.Background(), "", Options{MasterUserID: f.MasterUserID})
	if !errors.Is(err, apperrors.ErrRegisterMisconfigured) {
		t.Errorf("Expected ErrRegisterMisconfigured, got %v", err)
	}
}

func TestPipelineHonorsCancellation(t *testing.T) {
	env := newPipelineEnv(t)
	f := env.fixture

	testutil.NewTransaction(f).CashIn(1000).On(t, "2024-01-10").Build(t, env.db)

	task := &model.Task{
		ID:           testutil.MakeID(),
		MasterUserID: f.MasterUserID,
		Type:         "calculate_portfolio_register_records",
		Status:       model.TaskStatusCancelled,
	}
	if err := env.tasks.Create(task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	err := env.pipeline.Run(context.Background(), task.ID, Options{
		MasterUserID: f.MasterUserID,
		EndDate:      testutil.Date(t, "2024-01-10"),
	})
	if !errors.Is(err, apperrors.ErrTaskCancelled) {
		t.Errorf("Expected ErrTaskCancelled, got %v", err)
	}

	records, err := env.registers.GetRecords(env.register.ID)
	if err != nil {
		t.Fatalf("Failed to load records: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no records after a cancelled run, got %d", len(records))
	}
}

func TestPipelineScopedToPortfolios(t *testing.T) {
	env := newPipelineEnv(t)
	f := env.fixture

	other := testutil.InsertPortfolio(t, env.db, f.MasterUserID, "other", "Other Portfolio")
	otherFund := testutil.InsertInstrument(t, env.db, f.MasterUserID, "other_fund", f.USD.ID)
	otherRegister := testutil.InsertRegister(t, env.db, f, "other_register", other.ID, otherFund.ID, 1)

	testutil.NewTransaction(f).CashIn(1000).On(t, "2024-01-10").Build(t, env.db)
	testutil.NewTransaction(f).CashIn(700).WithPortfolio(other.ID).On(t, "2024-01-10").Build(t, env.db)

	err := env.pipeline.Run(context.Background(), "", Options{
		MasterUserID:       f.MasterUserID,
		PortfolioUserCodes: []string{"other"},
		EndDate:            testutil.Date(t, "2024-01-10"),
	})
	if err != nil {
		t.Fatalf("Pipeline run failed: %v", err)
	}

	mainRecords, _ := env.registers.GetRecords(env.register.ID)
	otherRecords, _ := env.registers.GetRecords(otherRegister.ID)
	if len(mainRecords) != 0 {
		t.Errorf("Expected the out-of-scope register untouched, got %d records", len(mainRecords))
	}
	if len(otherRecords) != 1 {
		t.Errorf("Expected one record on the scoped register, got %d", len(otherRecords))
	}
}
