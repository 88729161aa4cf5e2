// Package register implements the portfolio-register pipeline: it rebuilds
// share-accounting records from cash-flow transactions and emits derived
// price history for the registers' linked instruments.
package register

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sokolovdp/finmars-core-sub005/internal/apperrors"
	"github.com/sokolovdp/finmars-core-sub005/internal/model"
	"github.com/sokolovdp/finmars-core-sub005/internal/report"
	"github.com/sokolovdp/finmars-core-sub005/internal/repository"
)

// Options select which registers a pipeline run covers. Empty
// PortfolioUserCodes means every register of the tenant. A zero EndDate
// defaults to today.
type Options struct {
	MasterUserID       string    `json:"master_user_id"`
	PortfolioUserCodes []string  `json:"portfolios,omitempty"`
	EndDate            time.Time `json:"end_date,omitempty"`
}

// Pipeline derives register records and price history. Runs are serialized
// per tenant: a second concurrent run for the same tenant is rejected, not
// queued.
type Pipeline struct {
	log          zerolog.Logger
	registers    *repository.RegisterRepository
	transactions *repository.TransactionRepository
	reference    *repository.ReferenceRepository
	prices       *repository.PriceHistoryRepository
	rates        *repository.CurrencyHistoryRepository
	reports      *report.Service
	tasks        *repository.TaskRepository

	mu      sync.Mutex
	running map[string]struct{}
}

// NewPipeline creates a register pipeline.
func NewPipeline(
	log zerolog.Logger,
	registers *repository.RegisterRepository,
	transactions *repository.TransactionRepository,
	reference *repository.ReferenceRepository,
	prices *repository.PriceHistoryRepository,
	rates *repository.CurrencyHistoryRepository,
	reports *report.Service,
	tasks *repository.TaskRepository,
) *Pipeline {
	return &Pipeline{
		log:          log.With().Str("component", "register-pipeline").Logger(),
		registers:    registers,
		transactions: transactions,
		reference:    reference,
		prices:       prices,
		rates:        rates,
		reports:      reports,
		tasks:        tasks,
		running:      make(map[string]struct{}),
	}
}

func (p *Pipeline) acquire(masterUserID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, held := p.running[masterUserID]; held {
		return apperrors.ErrPipelineAlreadyRunning
	}
	p.running[masterUserID] = struct{}{}
	return nil
}

// Busy reports whether a run is in flight for the tenant.
func (p *Pipeline) Busy(masterUserID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, held := p.running[masterUserID]
	return held
}

func (p *Pipeline) release(masterUserID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.running, masterUserID)
}

// Run executes the full pipeline: record derivation followed by
// price-history emission. taskID may be empty when no progress tracking is
// wanted (e.g. the nightly scheduler).
func (p *Pipeline) Run(ctx context.Context, taskID string, opts Options) error {
	if err := p.acquire(opts.MasterUserID); err != nil {
		return err
	}
	defer p.release(opts.MasterUserID)

	endDate := opts.EndDate
	if endDate.IsZero() {
		now := time.Now().UTC()
		endDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}

	registers, err := p.resolveRegisters(opts)
	if err != nil {
		return err
	}
	if len(registers) == 0 {
		p.log.Info().Str("master_user_id", opts.MasterUserID).Msg("no registers in scope")
		return nil
	}

	registerIDs := make([]string, 0, len(registers))
	for _, r := range registers {
		if r.LinkedInstrumentID == "" || r.ValuationPricingPolicyID == "" || r.ValuationCurrencyID == "" {
			return fmt.Errorf("%w: %s", apperrors.ErrRegisterMisconfigured, r.UserCode)
		}
		registerIDs = append(registerIDs, r.ID)
	}

	if err := p.registers.DeleteCashFlowRecords(registerIDs); err != nil {
		return err
	}

	defaults, err := p.reference.GetEcosystemDefault(opts.MasterUserID)
	if err != nil {
		return err
	}

	recordsByRegister := make(map[string][]*model.PortfolioRegisterRecord, len(registers))
	for i, r := range registers {
		if err := p.progress(taskID, i, 2*len(registers), "deriving records for "+r.UserCode); err != nil {
			return err
		}
		records, err := p.deriveRecords(ctx, r, defaults)
		if err != nil {
			return err
		}
		recordsByRegister[r.ID] = records
	}

	policies, err := p.reference.GetPricingPolicies(opts.MasterUserID)
	if err != nil {
		return err
	}

	for i, r := range registers {
		if err := p.progress(taskID, len(registers)+i, 2*len(registers), "emitting prices for "+r.UserCode); err != nil {
			return err
		}
		if err := p.emitPrices(ctx, r, recordsByRegister[r.ID], policies, endDate); err != nil {
			return err
		}
	}

	return p.progress(taskID, 2*len(registers), 2*len(registers), "done")
}

func (p *Pipeline) resolveRegisters(opts Options) ([]*model.PortfolioRegister, error) {
	if len(opts.PortfolioUserCodes) == 0 {
		return p.registers.GetRegisters(opts.MasterUserID)
	}
	portfolios, err := p.reference.GetPortfoliosByUserCodes(opts.MasterUserID, opts.PortfolioUserCodes)
	if err != nil {
		return nil, err
	}
	portfolioIDs := make([]string, 0, len(portfolios))
	for _, pf := range portfolios {
		portfolioIDs = append(portfolioIDs, pf.ID)
	}
	return p.registers.GetRegistersForPortfolios(opts.MasterUserID, portfolioIDs)
}

// progress writes the task progress row and honors external cancellation:
// a task flipped to cancelled terminates the run at the next update point.
func (p *Pipeline) progress(taskID string, current, total int, description string) error {
	if taskID == "" {
		return nil
	}
	status, err := p.tasks.GetStatus(taskID)
	if err != nil {
		return err
	}
	if status == model.TaskStatusCancelled {
		return apperrors.ErrTaskCancelled
	}
	percent := 0
	if total > 0 {
		percent = current * 100 / total
	}
	return p.tasks.UpdateProgress(taskID, model.TaskProgress{
		Current:     current,
		Total:       total,
		Percent:     percent,
		Description: description,
	})
}

// registerFX resolves the cash-to-valuation conversion rate on a date under
// the register's valuation policy. Either leg being the ecosystem default
// substitutes 1; a failed lookup yields 0, which downstream treats as an
// unpriceable record rather than an aborted run.
func (p *Pipeline) registerFX(r *model.PortfolioRegister, defaults model.EcosystemDefault, cashCurrencyID string, date time.Time) float64 {
	leg := func(currencyID string) (float64, bool) {
		if currencyID == defaults.CurrencyID {
			return 1, true
		}
		rate, err := p.rates.GetRateOn(currencyID, r.ValuationPricingPolicyID, date)
		if err != nil {
			return 0, false
		}
		return rate, true
	}
	cash, okCash := leg(cashCurrencyID)
	valuation, okVal := leg(r.ValuationCurrencyID)
	if !okCash || !okVal || valuation == 0 {
		return 0
	}
	return cash / valuation
}

// navOn values the register's portfolio at a date, in the linked
// instrument's pricing currency.
func (p *Pipeline) navOn(ctx context.Context, r *model.PortfolioRegister, defaults model.EcosystemDefault, date time.Time) (float64, error) {
	reportCurrencyID := defaults.CurrencyID
	instruments, err := p.reference.GetInstruments(r.MasterUserID)
	if err != nil {
		return 0, err
	}
	if linked, ok := instruments[r.LinkedInstrumentID]; ok && linked.PricingCurrencyID != "" {
		reportCurrencyID = linked.PricingCurrencyID
	}
	navs, err := p.reports.PortfolioNAVs(ctx, r.MasterUserID, []string{r.PortfolioID}, date, r.ValuationPricingPolicyID, reportCurrencyID)
	if err != nil {
		return 0, err
	}
	return navs[r.PortfolioID], nil
}

func (p *Pipeline) deriveRecords(ctx context.Context, r *model.PortfolioRegister, defaults model.EcosystemDefault) ([]*model.PortfolioRegisterRecord, error) {
	flows, err := p.transactions.GetCashFlows(r.MasterUserID, r.PortfolioID)
	if err != nil {
		return nil, err
	}

	// Inflow/outflow records were pre-deleted; injection and distribution
	// records survive reruns, so their rows are rewritten in place instead
	// of inserted again.
	kept, err := p.registers.GetRecords(r.ID)
	if err != nil {
		return nil, err
	}
	keptIDs := make(map[string]string, len(kept))
	for _, record := range kept {
		keptIDs[record.TransactionID] = record.ID
	}

	records := make([]*model.PortfolioRegisterRecord, 0, len(flows))
	var rolling float64
	var previousID string

	for _, t := range flows {
		fxRate := p.registerFX(r, defaults, t.TransactionCurrencyID, t.AccountingDate)

		referenceFX := t.ReferenceFXRate
		if referenceFX == 0 {
			referenceFX = 1
		}
		cashAmountValuation := t.CashConsideration * fxRate * referenceFX

		navPrev, err := p.navOn(ctx, r, defaults, t.AccountingDate.AddDate(0, 0, -1))
		if err != nil {
			p.log.Warn().Err(err).Str("register", r.UserCode).Msg("previous-day NAV unavailable")
			navPrev = 0
		}

		dealingPrice := r.DefaultPrice
		switch {
		case t.TradePrice != 0:
			dealingPrice = t.TradePrice
		case rolling != 0 && navPrev != 0:
			dealingPrice = navPrev / rolling
		}

		sharesAdded := t.PositionSizeWithSign
		if sharesAdded == 0 && dealingPrice != 0 {
			sharesAdded = cashAmountValuation / dealingPrice
		}

		calcType := model.SharePriceAutomatic
		if (t.TransactionClass == model.ClassCashInflow || t.TransactionClass == model.ClassCashOutflow) && t.TradePrice > 0 {
			calcType = model.SharePriceManual
		}

		record := &model.PortfolioRegisterRecord{
			ID:                              uuid.New().String(),
			MasterUserID:                    r.MasterUserID,
			RegisterID:                      r.ID,
			TransactionID:                   t.ID,
			ComplexTransactionID:            t.ComplexTransactionID,
			TransactionClass:                t.TransactionClass,
			TransactionDate:                 t.AccountingDate,
			CashAmount:                      t.CashConsideration,
			CashCurrencyID:                  t.TransactionCurrencyID,
			ValuationCurrencyID:             r.ValuationCurrencyID,
			FXRate:                          fxRate,
			CashAmountValuationCurrency:     cashAmountValuation,
			NavPreviousDayValuationCurrency: navPrev,
			NSharesPreviousDay:              rolling,
			NSharesAdded:                    sharesAdded,
			DealingPriceValuationCurrency:   dealingPrice,
			RollingSharesOfTheDay:           rolling + sharesAdded,
			SharePriceCalculationType:       calcType,
			PreviousDateRecordID:            previousID,
		}
		if existingID, ok := keptIDs[t.ID]; ok {
			record.ID = existingID
		}
		if err := p.registers.InsertRecord(record); err != nil {
			return nil, err
		}

		rolling += sharesAdded
		previousID = record.ID
		records = append(records, record)
	}

	return records, nil
}

// emitPrices writes derived price history for the register's linked
// instrument over [first transaction date, endDate], one row per pricing
// policy and date.
func (p *Pipeline) emitPrices(ctx context.Context, r *model.PortfolioRegister, records []*model.PortfolioRegisterRecord, policies []model.PricingPolicy, endDate time.Time) error {
	if len(records) == 0 {
		return nil
	}

	defaults, err := p.reference.GetEcosystemDefault(r.MasterUserID)
	if err != nil {
		return err
	}

	if err := p.reference.MarkInstrumentLinked(r.LinkedInstrumentID); err != nil {
		return err
	}

	firstDate := records[0].TransactionDate
	for d := firstDate; !d.After(endDate); d = d.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return err
		}

		var latest *model.PortfolioRegisterRecord
		var dayCashFlow float64
		for _, record := range records {
			if record.TransactionDate.After(d) {
				break
			}
			latest = record
			if record.TransactionDate.Equal(d) {
				dayCashFlow += record.CashAmountValuationCurrency
			}
		}
		if latest == nil || latest.RollingSharesOfTheDay == 0 {
			continue
		}

		nav, err := p.navOn(ctx, r, defaults, d)
		if err != nil {
			return err
		}
		principalPrice := nav / latest.RollingSharesOfTheDay

		for _, policy := range policies {
			err := p.prices.Upsert(&model.PriceHistory{
				ID:              uuid.New().String(),
				InstrumentID:    r.LinkedInstrumentID,
				PricingPolicyID: policy.ID,
				Date:            d,
				PrincipalPrice:  principalPrice,
				Factor:          1,
				Nav:             nav,
				CashFlow:        dayCashFlow,
			})
			if err != nil {
				return err
			}
		}
	}

	return nil
}
