// Package performance computes portfolio returns over register sets:
// time-weighted returns segmented by business day or month, and Modified
// Dietz returns over a single window.
package performance

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sokolovdp/finmars-core-sub005/internal/apperrors"
	"github.com/sokolovdp/finmars-core-sub005/internal/calendar"
	"github.com/sokolovdp/finmars-core-sub005/internal/model"
	"github.com/sokolovdp/finmars-core-sub005/internal/report"
	"github.com/sokolovdp/finmars-core-sub005/internal/repository"
)

// Calculation and segmentation selectors.
const (
	CalculationTimeWeighted  = "time_weighted"
	CalculationModifiedDietz = "modified_dietz"

	SegmentationDays   = "days"
	SegmentationMonths = "months"

	AdjustmentOriginal   = "original"
	AdjustmentAnnualized = "annualized"
)

// Period types resolving the begin date from the end date.
const (
	PeriodInception = "inception"
	PeriodYTD       = "ytd"
	PeriodQTD       = "qtd"
	PeriodMTD       = "mtd"
	PeriodDaily     = "daily"
)

const annualizedDigits = 6

// Request describes one performance computation.
type Request struct {
	MasterUserID      string
	RegisterUserCodes []string
	BundleUserCode    string

	BeginDate  time.Time
	EndDate    time.Time
	PeriodType string

	CalculationType  string
	SegmentationType string
	AdjustmentType   string

	ReportCurrencyID string
	PricingPolicyID  string
}

// Period is one segment of a time-weighted computation.
type Period struct {
	DateFrom         time.Time `json:"dateFrom"`
	DateTo           time.Time `json:"dateTo"`
	Return           float64   `json:"return"`
	CumulativeReturn float64   `json:"cumulativeReturn"`
	BeginNav         float64   `json:"beginNav"`
	EndNav           float64   `json:"endNav"`
	CashFlow         float64   `json:"cashFlow"`
}

// Result is the outcome of one performance computation.
type Result struct {
	BeginDate        time.Time `json:"beginDate"`
	EndDate          time.Time `json:"endDate"`
	CalculationType  string    `json:"calculationType"`
	SegmentationType string    `json:"segmentationType"`
	Periods          []Period  `json:"periods,omitempty"`
	GrandReturn      float64   `json:"grandReturn"`
	AnnualizedReturn float64   `json:"annualizedReturn,omitempty"`
	BeginNav         float64   `json:"beginNav"`
	EndNav           float64   `json:"endNav"`
	GrandCashFlow    float64   `json:"grandCashFlow"`
	ErrorMessages    []string  `json:"errorMessages,omitempty"`
}

// Service computes performance over register sets.
type Service struct {
	log          zerolog.Logger
	registers    *repository.RegisterRepository
	transactions *repository.TransactionRepository
	reference    *repository.ReferenceRepository
	rates        *repository.CurrencyHistoryRepository
	reports      *report.Service
}

// NewService creates a performance service.
func NewService(
	log zerolog.Logger,
	registers *repository.RegisterRepository,
	transactions *repository.TransactionRepository,
	reference *repository.ReferenceRepository,
	rates *repository.CurrencyHistoryRepository,
	reports *report.Service,
) *Service {
	return &Service{
		log:          log.With().Str("component", "performance").Logger(),
		registers:    registers,
		transactions: transactions,
		reference:    reference,
		rates:        rates,
		reports:      reports,
	}
}

// Compute resolves the register set and window, then runs the selected
// calculation.
func (s *Service) Compute(ctx context.Context, req Request) (*Result, error) {
	registers, err := s.resolveRegisters(req)
	if err != nil {
		return nil, err
	}
	if len(registers) == 0 {
		return nil, apperrors.ErrRegisterNotFound
	}

	portfolioIDs := make([]string, 0, len(registers))
	for _, r := range registers {
		portfolioIDs = append(portfolioIDs, r.PortfolioID)
	}

	begin, end, err := s.resolveWindow(req, portfolioIDs)
	if err != nil {
		return nil, err
	}

	var result *Result
	switch req.CalculationType {
	case CalculationModifiedDietz:
		result, err = s.modifiedDietz(ctx, req, registers, portfolioIDs, begin, end)
	case CalculationTimeWeighted, "":
		result, err = s.timeWeighted(ctx, req, registers, portfolioIDs, begin, end)
	default:
		return nil, fmt.Errorf("unknown calculation type %q", req.CalculationType)
	}
	if err != nil {
		return nil, err
	}

	if req.AdjustmentType == AdjustmentAnnualized {
		result.AnnualizedReturn = annualize(result.GrandReturn, begin, end)
	}
	return result, nil
}

func (s *Service) resolveRegisters(req Request) ([]*model.PortfolioRegister, error) {
	if req.BundleUserCode != "" {
		bundle, err := s.registers.GetBundleByUserCode(req.MasterUserID, req.BundleUserCode)
		if err != nil {
			return nil, err
		}
		all, err := s.registers.GetRegisters(req.MasterUserID)
		if err != nil {
			return nil, err
		}
		inBundle := make(map[string]struct{}, len(bundle.RegisterIDs))
		for _, id := range bundle.RegisterIDs {
			inBundle[id] = struct{}{}
		}
		var selected []*model.PortfolioRegister
		for _, r := range all {
			if _, ok := inBundle[r.ID]; ok {
				selected = append(selected, r)
			}
		}
		return selected, nil
	}
	if len(req.RegisterUserCodes) > 0 {
		return s.registers.GetRegistersByUserCodes(req.MasterUserID, req.RegisterUserCodes)
	}
	return s.registers.GetRegisters(req.MasterUserID)
}

// resolveWindow derives [begin, end] from the request. The end date is
// snapped to a business day; the begin date follows the period type unless
// given explicitly.
func (s *Service) resolveWindow(req Request, portfolioIDs []string) (time.Time, time.Time, error) {
	end := req.EndDate
	if end.IsZero() {
		end = calendar.PrevBusinessDay(calendar.Day(time.Now().UTC()))
	}
	end = calendar.SnapToBusinessDay(end)

	if !req.BeginDate.IsZero() {
		begin := calendar.Day(req.BeginDate)
		if begin.After(end) {
			return time.Time{}, time.Time{}, apperrors.ErrInvalidDateRange
		}
		return begin, end, nil
	}

	switch req.PeriodType {
	case PeriodInception, "":
		first, err := s.transactions.GetOldestCashFlowDate(req.MasterUserID, portfolioIDs)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		if first.IsZero() {
			return time.Time{}, time.Time{}, apperrors.ErrInvalidDateRange
		}
		return calendar.PrevBusinessDay(first), end, nil
	case PeriodYTD:
		return calendar.LastBusinessDayOfPreviousYear(end), end, nil
	case PeriodQTD:
		return calendar.LastBusinessDayOfPreviousQuarter(end), end, nil
	case PeriodMTD:
		return calendar.LastBusinessDayOfPreviousMonth(end), end, nil
	case PeriodDaily:
		return calendar.PrevBusinessDay(end), end, nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("unknown period type %q", req.PeriodType)
}

// segments splits [begin, end] per the segmentation type. Each segment is a
// (from, to] span whose from is the previous segment's to.
func segments(begin, end time.Time, segmentation string) [][2]time.Time {
	if segmentation == SegmentationMonths {
		var spans [][2]time.Time
		from := begin
		for from.Before(end) {
			to := calendar.MonthEnd(from.AddDate(0, 0, 1))
			if to.After(end) {
				to = end
			}
			spans = append(spans, [2]time.Time{from, to})
			from = to
		}
		return spans
	}

	days := calendar.BusinessDays(begin.AddDate(0, 0, 1), end)
	spans := make([][2]time.Time, 0, len(days))
	from := begin
	for _, d := range days {
		spans = append(spans, [2]time.Time{from, d})
		from = d
	}
	return spans
}

// navsOn values every portfolio of the set at a date, in report currency.
func (s *Service) navsOn(ctx context.Context, req Request, portfolioIDs []string, date time.Time) (map[string]float64, error) {
	return s.reports.PortfolioNAVs(ctx, req.MasterUserID, portfolioIDs, date, req.PricingPolicyID, req.ReportCurrencyID)
}

// cashFlowsByDay sums the register records' valuation-currency cash amounts
// per (portfolio, day), converted into report currency at each record's
// date.
func (s *Service) cashFlowsByDay(req Request, registers []*model.PortfolioRegister, begin, end time.Time) (map[string]map[string]float64, error) {
	defaults, err := s.reference.GetEcosystemDefault(req.MasterUserID)
	if err != nil {
		return nil, err
	}

	flows := make(map[string]map[string]float64)
	for _, r := range registers {
		records, err := s.registers.GetRecords(r.ID)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			if record.TransactionDate.Before(begin) || record.TransactionDate.After(end) {
				continue
			}
			converted := record.CashAmountValuationCurrency *
				s.conversion(defaults, record.ValuationCurrencyID, req.ReportCurrencyID, req.PricingPolicyID, record.TransactionDate)
			byDay, ok := flows[r.PortfolioID]
			if !ok {
				byDay = make(map[string]float64)
				flows[r.PortfolioID] = byDay
			}
			byDay[record.TransactionDate.Format("2006-01-02")] += converted
		}
	}
	return flows, nil
}

func (s *Service) conversion(defaults model.EcosystemDefault, fromID, toID, policyID string, date time.Time) float64 {
	leg := func(currencyID string) float64 {
		if currencyID == "" || currencyID == defaults.CurrencyID {
			return 1
		}
		rate, err := s.rates.GetRateOn(currencyID, policyID, date)
		if err != nil || rate == 0 {
			return 0
		}
		return rate
	}
	from, to := leg(fromID), leg(toID)
	if to == 0 {
		return 0
	}
	return from / to
}

// timeWeighted chains NAV-weighted daily returns into per-segment and
// cumulative returns.
func (s *Service) timeWeighted(ctx context.Context, req Request, registers []*model.PortfolioRegister, portfolioIDs []string, begin, end time.Time) (*Result, error) {
	result := &Result{
		BeginDate:        begin,
		EndDate:          end,
		CalculationType:  CalculationTimeWeighted,
		SegmentationType: req.SegmentationType,
	}

	flows, err := s.cashFlowsByDay(req, registers, begin, end)
	if err != nil {
		return nil, err
	}

	beginNavs, err := s.navsOn(ctx, req, portfolioIDs, begin)
	if err != nil {
		return nil, err
	}
	result.BeginNav = sum(beginNavs)

	prevNavs := beginNavs
	cumulative := 1.0

	for _, span := range segments(begin, end, req.SegmentationType) {
		period := Period{DateFrom: span[0], DateTo: span[1], BeginNav: sum(prevNavs)}
		growth := 1.0

		for _, day := range calendar.BusinessDays(span[0].AddDate(0, 0, 1), span[1]) {
			navs, err := s.navsOn(ctx, req, portfolioIDs, day)
			if err != nil {
				return nil, err
			}

			subtotalPrev := sum(prevNavs)
			dayStr := day.Format("2006-01-02")
			var dayReturn, dayCashFlow float64

			for _, portfolioID := range portfolioIDs {
				cf := flows[portfolioID][dayStr]
				dayCashFlow += cf
				r := instrumentReturn(navs[portfolioID], prevNavs[portfolioID], cf)
				weight := 1.0
				if subtotalPrev != 0 {
					weight = prevNavs[portfolioID] / subtotalPrev
				}
				dayReturn += r * weight
			}

			period.CashFlow += dayCashFlow
			growth *= 1 + dayReturn
			prevNavs = navs
		}

		period.EndNav = sum(prevNavs)
		period.Return = growth - 1
		cumulative *= growth
		period.CumulativeReturn = cumulative - 1
		result.Periods = append(result.Periods, period)
		result.GrandCashFlow += period.CashFlow
	}

	result.EndNav = sum(prevNavs)
	result.GrandReturn = cumulative - 1
	return result, nil
}

// instrumentReturn is the single-day return of one portfolio given its NAV,
// the previous day's NAV and the day's external cash flow.
func instrumentReturn(nav, navPrev, cashFlow float64) float64 {
	switch {
	case navPrev != 0:
		return (nav - cashFlow - navPrev) / navPrev
	case nav != 0:
		return (nav - cashFlow) / nav
	}
	return 0
}

// modifiedDietz computes the money-weighted return over the whole window,
// time-weighting each cash flow by its business-day position.
func (s *Service) modifiedDietz(ctx context.Context, req Request, registers []*model.PortfolioRegister, portfolioIDs []string, begin, end time.Time) (*Result, error) {
	result := &Result{
		BeginDate:       begin,
		EndDate:         end,
		CalculationType: CalculationModifiedDietz,
	}

	beginNavs, err := s.navsOn(ctx, req, portfolioIDs, begin)
	if err != nil {
		return nil, err
	}
	endNavs, err := s.navsOn(ctx, req, portfolioIDs, end)
	if err != nil {
		return nil, err
	}
	result.BeginNav = sum(beginNavs)
	result.EndNav = sum(endNavs)

	defaults, err := s.reference.GetEcosystemDefault(req.MasterUserID)
	if err != nil {
		return nil, err
	}

	first, err := s.transactions.GetOldestCashFlowDate(req.MasterUserID, portfolioIDs)
	if err != nil {
		return nil, err
	}
	// Flows exactly on the begin date count only when the window opens at
	// the very first transaction; otherwise they belong to the prior window.
	includeBegin := !first.IsZero() && !calendar.PrevBusinessDay(first).Before(begin)

	nEnd := float64(calendar.BusinessDayIndex(begin, end, end))
	nBegin := float64(calendar.BusinessDayIndex(begin, end, begin))
	denomSpan := nEnd - nBegin

	var totalCashFlow, weightedCashFlow float64
	for _, r := range registers {
		records, err := s.registers.GetRecords(r.ID)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			d := record.TransactionDate
			if d.After(end) || d.Before(begin) {
				continue
			}
			if d.Equal(begin) && !includeBegin {
				continue
			}
			cf := record.CashAmountValuationCurrency *
				s.conversion(defaults, record.ValuationCurrencyID, req.ReportCurrencyID, req.PricingPolicyID, d)
			timeWeight := 0.0
			if denomSpan != 0 {
				nT := float64(calendar.BusinessDayIndex(begin, end, d))
				timeWeight = (nEnd - nT) / denomSpan
			}
			totalCashFlow += cf
			weightedCashFlow += cf * timeWeight
		}
	}

	result.GrandCashFlow = totalCashFlow
	denominator := result.BeginNav + weightedCashFlow
	if denominator != 0 {
		result.GrandReturn = (result.EndNav - result.BeginNav - totalCashFlow) / denominator
	}
	return result, nil
}

// Snapshot computes performance per portfolio of the register set and
// upserts one portfolio-history row each, addressed by a generated user
// code. A failed computation still writes its row, marked with the error.
func (s *Service) Snapshot(ctx context.Context, req Request) ([]*model.PortfolioHistoryRecord, error) {
	registers, err := s.resolveRegisters(req)
	if err != nil {
		return nil, err
	}

	periodType := req.PeriodType
	if periodType == "" {
		periodType = PeriodInception
	}

	records := make([]*model.PortfolioHistoryRecord, 0, len(registers))
	for _, r := range registers {
		single := req
		single.BundleUserCode = ""
		single.RegisterUserCodes = []string{r.UserCode}

		record := &model.PortfolioHistoryRecord{
			ID:              uuid.New().String(),
			MasterUserID:    req.MasterUserID,
			PortfolioID:     r.PortfolioID,
			CurrencyID:      req.ReportCurrencyID,
			PricingPolicyID: req.PricingPolicyID,
			PeriodType:      periodType,
			Status:          model.PortfolioHistoryOK,
		}

		result, err := s.Compute(ctx, single)
		if err != nil {
			record.Status = model.PortfolioHistoryError
			record.ErrorMessage = err.Error()
			record.Date = calendar.SnapToBusinessDay(req.EndDate)
		} else {
			record.DateFrom = result.BeginDate
			record.Date = result.EndDate
			record.Nav = result.EndNav
			record.CashFlow = result.GrandCashFlow
			record.CumulativeReturn = result.GrandReturn
			record.AnnualizedReturn = result.AnnualizedReturn
		}
		record.UserCode = fmt.Sprintf("%s_%s_%s", r.UserCode, periodType, record.Date.Format("2006-01-02"))

		if err := s.registers.UpsertPortfolioHistory(record); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// annualize scales a cumulative return to a yearly rate over the window
// length, rounded to a fixed digit count.
func annualize(cumulative float64, begin, end time.Time) float64 {
	days := end.Sub(begin).Hours() / 24
	if days <= 0 || cumulative <= -1 {
		return 0
	}
	annualized := math.Pow(1+cumulative, 365/days) - 1
	return decimal.NewFromFloat(annualized).Round(annualizedDigits).InexactFloat64()
}

func sum(values map[string]float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}
