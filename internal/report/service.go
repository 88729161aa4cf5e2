package report

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sokolovdp/finmars-core-sub005/internal/repository"
)

// ResultCache stores and retrieves serialized report results by fingerprint.
type ResultCache interface {
	Get(fingerprint string, out any) (bool, error)
	Put(fingerprint, masterUserID string, reportDate time.Time, pricingPolicyID string, value any) error
}

// Service orchestrates report builds: it prefetches the tenant dataset,
// consults the cache, and runs the requested builder.
type Service struct {
	log          zerolog.Logger
	transactions *repository.TransactionRepository
	reference    *repository.ReferenceRepository
	prices       *repository.PriceHistoryRepository
	rates        *repository.CurrencyHistoryRepository
	cache        ResultCache
}

// NewService creates a report service. cache may be nil to disable caching.
func NewService(
	log zerolog.Logger,
	transactions *repository.TransactionRepository,
	reference *repository.ReferenceRepository,
	prices *repository.PriceHistoryRepository,
	rates *repository.CurrencyHistoryRepository,
	cache ResultCache,
) *Service {
	return &Service{
		log:          log.With().Str("component", "report").Logger(),
		transactions: transactions,
		reference:    reference,
		prices:       prices,
		rates:        rates,
		cache:        cache,
	}
}

// loadData prefetches everything a consolidation build needs: the tenant's
// reference snapshots, the ledger up to the report date, and the market
// data of the selected pricing policy.
func (s *Service) loadData(spec *Spec) (*Data, error) {
	data := &Data{}

	defaults, err := s.reference.GetEcosystemDefault(spec.MasterUserID)
	if err != nil {
		return nil, err
	}
	data.Defaults = defaults

	if data.Currencies, err = s.reference.GetCurrencies(spec.MasterUserID); err != nil {
		return nil, err
	}
	if data.Instruments, err = s.reference.GetInstruments(spec.MasterUserID); err != nil {
		return nil, err
	}
	if data.InstrumentTypes, err = s.reference.GetInstrumentTypes(spec.MasterUserID); err != nil {
		return nil, err
	}
	if data.Accounts, err = s.reference.GetAccounts(spec.MasterUserID); err != nil {
		return nil, err
	}
	if data.Portfolios, err = s.reference.GetPortfolios(spec.MasterUserID); err != nil {
		return nil, err
	}

	if data.Transactions, err = s.transactions.GetForReport(spec.MasterUserID, spec.ReportDate, spec.PortfolioIDs); err != nil {
		return nil, err
	}

	prices, err := s.prices.GetPricesOn(spec.PricingPolicyID, spec.ReportDate)
	if err != nil {
		return nil, err
	}
	rates, err := s.rates.GetRatesUpTo(spec.PricingPolicyID, spec.ReportDate)
	if err != nil {
		return nil, err
	}
	data.Valuation = NewValuation(defaults.CurrencyID, prices, rates)

	return data, nil
}

// Balance builds (or retrieves from cache) a balance report.
func (s *Service) Balance(ctx context.Context, spec *Spec) (*Result, error) {
	spec.ReportType = "balance"
	return s.cached(spec, func(data *Data) *Result {
		return BuildBalance(spec, data)
	})
}

// PL builds (or retrieves from cache) a P&L report.
func (s *Service) PL(ctx context.Context, spec *Spec) (*Result, error) {
	spec.ReportType = "pl"
	return s.cached(spec, func(data *Data) *Result {
		return BuildPL(spec, data)
	})
}

func (s *Service) cached(spec *Spec, build func(*Data) *Result) (*Result, error) {
	fingerprint := spec.Fingerprint()
	if s.cache != nil {
		var hit Result
		ok, err := s.cache.Get(fingerprint, &hit)
		if err != nil {
			s.log.Warn().Err(err).Msg("report cache read failed")
		} else if ok {
			s.log.Debug().Str("fingerprint", fingerprint).Msg("report cache hit")
			return &hit, nil
		}
	}

	started := time.Now()
	data, err := s.loadData(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to load report data: %w", err)
	}
	result := build(data)
	s.log.Info().
		Str("type", spec.ReportType).
		Str("date", spec.ReportDate.Format("2006-01-02")).
		Int("rows", len(result.Items)+len(result.PLItems)).
		Dur("elapsed", time.Since(started)).
		Msg("report built")

	if s.cache != nil {
		if err := s.cache.Put(fingerprint, spec.MasterUserID, spec.ReportDate, spec.PricingPolicyID, result); err != nil {
			s.log.Warn().Err(err).Msg("report cache write failed")
		}
	}
	return result, nil
}

// Transactions builds a transaction report. Listings are not cached; their
// window parameters make reuse unlikely.
func (s *Service) Transactions(ctx context.Context, spec *Spec) (*Result, error) {
	if spec.EndDate.IsZero() {
		return nil, fmt.Errorf("transaction report requires an end date")
	}
	if !spec.BeginDate.IsZero() && spec.BeginDate.After(spec.EndDate) {
		return nil, fmt.Errorf("begin date after end date")
	}
	if spec.DateField == "" {
		spec.DateField = DateFieldTransaction
	}
	if spec.DepthLevel == "" {
		spec.DepthLevel = DepthBase
	}

	spec.ReportDate = spec.EndDate
	data, err := s.loadData(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to load report data: %w", err)
	}
	if data.Complex, err = s.transactions.GetComplexTransactions(spec.MasterUserID); err != nil {
		return nil, err
	}
	return BuildTransactions(ctx, spec, data), nil
}

// NAV sums the non-null market values of a balance result.
func NAV(result *Result) float64 {
	var nav float64
	for _, item := range result.Items {
		if item.MarketValue != nil {
			nav += *item.MarketValue
		}
	}
	return nav
}

// PortfolioNAVs values several portfolios at one date concurrently, one
// lightweight balance build per portfolio. Used by the register pipeline
// and the performance builder, which need per-portfolio NAV rather than a
// consolidated report.
func (s *Service) PortfolioNAVs(ctx context.Context, masterUserID string, portfolioIDs []string, date time.Time, pricingPolicyID, reportCurrencyID string) (map[string]float64, error) {
	navs := make(map[string]float64, len(portfolioIDs))
	results := make([]float64, len(portfolioIDs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, portfolioID := range portfolioIDs {
		i, portfolioID := i, portfolioID
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			spec := &Spec{
				MasterUserID:     masterUserID,
				ReportDate:       date,
				ReportCurrencyID: reportCurrencyID,
				PricingPolicyID:  pricingPolicyID,
				CostMethod:       CostMethodAVCO,
				PortfolioIDs:     []string{portfolioID},
			}
			result, err := s.Balance(ctx, spec)
			if err != nil {
				return err
			}
			results[i] = NAV(result)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, portfolioID := range portfolioIDs {
		navs[portfolioID] = results[i]
	}
	return navs, nil
}
