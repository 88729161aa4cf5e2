// Package ledger validates and books incoming transactions and market data.
package ledger

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sokolovdp/finmars-core-sub005/internal/apperrors"
	"github.com/sokolovdp/finmars-core-sub005/internal/model"
	"github.com/sokolovdp/finmars-core-sub005/internal/repository"
)

// Service is the write-side gate of the ledger and market-data store.
type Service struct {
	log          zerolog.Logger
	transactions *repository.TransactionRepository
	prices       *repository.PriceHistoryRepository
	rates        *repository.CurrencyHistoryRepository
}

// NewService creates a ledger service.
func NewService(
	log zerolog.Logger,
	transactions *repository.TransactionRepository,
	prices *repository.PriceHistoryRepository,
	rates *repository.CurrencyHistoryRepository,
) *Service {
	return &Service{
		log:          log.With().Str("component", "ledger").Logger(),
		transactions: transactions,
		prices:       prices,
		rates:        rates,
	}
}

// Book validates and appends one transaction. Buy and sell rows need a
// non-zero position size; the cost-method engine cannot price a costless
// position change. Missing accounting and cash dates default to the
// transaction date.
func (s *Service) Book(t *model.Transaction) error {
	if (t.TransactionClass == model.ClassBuy || t.TransactionClass == model.ClassSell) && t.PositionSizeWithSign == 0 {
		return apperrors.ErrZeroPositionSize
	}
	if t.TransactionDate.IsZero() {
		return apperrors.ErrInvalidDateRange
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.AccountingDate.IsZero() {
		t.AccountingDate = t.TransactionDate
	}
	if t.CashDate.IsZero() {
		t.CashDate = t.TransactionDate
	}
	if t.SettlementCurrencyID == "" {
		t.SettlementCurrencyID = t.TransactionCurrencyID
	}
	return s.transactions.Insert(t)
}

// StorePrice upserts one price observation.
func (s *Service) StorePrice(p *model.PriceHistory) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return s.prices.Upsert(p)
}

// StoreRate upserts one FX observation. Zero rates are refused; writes
// invalidate the affected report-cache scope.
func (s *Service) StoreRate(masterUserID string, h *model.CurrencyHistory) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	return s.rates.Insert(masterUserID, h)
}
