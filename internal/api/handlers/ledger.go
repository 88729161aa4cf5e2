package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sokolovdp/finmars-core-sub005/internal/api/middleware"
	"github.com/sokolovdp/finmars-core-sub005/internal/apperrors"
	"github.com/sokolovdp/finmars-core-sub005/internal/ledger"
	"github.com/sokolovdp/finmars-core-sub005/internal/model"
)

// LedgerHandler handles transaction and market-data write requests
type LedgerHandler struct {
	ledger *ledger.Service
}

// NewLedgerHandler creates a new LedgerHandler
func NewLedgerHandler(svc *ledger.Service) *LedgerHandler {
	return &LedgerHandler{ledger: svc}
}

// BookTransaction appends one transaction to the ledger.
func (h *LedgerHandler) BookTransaction(w http.ResponseWriter, r *http.Request) {
	var t model.Transaction
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	t.MasterUserID = middleware.MasterUser(r.Context())

	if err := h.ledger.Book(&t); err != nil {
		if errors.Is(err, apperrors.ErrZeroPositionSize) || errors.Is(err, apperrors.ErrInvalidDateRange) {
			respondError(w, http.StatusBadRequest, "Invalid transaction", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to book transaction", err)
		return
	}
	respondJSON(w, http.StatusCreated, t)
}

// StorePrice upserts a price-history row.
func (h *LedgerHandler) StorePrice(w http.ResponseWriter, r *http.Request) {
	var p model.PriceHistory
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.ledger.StorePrice(&p); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to store price", err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

// StoreRate upserts a currency-history row.
func (h *LedgerHandler) StoreRate(w http.ResponseWriter, r *http.Request) {
	var c model.CurrencyHistory
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.ledger.StoreRate(middleware.MasterUser(r.Context()), &c); err != nil {
		if errors.Is(err, apperrors.ErrZeroFXRate) {
			respondError(w, http.StatusBadRequest, "Invalid FX rate", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to store FX rate", err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}
