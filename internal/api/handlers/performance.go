package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sokolovdp/finmars-core-sub005/internal/api/middleware"
	"github.com/sokolovdp/finmars-core-sub005/internal/performance"
)

// PerformanceHandler handles performance-report HTTP requests
type PerformanceHandler struct {
	performance *performance.Service
}

// NewPerformanceHandler creates a new PerformanceHandler
func NewPerformanceHandler(svc *performance.Service) *PerformanceHandler {
	return &PerformanceHandler{performance: svc}
}

// PerformanceRequest is the wire form of a performance computation.
type PerformanceRequest struct {
	Registers []string `json:"registers"`
	Bundle    string   `json:"bundle"`

	BeginDate  string `json:"begin_date"`
	EndDate    string `json:"end_date"`
	PeriodType string `json:"period_type"`

	CalculationType  string `json:"calculation_type"`
	SegmentationType string `json:"segmentation_type"`
	AdjustmentType   string `json:"adjustment_type"`

	ReportCurrency string `json:"report_currency"`
	PricingPolicy  string `json:"pricing_policy"`
}

func (req *PerformanceRequest) toRequest(masterUserID string) (performance.Request, error) {
	pr := performance.Request{
		MasterUserID:      masterUserID,
		RegisterUserCodes: req.Registers,
		BundleUserCode:    req.Bundle,
		PeriodType:        req.PeriodType,
		CalculationType:   req.CalculationType,
		SegmentationType:  req.SegmentationType,
		AdjustmentType:    req.AdjustmentType,
		ReportCurrencyID:  req.ReportCurrency,
		PricingPolicyID:   req.PricingPolicy,
	}
	var err error
	if pr.BeginDate, err = parseDate(req.BeginDate); err != nil {
		return pr, err
	}
	if pr.EndDate, err = parseDate(req.EndDate); err != nil {
		return pr, err
	}
	return pr, nil
}

// Compute runs a performance calculation over a register set or bundle.
func (h *PerformanceHandler) Compute(w http.ResponseWriter, r *http.Request) {
	var req PerformanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	pr, err := req.toRequest(middleware.MasterUser(r.Context()))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid performance request", err)
		return
	}

	result, err := h.performance.Compute(r.Context(), pr)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to compute performance", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Snapshot computes and persists per-portfolio performance history rows.
func (h *PerformanceHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	var req PerformanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	pr, err := req.toRequest(middleware.MasterUser(r.Context()))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid performance request", err)
		return
	}

	records, err := h.performance.Snapshot(r.Context(), pr)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to snapshot performance", err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}
