package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sokolovdp/finmars-core-sub005/internal/api/middleware"
	"github.com/sokolovdp/finmars-core-sub005/internal/model"
	"github.com/sokolovdp/finmars-core-sub005/internal/report"
)

// ReportHandler handles report-building HTTP requests
type ReportHandler struct {
	reports *report.Service
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(reports *report.Service) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// ReportRequest is the wire form of a report specification.
type ReportRequest struct {
	ReportDate  string `json:"report_date"`
	PLFirstDate string `json:"pl_first_date"`

	ReportCurrency string `json:"report_currency"`
	PricingPolicy  string `json:"pricing_policy"`
	CostMethod     string `json:"cost_method"`

	PortfolioMode  string `json:"portfolio_mode"`
	AccountMode    string `json:"account_mode"`
	Strategy1Mode  string `json:"strategy1_mode"`
	Strategy2Mode  string `json:"strategy2_mode"`
	Strategy3Mode  string `json:"strategy3_mode"`
	AllocationMode string `json:"allocation_mode"`

	Portfolios         []string `json:"portfolios"`
	Accounts           []string `json:"accounts"`
	AccountsPosition   []string `json:"accounts_position"`
	AccountsCash       []string `json:"accounts_cash"`
	Strategies1        []string `json:"strategies1"`
	Strategies2        []string `json:"strategies2"`
	Strategies3        []string `json:"strategies3"`
	TransactionClasses []string `json:"transaction_classes"`

	ShowTransactionDetails     bool    `json:"show_transaction_details"`
	ShowBalanceExposureDetails bool    `json:"show_balance_exposure_details"`
	ApproachMultiplier         float64 `json:"approach_multiplier"`
	OnlyNumbers                bool    `json:"only_numbers"`

	BeginDate                string               `json:"begin_date"`
	EndDate                  string               `json:"end_date"`
	DateField                string               `json:"date_field"`
	DepthLevel               string               `json:"depth_level"`
	ComplexTransactionStatus string               `json:"complex_transaction_status"`
	CustomFields             []report.CustomField `json:"custom_fields"`
	ExpressionIterations     int                  `json:"expression_iterations_count"`

	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// ToSpec validates the request and builds the immutable build spec.
func (req *ReportRequest) ToSpec(masterUserID string) (*report.Spec, error) {
	spec := &report.Spec{
		MasterUserID:     masterUserID,
		ReportCurrencyID: req.ReportCurrency,
		PricingPolicyID:  req.PricingPolicy,

		PortfolioIDs:       req.Portfolios,
		AccountIDs:         req.Accounts,
		AccountPositionIDs: req.AccountsPosition,
		AccountCashIDs:     req.AccountsCash,
		Strategy1IDs:       req.Strategies1,
		Strategy2IDs:       req.Strategies2,
		Strategy3IDs:       req.Strategies3,

		ShowTransactionDetails:     req.ShowTransactionDetails,
		ShowBalanceExposureDetails: req.ShowBalanceExposureDetails,
		ApproachMultiplier:         req.ApproachMultiplier,
		OnlyNumbers:                req.OnlyNumbers,

		DateField:            report.DateField(req.DateField),
		DepthLevel:           report.DepthLevel(req.DepthLevel),
		ComplexStatusFilter:  model.ComplexTransactionStatus(req.ComplexTransactionStatus),
		CustomFields:         req.CustomFields,
		ExpressionIterations: req.ExpressionIterations,

		Page:     req.Page,
		PageSize: req.PageSize,
	}

	var err error
	if spec.ReportDate, err = parseDate(req.ReportDate); err != nil {
		return nil, err
	}
	if spec.PLFirstDate, err = parseDate(req.PLFirstDate); err != nil {
		return nil, err
	}
	if spec.BeginDate, err = parseDate(req.BeginDate); err != nil {
		return nil, err
	}
	if spec.EndDate, err = parseDate(req.EndDate); err != nil {
		return nil, err
	}

	if spec.CostMethod, err = report.ParseCostMethod(req.CostMethod); err != nil {
		return nil, err
	}
	modes := []struct {
		src string
		dst *report.Mode
	}{
		{req.PortfolioMode, &spec.Dims.Portfolio},
		{req.AccountMode, &spec.Dims.Account},
		{req.Strategy1Mode, &spec.Dims.Strategy1},
		{req.Strategy2Mode, &spec.Dims.Strategy2},
		{req.Strategy3Mode, &spec.Dims.Strategy3},
		{req.AllocationMode, &spec.Dims.Allocation},
	}
	for _, m := range modes {
		if *m.dst, err = report.ParseMode(m.src); err != nil {
			return nil, err
		}
	}

	for _, class := range req.TransactionClasses {
		spec.TransactionClasses = append(spec.TransactionClasses, model.TransactionClass(class))
	}
	return spec, nil
}

func (h *ReportHandler) decodeSpec(w http.ResponseWriter, r *http.Request) *report.Spec {
	var req ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return nil
	}
	spec, err := req.ToSpec(middleware.MasterUser(r.Context()))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid report specification", err)
		return nil
	}
	return spec
}

// Balance builds a balance report.
func (h *ReportHandler) Balance(w http.ResponseWriter, r *http.Request) {
	spec := h.decodeSpec(w, r)
	if spec == nil {
		return
	}
	if spec.ReportDate.IsZero() {
		respondError(w, http.StatusBadRequest, "report_date is required", nil)
		return
	}

	result, err := h.reports.Balance(r.Context(), spec)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to build balance report", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// PL builds a profit-and-loss report.
func (h *ReportHandler) PL(w http.ResponseWriter, r *http.Request) {
	spec := h.decodeSpec(w, r)
	if spec == nil {
		return
	}
	if spec.ReportDate.IsZero() {
		respondError(w, http.StatusBadRequest, "report_date is required", nil)
		return
	}

	result, err := h.reports.PL(r.Context(), spec)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to build P&L report", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Transactions builds a windowed transaction listing.
func (h *ReportHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	spec := h.decodeSpec(w, r)
	if spec == nil {
		return
	}

	result, err := h.reports.Transactions(r.Context(), spec)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to build transaction report", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
