package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sokolovdp/finmars-core-sub005/internal/api/middleware"
	"github.com/sokolovdp/finmars-core-sub005/internal/apperrors"
	"github.com/sokolovdp/finmars-core-sub005/internal/model"
	"github.com/sokolovdp/finmars-core-sub005/internal/register"
	"github.com/sokolovdp/finmars-core-sub005/internal/repository"
	"github.com/sokolovdp/finmars-core-sub005/internal/task"
)

// RegisterHandler handles portfolio-register HTTP requests
type RegisterHandler struct {
	registers *repository.RegisterRepository
	reference *repository.ReferenceRepository
	tasks     *task.Service
}

// NewRegisterHandler creates a new RegisterHandler
func NewRegisterHandler(registers *repository.RegisterRepository, reference *repository.ReferenceRepository, tasks *task.Service) *RegisterHandler {
	return &RegisterHandler{registers: registers, reference: reference, tasks: tasks}
}

// List returns every register of the tenant.
func (h *RegisterHandler) List(w http.ResponseWriter, r *http.Request) {
	registers, err := h.registers.GetRegisters(middleware.MasterUser(r.Context()))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to retrieve registers", err)
		return
	}
	respondJSON(w, http.StatusOK, registers)
}

// CreateRegisterRequest is the wire form of a register creation.
type CreateRegisterRequest struct {
	UserCode                 string  `json:"user_code"`
	Name                     string  `json:"name"`
	Portfolio                string  `json:"portfolio"`
	LinkedInstrument         string  `json:"linked_instrument"`
	ValuationPricingPolicy   string  `json:"valuation_pricing_policy"`
	ValuationCurrency        string  `json:"valuation_currency"`
	DefaultPrice             float64 `json:"default_price"`
}

// Create stores a register and auto-creates a single-register bundle of the
// same user code.
func (h *RegisterHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Portfolio == "" || req.LinkedInstrument == "" || req.ValuationPricingPolicy == "" || req.ValuationCurrency == "" {
		respondError(w, http.StatusBadRequest, "Register is missing required links", apperrors.ErrRegisterMisconfigured)
		return
	}

	reg := &model.PortfolioRegister{
		ID:                       uuid.New().String(),
		MasterUserID:             middleware.MasterUser(r.Context()),
		UserCode:                 req.UserCode,
		Name:                     req.Name,
		PortfolioID:              req.Portfolio,
		LinkedInstrumentID:       req.LinkedInstrument,
		ValuationPricingPolicyID: req.ValuationPricingPolicy,
		ValuationCurrencyID:      req.ValuationCurrency,
		DefaultPrice:             req.DefaultPrice,
	}
	if err := h.registers.CreateRegister(reg); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create register", err)
		return
	}
	if err := h.reference.MarkInstrumentLinked(reg.LinkedInstrumentID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to mark linked instrument", err)
		return
	}

	bundle := &model.PortfolioBundle{
		ID:           uuid.New().String(),
		MasterUserID: reg.MasterUserID,
		UserCode:     reg.UserCode,
		Name:         reg.Name,
		RegisterIDs:  []string{reg.ID},
	}
	if err := h.registers.CreateBundle(bundle); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create bundle", err)
		return
	}

	respondJSON(w, http.StatusCreated, reg)
}

// Records returns the derived records of one register.
func (h *RegisterHandler) Records(w http.ResponseWriter, r *http.Request) {
	registerID := chi.URLParam(r, "id")
	records, err := h.registers.GetRecords(registerID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to retrieve register records", err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}

// RunPipelineRequest is the wire form of a pipeline trigger.
type RunPipelineRequest struct {
	Portfolios []string `json:"portfolios"`
	EndDate    string   `json:"end_date"`
}

// RunPipeline dispatches a register pipeline run as a background task.
func (h *RegisterHandler) RunPipeline(w http.ResponseWriter, r *http.Request) {
	var req RunPipelineRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	var endDate time.Time
	if req.EndDate != "" {
		var err error
		if endDate, err = parseDate(req.EndDate); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid end_date", err)
			return
		}
	}

	t, err := h.tasks.SubmitRegisterPipeline(register.Options{
		MasterUserID:       middleware.MasterUser(r.Context()),
		PortfolioUserCodes: req.Portfolios,
		EndDate:            endDate,
	})
	if errors.Is(err, apperrors.ErrPipelineAlreadyRunning) {
		respondError(w, http.StatusConflict, "Pipeline already running", err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to start pipeline", err)
		return
	}
	respondJSON(w, http.StatusAccepted, t)
}
