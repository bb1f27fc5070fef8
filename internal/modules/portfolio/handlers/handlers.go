// Package handlers provides HTTP handlers for portfolio operations: CRUD,
// item selection, and the analysis, rebalance and projection endpoints.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/aristath/glidepath/internal/config"
	"github.com/aristath/glidepath/internal/modules/analysis"
	"github.com/aristath/glidepath/internal/modules/portfolio"
	"github.com/aristath/glidepath/internal/modules/projection"
	"github.com/aristath/glidepath/internal/modules/rebalancing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// defaultTolerancePct applies when a rebalance request omits the tolerance.
const defaultTolerancePct = 2.0

// Handler handles portfolio HTTP requests
type Handler struct {
	portfolioRepo  *portfolio.Repository
	analysisSvc    *analysis.Service
	rebalancingSvc *rebalancing.Service
	projectionSvc  *projection.Service
	simDefaults    config.SimulationDefaults
	log            zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(
	portfolioRepo *portfolio.Repository,
	analysisSvc *analysis.Service,
	rebalancingSvc *rebalancing.Service,
	projectionSvc *projection.Service,
	simDefaults config.SimulationDefaults,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		portfolioRepo:  portfolioRepo,
		analysisSvc:    analysisSvc,
		rebalancingSvc: rebalancingSvc,
		projectionSvc:  projectionSvc,
		simDefaults:    simDefaults,
		log:            log.With().Str("handler", "portfolio").Logger(),
	}
}

// HandleList handles GET /api/portfolios?user={user}
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		http.Error(w, "user query parameter is required", http.StatusBadRequest)
		return
	}

	portfolios, err := h.portfolioRepo.GetByUser(user)
	if err != nil {
		h.log.Error().Err(err).Str("user", user).Msg("Failed to list portfolios")
		http.Error(w, "Failed to list portfolios", http.StatusInternalServerError)
		return
	}
	if portfolios == nil {
		portfolios = []portfolio.Portfolio{}
	}

	h.writeJSON(w, http.StatusOK, portfolios)
}

// HandleCreate handles POST /api/portfolios
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req portfolio.Portfolio
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	created, err := h.portfolioRepo.Create(req)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create portfolio")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusCreated, created)
}

// HandleGet handles GET /api/portfolios/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupPortfolio(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// HandleUpdate handles PUT /api/portfolios/{id}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupPortfolio(w, r)
	if !ok {
		return
	}

	var req portfolio.Portfolio
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.ID = p.ID
	req.User = p.User // ownership never changes via update

	if err := h.portfolioRepo.Update(req); err != nil {
		h.log.Error().Err(err).Int64("id", p.ID).Msg("Failed to update portfolio")
		http.Error(w, "Failed to update portfolio", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, req)
}

// HandleDelete handles DELETE /api/portfolios/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupPortfolio(w, r)
	if !ok {
		return
	}

	if err := h.portfolioRepo.Delete(p.ID); err != nil {
		h.log.Error().Err(err).Int64("id", p.ID).Msg("Failed to delete portfolio")
		http.Error(w, "Failed to delete portfolio", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleGetItems handles GET /api/portfolios/{id}/items
func (h *Handler) HandleGetItems(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupPortfolio(w, r)
	if !ok {
		return
	}

	items, err := h.portfolioRepo.GetItems(p.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("id", p.ID).Msg("Failed to get portfolio items")
		http.Error(w, "Failed to get portfolio items", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []portfolio.Item{}
	}

	h.writeJSON(w, http.StatusOK, items)
}

// HandleReplaceItems handles PUT /api/portfolios/{id}/items
func (h *Handler) HandleReplaceItems(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupPortfolio(w, r)
	if !ok {
		return
	}

	var items []portfolio.Item
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.portfolioRepo.ReplaceItems(p.ID, items); err != nil {
		h.log.Error().Err(err).Int64("id", p.ID).Msg("Failed to replace portfolio items")
		http.Error(w, "Failed to replace portfolio items", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleAnalysis handles GET /api/portfolios/{id}/analysis
func (h *Handler) HandleAnalysis(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupPortfolio(w, r)
	if !ok {
		return
	}

	result, err := h.analysisSvc.Analyze(p)
	if err != nil {
		h.log.Error().Err(err).Int64("id", p.ID).Msg("Failed to analyze portfolio")
		http.Error(w, "Failed to analyze portfolio", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// RebalanceRequest is the body of a rebalance call. TolerancePct defaults to
// 2 percentage points.
type RebalanceRequest struct {
	TolerancePct *float64 `json:"tolerance_pct"`
}

// HandleRebalance handles POST /api/portfolios/{id}/rebalance
func (h *Handler) HandleRebalance(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupPortfolio(w, r)
	if !ok {
		return
	}

	var req RebalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tolerance := defaultTolerancePct
	if req.TolerancePct != nil {
		if *req.TolerancePct < 0 {
			http.Error(w, "tolerance_pct must be non-negative", http.StatusBadRequest)
			return
		}
		tolerance = *req.TolerancePct
	}

	plan, err := h.rebalancingSvc.Plan(p, tolerance)
	if err != nil {
		h.log.Error().Err(err).Int64("id", p.ID).Msg("Failed to plan rebalance")
		http.Error(w, "Failed to plan rebalance", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, plan)
}

// ProjectionRequest is the body of a projection call. Omitted knobs fall back
// to the configured simulation defaults.
type ProjectionRequest struct {
	AnnualContribution *float64 `json:"annual_contribution"`
	WithdrawalMode     *string  `json:"withdrawal_mode"`
	WithdrawalAmount   *float64 `json:"withdrawal_amount"`
	InflationRate      *float64 `json:"inflation_rate"`
	Trials             *int     `json:"trials"`
	EndAge             *int     `json:"end_age"`
	PessimisticPctile  *float64 `json:"pessimistic_pctile"`
	OptimisticPctile   *float64 `json:"optimistic_pctile"`
	Seed               *uint64  `json:"seed"`
}

func (req ProjectionRequest) apply(params projection.Params) projection.Params {
	if req.AnnualContribution != nil {
		params.AnnualContribution = *req.AnnualContribution
	}
	if req.WithdrawalMode != nil {
		params.WithdrawalMode = projection.WithdrawalMode(*req.WithdrawalMode)
	}
	if req.WithdrawalAmount != nil {
		params.WithdrawalAmount = *req.WithdrawalAmount
	}
	if req.InflationRate != nil {
		params.InflationRate = *req.InflationRate
	}
	if req.Trials != nil {
		params.Trials = *req.Trials
	}
	if req.EndAge != nil {
		params.EndAge = *req.EndAge
	}
	if req.PessimisticPctile != nil {
		params.PessimisticPctile = *req.PessimisticPctile
	}
	if req.OptimisticPctile != nil {
		params.OptimisticPctile = *req.OptimisticPctile
	}
	if req.Seed != nil {
		params.Seed = *req.Seed
	}
	return params
}

// HandleProjection handles POST /api/portfolios/{id}/projection
func (h *Handler) HandleProjection(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupPortfolio(w, r)
	if !ok {
		return
	}

	var req ProjectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	params := req.apply(projection.DefaultParams(h.simDefaults))

	result, err := h.projectionSvc.Run(r.Context(), p, params)
	if err != nil {
		// Projection errors are dominated by bad user knobs; surface them
		h.log.Warn().Err(err).Int64("id", p.ID).Msg("Projection failed")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// lookupPortfolio resolves {id} to a portfolio, writing the error response on
// failure.
func (h *Handler) lookupPortfolio(w http.ResponseWriter, r *http.Request) (*portfolio.Portfolio, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid portfolio id", http.StatusBadRequest)
		return nil, false
	}

	p, err := h.portfolioRepo.GetByID(id)
	if err != nil {
		h.log.Error().Err(err).Int64("id", id).Msg("Failed to get portfolio")
		http.Error(w, "Failed to get portfolio", http.StatusInternalServerError)
		return nil, false
	}
	if p == nil {
		http.Error(w, "Portfolio not found", http.StatusNotFound)
		return nil, false
	}

	return p, true
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
