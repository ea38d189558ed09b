package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/quietbet/poolhouse/internal/domain"
)

// SlipService defines the methods that the slip handler requires from the
// service layer.
type SlipService interface {
	CreateSlip(ctx context.Context, payoutAddress string) (domain.Slip, error)
	GetSlip(ctx context.Context, id string) (domain.Slip, error)
	AddLeg(ctx context.Context, slipID, marketID string, side domain.Side, stakeUSDCents int64) (domain.Slip, error)
	UpdateLegAmount(ctx context.Context, slipID, marketID string, stakeUSDCents int64) (domain.Slip, error)
	RemoveLeg(ctx context.Context, slipID, marketID string) (domain.Slip, error)
	UndoRemove(ctx context.Context, slipID string) (domain.Slip, error)
	ReorderLegs(ctx context.Context, slipID string, marketIDs []string) (domain.Slip, error)
	Checkout(ctx context.Context, slipID string) (domain.Slip, error)
}

// SlipHandler serves slip-related HTTP endpoints. Draft legs are quoted in
// USD cents; checkout converts them to the settlement currency and freezes
// the slip.
type SlipHandler struct {
	slips  SlipService
	logger *slog.Logger
}

// NewSlipHandler creates a SlipHandler with the given service and logger.
func NewSlipHandler(slips SlipService, logger *slog.Logger) *SlipHandler {
	return &SlipHandler{
		slips:  slips,
		logger: logger,
	}
}

// createSlipRequest is the JSON body for opening a draft slip.
type createSlipRequest struct {
	PayoutAddress string `json:"payout_address"`
}

// CreateSlip opens an empty draft slip.
// POST /api/slips
func (h *SlipHandler) CreateSlip(w http.ResponseWriter, r *http.Request) {
	var req createSlipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.PayoutAddress == "" {
		writeError(w, http.StatusBadRequest, "payout_address is required")
		return
	}

	slip, err := h.slips.CreateSlip(r.Context(), req.PayoutAddress)
	if err != nil {
		writeServiceError(w, r, h.logger, "create slip", err)
		return
	}

	writeJSON(w, http.StatusCreated, toSlipView(slip))
}

// GetSlip returns a single slip by its ID.
// GET /api/slips/{id}
func (h *SlipHandler) GetSlip(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing slip id")
		return
	}

	slip, err := h.slips.GetSlip(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get slip", err)
		return
	}

	writeJSON(w, http.StatusOK, toSlipView(slip))
}

// addLegRequest is the JSON body for adding a leg to a draft slip.
type addLegRequest struct {
	MarketID      string      `json:"market_id"`
	Side          domain.Side `json:"side"`
	StakeUSDCents int64       `json:"stake_usd_cents"`
}

// AddLeg appends a leg to a draft slip.
// POST /api/slips/{id}/legs
func (h *SlipHandler) AddLeg(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing slip id")
		return
	}

	var req addLegRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.MarketID == "" {
		writeError(w, http.StatusBadRequest, "market_id is required")
		return
	}

	slip, err := h.slips.AddLeg(r.Context(), id, req.MarketID, req.Side, req.StakeUSDCents)
	if err != nil {
		writeServiceError(w, r, h.logger, "add leg", err)
		return
	}

	writeJSON(w, http.StatusOK, toSlipView(slip))
}

// updateLegRequest is the JSON body for changing a draft leg's stake.
type updateLegRequest struct {
	StakeUSDCents int64 `json:"stake_usd_cents"`
}

// UpdateLeg changes the stake of an existing draft leg.
// PATCH /api/slips/{id}/legs/{marketId}
func (h *SlipHandler) UpdateLeg(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	marketID := pathParam(r, "marketId")
	if id == "" || marketID == "" {
		writeError(w, http.StatusBadRequest, "missing slip or market id")
		return
	}

	var req updateLegRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	slip, err := h.slips.UpdateLegAmount(r.Context(), id, marketID, req.StakeUSDCents)
	if err != nil {
		writeServiceError(w, r, h.logger, "update leg", err)
		return
	}

	writeJSON(w, http.StatusOK, toSlipView(slip))
}

// RemoveLeg deletes a draft leg. The removal can be undone for a short
// window via UndoRemove.
// DELETE /api/slips/{id}/legs/{marketId}
func (h *SlipHandler) RemoveLeg(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	marketID := pathParam(r, "marketId")
	if id == "" || marketID == "" {
		writeError(w, http.StatusBadRequest, "missing slip or market id")
		return
	}

	slip, err := h.slips.RemoveLeg(r.Context(), id, marketID)
	if err != nil {
		writeServiceError(w, r, h.logger, "remove leg", err)
		return
	}

	writeJSON(w, http.StatusOK, toSlipView(slip))
}

// UndoRemove restores the most recently removed leg.
// POST /api/slips/{id}/legs/undo
func (h *SlipHandler) UndoRemove(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing slip id")
		return
	}

	slip, err := h.slips.UndoRemove(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "undo leg removal", err)
		return
	}

	writeJSON(w, http.StatusOK, toSlipView(slip))
}

// reorderRequest is the JSON body for reordering draft legs. The order list
// must be an exact permutation of the slip's current market IDs.
type reorderRequest struct {
	Order []string `json:"order"`
}

// ReorderLegs rearranges draft legs for display.
// PUT /api/slips/{id}/legs/order
func (h *SlipHandler) ReorderLegs(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing slip id")
		return
	}

	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	slip, err := h.slips.ReorderLegs(r.Context(), id, req.Order)
	if err != nil {
		writeServiceError(w, r, h.logger, "reorder legs", err)
		return
	}

	writeJSON(w, http.StatusOK, toSlipView(slip))
}

// Checkout freezes the slip, converts leg stakes to the settlement currency,
// and returns funding instructions for the combined deposit.
// POST /api/slips/{id}/checkout
func (h *SlipHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing slip id")
		return
	}

	slip, err := h.slips.Checkout(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "checkout slip", err)
		return
	}

	writeJSON(w, http.StatusOK, toSlipView(slip))
}
