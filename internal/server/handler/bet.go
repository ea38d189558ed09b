package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/quietbet/poolhouse/internal/domain"
)

// BetService defines the methods that the bet handler requires from the
// service layer.
type BetService interface {
	PlaceBet(ctx context.Context, marketID string, side domain.Side, stakeUSDCents int64, payoutAddress string) (domain.Bet, error)
	GetBet(ctx context.Context, id string) (domain.Bet, error)
}

// BetHandler serves bet-related HTTP endpoints.
type BetHandler struct {
	bets   BetService
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler with the given service and logger.
func NewBetHandler(bets BetService, logger *slog.Logger) *BetHandler {
	return &BetHandler{
		bets:   bets,
		logger: logger,
	}
}

// placeBetRequest is the JSON body for placing a standalone bet. The stake
// is quoted in USD cents; conversion to the settlement currency happens
// server-side at placement.
type placeBetRequest struct {
	MarketID      string      `json:"market_id"`
	Side          domain.Side `json:"side"`
	StakeUSDCents int64       `json:"stake_usd_cents"`
	PayoutAddress string      `json:"payout_address"`
}

// PlaceBet creates a bet and returns it together with funding instructions.
// POST /api/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req placeBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.MarketID == "" {
		writeError(w, http.StatusBadRequest, "market_id is required")
		return
	}
	if req.PayoutAddress == "" {
		writeError(w, http.StatusBadRequest, "payout_address is required")
		return
	}

	bet, err := h.bets.PlaceBet(r.Context(), req.MarketID, req.Side, req.StakeUSDCents, req.PayoutAddress)
	if err != nil {
		writeServiceError(w, r, h.logger, "place bet", err)
		return
	}

	writeJSON(w, http.StatusCreated, toBetView(bet))
}

// GetBet returns a single bet by its ID.
// GET /api/bets/{id}
func (h *BetHandler) GetBet(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing bet id")
		return
	}

	bet, err := h.bets.GetBet(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get bet", err)
		return
	}

	writeJSON(w, http.StatusOK, toBetView(bet))
}
