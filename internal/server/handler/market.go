package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/quietbet/poolhouse/internal/domain"
	"github.com/quietbet/poolhouse/internal/service"
)

// MarketService defines the methods that the market handler requires from
// the service layer. It is declared locally so the handler package does not
// depend on the concrete pool service.
type MarketService interface {
	CreateMarket(ctx context.Context, m domain.Market) (domain.Market, error)
	GetMarket(ctx context.Context, id string) (domain.Market, error)
	ListMarkets(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error)
	Snapshot(ctx context.Context, marketID string) (domain.MarketSnapshot, error)
	Quotes(ctx context.Context, marketID string) (service.MarketQuotes, error)
	PreviewPayout(ctx context.Context, marketID string, side domain.Side, stake int64) (int64, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// createMarketRequest is the JSON body for creating a market.
type createMarketRequest struct {
	ID              string    `json:"id"`
	Question        string    `json:"question"`
	LabelA          string    `json:"label_a"`
	LabelB          string    `json:"label_b"`
	BettingClosesAt time.Time `json:"betting_closes_at"`
	ResolutionTime  time.Time `json:"resolution_time"`
}

// CreateMarket opens a new binary market with empty pools.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if req.BettingClosesAt.IsZero() {
		writeError(w, http.StatusBadRequest, "betting_closes_at is required")
		return
	}

	market, err := h.markets.CreateMarket(r.Context(), domain.Market{
		ID:              req.ID,
		Question:        req.Question,
		Labels:          [2]string{req.LabelA, req.LabelB},
		BettingClosesAt: req.BettingClosesAt,
		ResolutionTime:  req.ResolutionTime,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "create market", err)
		return
	}

	writeJSON(w, http.StatusCreated, toMarketView(market))
}

// listMarketsResponse wraps the list endpoint output with paging metadata.
type listMarketsResponse struct {
	Markets []marketView `json:"markets"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

// ListMarkets returns markets, optionally filtered by status.
// GET /api/markets?status=open&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	status := domain.MarketStatus(r.URL.Query().Get("status"))

	markets, err := h.markets.ListMarkets(r.Context(), status, opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list markets", err)
		return
	}

	views := make([]marketView, 0, len(markets))
	for _, m := range markets {
		views = append(views, toMarketView(m))
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: views,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get market", err)
		return
	}

	writeJSON(w, http.StatusOK, toMarketView(market))
}

// GetSnapshot returns the cached pool snapshot for a market.
// GET /api/markets/{id}/snapshot
func (h *MarketHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	snap, err := h.markets.Snapshot(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get snapshot", err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// GetQuotes returns implied probabilities and multipliers for both sides.
// GET /api/markets/{id}/quotes
func (h *MarketHandler) GetQuotes(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	quotes, err := h.markets.Quotes(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get quotes", err)
		return
	}

	writeJSON(w, http.StatusOK, quotes)
}

// PreviewPayout estimates the payout a stake would earn if its side won
// against the pools as they stand now.
// GET /api/markets/{id}/preview?side=a&stake=10000
func (h *MarketHandler) PreviewPayout(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	q := r.URL.Query()
	side := domain.Side(q.Get("side"))
	if !side.Valid() {
		writeError(w, http.StatusBadRequest, "side must be a or b")
		return
	}
	stake, err := strconv.ParseInt(q.Get("stake"), 10, 64)
	if err != nil || stake <= 0 {
		writeError(w, http.StatusBadRequest, "stake must be a positive integer")
		return
	}

	payout, err := h.markets.PreviewPayout(r.Context(), id, side, stake)
	if err != nil {
		writeServiceError(w, r, h.logger, "preview payout", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"side":      side,
		"stake":     stake,
		"payout":    payout,
	})
}
