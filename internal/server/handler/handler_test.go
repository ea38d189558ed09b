package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietbet/poolhouse/internal/domain"
	"github.com/quietbet/poolhouse/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeMarkets implements MarketService for handler tests.
type fakeMarkets struct {
	market domain.Market
	err    error
}

func (f *fakeMarkets) CreateMarket(ctx context.Context, m domain.Market) (domain.Market, error) {
	if f.err != nil {
		return domain.Market{}, f.err
	}
	m.ID = "mkt-1"
	m.Status = domain.MarketStatusOpen
	return m, nil
}

func (f *fakeMarkets) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	if f.err != nil {
		return domain.Market{}, f.err
	}
	return f.market, nil
}

func (f *fakeMarkets) ListMarkets(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.Market{f.market}, nil
}

func (f *fakeMarkets) Snapshot(ctx context.Context, marketID string) (domain.MarketSnapshot, error) {
	if f.err != nil {
		return domain.MarketSnapshot{}, f.err
	}
	return domain.MarketSnapshot{MarketID: marketID, PoolA: f.market.PoolA, PoolB: f.market.PoolB}, nil
}

func (f *fakeMarkets) Quotes(ctx context.Context, marketID string) (service.MarketQuotes, error) {
	if f.err != nil {
		return service.MarketQuotes{}, f.err
	}
	return service.MarketQuotes{MarketID: marketID}, nil
}

func (f *fakeMarkets) PreviewPayout(ctx context.Context, marketID string, side domain.Side, stake int64) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return stake * 2, nil
}

func marketMux(f *fakeMarkets) *http.ServeMux {
	h := NewMarketHandler(f, discardLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/markets/{id}", h.GetMarket)
	mux.HandleFunc("POST /api/markets", h.CreateMarket)
	mux.HandleFunc("GET /api/markets/{id}/preview", h.PreviewPayout)
	return mux
}

func TestGetMarketNotFound(t *testing.T) {
	mux := marketMux(&fakeMarkets{err: domain.ErrNotFound})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/mkt-x", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetMarketOK(t *testing.T) {
	mux := marketMux(&fakeMarkets{market: domain.Market{
		ID:     "mkt-1",
		PoolA:  100,
		PoolB:  200,
		Status: domain.MarketStatusOpen,
	}})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/mkt-1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got marketView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "mkt-1", got.ID)
	assert.Equal(t, int64(300), got.Total)
}

func TestCreateMarketValidation(t *testing.T) {
	mux := marketMux(&fakeMarkets{})

	body := bytes.NewBufferString(`{"label_a":"YES"}`)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/markets", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreviewPayoutRejectsBadSide(t *testing.T) {
	mux := marketMux(&fakeMarkets{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/mkt-1/preview?side=c&stake=100", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// fakeBets implements BetService for handler tests.
type fakeBets struct {
	bet domain.Bet
	err error
}

func (f *fakeBets) PlaceBet(ctx context.Context, marketID string, side domain.Side, stakeUSDCents int64, payoutAddress string) (domain.Bet, error) {
	if f.err != nil {
		return domain.Bet{}, f.err
	}
	return f.bet, nil
}

func (f *fakeBets) GetBet(ctx context.Context, id string) (domain.Bet, error) {
	if f.err != nil {
		return domain.Bet{}, f.err
	}
	return f.bet, nil
}

func betMux(f *fakeBets) *http.ServeMux {
	h := NewBetHandler(f, discardLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/bets", h.PlaceBet)
	mux.HandleFunc("GET /api/bets/{id}", h.GetBet)
	return mux
}

func TestPlaceBetReturnsFundingInstructions(t *testing.T) {
	expires := time.Now().Add(time.Hour)
	mux := betMux(&fakeBets{bet: domain.Bet{
		ID:               "bet-1",
		MarketID:         "mkt-1",
		Side:             domain.SideA,
		Stake:            10000,
		Status:           domain.BetStatusAwaitingDeposit,
		FundingRef:       "fund-1",
		FundingAddress:   "addr-1",
		FundingExpiresAt: &expires,
	}})

	body := bytes.NewBufferString(`{"market_id":"mkt-1","side":"a","stake_usd_cents":5000,"payout_address":"payme"}`)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/bets", body))

	require.Equal(t, http.StatusCreated, rec.Code)
	var got betView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(10000), got.Stake)
	require.NotNil(t, got.Funding)
	assert.Equal(t, "fund-1", got.Funding.Ref)
	assert.Equal(t, "addr-1", got.Funding.Address)
}

func TestPlaceBetRequiresPayoutAddress(t *testing.T) {
	mux := betMux(&fakeBets{})

	body := bytes.NewBufferString(`{"market_id":"mkt-1","side":"a","stake_usd_cents":5000}`)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/bets", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceBetMapsClosedMarket(t *testing.T) {
	mux := betMux(&fakeBets{err: domain.ErrMarketClosed})

	body := bytes.NewBufferString(`{"market_id":"mkt-1","side":"a","stake_usd_cents":5000,"payout_address":"payme"}`)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/bets", body))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

// fakeSlips implements SlipService and records the last call for assertions.
type fakeSlips struct {
	slip domain.Slip
	err  error
}

func (f *fakeSlips) result() (domain.Slip, error) {
	if f.err != nil {
		return domain.Slip{}, f.err
	}
	return f.slip, nil
}

func (f *fakeSlips) CreateSlip(ctx context.Context, payoutAddress string) (domain.Slip, error) {
	return f.result()
}
func (f *fakeSlips) GetSlip(ctx context.Context, id string) (domain.Slip, error) {
	return f.result()
}
func (f *fakeSlips) AddLeg(ctx context.Context, slipID, marketID string, side domain.Side, stakeUSDCents int64) (domain.Slip, error) {
	return f.result()
}
func (f *fakeSlips) UpdateLegAmount(ctx context.Context, slipID, marketID string, stakeUSDCents int64) (domain.Slip, error) {
	return f.result()
}
func (f *fakeSlips) RemoveLeg(ctx context.Context, slipID, marketID string) (domain.Slip, error) {
	return f.result()
}
func (f *fakeSlips) UndoRemove(ctx context.Context, slipID string) (domain.Slip, error) {
	return f.result()
}
func (f *fakeSlips) ReorderLegs(ctx context.Context, slipID string, marketIDs []string) (domain.Slip, error) {
	return f.result()
}
func (f *fakeSlips) Checkout(ctx context.Context, slipID string) (domain.Slip, error) {
	return f.result()
}

func slipMux(f *fakeSlips) *http.ServeMux {
	h := NewSlipHandler(f, discardLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/slips", h.CreateSlip)
	mux.HandleFunc("POST /api/slips/{id}/legs", h.AddLeg)
	mux.HandleFunc("POST /api/slips/{id}/checkout", h.Checkout)
	return mux
}

func TestCheckoutMapsEmptySlip(t *testing.T) {
	mux := slipMux(&fakeSlips{err: domain.ErrEmptySlip})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/slips/slip-1/checkout", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddLegMapsDuplicateMarket(t *testing.T) {
	mux := slipMux(&fakeSlips{err: domain.ErrDuplicateMarket})

	body := bytes.NewBufferString(`{"market_id":"mkt-1","side":"a","stake_usd_cents":1000}`)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/slips/slip-1/legs", body))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCheckoutReturnsFunding(t *testing.T) {
	expires := time.Now().Add(30 * time.Minute)
	mux := slipMux(&fakeSlips{slip: domain.Slip{
		ID:              "slip-1",
		Status:          domain.SlipStatusAwaitingDeposit,
		Legs:            []domain.SlipLeg{{MarketID: "mkt-1", Side: domain.SideA, Stake: 2000}},
		FundingRef:      "fund-9",
		FundingAddress:  "addr-9",
		FundingCurrency: "XMR",
		FundingAmount:   2000,
		FundingExpiresAt: &expires,
	}})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/slips/slip-1/checkout", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got slipView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(2000), got.TotalStake)
	require.NotNil(t, got.Funding)
	assert.Equal(t, "XMR", got.Funding.Currency)
	assert.Equal(t, int64(2000), got.Funding.Amount)
}

func TestParseListOptsClampsLimit(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/markets?limit=9999&offset=20", nil)
	opts := parseListOpts(r)

	assert.Equal(t, 500, opts.Limit)
	assert.Equal(t, 20, opts.Offset)
}

func TestParseListOptsDefaults(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	opts := parseListOpts(r)

	assert.Equal(t, 50, opts.Limit)
	assert.Equal(t, 0, opts.Offset)
}
