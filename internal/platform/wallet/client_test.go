package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietbet/poolhouse/internal/domain"
)

func TestIssueFundingTarget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/targets", r.URL.Path)
		assert.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))

		var req fundingTargetRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.EqualValues(t, 5000, req.Amount)
		assert.Equal(t, "XMR", req.Currency)

		json.NewEncoder(w).Encode(fundingTargetResponse{
			Ref:       "fund-abc",
			Address:   "monero-addr",
			Currency:  req.Currency,
			Amount:    req.Amount,
			ExpiresAt: time.Now().Add(time.Hour).UTC(),
		})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "sekrit")
	target, err := c.IssueFundingTarget(context.Background(), 5000, "XMR")
	require.NoError(t, err)
	assert.Equal(t, "fund-abc", target.Ref)
	assert.Equal(t, "monero-addr", target.Address)
	assert.EqualValues(t, 5000, target.Amount)
}

func TestIssueFundingTargetUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "wrong")
	_, err := c.IssueFundingTarget(context.Background(), 5000, "XMR")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestIssueFundingTargetRejectsEmptyRef(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "")
	_, err := c.IssueFundingTarget(context.Background(), 5000, "XMR")
	require.Error(t, err)
}
