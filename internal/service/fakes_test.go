package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quietbet/poolhouse/internal/domain"
)

// In-memory store fakes for service tests. They honor the same error
// contracts as the postgres implementations.

type memMarkets struct {
	mu     sync.Mutex
	m      map[string]domain.Market
	events *memEvents
}

func newMemMarkets(events *memEvents) *memMarkets {
	return &memMarkets{m: make(map[string]domain.Market), events: events}
}

func (s *memMarkets) Create(_ context.Context, market domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[market.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.m[market.ID] = market
	return nil
}

func (s *memMarkets) GetByID(_ context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	market, ok := s.m[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return market, nil
}

func (s *memMarkets) List(_ context.Context, _ domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Market, 0, len(s.m))
	for _, m := range s.m {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memMarkets) ListByStatus(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	all, _ := s.List(ctx, opts)
	var out []domain.Market
	for _, m := range all {
		if m.Status == status {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memMarkets) CreditPoolOnce(ctx context.Context, marketID string, side domain.Side, amount int64, event domain.SettlementEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	market, ok := s.m[marketID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if market.Status != domain.MarketStatusOpen || !market.BettingClosesAt.After(time.Now().UTC()) {
		return false, domain.ErrMarketClosed
	}
	inserted, err := s.events.Insert(ctx, event)
	if err != nil || !inserted {
		return false, err
	}
	if side == domain.SideA {
		market.PoolA += amount
	} else {
		market.PoolB += amount
	}
	s.m[marketID] = market
	return true, nil
}

func (s *memMarkets) MarkClosed(_ context.Context, marketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	market, ok := s.m[marketID]
	if !ok {
		return domain.ErrNotFound
	}
	if market.Status == domain.MarketStatusOpen {
		market.Status = domain.MarketStatusClosed
		s.m[marketID] = market
	}
	return nil
}

func (s *memMarkets) MarkResolved(_ context.Context, marketID string, outcome domain.Outcome, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	market, ok := s.m[marketID]
	if !ok {
		return domain.ErrNotFound
	}
	if market.Status == domain.MarketStatusResolved {
		return domain.ErrAlreadyResolved
	}
	market.Status = domain.MarketStatusResolved
	market.Outcome = outcome
	market.ResolutionRef = ref
	s.m[marketID] = market
	return nil
}

func (s *memMarkets) ListPastClose(ctx context.Context, now time.Time) ([]domain.Market, error) {
	all, _ := s.List(ctx, domain.ListOpts{})
	var out []domain.Market
	for _, m := range all {
		if m.Status == domain.MarketStatusOpen && !m.BettingClosesAt.After(now) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memMarkets) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.m)), nil
}

type memBets struct {
	mu        sync.Mutex
	m         map[string]domain.Bet
	updateErr error // returned by the next Update, then cleared
}

func newMemBets() *memBets {
	return &memBets{m: make(map[string]domain.Bet)}
}

// failNextUpdate makes the next Update fail once, simulating a transient
// store error mid-operation.
func (s *memBets) failNextUpdate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateErr = err
}

func (s *memBets) Create(_ context.Context, bet domain.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[bet.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.m[bet.ID] = bet
	return nil
}

func (s *memBets) Update(_ context.Context, bet domain.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		err := s.updateErr
		s.updateErr = nil
		return err
	}
	if _, ok := s.m[bet.ID]; !ok {
		return domain.ErrNotFound
	}
	s.m[bet.ID] = bet
	return nil
}

func (s *memBets) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.m, id)
	return nil
}

func (s *memBets) GetByID(_ context.Context, id string) (domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bet, ok := s.m[id]
	if !ok {
		return domain.Bet{}, domain.ErrNotFound
	}
	return bet, nil
}

func (s *memBets) GetByFundingRef(_ context.Context, ref string) (domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, bet := range s.m {
		if bet.FundingRef == ref && bet.FundingRef != "" {
			return bet, nil
		}
	}
	return domain.Bet{}, domain.ErrNotFound
}

func (s *memBets) all() []domain.Bet {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Bet, 0, len(s.m))
	for _, bet := range s.m {
		out = append(out, bet)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memBets) ListByMarket(_ context.Context, marketID string, status domain.BetStatus) ([]domain.Bet, error) {
	var out []domain.Bet
	for _, bet := range s.all() {
		if bet.MarketID == marketID && (status == "" || bet.Status == status) {
			out = append(out, bet)
		}
	}
	return out, nil
}

func (s *memBets) ListBySlip(_ context.Context, slipID string) ([]domain.Bet, error) {
	var out []domain.Bet
	for _, bet := range s.all() {
		if bet.SlipID == slipID {
			out = append(out, bet)
		}
	}
	return out, nil
}

func (s *memBets) ListAwaitingExpiry(_ context.Context, now time.Time) ([]domain.Bet, error) {
	var out []domain.Bet
	for _, bet := range s.all() {
		if bet.Status == domain.BetStatusAwaitingDeposit &&
			bet.FundingExpiresAt != nil && !bet.FundingExpiresAt.After(now) {
			out = append(out, bet)
		}
	}
	return out, nil
}

func (s *memBets) ListSettledBefore(_ context.Context, before time.Time, _ domain.ListOpts) ([]domain.Bet, error) {
	var out []domain.Bet
	for _, bet := range s.all() {
		if bet.SettledAt != nil && bet.SettledAt.Before(before) {
			out = append(out, bet)
		}
	}
	return out, nil
}

func (s *memBets) DeleteSettledBefore(ctx context.Context, before time.Time) (int64, error) {
	victims, _ := s.ListSettledBefore(ctx, before, domain.ListOpts{})
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, bet := range victims {
		delete(s.m, bet.ID)
	}
	return int64(len(victims)), nil
}

func (s *memBets) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.m)), nil
}

type memSlips struct {
	mu        sync.Mutex
	m         map[string]domain.Slip
	updateErr error // returned by the next Update, then cleared
}

func newMemSlips() *memSlips {
	return &memSlips{m: make(map[string]domain.Slip)}
}

func (s *memSlips) failNextUpdate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateErr = err
}

func (s *memSlips) Create(_ context.Context, slip domain.Slip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[slip.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.m[slip.ID] = cloneSlip(slip)
	return nil
}

func (s *memSlips) Update(_ context.Context, slip domain.Slip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		err := s.updateErr
		s.updateErr = nil
		return err
	}
	if _, ok := s.m[slip.ID]; !ok {
		return domain.ErrNotFound
	}
	s.m[slip.ID] = cloneSlip(slip)
	return nil
}

func (s *memSlips) GetByID(_ context.Context, id string) (domain.Slip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slip, ok := s.m[id]
	if !ok {
		return domain.Slip{}, domain.ErrNotFound
	}
	return cloneSlip(slip), nil
}

func (s *memSlips) GetByFundingRef(_ context.Context, ref string) (domain.Slip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, slip := range s.m {
		if slip.FundingRef == ref && slip.FundingRef != "" {
			return cloneSlip(slip), nil
		}
	}
	return domain.Slip{}, domain.ErrNotFound
}

func (s *memSlips) ListByStatus(_ context.Context, status domain.SlipStatus, _ domain.ListOpts) ([]domain.Slip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Slip
	for _, slip := range s.m {
		if slip.Status == status {
			out = append(out, cloneSlip(slip))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memSlips) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.m)), nil
}

func cloneSlip(slip domain.Slip) domain.Slip {
	legs := make([]domain.SlipLeg, len(slip.Legs))
	copy(legs, slip.Legs)
	slip.Legs = legs
	return slip
}

type memEvents struct {
	mu sync.Mutex
	m  map[string]domain.SettlementEvent
}

func newMemEvents() *memEvents {
	return &memEvents{m: make(map[string]domain.SettlementEvent)}
}

func (s *memEvents) Insert(_ context.Context, event domain.SettlementEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[event.Key]; ok {
		return false, nil
	}
	event.CreatedAt = time.Now()
	s.m[event.Key] = event
	return true, nil
}

func (s *memEvents) Seen(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[key]
	return ok, nil
}

func (s *memEvents) ListBefore(_ context.Context, before time.Time, _ domain.ListOpts) ([]domain.SettlementEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SettlementEvent
	for _, ev := range s.m {
		if ev.CreatedAt.Before(before) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *memEvents) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	victims, _ := s.ListBefore(ctx, before, domain.ListOpts{})
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range victims {
		delete(s.m, ev.Key)
	}
	return int64(len(victims)), nil
}

type memHistory struct {
	mu sync.Mutex
	m  map[string]domain.HistoryRecord
}

func newMemHistory() *memHistory {
	return &memHistory{m: make(map[string]domain.HistoryRecord)}
}

func (s *memHistory) Insert(_ context.Context, rec domain.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[rec.ID] = rec
	return nil
}

func (s *memHistory) GetByID(_ context.Context, id string) (domain.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.m[id]
	if !ok {
		return domain.HistoryRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (s *memHistory) List(_ context.Context, opts domain.ListOpts) ([]domain.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.HistoryRecord, 0, len(s.m))
	for _, rec := range s.m {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *memHistory) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.m)), nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func newMemAudit() *memAudit { return &memAudit{} }

func (s *memAudit) Insert(_ context.Context, entry domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = int64(len(s.entries) + 1)
	entry.CreatedAt = time.Now()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memAudit) List(_ context.Context, entityKind, entityID string, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range s.entries {
		if (entityKind == "" || e.EntityKind == entityKind) && (entityID == "" || e.EntityID == entityID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memAudit) actions(entityID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.entries {
		if e.EntityID == entityID {
			out = append(out, e.Action)
		}
	}
	return out
}

// noopLocks satisfies LockManager without contention; tests exercise the
// real lock behavior against the redis implementation.
type noopLocks struct{}

func (noopLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}

func (noopLocks) AcquireWait(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}

type memSnapshots struct {
	mu sync.Mutex
	m  map[string]domain.MarketSnapshot
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{m: make(map[string]domain.MarketSnapshot)}
}

func (s *memSnapshots) Set(_ context.Context, snap domain.MarketSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[snap.MarketID] = snap
	return nil
}

func (s *memSnapshots) Get(_ context.Context, marketID string) (domain.MarketSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.m[marketID]
	if !ok {
		return domain.MarketSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (s *memSnapshots) Invalidate(_ context.Context, marketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, marketID)
	return nil
}

type memBus struct {
	mu      sync.Mutex
	notices []domain.SettlementNotice
}

func newMemBus() *memBus { return &memBus{} }

func (b *memBus) PublishNotice(_ context.Context, notice domain.SettlementNotice) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = append(b.notices, notice)
	return nil
}

func (b *memBus) SubscribeNotices(context.Context) (<-chan domain.SettlementNotice, error) {
	ch := make(chan domain.SettlementNotice)
	close(ch)
	return ch, nil
}

func (b *memBus) PublishResolution(context.Context, domain.ResolutionEvent) error { return nil }

func (b *memBus) SubscribeResolutions(context.Context) (<-chan domain.ResolutionEvent, error) {
	ch := make(chan domain.ResolutionEvent)
	close(ch)
	return ch, nil
}

func (b *memBus) Close() error { return nil }

func (b *memBus) kinds() []domain.NoticeKind {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.NoticeKind, 0, len(b.notices))
	for _, n := range b.notices {
		out = append(out, n.Kind)
	}
	return out
}

type fakeWallet struct {
	mu     sync.Mutex
	issued int
	ttl    time.Duration
	err    error
}

func (w *fakeWallet) IssueFundingTarget(_ context.Context, amount int64, currency string) (domain.FundingTarget, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return domain.FundingTarget{}, w.err
	}
	w.issued++
	ttl := w.ttl
	if ttl == 0 {
		ttl = time.Hour
	}
	return domain.FundingTarget{
		Ref:       fmt.Sprintf("fund-%d", w.issued),
		Address:   fmt.Sprintf("addr-%d", w.issued),
		Currency:  currency,
		Amount:    amount,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}, nil
}

// fakeRates converts 1 USD cent to 2 smallest units.
type fakeRates struct{}

func (fakeRates) Convert(_ context.Context, amountUSDCents int64, _ string) (int64, error) {
	return amountUSDCents * 2, nil
}
