// Package notify fans settlement notices out to operator channels. Senders
// are pluggable (Telegram, Discord) and notices can be filtered by kind so
// an operator only hears about the events they asked for.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/quietbet/poolhouse/internal/domain"
)

// clampText truncates s to max runes-safe bytes with a trailing ellipsis so
// oversized notices (slips with many legs) never bounce at the channel API.
func clampText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// Sender is one delivery channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a short identifier for the sender, e.g. "telegram".
	Name() string
}

// Notifier dispatches to all registered senders. A sender failure never
// blocks the others; failures are collected into one combined error.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed notice kinds; empty allows all
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Only
// notices whose kind appears in events pass the filter; an empty events list
// allows everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers to all senders if the kind passes the configured filter.
func (n *Notifier) Notify(ctx context.Context, kind, title, message string) error {
	if len(n.events) > 0 && !n.events[kind] {
		n.logger.DebugContext(ctx, "notice filtered out", slog.String("kind", kind))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// Listener subscribes to the signal bus and forwards settlement notices to
// the notifier until its context ends.
type Listener struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewListener creates a Listener.
func NewListener(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Listener {
	return &Listener{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_listener")),
	}
}

// Run blocks until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	ch, err := l.bus.SubscribeNotices(ctx)
	if err != nil {
		return err
	}
	l.logger.Info("notify listener started")
	defer l.logger.Info("notify listener stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case notice, ok := <-ch:
			if !ok {
				return nil
			}
			title, message := formatNotice(notice)
			if err := l.notifier.Notify(ctx, string(notice.Kind), title, message); err != nil {
				l.logger.WarnContext(ctx, "notify failed",
					slog.String("kind", string(notice.Kind)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func formatNotice(n domain.SettlementNotice) (title, message string) {
	switch n.Kind {
	case domain.NoticeMarketResolved:
		return "Market resolved",
			fmt.Sprintf("market %s resolved %s, total pool %d", n.MarketID, n.Outcome, n.Amount)
	case domain.NoticeBetSettled:
		return "Bet settled",
			fmt.Sprintf("bet %s on %s: %s, payout %d", n.BetID, n.MarketID, n.Result, n.Amount)
	case domain.NoticeSlipSettled:
		return "Slip settled",
			fmt.Sprintf("slip %s settled, total payout %d", n.SlipID, n.Amount)
	default:
		return string(n.Kind), n.Message
	}
}
