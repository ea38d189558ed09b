package domain

import "time"

// Classification is the canonical result assigned to a historical record.
// Unknown is surfaced as-is; it is never defaulted to a win or a loss.
type Classification string

const (
	ClassificationWin     Classification = "win"
	ClassificationLoss    Classification = "loss"
	ClassificationRefund  Classification = "refund"
	ClassificationUnknown Classification = "unknown"
)

// LegSource tags where a classified leg came from. Reconstructed legs are
// parsed out of a legacy free-text description and are display-only; payouts
// are never computed from them.
type LegSource string

const (
	LegSourceStructured    LegSource = "structured"
	LegSourceReconstructed LegSource = "reconstructed"
)

// HistoryLeg is a per-leg entry of a structured historical record.
type HistoryLeg struct {
	MarketRef string `json:"market_ref"`
	Title     string `json:"title"`
	Side      string `json:"side"`
	Outcome   string `json:"outcome"` // free text, e.g. "won", "lost"
	Stake     int64  `json:"stake"`
	Payout    int64  `json:"payout"`
}

// HistoryRecord is a raw historical payout row as imported. Older rows carry
// only a free-text description plus a wins/total count; newer rows carry a
// structured legs array. Fields may be missing or inconsistently cased.
type HistoryRecord struct {
	ID             string
	Kind           string // "bet" or "slip"
	Type           string // per-record type, e.g. "win", "refund"
	SettlementType string // market-level settlement type text
	Unopposed      bool   // legacy flag: losing pool was empty
	Side           string
	Outcome        string
	Stake          int64
	Payout         int64
	MarketRef      string
	Description    string // legacy bundle description
	LegsTotal      int    // declared leg count for legacy bundles
	WinsCount      int    // declared winning-leg count for legacy bundles
	Legs           []HistoryLeg
	RecordedAt     time.Time
}

// Bundled reports whether the record describes more than one leg.
func (r HistoryRecord) Bundled() bool {
	return len(r.Legs) > 1 || r.LegsTotal > 1
}

// ClassifiedLeg is one entry of the canonical reconciler output.
type ClassifiedLeg struct {
	MarketRef string         `json:"market_ref"`
	Title     string         `json:"title,omitempty"`
	Side      string         `json:"side,omitempty"`
	Result    Classification `json:"result"`
	Stake     int64          `json:"stake"`
	Payout    int64          `json:"payout"`
	Source    LegSource      `json:"source"`
}

// ClassifiedRecord is the canonical, audit-ready view of one historical
// record after classification.
type ClassifiedRecord struct {
	RecordID   string         `json:"record_id"`
	Kind       string         `json:"kind"`
	Result     Classification `json:"result"`
	Stake      int64          `json:"stake"`
	Payout     int64          `json:"payout"`
	Legs       []ClassifiedLeg `json:"legs,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}
