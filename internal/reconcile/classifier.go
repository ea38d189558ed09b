// Package reconcile classifies historical payout records into a canonical
// win/loss/refund stream. Records arrive in two shapes: structured rows with
// an explicit legs array, and legacy rows carrying only a free-text bundle
// description plus a wins/total count. The classifier is deterministic,
// never panics on malformed input, and degrades to unknown instead of
// guessing a financial outcome.
package reconcile

import (
	"strings"

	"github.com/quietbet/poolhouse/internal/domain"
)

// Classify normalizes one historical record. Precedence, first match wins:
//
//  1. record type says refund
//  2. market settlement type contains "refund"
//  3. legacy unopposed flag
//  4. record type says win
//  5. single records: normalized side equals normalized outcome
//  6. bundled records with per-leg outcome strings: "won" means win
//  7. everything else is unknown, surfaced as such
func Classify(rec domain.HistoryRecord) domain.ClassifiedRecord {
	out := domain.ClassifiedRecord{
		RecordID:   rec.ID,
		Kind:       rec.Kind,
		Stake:      rec.Stake,
		Payout:     rec.Payout,
		RecordedAt: rec.RecordedAt,
	}

	out.Result = classifyResult(rec)
	out.Legs = classifyLegs(rec, out.Result)
	return out
}

func classifyResult(rec domain.HistoryRecord) domain.Classification {
	typ := normalizeToken(rec.Type)

	if typ == "refund" {
		return domain.ClassificationRefund
	}
	if strings.Contains(strings.ToLower(rec.SettlementType), "refund") {
		return domain.ClassificationRefund
	}
	if rec.Unopposed {
		return domain.ClassificationRefund
	}
	if typ == "win" || typ == "won" {
		return domain.ClassificationWin
	}

	if !rec.Bundled() {
		side, sideOK := normalizeSide(rec.Side)
		outcome, outcomeOK := normalizeSide(rec.Outcome)
		if sideOK && outcomeOK {
			if side == outcome {
				return domain.ClassificationWin
			}
			return domain.ClassificationLoss
		}
		return domain.ClassificationUnknown
	}

	// Bundled record: derive from per-leg outcome strings when present.
	if len(rec.Legs) > 0 {
		known := false
		anyWin := false
		for _, leg := range rec.Legs {
			if strings.TrimSpace(leg.Outcome) == "" {
				continue
			}
			known = true
			if legWon(leg.Outcome) {
				anyWin = true
			}
		}
		if known {
			if anyWin {
				return domain.ClassificationWin
			}
			return domain.ClassificationLoss
		}
	}
	// Legacy bundles without structured legs carry only the reconstructed
	// display legs; without an explicit type the record stays unknown.
	return domain.ClassificationUnknown
}

func classifyLegs(rec domain.HistoryRecord, result domain.Classification) []domain.ClassifiedLeg {
	if len(rec.Legs) > 0 {
		legs := make([]domain.ClassifiedLeg, 0, len(rec.Legs))
		for _, leg := range rec.Legs {
			legs = append(legs, classifyStructuredLeg(leg, result))
		}
		return legs
	}

	if rec.Bundled() {
		return ReconstructLegs(rec.Description, rec.LegsTotal, rec.WinsCount)
	}

	// Single record: one leg mirroring the record itself.
	return []domain.ClassifiedLeg{{
		MarketRef: rec.MarketRef,
		Side:      rec.Side,
		Result:    result,
		Stake:     rec.Stake,
		Payout:    rec.Payout,
		Source:    domain.LegSourceStructured,
	}}
}

func classifyStructuredLeg(leg domain.HistoryLeg, recordResult domain.Classification) domain.ClassifiedLeg {
	out := domain.ClassifiedLeg{
		MarketRef: leg.MarketRef,
		Title:     leg.Title,
		Side:      leg.Side,
		Stake:     leg.Stake,
		Payout:    leg.Payout,
		Source:    domain.LegSourceStructured,
	}

	// A refunded record refunds every leg.
	if recordResult == domain.ClassificationRefund {
		out.Result = domain.ClassificationRefund
		return out
	}

	if outcome := strings.TrimSpace(leg.Outcome); outcome != "" {
		if legWon(outcome) {
			out.Result = domain.ClassificationWin
		} else {
			out.Result = domain.ClassificationLoss
		}
		return out
	}

	side, sideOK := normalizeSide(leg.Side)
	outcome, outcomeOK := normalizeSide(leg.Outcome)
	if sideOK && outcomeOK {
		if side == outcome {
			out.Result = domain.ClassificationWin
		} else {
			out.Result = domain.ClassificationLoss
		}
		return out
	}

	out.Result = domain.ClassificationUnknown
	return out
}

// legWon reports whether a per-leg outcome string marks the leg a winner.
func legWon(outcome string) bool {
	switch normalizeToken(outcome) {
	case "won", "win":
		return true
	}
	return false
}

// normalizeSide maps the aliases seen in historical data onto the two
// canonical sides. Yes-like tokens are side A, no-like tokens side B.
func normalizeSide(raw string) (domain.Side, bool) {
	switch normalizeToken(raw) {
	case "a", "yes", "true", "1", "up":
		return domain.SideA, true
	case "b", "no", "false", "0", "down":
		return domain.SideB, true
	}
	return "", false
}

func normalizeToken(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
