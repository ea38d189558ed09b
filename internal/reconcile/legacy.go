package reconcile

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/quietbet/poolhouse/internal/domain"
)

// legSeparator splits a legacy bundle description into leg titles. The "?"
// belongs to the question title, so it is restored after splitting.
const legSeparator = "?, "

// truncationSuffix matches the "(+N more)" marker a legacy description ends
// with when it was truncated. It denotes missing legs, not a real leg.
var truncationSuffix = regexp.MustCompile(`\s*\(\+\d+\s+more\)\s*$`)

// ReconstructLegs parses a legacy free-text bundle description into
// display-only legs. The first winsCount legs in declared order are marked
// wins, the remainder losses. The legacy format does not record which legs
// actually won, so this ordering is a heuristic; every leg is tagged
// reconstructed and the result is never used to compute payouts.
func ReconstructLegs(description string, legsTotal, winsCount int) []domain.ClassifiedLeg {
	titles := splitTitles(description)

	// The declared count wins over what parsing found; pad with
	// placeholders rather than fabricating market titles.
	for len(titles) < legsTotal {
		titles = append(titles, fmt.Sprintf("Leg %d", len(titles)+1))
	}

	legs := make([]domain.ClassifiedLeg, 0, len(titles))
	for i, title := range titles {
		result := domain.ClassificationLoss
		if i < winsCount {
			result = domain.ClassificationWin
		}
		legs = append(legs, domain.ClassifiedLeg{
			Title:  title,
			Result: result,
			Source: domain.LegSourceReconstructed,
		})
	}
	return legs
}

func splitTitles(description string) []string {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil
	}

	parts := strings.Split(description, legSeparator)
	titles := make([]string, 0, len(parts))
	for i, part := range parts {
		if i < len(parts)-1 {
			// Restore the "?" consumed by the separator.
			part += "?"
		} else {
			part = truncationSuffix.ReplaceAllString(part, "")
		}
		part = strings.TrimSpace(part)
		if part != "" {
			titles = append(titles, part)
		}
	}
	return titles
}
