package lead

import "strings"

// Tier is the priority classification of a lead.
type Tier int

const (
	TierCold Tier = iota // FRIO
	TierWarm             // MORNO
	TierHot              // QUENTE
)

func (t Tier) String() string {
	switch t {
	case TierHot:
		return "QUENTE"
	case TierWarm:
		return "MORNO"
	default:
		return "FRIO"
	}
}

// Emoji returns the marker prepended to notification messages for this tier.
func (t Tier) Emoji() string {
	switch t {
	case TierHot:
		return "🔥"
	case TierWarm:
		return "🟡"
	default:
		return "❄️"
	}
}

// Keyword vocabularies scanned against the lowercased message text.
// The Portuguese lists come from the site's lead form; English equivalents
// cover inquiries from the international listing pages.
var (
	urgentKeywords = []string{
		"urgente", "hoje", "agora", "já", "preciso", "comprar",
		"urgent", "today", "now", "need", "buy",
	}
	interestKeywords = []string{
		"interessado", "quero", "gostaria", "visitar", "agendar",
		"interested", "want", "would like", "visit", "schedule",
	}
)

// Score computes the heuristic priority score for a lead.
//
// The weights are tuned against historical conversion data and must not be
// re-derived casually: downstream dashboards bucket on the same thresholds.
func Score(l Lead) int {
	score := 0

	if strings.TrimSpace(l.Phone) != "" {
		score += 3
	}
	if strings.TrimSpace(l.Email) != "" {
		score += 2
	}
	if l.HasMessage() {
		score += 2
	}

	// Property value tiers. Absent or non-numeric prices contribute nothing.
	if price, ok := l.PriceValue(); ok {
		switch {
		case price > 500000:
			score += 3
		case price > 200000:
			score += 2
		case price > 100000:
			score += 1
		}
	}

	// Urgency wins over interest when both vocabularies match.
	msg := strings.ToLower(l.Message)
	if containsAny(msg, urgentKeywords) {
		score += 4
	} else if containsAny(msg, interestKeywords) {
		score += 2
	}

	return score
}

// Classify maps a lead to its priority tier. Deterministic and total: it
// never fails, whatever the field contents.
func Classify(l Lead) Tier {
	switch score := Score(l); {
	case score >= 8:
		return TierHot
	case score >= 5:
		return TierWarm
	default:
		return TierCold
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
