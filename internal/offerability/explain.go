package offerability

import (
	"fmt"
	"math"
	"strings"

	"bargain/internal/policy"
	"bargain/pkg/model"
)

// Explanation keys a policy document may override.
const (
	ExplainOpening = "opening"
	ExplainAccept  = "accept"
	ExplainCounter = "counter"
	ExplainFinal   = "final"
	ExplainReject  = "reject"
	ExplainLowball = "lowball"
	ExplainExpired = "expired"
)

func discountPct(displayed, price float64) int {
	if displayed <= 0 || price >= displayed {
		return 0
	}
	return int(math.Round((displayed - price) / displayed * 100))
}

func qualifiers(r *Result, tier model.UserTier) string {
	var parts []string
	if r.PromoCode != "" {
		parts = append(parts, "promo "+r.PromoCode)
	}
	if r.TierBoost > 0 {
		parts = append(parts, fmt.Sprintf("your %s member bonus", strings.ToLower(string(tier))))
	}
	if len(parts) == 0 {
		return ""
	}
	return " including " + strings.Join(parts, " and ")
}

func describePrice(r *Result, price float64, tier model.UserTier) string {
	pct := discountPct(r.DisplayedPrice, price)
	if pct == 0 {
		return fmt.Sprintf("%.2f", price)
	}
	return fmt.Sprintf("%.2f (%d%% below the displayed price%s)", price, pct, qualifiers(r, tier))
}

// Opening explains the first offer of a session.
func Opening(p *policy.Policy, r *Result, tier model.UserTier) string {
	head := p.Explain(ExplainOpening, "Our opening offer")
	return fmt.Sprintf("%s: %s", head, describePrice(r, r.OpeningPrice, tier))
}

// Explain renders a user-facing sentence for a round outcome. It never
// mentions the cost floor.
func Explain(p *policy.Policy, r *Result, o Outcome, tier model.UserTier) string {
	switch o.Decision {
	case model.DecisionAccept:
		return fmt.Sprintf("%s: %.2f", p.Explain(ExplainAccept, "Deal! We accept your offer"), o.Price)
	case model.DecisionCounter:
		if o.Final {
			msg := fmt.Sprintf("%s: %s", p.Explain(ExplainFinal, "Our final offer"), describePrice(r, o.Price, tier))
			if o.Perk != "" {
				msg += " plus " + o.Perk
			}
			return msg
		}
		return fmt.Sprintf("%s: %s", p.Explain(ExplainCounter, "We can offer"), describePrice(r, o.Price, tier))
	default:
		if o.Reason == ReasonLowball {
			return p.Explain(ExplainLowball, "That offer is too far from what we can do")
		}
		return p.Explain(ExplainReject, "We cannot continue this negotiation")
	}
}
