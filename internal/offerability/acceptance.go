package offerability

import (
	"math"

	"bargain/pkg/model"
)

// Signals feeds the acceptance heuristic.
type Signals struct {
	Tier       model.UserTier
	Style      model.BargainStyle
	DeviceType string
	Popularity float64
	Round      int
}

var tierScores = map[model.UserTier]float64{
	model.TierPlatinum: 3,
	model.TierGold:     2,
	model.TierSilver:   1,
}

var styleScores = map[model.BargainStyle]float64{
	model.StyleGenerous:   3,
	model.StylePersistent: 2,
	model.StyleCautious:   1,
}

const (
	minAcceptProb = 0.05
	maxAcceptProb = 0.95
)

// AcceptProbability estimates how likely the user is to take price. It is a
// deterministic logistic score over discount depth within the band, tier,
// style, device, product popularity, round, and how close the user's own
// offer already is. offer <= 0 means no user offer is known yet.
func AcceptProbability(r *Result, price, offer float64, s Signals) float64 {
	band := r.MaxPrice - r.MinPrice
	var depth float64
	if band > 0 {
		depth = clamp((r.MaxPrice-price)/band, 0, 1)
	}

	style, ok := styleScores[s.Style]
	if !ok {
		style = 1
	}

	logit := -2.0 + depth*4.0
	logit += tierScores[model.NormalizeTier(string(s.Tier))] * 0.3
	logit += (style - 1) * 0.2
	logit += clamp(s.Popularity, 0, 1) * 0.3
	if s.DeviceType == "mobile" {
		logit -= 0.1
	}
	if s.Round > 1 {
		logit += 0.15 * float64(s.Round-1)
	}
	if offer > 0 && price > 0 {
		logit += 2.5 * (offer/price - 0.9)
	}

	p := 1 / (1 + math.Exp(-logit))
	return clamp(p, minAcceptProb, maxAcceptProb)
}
