package offerability

import (
	"math"

	"bargain/pkg/model"
)

type Reason string

const (
	ReasonAccepted  Reason = "accepted"
	ReasonCounter   Reason = "counter"
	ReasonFinal     Reason = "final_counter"
	ReasonLowball   Reason = "lowball"
	ReasonMaxRounds Reason = "max_rounds"
)

type Outcome struct {
	Decision   model.Decision
	Price      float64
	AcceptProb float64
	Reason     Reason
	Final      bool
	Perk       string
}

// Decide answers offer round k (1-based) given the user's offer and the
// engine's previous counter. An offer below MinPrice is never accepted,
// and no counter is ever below CostFloor.
func Decide(r *Result, offer float64, k int, lastCounter float64, threshold, lowballRatio float64, s Signals) Outcome {
	maxRounds := r.MaxRounds
	if k > maxRounds {
		return Outcome{Decision: model.DecisionReject, Reason: ReasonMaxRounds}
	}

	target := r.Target(k, maxRounds)
	if lastCounter > 0 && lastCounter < target {
		target = math.Max(r.MinPrice, lastCounter)
	}
	s.Round = k

	if offer >= r.MinPrice && offer >= r.CostFloor {
		p := AcceptProbability(r, target, offer, s)
		expected := threshold * p * (target - r.Landed)
		if offer >= target || offer-r.Landed >= expected {
			return Outcome{
				Decision:   model.DecisionAccept,
				Price:      math.Min(offer, r.MaxPrice),
				AcceptProb: 1,
				Reason:     ReasonAccepted,
			}
		}
	}

	if lowballRatio > 0 && offer < r.CostFloor*lowballRatio {
		return Outcome{Decision: model.DecisionReject, Reason: ReasonLowball}
	}

	final := k >= maxRounds
	counter := math.Max(target, r.CostFloor)
	out := Outcome{
		Decision:   model.DecisionCounter,
		Price:      counter,
		AcceptProb: AcceptProbability(r, counter, offer, s),
		Reason:     ReasonCounter,
		Final:      final,
	}
	if final {
		out.Reason = ReasonFinal
		out.Perk = r.PerkFor(counter)
	}
	return out
}
