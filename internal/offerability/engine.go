// Package offerability computes what the engine may offer for a product:
// per-supplier cost floors, the price band, the counter ladder and the
// discrete action set. Everything here is a pure function of its inputs.
package offerability

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"bargain/internal/policy"
	"bargain/pkg/model"
)

var (
	ErrNoInventory    = errors.New("no available inventory")
	ErrStaleInventory = errors.New("all inventory snapshots are stale")
	ErrUnknownProduct = errors.New("no price rule for product type")
)

type Input struct {
	Policy    *policy.Policy
	Product   model.Product
	Snapshots []model.SupplierSnapshot
	User      model.UserProfile
	PromoCode string
	Now       time.Time
}

type Candidate struct {
	Snapshot model.SupplierSnapshot
	Landed   float64
	Floor    float64
	Stale    bool
}

type ActionKind string

const (
	ActionPrice ActionKind = "COUNTER_PRICE"
	ActionPerk  ActionKind = "OFFER_PERK"
	ActionHold  ActionKind = "HOLD"
)

type Action struct {
	Kind        ActionKind
	Price       float64
	Perk        string
	HoldMinutes int
}

type Result struct {
	CostFloor      float64
	Landed         float64
	DisplayedPrice float64
	MinPrice       float64
	MaxPrice       float64
	OpeningPrice   float64
	MaxDiscountPct float64
	MaxRounds      int
	AllowPerks     bool
	Perks          []string
	HoldMinutes    int
	PromoCode      string
	TierBoost      float64
	Actions        []Action
	Constraints    []string
	Candidates     []Candidate
	Best           model.SupplierSnapshot
}

func (r *Result) ActionCount() int {
	return len(r.Actions)
}

// Available returns fresh AVAILABLE candidates in arbitration order.
func (r *Result) Available() []Candidate {
	out := make([]Candidate, 0, len(r.Candidates))
	for _, c := range r.Candidates {
		if c.Snapshot.InventoryState == model.InventoryAvailable && !c.Stale {
			out = append(out, c)
		}
	}
	return out
}

// Evaluate derives the offerable band for one product under one policy.
func Evaluate(in Input) (*Result, error) {
	p := in.Policy
	rule, ok := p.Rule(in.Product.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, in.Product.Type)
	}

	promo, hasPromo := p.Promo(in.PromoCode, in.Product.Type)
	var erosion float64
	if hasPromo {
		erosion = promo.MaxMarginErosionPct
	}

	maxAge := p.MaxInventoryAge()
	var candidates []Candidate
	var sawStale bool
	for _, snap := range in.Snapshots {
		if !strings.EqualFold(snap.Currency, in.Product.Currency) {
			continue
		}
		override, _ := p.Override(snap.SupplierID)
		c := Candidate{
			Snapshot: snap,
			Landed:   LandedCost(snap),
			Floor:    CandidateFloor(rule, override, snap, erosion),
			Stale:    snap.InventoryState == model.InventoryStale || snap.Age(in.Now) > maxAge,
		}
		if c.Stale && snap.InventoryState != model.InventorySoldOut {
			sawStale = true
		}
		candidates = append(candidates, c)
	}
	OrderCandidates(candidates)

	res := &Result{
		DisplayedPrice: in.Product.DisplayedPrice,
		MaxRounds:      p.Global.MaxRounds,
		HoldMinutes:    rule.HoldMinutes,
		Candidates:     candidates,
	}

	var best *Candidate
	for i := range candidates {
		c := &candidates[i]
		if c.Stale || c.Snapshot.InventoryState != model.InventoryAvailable {
			continue
		}
		if best == nil || c.Floor < best.Floor {
			best = c
		}
	}
	if best == nil {
		if sawStale {
			return res, ErrStaleInventory
		}
		return res, ErrNoInventory
	}
	res.CostFloor = best.Floor
	res.Landed = best.Landed
	res.Best = best.Snapshot

	override, _ := p.Override(best.Snapshot.SupplierID)
	capPct := rule.MaxDiscountPct
	if hasPromo {
		capPct = math.Min(p.PromoRules.Stacking.MaxTotalDiscountPct, rule.MaxDiscountPct+promo.DiscountPct)
		res.PromoCode = strings.ToUpper(in.PromoCode)
	}
	if override.MaxDiscountPct != nil {
		capPct = math.Min(capPct, *override.MaxDiscountPct)
	}
	capPct = clamp(capPct, 0, 1)
	res.MaxDiscountPct = capPct

	displayed := in.Product.DisplayedPrice
	res.MaxPrice = math.Max(res.CostFloor, displayed)
	res.MinPrice = math.Max(res.CostFloor, math.Min(displayed, CeilCents(displayed*(1-capPct))))

	res.TierBoost = p.TierBoost(model.NormalizeTier(string(in.User.Tier)))
	openingPct := rule.OpeningDiscountPct + res.TierBoost
	if hasPromo {
		openingPct += promo.DiscountPct
	}
	openingPct = math.Min(openingPct, capPct)
	res.OpeningPrice = math.Max(res.MinPrice, math.Min(displayed, CeilCents(displayed*(1-openingPct))))

	res.AllowPerks = rule.AllowPerks && len(rule.AllowedPerks) > 0
	if override.AllowPerks != nil && !*override.AllowPerks {
		res.AllowPerks = false
	}
	if res.AllowPerks {
		res.Perks = append([]string(nil), rule.AllowedPerks...)
	}

	res.Actions, res.Constraints = buildActions(res)
	return res, nil
}

// CandidateFloor is the lowest price that keeps the required margin over
// the supplier's landed cost. A promo may erode part of the margin, never
// the landed cost itself.
func CandidateFloor(rule policy.PriceRule, override policy.SupplierOverride, snap model.SupplierSnapshot, erosionPct float64) float64 {
	landed := landedCents(snap)
	margin := math.Max(rule.MinMarginUSD+override.ExtraMarginUSD, float64(landed)/100*rule.MinMarginPct)
	margin *= 1 - clamp(erosionPct, 0, 1)
	return float64(landed+ceilCentsAtLeast(margin)) / 100
}

// LandedCost is the all-in supplier cost with every component rounded up
// to whole cents.
func LandedCost(snap model.SupplierSnapshot) float64 {
	return float64(landedCents(snap)) / 100
}

func landedCents(snap model.SupplierSnapshot) int64 {
	return ceilCentsAtLeast(snap.Net) + ceilCentsAtLeast(snap.Taxes) + ceilCentsAtLeast(snap.Fees)
}

// OrderCandidates sorts by lowest net cost, then most recent snapshot.
func OrderCandidates(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Snapshot.Net != cs[j].Snapshot.Net {
			return cs[i].Snapshot.Net < cs[j].Snapshot.Net
		}
		return cs[i].Snapshot.SnapshotAt.After(cs[j].Snapshot.SnapshotAt)
	})
}

// Target is the counter price for offer round k of maxRounds. The ladder
// walks linearly from the opening price down to MinPrice and reaches it on
// the final round.
func (r *Result) Target(k, maxRounds int) float64 {
	if maxRounds <= 0 || k >= maxRounds {
		return r.MinPrice
	}
	if k <= 0 {
		return r.OpeningPrice
	}
	step := (r.OpeningPrice - r.MinPrice) * float64(k) / float64(maxRounds)
	return math.Max(r.MinPrice, CeilCents(r.OpeningPrice-step))
}

func buildActions(r *Result) ([]Action, []string) {
	constraints := []string{
		"never_loss",
		fmt.Sprintf("max_discount_pct:%.2f", r.MaxDiscountPct),
	}

	var actions []Action
	seen := map[float64]bool{}
	for k := 0; k <= r.MaxRounds; k++ {
		price := r.Target(k, r.MaxRounds)
		if price < r.CostFloor || seen[price] {
			continue
		}
		seen[price] = true
		actions = append(actions, Action{Kind: ActionPrice, Price: price})
	}

	if r.AllowPerks {
		for _, perk := range r.Perks {
			if r.MinPrice-PerkCost(perk) < r.CostFloor {
				continue
			}
			actions = append(actions, Action{Kind: ActionPerk, Price: r.MinPrice, Perk: perk})
		}
	} else {
		constraints = append(constraints, "perks_disabled")
	}

	if r.HoldMinutes > 0 {
		actions = append(actions, Action{Kind: ActionHold, Price: r.MinPrice, HoldMinutes: r.HoldMinutes})
	}
	if r.PromoCode != "" {
		constraints = append(constraints, "promo:"+r.PromoCode)
	}
	return actions, constraints
}

var perkCosts = map[string]float64{
	"Free breakfast":    8,
	"Late checkout":     2,
	"Skip the line":     3,
	"Free guide":        8,
	"Priority boarding": 5,
}

const unknownPerkCost = 5

// PerkCost is what granting the perk costs the seller.
func PerkCost(perk string) float64 {
	if c, ok := perkCosts[perk]; ok {
		return c
	}
	return unknownPerkCost
}

// PerkFor returns the first perk that can ride on price without breaking
// the floor.
func (r *Result) PerkFor(price float64) string {
	if !r.AllowPerks {
		return ""
	}
	for _, perk := range r.Perks {
		if price-PerkCost(perk) >= r.CostFloor {
			return perk
		}
	}
	return ""
}
