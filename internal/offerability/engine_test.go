package offerability

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"bargain/internal/policy"
	"bargain/pkg/model"
)

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

const testPolicyDoc = `
version: test-1
global:
  max_rounds: 3
  lowball_reject_ratio: 0.4
price_rules:
  hotel:
    min_margin_usd: 4
    max_discount_pct: 0.20
    opening_discount_pct: 0.08
    allow_perks: true
    allowed_perks: ["Late checkout", "Free breakfast"]
promo_rules:
  stacking:
    max_total_discount_pct: 0.25
  codes:
    SAVE20:
      discount_pct: 0.20
      max_margin_erosion_pct: 0.5
      products: [hotel]
supplier_overrides:
  strict:
    max_discount_pct: 0.05
    allow_perks: false
    extra_margin_usd: 6
`

func testPolicy(t testing.TB) *policy.Policy {
	t.Helper()
	p, err := policy.Parse([]byte(testPolicyDoc))
	if err != nil {
		t.Fatalf("policy.Parse() error = %v", err)
	}
	return p
}

func snapshot(supplier string, net float64, age time.Duration) model.SupplierSnapshot {
	return model.SupplierSnapshot{
		SupplierID:     supplier,
		InventoryUnit:  "room-1",
		Net:            net,
		Taxes:          10,
		Fees:           2,
		Currency:       "USD",
		InventoryState: model.InventoryAvailable,
		SnapshotAt:     testNow.Add(-age),
	}
}

func hotel(displayed float64) model.Product {
	return model.Product{Type: model.ProductHotel, CanonicalKey: "HTL-1", DisplayedPrice: displayed, Currency: "USD"}
}

func evaluate(t *testing.T, in Input) *Result {
	t.Helper()
	if in.Policy == nil {
		in.Policy = testPolicy(t)
	}
	if in.Now.IsZero() {
		in.Now = testNow
	}
	res, err := Evaluate(in)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	return res
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 0.001
}

func TestEvaluate_BandAndFloor(t *testing.T) {
	res := evaluate(t, Input{
		Product:   hotel(150),
		Snapshots: []model.SupplierSnapshot{snapshot("a", 100, time.Minute), snapshot("b", 105, time.Minute)},
	})

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"landed", res.Landed, 112},
		{"floor", res.CostFloor, 116},
		{"min price", res.MinPrice, 120},
		{"max price", res.MaxPrice, 150},
		{"opening", res.OpeningPrice, 138},
		{"target 1", res.Target(1, 3), 132},
		{"target 2", res.Target(2, 3), 126},
		{"target 3", res.Target(3, 3), 120},
	}
	for _, c := range checks {
		if !approx(c.got, c.want) {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if res.Best.SupplierID != "a" {
		t.Errorf("best supplier = %q, want a", res.Best.SupplierID)
	}
	if res.ActionCount() == 0 {
		t.Error("no actions generated")
	}
	for _, a := range res.Actions {
		if a.Price < res.CostFloor {
			t.Errorf("action %+v below floor %v", a, res.CostFloor)
		}
	}
}

func TestEvaluate_FloorCoversDisplayedPrice(t *testing.T) {
	res := evaluate(t, Input{
		Product:   hotel(100),
		Snapshots: []model.SupplierSnapshot{snapshot("a", 100, time.Minute)},
	})
	if res.MinPrice != res.CostFloor || res.OpeningPrice != res.CostFloor || res.MaxPrice != res.CostFloor {
		t.Errorf("band = [%v, %v, %v], want everything at floor %v", res.MinPrice, res.OpeningPrice, res.MaxPrice, res.CostFloor)
	}
}

func TestEvaluate_InventoryErrors(t *testing.T) {
	soldOut := snapshot("a", 100, time.Minute)
	soldOut.InventoryState = model.InventorySoldOut
	stale := snapshot("b", 100, time.Hour)
	markedStale := snapshot("c", 100, time.Minute)
	markedStale.InventoryState = model.InventoryStale
	euro := snapshot("d", 100, time.Minute)
	euro.Currency = "EUR"

	tests := []struct {
		name  string
		snaps []model.SupplierSnapshot
		want  error
	}{
		{"no snapshots", nil, ErrNoInventory},
		{"sold out", []model.SupplierSnapshot{soldOut}, ErrNoInventory},
		{"too old", []model.SupplierSnapshot{soldOut, stale}, ErrStaleInventory},
		{"marked stale", []model.SupplierSnapshot{markedStale}, ErrStaleInventory},
		{"other currency only", []model.SupplierSnapshot{euro}, ErrNoInventory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(Input{Policy: testPolicy(t), Product: hotel(150), Snapshots: tt.snaps, Now: testNow})
			if !errors.Is(err, tt.want) {
				t.Errorf("Evaluate() error = %v, want %v", err, tt.want)
			}
		})
	}

	_, err := Evaluate(Input{Policy: testPolicy(t), Product: model.Product{Type: "cruise"}, Now: testNow})
	if !errors.Is(err, ErrUnknownProduct) {
		t.Errorf("unknown product error = %v", err)
	}
}

func TestEvaluate_MinFloorIgnoresStaleCandidates(t *testing.T) {
	res := evaluate(t, Input{
		Product:   hotel(150),
		Snapshots: []model.SupplierSnapshot{snapshot("cheap-but-old", 80, time.Hour), snapshot("fresh", 100, time.Minute)},
	})
	if res.Best.SupplierID != "fresh" || !approx(res.CostFloor, 116) {
		t.Errorf("best = %s floor = %v, want fresh/116", res.Best.SupplierID, res.CostFloor)
	}
	if got := res.Available(); len(got) != 1 || got[0].Snapshot.SupplierID != "fresh" {
		t.Errorf("Available() = %+v", got)
	}
}

func TestEvaluate_PromoScenario(t *testing.T) {
	snaps := []model.SupplierSnapshot{snapshot("a", 100, time.Minute)}
	plain := evaluate(t, Input{Product: hotel(200), Snapshots: snaps})
	promo := evaluate(t, Input{Product: hotel(200), Snapshots: snaps, PromoCode: "save20"})

	if !approx(promo.CostFloor, 114) {
		t.Errorf("promo floor = %v, want 114 (half the margin eroded)", promo.CostFloor)
	}
	if promo.CostFloor < promo.Landed {
		t.Errorf("promo floor %v below landed %v", promo.CostFloor, promo.Landed)
	}
	if !approx(promo.MaxDiscountPct, 0.25) {
		t.Errorf("promo cap = %v, want stacking cap 0.25", promo.MaxDiscountPct)
	}
	if !approx(promo.OpeningPrice, 150) || !approx(plain.OpeningPrice, 184) {
		t.Errorf("openings plain=%v promo=%v, want 184/150", plain.OpeningPrice, promo.OpeningPrice)
	}
	if promo.PromoCode != "SAVE20" {
		t.Errorf("PromoCode = %q", promo.PromoCode)
	}

	flight := hotel(200)
	flight.Type = model.ProductFlight
	res := evaluate(t, Input{Product: flight, Snapshots: snaps, PromoCode: "SAVE20"})
	if res.PromoCode != "" {
		t.Error("SAVE20 applied to a flight")
	}
}

func TestEvaluate_TierScenario(t *testing.T) {
	snaps := []model.SupplierSnapshot{snapshot("a", 100, time.Minute)}
	tests := []struct {
		tier    model.UserTier
		opening float64
	}{
		{model.TierStandard, 184},
		{model.TierSilver, 182},
		{model.TierGold, 180},
		{model.TierPlatinum, 178},
	}
	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			res := evaluate(t, Input{Product: hotel(200), Snapshots: snaps, User: model.UserProfile{Tier: tt.tier}})
			if !approx(res.OpeningPrice, tt.opening) {
				t.Errorf("opening = %v, want %v", res.OpeningPrice, tt.opening)
			}
			if !approx(res.CostFloor, 116) {
				t.Errorf("tier changed the floor: %v", res.CostFloor)
			}
		})
	}
}

func TestEvaluate_SupplierOverride(t *testing.T) {
	res := evaluate(t, Input{
		Product:   hotel(200),
		Snapshots: []model.SupplierSnapshot{snapshot("strict", 100, time.Minute)},
	})
	if !approx(res.CostFloor, 122) {
		t.Errorf("floor = %v, want 122 with extra margin", res.CostFloor)
	}
	if !approx(res.MaxDiscountPct, 0.05) || !approx(res.MinPrice, 190) {
		t.Errorf("cap = %v min = %v, want 0.05/190", res.MaxDiscountPct, res.MinPrice)
	}
	if res.AllowPerks {
		t.Error("override disabled perks")
	}
	found := false
	for _, c := range res.Constraints {
		if c == "perks_disabled" {
			found = true
		}
	}
	if !found {
		t.Errorf("constraints %v missing perks_disabled", res.Constraints)
	}
}

func TestOrderCandidates(t *testing.T) {
	older := snapshot("older", 100, 3*time.Minute)
	newer := snapshot("newer", 100, time.Minute)
	cheap := snapshot("cheap", 90, 4*time.Minute)
	cs := []Candidate{{Snapshot: older}, {Snapshot: newer}, {Snapshot: cheap}}
	OrderCandidates(cs)

	var got []string
	for _, c := range cs {
		got = append(got, c.Snapshot.SupplierID)
	}
	if strings.Join(got, ",") != "cheap,newer,older" {
		t.Errorf("order = %v", got)
	}
}

func TestCeilCents(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{116, 116},
		{116.001, 116.01},
		{200 * 0.92, 184},
		{0.1 + 0.2, 0.3},
	}
	for _, tt := range tests {
		if got := CeilCents(tt.in); !approx(got, tt.want) {
			t.Errorf("CeilCents(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCandidateFloor_CoversLandedCost(t *testing.T) {
	tests := []struct {
		name    string
		rule    policy.PriceRule
		snap    model.SupplierSnapshot
		erosion float64
		want    float64
	}{
		{"whole cents", policy.PriceRule{MinMarginUSD: 4}, model.SupplierSnapshot{Net: 100, Taxes: 10, Fees: 2}, 0, 116},
		{"half eroded", policy.PriceRule{MinMarginUSD: 4}, model.SupplierSnapshot{Net: 100, Taxes: 10, Fees: 2}, 0.5, 114},
		{"sub-cent fee, margin eroded", policy.PriceRule{MinMarginUSD: 4}, model.SupplierSnapshot{Net: 1, Taxes: 0.5, Fees: 3.7e-9}, 1, 1.51},
		{"float noise, no margin", policy.PriceRule{}, model.SupplierSnapshot{Net: 0.1, Taxes: 0.2}, 0, 0.3},
		{"sub-cent tax, pct margin", policy.PriceRule{MinMarginPct: 0.1}, model.SupplierSnapshot{Net: 99.99, Taxes: 0.004}, 0, 110},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CandidateFloor(tt.rule, policy.SupplierOverride{}, tt.snap, tt.erosion)
			if landed := LandedCost(tt.snap); got < landed || landed < tt.snap.Net+tt.snap.Taxes-1e-9 {
				t.Fatalf("floor %v, landed %v", got, landed)
			}
			if !approx(got, tt.want) {
				t.Errorf("CandidateFloor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExplain_NeverMentionsFloor(t *testing.T) {
	p := testPolicy(t)
	res := evaluate(t, Input{Policy: p, Product: hotel(200), Snapshots: []model.SupplierSnapshot{snapshot("a", 100, time.Minute)}, PromoCode: "SAVE20"})
	o := Outcome{Decision: model.DecisionCounter, Price: res.MinPrice}
	msg := Explain(p, res, o, model.TierGold)
	if strings.Contains(msg, "114") {
		t.Errorf("explanation leaks floor: %q", msg)
	}
	if !strings.Contains(msg, "SAVE20") {
		t.Errorf("explanation %q should mention the promo", msg)
	}
	if open := Opening(p, res, model.TierStandard); !strings.Contains(open, "below the displayed price") {
		t.Errorf("Opening() = %q", open)
	}
}
