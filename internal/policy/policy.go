package policy

import (
	"strings"
	"time"

	"bargain/pkg/model"
)

const FallbackVersion = "fallback"

// Policy is the parsed, immutable form of one published policy version.
// Callers must treat every field as read-only.
type Policy struct {
	Version           string                          `yaml:"version" validate:"required,max=64"`
	Global            Global                          `yaml:"global"`
	Guardrails        Guardrails                      `yaml:"guardrails"`
	PriceRules        map[model.ProductType]PriceRule `yaml:"price_rules" validate:"required,dive"`
	PromoRules        PromoRules                      `yaml:"promo_rules"`
	SupplierOverrides map[string]SupplierOverride     `yaml:"supplier_overrides" validate:"omitempty,dive"`
	Explanations      map[string]string               `yaml:"explanations"`

	Checksum string `yaml:"-"`
}

type Global struct {
	CurrencyBase       string  `yaml:"currency_base" validate:"len=3"`
	MaxRounds          int     `yaml:"max_rounds" validate:"min=1,max=5"`
	MaxElapsedMinutes  int     `yaml:"max_elapsed_minutes" validate:"min=1,max=240"`
	ResponseBudgetMs   int     `yaml:"response_budget_ms" validate:"min=100,max=1000"`
	NeverLoss          bool    `yaml:"never_loss"`
	AcceptThreshold    float64 `yaml:"accept_threshold" validate:"gte=0.5,lte=1.5"`
	LowballRejectRatio float64 `yaml:"lowball_reject_ratio" validate:"gte=0,lt=1"`
}

type Guardrails struct {
	AbortIfInventoryStaleMinutes int `yaml:"abort_if_inventory_stale_minutes" validate:"min=1,max=120"`
	AbortIfLatencyMsOver         int `yaml:"abort_if_latency_ms_over" validate:"min=50,max=1000"`
}

type PriceRule struct {
	MinMarginUSD       float64         `yaml:"min_margin_usd" validate:"gte=0"`
	MinMarginPct       float64         `yaml:"min_margin_pct" validate:"gte=0,lte=1"`
	MaxDiscountPct     float64         `yaml:"max_discount_pct" validate:"gte=0,lte=1"`
	OpeningDiscountPct float64         `yaml:"opening_discount_pct" validate:"gte=0,lte=1,ltefield=MaxDiscountPct"`
	HoldMinutes        int             `yaml:"hold_minutes" validate:"gte=0,max=120"`
	AllowPerks         bool            `yaml:"allow_perks"`
	AllowedPerks       []string        `yaml:"allowed_perks"`
	BlackoutDates      []BlackoutRange `yaml:"blackout_dates" validate:"omitempty,dive"`
}

type BlackoutRange struct {
	From string `yaml:"from" validate:"required,datetime=2006-01-02"`
	To   string `yaml:"to" validate:"required,datetime=2006-01-02"`
}

// Contains reports whether day falls inside the range, both ends inclusive.
func (b BlackoutRange) Contains(day time.Time) bool {
	from, err := time.Parse(time.DateOnly, b.From)
	if err != nil {
		return false
	}
	to, err := time.Parse(time.DateOnly, b.To)
	if err != nil {
		return false
	}
	d := day.UTC().Truncate(24 * time.Hour)
	return !d.Before(from) && !d.After(to)
}

type PromoRules struct {
	Stacking    Stacking             `yaml:"stacking"`
	Codes       map[string]PromoCode `yaml:"codes" validate:"omitempty,dive"`
	Eligibility Eligibility          `yaml:"eligibility"`
}

type Stacking struct {
	MaxTotalDiscountPct float64 `yaml:"max_total_discount_pct" validate:"gte=0,lte=1"`
}

type PromoCode struct {
	DiscountPct         float64             `yaml:"discount_pct" validate:"gte=0,lte=1"`
	MaxMarginErosionPct float64             `yaml:"max_margin_erosion_pct" validate:"gte=0,lte=1"`
	Products            []model.ProductType `yaml:"products"`
}

// AppliesTo reports whether the code may be used on the product type. An
// empty product list means every product.
func (p PromoCode) AppliesTo(t model.ProductType) bool {
	if len(p.Products) == 0 {
		return true
	}
	for _, pt := range p.Products {
		if pt == t {
			return true
		}
	}
	return false
}

type Eligibility struct {
	LoyaltyTierBoost map[model.UserTier]float64 `yaml:"loyalty_tier_boost"`
}

type SupplierOverride struct {
	MaxDiscountPct *float64 `yaml:"max_discount_pct" validate:"omitempty,gte=0,lte=1"`
	AllowPerks     *bool    `yaml:"allow_perks"`
	ExtraMarginUSD float64  `yaml:"extra_margin_usd" validate:"gte=0"`
}

var defaultTierBoost = map[model.UserTier]float64{
	model.TierPlatinum: 0.03,
	model.TierGold:     0.02,
	model.TierSilver:   0.01,
	model.TierStandard: 0,
}

func (p *Policy) Rule(t model.ProductType) (PriceRule, bool) {
	r, ok := p.PriceRules[t]
	return r, ok
}

// Promo resolves a promo code for the product type. Codes are matched
// case-insensitively.
func (p *Policy) Promo(code string, t model.ProductType) (PromoCode, bool) {
	if code == "" {
		return PromoCode{}, false
	}
	promo, ok := p.PromoRules.Codes[strings.ToUpper(code)]
	if !ok || !promo.AppliesTo(t) {
		return PromoCode{}, false
	}
	return promo, true
}

func (p *Policy) Override(supplierID string) (SupplierOverride, bool) {
	o, ok := p.SupplierOverrides[supplierID]
	return o, ok
}

func (p *Policy) TierBoost(tier model.UserTier) float64 {
	if b, ok := p.PromoRules.Eligibility.LoyaltyTierBoost[tier]; ok {
		return b
	}
	return defaultTierBoost[tier]
}

func (p *Policy) MaxElapsed() time.Duration {
	return time.Duration(p.Global.MaxElapsedMinutes) * time.Minute
}

func (p *Policy) ResponseBudget() time.Duration {
	return time.Duration(p.Global.ResponseBudgetMs) * time.Millisecond
}

func (p *Policy) MaxInventoryAge() time.Duration {
	return time.Duration(p.Guardrails.AbortIfInventoryStaleMinutes) * time.Minute
}

// DecisionBudget is the time a round may spend before the engine answers
// with its fallback decision.
func (p *Policy) DecisionBudget() time.Duration {
	budget := p.ResponseBudget()
	if guard := time.Duration(p.Guardrails.AbortIfLatencyMsOver) * time.Millisecond; guard > 0 && guard < budget {
		budget = guard
	}
	return budget
}

// Blocked reports whether the product's service date falls in a blackout
// range for its product type.
func (p *Policy) Blocked(product model.Product) bool {
	rule, ok := p.Rule(product.Type)
	if !ok || len(rule.BlackoutDates) == 0 {
		return false
	}
	day, ok := product.ServiceDate()
	if !ok {
		return false
	}
	for _, b := range rule.BlackoutDates {
		if b.Contains(day) {
			return true
		}
	}
	return false
}

// Explain returns the configured explanation template for key, or def.
func (p *Policy) Explain(key, def string) string {
	if s, ok := p.Explanations[key]; ok && s != "" {
		return s
	}
	return def
}
