package policy

import (
	"fmt"

	"bargain/pkg/model"
)

const (
	DefaultCurrency           = "USD"
	DefaultMaxRounds          = 3
	DefaultMaxElapsedMinutes  = 15
	DefaultResponseBudgetMs   = 300
	DefaultAcceptThreshold    = 1.0
	DefaultLowballRejectRatio = 0.4
	DefaultStaleMinutes       = 5
	DefaultLatencyGuardMs     = 280
	DefaultMaxTotalDiscount   = 0.25
)

func defaultPolicy() *Policy {
	return &Policy{
		Global: Global{
			CurrencyBase:       DefaultCurrency,
			MaxRounds:          DefaultMaxRounds,
			MaxElapsedMinutes:  DefaultMaxElapsedMinutes,
			ResponseBudgetMs:   DefaultResponseBudgetMs,
			NeverLoss:          true,
			AcceptThreshold:    DefaultAcceptThreshold,
			LowballRejectRatio: DefaultLowballRejectRatio,
		},
		Guardrails: Guardrails{
			AbortIfInventoryStaleMinutes: DefaultStaleMinutes,
			AbortIfLatencyMsOver:         DefaultLatencyGuardMs,
		},
		PriceRules: map[model.ProductType]PriceRule{},
		PromoRules: PromoRules{
			Stacking: Stacking{MaxTotalDiscountPct: DefaultMaxTotalDiscount},
		},
	}
}

func defaultRule(t model.ProductType) PriceRule {
	switch t {
	case model.ProductFlight:
		return PriceRule{MinMarginUSD: 6, MaxDiscountPct: 0.15, OpeningDiscountPct: 0.05, HoldMinutes: 10}
	case model.ProductHotel:
		return PriceRule{MinMarginUSD: 4, MaxDiscountPct: 0.20, OpeningDiscountPct: 0.08, HoldMinutes: 15,
			AllowPerks: true, AllowedPerks: []string{"Late checkout", "Free breakfast"}}
	case model.ProductSightseeing:
		return PriceRule{MinMarginUSD: 3, MaxDiscountPct: 0.25, OpeningDiscountPct: 0.10, HoldMinutes: 5}
	default:
		return PriceRule{}
	}
}

// fallbackDocument is served whenever no published policy can be loaded.
// It negotiates less: two rounds, wider margins, no perks.
const fallbackDocument = `
version: fallback
global:
  currency_base: USD
  max_rounds: 2
  max_elapsed_minutes: 10
  response_budget_ms: 250
  never_loss: true
  accept_threshold: 1.0
  lowball_reject_ratio: 0.5
guardrails:
  abort_if_inventory_stale_minutes: 3
  abort_if_latency_ms_over: 250
price_rules:
  flight:
    min_margin_usd: 10
    max_discount_pct: 0.10
    opening_discount_pct: 0.03
    hold_minutes: 10
    allow_perks: false
  hotel:
    min_margin_usd: 8
    max_discount_pct: 0.15
    opening_discount_pct: 0.05
    hold_minutes: 10
    allow_perks: false
  sightseeing:
    min_margin_usd: 6
    max_discount_pct: 0.15
    opening_discount_pct: 0.05
    hold_minutes: 5
    allow_perks: false
promo_rules:
  stacking:
    max_total_discount_pct: 0.15
explanations:
  counter: "Best price we can offer right now"
`

var fallback = mustParse(fallbackDocument)

// Fallback returns the conservative built-in policy.
func Fallback() *Policy {
	return fallback
}

func mustParse(doc string) *Policy {
	p, err := Parse([]byte(doc))
	if err != nil {
		panic(fmt.Sprintf("built-in policy does not parse: %v", err))
	}
	return p
}
