package policy

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "policy.schema.json"

// documentSchema checks the shape of a policy document. Numeric ranges
// that depend on other fields are enforced after decoding.
const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "price_rules"],
  "additionalProperties": false,
  "properties": {
    "version": {"type": "string", "minLength": 1},
    "global": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "currency_base": {"type": "string", "pattern": "^[A-Z]{3}$"},
        "max_rounds": {"type": "integer"},
        "max_elapsed_minutes": {"type": "integer"},
        "response_budget_ms": {"type": "integer"},
        "never_loss": {"type": "boolean"},
        "accept_threshold": {"type": "number"},
        "lowball_reject_ratio": {"type": "number"}
      }
    },
    "guardrails": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "abort_if_inventory_stale_minutes": {"type": "integer"},
        "abort_if_latency_ms_over": {"type": "integer"}
      }
    },
    "price_rules": {
      "type": "object",
      "minProperties": 1,
      "propertyNames": {"enum": ["flight", "hotel", "sightseeing"]},
      "additionalProperties": {"$ref": "#/$defs/priceRule"}
    },
    "promo_rules": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "stacking": {
          "type": "object",
          "properties": {"max_total_discount_pct": {"type": "number"}}
        },
        "codes": {
          "type": "object",
          "propertyNames": {"pattern": "^[A-Za-z0-9]{1,32}$"},
          "additionalProperties": {
            "type": "object",
            "additionalProperties": false,
            "required": ["discount_pct"],
            "properties": {
              "discount_pct": {"type": "number"},
              "max_margin_erosion_pct": {"type": "number"},
              "products": {
                "type": "array",
                "items": {"enum": ["flight", "hotel", "sightseeing"]}
              }
            }
          }
        },
        "eligibility": {
          "type": "object",
          "properties": {
            "loyalty_tier_boost": {
              "type": "object",
              "additionalProperties": {"type": "number"}
            }
          }
        }
      }
    },
    "supplier_overrides": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "additionalProperties": false,
        "properties": {
          "max_discount_pct": {"type": "number"},
          "allow_perks": {"type": "boolean"},
          "extra_margin_usd": {"type": "number"}
        }
      }
    },
    "explanations": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    }
  },
  "$defs": {
    "priceRule": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "min_margin_usd": {"type": "number"},
        "min_margin_pct": {"type": "number"},
        "max_discount_pct": {"type": "number"},
        "opening_discount_pct": {"type": "number"},
        "hold_minutes": {"type": "integer"},
        "allow_perks": {"type": "boolean"},
        "allowed_perks": {"type": "array", "items": {"type": "string"}},
        "blackout_dates": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["from", "to"],
            "properties": {
              "from": {"type": "string"},
              "to": {"type": "string"}
            }
          }
        }
      }
    }
  }
}`

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, strings.NewReader(documentSchema)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
