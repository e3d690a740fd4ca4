package policy

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"bargain/pkg/model"
	"bargain/pkg/sanitizer"

	"github.com/go-playground/validator/v10"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidPolicy = errors.New("invalid policy document")
	ErrNotFound      = errors.New("policy not found")
	ErrVersionExists = errors.New("policy version already published with different content")
)

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error

	validate = validator.New()
)

// Parse decodes, schema-checks and range-checks a YAML policy document.
// Fields the document leaves out take their default values.
func Parse(raw []byte) (*Policy, error) {
	schemaOnce.Do(func() { schema, schemaErr = compileSchema() })
	if schemaErr != nil {
		return nil, schemaErr
	}

	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	doc, err := toJSONValue(generic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}

	p := defaultPolicy()
	if err := yaml.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if err := decodePriceRules(raw, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	normalize(p)

	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPolicy, describe(err))
	}
	if !p.Global.NeverLoss {
		return nil, fmt.Errorf("%w: global.never_loss cannot be disabled", ErrInvalidPolicy)
	}
	for _, rule := range p.PriceRules {
		for _, b := range rule.BlackoutDates {
			if b.To < b.From {
				return nil, fmt.Errorf("%w: blackout range %s..%s is inverted", ErrInvalidPolicy, b.From, b.To)
			}
		}
	}

	p.Checksum = Checksum(raw)
	return p, nil
}

// Checksum is the content digest recorded alongside a published document.
func Checksum(raw []byte) string {
	sum := blake3.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// decodePriceRules re-decodes each rule on top of the product type's
// defaults so omitted fields keep their default instead of zero.
func decodePriceRules(raw []byte, p *Policy) error {
	var doc struct {
		PriceRules map[model.ProductType]yaml.Node `yaml:"price_rules"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	for t, node := range doc.PriceRules {
		rule := defaultRule(t)
		if err := node.Decode(&rule); err != nil {
			return fmt.Errorf("price_rules.%s: %w", t, err)
		}
		p.PriceRules[t] = rule
	}
	return nil
}

func normalize(p *Policy) {
	for _, t := range model.ProductTypes {
		rule, ok := p.PriceRules[t]
		if !ok {
			rule = defaultRule(t)
		}
		rule.AllowedPerks = sanitizer.NormalizePerks(rule.AllowedPerks)
		p.PriceRules[t] = rule
	}

	codes := make(map[string]PromoCode, len(p.PromoRules.Codes))
	for code, promo := range p.PromoRules.Codes {
		codes[sanitizer.SanitizeCode(code)] = promo
	}
	p.PromoRules.Codes = codes

	boost := make(map[model.UserTier]float64, len(p.PromoRules.Eligibility.LoyaltyTierBoost))
	for tier, b := range p.PromoRules.Eligibility.LoyaltyTierBoost {
		boost[model.NormalizeTier(string(tier))] = b
	}
	p.PromoRules.Eligibility.LoyaltyTierBoost = boost
}

// toJSONValue converts a YAML tree to the value shapes encoding/json
// produces, which is what the schema validator expects.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func describe(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err.Error()
	}
	messages := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		switch fe.Tag() {
		case "min", "gte":
			messages = append(messages, fmt.Sprintf("%s must be at least %s", fe.Namespace(), fe.Param()))
		case "max", "lte", "lt":
			messages = append(messages, fmt.Sprintf("%s must be at most %s", fe.Namespace(), fe.Param()))
		case "ltefield":
			messages = append(messages, fmt.Sprintf("%s must not exceed %s", fe.Namespace(), fe.Param()))
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", fe.Namespace()))
		default:
			messages = append(messages, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(messages, "; ")
}
