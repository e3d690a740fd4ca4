package sanitizer

import (
	"regexp"
	"strings"

	"bargain/pkg/model"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var reCodeSeparators = regexp.MustCompile(`[\s_\-]+`)

func trimAndLower(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return s
}

func trimAndUpper(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToUpper(s)
	return s
}

func stripSeparators(s string) string {
	return reCodeSeparators.ReplaceAllString(s, "")
}

// SanitizeCode normalizes promo codes: " save-20 " becomes "SAVE20".
func SanitizeCode(input string) string {
	p := Pipeline{
		trimAndUpper,
		stripSeparators,
	}
	return p.Apply(input)
}

func SanitizeCurrency(input string) string {
	return trimAndUpper(input)
}

func SanitizeEnum(input string) string {
	return trimAndLower(input)
}

func SanitizeSnapshot(s *model.SupplierSnapshot) {
	s.SupplierID = NormalizeKey(s.SupplierID)
	s.InventoryUnit = NormalizeKey(s.InventoryUnit)
	s.Currency = SanitizeCurrency(s.Currency)
	s.InventoryState = model.InventoryState(trimAndUpper(string(s.InventoryState)))
	s.Net = CeilCents(s.Net)
	s.Taxes = CeilCents(s.Taxes)
	s.Fees = CeilCents(s.Fees)
}

// SanitizeSnapshots returns sanitized copies, leaving the input untouched.
func SanitizeSnapshots(snaps []model.SupplierSnapshot) []model.SupplierSnapshot {
	out := make([]model.SupplierSnapshot, len(snaps))
	for i := range snaps {
		out[i] = snaps[i]
		SanitizeSnapshot(&out[i])
	}
	return out
}

func SanitizeSignals(s *model.Signals) {
	if s == nil {
		return
	}
	s.DeviceType = SanitizeEnum(s.DeviceType)
}

func SanitizeStartRequest(req *model.StartSessionRequest) {
	req.PromoCode = SanitizeCode(req.PromoCode)

	req.User.ID = strings.TrimSpace(req.User.ID)
	req.User.Tier = model.NormalizeTier(string(req.User.Tier))
	req.User.DeviceType = SanitizeEnum(req.User.DeviceType)
	req.User.Style = model.BargainStyle(SanitizeEnum(string(req.User.Style)))

	req.Product.Type = model.ProductType(SanitizeEnum(string(req.Product.Type)))
	req.Product.CanonicalKey = NormalizeKey(req.Product.CanonicalKey)
	req.Product.Currency = SanitizeCurrency(req.Product.Currency)
	req.Product.DisplayedPrice = RoundCents(req.Product.DisplayedPrice)

	for i := range req.SupplierSnapshots {
		SanitizeSnapshot(&req.SupplierSnapshots[i])
	}
}

func SanitizeOfferRequest(req *model.OfferRequest) {
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.UserOffer = RoundCents(req.UserOffer)
	SanitizeSignals(req.Signals)
}

func SanitizeAcceptRequest(req *model.AcceptRequest) {
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.SafetyCapsule = strings.TrimSpace(req.SafetyCapsule)
}

func SanitizeEventRequest(req *model.LogEventRequest) {
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.Name = trimAndLower(req.Name)
}
