package model

import (
	"strings"
	"time"
)

type ProductType string

const (
	ProductFlight      ProductType = "flight"
	ProductHotel       ProductType = "hotel"
	ProductSightseeing ProductType = "sightseeing"
)

var ProductTypes = []ProductType{ProductFlight, ProductHotel, ProductSightseeing}

func (p ProductType) Valid() bool {
	switch p {
	case ProductFlight, ProductHotel, ProductSightseeing:
		return true
	}
	return false
}

type SessionStatus string

const (
	SessionActive   SessionStatus = "ACTIVE"
	SessionAccepted SessionStatus = "ACCEPTED"
	SessionRejected SessionStatus = "REJECTED"
	SessionExpired  SessionStatus = "EXPIRED"
)

func (s SessionStatus) Terminal() bool {
	return s == SessionAccepted || s == SessionRejected || s == SessionExpired
}

type Decision string

const (
	DecisionAccept  Decision = "ACCEPT"
	DecisionCounter Decision = "COUNTER"
	DecisionReject  Decision = "REJECT"
)

type InventoryState string

const (
	InventoryAvailable InventoryState = "AVAILABLE"
	InventoryStale     InventoryState = "STALE"
	InventorySoldOut   InventoryState = "SOLD_OUT"
)

type UserTier string

const (
	TierStandard UserTier = "STANDARD"
	TierSilver   UserTier = "SILVER"
	TierGold     UserTier = "GOLD"
	TierPlatinum UserTier = "PLATINUM"
)

// NormalizeTier maps free-form tier input onto a known tier. Unknown
// values fall back to STANDARD.
func NormalizeTier(raw string) UserTier {
	switch t := UserTier(strings.ToUpper(strings.TrimSpace(raw))); t {
	case TierSilver, TierGold, TierPlatinum:
		return t
	default:
		return TierStandard
	}
}

type BargainStyle string

const (
	StyleCautious   BargainStyle = "cautious"
	StylePersistent BargainStyle = "persistent"
	StyleGenerous   BargainStyle = "generous"
)

type UserProfile struct {
	ID         string       `json:"id" bson:"id" validate:"omitempty,max=128"`
	Tier       UserTier     `json:"tier" bson:"tier"`
	DeviceType string       `json:"device_type,omitempty" bson:"device_type,omitempty" validate:"omitempty,oneof=mobile desktop tablet"`
	Style      BargainStyle `json:"style,omitempty" bson:"style,omitempty" validate:"omitempty,oneof=cautious persistent generous"`
}

// Product is the canonical product offer (CPO) under negotiation.
type Product struct {
	Type           ProductType    `json:"type" bson:"type" validate:"required,product_type"`
	CanonicalKey   string         `json:"canonical_key" bson:"canonical_key" validate:"required,max=256"`
	DisplayedPrice float64        `json:"displayed_price" bson:"displayed_price" validate:"required,gt=0"`
	Currency       string         `json:"currency" bson:"currency" validate:"required,len=3,alpha"`
	TravelDate     string         `json:"travel_date,omitempty" bson:"travel_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	CheckIn        string         `json:"check_in,omitempty" bson:"check_in,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DepartureDate  string         `json:"dep_date,omitempty" bson:"dep_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Attrs          map[string]any `json:"attrs,omitempty" bson:"attrs,omitempty"`
}

// ServiceDate returns the date the product is consumed, if known.
func (p Product) ServiceDate() (time.Time, bool) {
	for _, raw := range []string{p.TravelDate, p.CheckIn, p.DepartureDate} {
		if raw == "" {
			continue
		}
		if d, err := time.Parse(time.DateOnly, raw); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

type SupplierSnapshot struct {
	SupplierID     string         `json:"supplier_id" bson:"supplier_id" validate:"required,max=64"`
	InventoryUnit  string         `json:"inventory_unit,omitempty" bson:"inventory_unit" validate:"omitempty,max=128"`
	Net            float64        `json:"net" bson:"net" validate:"gte=0"`
	Taxes          float64        `json:"taxes" bson:"taxes" validate:"gte=0"`
	Fees           float64        `json:"fees" bson:"fees" validate:"gte=0"`
	Currency       string         `json:"currency" bson:"currency" validate:"required,len=3,alpha"`
	InventoryState InventoryState `json:"inventory_state" bson:"inventory_state" validate:"required,inventory_state"`
	SnapshotAt     time.Time      `json:"snapshot_at" bson:"snapshot_at" validate:"required"`
}

// Landed is the all-in supplier cost.
func (s SupplierSnapshot) Landed() float64 {
	return s.Net + s.Taxes + s.Fees
}

// Unit returns the inventory unit, defaulting to the supplier id when the
// supplier quotes a single unit.
func (s SupplierSnapshot) Unit() string {
	if s.InventoryUnit != "" {
		return s.InventoryUnit
	}
	return s.SupplierID
}

func (s SupplierSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.SnapshotAt)
}

type Signals struct {
	TimeOnPageMs     int64          `json:"time_on_page_ms,omitempty" bson:"time_on_page_ms,omitempty" validate:"gte=0"`
	ScrollDepth      float64        `json:"scroll_depth,omitempty" bson:"scroll_depth,omitempty" validate:"gte=0,lte=1"`
	PriceViewedCount int            `json:"price_viewed_count,omitempty" bson:"price_viewed_count,omitempty" validate:"gte=0"`
	DeviceType       string         `json:"device_type,omitempty" bson:"device_type,omitempty"`
	Extra            map[string]any `json:"extra,omitempty" bson:"extra,omitempty"`
}

type Session struct {
	ID             string             `json:"session_id" bson:"_id"`
	Product        Product            `json:"product" bson:"product"`
	User           UserProfile        `json:"user" bson:"user"`
	PromoCode      string             `json:"promo_code,omitempty" bson:"promo_code,omitempty"`
	PolicyVersion  string             `json:"policy_version" bson:"policy_version"`
	Candidates     []SupplierSnapshot `json:"candidates" bson:"candidates"`
	CostFloor      float64            `json:"cost_floor" bson:"cost_floor"`
	Round          int                `json:"round" bson:"round"`
	Status         SessionStatus      `json:"status" bson:"status"`
	LastDecision   Decision           `json:"last_decision" bson:"last_decision"`
	LastPrice      float64            `json:"last_price" bson:"last_price"`
	LastCapsule    string             `json:"-" bson:"last_capsule"`
	SupplierLockID string             `json:"supplier_lock_id,omitempty" bson:"supplier_lock_id,omitempty"`
	SupplierID     string             `json:"supplier_id,omitempty" bson:"supplier_id,omitempty"`
	Degraded       bool               `json:"degraded,omitempty" bson:"degraded,omitempty"`
	CreatedAt      time.Time          `json:"created_at" bson:"created_at"`
	LastActivityAt time.Time          `json:"last_activity_at" bson:"last_activity_at"`
	ExpiresAt      time.Time          `json:"expires_at" bson:"expires_at"`
}

type Round struct {
	ID           string    `json:"id" bson:"_id"`
	SessionID    string    `json:"session_id" bson:"session_id"`
	Index        int       `json:"index" bson:"index"`
	UserOffer    *float64  `json:"user_offer,omitempty" bson:"user_offer,omitempty"`
	CounterPrice *float64  `json:"counter_price,omitempty" bson:"counter_price,omitempty"`
	Decision     Decision  `json:"decision" bson:"decision"`
	AcceptProb   float64   `json:"accept_prob" bson:"accept_prob"`
	CostFloor    float64   `json:"cost_floor" bson:"cost_floor"`
	Perk         string    `json:"perk,omitempty" bson:"perk,omitempty"`
	Reason       string    `json:"reason,omitempty" bson:"reason,omitempty"`
	Degraded     bool      `json:"degraded,omitempty" bson:"degraded,omitempty"`
	Signals      *Signals  `json:"signals,omitempty" bson:"signals,omitempty"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
}

type SupplierLock struct {
	Key           string    `json:"-" bson:"_id"`
	LockID        string    `json:"lock_id" bson:"lock_id"`
	SupplierID    string    `json:"supplier_id" bson:"supplier_id"`
	InventoryUnit string    `json:"inventory_unit" bson:"inventory_unit"`
	SessionID     string    `json:"session_id" bson:"session_id"`
	AcquiredAt    time.Time `json:"acquired_at" bson:"acquired_at"`
	ExpiresAt     time.Time `json:"expires_at" bson:"expires_at"`
}

// LockKey is the mutual-exclusion key for one supplier inventory unit.
func LockKey(supplierID, inventoryUnit string) string {
	return "supplier_lock:" + supplierID + ":" + inventoryUnit
}

type Event struct {
	ID         string         `json:"id" bson:"_id"`
	SessionID  string         `json:"session_id" bson:"session_id"`
	Name       string         `json:"name" bson:"name"`
	Payload    map[string]any `json:"payload,omitempty" bson:"payload,omitempty"`
	Source     string         `json:"source" bson:"source"`
	OccurredAt time.Time      `json:"occurred_at" bson:"occurred_at"`
}
