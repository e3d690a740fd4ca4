package model

import "time"

type StartSessionRequest struct {
	User              UserProfile        `json:"user"`
	Product           Product            `json:"productCPO"`
	SupplierSnapshots []SupplierSnapshot `json:"supplierSnapshots" validate:"omitempty,max=50,dive"`
	PromoCode         string             `json:"promo_code,omitempty" validate:"omitempty,max=32,alphanum"`
}

type StartSessionResponse struct {
	SessionID     string  `json:"session_id"`
	InitialOffer  float64 `json:"initial_offer"`
	MinFloor      float64 `json:"min_floor"`
	Explain       string  `json:"explain"`
	SafetyCapsule string  `json:"safety_capsule"`
	PolicyVersion string  `json:"policy_version"`
	MaxRounds     int     `json:"max_rounds"`
	Degraded      bool    `json:"degraded,omitempty"`
}

type OfferRequest struct {
	SessionID string   `json:"session_id" validate:"required,uuid"`
	UserOffer float64  `json:"user_offer" validate:"required,gt=0"`
	Signals   *Signals `json:"signals,omitempty"`
}

type OfferResponse struct {
	Decision      Decision `json:"decision"`
	CounterPrice  *float64 `json:"counter_price,omitempty"`
	AcceptProb    float64  `json:"accept_prob"`
	MinFloor      float64  `json:"min_floor"`
	Explain       string   `json:"explain"`
	SafetyCapsule string   `json:"safety_capsule,omitempty"`
	Round         int      `json:"round"`
	Perk          string   `json:"perk,omitempty"`
	Final         bool     `json:"final,omitempty"`
	Degraded      bool     `json:"degraded,omitempty"`
}

type AcceptRequest struct {
	SessionID     string `json:"session_id" validate:"required,uuid"`
	SafetyCapsule string `json:"safety_capsule,omitempty" validate:"omitempty,base64rawurl"`
}

type SupplierInfo struct {
	SupplierID    string `json:"supplier_id"`
	InventoryUnit string `json:"inventory_unit"`
}

type PaymentPayload struct {
	Amount          float64      `json:"amount"`
	Currency        string       `json:"currency"`
	Description     string       `json:"description"`
	SessionID       string       `json:"session_id"`
	SupplierLockID  string       `json:"supplier_lock_id"`
	BookingDeadline time.Time    `json:"booking_deadline"`
	SupplierInfo    SupplierInfo `json:"supplier_info"`
}

type AcceptResponse struct {
	SupplierLockID string         `json:"supplier_lock_id"`
	PaymentPayload PaymentPayload `json:"payment_payload"`
	FinalCapsule   string         `json:"final_capsule"`
}

type LogEventRequest struct {
	SessionID string         `json:"session_id" validate:"required,uuid"`
	Name      string         `json:"name" validate:"required,max=64,event_name"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// SessionStatusResponse is the public view of a session. It never carries
// the cost floor.
type SessionStatusResponse struct {
	SessionID     string        `json:"session_id"`
	Status        SessionStatus `json:"status"`
	Round         int           `json:"round"`
	LastDecision  Decision      `json:"last_decision,omitempty"`
	LastPrice     float64       `json:"last_price"`
	PolicyVersion string        `json:"policy_version"`
	ExpiresAt     time.Time     `json:"expires_at"`
}

type ReplayResponse struct {
	Session *Session `json:"session"`
	Rounds  []*Round `json:"rounds"`
	Events  []*Event `json:"events"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}
