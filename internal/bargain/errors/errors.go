package errors

import (
	"errors"
	"net/http"
	"time"

	apperrors "bargain/pkg/errors"
)

var (
	ErrSessionNotFound = errors.New("session not found")

	ErrRoundConflict = errors.New("session advanced concurrently")
)

const (
	CodeInvalidProductType = "INVALID_PRODUCT_TYPE"
	CodeSessionNotFound    = "SESSION_NOT_FOUND"
	CodeSessionClosed      = "SESSION_CLOSED"
	CodeSessionBusy        = "SESSION_BUSY"
	CodeLockConflict       = "LOCK_CONFLICT"
	CodeInventoryChanged   = "INVENTORY_CHANGED"
	CodeRateStale          = "RATE_STALE"
	CodeNoValidOffer       = "NO_VALID_OFFER"
	CodePolicyBlocked      = "POLICY_BLOCKED"
	CodeCapsuleInvalid     = "CAPSULE_INVALID"
	CodeCapsuleExpired     = "CAPSULE_EXPIRED"
)

func InvalidProductType(productType string) *apperrors.AppError {
	return apperrors.New(CodeInvalidProductType, "Unknown product type", http.StatusBadRequest).
		WithDetails(map[string]any{"type": productType, "allowed": []string{"flight", "hotel", "sightseeing"}})
}

func SessionNotFound(id string) *apperrors.AppError {
	return apperrors.New(CodeSessionNotFound, "Session not found or expired", http.StatusNotFound).
		WithDetails(map[string]any{"session_id": id})
}

func SessionClosed(status string) *apperrors.AppError {
	return apperrors.New(CodeSessionClosed, "Session is closed", http.StatusConflict).
		WithDetails(map[string]any{"status": status})
}

func SessionBusy() *apperrors.AppError {
	return apperrors.New(CodeSessionBusy, "Session was updated by a concurrent request", http.StatusConflict).
		WithRetryAfter(time.Second)
}

func LockConflict() *apperrors.AppError {
	return apperrors.New(CodeLockConflict, "Supplier inventory is held by another booking", http.StatusConflict)
}

func InventoryChanged() *apperrors.AppError {
	return apperrors.New(CodeInventoryChanged, "Inventory changed, please restart the negotiation", http.StatusConflict)
}

func RateStale() *apperrors.AppError {
	return apperrors.New(CodeRateStale, "Supplier rates are stale, please retry", http.StatusConflict).
		WithRetryAfter(5 * time.Second)
}

func NoValidOffer(message string) *apperrors.AppError {
	return apperrors.New(CodeNoValidOffer, message, http.StatusConflict)
}

func PolicyBlocked(reason string) *apperrors.AppError {
	return apperrors.New(CodePolicyBlocked, "Bargaining is not available for this request", http.StatusForbidden).
		WithDetails(map[string]any{"reason": reason})
}

func CapsuleInvalid() *apperrors.AppError {
	return apperrors.New(CodeCapsuleInvalid, "Offer capsule failed verification", http.StatusConflict)
}

func CapsuleExpired() *apperrors.AppError {
	return apperrors.New(CodeCapsuleExpired, "Offer capsule has expired", http.StatusConflict)
}
