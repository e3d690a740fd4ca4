package events

import (
	"context"
	"errors"
	"fmt"

	"bargain/internal/arbitration"
	"bargain/pkg/kafka"
	"bargain/pkg/logger"
	"bargain/pkg/model"
)

const (
	OutcomeCompleted = "booking.completed"
	OutcomeFailed    = "booking.failed"
)

// BookingOutcome is what the booking service reports once it finished
// with a supplier lock.
type BookingOutcome struct {
	Type           string `json:"type"`
	SessionID      string `json:"session_id"`
	SupplierLockID string `json:"supplier_lock_id"`
	BookingRef     string `json:"booking_ref,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// LockReleaser is satisfied by *arbitration.Manager.
type LockReleaser interface {
	Release(ctx context.Context, lockID string) (*model.SupplierLock, error)
}

// BookingOutcomeHandler releases the supplier lock named in each booking
// outcome. Releasing an unknown or already released lock is not an error.
func BookingOutcomeHandler(releaser LockReleaser, log *logger.Logger) kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		var outcome BookingOutcome
		if err := msg.DecodeValue(&outcome); err != nil {
			return kafka.NewPermanentError("malformed booking outcome", err)
		}
		if outcome.Type == "" {
			outcome.Type = msg.GetEventType()
		}
		if outcome.Type != OutcomeCompleted && outcome.Type != OutcomeFailed {
			log.Debug("Ignoring booking event", "event_type", outcome.Type, "event_id", msg.GetEventID())
			return nil
		}
		if outcome.SupplierLockID == "" {
			return kafka.NewPermanentError("booking outcome without supplier_lock_id", nil)
		}

		_, err := releaser.Release(ctx, outcome.SupplierLockID)
		switch {
		case err == nil:
			log.Info("Released supplier lock on booking outcome",
				"session_id", outcome.SessionID,
				"lock_id", outcome.SupplierLockID,
				"outcome", outcome.Type,
				"booking_ref", outcome.BookingRef,
			)
			return nil
		case errors.Is(err, arbitration.ErrLockNotFound):
			log.Debug("Supplier lock already released", "lock_id", outcome.SupplierLockID)
			return nil
		default:
			return kafka.NewTransientError(fmt.Sprintf("release lock %s", outcome.SupplierLockID), err)
		}
	}
}
