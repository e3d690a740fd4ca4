package service

import (
	"context"
	"errors"

	"bargain/internal/arbitration"
	bargainerrors "bargain/internal/bargain/errors"
	"bargain/internal/bargain/repository"
	"bargain/internal/capsule"
	"bargain/internal/events"
	"bargain/internal/offerability"
	apperrors "bargain/pkg/errors"
	"bargain/pkg/model"
	"bargain/pkg/sanitizer"
)

func (s *bargainService) Accept(ctx context.Context, req *model.AcceptRequest) (*model.AcceptResponse, error) {
	sanitizer.SanitizeAcceptRequest(req)
	if err := s.Validator.ValidateAccept(req); err != nil {
		s.cfg.Log.Warn("Accept validation failed", "session_id", req.SessionID, "error", err)
		return nil, s.validationError("Invalid accept input", err)
	}

	unlock := s.sessions.Lock(req.SessionID)
	defer unlock()

	session, err := s.loadSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == model.SessionRejected || session.SupplierLockID != "" {
		return nil, bargainerrors.SessionClosed(string(session.Status))
	}

	now := s.Clock.Now()
	if session.Status == model.SessionActive && !now.Before(session.ExpiresAt) {
		s.expireOnAccess(ctx, session, now)
		return nil, bargainerrors.SessionNotFound(session.ID)
	}
	if session.LastDecision != model.DecisionAccept && session.LastDecision != model.DecisionCounter {
		return nil, bargainerrors.NoValidOffer("There is no offer to accept")
	}

	if req.SafetyCapsule != "" && req.SafetyCapsule != session.LastCapsule {
		s.cfg.Log.Warn("Accept presented a capsule that is not the latest", "session_id", session.ID)
		return nil, bargainerrors.CapsuleInvalid()
	}
	claims, err := s.Signer.VerifyFor(session.LastCapsule, session.ID, session.Round, offerability.Cents(session.LastPrice), now)
	if err != nil {
		s.cfg.Log.Warn("Capsule verification failed", "session_id", session.ID, "round", session.Round, "error", err)
		if errors.Is(err, capsule.ErrExpired) {
			return nil, bargainerrors.CapsuleExpired()
		}
		return nil, bargainerrors.CapsuleInvalid()
	}
	price := claims.Price()

	pol, _ := s.pinnedPolicy(ctx, session)
	res, err := offerability.Evaluate(offerability.Input{
		Policy:    pol,
		Product:   session.Product,
		Snapshots: s.freshSnapshots(ctx, session.Product.CanonicalKey, session.Candidates),
		User:      session.User,
		PromoCode: session.PromoCode,
		Now:       now,
	})
	if err != nil {
		s.cfg.Log.Warn("Inventory re-check failed at accept", "session_id", session.ID, "error", err)
		return nil, s.evaluationError(session.Product, err)
	}

	candidates := arbitration.Eligible(res, price)
	if len(candidates) == 0 {
		s.cfg.Log.Warn("Accepted price no longer covers any supplier", "session_id", session.ID)
		return nil, bargainerrors.InventoryChanged()
	}

	lock, chosen, err := s.Locks.Acquire(ctx, session.ID, candidates, now)
	if err != nil {
		switch {
		case errors.Is(err, arbitration.ErrLockConflict):
			return nil, bargainerrors.LockConflict()
		case errors.Is(err, arbitration.ErrNoCandidate):
			return nil, bargainerrors.InventoryChanged()
		default:
			s.cfg.Log.Error("Failed to acquire supplier lock", "session_id", session.ID, "error", err)
			return nil, apperrors.Internal("Failed to reserve inventory", err)
		}
	}

	if !s.guardNeverLoss(session.ID, price, chosen.Floor) {
		s.releaseQuietly(ctx, lock.LockID)
		return nil, bargainerrors.NoValidOffer("This offer can no longer be honoured")
	}

	finalToken, err := s.issueCapsule(session, session.Round, price, now)
	if err != nil {
		s.releaseQuietly(ctx, lock.LockID)
		return nil, err
	}

	err = s.Sessions.MarkAccepted(ctx, session.ID, repository.AcceptUpdate{
		ExpectRound:    session.Round,
		SupplierLockID: lock.LockID,
		SupplierID:     lock.SupplierID,
		LastPrice:      price,
		LastCapsule:    finalToken,
		LastActivityAt: now,
	})
	if err != nil {
		s.releaseQuietly(ctx, lock.LockID)
		if errors.Is(err, bargainerrors.ErrRoundConflict) {
			return nil, bargainerrors.SessionBusy()
		}
		s.cfg.Log.Error("Failed to mark session accepted", "session_id", session.ID, "error", err)
		return nil, apperrors.Internal("Failed to accept offer", err)
	}

	s.cfg.Log.Info("Offer accepted",
		"session_id", session.ID,
		"round", session.Round,
		"lock_id", lock.LockID,
		"supplier_id", lock.SupplierID,
	)
	s.emit(ctx, events.New(events.SessionAccepted, session.ID, map[string]any{
		"round":            session.Round,
		"price":            price,
		"currency":         session.Product.Currency,
		"supplier_id":      lock.SupplierID,
		"inventory_unit":   lock.InventoryUnit,
		"supplier_lock_id": lock.LockID,
	}, now))

	return &model.AcceptResponse{
		SupplierLockID: lock.LockID,
		PaymentPayload: model.PaymentPayload{
			Amount:          price,
			Currency:        session.Product.Currency,
			Description:     describeProduct(session.Product),
			SessionID:       session.ID,
			SupplierLockID:  lock.LockID,
			BookingDeadline: lock.ExpiresAt,
			SupplierInfo: model.SupplierInfo{
				SupplierID:    lock.SupplierID,
				InventoryUnit: lock.InventoryUnit,
			},
		},
		FinalCapsule: finalToken,
	}, nil
}

func (s *bargainService) releaseQuietly(ctx context.Context, lockID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
	defer cancel()
	if _, err := s.Locks.Release(ctx, lockID); err != nil {
		s.cfg.Log.Warn("Failed to release supplier lock", "lock_id", lockID, "error", err)
	}
}
