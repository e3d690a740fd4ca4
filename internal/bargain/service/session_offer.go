package service

import (
	"context"
	"errors"
	"math"
	"time"

	bargainerrors "bargain/internal/bargain/errors"
	"bargain/internal/bargain/repository"
	"bargain/internal/events"
	"bargain/internal/offerability"
	"bargain/internal/policy"
	apperrors "bargain/pkg/errors"
	"bargain/pkg/model"
	"bargain/pkg/sanitizer"
)

const (
	reasonMaxElapsed       offerability.Reason = "max_elapsed"
	reasonInventoryStale   offerability.Reason = "inventory_stale"
	reasonInventoryGone    offerability.Reason = "inventory_unavailable"
	reasonDegradedCounter  offerability.Reason = "degraded_counter"
	reasonNeverLossClamped offerability.Reason = "floor_clamped"
)

func (s *bargainService) Offer(ctx context.Context, req *model.OfferRequest) (*model.OfferResponse, error) {
	sanitizer.SanitizeOfferRequest(req)
	if err := s.Validator.ValidateOffer(req); err != nil {
		s.cfg.Log.Warn("Offer validation failed", "session_id", req.SessionID, "error", err)
		return nil, s.validationError("Invalid offer input", err)
	}

	unlock := s.sessions.Lock(req.SessionID)
	defer unlock()

	session, err := s.loadSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return nil, bargainerrors.SessionClosed(string(session.Status))
	}

	now := s.Clock.Now()
	if !now.Before(session.ExpiresAt) {
		s.expireOnAccess(ctx, session, now)
		return nil, bargainerrors.SessionNotFound(session.ID)
	}

	pol, degraded := s.pinnedPolicy(ctx, session)
	budgetCtx, cancel := context.WithTimeout(ctx, s.decisionBudget(pol))
	defer cancel()

	k := session.Round
	var lastCounter float64
	if session.LastDecision == model.DecisionCounter {
		lastCounter = session.LastPrice
	}

	snapshots := s.freshSnapshots(budgetCtx, session.Product.CanonicalKey, session.Candidates)
	res, evalErr := offerability.Evaluate(offerability.Input{
		Policy:    pol,
		Product:   session.Product,
		Snapshots: snapshots,
		User:      session.User,
		PromoCode: session.PromoCode,
		Now:       now,
	})
	if evalErr != nil && !errors.Is(evalErr, offerability.ErrStaleInventory) && !errors.Is(evalErr, offerability.ErrNoInventory) {
		s.cfg.Log.Error("Offer evaluation failed", "session_id", session.ID, "error", evalErr)
		return nil, apperrors.Internal("Failed to evaluate offer", evalErr)
	}

	var device string
	if req.Signals != nil {
		device = req.Signals.DeviceType
	}
	sig := s.signals(budgetCtx, session.User, session.Product.CanonicalKey, device)
	budgetHit := budgetExceeded(budgetCtx)

	var outcome offerability.Outcome
	explainKey := ""
	switch {
	case k > pol.Global.MaxRounds:
		outcome = rejectOutcome(offerability.ReasonMaxRounds)
	case now.Sub(session.CreatedAt) > pol.MaxElapsed():
		outcome = rejectOutcome(reasonMaxElapsed)
		explainKey = offerability.ExplainExpired
	case errors.Is(evalErr, offerability.ErrStaleInventory):
		outcome = rejectOutcome(reasonInventoryStale)
	case errors.Is(evalErr, offerability.ErrNoInventory):
		outcome = rejectOutcome(reasonInventoryGone)
	case budgetHit:
		outcome = fallbackOutcome(res, k, lastCounter, req.UserOffer, sig)
		degraded = true
		s.cfg.Log.Warn("Decision budget exhausted, returning conservative counter", "session_id", session.ID, "round", k)
	default:
		outcome = offerability.Decide(res, req.UserOffer, k, lastCounter, pol.Global.AcceptThreshold, pol.Global.LowballRejectRatio, sig)
	}

	if outcome.Decision != model.DecisionReject && !s.guardNeverLoss(session.ID, outcome.Price, res.CostFloor) {
		outcome = offerability.Outcome{
			Decision: model.DecisionCounter,
			Price:    math.Max(res.MinPrice, res.CostFloor),
			Reason:   reasonNeverLossClamped,
			Final:    k >= res.MaxRounds,
		}
	}

	newRound := k + 1
	update := repository.SessionUpdate{
		ExpectRound:    k,
		Round:          newRound,
		Status:         model.SessionActive,
		LastDecision:   outcome.Decision,
		LastPrice:      session.LastPrice,
		CostFloor:      session.CostFloor,
		Degraded:       session.Degraded || degraded,
		LastActivityAt: now,
		ExpiresAt:      now.Add(pol.MaxElapsed()),
	}
	if evalErr == nil {
		update.CostFloor = res.CostFloor
		update.Candidates = snapshots
	}

	round := &model.Round{
		SessionID:  session.ID,
		Index:      newRound,
		UserOffer:  priceRef(req.UserOffer),
		Decision:   outcome.Decision,
		AcceptProb: outcome.AcceptProb,
		CostFloor:  update.CostFloor,
		Perk:       outcome.Perk,
		Reason:     string(outcome.Reason),
		Degraded:   degraded,
		Signals:    req.Signals,
		CreatedAt:  now,
	}

	var token string
	switch outcome.Decision {
	case model.DecisionAccept:
		update.Status = model.SessionAccepted
	case model.DecisionReject:
		update.Status = model.SessionRejected
	case model.DecisionCounter:
		round.CounterPrice = priceRef(outcome.Price)
	}
	if outcome.Decision != model.DecisionReject {
		update.LastPrice = outcome.Price
		token, err = s.issueCapsule(session, newRound, outcome.Price, now)
		if err != nil {
			return nil, err
		}
		update.LastCapsule = token
	}

	persistCtx := ctx
	if budgetHit {
		var cancelPersist context.CancelFunc
		persistCtx, cancelPersist = context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
		defer cancelPersist()
	}
	if err := s.Sessions.AppendRound(persistCtx, session.ID, update, round); err != nil {
		if errors.Is(err, bargainerrors.ErrRoundConflict) {
			s.cfg.Log.Warn("Concurrent round detected", "session_id", session.ID, "round", k)
			return nil, bargainerrors.SessionBusy()
		}
		s.cfg.Log.Error("Failed to record round", "session_id", session.ID, "round", newRound, "error", err)
		return nil, apperrors.Internal("Failed to record offer", err)
	}

	s.cfg.Log.Info("Offer decided",
		"session_id", session.ID,
		"round", newRound,
		"decision", outcome.Decision,
		"reason", outcome.Reason,
		"final", outcome.Final,
		"degraded", degraded,
	)
	session.Round = newRound
	s.audit(ctx, session, round)
	s.emit(ctx, events.New(events.RoundDecided, session.ID, map[string]any{
		"round":       newRound,
		"user_offer":  req.UserOffer,
		"decision":    outcome.Decision,
		"price":       outcome.Price,
		"accept_prob": outcome.AcceptProb,
		"reason":      outcome.Reason,
		"final":       outcome.Final,
		"degraded":    degraded,
	}, now))

	resp := &model.OfferResponse{
		Decision:      outcome.Decision,
		AcceptProb:    outcome.AcceptProb,
		MinFloor:      res.MinPrice,
		Explain:       explainOutcome(pol, res, outcome, session.User.Tier, explainKey),
		SafetyCapsule: token,
		Round:         newRound,
		Perk:          outcome.Perk,
		Final:         outcome.Final,
		Degraded:      degraded,
	}
	if outcome.Decision == model.DecisionCounter {
		resp.CounterPrice = priceRef(outcome.Price)
	}
	return resp, nil
}

func rejectOutcome(reason offerability.Reason) offerability.Outcome {
	return offerability.Outcome{Decision: model.DecisionReject, Reason: reason}
}

// fallbackOutcome repeats the previous counter, or the opening price, and
// never accepts.
func fallbackOutcome(res *offerability.Result, k int, lastCounter, offer float64, sig offerability.Signals) offerability.Outcome {
	price := res.OpeningPrice
	if lastCounter > 0 {
		price = lastCounter
	}
	price = math.Min(res.MaxPrice, math.Max(price, res.MinPrice))
	sig.Round = k
	return offerability.Outcome{
		Decision:   model.DecisionCounter,
		Price:      price,
		AcceptProb: offerability.AcceptProbability(res, price, offer, sig),
		Reason:     reasonDegradedCounter,
		Final:      k >= res.MaxRounds,
	}
}

func explainOutcome(p *policy.Policy, res *offerability.Result, o offerability.Outcome, tier model.UserTier, key string) string {
	if key != "" {
		return p.Explain(key, "This negotiation has expired")
	}
	return offerability.Explain(p, res, o, tier)
}

func (s *bargainService) expireOnAccess(ctx context.Context, session *model.Session, now time.Time) {
	expired, err := s.Sessions.MarkExpired(ctx, session.ID, now)
	if err != nil {
		s.cfg.Log.Warn("Failed to expire session on access", "session_id", session.ID, "error", err)
		return
	}
	if expired {
		s.emit(ctx, events.New(events.SessionExpired, session.ID, map[string]any{"round": session.Round}, now))
	}
}
