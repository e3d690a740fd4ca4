package service

import (
	"context"
	"errors"
	"math"

	bargainerrors "bargain/internal/bargain/errors"
	"bargain/internal/cache"
	"bargain/internal/events"
	"bargain/internal/offerability"
	"bargain/internal/policy"
	apperrors "bargain/pkg/errors"
	"bargain/pkg/model"
	"bargain/pkg/sanitizer"

	"github.com/google/uuid"
)

func (s *bargainService) Start(ctx context.Context, req *model.StartSessionRequest) (*model.StartSessionResponse, error) {
	sanitizer.SanitizeStartRequest(req)
	if !req.Product.Type.Valid() {
		return nil, bargainerrors.InvalidProductType(string(req.Product.Type))
	}
	if err := s.Validator.ValidateStart(req); err != nil {
		s.cfg.Log.Warn("Session start validation failed", "error", err)
		return nil, s.validationError("Invalid session input", err)
	}

	now := s.Clock.Now()
	pol := s.Policies.Active()

	budgetCtx, cancel := context.WithTimeout(ctx, s.decisionBudget(pol))
	defer cancel()

	if !s.Cache.Flag(budgetCtx, cache.FlagBargainEnabled) {
		return nil, bargainerrors.PolicyBlocked("bargaining_disabled")
	}
	if pol.Blocked(req.Product) {
		return nil, bargainerrors.PolicyBlocked("blackout_dates")
	}

	promo := req.PromoCode
	if promo != "" && (!s.Cache.Flag(budgetCtx, cache.FlagPromosEnabled) || s.Cache.PromoDisabled(budgetCtx, promo)) {
		s.cfg.Log.Info("Promo code disabled, ignoring", "promo_code", promo)
		promo = ""
	}

	snapshots := req.SupplierSnapshots
	if len(snapshots) == 0 {
		snapshots = s.freshSnapshots(budgetCtx, req.Product.CanonicalKey, nil)
	}
	if len(snapshots) == 0 {
		return nil, bargainerrors.RateStale()
	}

	in := offerability.Input{
		Policy:    pol,
		Product:   req.Product,
		Snapshots: snapshots,
		User:      req.User,
		PromoCode: promo,
		Now:       now,
	}
	res, err := offerability.Evaluate(in)
	if err != nil {
		return nil, s.evaluationError(req.Product, err)
	}

	opening := res.OpeningPrice
	degraded := budgetExceeded(budgetCtx)
	if degraded {
		opening = s.conservativeOpening(in, res)
		s.cfg.Log.Warn("Decision budget exhausted at start, using conservative opening",
			"canonical_key", req.Product.CanonicalKey,
			"policy_version", pol.Version,
		)
	}
	if !s.guardNeverLoss("", opening, res.CostFloor) {
		return nil, bargainerrors.NoValidOffer("No offer can be made for this product")
	}

	user := req.User
	session := &model.Session{
		ID:             uuid.NewString(),
		Product:        req.Product,
		User:           user,
		PromoCode:      res.PromoCode,
		PolicyVersion:  pol.Version,
		Candidates:     snapshots,
		CostFloor:      res.CostFloor,
		Round:          1,
		Status:         model.SessionActive,
		LastDecision:   model.DecisionCounter,
		LastPrice:      opening,
		Degraded:       degraded,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(pol.MaxElapsed()),
	}

	token, err := s.issueCapsule(session, 1, opening, now)
	if err != nil {
		return nil, err
	}
	session.LastCapsule = token

	sig := s.signals(budgetCtx, user, req.Product.CanonicalKey, "")
	sig.Round = 1
	round := &model.Round{
		SessionID:    session.ID,
		Index:        1,
		CounterPrice: priceRef(opening),
		Decision:     model.DecisionCounter,
		AcceptProb:   offerability.AcceptProbability(res, opening, 0, sig),
		CostFloor:    res.CostFloor,
		Reason:       "opening",
		Degraded:     degraded,
		CreatedAt:    now,
	}

	if err := s.Sessions.Create(ctx, session, round); err != nil {
		s.cfg.Log.Error("Failed to create session", "error", err)
		return nil, apperrors.Internal("Failed to create session", err)
	}

	s.cfg.Log.Info("Session started",
		"session_id", session.ID,
		"product_type", req.Product.Type,
		"policy_version", pol.Version,
		"candidates", len(res.Available()),
		"promo_code", session.PromoCode,
		"degraded", degraded,
	)
	s.audit(ctx, session, round)
	s.emit(ctx, events.New(events.SessionStarted, session.ID, map[string]any{
		"product_type":     req.Product.Type,
		"canonical_key":    req.Product.CanonicalKey,
		"policy_version":   pol.Version,
		"opening_price":    opening,
		"displayed_price":  req.Product.DisplayedPrice,
		"max_discount_pct": roundPct(res.MaxDiscountPct),
		"action_count":     res.ActionCount(),
		"promo_code":       session.PromoCode,
		"tier":             user.Tier,
	}, now))

	explain := offerability.Opening(pol, withOpening(res, opening), user.Tier)

	return &model.StartSessionResponse{
		SessionID:     session.ID,
		InitialOffer:  opening,
		MinFloor:      res.MinPrice,
		Explain:       explain,
		SafetyCapsule: token,
		PolicyVersion: pol.Version,
		MaxRounds:     res.MaxRounds,
		Degraded:      degraded,
	}, nil
}

// conservativeOpening never discounts deeper than the fallback policy
// would for the same inventory.
func (s *bargainService) conservativeOpening(in offerability.Input, res *offerability.Result) float64 {
	in.Policy = policy.Fallback()
	in.PromoCode = ""
	fb, err := offerability.Evaluate(in)
	if err != nil {
		return res.MaxPrice
	}
	return math.Min(res.MaxPrice, math.Max(res.OpeningPrice, fb.OpeningPrice))
}

func (s *bargainService) evaluationError(product model.Product, err error) error {
	switch {
	case errors.Is(err, offerability.ErrStaleInventory):
		return bargainerrors.RateStale()
	case errors.Is(err, offerability.ErrNoInventory):
		return bargainerrors.InventoryChanged()
	case errors.Is(err, offerability.ErrUnknownProduct):
		return bargainerrors.InvalidProductType(string(product.Type))
	default:
		return apperrors.Internal("Failed to evaluate offer", err)
	}
}

func withOpening(res *offerability.Result, price float64) *offerability.Result {
	cp := *res
	cp.OpeningPrice = price
	return &cp
}
