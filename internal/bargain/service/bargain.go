package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"bargain/internal/arbitration"
	bargainerrors "bargain/internal/bargain/errors"
	"bargain/internal/bargain/repository"
	"bargain/internal/bargain/validator"
	"bargain/internal/cache"
	"bargain/internal/capsule"
	"bargain/internal/events"
	"bargain/internal/offerability"
	"bargain/internal/policy"
	"bargain/pkg/clock"
	"bargain/pkg/config"
	apperrors "bargain/pkg/errors"
	"bargain/pkg/model"
	"bargain/pkg/sanitizer"
)

const (
	replayEventLimit = 500

	alertNeverLoss = "NeverLossViolation"
)

type BargainService interface {
	Start(ctx context.Context, req *model.StartSessionRequest) (*model.StartSessionResponse, error)
	Offer(ctx context.Context, req *model.OfferRequest) (*model.OfferResponse, error)
	Accept(ctx context.Context, req *model.AcceptRequest) (*model.AcceptResponse, error)
	LogEvent(ctx context.Context, req *model.LogEventRequest) error
	Status(ctx context.Context, sessionID string) (*model.SessionStatusResponse, error)
	Replay(ctx context.Context, sessionID string) (*model.ReplayResponse, error)
	Ready(ctx context.Context) error
	Close()
}

// Dependencies are the collaborators of the negotiation service.
type Dependencies struct {
	Sessions       repository.SessionRepository
	Snapshots      repository.SnapshotRepository
	Events         repository.EventRepository
	NegotiationLog repository.NegotiationLogRepository
	Policies       *policy.Registry
	Cache          *cache.Reader
	Signer         *capsule.Signer
	Locks          *arbitration.Manager
	Publisher      events.Publisher
	Validator      *validator.BargainValidator
	Clock          clock.Clock
}

type bargainService struct {
	Dependencies
	cfg      *config.Config
	sessions *sessionLocks
	wg       sync.WaitGroup
}

func NewBargainService(deps Dependencies, cfg *config.Config) BargainService {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	return &bargainService{
		Dependencies: deps,
		cfg:          cfg,
		sessions:     newSessionLocks(),
	}
}

func (s *bargainService) LogEvent(ctx context.Context, req *model.LogEventRequest) error {
	sanitizer.SanitizeEventRequest(req)
	if err := s.Validator.ValidateEvent(req); err != nil {
		return s.validationError("Invalid event input", err)
	}

	if _, err := s.loadSession(ctx, req.SessionID); err != nil {
		return err
	}

	event := &model.Event{
		SessionID:  req.SessionID,
		Name:       req.Name,
		Payload:    req.Payload,
		Source:     events.SourceClient,
		OccurredAt: s.Clock.Now(),
	}
	if err := s.Events.Insert(ctx, event); err != nil {
		s.cfg.Log.Error("Failed to store client event", "session_id", req.SessionID, "name", req.Name, "error", err)
	}
	s.emit(ctx, &model.Event{
		ID:         event.ID,
		SessionID:  event.SessionID,
		Name:       events.ClientEvent,
		Payload:    map[string]any{"name": req.Name, "payload": req.Payload},
		Source:     events.SourceClient,
		OccurredAt: event.OccurredAt,
	})
	return nil
}

// Status reports an ACTIVE session past its expiry as EXPIRED without
// writing; the sweeper or the next offer persists the transition.
func (s *bargainService) Status(ctx context.Context, sessionID string) (*model.SessionStatusResponse, error) {
	sessionID = strings.TrimSpace(sessionID)
	session, err := s.Sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, bargainerrors.ErrSessionNotFound) {
			return nil, bargainerrors.SessionNotFound(sessionID)
		}
		s.cfg.Log.Error("Failed to load session status", "session_id", sessionID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve session", err)
	}

	status := session.Status
	if status == model.SessionActive && !s.Clock.Now().Before(session.ExpiresAt) {
		status = model.SessionExpired
	}
	return &model.SessionStatusResponse{
		SessionID:     session.ID,
		Status:        status,
		Round:         session.Round,
		LastDecision:  session.LastDecision,
		LastPrice:     session.LastPrice,
		PolicyVersion: session.PolicyVersion,
		ExpiresAt:     session.ExpiresAt,
	}, nil
}

func (s *bargainService) Replay(ctx context.Context, sessionID string) (*model.ReplayResponse, error) {
	session, err := s.Sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, bargainerrors.ErrSessionNotFound) {
			return nil, bargainerrors.SessionNotFound(sessionID)
		}
		return nil, apperrors.Internal("Failed to retrieve session", err)
	}

	rounds, err := s.Sessions.Rounds(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Internal("Failed to retrieve rounds", err)
	}

	evts, err := s.Events.FindBySession(ctx, sessionID, replayEventLimit)
	if err != nil {
		s.cfg.Log.Warn("Failed to load session events for replay", "session_id", sessionID, "error", err)
		evts = []*model.Event{}
	}

	return &model.ReplayResponse{Session: session, Rounds: rounds, Events: evts}, nil
}

func (s *bargainService) Ready(ctx context.Context) error {
	if err := s.Sessions.Ping(ctx); err != nil {
		return apperrors.Unavailable("session store")
	}
	return nil
}

// Close waits for in-flight audit writes.
func (s *bargainService) Close() {
	s.wg.Wait()
}

// loadSession resolves a session that can still be negotiated or
// accepted. Expired sessions are reported as not found.
func (s *bargainService) loadSession(ctx context.Context, id string) (*model.Session, error) {
	session, err := s.Sessions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, bargainerrors.ErrSessionNotFound) {
			return nil, bargainerrors.SessionNotFound(id)
		}
		s.cfg.Log.Error("Failed to load session", "session_id", id, "error", err)
		return nil, apperrors.Internal("Failed to retrieve session", err)
	}
	if session.Status == model.SessionExpired {
		return nil, bargainerrors.SessionNotFound(id)
	}
	return session, nil
}

// pinnedPolicy returns the version the session started under. When it
// cannot be loaded the stricter fallback policy applies.
func (s *bargainService) pinnedPolicy(ctx context.Context, session *model.Session) (*policy.Policy, bool) {
	p, err := s.Policies.Version(ctx, session.PolicyVersion)
	if err != nil {
		s.cfg.Log.Error("Pinned policy unavailable, using fallback",
			"session_id", session.ID,
			"policy_version", session.PolicyVersion,
			"error", err,
		)
		return policy.Fallback(), true
	}
	return p, false
}

// budgetExceeded also checks the deadline itself; the timer that cancels
// ctx may not have fired yet.
func budgetExceeded(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	deadline, ok := ctx.Deadline()
	return ok && !time.Now().Before(deadline)
}

func (s *bargainService) decisionBudget(p *policy.Policy) time.Duration {
	budget := p.DecisionBudget()
	if s.cfg.DecisionBudget > 0 && s.cfg.DecisionBudget < budget {
		budget = s.cfg.DecisionBudget
	}
	return budget
}

// freshSnapshots prefers the rate cache, then the snapshot store, then
// whatever the session captured at start.
func (s *bargainService) freshSnapshots(ctx context.Context, canonicalKey string, fallback []model.SupplierSnapshot) []model.SupplierSnapshot {
	if snaps, ok := s.Cache.Rates(ctx, canonicalKey); ok && len(snaps) > 0 {
		return sanitizer.SanitizeSnapshots(snaps)
	}
	if ctx.Err() == nil {
		snaps, err := s.Snapshots.Latest(ctx, canonicalKey)
		if err != nil {
			s.cfg.Log.Warn("Snapshot store unavailable", "canonical_key", canonicalKey, "error", err)
		} else if len(snaps) > 0 {
			return sanitizer.SanitizeSnapshots(snaps)
		}
	}
	return fallback
}

func (s *bargainService) signals(ctx context.Context, user model.UserProfile, canonicalKey string, device string) offerability.Signals {
	sig := offerability.Signals{
		Tier:       user.Tier,
		Style:      user.Style,
		DeviceType: user.DeviceType,
	}
	if device != "" {
		sig.DeviceType = device
	}
	if sig.Style == "" && user.ID != "" {
		if f, ok := s.Cache.UserFeatures(ctx, user.ID); ok {
			sig.Style = f.Style
		}
	}
	if f, ok := s.Cache.ProductFeatures(ctx, canonicalKey); ok {
		sig.Popularity = f.Popularity
	}
	return sig
}

func (s *bargainService) issueCapsule(session *model.Session, round int, price float64, now time.Time) (string, error) {
	token, err := s.Signer.Issue(capsule.Claims{
		SessionID:     session.ID,
		Round:         round,
		PriceCents:    offerability.Cents(price),
		Currency:      session.Product.Currency,
		PolicyVersion: session.PolicyVersion,
	}, now)
	if err != nil {
		return "", apperrors.Internal("Failed to sign offer", err)
	}
	return token, nil
}

// guardNeverLoss is the last line before a price leaves the engine.
func (s *bargainService) guardNeverLoss(sessionID string, price, floor float64) bool {
	if offerability.Cents(price) >= offerability.Cents(floor) {
		return true
	}
	s.cfg.Log.Error("Offer below cost floor blocked",
		"alert", alertNeverLoss,
		"session_id", sessionID,
		"price", price,
	)
	s.emit(context.Background(), events.New(events.NeverLossViolation, sessionID, map[string]any{"price": price}, s.Clock.Now()))
	return false
}

func (s *bargainService) validationError(message string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return apperrors.Validation(message, verrs.Details())
	}
	return apperrors.Validation(message, map[string]any{"error": err.Error()})
}

// emit publishes inline so a session's events keep their order. The
// caller's deadline does not apply; WriteTimeout bounds the publish.
func (s *bargainService) emit(ctx context.Context, event *model.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
	defer cancel()
	if err := s.Publisher.Publish(ctx, event); err != nil {
		s.cfg.Log.Warn("Failed to publish event", "event_type", event.Name, "session_id", event.SessionID, "error", err)
	}
}

func (s *bargainService) audit(ctx context.Context, session *model.Session, round *model.Round) {
	entry := repository.NegotiationLog{
		RoundID:       round.ID,
		SessionID:     session.ID,
		RoundIndex:    round.Index,
		ProductType:   string(session.Product.Type),
		UserID:        session.User.ID,
		UserOffer:     round.UserOffer,
		Decision:      string(round.Decision),
		CounterPrice:  round.CounterPrice,
		AcceptProb:    round.AcceptProb,
		PolicyVersion: session.PolicyVersion,
		Reason:        round.Reason,
		Degraded:      round.Degraded,
		LogTime:       round.CreatedAt,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
		defer cancel()
		if err := s.NegotiationLog.Insert(ctx, entry); err != nil {
			s.cfg.Log.Warn("Failed to mirror negotiation round", "session_id", session.ID, "round", round.Index, "error", err)
		}
	}()
}

func priceRef(v float64) *float64 {
	return &v
}

func roundPct(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func describeProduct(p model.Product) string {
	if p.CanonicalKey == "" {
		return string(p.Type)
	}
	return fmt.Sprintf("%s %s", p.Type, p.CanonicalKey)
}
