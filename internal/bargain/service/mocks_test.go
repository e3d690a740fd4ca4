package service

import (
	"context"
	"sort"
	"sync"
	"time"

	bargainerrors "bargain/internal/bargain/errors"
	"bargain/internal/bargain/repository"
	"bargain/internal/policy"
	"bargain/pkg/model"
)

type mockSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	rounds   map[string][]*model.Round
	pingErr  error
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{
		sessions: map[string]*model.Session{},
		rounds:   map[string][]*model.Round{},
	}
}

func (m *mockSessionRepo) Create(_ context.Context, session *model.Session, first *model.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *session
	m.sessions[session.ID] = &cp
	r := *first
	r.ID = "round-1"
	m.rounds[session.ID] = []*model.Round{&r}
	return nil
}

func (m *mockSessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, bargainerrors.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockSessionRepo) AppendRound(_ context.Context, sessionID string, u repository.SessionUpdate, round *model.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.Round != u.ExpectRound || s.Status != model.SessionActive {
		return bargainerrors.ErrRoundConflict
	}
	s.Round = u.Round
	s.Status = u.Status
	s.LastDecision = u.LastDecision
	s.LastPrice = u.LastPrice
	s.LastCapsule = u.LastCapsule
	s.CostFloor = u.CostFloor
	s.Degraded = u.Degraded
	s.LastActivityAt = u.LastActivityAt
	s.ExpiresAt = u.ExpiresAt
	if u.Candidates != nil {
		s.Candidates = u.Candidates
	}
	r := *round
	m.rounds[sessionID] = append(m.rounds[sessionID], &r)
	return nil
}

func (m *mockSessionRepo) MarkAccepted(_ context.Context, sessionID string, u repository.AcceptUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.Round != u.ExpectRound || s.SupplierLockID != "" || (s.Status.Terminal() && s.Status != model.SessionAccepted) {
		return bargainerrors.ErrRoundConflict
	}
	s.Status = model.SessionAccepted
	s.LastDecision = model.DecisionAccept
	s.SupplierLockID = u.SupplierLockID
	s.SupplierID = u.SupplierID
	s.LastPrice = u.LastPrice
	s.LastCapsule = u.LastCapsule
	s.LastActivityAt = u.LastActivityAt
	return nil
}

func (m *mockSessionRepo) FindExpired(_ context.Context, now time.Time, limit int) ([]*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Session
	for _, s := range m.sessions {
		if s.Status == model.SessionActive && !s.ExpiresAt.After(now) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockSessionRepo) MarkExpired(_ context.Context, sessionID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.Status != model.SessionActive || s.ExpiresAt.After(now) {
		return false, nil
	}
	s.Status = model.SessionExpired
	return true, nil
}

func (m *mockSessionRepo) Rounds(_ context.Context, sessionID string) ([]*model.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.Round(nil), m.rounds[sessionID]...), nil
}

func (m *mockSessionRepo) Ping(context.Context) error {
	return m.pingErr
}

func (m *mockSessionRepo) session(id string) model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.sessions[id]
}

type mockSnapshotRepo struct {
	mu    sync.Mutex
	snaps map[string][]model.SupplierSnapshot
}

func (m *mockSnapshotRepo) Latest(_ context.Context, key string) ([]model.SupplierSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snaps[key], nil
}

func (m *mockSnapshotRepo) Put(_ context.Context, key string, snaps []model.SupplierSnapshot, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snaps == nil {
		m.snaps = map[string][]model.SupplierSnapshot{}
	}
	m.snaps[key] = snaps
	return nil
}

type mockEventRepo struct {
	mu     sync.Mutex
	events []*model.Event
}

func (m *mockEventRepo) Insert(_ context.Context, e *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	if cp.ID == "" {
		cp.ID = "event"
	}
	m.events = append(m.events, &cp)
	return nil
}

func (m *mockEventRepo) FindBySession(_ context.Context, sessionID string, _ int) ([]*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Event
	for _, e := range m.events {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e *model.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error {
	return nil
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Name)
	}
	return out
}

type mockPolicyStore struct {
	mu   sync.Mutex
	docs map[string]*policy.Document
	cur  *policy.Document
}

func (m *mockPolicyStore) ActiveDocument(context.Context) (*policy.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return nil, policy.ErrNotFound
	}
	return m.cur, nil
}

func (m *mockPolicyStore) Document(_ context.Context, version string) (*policy.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.docs[version]; ok {
		return d, nil
	}
	return nil, policy.ErrNotFound
}

func (m *mockPolicyStore) Publish(_ context.Context, doc *policy.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs == nil {
		m.docs = map[string]*policy.Document{}
	}
	m.docs[doc.Version] = doc
	m.cur = doc
	return nil
}
