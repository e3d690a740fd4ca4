package service

import (
	"context"
	"time"

	"bargain/internal/bargain/repository"
	"bargain/internal/events"
	"bargain/pkg/clock"
	"bargain/pkg/logger"
)

const defaultSweepBatch = 200

// Sweeper moves idle ACTIVE sessions past their expiry to EXPIRED. It runs
// independently of request handling.
type Sweeper struct {
	sessions  repository.SessionRepository
	publisher events.Publisher
	clock     clock.Clock
	interval  time.Duration
	batch     int
	timeout   time.Duration
	log       *logger.Logger
}

func NewSweeper(sessions repository.SessionRepository, publisher events.Publisher, clk clock.Clock, interval, timeout time.Duration, log *logger.Logger) *Sweeper {
	if timeout <= 0 {
		timeout = interval
	}
	return &Sweeper{
		sessions:  sessions,
		publisher: publisher,
		clock:     clk,
		interval:  interval,
		batch:     defaultSweepBatch,
		timeout:   timeout,
		log:       log,
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("Session sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Session sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.log.Error("Session sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce expires one batch and reports how many sessions it closed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := s.clock.Now()
	candidates, err := s.sessions.FindExpired(ctx, now, s.batch)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, session := range candidates {
		ok, err := s.sessions.MarkExpired(ctx, session.ID, now)
		if err != nil {
			s.log.Warn("Failed to expire session", "session_id", session.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		expired++
		event := events.New(events.SessionExpired, session.ID, map[string]any{
			"round":            session.Round,
			"last_activity_at": session.LastActivityAt,
		}, now)
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.log.Warn("Failed to publish expiry", "session_id", session.ID, "error", err)
		}
	}
	if expired > 0 {
		s.log.Info("Expired idle sessions", "count", expired)
	}
	return expired, nil
}
