// Package retry schedules bounded, jittered re-attempts at producing a
// reply for a channel after a failed or empty generation. One scheduler
// instance serves one bot identity; state is scoped per channel and never
// shared across identities.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"hivebot/internal/config"
	"hivebot/internal/discord"
)

// Attempt regenerates and sends a reply for a channel using fresh history.
// A nil return clears the channel's retry state; discord.ErrAuthFailed
// propagates as fatal; any other error triggers another bounded retry.
type Attempt func(ctx context.Context, channelID string) error

type state struct {
	attempts int
	pending  bool
}

// Scheduler owns the per-channel retry state and the one-shot timer jobs.
type Scheduler struct {
	log     *slog.Logger
	cfg     config.RetryConfig
	sched   gocron.Scheduler
	attempt Attempt
	onFatal func(error)
	ctx     context.Context

	mu     sync.Mutex
	states map[string]*state
}

// New creates and starts a retry scheduler for one bot identity. ctx bounds
// every re-attempt; onFatal receives credential errors that must terminate
// the owning session driver.
func New(ctx context.Context, cfg config.RetryConfig, attempt Attempt, onFatal func(error), log *slog.Logger) (*Scheduler, error) {
	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		log:     log.With("component", "retry_scheduler"),
		cfg:     cfg,
		sched:   gs,
		attempt: attempt,
		onFatal: onFatal,
		ctx:     ctx,
		states:  make(map[string]*state),
	}
	gs.Start()
	return s, nil
}

// Stop shuts the scheduler down, waiting for a running re-attempt.
func (s *Scheduler) Stop() error {
	return s.sched.Shutdown()
}

// Schedule registers one delayed re-attempt for the channel. Idempotent
// while a timer is pending; past the attempt cap it only logs.
func (s *Scheduler) Schedule(channelID, reason string) {
	s.mu.Lock()

	st, ok := s.states[channelID]
	if !ok {
		st = &state{}
		s.states[channelID] = st
	}

	if st.pending {
		s.mu.Unlock()
		s.log.Debug("Retry already pending, ignoring", "channel_id", channelID, "reason", reason)
		return
	}
	if st.attempts >= s.cfg.MaxAttempts {
		s.mu.Unlock()
		s.log.Warn("Retry cap reached, giving up on channel",
			"channel_id", channelID, "attempts", st.attempts, "reason", reason)
		return
	}

	st.attempts++
	st.pending = true
	attempt := st.attempts
	s.mu.Unlock()

	delay := s.jitter()
	_, err := s.sched.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(time.Now().Add(delay))),
		gocron.NewTask(s.run, channelID),
		gocron.WithName("retry-"+channelID),
	)
	if err != nil {
		s.log.Error("Failed to schedule retry job", "channel_id", channelID, "error", err)
		s.mu.Lock()
		st.pending = false
		st.attempts--
		s.mu.Unlock()
		return
	}

	s.log.Info("Scheduled reply retry",
		"channel_id", channelID, "attempt", attempt, "delay", delay, "reason", reason)
}

// Clear drops the channel's retry state after a successful reply.
func (s *Scheduler) Clear(channelID string) {
	s.mu.Lock()
	delete(s.states, channelID)
	s.mu.Unlock()
}

// Pending reports whether a retry timer is currently armed for the channel.
func (s *Scheduler) Pending(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[channelID]
	return ok && st.pending
}

func (s *Scheduler) run(channelID string) {
	s.mu.Lock()
	if st, ok := s.states[channelID]; ok {
		st.pending = false
	}
	s.mu.Unlock()

	if s.ctx.Err() != nil {
		return
	}

	err := s.attempt(s.ctx, channelID)
	if err == nil {
		s.log.Info("Retry attempt succeeded", "channel_id", channelID)
		s.Clear(channelID)
		return
	}

	if errors.Is(err, discord.ErrAuthFailed) {
		s.log.Error("Fatal credential error during retry", "channel_id", channelID, "error", err)
		s.onFatal(err)
		return
	}

	s.log.Warn("Retry attempt failed", "channel_id", channelID, "error", err)
	s.Schedule(channelID, "retry_failed")
}

func (s *Scheduler) jitter() time.Duration {
	if s.cfg.DelayMax <= s.cfg.DelayMin {
		return s.cfg.DelayMin
	}
	return s.cfg.DelayMin + rand.N(s.cfg.DelayMax-s.cfg.DelayMin)
}
