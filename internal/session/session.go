// Package session drives one bot identity's full lifecycle: connect,
// ready-time side effects, and the ordered inbound processing loop. The
// Swarm runs many identities concurrently with staggered startups.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"hivebot/internal/config"
	"hivebot/internal/discord"
	"hivebot/internal/retry"
	"hivebot/internal/router"
)

// introStaggerMax bounds the randomized pause before the introductory
// messages, so several bots coming up together do not post in lockstep.
const introStaggerMax = 5 * time.Second

// Driver owns one bot identity's session lifecycle.
type Driver struct {
	bot config.BotConfig
	cfg *config.Config
	gen router.Generator
	log *slog.Logger
}

// NewDriver creates a driver for one identity. The generator is shared
// across identities so that per-model gating spans the whole process.
func NewDriver(bot config.BotConfig, cfg *config.Config, gen router.Generator, log *slog.Logger) *Driver {
	return &Driver{
		bot: bot,
		cfg: cfg,
		gen: gen,
		log: log.With("component", "session_driver", "bot", bot.Name),
	}
}

// Run connects the identity and processes inbound events one at a time, in
// arrival order, until the context is cancelled or a fatal credential
// error occurs. Recoverable per-event errors are logged and the loop
// continues.
func (d *Driver) Run(ctx context.Context) error {
	// Checked again here so a driver constructed outside the validated
	// config path still fails before any network attempt.
	if config.IsPlaceholderToken(d.bot.Token) {
		return fmt.Errorf("%w: bot %q has an empty or placeholder token", discord.ErrAuthFailed, d.bot.Name)
	}

	gw, err := discord.New(d.bot.Token, d.log)
	if err != nil {
		return err
	}

	if err := gw.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := gw.Close(); err != nil {
			d.log.Warn("Error closing gateway session", "error", err)
		}
	}()

	fatalCh := make(chan error, 1)
	onFatal := func(err error) {
		select {
		case fatalCh <- err:
		default:
		}
	}

	// The scheduler's re-attempt closure needs the policy and the policy
	// needs the scheduler; the late-bound pointer breaks the cycle.
	var policy *router.Policy
	sched, err := retry.New(ctx, d.cfg.Retry, func(ctx context.Context, channelID string) error {
		return policy.Retry(ctx, channelID)
	}, onFatal, d.log)
	if err != nil {
		return fmt.Errorf("failed to create retry scheduler: %w", err)
	}
	defer func() {
		if err := sched.Stop(); err != nil {
			d.log.Warn("Error stopping retry scheduler", "error", err)
		}
	}()

	policy = router.New(d.bot, d.cfg.Routing, gw.SelfID(), gw, d.gen, sched, d.log)

	go d.announceReady(ctx, gw, policy)

	d.log.Info("Processing loop started", "open_channels", len(d.bot.OpenChannels))
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-fatalCh:
			return err
		case ev, ok := <-gw.Events():
			if !ok {
				return nil
			}
			if err := policy.Handle(ctx, ev); err != nil {
				if errors.Is(err, discord.ErrAuthFailed) {
					return err
				}
				if ctx.Err() != nil {
					return nil
				}
				d.log.Error("Event processing failed, continuing",
					"channel_id", ev.ChannelID, "error", err)
			}
		}
	}
}

// announceReady performs the one-time ready side effects: best-effort
// cosmetic setup, then one introductory message per open channel after a
// short randomized stagger. Failures here are never fatal.
func (d *Driver) announceReady(ctx context.Context, gw *discord.Session, policy *router.Policy) {
	if err := gw.SetUsername(d.bot.Model); err != nil {
		d.log.Warn("Cosmetic username update failed", "error", err)
	}

	if len(d.bot.OpenChannels) == 0 {
		return
	}

	timer := time.NewTimer(rand.N(introStaggerMax))
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return
	}

	for _, channelID := range d.bot.OpenChannels {
		if ctx.Err() != nil {
			return
		}
		if err := policy.Introduce(ctx, channelID); err != nil {
			d.log.Warn("Failed to send introduction", "channel_id", channelID, "error", err)
			continue
		}
		d.log.Info("Sent introduction", "channel_id", channelID)
	}
}

// Swarm runs every configured identity concurrently and independently.
type Swarm struct {
	cfg *config.Config
	gen router.Generator
	log *slog.Logger
}

// NewSwarm creates the multi-identity orchestrator around a shared
// generation client.
func NewSwarm(cfg *config.Config, gen router.Generator, log *slog.Logger) *Swarm {
	return &Swarm{cfg: cfg, gen: gen, log: log.With("component", "swarm")}
}

// Run launches one driver per identity with a fixed startup stagger and
// blocks until all of them return. A fatal error in one identity stops
// only that identity's loop; Run reports the failures once everything has
// wound down.
func (s *Swarm) Run(ctx context.Context) error {
	var g errgroup.Group

	var mu sync.Mutex
	var failures []error

	for i, bot := range s.cfg.Bots {
		stagger := time.Duration(i) * s.cfg.Session.StartupStagger
		driver := NewDriver(bot, s.cfg, s.gen, s.log)
		name := bot.Name

		g.Go(func() error {
			if stagger > 0 {
				timer := time.NewTimer(stagger)
				defer timer.Stop()
				select {
				case <-timer.C:
				case <-ctx.Done():
					return nil
				}
			}

			s.log.Info("Starting bot identity", "bot", name)
			if err := driver.Run(ctx); err != nil {
				s.log.Error("Bot identity terminated", "bot", name, "error", err)
				mu.Lock()
				failures = append(failures, fmt.Errorf("bot %s: %w", name, err))
				mu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()

	if len(failures) > 0 {
		return errors.Join(failures...)
	}
	return nil
}
