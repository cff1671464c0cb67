// Package router decides, per inbound message event, whether a bot
// identity responds, with what conversational context, and after what
// delay, then drives the generate-sanitize-send pipeline.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"hivebot/internal/config"
	"hivebot/internal/discord"
	"hivebot/internal/genapi"
	"hivebot/internal/history"
	"hivebot/internal/sanitize"
)

// ErrNoReply marks a pipeline pass that produced nothing to send. The
// retry scheduler treats it like any other recoverable failure.
var ErrNoReply = errors.New("no reply produced")

// ackReply answers a bare direct address with no residual text, bypassing
// generation entirely.
const ackReply = "Hi! What can I do for you?"

// fallbackIntro is sent when the generated introduction comes back empty.
const fallbackIntro = "🤖 I'm online!"

// Gateway is the slice of the chat platform the policy needs.
type Gateway interface {
	RecentMessages(ctx context.Context, channelID string, limit int) ([]history.ChannelMessage, error)
	SendReply(ctx context.Context, channelID, messageID, text string) error
	SendMessage(ctx context.Context, channelID, text string) error
	Typing(ctx context.Context, channelID string) error
}

// Generator produces a completion for a context window. Implemented by the
// throttled generation client.
type Generator interface {
	Generate(ctx context.Context, modelID string, msgs []genapi.Message) (string, error)
}

// Retrier schedules bounded re-attempts for a channel.
type Retrier interface {
	Schedule(channelID, reason string)
	Clear(channelID string)
}

// Classification is the routing category of one inbound event. An event
// matching none of the three is out of scope.
type Classification struct {
	DirectAddress  bool
	OpenChannel    bool
	PrivateChannel bool
}

func (c Classification) inScope() bool {
	return c.DirectAddress || c.OpenChannel || c.PrivateChannel
}

// Policy routes inbound events for a single bot identity.
type Policy struct {
	bot     config.BotConfig
	cfg     config.RoutingConfig
	selfID  string
	gateway Gateway
	gen     Generator
	retries Retrier
	log     *slog.Logger
}

// New creates the routing policy for one connected identity. selfID is the
// identity's platform user id, known only after the gateway session opens.
func New(bot config.BotConfig, cfg config.RoutingConfig, selfID string, gw Gateway, gen Generator, retries Retrier, log *slog.Logger) *Policy {
	return &Policy{
		bot:     bot,
		cfg:     cfg,
		selfID:  selfID,
		gateway: gw,
		gen:     gen,
		retries: retries,
		log:     log.With("component", "router", "bot", bot.Name),
	}
}

// Classify determines the routing category of an event.
func (p *Policy) Classify(ev discord.InboundEvent) Classification {
	return Classification{
		DirectAddress:  ev.Mentioned,
		OpenChannel:    p.bot.IsOpenChannel(ev.ChannelID),
		PrivateChannel: ev.DM,
	}
}

// Handle routes one inbound event to a terminal state: respond or ignore.
// It returns an error only for the fatal credential class or a cancelled
// context; everything else is handled locally (log, abandon, or schedule a
// retry).
func (p *Policy) Handle(ctx context.Context, ev discord.InboundEvent) error {
	// A bot must never process its own output as input.
	if ev.AuthorID == p.selfID {
		p.log.DebugContext(ctx, "Ignoring own message", "channel_id", ev.ChannelID)
		return nil
	}

	cls := p.Classify(ev)
	if !cls.inScope() {
		p.log.DebugContext(ctx, "Event out of scope, ignoring",
			"channel_id", ev.ChannelID, "author_id", ev.AuthorID)
		return nil
	}

	if strings.HasPrefix(strings.TrimSpace(ev.Content), "!") {
		p.log.DebugContext(ctx, "Ignoring command message", "channel_id", ev.ChannelID)
		return nil
	}

	// Open-channel chatter gets human pacing; direct addresses and private
	// conversations are answered immediately.
	if cls.OpenChannel && !cls.DirectAddress && !cls.PrivateChannel {
		if err := p.pace(ctx); err != nil {
			return err
		}
	}

	msgs, err := p.buildContext(ctx, ev, cls)
	if err != nil {
		p.log.ErrorContext(ctx, "Failed to build context, abandoning event",
			"channel_id", ev.ChannelID, "error", err)
		return nil
	}
	if msgs == nil {
		// Bare address with nothing left after stripping the mention.
		if err := p.gateway.SendReply(ctx, ev.ChannelID, ev.MessageID, ackReply); err != nil {
			if errors.Is(err, discord.ErrAuthFailed) {
				return err
			}
			p.log.ErrorContext(ctx, "Failed to send acknowledgment", "channel_id", ev.ChannelID, "error", err)
		}
		return nil
	}

	if err := p.gateway.Typing(ctx, ev.ChannelID); err != nil {
		p.log.DebugContext(ctx, "Typing indicator failed", "channel_id", ev.ChannelID, "error", err)
	}

	text, err := p.generate(ctx, msgs)
	switch {
	case err == nil:
	case errors.Is(err, genapi.ErrTimeout):
		p.retries.Schedule(ev.ChannelID, "timeout")
		return nil
	default:
		return err
	}

	if text == "" {
		p.retries.Schedule(ev.ChannelID, "empty")
		return nil
	}

	if err := p.gateway.SendReply(ctx, ev.ChannelID, ev.MessageID, text); err != nil {
		if errors.Is(err, discord.ErrAuthFailed) {
			return err
		}
		p.log.ErrorContext(ctx, "Failed to send reply", "channel_id", ev.ChannelID, "error", err)
		return nil
	}

	p.log.InfoContext(ctx, "Sent reply", "channel_id", ev.ChannelID, "length", len(text))
	p.retries.Clear(ev.ChannelID)
	return nil
}

// Retry regenerates a reply for a channel from fresh history, ignoring the
// original triggering message. Used by the retry scheduler.
func (p *Policy) Retry(ctx context.Context, channelID string) error {
	cls := Classification{OpenChannel: p.bot.IsOpenChannel(channelID)}

	window, err := p.gateway.RecentMessages(ctx, channelID, p.cfg.HistoryLimit)
	if err != nil {
		return fmt.Errorf("failed to refresh history for channel %s: %w", channelID, err)
	}

	entries := history.Format(window, p.selfID, p.bot.Model, p.cfg.MaxEntryLength)
	if len(entries) == 0 {
		return ErrNoReply
	}

	msgs := make([]genapi.Message, 0, len(entries)+1)
	msgs = append(msgs, genapi.Message{Role: genapi.RoleSystem, Content: p.systemPrompt(cls)})
	msgs = append(msgs, history.ToMessages(entries)...)

	text, err := p.generate(ctx, msgs)
	if err != nil {
		return err
	}
	if text == "" {
		return ErrNoReply
	}

	if err := p.gateway.SendMessage(ctx, channelID, text); err != nil {
		return err
	}

	p.log.InfoContext(ctx, "Sent retried reply", "channel_id", channelID, "length", len(text))
	return nil
}

// Introduce posts one unsolicited greeting into a channel through the
// normal generation pipeline, degrading to a fixed notice on failure.
func (p *Policy) Introduce(ctx context.Context, channelID string) error {
	msgs := []genapi.Message{
		{Role: genapi.RoleSystem, Content: p.systemPrompt(Classification{OpenChannel: true})},
		{Role: genapi.RoleUser, Content: "You just came online. Greet the channel in one short sentence."},
	}

	text, err := p.generate(ctx, msgs)
	if err != nil || text == "" {
		if err != nil && !errors.Is(err, genapi.ErrTimeout) {
			return err
		}
		text = fallbackIntro
	}

	return p.gateway.SendMessage(ctx, channelID, text)
}

// buildContext assembles the generation input. A nil, nil return means the
// event should be answered with the fixed acknowledgment.
func (p *Policy) buildContext(ctx context.Context, ev discord.InboundEvent, cls Classification) ([]genapi.Message, error) {
	var entries []history.Entry

	if cls.OpenChannel || cls.PrivateChannel {
		window, err := p.gateway.RecentMessages(ctx, ev.ChannelID, p.cfg.HistoryLimit)
		if err != nil {
			return nil, err
		}
		entries = history.Format(window, p.selfID, p.bot.Model, p.cfg.MaxEntryLength)
	}

	if len(entries) == 0 {
		stripped := StripAddress(ev.Content, p.selfID)
		if stripped == "" {
			if cls.DirectAddress {
				return nil, nil
			}
			return nil, fmt.Errorf("empty context window for channel %s", ev.ChannelID)
		}
		entries = []history.Entry{{
			Role:    genapi.RoleUser,
			Content: stripped,
			Speaker: ev.AuthorName,
		}}
	}

	msgs := make([]genapi.Message, 0, len(entries)+1)
	msgs = append(msgs, genapi.Message{Role: genapi.RoleSystem, Content: p.systemPrompt(cls)})
	msgs = append(msgs, history.ToMessages(entries)...)
	return msgs, nil
}

// generate runs the backend call and sanitizes the output.
func (p *Policy) generate(ctx context.Context, msgs []genapi.Message) (string, error) {
	raw, err := p.gen.Generate(ctx, p.bot.Model, msgs)
	if err != nil {
		return "", err
	}
	return sanitize.Sanitize(raw, p.bot.Model, p.cfg.MaxReplyLength), nil
}

func (p *Policy) systemPrompt(cls Classification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a Discord chat bot backed by the %s model.\n", p.bot.Name, p.bot.Model)
	b.WriteString(p.bot.Personality)
	b.WriteString("\nConversation history is shown with \"[speaker]:\" labels; never prefix your own replies with a label.")

	if cls.PrivateChannel || (cls.DirectAddress && !cls.OpenChannel) {
		b.WriteString("\nThis is a private conversation: reply concisely and personally.")
	} else {
		b.WriteString("\nThis is a busy group channel: keep replies terse and use Discord markdown where it helps.")
	}

	return b.String()
}

// pace applies the randomized open-channel delay, honoring cancellation.
func (p *Policy) pace(ctx context.Context) error {
	if p.cfg.OpenDelayMax <= 0 {
		return nil
	}

	delay := p.cfg.OpenDelayMin
	if p.cfg.OpenDelayMax > p.cfg.OpenDelayMin {
		delay += rand.N(p.cfg.OpenDelayMax - p.cfg.OpenDelayMin)
	}

	p.log.Debug("Delaying open-channel reply", "delay", delay)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StripAddress removes mention tokens for the given user id from message
// text, leaving the residual prompt.
func StripAddress(content, selfID string) string {
	content = strings.ReplaceAll(content, "<@"+selfID+">", "")
	content = strings.ReplaceAll(content, "<@!"+selfID+">", "")
	return strings.TrimSpace(content)
}
