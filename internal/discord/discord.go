// Package discord adapts the discordgo gateway to the relay's ports:
// connecting a bot identity, streaming inbound message events through an
// explicit FIFO, fetching channel history, and sending replies. Failures
// are classified into a closed error-kind set at this boundary.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/gorilla/websocket"

	"hivebot/internal/history"
)

// ErrAuthFailed marks an invalid or revoked bot credential. It is the
// fatal error class: it terminates the owning session driver instead of
// being retried.
var ErrAuthFailed = errors.New("gateway authentication failed")

// eventBuffer bounds the inbound FIFO so a stalled processing loop cannot
// grow memory without bound; overflow drops the newest event with a log.
const eventBuffer = 256

// InboundEvent is one chat message observed by a session. Consumed once,
// never stored.
type InboundEvent struct {
	ChannelID  string
	MessageID  string
	AuthorID   string
	AuthorName string
	AuthorBot  bool
	Content    string
	DM         bool
	Mentioned  bool
}

// Session wraps one bot identity's gateway connection.
type Session struct {
	dg     *discordgo.Session
	log    *slog.Logger
	events chan InboundEvent

	// discordgo dispatches handlers in their own goroutines, so sends can
	// race Close; the mutex orders them against the channel close.
	mu     sync.Mutex
	closed bool
}

// New creates an unconnected session for the given bot token.
func New(token string, log *slog.Logger) (*Session, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	s := &Session{
		dg:     dg,
		log:    log.With("component", "discord_gateway"),
		events: make(chan InboundEvent, eventBuffer),
	}
	dg.AddHandler(s.onMessageCreate)

	return s, nil
}

// Connect opens the gateway connection. An invalid credential is reported
// as ErrAuthFailed.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.dg.Open(); err != nil {
		return classify(fmt.Errorf("failed to open gateway connection: %w", err))
	}
	if ctx.Err() != nil {
		_ = s.dg.Close()
		return ctx.Err()
	}

	s.log.Info("Gateway connection established",
		"user_id", s.SelfID(), "username", s.SelfName())
	return nil
}

// Close shuts the gateway connection down and ends the event stream. Safe
// to call more than once; late handler dispatches after Close are dropped.
func (s *Session) Close() error {
	err := s.dg.Close()

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	s.mu.Unlock()

	return err
}

// Events returns the inbound message FIFO. Events arrive in gateway order;
// the driver consumes them one at a time.
func (s *Session) Events() <-chan InboundEvent {
	return s.events
}

// SelfID returns the connected bot user's id, or "" before Connect.
func (s *Session) SelfID() string {
	if s.dg.State == nil || s.dg.State.User == nil {
		return ""
	}
	return s.dg.State.User.ID
}

// SelfName returns the connected bot user's username, or "" before Connect.
func (s *Session) SelfName() string {
	if s.dg.State == nil || s.dg.State.User == nil {
		return ""
	}
	return s.dg.State.User.Username
}

func (s *Session) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}

	mentioned := false
	for _, u := range m.Mentions {
		if u.ID == s.SelfID() {
			mentioned = true
			break
		}
	}

	ev := InboundEvent{
		ChannelID:  m.ChannelID,
		MessageID:  m.ID,
		AuthorID:   m.Author.ID,
		AuthorName: m.Author.Username,
		AuthorBot:  m.Author.Bot,
		Content:    m.Content,
		DM:         m.GuildID == "",
		Mentioned:  mentioned,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.events <- ev:
	default:
		s.log.Warn("Inbound event buffer full, dropping event",
			"channel_id", ev.ChannelID, "message_id", ev.MessageID)
	}
}

// RecentMessages fetches up to limit messages from a channel and returns
// them oldest-first, ready for the history formatter.
func (s *Session) RecentMessages(ctx context.Context, channelID string, limit int) ([]history.ChannelMessage, error) {
	raw, err := s.dg.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify(fmt.Errorf("failed to fetch messages for channel %s: %w", channelID, err))
	}

	// Platform order is newest-first.
	msgs := make([]history.ChannelMessage, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		m := raw[i]
		if m == nil || m.Author == nil {
			continue
		}
		msgs = append(msgs, history.ChannelMessage{
			AuthorID:   m.Author.ID,
			AuthorName: m.Author.Username,
			Content:    m.Content,
			FromBot:    m.Author.Bot,
			System:     m.Type != discordgo.MessageTypeDefault && m.Type != discordgo.MessageTypeReply,
		})
	}
	return msgs, nil
}

// SendReply sends text as a threaded reply to the triggering message.
func (s *Session) SendReply(ctx context.Context, channelID, messageID, text string) error {
	ref := &discordgo.MessageReference{ChannelID: channelID, MessageID: messageID}
	if _, err := s.dg.ChannelMessageSendReply(channelID, text, ref, discordgo.WithContext(ctx)); err != nil {
		return classify(fmt.Errorf("failed to send reply in channel %s: %w", channelID, err))
	}
	return nil
}

// SendMessage sends a plain message to a channel.
func (s *Session) SendMessage(ctx context.Context, channelID, text string) error {
	if _, err := s.dg.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx)); err != nil {
		return classify(fmt.Errorf("failed to send message to channel %s: %w", channelID, err))
	}
	return nil
}

// Typing triggers the typing indicator for a channel.
func (s *Session) Typing(ctx context.Context, channelID string) error {
	if err := s.dg.ChannelTyping(channelID, discordgo.WithContext(ctx)); err != nil {
		return classify(fmt.Errorf("failed to send typing indicator to channel %s: %w", channelID, err))
	}
	return nil
}

// SetUsername updates the bot account's username. Rate limited by the
// platform; callers treat failure as cosmetic.
func (s *Session) SetUsername(name string) error {
	if s.SelfName() == name {
		return nil
	}
	if _, err := s.dg.UserUpdate(name, ""); err != nil {
		return classify(fmt.Errorf("failed to update username: %w", err))
	}
	return nil
}

// classify maps transport errors onto the closed error-kind set. Credential
// failures surface either as REST 401 responses or as the gateway closing
// with the authentication-failed code during identify.
func classify(err error) error {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code == 4004 {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	return err
}
