// Package history converts a window of raw channel messages into the
// role-tagged context list submitted to the generation backend.
package history

import (
	"strings"

	"hivebot/internal/genapi"
)

// TruncationMarker is appended to any message body cut at MaxEntryLength.
const TruncationMarker = "… [truncated]"

// ChannelMessage is one raw message fetched from the chat platform,
// oldest-first by the time it reaches Format.
type ChannelMessage struct {
	AuthorID   string
	AuthorName string
	Content    string
	FromBot    bool // authored by any bot account
	System     bool // platform-generated (joins, pins, boosts)
}

// Entry is a single role-tagged context entry.
type Entry struct {
	Role    string // genapi.RoleAssistant for this bot's own messages
	Content string
	Speaker string // display label echoed into the submitted content
}

// Format builds the context window from raw messages. Messages authored by
// selfID become assistant entries labeled with the model id; everything
// else becomes a user entry labeled with the author's display name.
//
// Dropped outright: empty or whitespace-only bodies, system messages,
// bang-prefixed commands, and messages from bots other than this identity.
// Bodies longer than maxLen are truncated with TruncationMarker appended.
// The result is deterministic for a given input window.
func Format(msgs []ChannelMessage, selfID, modelID string, maxLen int) []Entry {
	entries := make([]Entry, 0, len(msgs))

	for _, m := range msgs {
		content := strings.TrimSpace(m.Content)
		if content == "" || m.System {
			continue
		}
		if strings.HasPrefix(content, "!") {
			continue
		}
		if m.FromBot && m.AuthorID != selfID {
			continue
		}

		if maxLen > 0 {
			if r := []rune(content); len(r) > maxLen {
				content = string(r[:maxLen]) + TruncationMarker
			}
		}

		if m.AuthorID == selfID {
			entries = append(entries, Entry{
				Role:    genapi.RoleAssistant,
				Content: content,
				Speaker: modelID,
			})
			continue
		}

		entries = append(entries, Entry{
			Role:    genapi.RoleUser,
			Content: content,
			Speaker: m.AuthorName,
		})
	}

	return entries
}

// ToMessages renders entries into backend messages, embedding the speaker
// label so the model can tell participants apart. The sanitizer strips the
// convention back out of generated replies.
func ToMessages(entries []Entry) []genapi.Message {
	msgs := make([]genapi.Message, 0, len(entries))
	for _, e := range entries {
		content := e.Content
		if e.Speaker != "" {
			content = "[" + e.Speaker + "]: " + e.Content
		}
		msgs = append(msgs, genapi.Message{Role: e.Role, Content: content})
	}
	return msgs
}
