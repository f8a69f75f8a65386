package room

import (
	"html"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tecu23/chessroom/pkg/messages"
)

// Chat appends a line to the room log and relays it to everyone in the
// room, sender included. Players and spectators may both chat.
func (s *Session) Chat(identity string, conn ConnID, text string) (messages.ChatEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return messages.ChatEntry{}, ErrRoomClosed
	}

	role := RoleSpectator
	if s.slotFor(identity) != nil {
		role = RolePlayer
	} else if _, ok := s.spectators[conn]; !ok {
		return messages.ChatEntry{}, ErrNotInRoom
	}

	text = sanitizeChat(text, s.opts.ChatMaxLen)
	if text == "" {
		return messages.ChatEntry{}, ErrEmptyMessage
	}

	now := s.now()
	if !s.limiterFor(identity).AllowN(now, 1) {
		return messages.ChatEntry{}, ErrRateLimited
	}

	entry := messages.ChatEntry{
		Identity: identity,
		Role:     string(role),
		Text:     text,
		SentAt:   now.UnixMilli(),
	}
	s.chat = append(s.chat, entry)
	if over := len(s.chat) - s.opts.ChatCap; over > 0 {
		n := copy(s.chat, s.chat[over:])
		clear(s.chat[n:])
		s.chat = s.chat[:n]
	}
	s.lastActivity = now

	s.logger.Debug("chat", zap.String("identity", identity), zap.Int("len", len(text)))
	s.emitToRoom(messages.EventChat, messages.ChatPayload{RoomID: s.id, Entry: entry})
	return entry, nil
}

// ChatLog returns a copy of the retained chat lines, oldest first
func (s *Session) ChatLog() []messages.ChatEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]messages.ChatEntry(nil), s.chat...)
}

func (s *Session) limiterFor(identity string) *rate.Limiter {
	l, ok := s.limiters[identity]
	if !ok {
		limit := rate.Inf
		if s.opts.ChatInterval > 0 {
			limit = rate.Every(s.opts.ChatInterval)
		}
		l = rate.NewLimiter(limit, 1)
		s.limiters[identity] = l
	}
	return l
}

// sanitizeChat drops control characters, trims, truncates to maxLen runes
// and HTML-escapes what is left.
func sanitizeChat(text string, maxLen int) string {
	text = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
	text = strings.TrimSpace(text)

	if maxLen > 0 {
		if runes := []rune(text); len(runes) > maxLen {
			text = strings.TrimSpace(string(runes[:maxLen]))
		}
	}
	return html.EscapeString(text)
}
