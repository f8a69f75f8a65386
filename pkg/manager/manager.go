// Package manager routes client actions to rooms and reclaims rooms nobody
// uses anymore.
package manager

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tecu23/chessroom/pkg/chess"
	"github.com/tecu23/chessroom/pkg/config"
	"github.com/tecu23/chessroom/pkg/events"
	"github.com/tecu23/chessroom/pkg/messages"
	"github.com/tecu23/chessroom/pkg/room"
	"github.com/tecu23/chessroom/pkg/rules"
)

// Store is the room storage the manager works against
type Store interface {
	CreateIfMissing(id string, build func() *room.Session) (*room.Session, bool)
	Get(id string) (*room.Session, error)
	ListPublic() []messages.RoomSummary
	All() []*room.Session
	Delete(id string, s *room.Session) bool
	Count() int
}

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateRoomID checks the room id format clients may use
func ValidateRoomID(id string) error {
	if !roomIDPattern.MatchString(id) {
		return room.ErrInvalidRoomID
	}
	return nil
}

// JoinParams is everything a JOIN carries once the transport resolved identity
type JoinParams struct {
	RoomID   string
	Identity string
	Conn     room.ConnID
	Color    chess.Color
	// Initial and Increment only matter when the join creates the room
	Initial   time.Duration
	Increment time.Duration
	Private   bool
}

// Manager coordinates rooms
type Manager struct {
	store     Store
	oracle    rules.Oracle
	publisher *events.Publisher
	cfg       config.RoomConfig
	logger    *zap.Logger
	now       func() time.Time

	mu          sync.RWMutex
	broadcaster room.Broadcaster

	finished atomic.Int64
}

// Option customises a Manager
type Option func(*Manager)

// WithClock replaces time.Now for sessions and sweeps
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager over store
func NewManager(
	store Store,
	oracle rules.Oracle,
	publisher *events.Publisher,
	cfg config.RoomConfig,
	logger *zap.Logger,
	opts ...Option,
) *Manager {
	m := &Manager{
		store:     store,
		oracle:    oracle,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.setupEventHandlers()
	return m
}

// setupEventHandlers sets up event handlers for the room manager
func (m *Manager) setupEventHandlers() {
	if m.publisher == nil {
		return
	}

	m.publisher.Subscribe(events.EventGameFinished, func(events.Event) {
		m.finished.Add(1)
	})
}

// AttachBroadcaster sets the transport used by rooms created from now on
func (m *Manager) AttachBroadcaster(b room.Broadcaster) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.broadcaster = b
}

func (m *Manager) newSession(p JoinParams) *room.Session {
	initial, increment := m.cfg.ClampTimeControl(p.Initial, p.Increment)

	m.mu.RLock()
	b := m.broadcaster
	m.mu.RUnlock()

	return room.NewSession(p.RoomID, room.Config{
		TimeControl: chess.TimeControl{Initial: initial, Increment: increment},
		Preference:  p.Color,
		Private:     p.Private,
	}, room.Deps{
		Oracle:      m.oracle,
		Broadcaster: b,
		Publisher:   m.publisher,
		Logger:      m.logger,
		Now:         m.now,
		Options: room.Options{
			ChatCap:      m.cfg.ChatCap,
			ChatMaxLen:   m.cfg.ChatMaxLength,
			ChatInterval: m.cfg.ChatInterval,
			TickInterval: m.cfg.TickInterval,
			SyncEvery:    m.cfg.SyncEvery,
		},
	})
}

// Join enters the room, creating it when missing
func (m *Manager) Join(p JoinParams) (messages.JoinedPayload, error) {
	if err := ValidateRoomID(p.RoomID); err != nil {
		return messages.JoinedPayload{}, err
	}

	// A room reclaimed between lookup and join is replaced once.
	for attempt := 0; attempt < 2; attempt++ {
		s, created := m.store.CreateIfMissing(p.RoomID, func() *room.Session {
			return m.newSession(p)
		})
		if created {
			m.logger.Info("room created",
				zap.String("room_id", p.RoomID),
				zap.Bool("private", p.Private))
			m.publish(events.EventRoomCreated, p.RoomID, s.Summary())
		}

		joined, err := s.Join(room.JoinRequest{Identity: p.Identity, Conn: p.Conn})
		if errors.Is(err, room.ErrRoomClosed) {
			m.store.Delete(p.RoomID, s)
			continue
		}
		return joined, err
	}

	return messages.JoinedPayload{}, room.ErrRoomNotFound
}

func (m *Manager) lookup(roomID string) (*room.Session, error) {
	if err := ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	return m.store.Get(roomID)
}

// Move submits a move; it never creates a room
func (m *Manager) Move(roomID, identity string, mv rules.Move) (int, error) {
	s, err := m.lookup(roomID)
	if err != nil {
		return 0, err
	}
	return s.Move(identity, mv)
}

// Resign concedes the game in roomID
func (m *Manager) Resign(roomID, identity string) error {
	s, err := m.lookup(roomID)
	if err != nil {
		return err
	}
	return s.Resign(identity)
}

// Chat posts a chat line to roomID
func (m *Manager) Chat(roomID, identity string, conn room.ConnID, text string) (messages.ChatEntry, error) {
	s, err := m.lookup(roomID)
	if err != nil {
		return messages.ChatEntry{}, err
	}
	return s.Chat(identity, conn, text)
}

// Leave detaches conn from a single room
func (m *Manager) Leave(roomID string, conn room.ConnID) error {
	s, err := m.lookup(roomID)
	if err != nil {
		return err
	}
	if !s.Disconnect(conn) {
		return room.ErrNotInRoom
	}
	return nil
}

// DisconnectAll detaches a closing connection from every room it joined
func (m *Manager) DisconnectAll(conn room.ConnID, roomIDs []string) {
	for _, id := range roomIDs {
		s, err := m.store.Get(id)
		if err != nil {
			continue
		}
		s.Disconnect(conn)
	}
}

// ListRooms returns the public lobby
func (m *Manager) ListRooms() []messages.RoomSummary {
	return m.store.ListPublic()
}

// RoomCount is the number of live rooms
func (m *Manager) RoomCount() int {
	return m.store.Count()
}

// FinishedGames counts games finished since start
func (m *Manager) FinishedGames() int64 {
	return m.finished.Load()
}

// Sweep reclaims idle and long-finished rooms and returns how many it removed
func (m *Manager) Sweep(now time.Time) int {
	removed := 0
	for _, s := range m.store.All() {
		if !s.Reclaim(now, m.cfg.IdleTTL, m.cfg.FinishedTTL) {
			continue
		}
		if m.store.Delete(s.ID(), s) {
			removed++
		}
	}

	if removed > 0 {
		m.logger.Info("rooms reclaimed",
			zap.Int("removed", removed),
			zap.Int("remaining", m.store.Count()))
	}
	return removed
}

// RunCollector sweeps on the configured interval until ctx is done
func (m *Manager) RunCollector(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Sweep(m.now())
		}
	}
}

// Shutdown stops every clock task and empties the store
func (m *Manager) Shutdown() {
	for _, s := range m.store.All() {
		s.Close()
		m.store.Delete(s.ID(), s)
	}
	m.logger.Info("all rooms closed")
}

func (m *Manager) publish(t events.EventType, roomID string, payload any) {
	if m.publisher == nil {
		return
	}
	m.publisher.Publish(events.Event{Type: t, RoomID: roomID, Payload: payload})
}
