// Package repository stores live rooms
package repository

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/tecu23/chessroom/pkg/messages"
	"github.com/tecu23/chessroom/pkg/room"
)

// InMemoryRoomRepository is the process-local room store. The map is guarded
// here; each session guards its own state.
type InMemoryRoomRepository struct {
	rooms  map[string]*room.Session
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository(logger *zap.Logger) *InMemoryRoomRepository {
	return &InMemoryRoomRepository{
		rooms:  make(map[string]*room.Session),
		logger: logger,
	}
}

// CreateIfMissing returns the room stored under id, building and storing it
// first when absent. The bool reports whether build ran.
func (r *InMemoryRoomRepository) CreateIfMissing(id string, build func() *room.Session) (*room.Session, bool) {
	r.mu.RLock()
	s, ok := r.rooms[id]
	r.mu.RUnlock()
	if ok {
		return s, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.rooms[id]; ok {
		return s, false
	}

	s = build()
	r.rooms[id] = s
	r.logger.Debug("room stored", zap.String("room_id", id), zap.Int("rooms", len(r.rooms)))
	return s, true
}

// Get retrieves a room by ID
func (r *InMemoryRoomRepository) Get(id string) (*room.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.rooms[id]
	if !ok {
		return nil, room.ErrRoomNotFound
	}

	return s, nil
}

// ListPublic returns lobby summaries of every non-private room, ordered by id
func (r *InMemoryRoomRepository) ListPublic() []messages.RoomSummary {
	var out []messages.RoomSummary
	for _, s := range r.All() {
		if s.Private() {
			continue
		}
		out = append(out, s.Summary())
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All returns every stored room
func (r *InMemoryRoomRepository) All() []*room.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*room.Session, 0, len(r.rooms))
	for _, s := range r.rooms {
		out = append(out, s)
	}
	return out
}

// Delete removes id only while it still maps to s, so a room recreated
// under the same id after a sweep started is left alone.
func (r *InMemoryRoomRepository) Delete(id string, s *room.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.rooms[id]; !ok || cur != s {
		return false
	}
	delete(r.rooms, id)
	return true
}

// Count returns the number of stored rooms
func (r *InMemoryRoomRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}
