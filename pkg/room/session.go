// Package room holds the authoritative state of one game room and every
// operation that mutates it.
package room

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tecu23/chessroom/pkg/chess"
	"github.com/tecu23/chessroom/pkg/events"
	"github.com/tecu23/chessroom/pkg/messages"
	"github.com/tecu23/chessroom/pkg/rules"
)

// Deps are the collaborators a session is wired with
type Deps struct {
	Oracle      rules.Oracle
	Broadcaster Broadcaster
	Publisher   *events.Publisher // optional
	Logger      *zap.Logger
	Options     Options

	Now         func() time.Time   // defaults to time.Now
	RandomColor func() chess.Color // defaults to a fair coin
}

// Session is one room. Every exported method takes the room lock, so a
// session is the single-writer boundary for its own state.
type Session struct {
	mu sync.Mutex

	id     string
	config Config
	opts   Options

	position   rules.Position
	players    []*Slot
	spectators map[ConnID]string
	clock      *chess.Clock
	status     Status
	result     *Result

	chat     []messages.ChatEntry
	limiters map[string]*rate.Limiter

	createdAt    time.Time
	startedAt    time.Time
	lastActivity time.Time
	ticks        int

	stopClock chan struct{}
	closed    bool

	oracle      rules.Oracle
	broadcaster Broadcaster
	publisher   *events.Publisher
	logger      *zap.Logger
	now         func() time.Time
	randomColor func() chess.Color
}

// JoinRequest identifies who is joining and over which connection
type JoinRequest struct {
	Identity string
	Conn     ConnID
}

// NewSession creates a room in the waiting state
func NewSession(id string, cfg Config, deps Deps) *Session {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.RandomColor == nil {
		deps.RandomColor = randomColor
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Options.ChatCap <= 0 {
		deps.Options.ChatCap = DefaultOptions().ChatCap
	}
	if deps.Options.SyncEvery <= 0 {
		deps.Options.SyncEvery = 1
	}

	now := deps.Now()
	return &Session{
		id:           id,
		config:       cfg,
		opts:         deps.Options,
		position:     rules.Start(),
		spectators:   make(map[ConnID]string),
		clock:        chess.NewClock(cfg.TimeControl),
		status:       StatusWaiting,
		limiters:     make(map[string]*rate.Limiter),
		createdAt:    now,
		lastActivity: now,
		oracle:       deps.Oracle,
		broadcaster:  deps.Broadcaster,
		publisher:    deps.Publisher,
		logger:       deps.Logger.With(zap.String("room_id", id)),
		now:          deps.Now,
		randomColor:  deps.RandomColor,
	}
}

func randomColor() chess.Color {
	if rand.IntN(2) == 0 {
		return chess.White
	}
	return chess.Black
}

// ID returns the room id
func (s *Session) ID() string {
	return s.id
}

// Join seats the caller, reconnects them to their existing seat, or adds
// them as a spectator once both seats are taken.
func (s *Session) Join(req JoinRequest) (messages.JoinedPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return messages.JoinedPayload{}, ErrRoomClosed
	}

	now := s.now()
	s.lastActivity = now

	role := RoleSpectator
	var color chess.Color
	started := false

	if slot := s.slotFor(req.Identity); slot != nil {
		slot.Conn = req.Conn
		delete(s.spectators, req.Conn)
		role, color = RolePlayer, slot.Color
		s.logger.Info("player reconnected",
			zap.String("identity", req.Identity),
			zap.String("color", string(color)))
	} else if s.status == StatusWaiting && len(s.players) < 2 {
		color = s.nextColor()
		s.players = append(s.players, &Slot{Identity: req.Identity, Color: color, Conn: req.Conn})
		delete(s.spectators, req.Conn)
		role = RolePlayer
		s.logger.Info("player seated",
			zap.String("identity", req.Identity),
			zap.String("color", string(color)))

		if len(s.players) == 2 {
			s.startLocked(now)
			started = true
		}
	} else {
		s.spectators[req.Conn] = req.Identity
	}

	s.emitToRoom(messages.EventPlayerUpdate, s.playerUpdateLocked(), req.Conn)
	if started {
		s.emitToRoom(messages.EventState, s.snapshotLocked(now), req.Conn)
	}

	return messages.JoinedPayload{
		RoomID:   s.id,
		Role:     string(role),
		Color:    color,
		Identity: req.Identity,
		State:    s.snapshotLocked(now),
		Chat:     append([]messages.ChatEntry(nil), s.chat...),
	}, nil
}

func (s *Session) nextColor() chess.Color {
	if len(s.players) == 1 {
		return s.players[0].Color.Opp()
	}
	if s.config.Preference.Valid() {
		return s.config.Preference
	}
	return s.randomColor()
}

func (s *Session) startLocked(now time.Time) {
	s.status = StatusPlaying
	s.startedAt = now
	s.clock.Start(s.oracle.Turn(s.position), now)
	s.startTickerLocked()

	s.logger.Info("game started",
		zap.String("white", s.identityOf(chess.White)),
		zap.String("black", s.identityOf(chess.Black)),
		zap.String("initial", chess.FormatClockTime(s.config.TimeControl.Initial.Milliseconds())))

	s.publish(events.EventGameStarted, s.id)
}

// Move validates and applies a move by identity. On success it returns the
// new ply count.
func (s *Session) Move(identity string, mv rules.Move) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrRoomClosed
	}
	if s.status != StatusPlaying {
		return 0, ErrNotPlaying
	}

	slot := s.slotFor(identity)
	if slot == nil {
		return 0, ErrNotPlayer
	}

	turn := s.oracle.Turn(s.position)
	if slot.Color != turn {
		return 0, ErrNotYourTurn
	}

	now := s.now()
	if s.clock.IsTimeUp(turn, now) {
		s.finishLocked(now, CauseTimeout, WinnerFor(turn.Opp()))
		return 0, ErrTimeExpired
	}

	next, err := s.oracle.ApplyMove(s.position, mv)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidMove, err)
	}

	s.position = next
	s.clock.Switch(now)
	s.lastActivity = now

	s.logger.Debug("move applied",
		zap.String("identity", identity),
		zap.String("move", next.LastMove()),
		zap.Int("ply", next.Ply()))

	if term := s.oracle.Status(next); term != rules.Ongoing {
		winner := WinnerDraw
		if term == rules.Checkmate {
			winner = WinnerFor(slot.Color)
		}
		s.finishLocked(now, causeFor(term), winner)
		return next.Ply(), nil
	}

	s.emitToRoom(messages.EventState, s.snapshotLocked(now))
	return next.Ply(), nil
}

func causeFor(t rules.Terminal) Cause {
	switch t {
	case rules.Checkmate:
		return CauseCheckmate
	case rules.Stalemate:
		return CauseStalemate
	case rules.InsufficientMaterial:
		return CauseInsufficientMaterial
	case rules.Repetition:
		return CauseRepetition
	default:
		return CauseFiftyMoveRule
	}
}

// Resign ends the game in favour of the opponent
func (s *Session) Resign(identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrRoomClosed
	}
	if s.status != StatusPlaying {
		return ErrNotPlaying
	}

	slot := s.slotFor(identity)
	if slot == nil {
		return ErrNotPlayer
	}

	s.finishLocked(s.now(), CauseResignation, WinnerFor(slot.Color.Opp()))
	return nil
}

// Disconnect detaches conn from the room. Seats and clocks are untouched so
// the player can come back through Join.
func (s *Session) Disconnect(conn ConnID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	changed := false
	for _, slot := range s.players {
		if slot.Conn == conn {
			slot.Conn = ""
			changed = true
			s.logger.Info("player disconnected", zap.String("identity", slot.Identity))
		}
	}
	if _, ok := s.spectators[conn]; ok {
		delete(s.spectators, conn)
		changed = true
	}

	if !changed {
		return false
	}

	s.lastActivity = s.now()
	s.emitToRoom(messages.EventPlayerUpdate, s.playerUpdateLocked(), conn)
	return true
}

// Finish ends a playing game. It reports whether this call did the
// transition; every later call is a no-op.
func (s *Session) Finish(cause Cause, winner Winner) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.finishLocked(s.now(), cause, winner)
}

func (s *Session) finishLocked(now time.Time, cause Cause, winner Winner) bool {
	if s.status != StatusPlaying {
		return false
	}

	s.clock.Stop(now)
	if cause == CauseTimeout {
		s.clock.Flag(s.oracle.Turn(s.position))
	}
	s.stopTickerLocked()

	s.status = StatusFinished
	s.result = &Result{Winner: winner, Cause: cause, At: now}
	s.lastActivity = now

	times := s.clock.Snapshot(now)
	s.logger.Info("game finished",
		zap.String("winner", string(winner)),
		zap.String("cause", string(cause)),
		zap.Int("ply", s.position.Ply()),
		zap.String("white_clock", chess.FormatClockTime(times.White)),
		zap.String("black_clock", chess.FormatClockTime(times.Black)))

	s.emitToRoom(messages.EventGameOver, messages.GameOverPayload{
		RoomID: s.id,
		Winner: string(winner),
		Cause:  string(cause),
		State:  s.snapshotLocked(now),
	})

	s.publish(events.EventGameFinished, GameRecord{
		RoomID:      s.id,
		White:       s.identityOf(chess.White),
		Black:       s.identityOf(chess.Black),
		Winner:      winner,
		Cause:       cause,
		Moves:       append([]string(nil), s.position.Moves...),
		SAN:         append([]string(nil), s.position.SAN...),
		FEN:         s.position.FEN,
		TimeControl: s.config.TimeControl,
		StartedAt:   s.startedAt,
		FinishedAt:  now,
	})
	return true
}

// Reclaim decides whether the collector may delete the room and, if so,
// shuts it down: a game still in progress ends as abandoned and the clock
// task stops. A reclaimed session rejects every further operation.
func (s *Session) Reclaim(now time.Time, idleTTL, finishedTTL time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return true
	}

	idle := now.Sub(s.lastActivity)
	switch {
	case !s.occupiedLocked() && idle > idleTTL:
	case s.status == StatusFinished && idle > finishedTTL:
	default:
		return false
	}

	s.finishLocked(now, CauseAbandonment, WinnerDraw)
	s.closeLocked()

	s.logger.Info("room reclaimed",
		zap.String("status", string(s.status)),
		zap.Duration("idle", idle))
	s.publish(events.EventRoomReclaimed, s.id)
	return true
}

// Close stops the clock task and retires the session without recording a result
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeLocked()
}

func (s *Session) closeLocked() {
	s.stopTickerLocked()
	s.closed = true
}

// Snapshot returns the full room state
func (s *Session) Snapshot() messages.StatePayload {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshotLocked(s.now())
}

// Summary is the lobby view of the room
func (s *Session) Summary() messages.RoomSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	return messages.RoomSummary{
		ID:          s.id,
		Status:      string(s.status),
		Players:     len(s.players),
		Spectators:  len(s.spectators),
		TimeControl: s.timeControl(),
	}
}

// Status returns the lifecycle state
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}

// Result returns the outcome, or nil while the game is undecided
func (s *Session) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.result == nil {
		return nil
	}
	r := *s.result
	return &r
}

// Private reports whether the room is hidden from the lobby
func (s *Session) Private() bool {
	return s.config.Private
}

// Closed reports whether the room was reclaimed or shut down
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

// ClockRunning reports whether the clock task is active
func (s *Session) ClockRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stopClock != nil
}

// Players returns a copy of the seats in join order
func (s *Session) Players() []Slot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Slot, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, *p)
	}
	return out
}

func (s *Session) slotFor(identity string) *Slot {
	if identity == "" {
		return nil
	}
	for _, slot := range s.players {
		if slot.Identity == identity {
			return slot
		}
	}
	return nil
}

func (s *Session) identityOf(c chess.Color) string {
	for _, slot := range s.players {
		if slot.Color == c {
			return slot.Identity
		}
	}
	return ""
}

// occupiedLocked reports whether any live connection is attached
func (s *Session) occupiedLocked() bool {
	if len(s.spectators) > 0 {
		return true
	}
	for _, slot := range s.players {
		if slot.Connected() {
			return true
		}
	}
	return false
}

func (s *Session) timeControl() messages.TimeControl {
	return messages.TimeControl{
		InitialMs:   s.config.TimeControl.Initial.Milliseconds(),
		IncrementMs: s.config.TimeControl.Increment.Milliseconds(),
	}
}

func (s *Session) playersLocked() []messages.PlayerInfo {
	out := make([]messages.PlayerInfo, 0, len(s.players))
	for _, c := range []chess.Color{chess.White, chess.Black} {
		for _, slot := range s.players {
			if slot.Color == c {
				out = append(out, messages.PlayerInfo{
					Identity:  slot.Identity,
					Color:     slot.Color,
					Connected: slot.Connected(),
				})
			}
		}
	}
	return out
}

func (s *Session) playerUpdateLocked() messages.PlayerUpdatePayload {
	return messages.PlayerUpdatePayload{
		RoomID:     s.id,
		Players:    s.playersLocked(),
		Spectators: len(s.spectators),
	}
}

func (s *Session) snapshotLocked(now time.Time) messages.StatePayload {
	state := messages.StatePayload{
		RoomID:      s.id,
		Status:      string(s.status),
		FEN:         s.position.FEN,
		Moves:       append([]string{}, s.position.Moves...),
		SAN:         append([]string{}, s.position.SAN...),
		Ply:         s.position.Ply(),
		Turn:        s.oracle.Turn(s.position),
		LastMove:    s.position.LastMove(),
		Clock:       s.clock.Snapshot(now),
		TimeControl: s.timeControl(),
		Players:     s.playersLocked(),
		Spectators:  len(s.spectators),
	}
	if s.result != nil {
		state.Result = &messages.ResultPayload{
			Winner: string(s.result.Winner),
			Cause:  string(s.result.Cause),
		}
	}
	return state
}

func (s *Session) emitToRoom(event string, payload any, except ...ConnID) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.EmitToRoom(s.id, event, payload, except...)
}

func (s *Session) publish(t events.EventType, payload any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(events.Event{Type: t, RoomID: s.id, Payload: payload})
}
