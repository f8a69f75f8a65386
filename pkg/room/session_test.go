package room

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tecu23/chessroom/pkg/chess"
	"github.com/tecu23/chessroom/pkg/events"
	"github.com/tecu23/chessroom/pkg/messages"
	"github.com/tecu23/chessroom/pkg/rules"
)

type emitted struct {
	Event   string
	Payload any
	Except  []ConnID
	To      ConnID
}

type mockBroadcaster struct {
	mu   sync.Mutex
	sent []emitted
}

func (m *mockBroadcaster) EmitToRoom(_ string, event string, payload any, except ...ConnID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, emitted{Event: event, Payload: payload, Except: except})
}

func (m *mockBroadcaster) EmitToConnection(conn ConnID, event string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, emitted{Event: event, Payload: payload, To: conn})
}

func (m *mockBroadcaster) events(name string) []emitted {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []emitted
	for _, e := range m.sent {
		if e.Event == name {
			out = append(out, e)
		}
	}
	return out
}

func (m *mockBroadcaster) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

type fixture struct {
	session   *Session
	bc        *mockBroadcaster
	clock     *fakeClock
	publisher *events.Publisher
}

func newFixture(t *testing.T, cfg Config, mutate ...func(*Deps)) *fixture {
	t.Helper()

	f := &fixture{
		bc:        &mockBroadcaster{},
		clock:     &fakeClock{t: time.Unix(1_700_000_000, 0)},
		publisher: events.NewPublisher(),
	}
	opts := DefaultOptions()
	opts.TickInterval = 0

	deps := Deps{
		Oracle:      rules.NewChessOracle(),
		Broadcaster: f.bc,
		Publisher:   f.publisher,
		Logger:      zaptest.NewLogger(t),
		Options:     opts,
		Now:         f.clock.Now,
		RandomColor: func() chess.Color { return chess.Black },
	}
	for _, m := range mutate {
		m(&deps)
	}

	if cfg.TimeControl.Initial == 0 {
		cfg.TimeControl.Initial = 5 * time.Minute
	}
	f.session = NewSession("r1", cfg, deps)
	return f
}

// seat joins alice (white) and bob (black) and clears the recorded emits
func (f *fixture) seat(t *testing.T) {
	t.Helper()

	_, err := f.session.Join(JoinRequest{Identity: "alice", Conn: "c-alice"})
	require.NoError(t, err)
	_, err = f.session.Join(JoinRequest{Identity: "bob", Conn: "c-bob"})
	require.NoError(t, err)
	f.bc.reset()
}

func (f *fixture) move(t *testing.T, identity, uci string) {
	t.Helper()

	mv, err := rules.ParseMove(uci)
	require.NoError(t, err)
	_, err = f.session.Move(identity, mv)
	require.NoError(t, err)
}

func TestJoinSeatsTwoPlayersAndStarts(t *testing.T) {
	f := newFixture(t, Config{Preference: chess.White})

	first, err := f.session.Join(JoinRequest{Identity: "alice", Conn: "c1"})
	require.NoError(t, err)
	assert.Equal(t, string(RolePlayer), first.Role)
	assert.Equal(t, chess.White, first.Color)
	assert.Equal(t, string(StatusWaiting), first.State.Status)

	second, err := f.session.Join(JoinRequest{Identity: "bob", Conn: "c2"})
	require.NoError(t, err)
	assert.Equal(t, chess.Black, second.Color)
	assert.Equal(t, string(StatusPlaying), second.State.Status)
	assert.Equal(t, StatusPlaying, f.session.Status())

	states := f.bc.events(messages.EventState)
	require.Len(t, states, 1)
	assert.Equal(t, []ConnID{"c2"}, states[0].Except)
	assert.Len(t, f.bc.events(messages.EventPlayerUpdate), 2)
}

func TestJoinRandomColorWhenNoPreference(t *testing.T) {
	f := newFixture(t, Config{})

	first, err := f.session.Join(JoinRequest{Identity: "alice", Conn: "c1"})
	require.NoError(t, err)
	second, err := f.session.Join(JoinRequest{Identity: "bob", Conn: "c2"})
	require.NoError(t, err)

	assert.Equal(t, chess.Black, first.Color)
	assert.Equal(t, chess.White, second.Color)
}

func TestColorExclusivity(t *testing.T) {
	f := newFixture(t, Config{Preference: chess.Black})
	f.seat(t)

	third, err := f.session.Join(JoinRequest{Identity: "carol", Conn: "c3"})
	require.NoError(t, err)
	assert.Equal(t, string(RoleSpectator), third.Role)
	assert.Equal(t, chess.NoColor, third.Color)

	players := f.session.Players()
	require.Len(t, players, 2)
	assert.NotEqual(t, players[0].Color, players[1].Color)

	_, err = f.session.Move("carol", rules.Move{From: "e2", To: "e4"})
	assert.ErrorIs(t, err, ErrNotPlayer)
}

func TestMoveOutOfTurnIsRejectedSilently(t *testing.T) {
	f := newFixture(t, Config{Preference: chess.White})
	f.seat(t)

	_, err := f.session.Move("bob", rules.Move{From: "e7", To: "e5"})
	assert.ErrorIs(t, err, ErrNotYourTurn)
	assert.Empty(t, f.bc.events(messages.EventState))
	assert.Equal(t, 0, f.session.Snapshot().Ply)
}

func TestIllegalMoveLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, Config{Preference: chess.White})
	f.seat(t)

	before := f.session.Snapshot()
	_, err := f.session.Move("alice", rules.Move{From: "e2", To: "e5"})
	assert.ErrorIs(t, err, ErrInvalidMove)
	assert.Equal(t, "invalid-move", Reason(err))

	after := f.session.Snapshot()
	assert.Equal(t, before.FEN, after.FEN)
	assert.Empty(t, f.bc.events(messages.EventState))
}

func TestMoveBeforeStartIsNotPlaying(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.session.Join(JoinRequest{Identity: "alice", Conn: "c1"})
	require.NoError(t, err)

	_, err = f.session.Move("alice", rules.Move{From: "e2", To: "e4"})
	assert.ErrorIs(t, err, ErrNotPlaying)
}

func TestLegalMoveBroadcastsOnceAndChargesMover(t *testing.T) {
	f := newFixture(t, Config{
		Preference:  chess.White,
		TimeControl: chess.TimeControl{Initial: 5 * time.Minute, Increment: 2 * time.Second},
	})
	f.seat(t)

	f.clock.Advance(7 * time.Second)
	ply, err := f.session.Move("alice", rules.Move{From: "e2", To: "e4"})
	require.NoError(t, err)
	assert.Equal(t, 1, ply)

	states := f.bc.events(messages.EventState)
	require.Len(t, states, 1)
	state := states[0].Payload.(messages.StatePayload)
	assert.Equal(t, chess.Black, state.Turn)
	assert.Equal(t, "e2e4", state.LastMove)
	assert.Equal(t, int64((5*time.Minute - 5*time.Second).Milliseconds()), state.Clock.White)
	assert.Equal(t, int64((5 * time.Minute).Milliseconds()), state.Clock.Black)
	assert.Equal(t, chess.Black, state.Clock.ActiveColor)
}

func TestCheckmateMoverWinsAndFinishesOnce(t *testing.T) {
	f := newFixture(t, Config{Preference: chess.White})

	var mu sync.Mutex
	var records []GameRecord
	f.publisher.Subscribe(events.EventGameFinished, func(e events.Event) {
		mu.Lock()
		defer mu.Unlock()
		records = append(records, e.Payload.(GameRecord))
	})

	f.seat(t)
	f.move(t, "alice", "f2f3")
	f.move(t, "bob", "e7e5")
	f.move(t, "alice", "g2g4")
	f.bc.reset()
	f.move(t, "bob", "d8h4")

	assert.Empty(t, f.bc.events(messages.EventState), "terminal move reports through GAME_OVER")
	over := f.bc.events(messages.EventGameOver)
	require.Len(t, over, 1)
	payload := over[0].Payload.(messages.GameOverPayload)
	assert.Equal(t, string(WinnerBlack), payload.Winner)
	assert.Equal(t, string(CauseCheckmate), payload.Cause)

	assert.False(t, f.session.Finish(CauseTimeout, WinnerWhite))
	assert.ErrorIs(t, f.session.Resign("alice"), ErrNotPlaying)
	_, err := f.session.Move("alice", rules.Move{From: "a2", To: "a3"})
	assert.ErrorIs(t, err, ErrNotPlaying)
	f.session.Tick()

	assert.Len(t, f.bc.events(messages.EventGameOver), 1)
	res := f.session.Result()
	require.NotNil(t, res)
	assert.Equal(t, WinnerBlack, res.Winner)

	f.publisher.Wait()
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, records, 1)
	assert.Equal(t, "alice", records[0].White)
	assert.Equal(t, "bob", records[0].Black)
	assert.Len(t, records[0].Moves, 4)
	assert.True(t, records[0].Rated())
}

func TestTickFlagsTimeout(t *testing.T) {
	f := newFixture(t, Config{
		Preference:  chess.White,
		TimeControl: chess.TimeControl{Initial: 10 * time.Second},
	})
	f.seat(t)

	f.clock.Advance(5 * time.Second)
	f.session.Tick()
	syncs := f.bc.events(messages.EventTimeSync)
	require.Len(t, syncs, 1)
	assert.Equal(t, int64(5000), syncs[0].Payload.(messages.TimeSyncPayload).Clock.White)

	f.clock.Advance(6 * time.Second)
	f.session.Tick()

	require.Equal(t, StatusFinished, f.session.Status())
	res := f.session.Result()
	assert.Equal(t, WinnerBlack, res.Winner)
	assert.Equal(t, CauseTimeout, res.Cause)

	snap := f.session.Snapshot()
	assert.Equal(t, int64(0), snap.Clock.White)
	assert.Equal(t, int64(10_000), snap.Clock.Black)
}

func TestMoveAfterFlagFallLoses(t *testing.T) {
	f := newFixture(t, Config{
		Preference:  chess.White,
		TimeControl: chess.TimeControl{Initial: 10 * time.Second},
	})
	f.seat(t)
	f.move(t, "alice", "e2e4")

	f.clock.Advance(11 * time.Second)
	_, err := f.session.Move("bob", rules.Move{From: "e7", To: "e5"})
	assert.ErrorIs(t, err, ErrTimeExpired)

	res := f.session.Result()
	require.NotNil(t, res)
	assert.Equal(t, WinnerWhite, res.Winner)
	assert.Equal(t, CauseTimeout, res.Cause)
	assert.Equal(t, 1, f.session.Snapshot().Ply)
}

func TestClocksNeverNegative(t *testing.T) {
	f := newFixture(t, Config{TimeControl: chess.TimeControl{Initial: time.Second}})
	f.seat(t)

	f.clock.Advance(time.Hour)
	snap := f.session.Snapshot()
	assert.GreaterOrEqual(t, snap.Clock.White, int64(0))
	assert.GreaterOrEqual(t, snap.Clock.Black, int64(0))
}

func TestResignGivesOpponentTheWin(t *testing.T) {
	f := newFixture(t, Config{Preference: chess.White})
	f.seat(t)

	require.NoError(t, f.session.Resign("alice"))
	res := f.session.Result()
	assert.Equal(t, WinnerBlack, res.Winner)
	assert.Equal(t, CauseResignation, res.Cause)

	assert.ErrorIs(t, f.session.Resign("bob"), ErrNotPlaying)
}

func TestReconnectKeepsSeat(t *testing.T) {
	f := newFixture(t, Config{Preference: chess.White})
	f.seat(t)

	assert.True(t, f.session.Disconnect("c-bob"))
	updates := f.bc.events(messages.EventPlayerUpdate)
	require.Len(t, updates, 1)
	assert.False(t, updates[0].Payload.(messages.PlayerUpdatePayload).Players[1].Connected)

	f.clock.Advance(30 * time.Second)
	rejoined, err := f.session.Join(JoinRequest{Identity: "bob", Conn: "c-bob-2"})
	require.NoError(t, err)
	assert.Equal(t, string(RolePlayer), rejoined.Role)
	assert.Equal(t, chess.Black, rejoined.Color)

	for _, p := range f.session.Players() {
		if p.Identity == "bob" {
			assert.Equal(t, ConnID("c-bob-2"), p.Conn)
		}
	}
	assert.False(t, f.session.Disconnect("c-unknown"))
}

func TestDisconnectedClockKeepsRunning(t *testing.T) {
	f := newFixture(t, Config{
		Preference:  chess.White,
		TimeControl: chess.TimeControl{Initial: 10 * time.Second},
	})
	f.seat(t)

	f.session.Disconnect("c-alice")
	f.clock.Advance(11 * time.Second)
	f.session.Tick()

	res := f.session.Result()
	require.NotNil(t, res)
	assert.Equal(t, CauseTimeout, res.Cause)
	assert.Equal(t, WinnerBlack, res.Winner)
}

func TestStatusIsMonotonic(t *testing.T) {
	f := newFixture(t, Config{})
	order := map[Status]int{StatusWaiting: 0, StatusPlaying: 1, StatusFinished: 2}

	last := f.session.Status()
	step := func() {
		cur := f.session.Status()
		assert.GreaterOrEqual(t, order[cur], order[last])
		last = cur
	}

	f.session.Join(JoinRequest{Identity: "a", Conn: "1"})
	step()
	f.session.Join(JoinRequest{Identity: "b", Conn: "2"})
	step()
	f.session.Resign("a")
	step()
	f.session.Join(JoinRequest{Identity: "c", Conn: "3"})
	f.session.Finish(CauseTimeout, WinnerWhite)
	step()
	assert.Equal(t, StatusFinished, last)
}

func TestReclaim(t *testing.T) {
	idle, done := 5*time.Minute, 30*time.Minute

	t.Run("idle empty room", func(t *testing.T) {
		f := newFixture(t, Config{})
		_, err := f.session.Join(JoinRequest{Identity: "a", Conn: "1"})
		require.NoError(t, err)
		f.session.Disconnect("1")

		f.clock.Advance(4 * time.Minute)
		assert.False(t, f.session.Reclaim(f.clock.Now(), idle, done))
		f.clock.Advance(2 * time.Minute)
		assert.True(t, f.session.Reclaim(f.clock.Now(), idle, done))
		assert.True(t, f.session.Closed())

		_, err = f.session.Join(JoinRequest{Identity: "a", Conn: "1"})
		assert.ErrorIs(t, err, ErrRoomClosed)
	})

	t.Run("spectator keeps finished room alive until finished ttl", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.seat(t)
		require.NoError(t, f.session.Resign("alice"))
		f.session.Disconnect("c-alice")
		f.session.Disconnect("c-bob")
		_, err := f.session.Join(JoinRequest{Identity: "watcher", Conn: "w"})
		require.NoError(t, err)

		f.clock.Advance(10 * time.Minute)
		assert.False(t, f.session.Reclaim(f.clock.Now(), idle, done))
		f.clock.Advance(21 * time.Minute)
		assert.True(t, f.session.Reclaim(f.clock.Now(), idle, done))
	})

	t.Run("abandoned game ends as draw", func(t *testing.T) {
		f := newFixture(t, Config{TimeControl: chess.TimeControl{Initial: time.Hour}})
		f.seat(t)
		f.session.Disconnect("c-alice")
		f.session.Disconnect("c-bob")

		f.clock.Advance(6 * time.Minute)
		assert.True(t, f.session.Reclaim(f.clock.Now(), idle, done))
		res := f.session.Result()
		require.NotNil(t, res)
		assert.Equal(t, CauseAbandonment, res.Cause)
		assert.Equal(t, WinnerDraw, res.Winner)
	})
}

func TestChat(t *testing.T) {
	f := newFixture(t, Config{})
	f.seat(t)

	entry, err := f.session.Chat("alice", "c-alice", "  <b>hi</b>\x07 ")
	require.NoError(t, err)
	assert.Equal(t, "&lt;b&gt;hi&lt;/b&gt;", entry.Text)
	assert.Equal(t, string(RolePlayer), entry.Role)
	assert.Len(t, f.bc.events(messages.EventChat), 1)

	_, err = f.session.Chat("alice", "c-alice", "again")
	assert.ErrorIs(t, err, ErrRateLimited)

	_, err = f.session.Chat("bob", "c-bob", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = f.session.Chat("mallory", "c-x", "hello")
	assert.ErrorIs(t, err, ErrNotInRoom)

	f.clock.Advance(time.Second)
	long, err := f.session.Chat("alice", "c-alice", strings.Repeat("x", 1500))
	require.NoError(t, err)
	assert.Len(t, long.Text, 1000)
}

func TestChatLogIsCapped(t *testing.T) {
	f := newFixture(t, Config{})
	f.seat(t)
	_, err := f.session.Join(JoinRequest{Identity: "watcher", Conn: "w"})
	require.NoError(t, err)

	for i := 0; i < 60; i++ {
		f.clock.Advance(time.Second)
		_, err := f.session.Chat("watcher", "w", strings.Repeat("m", i+1))
		require.NoError(t, err)
	}

	log := f.session.ChatLog()
	require.Len(t, log, 50)
	assert.Len(t, log[0].Text, 11)
	assert.Len(t, log[49].Text, 60)

	joined, err := f.session.Join(JoinRequest{Identity: "late", Conn: "l"})
	require.NoError(t, err)
	assert.Len(t, joined.Chat, 50)
}

func TestClockTaskStopsOnFinish(t *testing.T) {
	f := newFixture(t, Config{Preference: chess.White}, func(d *Deps) {
		d.Options.TickInterval = 5 * time.Millisecond
	})
	f.seat(t)
	require.True(t, f.session.ClockRunning())

	assert.Eventually(t, func() bool {
		return len(f.bc.events(messages.EventTimeSync)) > 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, f.session.Resign("bob"))
	assert.False(t, f.session.ClockRunning())
}

func TestReason(t *testing.T) {
	assert.Equal(t, "not-your-turn", Reason(ErrNotYourTurn))
	assert.Equal(t, "room-not-found", Reason(ErrRoomClosed))
	assert.Equal(t, ReasonServerError, Reason(assert.AnError))
}
