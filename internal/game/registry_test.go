package game

import (
	"encoding/json"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig shrinks every clock so timer-driven flows finish in
// milliseconds.
func testConfig() Config {
	return Config{
		RoundDuration: 400 * time.Millisecond,
		Countdown:     20 * time.Millisecond,
		GraceWindow:   40 * time.Millisecond,
		CleanupGrace:  60 * time.Millisecond,
		TickInterval:  10 * time.Millisecond,
		TotalRounds:   2,
		MinPlayers:    2,
		MaxPlayers:    4,
		CodeRetries:   100,
	}
}

func newTestRegistry(t *testing.T, cfg Config) *Registry {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRegistry(cfg, &stubSource{p: mustPuzzle(t)}, log)
	t.Cleanup(r.Shutdown)
	return r
}

func newTestConn() *ClientConn {
	return &ClientConn{send: make(chan []byte, 256)}
}

// waitForType drains a connection until a frame of the wanted type arrives.
func waitForType(t *testing.T, conn *ClientConn, typ string) Envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case b := <-conn.send:
			var env Envelope
			require.NoError(t, json.Unmarshal(b, &env))
			if env.Type == typ {
				return env
			}
		case <-deadline:
			t.Fatalf("no %q frame within deadline", typ)
			return Envelope{}
		}
	}
}

func decodePayload(t *testing.T, env Envelope, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Payload, out))
}

func phaseOf(r *Registry, code string) Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[code]
	if !ok {
		return Phase(-1)
	}
	return rm.game.Phase()
}

func TestRegistry_CreateRoom(t *testing.T) {
	r := newTestRegistry(t, testConfig())

	ack, err := r.CreateRoom("alice", "Alice", newTestConn())
	require.NoError(t, err)
	assert.True(t, ack.Success)
	assert.Regexp(t, regexp.MustCompile(`^\d{4}$`), ack.RoomCode)
	assert.Equal(t, "alice", ack.PlayerID)
	assert.Equal(t, 1, ack.PlayerCount)
	assert.Equal(t, 4, ack.MaxPlayers)
	assert.Equal(t, 1, r.RoomCount())
	assert.Nil(t, ack.Game.Puzzle, "puzzle stays hidden before the first round")

	_, err = r.CreateRoom("alice", "Alice", newTestConn())
	require.ErrorIs(t, err, ErrAlreadyInRoom)
}

func TestRegistry_JoinRoom_Errors(t *testing.T) {
	r := newTestRegistry(t, testConfig())

	_, err := r.JoinRoom("0000", "bob", "Bob", newTestConn())
	require.ErrorIs(t, err, ErrRoomNotFound)

	ack, err := r.CreateRoom("alice", "Alice", newTestConn())
	require.NoError(t, err)
	code := ack.RoomCode

	for _, id := range []string{"bob", "carol", "dave"} {
		_, err := r.JoinRoom(code, id, "", newTestConn())
		require.NoError(t, err)
	}
	_, err = r.JoinRoom(code, "erin", "Erin", newTestConn())
	require.ErrorIs(t, err, ErrRoomFull)

	_, err = r.CreateRoom("frank", "Frank", newTestConn())
	require.NoError(t, err)
	_, err = r.JoinRoom(code, "frank", "Frank", newTestConn())
	require.ErrorIs(t, err, ErrAlreadyInRoom)
}

func TestRegistry_JoinBroadcastsToOthers(t *testing.T) {
	r := newTestRegistry(t, testConfig())
	creator := newTestConn()

	ack, err := r.CreateRoom("alice", "Alice", creator)
	require.NoError(t, err)

	_, err = r.JoinRoom(ack.RoomCode, "bob", "Bob", newTestConn())
	require.NoError(t, err)

	env := waitForType(t, creator, "player-joined")
	var p PlayerJoinedPayload
	decodePayload(t, env, &p)
	assert.Equal(t, "bob", p.Player.ID)
	assert.Equal(t, 2, len(p.GameState.Players))
}

func TestRegistry_JoinAsExistingMemberReconnects(t *testing.T) {
	r := newTestRegistry(t, testConfig())

	ack, err := r.CreateRoom("alice", "Alice", newTestConn())
	require.NoError(t, err)
	code := ack.RoomCode
	_, err = r.JoinRoom(code, "bob", "Bob", newTestConn())
	require.NoError(t, err)

	r.Disconnect("bob", nil)

	again, err := r.JoinRoom(code, "bob", "", newTestConn())
	require.NoError(t, err)
	assert.True(t, again.Rejoined)
	assert.Equal(t, 2, again.PlayerCount, "rejoin must not add a duplicate player")
}

// TestRegistry_TimerDrivenGame walks a full game off the real timers: ready
// gate, countdown, round clock, expiry, grace, then an early second round
// ended by submissions, and finally a restart.
func TestRegistry_TimerDrivenGame(t *testing.T) {
	r := newTestRegistry(t, testConfig())
	finished := make(chan *FinalResults, 1)
	r.OnGameFinished = func(roomCode string, rounds []RoundResult, final *FinalResults) {
		finished <- final
	}

	aliceConn, bobConn := newTestConn(), newTestConn()
	ack, err := r.CreateRoom("alice", "Alice", aliceConn)
	require.NoError(t, err)
	code := ack.RoomCode
	_, err = r.JoinRoom(code, "bob", "Bob", bobConn)
	require.NoError(t, err)

	// round 1: nobody submits, the wall clock and grace window end it
	_, err = r.SetReady("alice", true)
	require.NoError(t, err)
	canStart, err := r.SetReady("bob", true)
	require.NoError(t, err)
	assert.True(t, canStart)

	cd := waitForType(t, bobConn, "countdown-started")
	var cdp CountdownStartedPayload
	decodePayload(t, cd, &cdp)
	assert.Equal(t, 1, cdp.NextRound)

	rs := waitForType(t, bobConn, "round-started")
	var rsp RoundStartedPayload
	decodePayload(t, rs, &rsp)
	assert.Equal(t, 1, rsp.RoundInfo.Round)
	require.NotNil(t, rsp.RoundInfo.Puzzle)

	waitForType(t, bobConn, "timer-update")
	waitForType(t, bobConn, "round-time-expired")

	re := waitForType(t, bobConn, "round-ended")
	var rep RoundEndedPayload
	decodePayload(t, re, &rep)
	require.Len(t, rep.RoundResult.Players, 2)
	for _, pr := range rep.RoundResult.Players {
		assert.Zero(t, pr.WordCount, "non-submitters end the round with no words")
		assert.Zero(t, pr.TotalScore)
	}
	assert.Equal(t, PhaseBetweenRounds, phaseOf(r, code))

	// round 2: both submit, which ends the round without waiting
	_, err = r.SetReady("alice", true)
	require.NoError(t, err)
	_, err = r.SetReady("bob", true)
	require.NoError(t, err)
	waitForType(t, bobConn, "round-started")

	sub, err := r.SubmitResults("alice", []SubmittedWord{{Word: "allowance", Points: 16, IsPangram: true}}, 16)
	require.NoError(t, err)
	assert.Equal(t, 1, sub.WordsAccepted)
	_, err = r.SubmitResults("bob", []SubmittedWord{{Word: "acne", Points: 1}}, 1)
	require.NoError(t, err)

	gf := waitForType(t, bobConn, "game-finished")
	var gfp GameFinishedPayload
	decodePayload(t, gf, &gfp)
	require.NotNil(t, gfp.FinalResults)
	assert.False(t, gfp.FinalResults.IsTie)
	require.NotNil(t, gfp.FinalResults.Winner)
	assert.Equal(t, "alice", gfp.FinalResults.Winner.PlayerID)
	assert.Equal(t, 16, gfp.FinalResults.Winner.TotalScore)

	select {
	case final := <-finished:
		assert.Equal(t, "alice", final.Winner.PlayerID)
	case <-time.After(2 * time.Second):
		t.Fatal("finish hook never fired")
	}

	// both ready again restarts the finished game in place
	_, err = r.SetReady("alice", true)
	require.NoError(t, err)
	_, err = r.SetReady("bob", true)
	require.NoError(t, err)
	waitForType(t, bobConn, "game-restarted")
	assert.Equal(t, PhaseWaiting, phaseOf(r, code))
}

func TestRegistry_DisconnectedPlayerDoesNotHoldRoundOpen(t *testing.T) {
	r := newTestRegistry(t, testConfig())
	aliceConn := newTestConn()

	ack, err := r.CreateRoom("alice", "Alice", aliceConn)
	require.NoError(t, err)
	code := ack.RoomCode
	_, err = r.JoinRoom(code, "bob", "Bob", newTestConn())
	require.NoError(t, err)

	_, err = r.SetReady("alice", true)
	require.NoError(t, err)
	_, err = r.SetReady("bob", true)
	require.NoError(t, err)
	waitForType(t, aliceConn, "round-started")

	r.Disconnect("bob", nil)
	waitForType(t, aliceConn, "player-disconnected")

	_, err = r.SubmitResults("alice", []SubmittedWord{{Word: "clean", Points: 5}}, 5)
	require.NoError(t, err)

	waitForType(t, aliceConn, "round-ended")
	assert.Equal(t, PhaseBetweenRounds, phaseOf(r, code))
}

func TestRegistry_CleanupDestroysEmptyRoom(t *testing.T) {
	r := newTestRegistry(t, testConfig())

	ack, err := r.CreateRoom("alice", "Alice", newTestConn())
	require.NoError(t, err)
	_, err = r.JoinRoom(ack.RoomCode, "bob", "Bob", newTestConn())
	require.NoError(t, err)

	r.Disconnect("alice", nil)
	r.Disconnect("bob", nil)
	require.Equal(t, 1, r.RoomCount(), "destruction waits for the grace window")

	require.Eventually(t, func() bool {
		return r.RoomCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	// mapping is gone too, so the code can no longer be joined
	_, err = r.JoinRoom(ack.RoomCode, "bob", "Bob", newTestConn())
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestRegistry_ReconnectWithinGraceKeepsRoom(t *testing.T) {
	cfg := testConfig()
	cfg.CleanupGrace = 150 * time.Millisecond
	r := newTestRegistry(t, cfg)
	aliceConn := newTestConn()

	ack, err := r.CreateRoom("alice", "Alice", aliceConn)
	require.NoError(t, err)
	code := ack.RoomCode
	_, err = r.JoinRoom(code, "bob", "Bob", newTestConn())
	require.NoError(t, err)

	// bank a round score before dropping both connections
	_, err = r.SetReady("alice", true)
	require.NoError(t, err)
	_, err = r.SetReady("bob", true)
	require.NoError(t, err)
	waitForType(t, aliceConn, "round-started")
	_, err = r.SubmitResults("alice", []SubmittedWord{{Word: "canoe", Points: 5}}, 5)
	require.NoError(t, err)
	_, err = r.SubmitResults("bob", []SubmittedWord{{Word: "wean", Points: 1}}, 1)
	require.NoError(t, err)
	waitForType(t, aliceConn, "round-ended")

	r.Disconnect("alice", nil)
	r.Disconnect("bob", nil)

	back, err := r.Reconnect(code, "alice", "", newTestConn())
	require.NoError(t, err)
	assert.True(t, back.Rejoined)

	time.Sleep(2 * cfg.CleanupGrace)
	assert.Equal(t, 1, r.RoomCount(), "reconnect cancels the pending cleanup")

	g, ok := r.Room(code)
	require.True(t, ok)
	p, ok := g.Player("alice")
	require.True(t, ok)
	assert.Equal(t, "Alice", p.Name)
	assert.True(t, p.Connected)
	assert.Equal(t, 5, p.TotalScore, "banked score survives the reconnect")
}

func TestRegistry_StaleConnCloseKeepsLiveSession(t *testing.T) {
	r := newTestRegistry(t, testConfig())
	first := newTestConn()

	ack, err := r.CreateRoom("alice", "Alice", first)
	require.NoError(t, err)
	code := ack.RoomCode
	_, err = r.JoinRoom(code, "bob", "Bob", newTestConn())
	require.NoError(t, err)

	second := newTestConn()
	back, err := r.Reconnect(code, "alice", "", second)
	require.NoError(t, err)
	require.True(t, back.Rejoined)

	// the replaced socket's read loop errors out long after the reconnect
	r.Disconnect("alice", first)

	g, ok := r.Room(code)
	require.True(t, ok)
	p, ok := g.Player("alice")
	require.True(t, ok)
	assert.True(t, p.Connected, "stale close must not drop the live session")

	// broadcasts still reach the replacement socket
	_, err = r.SetReady("bob", true)
	require.NoError(t, err)
	waitForType(t, second, "player-ready-status")

	// closing the current socket still disconnects for real
	r.Disconnect("alice", second)
	p, _ = g.Player("alice")
	assert.False(t, p.Connected)
}

func TestRegistry_LastNonSubmitterDisconnectEndsRound(t *testing.T) {
	r := newTestRegistry(t, testConfig())
	aliceConn := newTestConn()

	ack, err := r.CreateRoom("alice", "Alice", aliceConn)
	require.NoError(t, err)
	code := ack.RoomCode
	_, err = r.JoinRoom(code, "bob", "Bob", newTestConn())
	require.NoError(t, err)

	_, err = r.SetReady("alice", true)
	require.NoError(t, err)
	_, err = r.SetReady("bob", true)
	require.NoError(t, err)
	waitForType(t, aliceConn, "round-started")

	_, err = r.SubmitResults("alice", []SubmittedWord{{Word: "ocean", Points: 5}}, 5)
	require.NoError(t, err)
	assert.Equal(t, PhaseRoundActive, phaseOf(r, code))

	// bob was the only player still owing results; his departure must not
	// leave the round idling until wall-clock expiry
	r.Disconnect("bob", nil)

	waitForType(t, aliceConn, "round-ended")
	assert.Equal(t, PhaseBetweenRounds, phaseOf(r, code))
}

func TestRegistry_ReconnectUnknownPlayer(t *testing.T) {
	r := newTestRegistry(t, testConfig())

	ack, err := r.CreateRoom("alice", "Alice", newTestConn())
	require.NoError(t, err)

	_, err = r.Reconnect(ack.RoomCode, "stranger", "", newTestConn())
	require.ErrorIs(t, err, ErrPlayerNotInRoom)
}

func TestRegistry_NotInRoom(t *testing.T) {
	r := newTestRegistry(t, testConfig())

	_, err := r.SetReady("nobody", true)
	require.ErrorIs(t, err, ErrPlayerNotInRoom)

	_, err = r.SubmitResults("nobody", nil, 0)
	require.ErrorIs(t, err, ErrPlayerNotInRoom)
}

func TestRegistry_Shutdown(t *testing.T) {
	r := newTestRegistry(t, testConfig())

	_, err := r.CreateRoom("alice", "Alice", newTestConn())
	require.NoError(t, err)

	r.Shutdown()
	assert.Equal(t, 0, r.RoomCount())

	_, err = r.CreateRoom("bob", "Bob", newTestConn())
	require.ErrorIs(t, err, ErrServerClosed)
	_, err = r.JoinRoom("1234", "bob", "Bob", newTestConn())
	require.ErrorIs(t, err, ErrServerClosed)
}

func TestRegistry_RecomputeValidator(t *testing.T) {
	r := newTestRegistry(t, testConfig())
	r.SetValidator(RecomputeResults{})
	aliceConn := newTestConn()

	ack, err := r.CreateRoom("alice", "Alice", aliceConn)
	require.NoError(t, err)
	_, err = r.JoinRoom(ack.RoomCode, "bob", "Bob", newTestConn())
	require.NoError(t, err)

	_, err = r.SetReady("alice", true)
	require.NoError(t, err)
	_, err = r.SetReady("bob", true)
	require.NoError(t, err)
	waitForType(t, aliceConn, "round-started")

	sub, err := r.SubmitResults("alice", []SubmittedWord{
		{Word: "alone", Points: 99},
		{Word: "zzzzz", Points: 50},
	}, 149)
	require.NoError(t, err)
	assert.Equal(t, 1, sub.WordsAccepted, "invalid words are dropped")
	assert.Equal(t, 5, sub.RoundScore, "points come from the puzzle, not the client")
}
