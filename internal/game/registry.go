package game

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// Registry owns every live room: the code -> game map, the player -> room
// map, and all scheduled work (countdown, round clock, submission grace,
// cleanup). It is an injectable object, constructed at server start and
// torn down with Shutdown; one registry mutex serializes every protocol
// event and timer callback, so game state never sees concurrent mutation.
//
// Scheduled callbacks capture the room code plus a generation token and
// re-validate both under the lock when they fire. A callback that finds the
// room gone or the generation bumped is a benign race and returns silently.
type Registry struct {
	mu sync.Mutex

	cfg       Config
	log       *slog.Logger
	source    PuzzleSource
	validator ResultsValidator

	rooms      map[string]*room
	playerRoom map[string]string
	closed     bool

	// OnGameFinished, when set before serving, is invoked on its own
	// goroutine after the final round of a game ends.
	OnGameFinished func(roomCode string, rounds []RoundResult, final *FinalResults)
}

type room struct {
	code string
	game *Game

	conns map[string]*ClientConn

	// gen invalidates countdown/clock/grace callbacks scheduled before the
	// latest cancel. The cleanup timer is on its own connectivity-driven
	// track and re-checks the connected count instead.
	gen       uint64
	countdown *time.Timer
	grace     *time.Timer
	clockStop chan struct{}
	cleanup   *time.Timer
}

func NewRegistry(cfg Config, source PuzzleSource, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		cfg:        cfg.withDefaults(),
		log:        log,
		source:     source,
		validator:  TrustResults{},
		rooms:      make(map[string]*room),
		playerRoom: make(map[string]string),
	}
}

// SetValidator swaps the results-validation seam. Call before serving.
func (r *Registry) SetValidator(v ResultsValidator) {
	if v != nil {
		r.validator = v
	}
}

func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Room exposes a room's game for inspection; callers must treat it as
// read-only.
func (r *Registry) Room(code string) (*Game, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[code]
	if !ok {
		return nil, false
	}
	return rm.game, true
}

// CreateRoom allocates a fresh 4-digit code, builds a game around a random
// puzzle and registers the creator as its first player.
func (r *Registry) CreateRoom(playerID, name string, conn *ClientConn) (*RoomAck, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrServerClosed
	}
	if _, in := r.playerRoom[playerID]; in {
		return nil, ErrAlreadyInRoom
	}

	code, err := r.generateCodeLocked()
	if err != nil {
		return nil, err
	}

	g := NewGame(code, r.source.Random(), r.source, r.cfg)
	if _, err := g.AddPlayer(playerID, name); err != nil {
		return nil, err
	}

	rm := &room{code: code, game: g, conns: make(map[string]*ClientConn)}
	if conn != nil {
		rm.conns[playerID] = conn
	}
	r.rooms[code] = rm
	r.playerRoom[playerID] = code

	r.log.Info("room created", "room", code, "player", playerID)
	return r.roomAckLocked(rm, playerID, false), nil
}

// JoinRoom adds a player to an existing room. Joining a room the player is
// already a member of is redirected to reconnect semantics.
func (r *Registry) JoinRoom(code, playerID, name string, conn *ClientConn) (*RoomAck, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrServerClosed
	}
	rm, ok := r.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if current, in := r.playerRoom[playerID]; in && current != code {
		return nil, ErrAlreadyInRoom
	}
	if _, member := rm.game.Player(playerID); member {
		return r.reconnectLocked(rm, playerID, name, conn)
	}
	if rm.game.PlayerCount() >= r.cfg.MaxPlayers {
		return nil, ErrRoomFull
	}

	p, err := rm.game.AddPlayer(playerID, name)
	if err != nil {
		return nil, err
	}
	if conn != nil {
		rm.conns[playerID] = conn
	}
	r.playerRoom[playerID] = code
	r.cancelCleanupLocked(rm)

	r.broadcastExceptLocked(rm, playerID, "player-joined", PlayerJoinedPayload{
		Player:    rm.game.playerState(p),
		GameState: rm.game.State(),
	})
	r.log.Info("player joined", "room", code, "player", playerID)
	return r.roomAckLocked(rm, playerID, false), nil
}

// Reconnect restores a previously known player. A brand-new id cannot
// reconnect into a room it was never part of.
func (r *Registry) Reconnect(code, playerID, name string, conn *ClientConn) (*RoomAck, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrServerClosed
	}
	rm, ok := r.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r.reconnectLocked(rm, playerID, name, conn)
}

func (r *Registry) reconnectLocked(rm *room, playerID, name string, conn *ClientConn) (*RoomAck, error) {
	p, err := rm.game.Rejoin(playerID, name)
	if err != nil {
		return nil, err
	}
	if conn != nil {
		rm.conns[playerID] = conn
	}
	r.playerRoom[playerID] = rm.code
	r.cancelCleanupLocked(rm)

	r.broadcastExceptLocked(rm, playerID, "player-reconnected", PlayerReconnectedPayload{
		PlayerID:   playerID,
		PlayerName: p.Name,
		GameState:  rm.game.State(),
	})
	r.log.Info("player reconnected", "room", rm.code, "player", playerID)
	return r.roomAckLocked(rm, playerID, true), nil
}

// Disconnect marks the player disconnected and drops the player -> room
// mapping. The player record stays on the game so a rejoin can restore it;
// when the last connection goes, room destruction is scheduled after the
// cleanup grace instead of happening immediately.
//
// conn identifies the socket being torn down. A reconnect replaces the
// registered conn, and the old socket's read loop can error out much later;
// that stale close must not touch the live session. A nil conn skips the
// guard.
func (r *Registry) Disconnect(playerID string, conn *ClientConn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.playerRoom[playerID]
	if !ok {
		return
	}
	rm, ok := r.rooms[code]
	if !ok {
		delete(r.playerRoom, playerID)
		return
	}
	if conn != nil && rm.conns[playerID] != conn {
		return
	}
	delete(r.playerRoom, playerID)
	if _, err := rm.game.MarkDisconnected(playerID); err != nil {
		return
	}
	delete(rm.conns, playerID)

	remaining := rm.game.ConnectedCount()
	r.broadcastLocked(rm, "player-disconnected", PlayerDisconnectedPayload{
		PlayerID:         playerID,
		RemainingPlayers: remaining,
	})
	r.log.Info("player disconnected", "room", code, "player", playerID, "remaining", remaining)

	if remaining == 0 {
		r.scheduleCleanupLocked(rm)
		return
	}
	// the departed player may have been the only one still owing results
	if rm.game.AllConnectedSubmitted() {
		r.endRoundLocked(rm)
	}
}

// SetReady flips a player's ready flag, broadcasts the new status, and
// kicks off whatever transition the ready gate now allows.
func (r *Registry) SetReady(playerID string, ready bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, err := r.roomOfLocked(playerID)
	if err != nil {
		return false, err
	}

	canStart, err := rm.game.SetPlayerReady(playerID, ready)
	if err != nil {
		return false, err
	}
	r.broadcastLocked(rm, "player-ready-status", PlayerReadyStatusPayload{
		PlayerID:  playerID,
		Ready:     ready,
		GameState: rm.game.State(),
	})

	if canStart {
		switch rm.game.Phase() {
		case PhaseWaiting, PhaseBetweenRounds:
			r.startCountdownLocked(rm)
		case PhaseFinished:
			if err := rm.game.Restart(r.source.Random()); err == nil {
				r.log.Info("game restarted", "room", rm.code)
				r.broadcastLocked(rm, "game-restarted", GameRestartedPayload{GameState: rm.game.State()})
			}
		}
	}
	return canStart, nil
}

// SubmitResults runs the submission through the validation seam and stores
// it. If every connected player is now in, the round ends early.
func (r *Registry) SubmitResults(playerID string, words []SubmittedWord, totalScore int) (*SubmitAck, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, err := r.roomOfLocked(playerID)
	if err != nil {
		return nil, err
	}

	words, totalScore = r.validator.Validate(rm.game.Puzzle(), words, totalScore)
	late, err := rm.game.SubmitRoundResults(playerID, words, totalScore)
	if err != nil {
		return nil, err
	}
	if late {
		r.log.Info("late round results accepted", "room", rm.code, "player", playerID)
	}

	if rm.game.AllConnectedSubmitted() {
		r.endRoundLocked(rm)
	}
	return &SubmitAck{Success: true, WordsAccepted: len(words), RoundScore: totalScore}, nil
}

// Shutdown cancels every outstanding scheduled task across all rooms and
// refuses further work.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for _, rm := range r.rooms {
		r.cancelGameTasksLocked(rm)
		r.cancelCleanupLocked(rm)
	}
	r.rooms = make(map[string]*room)
	r.playerRoom = make(map[string]string)
	r.log.Info("room registry shut down")
}

// --- timers ---

func (r *Registry) startCountdownLocked(rm *room) {
	r.cancelGameTasksLocked(rm)
	gen := rm.gen
	code := rm.code

	r.broadcastLocked(rm, "countdown-started", CountdownStartedPayload{
		Countdown: int(r.cfg.Countdown / time.Second),
		NextRound: rm.game.CurrentRound() + 1,
	})
	rm.countdown = time.AfterFunc(r.cfg.Countdown, func() {
		r.onCountdownElapsed(code, gen)
	})
}

func (r *Registry) onCountdownElapsed(code string, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.validRoomLocked(code, gen)
	if rm == nil {
		return
	}
	if err := rm.game.StartRound(time.Now()); err != nil {
		r.log.Warn("countdown elapsed but round could not start", "room", code, "err", err)
		return
	}
	r.log.Info("round started", "room", code, "round", rm.game.CurrentRound())
	r.broadcastLocked(rm, "round-started", RoundStartedPayload{
		RoundInfo: rm.game.roundInfo(),
		GameState: rm.game.State(),
	})
	r.startClockLocked(rm)
}

func (r *Registry) startClockLocked(rm *room) {
	stop := make(chan struct{})
	rm.clockStop = stop
	gen := rm.gen
	code := rm.code

	go func() {
		ticker := time.NewTicker(r.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !r.clockTick(code, gen) {
					return
				}
			}
		}
	}()
}

// clockTick emits one time-remaining update, computed from wall clock so it
// stays correct under scheduling jitter. Returns false once the clock should
// stop ticking.
func (r *Registry) clockTick(code string, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.validRoomLocked(code, gen)
	if rm == nil || rm.game.Phase() != PhaseRoundActive {
		return false
	}

	remaining := time.Until(rm.game.RoundEnd())
	if remaining <= 0 {
		r.broadcastLocked(rm, "timer-update", TimerUpdatePayload{TimeRemaining: 0, RoundActive: true})
		r.broadcastLocked(rm, "round-time-expired", RoundTimeExpiredPayload{
			Message: "Time is up, waiting for final results",
		})
		rm.grace = time.AfterFunc(r.cfg.GraceWindow, func() {
			r.onGraceElapsed(code, gen)
		})
		return false
	}

	secs := int((remaining + time.Second - 1) / time.Second)
	r.broadcastLocked(rm, "timer-update", TimerUpdatePayload{TimeRemaining: secs, RoundActive: true})
	return true
}

func (r *Registry) onGraceElapsed(code string, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.validRoomLocked(code, gen)
	if rm == nil || rm.game.Phase() != PhaseRoundActive {
		return
	}
	r.endRoundLocked(rm)
}

func (r *Registry) endRoundLocked(rm *room) {
	r.cancelGameTasksLocked(rm)

	res := rm.game.EndRound(time.Now())
	if res == nil {
		return
	}
	if rm.game.Phase() == PhaseFinished {
		final := rm.game.Final()
		r.log.Info("game finished", "room", rm.code, "tie", final.IsTie)
		r.broadcastLocked(rm, "game-finished", GameFinishedPayload{
			RoundResult:  res,
			GameState:    rm.game.State(),
			FinalResults: final,
		})
		if r.OnGameFinished != nil {
			rounds := append([]RoundResult(nil), rm.game.Results()...)
			go r.OnGameFinished(rm.code, rounds, final)
		}
		return
	}
	r.log.Info("round ended", "room", rm.code, "round", res.Round)
	r.broadcastLocked(rm, "round-ended", RoundEndedPayload{
		RoundResult: res,
		GameState:   rm.game.State(),
	})
}

// cancelGameTasksLocked bumps the generation and stops the countdown, the
// round clock and the grace timer as a unit.
func (r *Registry) cancelGameTasksLocked(rm *room) {
	rm.gen++
	if rm.countdown != nil {
		rm.countdown.Stop()
		rm.countdown = nil
	}
	if rm.grace != nil {
		rm.grace.Stop()
		rm.grace = nil
	}
	if rm.clockStop != nil {
		close(rm.clockStop)
		rm.clockStop = nil
	}
}

// --- cleanup ---

func (r *Registry) scheduleCleanupLocked(rm *room) {
	r.cancelCleanupLocked(rm)
	code := rm.code
	rm.cleanup = time.AfterFunc(r.cfg.CleanupGrace, func() {
		r.onCleanupElapsed(code)
	})
	r.log.Info("room empty, cleanup scheduled", "room", code, "after", r.cfg.CleanupGrace)
}

func (r *Registry) cancelCleanupLocked(rm *room) {
	if rm.cleanup != nil {
		rm.cleanup.Stop()
		rm.cleanup = nil
	}
}

func (r *Registry) onCleanupElapsed(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[code]
	if !ok {
		return
	}
	if rm.game.ConnectedCount() > 0 {
		// someone came back between scheduling and firing
		rm.cleanup = nil
		return
	}
	r.destroyRoomLocked(rm)
}

func (r *Registry) destroyRoomLocked(rm *room) {
	r.cancelGameTasksLocked(rm)
	r.cancelCleanupLocked(rm)
	for _, id := range rm.game.order {
		if r.playerRoom[id] == rm.code {
			delete(r.playerRoom, id)
		}
	}
	delete(r.rooms, rm.code)
	r.log.Info("room destroyed", "room", rm.code)
}

// --- helpers ---

func (r *Registry) roomOfLocked(playerID string) (*room, error) {
	code, ok := r.playerRoom[playerID]
	if !ok {
		return nil, ErrPlayerNotInRoom
	}
	rm, ok := r.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return rm, nil
}

// validRoomLocked resolves a scheduled callback's room and generation.
// Nil means the callback lost a race with a cancel or a destroy.
func (r *Registry) validRoomLocked(code string, gen uint64) *room {
	rm, ok := r.rooms[code]
	if !ok || rm.gen != gen {
		return nil
	}
	return rm
}

func (r *Registry) generateCodeLocked() (string, error) {
	for i := 0; i < r.cfg.CodeRetries; i++ {
		code := fmt.Sprintf("%04d", rand.Intn(10000))
		if _, taken := r.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", ErrCodeGenerationExhausted
}

func (r *Registry) roomAckLocked(rm *room, playerID string, rejoined bool) *RoomAck {
	return &RoomAck{
		Success:     true,
		RoomCode:    rm.code,
		PlayerID:    playerID,
		Game:        rm.game.State(),
		PlayerCount: rm.game.PlayerCount(),
		MaxPlayers:  r.cfg.MaxPlayers,
		Rejoined:    rejoined,
	}
}

func (r *Registry) broadcastLocked(rm *room, typ string, payload any) {
	env := Envelope{Type: typ, Payload: mustJSON(payload)}
	for _, conn := range rm.conns {
		sendEnvelope(conn, env)
	}
}

func (r *Registry) broadcastExceptLocked(rm *room, exceptID, typ string, payload any) {
	env := Envelope{Type: typ, Payload: mustJSON(payload)}
	for id, conn := range rm.conns {
		if id == exceptID {
			continue
		}
		sendEnvelope(conn, env)
	}
}
