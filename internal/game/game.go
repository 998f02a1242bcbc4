package game

import (
	"fmt"
	"sort"
	"time"

	"example.com/sb-mvp/internal/puzzle"
)

// Phase encodes the legal gameStatus/roundStatus combinations as one value,
// so states like "round active while still waiting for players" cannot exist.
type Phase int

const (
	PhaseWaiting Phase = iota
	PhaseRoundActive
	PhaseBetweenRounds
	PhaseFinished
)

func (p Phase) GameStatus() string {
	switch p {
	case PhaseRoundActive:
		return "playing"
	case PhaseBetweenRounds:
		return "between-rounds"
	case PhaseFinished:
		return "finished"
	default:
		return "waiting"
	}
}

func (p Phase) RoundStatus() string {
	switch p {
	case PhaseRoundActive:
		return "active"
	case PhaseBetweenRounds, PhaseFinished:
		return "ended"
	default:
		return "waiting"
	}
}

// PuzzleSource hands out puzzles for new rounds. The catalog is read-only
// after startup, so one source is shared by every game.
type PuzzleSource interface {
	Random() *puzzle.Puzzle
}

type SubmittedWord struct {
	Word        string    `json:"word"`
	Points      int       `json:"points"`
	IsPangram   bool      `json:"isPangram"`
	SubmittedAt time.Time `json:"submittedAt"`
}

type Player struct {
	ID           string
	Name         string
	Words        []SubmittedWord
	RoundScore   int
	TotalScore   int
	Ready        bool
	Connected    bool
	HasSubmitted bool

	bestWord       string
	bestWordPoints int
}

// PlayerRoundResult is the per-player slice of a RoundResult snapshot.
type PlayerRoundResult struct {
	PlayerID   string          `json:"playerId"`
	Name       string          `json:"name"`
	Words      []SubmittedWord `json:"words"`
	RoundScore int             `json:"roundScore"`
	TotalScore int             `json:"totalScore"`
	WordCount  int             `json:"wordCount"`
}

// RoundResult is immutable once built; one is appended per round played.
type RoundResult struct {
	Round   int                 `json:"round"`
	EndedAt time.Time           `json:"endedAt"`
	Puzzle  *puzzle.Puzzle      `json:"puzzle"`
	Players []PlayerRoundResult `json:"players"`
}

type FinalScore struct {
	PlayerID       string `json:"playerId"`
	Name           string `json:"name"`
	TotalScore     int    `json:"totalScore"`
	Rank           int    `json:"rank"`
	BestWord       string `json:"bestWord,omitempty"`
	BestWordPoints int    `json:"bestWordPoints,omitempty"`
}

type FinalResults struct {
	Winner      *FinalScore      `json:"winner"` // nil on a tie
	IsTie       bool             `json:"isTie"`
	FinalScores []FinalScore     `json:"finalScores"`
	PuzzlesUsed []*puzzle.Puzzle `json:"puzzlesUsed"`
	FinishedAt  time.Time        `json:"finishedAt"`
}

// Game is the state machine for one room: pure transitions, no timers, no
// I/O. The registry drives it and serializes access, so there is no lock
// here.
type Game struct {
	cfg      Config
	roomCode string
	source   PuzzleSource

	puzzle  *puzzle.Puzzle
	puzzles []*puzzle.Puzzle

	currentRound int
	phase        Phase
	roundStart   time.Time
	roundEnd     time.Time

	players map[string]*Player
	order   []string // join order; breaks ranking ties

	roundResults []RoundResult
	finalResults *FinalResults
}

func NewGame(roomCode string, puz *puzzle.Puzzle, source PuzzleSource, cfg Config) *Game {
	return &Game{
		cfg:      cfg.withDefaults(),
		roomCode: roomCode,
		source:   source,
		puzzle:   puz,
		puzzles:  []*puzzle.Puzzle{puz},
		phase:    PhaseWaiting,
		players:  make(map[string]*Player),
	}
}

func (g *Game) RoomCode() string        { return g.roomCode }
func (g *Game) Phase() Phase            { return g.phase }
func (g *Game) CurrentRound() int       { return g.currentRound }
func (g *Game) Puzzle() *puzzle.Puzzle  { return g.puzzle }
func (g *Game) RoundEnd() time.Time     { return g.roundEnd }
func (g *Game) PlayerCount() int        { return len(g.players) }
func (g *Game) Results() []RoundResult  { return g.roundResults }
func (g *Game) Final() *FinalResults    { return g.finalResults }

func (g *Game) Player(id string) (*Player, bool) {
	p, ok := g.players[id]
	return p, ok
}

func (g *Game) ConnectedCount() int {
	n := 0
	for _, p := range g.players {
		if p.Connected {
			n++
		}
	}
	return n
}

func (g *Game) AddPlayer(id, name string) (*Player, error) {
	if len(g.players) >= g.cfg.MaxPlayers {
		return nil, ErrGameFull
	}
	if name == "" {
		name = fmt.Sprintf("Player %d", len(g.players)+1)
	}
	p := &Player{ID: id, Name: name, Connected: true}
	g.players[id] = p
	g.order = append(g.order, id)
	return p, nil
}

// Rejoin restores a disconnected member. A brand-new id cannot rejoin.
func (g *Game) Rejoin(id, name string) (*Player, error) {
	p, ok := g.players[id]
	if !ok {
		return nil, ErrPlayerNotInRoom
	}
	p.Connected = true
	if name != "" {
		p.Name = name
	}
	return p, nil
}

func (g *Game) MarkDisconnected(id string) (*Player, error) {
	p, ok := g.players[id]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	p.Connected = false
	return p, nil
}

func (g *Game) CanStartGame() bool {
	return g.phase == PhaseWaiting && g.allReadyConnected()
}

func (g *Game) CanStartNextRound() bool {
	return g.phase == PhaseBetweenRounds && g.allReadyConnected()
}

func (g *Game) CanRestart() bool {
	return g.phase == PhaseFinished && g.allReadyConnected()
}

func (g *Game) allReadyConnected() bool {
	if len(g.players) < g.cfg.MinPlayers {
		return false
	}
	for _, p := range g.players {
		if !p.Ready || !p.Connected {
			return false
		}
	}
	return true
}

// ReadyToAdvance reports whether ready-gating is satisfied for whatever
// transition the current phase allows (first round, next round, restart).
func (g *Game) ReadyToAdvance() bool {
	return g.CanStartGame() || g.CanStartNextRound() || g.CanRestart()
}

// StartRound advances into the next round. Round 1 reuses the puzzle the
// game was created with; later rounds draw a fresh one from the source.
func (g *Game) StartRound(now time.Time) error {
	if g.currentRound >= g.cfg.TotalRounds {
		return ErrAllRoundsCompleted
	}
	g.currentRound++
	if g.currentRound > 1 {
		g.puzzle = g.source.Random()
		g.puzzles = append(g.puzzles, g.puzzle)
	}
	g.phase = PhaseRoundActive
	g.roundStart = now
	g.roundEnd = now.Add(g.cfg.RoundDuration)
	for _, p := range g.players {
		p.Words = nil
		p.RoundScore = 0
		p.Ready = false
		p.HasSubmitted = false
	}
	return nil
}

// SubmitRoundResults records a player's client-computed result. Late
// submissions (round no longer active) are accepted, not rejected; the
// returned flag lets the caller log them. Resubmitting overwrites.
func (g *Game) SubmitRoundResults(id string, words []SubmittedWord, totalScore int) (late bool, err error) {
	p, ok := g.players[id]
	if !ok {
		return false, ErrPlayerNotFound
	}
	late = g.phase != PhaseRoundActive
	p.Words = append([]SubmittedWord(nil), words...)
	p.RoundScore = totalScore
	p.HasSubmitted = true
	for _, w := range words {
		if w.Points > p.bestWordPoints {
			p.bestWord = w.Word
			p.bestWordPoints = w.Points
		}
	}
	return late, nil
}

// AllConnectedSubmitted reports whether every connected player has a result
// in for the active round.
func (g *Game) AllConnectedSubmitted() bool {
	if g.phase != PhaseRoundActive || g.ConnectedCount() == 0 {
		return false
	}
	for _, p := range g.players {
		if p.Connected && !p.HasSubmitted {
			return false
		}
	}
	return true
}

// EndRound folds round scores into totals and snapshots the result. Calling
// it again after the round already ended returns the existing snapshot, so
// the submit-all path and the timer path can race safely.
func (g *Game) EndRound(now time.Time) *RoundResult {
	if g.phase != PhaseRoundActive {
		if len(g.roundResults) == 0 {
			return nil
		}
		return &g.roundResults[len(g.roundResults)-1]
	}

	res := RoundResult{
		Round:   g.currentRound,
		EndedAt: now,
		Puzzle:  g.puzzle,
		Players: make([]PlayerRoundResult, 0, len(g.players)),
	}
	for _, id := range g.order {
		p := g.players[id]
		p.TotalScore += p.RoundScore
		res.Players = append(res.Players, PlayerRoundResult{
			PlayerID:   p.ID,
			Name:       p.Name,
			Words:      append([]SubmittedWord(nil), p.Words...),
			RoundScore: p.RoundScore,
			TotalScore: p.TotalScore,
			WordCount:  len(p.Words),
		})
	}
	g.roundResults = append(g.roundResults, res)

	if g.currentRound >= g.cfg.TotalRounds {
		g.finish(now)
	} else {
		g.phase = PhaseBetweenRounds
	}
	return &g.roundResults[len(g.roundResults)-1]
}

func (g *Game) finish(now time.Time) {
	scores := make([]FinalScore, 0, len(g.players))
	for _, id := range g.order {
		p := g.players[id]
		scores = append(scores, FinalScore{
			PlayerID:       p.ID,
			Name:           p.Name,
			TotalScore:     p.TotalScore,
			BestWord:       p.bestWord,
			BestWordPoints: p.bestWordPoints,
		})
	}
	// Ranked by total descending; stable, so ties keep join order.
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].TotalScore > scores[j].TotalScore
	})
	for i := range scores {
		scores[i].Rank = i + 1
	}

	fr := &FinalResults{
		FinalScores: scores,
		PuzzlesUsed: append([]*puzzle.Puzzle(nil), g.puzzles...),
		FinishedAt:  now,
	}
	if len(scores) >= 2 && scores[1].TotalScore == scores[0].TotalScore {
		fr.IsTie = true
	} else if len(scores) > 0 {
		winner := scores[0]
		fr.Winner = &winner
	}

	g.finalResults = fr
	g.phase = PhaseFinished
}

// SetPlayerReady flips the ready flag and reports whether the gate for the
// next transition is now open.
func (g *Game) SetPlayerReady(id string, ready bool) (bool, error) {
	p, ok := g.players[id]
	if !ok {
		return false, ErrPlayerNotFound
	}
	p.Ready = ready
	return g.ReadyToAdvance(), nil
}

// Restart resets a finished game back to the waiting baseline with a fresh
// puzzle, preserving player identities and connections.
func (g *Game) Restart(puz *puzzle.Puzzle) error {
	if g.phase != PhaseFinished {
		return ErrGameNotFinished
	}
	g.puzzle = puz
	g.puzzles = []*puzzle.Puzzle{puz}
	g.currentRound = 0
	g.phase = PhaseWaiting
	g.roundStart = time.Time{}
	g.roundEnd = time.Time{}
	g.roundResults = nil
	g.finalResults = nil
	for _, p := range g.players {
		p.Words = nil
		p.RoundScore = 0
		p.TotalScore = 0
		p.Ready = false
		p.HasSubmitted = false
		p.bestWord = ""
		p.bestWordPoints = 0
	}
	return nil
}
