package game

import (
	"time"

	"example.com/sb-mvp/internal/puzzle"
)

// GameState is the broadcastable view of a Game. It carries the full puzzle
// because word legality is checked client-side, and a reconnecting client
// needs everything to resume the round in progress.
type GameState struct {
	RoomCode     string        `json:"roomCode"`
	GameStatus   string        `json:"gameStatus"`
	RoundStatus  string        `json:"roundStatus"`
	CurrentRound int           `json:"currentRound"`
	TotalRounds  int           `json:"totalRounds"`
	RoundStartMs int64         `json:"roundStartMs,omitempty"`
	RoundEndMs   int64         `json:"roundEndMs,omitempty"`
	Puzzle       *puzzle.Puzzle `json:"puzzle,omitempty"`
	Players      []PlayerState `json:"players"`
	FinalResults *FinalResults `json:"finalResults,omitempty"`
}

type PlayerState struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Ready        bool   `json:"ready"`
	Connected    bool   `json:"connected"`
	RoundScore   int    `json:"roundScore"`
	TotalScore   int    `json:"totalScore"`
	WordCount    int    `json:"wordCount"`
	HasSubmitted bool   `json:"hasSubmitted"`
}

type RoundInfo struct {
	Round      int            `json:"round"`
	DurationMs int64          `json:"durationMs"`
	EndsAtMs   int64          `json:"endsAtMs"`
	Puzzle     *puzzle.Puzzle `json:"puzzle"`
}

// State builds the wire view. The puzzle is exposed once play has begun;
// while waiting, the letters stay hidden.
func (g *Game) State() *GameState {
	st := &GameState{
		RoomCode:     g.roomCode,
		GameStatus:   g.phase.GameStatus(),
		RoundStatus:  g.phase.RoundStatus(),
		CurrentRound: g.currentRound,
		TotalRounds:  g.cfg.TotalRounds,
		RoundStartMs: toMs(g.roundStart),
		RoundEndMs:   toMs(g.roundEnd),
		Players:      make([]PlayerState, 0, len(g.players)),
		FinalResults: g.finalResults,
	}
	if g.phase != PhaseWaiting {
		st.Puzzle = g.puzzle
	}
	for _, id := range g.order {
		p := g.players[id]
		st.Players = append(st.Players, PlayerState{
			ID:           p.ID,
			Name:         p.Name,
			Ready:        p.Ready,
			Connected:    p.Connected,
			RoundScore:   p.RoundScore,
			TotalScore:   p.TotalScore,
			WordCount:    len(p.Words),
			HasSubmitted: p.HasSubmitted,
		})
	}
	return st
}

func (g *Game) roundInfo() RoundInfo {
	return RoundInfo{
		Round:      g.currentRound,
		DurationMs: g.cfg.RoundDuration.Milliseconds(),
		EndsAtMs:   toMs(g.roundEnd),
		Puzzle:     g.puzzle,
	}
}

func (g *Game) playerState(p *Player) PlayerState {
	return PlayerState{
		ID:           p.ID,
		Name:         p.Name,
		Ready:        p.Ready,
		Connected:    p.Connected,
		RoundScore:   p.RoundScore,
		TotalScore:   p.TotalScore,
		WordCount:    len(p.Words),
		HasSubmitted: p.HasSubmitted,
	}
}

func toMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
