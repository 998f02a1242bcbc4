package game

import "time"

// Config carries every game constant so tests can shrink the clocks.
// Zero values fall back to the production defaults.
type Config struct {
	RoundDuration time.Duration // word-finding period per round
	Countdown     time.Duration // broadcast before a round starts
	GraceWindow   time.Duration // wait for in-flight results after expiry
	CleanupGrace  time.Duration // empty-room lifetime before destruction
	TickInterval  time.Duration // cadence of timer-update broadcasts

	TotalRounds int
	MinPlayers  int
	MaxPlayers  int

	CodeRetries int // room code collision retries
}

const (
	DefaultRoundDuration = 90 * time.Second
	DefaultCountdown     = 3 * time.Second
	DefaultGraceWindow   = 2 * time.Second
	DefaultCleanupGrace  = 5 * time.Minute
	DefaultTickInterval  = time.Second
	DefaultTotalRounds   = 3
	DefaultMinPlayers    = 2
	DefaultMaxPlayers    = 8
	DefaultCodeRetries   = 100
)

func (c Config) withDefaults() Config {
	if c.RoundDuration == 0 {
		c.RoundDuration = DefaultRoundDuration
	}
	if c.Countdown == 0 {
		c.Countdown = DefaultCountdown
	}
	if c.GraceWindow == 0 {
		c.GraceWindow = DefaultGraceWindow
	}
	if c.CleanupGrace == 0 {
		c.CleanupGrace = DefaultCleanupGrace
	}
	if c.TickInterval == 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.TotalRounds == 0 {
		c.TotalRounds = DefaultTotalRounds
	}
	if c.MinPlayers == 0 {
		c.MinPlayers = DefaultMinPlayers
	}
	if c.MaxPlayers == 0 {
		c.MaxPlayers = DefaultMaxPlayers
	}
	if c.CodeRetries == 0 {
		c.CodeRetries = DefaultCodeRetries
	}
	return c
}
