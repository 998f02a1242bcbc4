package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PlayerStats struct {
	UserID         string
	GamesPlayed    int
	Wins           int
	Ties           int
	TotalPoints    int
	BestWord       string
	BestWordPoints int
	UpdatedAt      time.Time
}

type StatsStore struct {
	db *pgxpool.Pool
}

func NewStatsStore(db *pgxpool.Pool) *StatsStore {
	return &StatsStore{db: db}
}

func (s *StatsStore) InitForUser(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO player_stats (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	return err
}

// RecordGame folds one finished game into a player's stats. Guest players
// have no users row; the INSERT ... SELECT makes the call a no-op for them.
func (s *StatsStore) RecordGame(ctx context.Context, userID string, points int, won, tie bool, bestWord string, bestWordPoints int) error {
	win, tied := 0, 0
	if won {
		win = 1
	}
	if tie {
		tied = 1
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO player_stats (user_id, games_played, wins, ties, total_points, best_word, best_word_points)
		SELECT id, 1, $2, $3, $4, $5, $6 FROM users WHERE id = $1
		ON CONFLICT (user_id) DO UPDATE SET
			games_played     = player_stats.games_played + 1,
			wins             = player_stats.wins + EXCLUDED.wins,
			ties             = player_stats.ties + EXCLUDED.ties,
			total_points     = player_stats.total_points + EXCLUDED.total_points,
			best_word        = CASE WHEN EXCLUDED.best_word_points > player_stats.best_word_points
			                        THEN EXCLUDED.best_word ELSE player_stats.best_word END,
			best_word_points = GREATEST(player_stats.best_word_points, EXCLUDED.best_word_points),
			updated_at       = now()
	`, userID, win, tied, points, bestWord, bestWordPoints)
	return err
}

func (s *StatsStore) Get(ctx context.Context, userID string) (PlayerStats, error) {
	var st PlayerStats
	err := s.db.QueryRow(ctx, `
		SELECT user_id, games_played, wins, ties, total_points, best_word, best_word_points, updated_at
		FROM player_stats
		WHERE user_id=$1
	`, userID).Scan(&st.UserID, &st.GamesPlayed, &st.Wins, &st.Ties,
		&st.TotalPoints, &st.BestWord, &st.BestWordPoints, &st.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		// no stats yet is not fatal, report zeros
		return PlayerStats{UserID: userID}, nil
	}
	if err != nil {
		return PlayerStats{}, err
	}
	return st, nil
}
