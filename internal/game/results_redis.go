package game

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// FinalRecord is the post-game artifact kept around for a while so players
// can fetch results after the room itself is gone.
type FinalRecord struct {
	RoomCode     string        `json:"roomCode"`
	FinalResults *FinalResults `json:"finalResults"`
	Rounds       []RoundResult `json:"rounds"`
}

// ResultsStore keeps final records in Redis under a TTL. Room state itself
// is never persisted; only the outcome of finished games is.
type ResultsStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewResultsStore(rdb *redis.Client, ttl time.Duration) *ResultsStore {
	return &ResultsStore{rdb: rdb, ttl: ttl}
}

func (s *ResultsStore) key(roomCode string) string {
	return fmt.Sprintf("results:%s", roomCode)
}

func (s *ResultsStore) Save(ctx context.Context, rec FinalRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(rec.RoomCode), b, s.ttl).Err()
}

func (s *ResultsStore) Load(ctx context.Context, roomCode string) (FinalRecord, bool, error) {
	val, err := s.rdb.Get(ctx, s.key(roomCode)).Bytes()
	if err == redis.Nil {
		return FinalRecord{}, false, nil
	}
	if err != nil {
		return FinalRecord{}, false, err
	}

	var rec FinalRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return FinalRecord{}, false, err
	}
	return rec, true, nil
}
