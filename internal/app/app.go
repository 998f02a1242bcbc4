package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"example.com/sb-mvp/internal/auth"
	"example.com/sb-mvp/internal/config"
	"example.com/sb-mvp/internal/game"
	"example.com/sb-mvp/internal/httpapi"
	"example.com/sb-mvp/internal/puzzle"
	"example.com/sb-mvp/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg config.Config
	log *slog.Logger

	db  *pgxpool.Pool
	rdb *redis.Client

	registry *game.Registry
	srv      *http.Server
}

type Options struct {
	Static http.Handler // optional; if nil, no frontend is served
}

func New(ctx context.Context, cfg config.Config, log *slog.Logger, opts Options) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	// --- Puzzle catalog (read-only after this point) ---
	catalog, err := puzzle.LoadDir(cfg.Puzzles.Dir)
	if err != nil {
		return nil, err
	}
	log.Info("puzzle catalog loaded", "dir", cfg.Puzzles.Dir, "puzzles", catalog.Len())

	// --- Postgres ---
	dbpool, err := pgxpool.New(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})

	// Quick connectivity checks (fail fast).
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := dbpool.Ping(pingCtx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		dbpool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping (%s db=%d): %w", cfg.Redis.Addr, cfg.Redis.DB, err)
	}

	// --- Auth + stores ---
	authSvc := auth.NewService([]byte(cfg.Auth.Secret), cfg.Auth.TokenTTL)
	users := store.NewUserStore(dbpool)
	stats := store.NewStatsStore(dbpool)

	authH := &httpapi.AuthHandler{
		Users: users,
		Stats: stats,
		Auth:  authSvc,
	}

	// --- Game ---
	results := game.NewResultsStore(rdb, cfg.Redis.ResultsTTL)
	registry := game.NewRegistry(game.Config{
		RoundDuration: cfg.Game.RoundDuration,
		Countdown:     cfg.Game.Countdown,
		GraceWindow:   cfg.Game.GraceWindow,
		CleanupGrace:  cfg.Game.CleanupGrace,
		TotalRounds:   cfg.Game.TotalRounds,
		MinPlayers:    cfg.Game.MinPlayers,
		MaxPlayers:    cfg.Game.MaxPlayers,
	}, catalog, log)
	registry.OnGameFinished = finishHook(log, results, stats)

	gameSrv := game.NewServer(registry, authSvc, results)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	gameSrv.RegisterRoutes(mux)

	// --- auth routes ---
	mux.HandleFunc("/api/auth/register", authH.Register)
	mux.HandleFunc("/api/auth/login", authH.Login)
	mux.Handle("/api/me", httpapi.AuthMiddleware(authSvc)(http.HandlerFunc(authH.Me)))
	mux.Handle("/api/stats/me", httpapi.AuthMiddleware(authSvc)(http.HandlerFunc(authH.MyStats)))

	if opts.Static != nil {
		mux.Handle("/", opts.Static)
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	return &App{cfg: cfg, log: log, db: dbpool, rdb: rdb, registry: registry, srv: srv}, nil
}

// finishHook persists the post-game artifacts: final results to Redis for
// the lookup endpoint, stats rows for players with accounts.
func finishHook(log *slog.Logger, results *game.ResultsStore, stats *store.StatsStore) func(string, []game.RoundResult, *game.FinalResults) {
	return func(roomCode string, rounds []game.RoundResult, final *game.FinalResults) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := results.Save(ctx, game.FinalRecord{
			RoomCode:     roomCode,
			FinalResults: final,
			Rounds:       rounds,
		}); err != nil {
			log.Error("save final results", "room", roomCode, "err", err)
		}

		for _, fs := range final.FinalScores {
			won := final.Winner != nil && final.Winner.PlayerID == fs.PlayerID
			err := stats.RecordGame(ctx, fs.PlayerID, fs.TotalScore, won, final.IsTie, fs.BestWord, fs.BestWordPoints)
			if err != nil {
				log.Error("record player stats", "room", roomCode, "player", fs.PlayerID, "err", err)
			}
		}
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	a.log.Info("http server starting", "addr", a.cfg.HTTP.Addr)

	g.Go(func() error {
		err := a.srv.ListenAndServe()
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		a.log.Info("http server shutting down")
		_ = a.srv.Shutdown(shutdownCtx)
		return nil
	})

	err := g.Wait()
	_ = a.Close(context.Background())
	return err
}

func (a *App) Close(ctx context.Context) error {
	// best-effort
	if a.registry != nil {
		a.registry.Shutdown()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	return nil
}
