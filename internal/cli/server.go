package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"mathrush/internal/config"
	"mathrush/internal/domain"
	"mathrush/internal/game"
	"mathrush/internal/infra/memory"
	pgloader "mathrush/internal/infra/postgres"
	redisinfra "mathrush/internal/infra/redis"
	transport "mathrush/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the round session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.PackLoader = memory.NewStaticPackLoader(samplePacks())
	if pool != nil {
		loader = pgloader.NewPackLoader(pool)
	}
	packTTL := config.Duration(cfg.Questions.TTL, 10*time.Minute)
	packs := memory.NewPackRepository(loader, packTTL)

	packID := cfg.Questions.Pack
	if packID == "" {
		packID = "arithmetic"
	}
	// Fail fast on an empty or malformed pack instead of at first connection.
	if _, err := packs.GetPack(ctx, packID); err != nil {
		return err
	}

	var profiles transport.ProfileStore
	var board game.ScoreBoard
	if redisClient != nil {
		profiles = redisinfra.NewProfileStore(redisClient)
		board = redisinfra.NewLeaderboard(redisClient)
	} else {
		store := memory.NewStore()
		profiles = store
		board = store
	}

	rules := rulesFromConfig(cfg)
	wsHandler := transport.NewWSHandler(packs, profiles, board, rules, packID, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info().Str("port", finalPort).Str("pack", packID).Msg("starting mathrush server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info().Msg("shutting down server")
	case <-ctx.Done():
		logger.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func rulesFromConfig(cfg config.Config) game.Rules {
	rules := game.DefaultRules()
	if cfg.Game.BasePoints > 0 {
		rules.BasePoints = cfg.Game.BasePoints
	}
	if cfg.Game.BaseTimeSeconds > 0 {
		rules.BaseTimeSeconds = cfg.Game.BaseTimeSeconds
	}
	if cfg.Game.MinTimeSeconds > 0 {
		rules.MinTimeSeconds = cfg.Game.MinTimeSeconds
	}
	if cfg.Game.MaxProximity > 0 {
		rules.MaxProximity = cfg.Game.MaxProximity
	}
	rules.SettleDelay = config.Duration(cfg.Game.SettleDelay, rules.SettleDelay)
	rules.FreezeWindow = config.Duration(cfg.Game.FreezeWindow, rules.FreezeWindow)
	return rules
}

// samplePacks provides a minimal question set so the server runs without
// Postgres; production deployments load packs from the question_packs table.
func samplePacks() map[string][]domain.Question {
	return map[string][]domain.Question{
		"arithmetic": {
			{
				ID:     "q1",
				Prompt: "What is 7 x 8?",
				Choices: []domain.Choice{
					{Key: "a", Text: "54"},
					{Key: "b", Text: "56"},
					{Key: "c", Text: "64"},
				},
				Answer: "b",
			},
			{
				ID:     "q2",
				Prompt: "What is 144 / 12?",
				Choices: []domain.Choice{
					{Key: "a", Text: "12"},
					{Key: "b", Text: "14"},
					{Key: "c", Text: "11"},
				},
				Answer: "a",
			},
			{
				ID:     "q3",
				Prompt: "What is 15 + 27?",
				Choices: []domain.Choice{
					{Key: "a", Text: "41"},
					{Key: "b", Text: "43"},
					{Key: "c", Text: "42"},
				},
				Answer: "c",
			},
		},
	}
}
