package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/docstore"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	natsevents "live-quiz-service/internal/infra/nats"
	"live-quiz-service/internal/infra/postgres"
	redisstore "live-quiz-service/internal/infra/redis"
	"live-quiz-service/internal/logging"
	transport "live-quiz-service/internal/transport/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// services is everything a coordinator needs, built from config.
type services struct {
	coord   *app.Coordinator
	quizzes app.QuizRepository
	closers []func()
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// buildServices picks redis/postgres/nats when configured and falls back to in-memory
// implementations otherwise, so a bare `start` works on a laptop.
func buildServices(ctx context.Context, cfg config.Config) (*services, error) {
	s := &services{}
	fail := func(err error) (*services, error) {
		s.Close()
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s.closers = append(s.closers, func() { _ = redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fail(err)
		}
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	var history app.HistoryRepository = memory.NewHistoryRepository()
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fail(err)
		}
		s.closers = append(s.closers, pool.Close)
		loader = postgres.NewQuizLoader(pool)

		db := postgres.OpenBun(cfg.Postgres.URL)
		s.closers = append(s.closers, func() { _ = db.Close() })
		history = postgres.NewHistoryRepository(db)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var store docstore.Store
	if redisClient != nil {
		s.quizzes = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
		var opts []redisstore.DocumentStoreOption
		if cfg.Redis.KeyPrefix != "" {
			opts = append(opts, redisstore.WithKeyPrefix(cfg.Redis.KeyPrefix))
		}
		store = redisstore.NewDocumentStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 2*time.Hour), opts...)
	} else {
		s.quizzes = memory.NewQuizRepository(loader, quizTTL)
		store = memory.NewDocumentStore()
	}

	var events app.EventPublisher = app.NopPublisher{}
	if cfg.NATS.URL != "" {
		conn, err := natsevents.Connect(cfg.NATS.URL)
		if err != nil {
			return fail(err)
		}
		s.closers = append(s.closers, func() { _ = conn.Drain() })
		events = natsevents.NewEventPublisher(conn, cfg.NATS.SubjectPrefix)
	}

	opts := []app.Option{
		app.WithEventPublisher(events),
		app.WithDefaultTimeLimit(config.TTLDuration(cfg.Game.DefaultTimeLimit, domain.DefaultTimeLimit)),
	}
	if cfg.Game.CodeAttempts > 0 {
		opts = append(opts, app.WithCodeAttempts(cfg.Game.CodeAttempts))
	}
	s.coord = app.NewCoordinator(store, s.quizzes, history, opts...)

	log.Info().
		Bool("redis", redisClient != nil).
		Bool("postgres", cfg.Postgres.URL != "").
		Bool("nats", cfg.NATS.URL != "").
		Msg("services ready")
	return s, nil
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	if cfg.Log.Level != "" || cfg.Log.Pretty {
		logging.Setup(cfg.Log.Level, cfg.Log.Pretty)
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

	svc, err := buildServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewRouter(svc.coord, cfg.CORS.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("starting quiz service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
