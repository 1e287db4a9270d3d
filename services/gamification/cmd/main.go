package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"gamification/internal/gamification"
	"gamification/internal/health"
	"gamification/internal/logger"
	"gamification/internal/metrics"
	"gamification/internal/server"
	httptransport "gamification/internal/transport/http"
)

func main() {
	logger.InitFromEnv()
	log := logger.WithService("gamification")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set")
	}
	db := connectWithRetry(dbURL, log)
	defer db.Close()

	repo := gamification.NewPostgresRepository(db)
	ctx := context.Background()
	if err := repo.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to init gamification schema")
	}

	recorder := metrics.Recorder{}
	engine := gamification.NewService(repo, recorder)
	notifier := gamification.NewNotificationService(repo)
	rewards := gamification.NewRewardService(repo, repo)
	special := gamification.NewSpecialRewardService(repo, notifier)

	router := httptransport.NewRouter(engine, rewards, special, notifier)

	h := health.New()
	h.Register("database", func(ctx context.Context) health.CheckResult {
		if err := db.PingContext(ctx); err != nil {
			return health.CheckResult{Status: health.StatusUnhealthy, Message: err.Error()}
		}
		return health.CheckResult{Status: health.StatusOK}
	})

	mux := http.NewServeMux()
	mux.Handle("/", router)
	mux.Handle("/healthz", h.Handler())

	port := os.Getenv("PORT")
	if port == "" {
		port = "8084"
	}
	srv := server.New(server.DefaultConfig(":"+port), mux)
	log.Info().Str("port", port).Msg("gamification listening")
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func connectWithRetry(dsn string, log zerolog.Logger) *sql.DB {
	var db *sql.DB
	var err error
	for i := 0; i < 10; i++ {
		db, err = sql.Open("postgres", dsn)
		if err == nil {
			if err = db.Ping(); err == nil {
				return db
			}
		}
		log.Warn().Int("attempt", i+1).Msg("waiting for database")
		time.Sleep(2 * time.Second)
	}
	log.Fatal().Err(err).Msg("failed to connect to database")
	return nil
}
