package main

import (
	"context"
	"database/sql"
	"os"
	"time"

	"net/http"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"ledger/internal/cache"
	"ledger/internal/health"
	"ledger/internal/logger"
	"ledger/internal/marketstore"
	"ledger/internal/purchase"
	"ledger/internal/server"
	httptransport "ledger/internal/transport/http"
)

func main() {
	logger.InitFromEnv()
	log := logger.WithService("ledger")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set")
	}
	db := connectWithRetry(dbURL, log)
	defer db.Close()

	storeRepo := marketstore.NewPostgresRepository(db)
	purchaseRepo := purchase.NewPostgresRepository(db)
	ctx := context.Background()
	if err := storeRepo.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to init market_stores schema")
	}
	if err := purchaseRepo.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to init purchase_records schema")
	}

	var nameCache marketstore.NameCache
	var redisCache *cache.Redis
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c, err := cache.New(addr)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, running without cache")
		} else {
			redisCache = c
			nameCache = c
		}
	}

	storeSvc := marketstore.NewService(storeRepo, nameCache)
	purchaseSvc := purchase.NewService(purchaseRepo)
	router := httptransport.NewRouter(storeSvc, purchaseSvc)

	h := health.New()
	h.Register("database", func(ctx context.Context) health.CheckResult {
		if err := db.PingContext(ctx); err != nil {
			return health.CheckResult{Status: health.StatusUnhealthy, Message: err.Error()}
		}
		return health.CheckResult{Status: health.StatusOK}
	})
	if redisCache != nil {
		defer redisCache.Close()
	}

	mux := http.NewServeMux()
	mux.Handle("/", router)
	mux.Handle("/healthz", h.Handler())

	port := os.Getenv("PORT")
	if port == "" {
		port = "8082"
	}
	srv := server.New(server.DefaultConfig(":"+port), mux)
	log.Info().Str("port", port).Msg("ledger listening")
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
