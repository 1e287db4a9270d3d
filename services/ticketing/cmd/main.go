package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"ticketing/internal/client"
	"ticketing/internal/health"
	"ticketing/internal/logger"
	"ticketing/internal/server"
	"ticketing/internal/storage"
	"ticketing/internal/ticket"
	httptransport "ticketing/internal/transport/http"
	"ticketing/internal/vision"
	"ticketing/internal/worker"
)

func main() {
	logger.InitFromEnv()
	log := logger.WithService("ticketing")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set")
	}
	db := connectWithRetry(dbURL, log)
	defer db.Close()

	ticketRepo := ticket.NewPostgresRepository(db)
	ctx := context.Background()
	if err := ticketRepo.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to init tickets schema")
	}

	blobs, err := storage.New(storageConfigFromEnv())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build blob storage client")
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure ticket-image bucket")
	}

	maxSize := int64(10 << 20)
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			maxSize = n
		}
	}
	ticketSvc := ticket.NewService(ticketRepo, blobs, maxSize)

	visionCfg := vision.DefaultConfig()
	visionCfg.Endpoint = os.Getenv("VISION_ENDPOINT")
	visionCfg.APIKey = os.Getenv("VISION_API_KEY")
	if m := os.Getenv("VISION_MODEL"); m != "" {
		visionCfg.Model = m
	}
	visionAdapter := vision.New(visionCfg)

	siblings := client.New(os.Getenv("LEDGER_URL"), os.Getenv("GAMIFICATION_URL"))

	workerCfg := worker.DefaultConfig()
	if v := os.Getenv("POLL_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			workerCfg.PollInterval = time.Duration(n) * time.Second
		}
	}
	if os.Getenv("DUPLICATE_DETECTION_DISABLED") == "true" {
		workerCfg.DuplicateDetection = false
	}
	ingestWorker := worker.New(ticketSvc, visionAdapter, siblings, workerCfg, log)

	router := httptransport.NewRouter(ticketSvc, ingestWorker)

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
		port = "8083"
	}
	srv := server.New(server.DefaultConfig(":"+port), mux)

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	go ingestWorker.Run(workerCtx)
	srv.OnShutdown(func(ctx context.Context) error {
		cancelWorker()
		return nil
	})

	log.Info().Str("port", port).Msg("ticketing listening")
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func storageConfigFromEnv() storage.Config {
	cfg := storage.DefaultConfig()
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	cfg.AccessKey = os.Getenv("MINIO_ACCESS_KEY")
	cfg.SecretKey = os.Getenv("MINIO_SECRET_KEY")
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.Bucket = v
	}
	if os.Getenv("MINIO_USE_SSL") == "true" {
		cfg.UseSSL = true
	}
	return cfg
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
