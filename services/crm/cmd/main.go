package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"shop/services/crm/internal/campaign"
	"shop/services/crm/internal/health"
	"shop/services/crm/internal/llm"
	"shop/services/crm/internal/logger"
	"shop/services/crm/internal/preference"
	"shop/services/crm/internal/segment"
	"shop/services/crm/internal/server"
	"shop/services/crm/internal/siblings"
	httptransport "shop/services/crm/internal/transport/http"
)

func main() {
	logger.InitFromEnv()
	log := logger.WithService("crm")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set")
	}
	db := connectWithRetry(dbURL, log)
	defer db.Close()

	ctx := context.Background()

	segmentRepo := segment.NewPostgresRepository(db)
	if err := segmentRepo.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to init segments schema")
	}
	campaignRepo := campaign.NewPostgresRepository(db)
	if err := campaignRepo.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to init campaigns schema")
	}

	clients := siblings.New(os.Getenv("LEDGER_URL"), os.Getenv("IDENTITY_URL"), os.Getenv("NOTIFICATION_URL"))

	llmCfg := llm.DefaultConfig()
	llmCfg.Endpoint = os.Getenv("LLM_ENDPOINT")
	if m := os.Getenv("LLM_MODEL"); m != "" {
		llmCfg.Model = m
	}
	generator := llm.New(llmCfg)

	prefSvc := preference.New(clients, clients, generator)
	segSvc := segment.New(segmentRepo, clients, prefSvc)
	campSvc := campaign.New(campaignRepo, &segmentAdapter{segSvc}, generator, clients)

	router := httptransport.NewRouter(segSvc, campSvc, prefSvc, clients)

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
		port = "8082"
	}
	srv := server.New(server.DefaultConfig(":"+port), mux)

	log.Info().Str("port", port).Msg("crm listening")
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// segmentAdapter narrows *segment.Service to campaign.SegmentCompiler,
// translating *segment.Segment to campaign's SegmentView.
type segmentAdapter struct {
	svc *segment.Service
}

func (a *segmentAdapter) PreviewUsers(ctx context.Context, segmentID string) ([]string, error) {
	return a.svc.PreviewUsers(ctx, segmentID)
}

func (a *segmentAdapter) Get(ctx context.Context, id string) (*campaign.SegmentView, error) {
	seg, err := a.svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &campaign.SegmentView{
		ID:                  seg.ID,
		Active:              seg.Active,
		PreferencesContains: seg.Filters.PreferencesContains,
	}, nil
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
