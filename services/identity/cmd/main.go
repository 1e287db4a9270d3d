package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"identity/internal/auth"
	"identity/internal/health"
	"identity/internal/logger"
	"identity/internal/server"
	httptransport "identity/internal/transport/http"

	"github.com/google/uuid"
)

func main() {
	logger.InitFromEnv()
	log := logger.WithService("identity")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set")
	}

	db := connectWithRetry(dbURL, log)
	defer db.Close()

	repo := auth.NewPostgresRepository(db)
	if err := repo.InitSchema(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to init schema")
	}

	secret := []byte(os.Getenv("JWT_SECRET"))
	if len(secret) == 0 {
		secret = []byte(uuid.NewString())
		log.Warn().Msg("JWT_SECRET not set, using an ephemeral per-process secret")
	}
	jwtCfg := auth.DefaultConfig(secret)
	if ttl, err := time.ParseDuration(os.Getenv("ACCESS_TOKEN_TTL")); err == nil {
		jwtCfg.AccessTTL = ttl
	}
	jwtManager := auth.NewJWTManager(jwtCfg)

	var ledgerClient auth.LedgerClient
	if addr := os.Getenv("LEDGER_URL"); addr != "" {
		ledgerClient = &ledgerHTTPClient{baseURL: addr, httpClient: &http.Client{Timeout: 10 * time.Second}}
	}

	svc := auth.NewService(repo, jwtManager, ledgerClient)
	router := httptransport.NewRouter(svc, jwtManager)

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
		port = "8081"
	}
	srv := server.New(server.DefaultConfig(":"+port), mux)
	log.Info().Str("port", port).Msg("identity listening")
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

// ledgerHTTPClient implements auth.LedgerClient against ledger's
// internal purchase-rollup endpoint.
type ledgerHTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

func (c *ledgerHTTPClient) PurchaseRollup(ctx context.Context) (auth.PurchaseRollup, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/internal/purchase-rollup", nil)
	if err != nil {
		return auth.PurchaseRollup{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return auth.PurchaseRollup{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return auth.PurchaseRollup{}, fmt.Errorf("ledger rollup: status %d", resp.StatusCode)
	}
	var rollup auth.PurchaseRollup
	if err := json.NewDecoder(resp.Body).Decode(&rollup); err != nil {
		return auth.PurchaseRollup{}, err
	}
	return rollup, nil
}
