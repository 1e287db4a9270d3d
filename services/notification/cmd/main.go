package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"notification/internal/health"
	"notification/internal/logger"
	"notification/internal/sender"
	"notification/internal/server"
	"notification/internal/subscription"
	httptransport "notification/internal/transport/http"
	"notification/internal/webpush"
)

func main() {
	logger.InitFromEnv()
	log := logger.WithService("notification")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set")
	}
	db := connectWithRetry(dbURL, log)
	defer db.Close()

	subRepo := subscription.NewPostgresRepository(db)
	notifRepo := sender.NewPostgresRepository(db)
	ctx := context.Background()
	if err := subRepo.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to init user_subscriptions schema")
	}
	if err := notifRepo.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to init notification_records schema")
	}

	webpushAdapter := webpush.New(webpush.Config{
		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		Subscriber:      "mailto:" + envOr("VAPID_EMAIL", "noreply@loyalty.local"),
	})
	if os.Getenv("VAPID_PUBLIC_KEY") == "" {
		log.Warn().Msg("VAPID keys not configured, webpush deliveries will fail")
	}

	var amqpConn *amqp.Connection
	var queue *sender.AMQPQueue
	if rabbitURL := os.Getenv("RABBITMQ_URL"); rabbitURL != "" {
		amqpConn = connectAMQPWithRetry(rabbitURL, log)
		ch, err := amqpConn.Channel()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open amqp channel")
		}
		queue, err = sender.NewAMQPQueue(ch)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to declare delivery queue")
		}
	} else {
		log.Warn().Msg("RABBITMQ_URL not set, /send delivers inline instead of via queue")
	}

	senderSvc := sender.New(notifRepo, &subscriptionAdapter{subRepo}, &webpushAdapter2{webpushAdapter}, queueOrNil(queue))

	if amqpConn != nil {
		consumeCh, err := amqpConn.Channel()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open amqp consumer channel")
		}
		if _, err := consumeCh.QueueDeclare("notification.delivery", true, false, false, false, nil); err != nil {
			log.Fatal().Err(err).Msg("failed to declare delivery queue for consumer")
		}
		go func() {
			if err := sender.Consume(consumeCh, senderSvc); err != nil {
				log.Error().Err(err).Msg("delivery consumer stopped")
			}
		}()
		defer amqpConn.Close()
	}

	router := httptransport.NewRouter(senderSvc)

	h := health.New()
	h.Register("database", func(ctx context.Context) health.CheckResult {
		if err := db.PingContext(ctx); err != nil {
			return health.CheckResult{Status: health.StatusUnhealthy, Message: err.Error()}
		}
		return health.CheckResult{Status: health.StatusOK}
	})
	if amqpConn != nil {
		h.Register("rabbitmq", func(ctx context.Context) health.CheckResult {
			if amqpConn.IsClosed() {
				return health.CheckResult{Status: health.StatusUnhealthy, Message: "connection closed"}
			}
			return health.CheckResult{Status: health.StatusOK}
		})
	}

	mux := http.NewServeMux()
	mux.Handle("/", router)
	mux.Handle("/healthz", h.Handler())

	port := os.Getenv("PORT")
	if port == "" {
		port = "8085"
	}
	srv := server.New(server.DefaultConfig(":"+port), mux)
	log.Info().Str("port", port).Msg("notification listening")
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func queueOrNil(q *sender.AMQPQueue) sender.Queue {
	if q == nil {
		return nil
	}
	return q
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

func connectAMQPWithRetry(url string, log zerolog.Logger) *amqp.Connection {
	var conn *amqp.Connection
	var err error
	for i := 0; i < 15; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn
		}
		log.Warn().Int("attempt", i+1).Msg("waiting for rabbitmq")
		time.Sleep(2 * time.Second)
	}
	log.Fatal().Err(err).Msg("failed to connect to rabbitmq")
	return nil
}

// subscriptionAdapter bridges subscription.PostgresRepository's
// *subscription.Subscription return type to sender.Subscriptions'
// narrower *sender.SubscriptionView.
type subscriptionAdapter struct {
	repo *subscription.PostgresRepository
}

func (a *subscriptionAdapter) GetActive(ctx context.Context, userID, channel string) (*sender.SubscriptionView, error) {
	sub, err := a.repo.GetActive(ctx, userID, channel)
	if err != nil {
		return nil, err
	}
	return &sender.SubscriptionView{Data: sub.Data}, nil
}

func (a *subscriptionAdapter) Deactivate(ctx context.Context, userID, channel string) error {
	return a.repo.Deactivate(ctx, userID, channel)
}

// webpushAdapter2 bridges webpush.Adapter's concrete Result type to
// sender.WebpushSender's structurally distinct WebpushResult.
type webpushAdapter2 struct {
	adapter *webpush.Adapter
}

func (a *webpushAdapter2) Send(data map[string]any, title, message string, extra map[string]any) sender.WebpushResult {
	res := a.adapter.Send(data, title, message, extra)
	return sender.WebpushResult{
		Success:                  res.Success,
		StatusCode:               res.StatusCode,
		Error:                    res.Error,
		ShouldRemoveSubscription: res.ShouldRemoveSubscription,
		ShouldRetry:              res.ShouldRetry,
	}
}
