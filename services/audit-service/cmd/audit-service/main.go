package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/eventledger/libs/config"
	"github.com/md-rashed-zaman/eventledger/libs/db"
	"github.com/md-rashed-zaman/eventledger/libs/httpx"
	"github.com/md-rashed-zaman/eventledger/libs/inbox"
	"github.com/md-rashed-zaman/eventledger/libs/kafkax"
	otelx "github.com/md-rashed-zaman/eventledger/libs/otel"
	"github.com/md-rashed-zaman/eventledger/libs/runtime"
	"github.com/md-rashed-zaman/eventledger/services/audit-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "audit-service")
	port, err := config.Port("PORT", "8091")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Error("schema migration failed", "err", err)
		panic(err)
	}

	var cache *inbox.Cache
	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()
		cache = inbox.NewCache(rdb, config.Duration("INBOX_CACHE_TTL", 24*time.Hour), "inbox")
	}

	auditRepo := storage.NewRepository(pool)
	inboxStore := inbox.NewPostgresStore(pool)

	consumer := inbox.NewConsumer(logger, inboxStore, inbox.Config{
		Brokers: config.String("KAFKA_BROKERS", ""),
		GroupID: config.String("KAFKA_GROUP_ID", "audit-service"),
		Topic:   config.String("KAFKA_CONSUME_TOPIC", "ledger.events"),
		Lease:   config.Duration("INBOX_CLAIM_LEASE", 30*time.Second),
		Cache:   cache,
	}, func(ctx context.Context, msg kafka.Message) error {
		meta := kafkax.ExtractEventMeta(msg)
		return auditRepo.Record(ctx, meta.EventID, meta.EventType, msg.Value)
	})
	go consumer.Run(ctx)

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	}
	if rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.HandleFunc("GET /audit/recent", func(w http.ResponseWriter, r *http.Request) {
		events, err := auditRepo.ListRecent(r.Context(), config.Int("AUDIT_LIST_LIMIT", 50))
		if err != nil {
			http.Error(w, "list audit events: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(events)
	})

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("HTTP_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("HTTP_REQUEST_TIMEOUT", 10*time.Second)),
	)
	handler = otelhttp.NewHandler(handler, "audit")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
