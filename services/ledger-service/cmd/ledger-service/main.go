package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/eventledger/libs/config"
	"github.com/md-rashed-zaman/eventledger/libs/db"
	"github.com/md-rashed-zaman/eventledger/libs/eventlog"
	"github.com/md-rashed-zaman/eventledger/libs/httpx"
	"github.com/md-rashed-zaman/eventledger/libs/kafkax"
	otelx "github.com/md-rashed-zaman/eventledger/libs/otel"
	"github.com/md-rashed-zaman/eventledger/libs/outbox"
	"github.com/md-rashed-zaman/eventledger/libs/retry"
	"github.com/md-rashed-zaman/eventledger/libs/runtime"
)

func main() {
	service := config.String("SERVICE_NAME", "ledger-service")
	port, err := config.Port("PORT", "8090")
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

	outboxStore := outbox.NewPostgresStore(pool)
	eventStore := eventlog.NewPostgresStore(pool)

	brokers := config.String("KAFKA_BROKERS", "")
	if brokers == "" {
		logger.Warn("outbox dispatcher disabled (no kafka brokers configured)")
	} else {
		publisher := outbox.NewKafkaPublisher(kafkax.SplitBrokers(brokers))
		defer publisher.Close()

		dispatcher := outbox.NewDispatcher(outboxStore, publisher, logger, outbox.DispatcherConfig{
			Interval:  config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
			Lease:     config.Duration("OUTBOX_CLAIM_LEASE", 30*time.Second),
			Backoff: retry.Backoff{
				Base:        config.Duration("OUTBOX_BACKOFF_BASE", 5*time.Second),
				Cap:         config.Duration("OUTBOX_BACKOFF_CAP", 5*time.Minute),
				MaxAttempts: config.Int("OUTBOX_MAX_ATTEMPTS", 10),
			},
		})
		go dispatcher.Run(ctx)
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	// Terminal outbox rows are only reachable here; they never surface on a
	// request path.
	mux.HandleFunc("GET /outbox/failed", func(w http.ResponseWriter, r *http.Request) {
		records, err := outboxStore.ListTerminal(r.Context(), config.Int("OUTBOX_FAILED_LIST_LIMIT", 50))
		if err != nil {
			http.Error(w, "list failed rows: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(records)
	})
	// Archival flips stream status for operators; records are never deleted.
	mux.HandleFunc("POST /streams/{stream}/archive", func(w http.ResponseWriter, r *http.Request) {
		streamID := r.PathValue("stream")
		if err := eventStore.ArchiveStream(r.Context(), streamID); err != nil {
			if errors.Is(err, eventlog.ErrEmptyStreamID) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, "archive stream: "+err.Error(), http.StatusInternalServerError)
			return
		}
		logger.Info("stream archived", "stream_id", streamID)
		w.WriteHeader(http.StatusNoContent)
	})

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("HTTP_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("HTTP_REQUEST_TIMEOUT", 10*time.Second)),
	)
	handler = otelhttp.NewHandler(handler, "ledger")
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
