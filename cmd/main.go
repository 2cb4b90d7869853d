package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ssmtariq/telemetry-core/internal/aggregation"
	"github.com/ssmtariq/telemetry-core/internal/config"
	"github.com/ssmtariq/telemetry-core/internal/database"
	"github.com/ssmtariq/telemetry-core/internal/entity"
	"github.com/ssmtariq/telemetry-core/internal/models"
	"github.com/ssmtariq/telemetry-core/internal/subscription"
	"github.com/ssmtariq/telemetry-core/internal/telemetry"
	"github.com/ssmtariq/telemetry-core/internal/ws"
)

// Command telemetry-core serves live telemetry queries and subscriptions.
//
// The service supports:
//   - Chunked time-range aggregation (AVG, MIN, MAX, SUM, COUNT)
//   - Live websocket subscriptions over entity queries
//   - Entity count and alarm subscriptions
//   - TimescaleDB integration
//   - Prometheus metrics
//
// Usage:
//
//	telemetry-core [flags]
//
// The flags are:
//
//	-config string
//	      path to config file (default "config.yaml")
func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	appConfig, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(appConfig.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	logger.WithFields(logrus.Fields{
		"port": appConfig.Server.Port,
	}).Info("Starting server")

	store, err := database.NewPostgresStore(appConfig.Database.DSN())
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	store.DB().SetMaxOpenConns(appConfig.Database.MaxConnections)

	resolver, err := entity.NewSQLResolver(store.DB(), appConfig.Cache.EntityCacheSize, logger)
	if err != nil {
		logger.Fatalf("Failed to create entity resolver: %v", err)
	}

	engine := aggregation.NewEngine(store, appConfig.WS.DefaultLimit, logger)
	hub := telemetry.NewHub(logger)
	stats := subscription.NewStats(prometheus.DefaultRegisterer)

	// The websocket server is built first so the subscription service can
	// use it as its outbound channel; the command handler is attached after.
	wsServer := ws.NewServer(ws.Config{
		CommandsPerSecond: appConfig.WS.CommandsPerSecond,
		CommandBurst:      appConfig.WS.CommandBurst,
		AllowedOrigins:    appConfig.WS.AllowedOrigins,
	}, logger)

	svc := subscription.NewService(subscription.Config{
		RefreshInterval:                   time.Duration(appConfig.WS.RefreshIntervalSec) * time.Second,
		RefreshPoolSize:                   appConfig.WS.RefreshPoolSize,
		MaxEntitiesPerDataSubscription:    appConfig.WS.MaxEntitiesPerDataSubscription,
		MaxEntitiesPerAlarmSubscription:   appConfig.WS.MaxEntitiesPerAlarmSubscription,
		MaxAlarmQueriesPerRefreshInterval: appConfig.WS.MaxAlarmQueriesPerRefreshInterval,
		StatsIntervalSeconds:              appConfig.WS.StatsIntervalSec,
	}, subscription.Deps{
		Registry: subscription.NewRegistry(),
		Engine:   engine,
		Resolver: resolver,
		Alarms:   store,
		Attrs:    store,
		Hub:      hub,
		Channel:  wsServer,
		Stats:    stats,
		Log:      logger,
	})
	wsServer.SetHandler(svc)

	if err := svc.Start(); err != nil {
		logger.Fatalf("Failed to start subscription service: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/ws", wsServer)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/api/v1/telemetry", &ingestHandler{store: store, hub: hub, log: logger})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", appConfig.Server.Host, appConfig.Server.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		logger.Fatalf("Service error: %v", err)
	case sig := <-sigChan:
		logger.Printf("Received signal %v, initiating shutdown", sig)
	}

	logger.Println("Gracefully stopping server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP shutdown did not complete cleanly")
	}
	svc.Stop()
	if err := store.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close store")
	}
	logger.Println("Server stopped")
}

// ingestRequest is one telemetry write: values keyed by time-series key,
// string values kept as strings, everything numeric stored as a double.
type ingestRequest struct {
	EntityID string                     `json:"entityId"`
	Ts       int64                      `json:"ts,omitempty"`
	Values   map[string]json.RawMessage `json:"values"`
}

// ingestHandler persists telemetry writes and fans them out to live
// subscriptions through the hub.
type ingestHandler struct {
	store *database.PostgresStore
	hub   *telemetry.Hub
	log   *logrus.Logger
}

func (h *ingestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.EntityID == "" || len(req.Values) == 0 {
		http.Error(w, "entityId and values are required", http.StatusBadRequest)
		return
	}
	ts := req.Ts
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}

	samples := make([]models.Sample, 0, len(req.Values))
	for key, raw := range req.Values {
		sample := models.Sample{Key: key, Ts: ts}
		var num float64
		if err := json.Unmarshal(raw, &num); err == nil {
			sample.NumVal = &num
		} else {
			var str string
			if err := json.Unmarshal(raw, &str); err != nil {
				http.Error(w, fmt.Sprintf("value for %q must be a number or a string", key), http.StatusBadRequest)
				return
			}
			sample.StrVal = &str
		}
		samples = append(samples, sample)
	}

	if err := h.store.BatchSaveSamples(r.Context(), req.EntityID, samples); err != nil {
		h.log.WithError(err).WithField("entity", req.EntityID).Error("Failed to save telemetry")
		http.Error(w, "failed to save telemetry", http.StatusInternalServerError)
		return
	}
	h.hub.OnTimeSeriesUpdate(req.EntityID, samples)
	w.WriteHeader(http.StatusOK)
}
