// Package gateway runs the webhook HTTP server and the delivery worker that
// drains the bus behind it.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fbgate/pkg/bot"
	"fbgate/pkg/bus"
	"fbgate/pkg/channel"
	"fbgate/pkg/config"
)

const (
	defaultHost = "0.0.0.0"
	defaultPort = 18790

	engineHealthInterval = 30 * time.Second
)

type Service struct {
	cfg       *config.Config
	log       *slog.Logger
	engine    bot.Engine
	bus       *bus.DeliveryBus
	channels  []channel.Adapter
	processor channel.Processor

	mu             sync.RWMutex
	startedAt      time.Time
	engineLastOKAt time.Time
	engineLastErr  string
	processedCount int64
	failedCount    int64
}

type statusResponse struct {
	Status            string   `json:"status"`
	UptimeSeconds     int64    `json:"uptime_seconds"`
	EngineLastOKAt    string   `json:"engine_last_ok_at,omitempty"`
	EngineLastErr     string   `json:"engine_last_error,omitempty"`
	PendingDeliveries int      `json:"pending_deliveries"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
	Channels          []string `json:"channels"`
}

func NewService(cfg *config.Config, engine bot.Engine, deliveryBus *bus.DeliveryBus, adapters []channel.Adapter, processor channel.Processor, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	if deliveryBus == nil {
		return nil, errors.New("delivery bus is required")
	}
	if len(adapters) == 0 {
		return nil, errors.New("at least one channel adapter is required")
	}
	if processor == nil {
		return nil, errors.New("processor is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		cfg:       cfg,
		log:       log.With("component", "gateway.service"),
		engine:    engine,
		bus:       deliveryBus,
		channels:  adapters,
		processor: processor,
	}, nil
}

// Run serves until the context is canceled or the HTTP server fails. The
// delivery bus is closed on the way out so the worker drains and stops.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	if err := s.checkEngineHealth(ctx); err != nil {
		return err
	}

	serverErrors := make(chan error, 1)
	go s.runServer(ctx, serverErrors)

	ticker := time.NewTicker(engineHealthInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.checkEngineHealth(ctx)
			}
		}
	}()

	workerDone := make(chan struct{})
	go s.runWorker(workerDone)

	select {
	case <-ctx.Done():
		s.bus.Close()
		<-workerDone
		return nil
	case err := <-serverErrors:
		s.bus.Close()
		<-workerDone
		return err
	}
}

// runWorker drains queued deliveries one at a time, preserving arrival order.
// Failures are logged and published as events; the worker never stops on a
// bad delivery. It runs on a detached context: shutdown closes the bus, and
// the worker finishes the in-flight delivery and everything still queued
// before exiting.
func (s *Service) runWorker(done chan<- struct{}) {
	defer close(done)

	ctx := context.Background()
	for {
		delivery, ok := s.bus.ConsumeDelivery(ctx)
		if !ok {
			return
		}

		startedAt := time.Now()
		err := s.processor.Process(ctx, delivery)
		event := bus.Event{
			At:      time.Now(),
			Tenant:  delivery.Tenant,
			Channel: delivery.Channel,
		}
		if err != nil {
			event.Type = bus.EventDeliveryFailed
			event.Error = err.Error()
			s.mu.Lock()
			s.failedCount++
			s.mu.Unlock()
			s.log.Error("Delivery processing failed",
				"tenant", delivery.Tenant,
				"channel", delivery.Channel,
				"duration_ms", time.Since(startedAt).Milliseconds(),
				"error", err)
		} else {
			event.Type = bus.EventDeliveryProcessed
			s.mu.Lock()
			s.processedCount++
			s.mu.Unlock()
			s.log.Debug("Delivery processed",
				"tenant", delivery.Tenant,
				"channel", delivery.Channel,
				"duration_ms", time.Since(startedAt).Milliseconds())
		}
		s.bus.PublishEvent(ctx, event)
	}
}

func (s *Service) runServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultHost
	}

	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultPort
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", s.handleHealth)
	router.Get("/readyz", s.handleReady)
	for _, adapter := range s.channels {
		adapter.Mount(router)
	}

	addr := host + ":" + strconv.Itoa(port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start gateway server: %w", err)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	engineLastOK := ""
	if !s.engineLastOKAt.IsZero() {
		engineLastOK = s.engineLastOKAt.Format(time.RFC3339)
	}

	channels := make([]string, 0, len(s.channels))
	for _, adapter := range s.channels {
		channels = append(channels, adapter.Name())
	}

	return statusResponse{
		Status:            status,
		UptimeSeconds:     uptime,
		EngineLastOKAt:    engineLastOK,
		EngineLastErr:     s.engineLastErr,
		PendingDeliveries: s.bus.Pending(),
		Processed:         s.processedCount,
		Failed:            s.failedCount,
		Channels:          channels,
	}
}

func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.engineLastOKAt.IsZero() {
		return false
	}

	return s.engineLastErr == ""
}

func (s *Service) checkEngineHealth(ctx context.Context) error {
	if err := s.engine.Health(ctx); err != nil {
		s.mu.Lock()
		s.engineLastErr = err.Error()
		s.mu.Unlock()
		return fmt.Errorf("engine health check failed: %w", err)
	}

	s.mu.Lock()
	s.engineLastErr = ""
	s.engineLastOKAt = time.Now().UTC()
	s.mu.Unlock()

	return nil
}
