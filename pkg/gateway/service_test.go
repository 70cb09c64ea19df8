package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"fbgate/pkg/bot"
	"fbgate/pkg/bus"
	"fbgate/pkg/channel"
	"fbgate/pkg/config"
)

type toggledHealthEngine struct {
	mu        sync.Mutex
	healthErr error
}

func (e *toggledHealthEngine) Health(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.healthErr
}

func (e *toggledHealthEngine) Analyse(context.Context, string, bot.Request) ([]bot.Response, error) {
	return []bot.Response{{Type: bot.ResponseText, Message: "ok"}}, nil
}

func (e *toggledHealthEngine) setHealthErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.healthErr = err
}

type recordingProcessor struct {
	mu         sync.Mutex
	processed  []bus.Delivery
	processErr error
}

func (p *recordingProcessor) Process(_ context.Context, delivery bus.Delivery) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed = append(p.processed, delivery)
	return p.processErr
}

func (p *recordingProcessor) snapshot() []bus.Delivery {
	p.mu.Lock()
	defer p.mu.Unlock()

	deliveries := make([]bus.Delivery, len(p.processed))
	copy(deliveries, p.processed)
	return deliveries
}

type echoAdapter struct {
	name string
	bus  *bus.DeliveryBus
}

func (a *echoAdapter) Name() string {
	return a.name
}

func (a *echoAdapter) Mount(r chi.Router) {
	r.Post("/webhook/{tenant}", func(w http.ResponseWriter, req *http.Request) {
		payload, _ := io.ReadAll(req.Body)
		a.bus.PublishDelivery(req.Context(), bus.Delivery{
			Tenant:  chi.URLParam(req, "tenant"),
			Channel: a.name,
			Payload: payload,
		})
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

func newTestService(t *testing.T, engine bot.Engine, processor channel.Processor) (*Service, *bus.DeliveryBus, int) {
	t.Helper()

	port := freeTCPPort(t)
	cfg := &config.Config{
		Gateway: config.GatewayConfig{Host: "127.0.0.1", Port: port},
	}

	deliveryBus := bus.NewDeliveryBus()
	adapter := &echoAdapter{name: "facebook", bus: deliveryBus}

	svc, err := NewService(cfg, engine, deliveryBus, []channel.Adapter{adapter}, processor, slog.Default())
	require.NoError(t, err)

	return svc, deliveryBus, port
}

func TestServiceRunProcessesQueuedDeliveries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := &toggledHealthEngine{}
	processor := &recordingProcessor{}
	svc, _, port := newTestService(t, engine, processor)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	webhookURL := fmt.Sprintf("http://127.0.0.1:%d/webhook/hku", port)
	require.Equal(t, http.StatusOK, waitHTTPPost(t, webhookURL, `{"object":"page"}`, 2*time.Second))

	require.Eventually(t, func() bool {
		return len(processor.snapshot()) == 1
	}, 2*time.Second, 25*time.Millisecond)

	deliveries := processor.snapshot()
	require.Equal(t, "hku", deliveries[0].Tenant)
	require.Equal(t, "facebook", deliveries[0].Channel)
	require.JSONEq(t, `{"object":"page"}`, string(deliveries[0].Payload))

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for service run to exit")
	}
}

func TestServiceWorkerSurvivesProcessorFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := &toggledHealthEngine{}
	processor := &recordingProcessor{processErr: fmt.Errorf("pipeline exploded")}
	svc, deliveryBus, _ := newTestService(t, engine, processor)

	events, unsubscribe := deliveryBus.SubscribeEvents(ctx, 4)
	defer unsubscribe()

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	require.True(t, deliveryBus.PublishDelivery(ctx, bus.Delivery{Tenant: "hku", Channel: "facebook"}))
	require.True(t, deliveryBus.PublishDelivery(ctx, bus.Delivery{Tenant: "hku", Channel: "facebook"}))

	require.Eventually(t, func() bool {
		return len(processor.snapshot()) == 2
	}, 2*time.Second, 25*time.Millisecond)

	select {
	case event := <-events:
		require.Equal(t, bus.EventDeliveryFailed, event.Type)
		require.Contains(t, event.Error, "pipeline exploded")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for failure event")
	}

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for service run to exit")
	}
}

type gatedProcessor struct {
	mu        sync.Mutex
	processed []bus.Delivery
	gate      chan struct{}
}

func (p *gatedProcessor) Process(_ context.Context, delivery bus.Delivery) error {
	<-p.gate

	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed = append(p.processed, delivery)
	return nil
}

func (p *gatedProcessor) snapshot() []bus.Delivery {
	p.mu.Lock()
	defer p.mu.Unlock()

	deliveries := make([]bus.Delivery, len(p.processed))
	copy(deliveries, p.processed)
	return deliveries
}

func TestServiceShutdownDrainsQueuedDeliveries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := &toggledHealthEngine{}
	processor := &gatedProcessor{gate: make(chan struct{})}
	svc, deliveryBus, _ := newTestService(t, engine, processor)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	require.True(t, deliveryBus.PublishDelivery(ctx, bus.Delivery{Tenant: "first"}))
	require.True(t, deliveryBus.PublishDelivery(ctx, bus.Delivery{Tenant: "second"}))

	cancel()
	close(processor.gate)

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for service run to exit")
	}

	deliveries := processor.snapshot()
	require.Len(t, deliveries, 2)
	require.Equal(t, "first", deliveries[0].Tenant)
	require.Equal(t, "second", deliveries[1].Tenant)
}

func TestServiceRunFailsWhenEngineUnhealthyAtStartup(t *testing.T) {
	engine := &toggledHealthEngine{healthErr: fmt.Errorf("engine down")}
	processor := &recordingProcessor{}
	svc, _, _ := newTestService(t, engine, processor)

	err := svc.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "engine health check failed")
}

func TestServiceReadyzTransitionsOnEngineHealthRecovery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := &toggledHealthEngine{}
	processor := &recordingProcessor{}
	svc, _, port := newTestService(t, engine, processor)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	readyURL := fmt.Sprintf("http://127.0.0.1:%d/readyz", port)
	require.Equal(t, http.StatusOK, waitHTTPStatus(t, readyURL, 2*time.Second))

	engine.setHealthErr(fmt.Errorf("temporary engine outage"))
	require.Error(t, svc.checkEngineHealth(context.Background()))
	require.Equal(t, http.StatusServiceUnavailable, waitHTTPStatus(t, readyURL, 2*time.Second))

	engine.setHealthErr(nil)
	require.NoError(t, svc.checkEngineHealth(context.Background()))
	require.Equal(t, http.StatusOK, waitHTTPStatus(t, readyURL, 2*time.Second))

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for service run to exit")
	}
}

func TestServiceHealthzReportsStatusBody(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := &toggledHealthEngine{}
	processor := &recordingProcessor{}
	svc, _, port := newTestService(t, engine, processor)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	healthURL := fmt.Sprintf("http://127.0.0.1:%d/healthz", port)
	require.Equal(t, http.StatusOK, waitHTTPStatus(t, healthURL, 2*time.Second))

	response, err := http.Get(healthURL)
	require.NoError(t, err)
	defer response.Body.Close()

	var status statusResponse
	require.NoError(t, json.NewDecoder(response.Body).Decode(&status))
	require.Equal(t, "ok", status.Status)
	require.Equal(t, []string{"facebook"}, status.Channels)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for service run to exit")
	}
}

func waitHTTPStatus(t *testing.T, url string, timeout time.Duration) int {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		response, err := http.Get(url)
		if err == nil {
			statusCode := response.StatusCode
			require.NoError(t, response.Body.Close())
			return statusCode
		}

		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s: %v", url, err)
		}

		time.Sleep(25 * time.Millisecond)
	}
}

func waitHTTPPost(t *testing.T, url, body string, timeout time.Duration) int {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		response, err := http.Post(url, "application/json", bytes.NewReader([]byte(body)))
		if err == nil {
			statusCode := response.StatusCode
			require.NoError(t, response.Body.Close())
			return statusCode
		}

		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s: %v", url, err)
		}

		time.Sleep(25 * time.Millisecond)
	}
}

func freeTCPPort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	addr, ok := listener.Addr().(*net.TCPAddr)
	require.True(t, ok)
	return addr.Port
}
