package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fbgate/pkg/bot"
	"fbgate/pkg/bus"
	"fbgate/pkg/config"
	"fbgate/pkg/profile"
)

type stubEngine struct {
	mu        sync.Mutex
	requests  []bot.Request
	responses []bot.Response
	err       error
}

func (e *stubEngine) Health(context.Context) error {
	return nil
}

func (e *stubEngine) Analyse(_ context.Context, _ string, request bot.Request) ([]bot.Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, request)
	if e.err != nil {
		return nil, e.err
	}
	return e.responses, nil
}

func (e *stubEngine) seen() []bot.Request {
	e.mu.Lock()
	defer e.mu.Unlock()

	requests := make([]bot.Request, len(e.requests))
	copy(requests, e.requests)
	return requests
}

type graphFake struct {
	mu       sync.Mutex
	messages []map[string]any
	actions  []string
	profiles int
}

func (g *graphFake) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			g.mu.Lock()
			g.profiles++
			g.mu.Unlock()
			_ = json.NewEncoder(w).Encode(GraphProfile{FirstName: "Ada", LastName: "Lovelace"})
			return
		}

		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		g.mu.Lock()
		if action, ok := body["sender_action"].(string); ok {
			g.actions = append(g.actions, action)
		} else {
			g.messages = append(g.messages, body)
		}
		g.mu.Unlock()

		_, _ = w.Write([]byte(`{}`))
	})
}

func (g *graphFake) snapshot() ([]map[string]any, []string, int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	messages := make([]map[string]any, len(g.messages))
	copy(messages, g.messages)
	actions := make([]string, len(g.actions))
	copy(actions, g.actions)
	return messages, actions, g.profiles
}

func pipelineFixture(t *testing.T, engine *stubEngine, suspendAutoReply bool) (*Pipeline, *graphFake, *profile.MemoryRepository) {
	t.Helper()

	graph := &graphFake{}
	server := httptest.NewServer(graph.handler())
	t.Cleanup(server.Close)

	cfg := &config.Config{
		Tenants: map[string]config.TenantConfig{
			"hku": {
				APIBaseURL:       server.URL,
				AccessToken:      "abcdefg",
				VerifyToken:      "verify-me",
				SuspendAutoReply: suspendAutoReply,
			},
		},
	}

	profiles := profile.NewMemoryRepository()
	sender := NewSender(server.Client(), nil)
	pipeline := NewPipeline(cfg, engine, sender, profiles, nil)

	return pipeline, graph, profiles
}

func textDelivery(t *testing.T, text string) bus.Delivery {
	t.Helper()

	payload, err := json.Marshal(singleEvent(Messaging{
		Sender:  Identity{ID: "1234"},
		Message: &Message{Text: &text},
	}))
	require.NoError(t, err)

	return bus.Delivery{Tenant: "hku", Channel: "facebook", ReceivedAt: time.Now(), Payload: payload}
}

func TestPipelineProcessFullFlow(t *testing.T) {
	engine := &stubEngine{responses: []bot.Response{{Type: bot.ResponseText, Message: "Hello back"}}}
	pipeline, graph, profiles := pipelineFixture(t, engine, false)

	err := pipeline.Process(context.Background(), textDelivery(t, "hello"))
	require.NoError(t, err)

	requests := engine.seen()
	require.Len(t, requests, 1)
	require.Equal(t, bot.RequestText, requests[0].Type)
	require.Equal(t, "hello", requests[0].Message)
	require.Equal(t, "1234", requests[0].SenderID)
	require.Equal(t, "en_GB", requests[0].Locale)

	messages, _, _ := graph.snapshot()
	require.Len(t, messages, 1)
	require.Equal(t, map[string]any{"text": "Hello back"}, messages[0]["message"])

	stored, err := profiles.FindBySender(context.Background(), "hku", "1234")
	require.NoError(t, err)
	require.Equal(t, "Ada", stored.FirstName)
	require.Equal(t, "facebook", stored.Messenger)

	require.Eventually(t, func() bool {
		_, actions, _ := graph.snapshot()
		return len(actions) == 1 && actions[0] == ActionMarkSeen
	}, 2*time.Second, 25*time.Millisecond)
}

func TestPipelineSendsTypingOnWhenAutoReplySuspended(t *testing.T) {
	engine := &stubEngine{responses: []bot.Response{{Type: bot.ResponseText, Message: "noted"}}}
	pipeline, graph, _ := pipelineFixture(t, engine, true)

	err := pipeline.Process(context.Background(), textDelivery(t, "hello"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, actions, _ := graph.snapshot()
		return len(actions) == 2
	}, 2*time.Second, 25*time.Millisecond)

	_, actions, _ := graph.snapshot()
	require.ElementsMatch(t, []string{ActionMarkSeen, ActionTypingOn}, actions)
}

func TestPipelineFetchesProfilePerEvent(t *testing.T) {
	engine := &stubEngine{responses: []bot.Response{{Type: bot.ResponseText, Message: "again"}}}
	pipeline, graph, profiles := pipelineFixture(t, engine, false)

	require.NoError(t, pipeline.Process(context.Background(), textDelivery(t, "hello")))
	require.NoError(t, pipeline.Process(context.Background(), textDelivery(t, "hello again")))

	_, _, profileFetches := graph.snapshot()
	require.Equal(t, 2, profileFetches)

	stored, err := profiles.FindBySender(context.Background(), "hku", "1234")
	require.NoError(t, err)
	require.Equal(t, "Ada", stored.FirstName)
}

func TestPipelineEngineErrorPropagates(t *testing.T) {
	engine := &stubEngine{err: fmt.Errorf("engine exploded")}
	pipeline, graph, _ := pipelineFixture(t, engine, false)

	err := pipeline.Process(context.Background(), textDelivery(t, "hello"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "engine exploded")

	messages, _, _ := graph.snapshot()
	require.Empty(t, messages)
}

func TestPipelineUnsupportedPayloadFails(t *testing.T) {
	engine := &stubEngine{}
	pipeline, _, _ := pipelineFixture(t, engine, false)

	payload, err := json.Marshal(singleEvent(Messaging{Sender: Identity{ID: "1234"}}))
	require.NoError(t, err)

	err = pipeline.Process(context.Background(), bus.Delivery{Tenant: "hku", Channel: "facebook", Payload: payload})
	require.ErrorIs(t, err, ErrUnsupportedPayload)
	require.Empty(t, engine.seen())
}

func TestPipelineUnknownTenantFails(t *testing.T) {
	engine := &stubEngine{}
	pipeline, _, _ := pipelineFixture(t, engine, false)

	err := pipeline.Process(context.Background(), bus.Delivery{Tenant: "nobody", Payload: []byte(`{}`)})
	require.ErrorIs(t, err, config.ErrUnknownTenant)
}

func TestPipelineDropsUnknownResponseKinds(t *testing.T) {
	engine := &stubEngine{responses: []bot.Response{{Type: bot.ResponseType("CAROUSEL_3D")}}}
	pipeline, graph, _ := pipelineFixture(t, engine, false)

	err := pipeline.Process(context.Background(), textDelivery(t, "hello"))
	require.NoError(t, err)

	messages, _, _ := graph.snapshot()
	require.Empty(t, messages)
}
