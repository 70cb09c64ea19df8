// Package remote is the HTTP client for an external dialog-engine service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"fbgate/pkg/bot"
	"fbgate/pkg/config"
)

const defaultRequestTimeout = 30 * time.Second

// Client speaks to the dialog engine over plain JSON HTTP.
type Client struct {
	baseURL        string
	client         *http.Client
	requestTimeout time.Duration
}

func New(cfg config.RemoteEngineConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("engine.remote.base_url is required")
	}

	requestTimeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	return &Client{
		baseURL:        baseURL,
		client:         &http.Client{Timeout: requestTimeout},
		requestTimeout: requestTimeout,
	}, nil
}

type healthResponse struct {
	Healthy bool   `json:"healthy"`
	Version string `json:"version,omitempty"`
}

func (c *Client) Health(ctx context.Context) error {
	log := engineLogger().With("operation", "health")
	startedAt := time.Now()
	log.Debug("engine request started")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		log.Debug("engine request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Debug("engine request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "status", resp.StatusCode)
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decode health response: %w", err)
	}
	if !health.Healthy {
		return errors.New("engine reports unhealthy")
	}
	log.Debug("engine request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "version", health.Version)

	return nil
}

type analyseRequest struct {
	Tenant   string          `json:"tenant"`
	Type     bot.RequestType `json:"type"`
	Message  string          `json:"message,omitempty"`
	FileURL  string          `json:"file_url,omitempty"`
	Locale   string          `json:"locale"`
	SenderID string          `json:"sender_id"`
	Commands []bot.Command   `json:"commands,omitempty"`
}

type analyseResponse struct {
	Responses []bot.Response `json:"responses"`
}

func (c *Client) Analyse(ctx context.Context, tenant string, request bot.Request) ([]bot.Response, error) {
	log := engineLogger().With("operation", "analyse")
	startedAt := time.Now()
	log.Debug("engine request started", "tenant", tenant, "type", string(request.Type))

	body, err := json.Marshal(analyseRequest{
		Tenant:   tenant,
		Type:     request.Type,
		Message:  request.Message,
		FileURL:  request.FileURL,
		Locale:   request.Locale,
		SenderID: request.SenderID,
		Commands: request.Commands,
	})
	if err != nil {
		return nil, fmt.Errorf("encode analyse request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyse", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build analyse request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		log.Debug("engine request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return nil, fmt.Errorf("analyse failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Debug("engine request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "status", resp.StatusCode)
		return nil, fmt.Errorf("analyse returned status %d: %s", resp.StatusCode, snippet)
	}

	var analysed analyseResponse
	if err := json.NewDecoder(resp.Body).Decode(&analysed); err != nil {
		return nil, fmt.Errorf("decode analyse response: %w", err)
	}
	log.Debug("engine request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "responses", len(analysed.Responses))

	return analysed.Responses, nil
}

func engineLogger() *slog.Logger {
	return slog.Default().With("component", "engine.remote")
}
