// Package openai is a stateless dialog-engine backend over the OpenAI
// Responses API. Every request is a single turn; the reply comes back as one
// plain-text response.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"

	"fbgate/pkg/bot"
	"fbgate/pkg/config"
)

type Client struct {
	client         osdk.Client
	model          string
	requestTimeout time.Duration
}

func New(cfg config.OpenAIEngineConfig) (*Client, error) {
	apiKey := resolveAPIKey(cfg)
	if apiKey == "" {
		return nil, errors.New("engine.openai.api_key_env is required or OPENAI_API_KEY must be set")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, errors.New("engine.openai.model is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if organization := strings.TrimSpace(cfg.Organization); organization != "" {
		opts = append(opts, option.WithOrganization(organization))
	}
	if project := strings.TrimSpace(cfg.Project); project != "" {
		opts = append(opts, option.WithProject(project))
	}

	requestTimeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if requestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(requestTimeout))
	}

	return &Client{
		client:         osdk.NewClient(opts...),
		model:          model,
		requestTimeout: requestTimeout,
	}, nil
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := engineLogger().With("operation", "health")
	startedAt := time.Now()
	log.Debug("engine request started")

	if _, err := c.client.Models.List(ctx); err != nil {
		log.Debug("engine request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Debug("engine request completed", "duration_ms", time.Since(startedAt).Milliseconds())

	return nil
}

func (c *Client) Analyse(ctx context.Context, tenant string, request bot.Request) ([]bot.Response, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := engineLogger().With("operation", "analyse")
	startedAt := time.Now()

	prompt := buildPrompt(request)
	if prompt == "" {
		return nil, errors.New("request carries no analysable content")
	}
	log.Debug("engine request started",
		"tenant", tenant,
		"model", c.model,
		"prompt_length", len(prompt),
	)

	response, err := c.client.Responses.New(ctx, responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{OfString: osdk.String(prompt)},
	})
	if err != nil {
		log.Debug("engine request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return nil, fmt.Errorf("analyse failed: %w", err)
	}

	text := strings.TrimSpace(response.OutputText())
	if text == "" {
		log.Debug("engine request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", "no output text")
		return nil, errors.New("analyse succeeded but returned no text")
	}
	log.Debug("engine request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "response_length", len(text))

	return []bot.Response{{Type: bot.ResponseText, Message: text}}, nil
}

// buildPrompt flattens the request into a single text turn. Non-text requests
// contribute their file URL; commands contribute their name.
func buildPrompt(request bot.Request) string {
	var parts []string
	if message := strings.TrimSpace(request.Message); message != "" {
		parts = append(parts, message)
	}
	if fileURL := strings.TrimSpace(request.FileURL); fileURL != "" {
		parts = append(parts, fmt.Sprintf("The user shared a %s: %s", strings.ToLower(string(request.Type)), fileURL))
	}
	for _, command := range request.Commands {
		if name := strings.TrimSpace(command.Name); name != "" {
			parts = append(parts, "Command: "+name)
		}
	}

	return strings.Join(parts, "\n")
}

func engineLogger() *slog.Logger {
	return slog.Default().With("component", "engine.openai")
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.requestTimeout)
}

func resolveAPIKey(cfg config.OpenAIEngineConfig) string {
	if apiKeyEnv := strings.TrimSpace(cfg.APIKeyEnv); apiKeyEnv != "" {
		if apiKey := strings.TrimSpace(os.Getenv(apiKeyEnv)); apiKey != "" {
			return apiKey
		}
	}

	return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
}
