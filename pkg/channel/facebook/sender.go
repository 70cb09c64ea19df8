package facebook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"fbgate/pkg/config"
)

// Sender actions supported by the send API.
const (
	ActionMarkSeen = "mark_seen"
	ActionTypingOn = "typing_on"
)

const (
	sendMessagesPath = "/me/messages"
	profileFields    = "first_name,last_name,middle_name"

	defaultRequestTimeout = 10 * time.Second
	errorBodySnippetLimit = 512
)

// DeliveryError is a non-2xx answer from the send API.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("send api returned status %d: %s", e.StatusCode, e.Body)
}

// Sender talks to the Graph send API on behalf of one or more tenants.
// Credentials travel per call so tenants can share a single Sender.
type Sender struct {
	client *http.Client
	log    *slog.Logger
}

func NewSender(client *http.Client, log *slog.Logger) *Sender {
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}
	if log == nil {
		log = slog.Default()
	}

	return &Sender{
		client: client,
		log:    log.With("component", "facebook.sender"),
	}
}

// Send posts the messages one at a time, in order, waiting for each delivery
// to complete before starting the next so replies arrive in sequence. The
// first failure aborts the remainder.
func (s *Sender) Send(ctx context.Context, credentials config.Credentials, messages []SendMessage) error {
	for i, message := range messages {
		if err := s.post(ctx, credentials, sendMessagesPath, message); err != nil {
			return fmt.Errorf("send message %d of %d: %w", i+1, len(messages), err)
		}
	}

	return nil
}

type actionPayload struct {
	Recipient    Identity `json:"recipient"`
	SenderAction string   `json:"sender_action"`
}

// SendAction posts a sender action such as mark_seen or typing_on.
func (s *Sender) SendAction(ctx context.Context, credentials config.Credentials, senderID, action string) error {
	payload := actionPayload{
		Recipient:    Identity{ID: senderID},
		SenderAction: action,
	}
	if err := s.post(ctx, credentials, sendMessagesPath, payload); err != nil {
		return fmt.Errorf("send action %s: %w", action, err)
	}

	return nil
}

// FetchProfile reads the sender's public profile from the Graph API.
func (s *Sender) FetchProfile(ctx context.Context, credentials config.Credentials, senderID string) (GraphProfile, error) {
	endpoint := fmt.Sprintf("%s/%s?access_token=%s&fields=%s",
		credentials.APIBaseURL,
		url.PathEscape(senderID),
		url.QueryEscape(credentials.AccessToken),
		url.QueryEscape(profileFields),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return GraphProfile{}, fmt.Errorf("build profile request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return GraphProfile{}, fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return GraphProfile{}, &DeliveryError{StatusCode: resp.StatusCode, Body: bodySnippet(resp.Body)}
	}

	var profile GraphProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return GraphProfile{}, fmt.Errorf("decode profile: %w", err)
	}

	return profile, nil
}

func (s *Sender) post(ctx context.Context, credentials config.Credentials, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	endpoint := credentials.APIBaseURL + path + "?access_token=" + url.QueryEscape(credentials.AccessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	s.log.Debug("Send API call completed",
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DeliveryError{StatusCode: resp.StatusCode, Body: bodySnippet(resp.Body)}
	}

	return nil
}

func bodySnippet(r io.Reader) string {
	snippet, _ := io.ReadAll(io.LimitReader(r, errorBodySnippetLimit))
	return string(snippet)
}
