// Package bot defines the channel-neutral request/response model exchanged
// between messaging channels and the dialog engine.
package bot

import "context"

// RequestType classifies one inbound request.
type RequestType string

const (
	RequestText  RequestType = "TEXT"
	RequestImage RequestType = "IMAGE"
	RequestAudio RequestType = "AUDIO"
	RequestVideo RequestType = "VIDEO"
	RequestFile  RequestType = "FILE"
)

// Command is a structured instruction extracted from a quick-reply or
// postback payload and handed to the dialog engine.
type Command struct {
	Name     string            `json:"name"`
	Features map[string]string `json:"features,omitempty"`
}

// Request is one channel-neutral inbound request.
//
// Message is set only for TEXT requests; FileURL only for file-like types.
// Commands is populated only when the inbound event carried a structured
// command payload.
type Request struct {
	Type     RequestType `json:"type"`
	Locale   string      `json:"locale"`
	SenderID string      `json:"sender_id"`
	Message  string      `json:"message,omitempty"`
	FileURL  string      `json:"file_url,omitempty"`
	Commands []Command   `json:"commands,omitempty"`
}

// ResponseType classifies one dialog-engine response.
type ResponseType string

const (
	ResponseText    ResponseType = "TEXT"
	ResponseOptions ResponseType = "OPTIONS"
	ResponseItems   ResponseType = "ITEMS"
)

// Option is one selectable choice attached to an OPTIONS response.
type Option struct {
	Command  string            `json:"command"`
	Message  string            `json:"message"`
	Features map[string]string `json:"features,omitempty"`
}

// Item is one carousel entry attached to an ITEMS response.
type Item struct {
	URL     string `json:"url"`
	Message string `json:"message"`
}

// Response is one channel-neutral dialog-engine response.
type Response struct {
	Type    ResponseType `json:"type"`
	Message string       `json:"message,omitempty"`
	Options []Option     `json:"options,omitempty"`
	Items   []Item       `json:"items,omitempty"`
}

// Engine is the external dialog engine collaborator. Implementations live in
// pkg/engine; this module never interprets requests itself.
type Engine interface {
	Health(ctx context.Context) error
	Analyse(ctx context.Context, tenant string, request Request) ([]Response, error)
}
