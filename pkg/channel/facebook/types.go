// Package facebook adapts Facebook Messenger webhook traffic to the
// channel-neutral bot model and sends replies back through the Graph send API.
package facebook

// Attachment types reported on inbound messages.
const (
	AttachmentAudio    = "audio"
	AttachmentFallback = "fallback"
	AttachmentFile     = "file"
	AttachmentImage    = "image"
	AttachmentLocation = "location"
	AttachmentVideo    = "video"
)

// Outbound attachment and template discriminators.
const (
	AttachmentTemplate = "template"
	TemplateButton     = "button"
	TemplateGeneric    = "generic"
	ButtonPostback     = "postback"
	ButtonWebURL       = "web_url"

	QuickReplyContentText = "text"

	MessagingTypeResponse = "RESPONSE"
)

// WebhookRequest is one delivery batch POSTed by the platform.
type WebhookRequest struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry is one page-level entry inside a delivery batch.
type Entry struct {
	ID        string      `json:"id"`
	Time      int64       `json:"time"`
	Messaging []Messaging `json:"messaging"`
}

// Messaging is one webhook event. The platform sends an untagged union:
// exactly one of Message or Postback is present, and Message itself is
// disambiguated by which of its fields are set.
type Messaging struct {
	Sender    Identity  `json:"sender"`
	Recipient Identity  `json:"recipient"`
	Timestamp int64     `json:"timestamp"`
	Message   *Message  `json:"message,omitempty"`
	Postback  *Postback `json:"postback,omitempty"`
}

// Identity wraps a platform-scoped user or page id.
type Identity struct {
	ID string `json:"id"`
}

// Message is the message body variant. Text is a pointer because field
// presence, not emptiness, drives classification.
type Message struct {
	MID         string             `json:"mid,omitempty"`
	Text        *string            `json:"text,omitempty"`
	QuickReply  *QuickReplyPayload `json:"quick_reply,omitempty"`
	Attachments []Attachment       `json:"attachments,omitempty"`
}

// QuickReplyPayload carries the JSON-encoded command of a tapped quick reply.
type QuickReplyPayload struct {
	Payload string `json:"payload"`
}

// Attachment is one inbound attachment. URL lives under Payload for media
// types; fallback attachments carry Title/URL at the top level.
type Attachment struct {
	Type    string            `json:"type"`
	Payload AttachmentPayload `json:"payload"`
	Title   string            `json:"title,omitempty"`
	URL     string            `json:"url,omitempty"`
}

// AttachmentPayload is the type-dependent attachment body.
type AttachmentPayload struct {
	URL         string       `json:"url,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// Coordinates is the location-attachment payload.
type Coordinates struct {
	Lat  float64 `json:"lat"`
	Long float64 `json:"long"`
}

// Postback is a button click carrying a fixed JSON payload.
type Postback struct {
	Title    string    `json:"title"`
	Payload  string    `json:"payload"`
	Referral *Referral `json:"referral,omitempty"`
}

// Referral describes how a postback conversation was entered.
type Referral struct {
	Ref    string `json:"ref"`
	Source string `json:"source"`
	Type   string `json:"type"`
}

// SendMessage is one payload for POST {base}/me/messages.
type SendMessage struct {
	Recipient     Identity     `json:"recipient"`
	MessagingType string       `json:"messaging_type"`
	Message       *MessageBody `json:"message"`
}

// MessageBody holds exactly one of plain text, a template attachment, or a
// text-plus-quick-replies combination.
type MessageBody struct {
	Text         string          `json:"text,omitempty"`
	Attachment   *SendAttachment `json:"attachment,omitempty"`
	QuickReplies []QuickReply    `json:"quick_replies,omitempty"`
}

// SendAttachment wraps a template payload on an outbound message.
type SendAttachment struct {
	Type    string          `json:"type"`
	Payload TemplatePayload `json:"payload"`
}

// TemplatePayload is a button or generic template body.
type TemplatePayload struct {
	TemplateType string    `json:"template_type"`
	Text         string    `json:"text,omitempty"`
	Buttons      []Button  `json:"buttons,omitempty"`
	Elements     []Element `json:"elements,omitempty"`
}

// Button is a postback or web_url button.
type Button struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Payload string `json:"payload,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Element is one generic-template carousel card.
type Element struct {
	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
	Buttons  []Button `json:"buttons,omitempty"`
}

// QuickReply is one suggested-reply chip on an outbound message.
type QuickReply struct {
	ContentType string `json:"content_type"`
	Title       string `json:"title"`
	Payload     string `json:"payload"`
}

// GraphProfile is the Graph API user-profile response consumed by the
// sender-info step.
type GraphProfile struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	MiddleName string `json:"middle_name"`
}

// commandPayload is the JSON document carried inside quick-reply and postback
// payloads in both directions.
type commandPayload struct {
	Name     string            `json:"name"`
	Features map[string]string `json:"features,omitempty"`
}
