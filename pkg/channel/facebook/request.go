package facebook

import (
	"encoding/json"
	"errors"
	"fmt"

	"fbgate/pkg/bot"
)

const channelName = "facebook"

// ErrUnsupportedPayload marks an inbound event that matches none of the known
// webhook shapes.
var ErrUnsupportedPayload = errors.New("unsupported payload")

// TranslateRequest converts one delivery batch into a channel-neutral bot
// request.
//
// Only the first messaging event of the first batch entry is consulted; the
// platform can batch several events per POST but multi-event batches are a
// known limitation of this adapter (callers log when extras are dropped).
// Classification is an ordered chain of presence checks because the webhook
// payload carries no discriminant field.
func TranslateRequest(delivery *WebhookRequest, locale string) (bot.Request, error) {
	if delivery == nil || len(delivery.Entry) == 0 || len(delivery.Entry[0].Messaging) == 0 {
		return bot.Request{}, fmt.Errorf("%w: empty delivery batch", ErrUnsupportedPayload)
	}

	messaging := delivery.Entry[0].Messaging[0]
	switch {
	case messaging.Message != nil:
		return translateMessage(messaging, locale)
	case messaging.Postback != nil:
		return translatePostback(messaging, locale)
	default:
		return bot.Request{}, fmt.Errorf("%w: event carries neither message nor postback", ErrUnsupportedPayload)
	}
}

func translateMessage(messaging Messaging, locale string) (bot.Request, error) {
	message := messaging.Message

	if message.Text != nil || message.QuickReply != nil {
		request := bot.Request{
			Type:     bot.RequestText,
			Locale:   locale,
			SenderID: messaging.Sender.ID,
		}
		if message.Text != nil {
			request.Message = *message.Text
		}
		if message.QuickReply != nil {
			command, err := decodeCommand(message.QuickReply.Payload)
			if err != nil {
				return bot.Request{}, fmt.Errorf("quick reply: %w", err)
			}
			request.Commands = []bot.Command{command}
		}
		return request, nil
	}

	if len(message.Attachments) > 0 {
		attachment := message.Attachments[0]
		requestType, ok := fileRequestType(attachment.Type)
		if !ok {
			return bot.Request{}, fmt.Errorf("%w: attachment type %q", ErrUnsupportedPayload, attachment.Type)
		}
		return bot.Request{
			Type:     requestType,
			Locale:   locale,
			SenderID: messaging.Sender.ID,
			FileURL:  attachment.Payload.URL,
		}, nil
	}

	return bot.Request{}, fmt.Errorf("%w: message carries neither text nor attachments", ErrUnsupportedPayload)
}

func translatePostback(messaging Messaging, locale string) (bot.Request, error) {
	command, err := decodeCommand(messaging.Postback.Payload)
	if err != nil {
		return bot.Request{}, fmt.Errorf("postback: %w", err)
	}

	return bot.Request{
		Type:     bot.RequestText,
		Locale:   locale,
		SenderID: messaging.Sender.ID,
		Message:  messaging.Postback.Title,
		Commands: []bot.Command{command},
	}, nil
}

// fileRequestType maps supported attachment types onto request types.
// Location and fallback attachments are not supported.
func fileRequestType(attachmentType string) (bot.RequestType, bool) {
	switch attachmentType {
	case AttachmentAudio:
		return bot.RequestAudio, true
	case AttachmentImage:
		return bot.RequestImage, true
	case AttachmentVideo:
		return bot.RequestVideo, true
	case AttachmentFile:
		return bot.RequestFile, true
	default:
		return "", false
	}
}

func decodeCommand(payload string) (bot.Command, error) {
	var decoded commandPayload
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return bot.Command{}, fmt.Errorf("decode command payload: %w", err)
	}

	return bot.Command{Name: decoded.Name, Features: decoded.Features}, nil
}
