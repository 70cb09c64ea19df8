package facebook

import (
	"encoding/json"

	"fbgate/pkg/bot"
)

// maxTemplateButtons is the platform's button-template limit; larger option
// sets switch to quick replies.
const maxTemplateButtons = 3

// genericElementTitle fills the generic template's mandatory title slot; the
// visible content rides on the element's button instead.
const genericElementTitle = " "

// TranslateResponses maps dialog-engine responses onto send payloads,
// order-preserving and one-to-one for the supported kinds. Unsupported kinds
// are skipped and returned for the caller to log. The platform caps quick
// replies at 13 entries; option counts are the engine's responsibility and
// are not enforced here.
func TranslateResponses(responses []bot.Response, senderID string) ([]SendMessage, []bot.ResponseType) {
	messages := make([]SendMessage, 0, len(responses))
	var skipped []bot.ResponseType

	for _, response := range responses {
		switch response.Type {
		case bot.ResponseText:
			messages = append(messages, textMessage(senderID, response))
		case bot.ResponseOptions:
			if len(response.Options) <= maxTemplateButtons {
				messages = append(messages, buttonTemplateMessage(senderID, response))
			} else {
				messages = append(messages, quickReplyMessage(senderID, response))
			}
		case bot.ResponseItems:
			messages = append(messages, genericTemplateMessage(senderID, response))
		default:
			skipped = append(skipped, response.Type)
		}
	}

	return messages, skipped
}

func baseMessage(senderID string) SendMessage {
	return SendMessage{
		Recipient:     Identity{ID: senderID},
		MessagingType: MessagingTypeResponse,
	}
}

func textMessage(senderID string, response bot.Response) SendMessage {
	message := baseMessage(senderID)
	message.Message = &MessageBody{Text: response.Message}
	return message
}

func buttonTemplateMessage(senderID string, response bot.Response) SendMessage {
	buttons := make([]Button, 0, len(response.Options))
	for _, option := range response.Options {
		buttons = append(buttons, Button{
			Type:    ButtonPostback,
			Title:   option.Message,
			Payload: encodeCommand(option),
		})
	}

	message := baseMessage(senderID)
	message.Message = &MessageBody{
		Attachment: &SendAttachment{
			Type: AttachmentTemplate,
			Payload: TemplatePayload{
				TemplateType: TemplateButton,
				Text:         response.Message,
				Buttons:      buttons,
			},
		},
	}
	return message
}

func quickReplyMessage(senderID string, response bot.Response) SendMessage {
	quickReplies := make([]QuickReply, 0, len(response.Options))
	for _, option := range response.Options {
		quickReplies = append(quickReplies, QuickReply{
			ContentType: QuickReplyContentText,
			Title:       option.Message,
			Payload:     encodeCommand(option),
		})
	}

	message := baseMessage(senderID)
	message.Message = &MessageBody{
		Text:         response.Message,
		QuickReplies: quickReplies,
	}
	return message
}

func genericTemplateMessage(senderID string, response bot.Response) SendMessage {
	elements := make([]Element, 0, len(response.Items))
	for _, item := range response.Items {
		elements = append(elements, Element{
			Title: genericElementTitle,
			Buttons: []Button{{
				Type:  ButtonWebURL,
				Title: item.Message,
				URL:   item.URL,
			}},
		})
	}

	message := baseMessage(senderID)
	message.Message = &MessageBody{
		Attachment: &SendAttachment{
			Type: AttachmentTemplate,
			Payload: TemplatePayload{
				TemplateType: TemplateGeneric,
				Elements:     elements,
			},
		},
	}
	return message
}

// encodeCommand serializes an option back into the payload format the request
// translator decodes, so a tapped button round-trips as a command.
func encodeCommand(option bot.Option) string {
	payload, err := json.Marshal(commandPayload{Name: option.Command, Features: option.Features})
	if err != nil {
		// A map[string]string cannot fail to marshal.
		return "{}"
	}

	return string(payload)
}
