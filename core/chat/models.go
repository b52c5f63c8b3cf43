// Package chat implements the tutoring chat: request gating, history normalization and completion streaming.
package chat

import "strings"

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"

	// client message roles
	SenderUser      = "user"
	SenderAssistant = "assistant"
	senderBot       = "bot"
)

type (
	Attachment struct {
		Base64 string `json:"base64" validate:"omitempty,base64"`
		Type   string `json:"type" validate:"required_with=Base64"`
	}

	// Message is a client supplied chat message. The last message of a Request is the current turn.
	Message struct {
		Role        string       `json:"role" validate:"required,chatrole"`
		Content     string       `json:"content"`
		Attachments []Attachment `json:"attachments,omitempty" validate:"dive"`
	}

	UserProfile struct {
		Role          string `json:"role" validate:"required,notblank"`
		LearningStyle string `json:"learningStyle"`
		Name          string `json:"name,omitempty"`
	}

	Request struct {
		Messages    []Message   `json:"messages" validate:"required,min=1,dive"`
		UserProfile UserProfile `json:"userProfile"`
		SessionID   string      `json:"sessionId,omitempty"`
	}

	InlineData struct {
		Data     string // base64
		MimeType string
	}

	// Part is either a text fragment or an inline attachment.
	Part struct {
		Text       string
		InlineData *InlineData
	}

	Turn struct {
		Role  Role
		Parts []Part
	}

	// Conversation is a validated Request, ready for the engine.
	Conversation struct {
		SessionID    string
		SystemPrompt string
		History      []Turn
		Current      Turn
		Message      Message // the current message, as sent by the client
	}

	StreamResult struct {
		FullResponse string
		Retries      int
		Notices      []string
	}

	ActivityEntry struct {
		SessionID   string       `json:"sessionId"`
		Sender      string       `json:"sender"` // user | bot
		Text        string       `json:"text"`
		Attachments []Attachment `json:"attachments"`
	}
)

func (c Conversation) CompletionRequest() CompletionRequest {
	return CompletionRequest{
		SystemPrompt: c.SystemPrompt,
		History:      c.History,
		Current:      c.Current,
	}
}

// Text returns the concatenated text parts of the turn.
func (t Turn) Text() string {
	var sb strings.Builder
	for _, p := range t.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}
