package chat

// BuildTurn maps a client message to a turn: a text part when there is content,
// then one inline part per attachment carrying a payload.
func BuildTurn(msg Message) Turn {
	role := RoleModel
	if msg.Role == SenderUser {
		role = RoleUser
	}

	parts := make([]Part, 0, 1+len(msg.Attachments))
	if msg.Content != "" {
		parts = append(parts, Part{Text: msg.Content})
	}
	for _, att := range msg.Attachments {
		if att.Base64 == "" {
			continue
		}
		parts = append(parts, Part{InlineData: &InlineData{Data: att.Base64, MimeType: att.Type}})
	}
	return Turn{Role: role, Parts: parts}
}

// NormalizeHistory turns client messages into an alternating turn sequence starting on a user turn.
// Empty turns are dropped.
func NormalizeHistory(msgs []Message) []Turn {
	turns := make([]Turn, 0, len(msgs))
	for _, msg := range msgs {
		if turn := BuildTurn(msg); len(turn.Parts) > 0 {
			turns = append(turns, turn)
		}
	}
	return trimLeading(coalesce(turns))
}

// SplitConversation normalizes all messages but the last one into history and builds the current turn.
// The current turn is always sent as user input.
func SplitConversation(msgs []Message) ([]Turn, Turn, error) {
	if len(msgs) == 0 {
		return nil, Turn{}, ErrEmptyMessage
	}
	last := len(msgs) - 1

	current := BuildTurn(msgs[last])
	if len(current.Parts) == 0 {
		return nil, Turn{}, ErrEmptyMessage
	}
	current.Role = RoleUser

	return NormalizeHistory(msgs[:last]), current, nil
}

// coalesce merges adjacent turns with the same role.
func coalesce(turns []Turn) []Turn {
	out := make([]Turn, 0, len(turns))
	for _, turn := range turns {
		if n := len(out); n > 0 && out[n-1].Role == turn.Role {
			out[n-1].Parts = append(out[n-1].Parts, turn.Parts...)
			continue
		}
		out = append(out, Turn{Role: turn.Role, Parts: append([]Part(nil), turn.Parts...)})
	}
	return out
}

// trimLeading drops turns until the first one is a user turn.
func trimLeading(turns []Turn) []Turn {
	for len(turns) > 0 && turns[0].Role != RoleUser {
		turns = turns[1:]
	}
	return turns
}
