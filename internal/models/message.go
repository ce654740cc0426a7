package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry of a checkpointed transcript.
type Message struct {
	Role    Role           `json:"role"`
	Content MessageContent `json:"content"`
}

// MessageContent is either plain text or a list of content parts.
// Multi-part assistant outputs are stored as lists.
type MessageContent struct {
	Text  string
	Parts []string
}

// TextContent wraps a plain string.
func TextContent(text string) MessageContent {
	return MessageContent{Text: text}
}

// String returns the plain text, or the first part for list content.
func (c MessageContent) String() string {
	if len(c.Parts) > 0 {
		return c.Parts[0]
	}
	return c.Text
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*c = MessageContent{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '"':
		return json.Unmarshal(data, &c.Text)
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		parts := make([]string, 0, len(raw))
		for _, item := range raw {
			parts = append(parts, partText(item))
		}
		c.Parts = parts
		return nil
	default:
		return fmt.Errorf("unsupported message content: %s", data)
	}
}

// partText reads a list element given as a string or as an object with a text field.
func partText(item json.RawMessage) string {
	var s string
	if err := json.Unmarshal(item, &s); err == nil {
		return s
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(item, &obj); err == nil {
		return obj.Text
	}
	return string(item)
}
