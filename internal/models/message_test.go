package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageContentDecoding(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain text", raw: `"hello"`, want: "hello"},
		{name: "string list", raw: `["first","second"]`, want: "first"},
		{name: "text parts", raw: `[{"type":"text","text":"part one"},{"text":"two"}]`, want: "part one"},
		{name: "null", raw: `null`, want: ""},
		{name: "empty list", raw: `[]`, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c MessageContent
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &c))
			assert.Equal(t, tt.want, c.String())
		})
	}
}

func TestMessageContentRejectsNumbers(t *testing.T) {
	var c MessageContent
	assert.Error(t, json.Unmarshal([]byte(`42`), &c))
}

func TestMessageContentEncoding(t *testing.T) {
	data, err := json.Marshal(Message{Role: RoleUser, Content: TextContent("hi")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":"hi"}`, string(data))

	data, err = json.Marshal(Message{Role: RoleAssistant, Content: MessageContent{Parts: []string{"a", "b"}}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"assistant","content":["a","b"]}`, string(data))
}

func TestNewThreadDefaults(t *testing.T) {
	th := NewThread("t1", time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("x", 3600)))
	assert.Equal(t, DefaultHeadline, th.Headline)
	assert.True(t, th.Active)
	assert.Equal(t, "t1", th.ThreadID)
	assert.Equal(t, time.UTC, th.CreatedAt.Location())
}
