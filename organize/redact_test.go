package organize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedact_OpenAIKey(t *testing.T) {
	in := "auth failed for sk-proj1234567890abcdefghij at openai"
	out := Redact(in)
	assert.NotContains(t, out, "sk-proj1234567890abcdefghij")
	assert.Contains(t, out, "[REDACTED]")
}

func TestRedact_AnthropicKey(t *testing.T) {
	out := Redact("key sk-ant-api03-" + strings.Repeat("x", 30) + " rejected")
	assert.NotContains(t, out, "sk-ant")
	assert.Contains(t, out, "[REDACTED]")
}

func TestRedact_GoogleKey(t *testing.T) {
	key := "AIza" + strings.Repeat("B", 35)
	out := Redact("url ?key=" + key)
	assert.NotContains(t, out, key)
}

func TestRedact_Assignment(t *testing.T) {
	out := Redact("config: api_key=topsecretvalue provider=openai")
	assert.NotContains(t, out, "topsecretvalue")
	assert.Contains(t, out, "api_key=[REDACTED]")
	assert.Contains(t, out, "provider=openai")
}

func TestRedact_PlainTextUntouched(t *testing.T) {
	in := "file report.pdf moved to destination"
	assert.Equal(t, in, Redact(in))
}
