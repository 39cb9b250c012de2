package organize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Provider proposes filenames for extracted document content. One
// value is constructed per session; dispatch is decided at
// construction time, never per call.
type Provider interface {
	// ProposeFilename returns the raw filename proposal for the given
	// text and optional page image (PNG bytes). The caller sanitizes.
	ProposeFilename(ctx context.Context, text string, image []byte) (string, error)
	// ValidateCredentials performs a minimal live check.
	ValidateCredentials(ctx context.Context) error
	Name() string
	SupportsVision() bool
}

// instruction is the shared system prompt every back-end sends.
const instruction = "You name documents. Produce a concise, underscore_separated, " +
	"4-8 word descriptive filename for the document content you are given. " +
	"Maximum 60 characters. Reply with the filename text only: no extension, " +
	"no quotes, no explanation."

// safeInstruction replaces the document text when injection phrases
// are detected in it.
const safeInstruction = "The document content was withheld for safety. " +
	"Produce a generic descriptive filename of the form " +
	"document_<topic-free placeholder> using underscores, max 60 characters."

// maxOutputTokens is the generation budget for every back-end.
const maxOutputTokens = 60

var injectionPhrases = []string{
	"ignore previous", "ignore all previous", "disregard previous",
	"system:", "you are now", "new instructions", "override instructions",
}

// detectInjection scans extracted text for prompt-injection phrases.
func detectInjection(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range injectionPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// guardedText returns the text to send and logs when the injection
// defense replaced it.
func guardedText(text string) (string, bool) {
	if !detectInjection(text) {
		return text, false
	}
	sub("provider").Warn("prompt injection phrases detected, sending safe fallback")
	return "", true
}

// cleanProposal trims provider chatter off a raw proposal: first
// non-empty line, quotes and backticks stripped.
func cleanProposal(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.Trim(line, "\"'`")
		line = strings.TrimSuffix(line, ".")
		if line != "" {
			return line
		}
	}
	return ""
}

// NewProvider constructs the back-end selected by cfg. The variant set
// is closed: openai, anthropic, google, deepseek, local.
func NewProvider(cfg Config) (Provider, error) {
	key := resolveAPIKey(cfg)
	if cfg.Provider != "local" {
		if err := validateKeyFormat(cfg.Provider, key); err != nil {
			return nil, err
		}
		sub("provider").Debug("credentials resolved", "provider", cfg.Provider, "key", describeKey(key))
	}

	client := &http.Client{Timeout: cfg.RequestTimeout}
	switch cfg.Provider {
	case "openai":
		return newOpenAIProvider(cfg, key, client), nil
	case "anthropic":
		return newAnthropicProvider(cfg, key, client), nil
	case "google":
		return newGoogleProvider(cfg, key, client), nil
	case "deepseek":
		return newDeepSeekProvider(cfg, key, client), nil
	case "local":
		return newLocalProvider(cfg, client), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// postJSON sends one JSON request and decodes the JSON response,
// mapping transport and status failures onto the error taxonomy.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return withKind(KindNetwork, fmt.Errorf("request timed out: %w", err))
		}
		return withKind(KindNetwork, fmt.Errorf("request: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return withKind(KindNetwork, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// statusError maps an HTTP status to its error kind. The body excerpt
// is kept for the message; keys never appear in responses.
func statusError(status int, body []byte) error {
	excerpt := string(body)
	if len(excerpt) > 300 {
		excerpt = excerpt[:300]
	}
	base := fmt.Errorf("http %d: %s", status, excerpt)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return withKind(KindAuth, base)
	case status == http.StatusTooManyRequests:
		return withKind(KindRateLimit, base)
	case status >= 500:
		return withKind(KindServerError, base)
	default:
		return base
	}
}

// getJSON issues a GET with the same error mapping as postJSON.
func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return withKind(KindNetwork, fmt.Errorf("request: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return withKind(KindNetwork, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// validateTimeout bounds the live credential checks.
const validateTimeout = 15 * time.Second
