package organize

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	anthropicDefaultModel = "claude-3-5-haiku-latest"
	anthropicBaseURL      = "https://api.anthropic.com"
	anthropicVersion      = "2023-06-01"
)

type anthropicProvider struct {
	key     string
	model   string
	baseURL string
	client  *http.Client
}

func newAnthropicProvider(cfg Config, key string, client *http.Client) *anthropicProvider {
	model := cfg.Model
	if model == "" {
		model = anthropicDefaultModel
	}
	base := cfg.BaseURL
	if base == "" {
		base = anthropicBaseURL
	}
	return &anthropicProvider{key: key, model: model, baseURL: base, client: client}
}

func (p *anthropicProvider) Name() string { return "anthropic" }
func (p *anthropicProvider) SupportsVision() bool { return false }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (p *anthropicProvider) ProposeFilename(ctx context.Context, text string, _ []byte) (string, error) {
	body, injected := guardedText(text)
	system := instruction
	if injected {
		system = safeInstruction
		body = "(document content withheld)"
	}

	req := anthropicRequest{
		Model:     p.model,
		MaxTokens: maxOutputTokens,
		System:    system,
		Messages:  []anthropicMessage{{Role: "user", Content: body}},
	}
	// The claude-4 family rejects a temperature with its default
	// thinking configuration; older models take 0.2.
	if !strings.Contains(p.model, "-4") {
		req.Temperature = ptrFloat(0.2)
	}

	var resp anthropicResponse
	if err := postJSON(ctx, p.client, p.baseURL+"/v1/messages", p.headers(), req, &resp); err != nil {
		return "", err
	}
	for _, block := range resp.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			return cleanProposal(block.Text), nil
		}
	}
	return "", fmt.Errorf("anthropic: empty proposal")
}

func (p *anthropicProvider) ValidateCredentials(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()
	req := anthropicRequest{
		Model:     p.model,
		MaxTokens: 1,
		Messages:  []anthropicMessage{{Role: "user", Content: "ping"}},
	}
	var resp anthropicResponse
	return postJSON(ctx, p.client, p.baseURL+"/v1/messages", p.headers(), req, &resp)
}

func (p *anthropicProvider) headers() map[string]string {
	return map[string]string{
		"x-api-key":         p.key,
		"anthropic-version": anthropicVersion,
	}
}
