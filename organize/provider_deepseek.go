package organize

import (
	"context"
	"fmt"
	"net/http"
)

const (
	deepSeekDefaultModel = "deepseek-chat"
	deepSeekBaseURL      = "https://api.deepseek.com/v1"
)

// deepSeekProvider speaks the OpenAI-compatible chat completions
// protocol against DeepSeek's endpoint. Text only.
type deepSeekProvider struct {
	key     string
	model   string
	baseURL string
	client  *http.Client
}

func newDeepSeekProvider(cfg Config, key string, client *http.Client) *deepSeekProvider {
	model := cfg.Model
	if model == "" {
		model = deepSeekDefaultModel
	}
	base := cfg.BaseURL
	if base == "" {
		base = deepSeekBaseURL
	}
	return &deepSeekProvider{key: key, model: model, baseURL: base, client: client}
}

func (p *deepSeekProvider) Name() string { return "deepseek" }
func (p *deepSeekProvider) SupportsVision() bool { return false }

func (p *deepSeekProvider) ProposeFilename(ctx context.Context, text string, _ []byte) (string, error) {
	body, injected := guardedText(text)
	system := instruction
	if injected {
		system = safeInstruction
		body = "(document content withheld)"
	}

	req := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: body},
		},
		MaxTokens:   maxOutputTokens,
		Temperature: ptrFloat(0.1),
		TopP:        ptrFloat(0.9),
	}

	var resp chatResponse
	if err := postJSON(ctx, p.client, p.baseURL+"/chat/completions", p.headers(), req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("deepseek: empty proposal")
	}
	name := cleanProposal(resp.Choices[0].Message.Content)
	if name == "" {
		return "", fmt.Errorf("deepseek: empty proposal")
	}
	return name, nil
}

func (p *deepSeekProvider) ValidateCredentials(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()
	var out struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	return getJSON(ctx, p.client, p.baseURL+"/models", p.headers(), &out)
}

func (p *deepSeekProvider) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.key}
}
