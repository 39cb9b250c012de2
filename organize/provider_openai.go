package organize

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

const (
	openAIDefaultModel   = "gpt-5-mini"
	openAIBaseURL        = "https://api.openai.com/v1"
	openAIVisionFallback = "gpt-4o"
)

// Request/response shapes of the OpenAI chat completions API, shared
// with the OpenAI-compatible DeepSeek back-end.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []contentPart
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model               string        `json:"model"`
	Messages            []chatMessage `json:"messages"`
	MaxTokens           int           `json:"max_tokens,omitempty"`
	MaxCompletionTokens int           `json:"max_completion_tokens,omitempty"`
	Temperature         *float64      `json:"temperature,omitempty"`
	TopP                *float64      `json:"top_p,omitempty"`
	ReasoningEffort     string        `json:"reasoning_effort,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIProvider struct {
	key     string
	model   string
	baseURL string
	client  *http.Client
}

func newOpenAIProvider(cfg Config, key string, client *http.Client) *openAIProvider {
	model := cfg.Model
	if model == "" {
		model = openAIDefaultModel
	}
	base := cfg.BaseURL
	if base == "" {
		base = openAIBaseURL
	}
	return &openAIProvider{key: key, model: model, baseURL: base, client: client}
}

func (p *openAIProvider) Name() string { return "openai" }

func (p *openAIProvider) SupportsVision() bool { return visionCapable(p.model) }

// visionCapable reports whether the model accepts image input.
func visionCapable(model string) bool {
	return strings.Contains(model, "gpt-4o") ||
		strings.Contains(model, "gpt-4.1") ||
		strings.HasPrefix(model, "gpt-5") ||
		strings.Contains(model, "vision")
}

// reasoningFamily reports whether the model takes the reasoning knob
// instead of temperature/top_p.
func reasoningFamily(model string) bool {
	return strings.HasPrefix(model, "gpt-5") ||
		strings.HasPrefix(model, "o1") ||
		strings.HasPrefix(model, "o3") ||
		strings.HasPrefix(model, "o4")
}

func (p *openAIProvider) ProposeFilename(ctx context.Context, text string, image []byte) (string, error) {
	l := sub("provider").With("backend", "openai")

	useImage := len(image) > 0 && visionCapable(p.model)
	name, err := p.complete(ctx, p.model, text, image, useImage)

	if err != nil && useImage && mentionsImage(err) {
		// Model rejected the visual channel; drop it and retry.
		l.Warn("image input rejected, retrying text-only", "err", Redact(err.Error()))
		name, err = p.complete(ctx, p.model, text, nil, false)
	}
	if err != nil {
		return "", err
	}

	if name == "" && len(image) > 0 && p.model != openAIVisionFallback {
		// Empty response with a visual payload: fall back to a model
		// known to handle vision.
		l.Warn("empty response, retrying with vision fallback model", "fallback", openAIVisionFallback)
		name, err = p.complete(ctx, openAIVisionFallback, text, image, true)
		if err != nil {
			return "", err
		}
	}
	if name == "" {
		return "", fmt.Errorf("openai: empty proposal")
	}
	return name, nil
}

func (p *openAIProvider) complete(ctx context.Context, model, text string, image []byte, useImage bool) (string, error) {
	body, injected := guardedText(text)
	system := instruction
	if injected {
		system = safeInstruction
		body = ""
	}

	var user chatMessage
	if useImage && len(image) > 0 {
		parts := []contentPart{{Type: "text", Text: body}}
		parts = append(parts, contentPart{
			Type: "image_url",
			ImageURL: &imageURL{
				URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(image),
			},
		})
		user = chatMessage{Role: "user", Content: parts}
	} else {
		user = chatMessage{Role: "user", Content: body}
	}

	req := chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "system", Content: system}, user},
	}
	if reasoningFamily(model) {
		req.MaxCompletionTokens = maxOutputTokens
		req.ReasoningEffort = "low"
	} else {
		req.MaxTokens = maxOutputTokens
		req.Temperature = ptrFloat(0.1)
		req.TopP = ptrFloat(0.9)
	}

	var resp chatResponse
	err := postJSON(ctx, p.client, p.baseURL+"/chat/completions", p.headers(), req, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return cleanProposal(resp.Choices[0].Message.Content), nil
}

func (p *openAIProvider) ValidateCredentials(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()
	var out struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	return getJSON(ctx, p.client, p.baseURL+"/models", p.headers(), &out)
}

func (p *openAIProvider) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.key}
}

// mentionsImage matches provider errors complaining about the visual
// channel.
func mentionsImage(err error) bool {
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "image") || strings.Contains(text, "vision")
}

func ptrFloat(v float64) *float64 { return &v }
