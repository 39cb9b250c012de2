package organize

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	googleDefaultModel = "gemini-2.0-flash"
	googleBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
)

type googleProvider struct {
	key     string
	model   string
	baseURL string
	client  *http.Client
}

func newGoogleProvider(cfg Config, key string, client *http.Client) *googleProvider {
	model := cfg.Model
	if model == "" {
		model = googleDefaultModel
	}
	base := cfg.BaseURL
	if base == "" {
		base = googleBaseURL
	}
	return &googleProvider{key: key, model: model, baseURL: base, client: client}
}

func (p *googleProvider) Name() string { return "google" }
func (p *googleProvider) SupportsVision() bool { return false }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  struct {
		MaxOutputTokens int     `json:"maxOutputTokens"`
		Temperature     float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (p *googleProvider) ProposeFilename(ctx context.Context, text string, _ []byte) (string, error) {
	body, injected := guardedText(text)
	system := instruction
	if injected {
		system = safeInstruction
		body = "(document content withheld)"
	}

	req := geminiRequest{
		Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: body}}}},
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: system}}},
	}
	req.GenerationConfig.MaxOutputTokens = maxOutputTokens
	req.GenerationConfig.Temperature = 0.1

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		p.baseURL, p.model, url.QueryEscape(p.key))

	var resp geminiResponse
	if err := postJSON(ctx, p.client, endpoint, nil, req, &resp); err != nil {
		return "", err
	}
	for _, c := range resp.Candidates {
		for _, part := range c.Content.Parts {
			if strings.TrimSpace(part.Text) != "" {
				return cleanProposal(part.Text), nil
			}
		}
	}
	return "", fmt.Errorf("google: empty proposal")
}

func (p *googleProvider) ValidateCredentials(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()
	var out struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	endpoint := fmt.Sprintf("%s/models?key=%s", p.baseURL, url.QueryEscape(p.key))
	return getJSON(ctx, p.client, endpoint, nil, &out)
}
