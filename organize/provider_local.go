package organize

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const localBaseURL = "http://localhost:11434"

// localProvider calls an Ollama daemon on localhost. Before the first
// request it checks the daemon is reachable and the model is pulled.
type localProvider struct {
	model   string
	baseURL string
	client  *http.Client
}

func newLocalProvider(cfg Config, client *http.Client) *localProvider {
	base := cfg.BaseURL
	if base == "" {
		base = localBaseURL
	}
	return &localProvider{model: cfg.Model, baseURL: base, client: client}
}

func (p *localProvider) Name() string { return "local" }
func (p *localProvider) SupportsVision() bool { return false }

type ollamaGenerateRequest struct {
	Model   string `json:"model"`
	System  string `json:"system,omitempty"`
	Prompt  string `json:"prompt"`
	Stream  bool   `json:"stream"`
	Options struct {
		NumPredict  int     `json:"num_predict"`
		Temperature float64 `json:"temperature"`
	} `json:"options"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

func (p *localProvider) ProposeFilename(ctx context.Context, text string, _ []byte) (string, error) {
	body, injected := guardedText(text)
	system := instruction
	if injected {
		system = safeInstruction
		body = "(document content withheld)"
	}

	req := ollamaGenerateRequest{
		Model:  p.model,
		System: system,
		Prompt: body,
		Stream: false,
	}
	req.Options.NumPredict = maxOutputTokens
	req.Options.Temperature = 0.1

	var resp ollamaGenerateResponse
	if err := postJSON(ctx, p.client, p.baseURL+"/api/generate", nil, req, &resp); err != nil {
		return "", err
	}
	name := cleanProposal(resp.Response)
	if name == "" {
		return "", fmt.Errorf("local: empty proposal")
	}
	return name, nil
}

// ValidateCredentials checks the daemon answers and the configured
// model is pulled.
func (p *localProvider) ValidateCredentials(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	if p.model == "" {
		return kindErrorf(KindAuth, "local provider requires an explicit model")
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := getJSON(ctx, p.client, p.baseURL+"/api/tags", nil, &tags); err != nil {
		return withKind(KindNetwork, fmt.Errorf("local daemon unreachable at %s: %w", p.baseURL, err))
	}

	for _, m := range tags.Models {
		if m.Name == p.model || strings.SplitN(m.Name, ":", 2)[0] == p.model {
			return nil
		}
	}
	return kindErrorf(KindAuth, "model %q is not pulled on the local daemon", p.model)
}
