// Package ollama talks to a local Ollama server's embedding API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/neuralnotes/neuralnotes/embedding"
	"github.com/neuralnotes/neuralnotes/errors"
)

const (
	// ProviderName is the registered name for the Ollama embedding backend.
	ProviderName = "ollama-embed"

	defaultURL     = "http://localhost:11434"
	defaultModel   = "nomic-embed-text"
	defaultTimeout = 30 * time.Second
)

// Config holds configuration for the Ollama embedding backend.
type Config struct {
	URL     string        `json:"url" yaml:"url" mapstructure:"url"`
	Model   string        `json:"model" yaml:"model" mapstructure:"model"`
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// Provider implements embedding.Provider using Ollama's /api/embed endpoint.
type Provider struct {
	cfg    Config
	client *http.Client
}

// NewProvider creates a new Ollama embedding backend.
func NewProvider(cfg Config) *Provider {
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return ProviderName }

// IsAvailable checks if the Ollama server is reachable.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL+"/api/tags", http.NoBody)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Embed returns one vector per input text, in input order.
func (p *Provider) Embed(ctx context.Context, req embedding.Request) (*embedding.Result, error) {
	if len(req.Texts) == 0 {
		return nil, errors.UnsupportedInput(ProviderName, "no texts to embed")
	}

	model := p.cfg.Model
	if req.Model != "" {
		model = req.Model
	}

	body, err := json.Marshal(embedRequest{Model: model, Input: req.Texts})
	if err != nil {
		return nil, errors.Internal(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Internal(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Timeout(ProviderName).WithCause(err)
		}
		return nil, errors.ConnectionFailed(ProviderName).WithCause(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, errors.ClassifyHTTP(ProviderName, httpResp.StatusCode, string(respBody))
	}

	var resp embedResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, errors.MalformedResponse(ProviderName, err)
	}
	if len(resp.Embeddings) != len(req.Texts) {
		return nil, errors.MalformedResponse(ProviderName, nil).
			WithDetail("want", len(req.Texts)).
			WithDetail("got", len(resp.Embeddings))
	}

	return &embedding.Result{Vectors: resp.Embeddings, Model: resp.Model}, nil
}

// --- internal Ollama API types ---

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}
