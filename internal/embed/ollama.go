package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/hpungsan/dumbledore/internal/errors"
)

const (
	defaultOllamaURL = "http://localhost:11434"
	defaultModel     = "nomic-embed-text"
)

// OllamaClient embeds text through a local Ollama server. The embeddings
// endpoint takes one prompt per request, so batches are sequential calls.
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates an Ollama embedding client. Empty arguments fall back
// to the local default server and model.
func NewOllama(baseURL, model string) *OllamaClient {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultModel
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Name identifies the embedder implementation.
func (c *OllamaClient) Name() string { return "ollama" }

// Model identifies the embedding model in use.
func (c *OllamaClient) Model() string { return c.model }

// Embed returns one vector per text, in input order.
func (c *OllamaClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := c.embedOne(ctx, t)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, v)
	}
	return vectors, nil
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (c *OllamaClient) embedOne(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(ollamaEmbedRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.NewModelUnavailable(c.model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, apperrors.NewModelUnavailable(c.model,
			fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperrors.NewModelUnavailable(c.model, fmt.Errorf("decode embeddings response: %w", err))
	}
	if len(out.Embedding) == 0 {
		return nil, apperrors.NewModelUnavailable(c.model, fmt.Errorf("server returned an empty embedding"))
	}
	return out.Embedding, nil
}
