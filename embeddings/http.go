package embeddings

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/josephtey/predictive-saes/internal/json"
)

// HTTPEmbedder calls an OpenAI-compatible /v1/embeddings endpoint.
// Transient failures (5xx, network errors) are retried with exponential
// backoff; 4xx responses fail immediately.
type HTTPEmbedder struct {
	endpoint string
	apiKey   string
	model    string
	dim      int
	client   *http.Client
}

// NewHTTPEmbedder creates an embedder for the given endpoint (the full
// embeddings URL), model name, and expected output dimension.
func NewHTTPEmbedder(endpoint, apiKey, model string, dim int) *HTTPEmbedder {
	return &HTTPEmbedder{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		dim:      dim,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

// Dimension returns the configured embedding dimensionality.
func (e *HTTPEmbedder) Dimension() int { return e.dim }

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed requests embeddings for all texts in one call.
func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	body, err := json.Marshal(embeddingRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("encoding embedding request: %w", err)
	}

	var out [][]float32
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if e.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+e.apiKey)
		}

		resp, err := e.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("embedding service returned %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, respBody))
		}

		var parsed embeddingResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("decoding embedding response: %w", err))
		}
		if len(parsed.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("embedding service returned %d vectors for %d inputs", len(parsed.Data), len(texts)))
		}

		out = make([][]float32, len(texts))
		for _, d := range parsed.Data {
			if d.Index < 0 || d.Index >= len(texts) {
				return backoff.Permanent(fmt.Errorf("embedding response index %d out of range", d.Index))
			}
			if e.dim > 0 && len(d.Embedding) != e.dim {
				return backoff.Permanent(fmt.Errorf("embedding has %d dimensions, want %d", len(d.Embedding), e.dim))
			}
			out[d.Index] = d.Embedding
		}
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, err
	}
	return out, nil
}
