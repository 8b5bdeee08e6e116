// Package provider talks to external embedding and generation APIs. The
// supported providers are a closed set of tagged variants selected by
// configuration; anything else is an UnsupportedProviderError.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kora/backend/internal/pipeline"
)

type Kind string

const (
	// OpenAICompatible speaks POST /embeddings {input[], model} and
	// streaming POST /chat/completions.
	OpenAICompatible Kind = "openai"

	// CohereCompatible speaks POST /embed {texts[], model, input_type}.
	CohereCompatible Kind = "cohere"
)

// KindOf maps a configured provider name onto a variant.
func KindOf(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai", "openai-compatible":
		return OpenAICompatible, nil
	case "cohere", "cohere-compatible":
		return CohereCompatible, nil
	default:
		return "", &pipeline.UnsupportedProviderError{Provider: name}
	}
}

func defaultBaseURL(kind Kind) string {
	if kind == CohereCompatible {
		return "https://api.cohere.ai/v1"
	}
	return "https://api.openai.com/v1"
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Client struct {
	kind    Kind
	baseURL string
	apiKey  string

	// embed/list calls are bounded; streams are bounded by caller context.
	client       *http.Client
	streamClient *http.Client
}

func NewClient(kind Kind, baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL(kind)
	}
	return &Client{
		kind:         kind,
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		client:       &http.Client{Timeout: 60 * time.Second},
		streamClient: &http.Client{},
	}
}

func (c *Client) Kind() Kind { return c.kind }

// Embed returns one vector per input, in input order. Any non-2xx response
// fails the whole call with EmbeddingProviderError; no partial retry here.
func (c *Client) Embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	switch c.kind {
	case OpenAICompatible:
		return c.embedOpenAI(ctx, model, inputs)
	case CohereCompatible:
		return c.embedCohere(ctx, model, inputs)
	default:
		return nil, &pipeline.UnsupportedProviderError{Provider: string(c.kind)}
	}
}

func (c *Client) embedOpenAI(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	reqBody := map[string]any{
		"input": inputs,
		"model": model,
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := c.postJSON(ctx, "/embeddings", reqBody, &result); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		vectors[i] = d.Embedding
	}
	if len(vectors) != len(inputs) {
		return nil, fmt.Errorf("embedding count mismatch: got %d want %d", len(vectors), len(inputs))
	}
	return vectors, nil
}

func (c *Client) embedCohere(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	reqBody := map[string]any{
		"texts":      inputs,
		"model":      model,
		"input_type": "search_document",
	}

	var result struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := c.postJSON(ctx, "/embed", reqBody, &result); err != nil {
		return nil, err
	}

	if len(result.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("embedding count mismatch: got %d want %d", len(result.Embeddings), len(inputs))
	}
	return result.Embeddings, nil
}

// ListModels fetches the provider's model catalog (OpenAI-compatible
// GET /models shape). Results are cached by the caller, not here.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("model list failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(result.Data)+len(result.Models))
	for _, d := range result.Data {
		names = append(names, d.ID)
	}
	for _, m := range result.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (c *Client) postJSON(ctx context.Context, path string, reqBody any, out any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &pipeline.EmbeddingProviderError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
