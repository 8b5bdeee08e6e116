package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"kora/backend/internal/pipeline"
)

const (
	// maxMalformedLines is how many unparseable SSE payloads we tolerate
	// before declaring the stream corrupt.
	maxMalformedLines = 5

	// maxStreamRetries bounds re-issuing the request on network-class
	// failures. Application-level (4xx) errors are never retried.
	maxStreamRetries = 3
)

type GenerationParams struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// StreamChat issues a streaming chat completion and forwards each content
// delta to onDelta as it arrives. The return value is the full accumulated
// text; callers persist it only after the stream completes cleanly.
// Retries happen only before the first delta has been forwarded, so the
// caller never sees duplicated output.
func (c *Client) StreamChat(ctx context.Context, params GenerationParams, messages []Message, onDelta func(string) error) (string, error) {
	if c.kind != OpenAICompatible {
		return "", &pipeline.UnsupportedProviderError{Provider: string(c.kind)}
	}

	delivered := false
	wrapped := func(delta string) error {
		delivered = true
		return onDelta(delta)
	}

	var lastErr error
	for attempt := 0; attempt <= maxStreamRetries; attempt++ {
		text, err := c.streamOnce(ctx, params, messages, wrapped)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if delivered || !pipeline.IsRetryable(err) || ctx.Err() != nil {
			return "", err
		}
	}
	return "", lastErr
}

func (c *Client) streamOnce(ctx context.Context, params GenerationParams, messages []Message, onDelta func(string) error) (string, error) {
	reqBody := map[string]any{
		"model":    params.Model,
		"messages": messages,
		"stream":   true,
	}
	if params.Temperature > 0 {
		reqBody["temperature"] = params.Temperature
	}
	if params.MaxTokens > 0 {
		reqBody["max_tokens"] = params.MaxTokens
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &pipeline.GenerationProviderError{
			StatusCode: resp.StatusCode,
			Kind:       pipeline.ClassifyStatus(resp.StatusCode),
			Body:       string(body),
		}
	}

	return decodeSSE(resp.Body, onDelta)
}

// decodeSSE reads an event stream line by line: "data: " payloads carry
// JSON chunks, a literal [DONE] ends the stream. Malformed payloads are
// tolerated up to maxMalformedLines.
func decodeSSE(r io.Reader, onDelta func(string) error) (string, error) {
	var full strings.Builder
	malformed := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}

		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			return full.String(), nil
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			malformed++
			if malformed > maxMalformedLines {
				return "", &pipeline.GenerationProviderError{
					Kind: pipeline.GenerationErrStream,
					Body: "too many malformed stream chunks",
				}
			}
			continue
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}

		full.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return "", err
		}
	}

	if err := scanner.Err(); err != nil {
		return "", err
	}

	// Stream ended without [DONE]; treat whatever accumulated as final.
	return full.String(), nil
}
