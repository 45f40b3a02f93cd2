package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// InputType distinguishes corpus passages from search queries; some embedding
// models are asymmetric and score better when told which side they embed.
const (
	InputTypePassage = "passage"
	InputTypeQuery   = "query"
)

// Embed returns the embedding vector for one text.
func (c *Client) Embed(ctx context.Context, ep Endpoint, text, inputType string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("embedding input is empty")
	}
	vectors, err := c.EmbedBatch(ctx, ep, []string{text}, inputType)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per input text, in input order. The caller is
// responsible for keeping the batch under the provider's size limit.
func (c *Client) EmbedBatch(ctx context.Context, ep Endpoint, texts []string, inputType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("embedding input %d is empty", i)
		}
	}

	reqBody := map[string]interface{}{
		"model":           ep.Model,
		"input":           texts,
		"encoding_format": "float",
		"input_type":      inputType,
	}

	raw, err := c.postJSON(ctx, ep, "/embeddings", reqBody)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse embedding json failed: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(parsed.Data))
	}

	result := make([][]float32, len(texts))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(result) {
			return nil, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		result[item.Index] = item.Embedding
	}
	for i := range result {
		if len(result[i]) == 0 {
			return nil, fmt.Errorf("empty embedding for input %d", i)
		}
	}
	return result, nil
}
