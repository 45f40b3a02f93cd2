package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

const visionInstruction = "Transcribe all text, tables, and charts from this page into clear Markdown. " +
	"If there are tables, represent them as Markdown tables."

// TranscribeImage sends JPEG bytes to a vision-capable model and returns the
// Markdown transcription of any visible text and tables.
func (c *Client) TranscribeImage(ctx context.Context, ep Endpoint, jpegData []byte) (string, error) {
	if len(jpegData) == 0 {
		return "", fmt.Errorf("empty image data")
	}

	encoded := base64.StdEncoding.EncodeToString(jpegData)
	reqBody := map[string]interface{}{
		"model": ep.Model,
		"messages": []map[string]interface{}{
			{
				"role": "user",
				"content": []map[string]interface{}{
					{"type": "text", "text": visionInstruction},
					{
						"type": "image_url",
						"image_url": map[string]string{
							"url": "data:image/jpeg;base64," + encoded,
						},
					},
				},
			},
		},
		"max_tokens":  4096,
		"temperature": 0.2,
	}

	raw, err := c.postJSON(ctx, ep, "/chat/completions", reqBody)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse vision json failed: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty vision choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
