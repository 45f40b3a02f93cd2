package ai

import "context"

// The bindings pin a Client to one configured endpoint so callers hold a
// single-purpose value instead of threading Endpoint through every call.

// ChatModel is a chat-completion backend bound to one model.
type ChatModel struct {
	client *Client
	ep     Endpoint
}

func NewChatModel(client *Client, ep Endpoint) *ChatModel {
	return &ChatModel{client: client, ep: ep}
}

func (m *ChatModel) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	return m.client.Complete(ctx, m.ep, messages)
}

// EmbeddingModel is an embedding backend bound to one model.
type EmbeddingModel struct {
	client *Client
	ep     Endpoint
}

func NewEmbeddingModel(client *Client, ep Endpoint) *EmbeddingModel {
	return &EmbeddingModel{client: client, ep: ep}
}

func (m *EmbeddingModel) Embed(ctx context.Context, text, inputType string) ([]float32, error) {
	return m.client.Embed(ctx, m.ep, text, inputType)
}

func (m *EmbeddingModel) EmbedBatch(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	return m.client.EmbedBatch(ctx, m.ep, texts, inputType)
}

// VisionModel is a vision-capable chat backend bound to one model.
type VisionModel struct {
	client *Client
	ep     Endpoint
}

func NewVisionModel(client *Client, ep Endpoint) *VisionModel {
	return &VisionModel{client: client, ep: ep}
}

func (m *VisionModel) TranscribeImage(ctx context.Context, jpegData []byte) (string, error) {
	return m.client.TranscribeImage(ctx, m.ep, jpegData)
}
