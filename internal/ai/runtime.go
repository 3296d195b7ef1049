package ai

import "context"

// Runtime is the chat-completion surface shared by the OpenAI client and the
// local Ollama runtime. Agents depend on this, never on a concrete client.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider identifiers accepted by the `provider` config key.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)
