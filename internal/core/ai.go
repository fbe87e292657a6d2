package core

import "context"

type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMProvider streams model output. onChunk is called with each text
// fragment in arrival order; an error from onChunk aborts the stream.
type LLMProvider interface {
	StreamGenerate(ctx context.Context, systemPrompt, userPrompt string, onChunk func(string) error) error
}
