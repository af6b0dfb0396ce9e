// Package embed converts chunk text into vectors via a local embedding
// model server.
package embed

import "context"

// Embedder converts free text into numeric vector representations.
type Embedder interface {
	// Name identifies the embedder implementation.
	Name() string
	// Model identifies the underlying embedding model.
	Model() string
	// Embed returns one vector per input text, in input order. It fails
	// fast on the first text that cannot be embedded.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
