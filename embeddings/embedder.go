// Package embeddings defines the embedding-generation collaborator: a
// pretrained encoder mapping each sentence to a fixed-length vector. The
// core pipeline consumes embeddings read-only; this package only exists
// so the CLI can produce them.
package embeddings

import "context"

// Embedder generates one vector per input text.
type Embedder interface {
	// Embed returns one embedding per text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the output vector length.
	Dimension() int
}
