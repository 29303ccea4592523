// Package embedding produces scene vectors for semantic retrieval over the
// indexed chapters. Embedding is optional: the pipeline runs unchanged with
// the no-op provider, and embedding failures never fail a chapter run.
package embedding

import "context"

// Provider turns scene text into a vector.
type Provider interface {
	// Embed returns the vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Name identifies the provider in warnings and logs.
	Name() string
}

// NoopProvider is the default when embedding is disabled. Embed returns a
// nil vector and no error; callers skip storage on nil vectors.
type NoopProvider struct{}

func (NoopProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, nil
}

func (NoopProvider) Name() string { return "noop" }
