// Copyright (C) 2025 Dumroo AI (engineering@dumroo.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides text-completion clients for external generative
// providers. The rest of the service treats a provider as an opaque
// capability: a prompt goes in, text comes out, and any failure mode
// (error, timeout, empty text) is equivalent to "model unavailable".
package llm

import "context"

// CompletionClient is the single capability the query pipeline consumes.
//
// Description:
//
//	Complete sends a prompt and returns the model's text. Implementations
//	must honor ctx cancellation and deadlines; the caller bounds every call
//	with a timeout. An empty completion is reported as an error so callers
//	have exactly one failure signal.
//
//	Model identifies the backing model. Cached completions are keyed by it,
//	so two clients answering differently must report different strings.
//
// Thread Safety: Implementations must be safe for concurrent use.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Model() string
}

// GenerationParams tunes a completion request. The zero value means
// provider defaults.
type GenerationParams struct {
	// Temperature controls sampling randomness. Nil uses the provider default.
	Temperature *float32

	// MaxOutputTokens caps the completion length. Zero uses the provider default.
	MaxOutputTokens int
}
