// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"sync"
)

// Generator continues raw prompts with a fixed model and sampling options.
//
// Requests are sent with raw mode so the server applies no chat template:
// the model sees exactly the transcript it is given. The returned text is
// the prompt followed by the continuation, which is what callers strip.
type Generator struct {
	client  *Client
	model   string
	options Options

	mu   sync.Mutex
	last *GenerateResponse
}

// NewGenerator creates a generator for model using opts on every call.
func NewGenerator(client *Client, model string, opts Options) *Generator {
	opts.Stop = append([]string(nil), opts.Stop...)
	return &Generator{client: client, model: model, options: opts}
}

// Model returns the model name.
func (g *Generator) Model() string {
	return g.model
}

// Generate returns prompt followed by the model's continuation of it.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	opts := g.options
	resp, err := g.client.Generate(ctx, GenerateRequest{
		Model:   g.model,
		Prompt:  prompt,
		Raw:     true,
		Options: &opts,
	})
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	g.last = resp
	g.mu.Unlock()

	return prompt + resp.Response, nil
}

// LastResponse returns the metadata of the most recent successful call,
// or nil before the first one.
func (g *Generator) LastResponse() *GenerateResponse {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}
