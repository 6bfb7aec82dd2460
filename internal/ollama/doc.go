// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with the Ollama API.
//
// # Key Types
//
//   - Client: HTTP client for health checks, model queries and generation
//   - Generator: raw text continuation on top of Client; its output starts
//     with the prompt verbatim, the way a causal language model sees it
//   - ClientError: typed errors (not running, timeout, model not found, ...)
//
// # Usage
//
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{BaseURL: url})
//	if err := client.EnsureRunning(ctx); err != nil {
//	    return err
//	}
//	gen := ollama.NewGenerator(client, "qwen2.5:0.5b", ollama.Options{NumPredict: 150})
//	raw, err := gen.Generate(ctx, prompt) // raw == prompt + continuation
package ollama
