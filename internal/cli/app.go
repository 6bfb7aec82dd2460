// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Wires configuration into the collaborators a chat session needs.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jeranaias/minigpt/internal/chat"
	"github.com/jeranaias/minigpt/internal/config"
	"github.com/jeranaias/minigpt/internal/logging"
	"github.com/jeranaias/minigpt/internal/offline"
	"github.com/jeranaias/minigpt/internal/ollama"
	"github.com/jeranaias/minigpt/internal/search"
	"github.com/jeranaias/minigpt/internal/storage"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// LoadConfig loads the configuration file and applies command-line overrides
// to a copy of it.
func LoadConfig(args Args) (*config.Config, error) {
	loaded, err := config.Load(args.ConfigPath)
	if err != nil {
		return nil, &ConfigError{Path: args.ConfigPath, Err: err}
	}

	cfg := loaded.Clone()
	if args.Model != "" {
		cfg.Model.Name = args.Model
	}
	if args.Offline {
		cfg.OfflineMode = true
	}
	if args.NoSearch {
		cfg.Search.Enabled = false
	}
	if args.Verbose {
		cfg.Logging.Level = "DEBUG"
	}

	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Path: args.ConfigPath, Err: err}
	}
	return cfg, nil
}

// generationOptions maps the sampling configuration onto Ollama options.
func generationOptions(g config.GenerationConfig) ollama.Options {
	return ollama.Options{
		Temperature:   g.Temperature,
		TopK:          g.TopK,
		TopP:          g.TopP,
		RepeatPenalty: g.RepetitionPenalty,
		NumPredict:    g.MaxNewTokens,
		Stop:          g.Stop,
		Seed:          g.Seed,
	}
}

// =============================================================================
// APP
// =============================================================================

// app holds the collaborators built from one Config.
type app struct {
	cfg    *config.Config
	policy offline.Policy
	logger *slog.Logger
	closer io.Closer

	client   *ollama.Client
	searcher *search.Client
	archive  *storage.Archive
}

// newApp builds the collaborators. A missing archive is a warning, not an
// error: the chat still works without persistence.
func newApp(cfg *config.Config) (*app, error) {
	policy := offline.NewPolicy(cfg.OfflineMode)
	if err := policy.ValidateURL(cfg.Model.OllamaURL); err != nil {
		return nil, fmt.Errorf("ollama url: %w", err)
	}

	logger, closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		return nil, &ConfigError{Path: cfg.Logging.File, Err: err}
	}

	a := &app{
		cfg:    cfg,
		policy: policy,
		logger: logger,
		closer: closer,
		client: ollama.NewClientWithConfig(&ollama.ClientConfig{
			BaseURL:  cfg.Model.OllamaURL,
			Timeout:  cfg.Model.Timeout(),
			Progress: stderr,
		}),
	}

	if cfg.Search.Enabled && !cfg.OfflineMode {
		a.searcher = search.NewClient(search.Options{
			APIURL:     cfg.Search.APIURL,
			HTMLURL:    cfg.Search.HTMLURL,
			Timeout:    cfg.Search.Timeout(),
			MaxResults: cfg.Search.MaxResults,
			Policy:     policy,
			Logger:     logger,
		})
	}

	if cfg.Archive.Enabled {
		archive, err := storage.Open(config.ExpandPath(cfg.Archive.Path))
		if err != nil {
			logger.Warn(logging.EventArchiveFailed, "error", err)
			fmt.Fprintf(stderr, "%s history archive unavailable: %v\n", WarningStyle.Render("[!]"), err)
		} else {
			a.archive = archive
		}
	}

	return a, nil
}

// generator returns a generator for the named model.
func (a *app) generator(modelName string) *ollama.Generator {
	return ollama.NewGenerator(a.client, modelName, generationOptions(a.cfg.Generation))
}

// newSession starts a chat session with whichever collaborators are enabled.
func (a *app) newSession() *chat.Session {
	opts := chat.Options{
		Retention: a.cfg.Conversation.Memory,
		Triggers:  a.cfg.Search.Triggers,
		Logger:    a.logger,
	}
	// Nil pointers stay out of the interfaces so the session sees them as absent.
	if a.searcher != nil {
		opts.Searcher = a.searcher
	}
	if a.archive != nil {
		opts.Archive = a.archive
	}
	return chat.NewSession(a.generator(a.cfg.Model.Name), opts)
}

// ensureOllama makes sure the server answers, starting it when allowed.
func (a *app) ensureOllama(ctx context.Context) error {
	if a.cfg.Model.AutoStart {
		return a.client.EnsureRunning(ctx)
	}
	return a.client.CheckRunning(ctx)
}

// Close releases the archive and the log file.
func (a *app) Close() error {
	var firstErr error
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			firstErr = err
		}
	}
	if a.closer != nil {
		if err := a.closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
