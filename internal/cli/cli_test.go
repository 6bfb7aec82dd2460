// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/minigpt/internal/config"
	"github.com/jeranaias/minigpt/internal/offline"
	"github.com/jeranaias/minigpt/internal/ollama"
	"github.com/jeranaias/minigpt/internal/storage"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// captureOutput redirects the package output streams for the test.
func captureOutput(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	oldOut, oldErr := stdout, stderr
	stdout, stderr = &out, &errOut
	t.Cleanup(func() {
		stdout, stderr = oldOut, oldErr
	})
	return &out, &errOut
}

// fakeOllama serves the endpoints the CLI uses. Every generation answers
// with continuation appended to the prompt.
type fakeOllama struct {
	continuation string
	failGenerate bool
	loaded       []ollama.RunningModel
	generations  atomic.Int32
	lastRequest  atomic.Value // ollama.GenerateRequest
}

func (f *fakeOllama) start(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("Ollama is running"))
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req ollama.GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.lastRequest.Store(req)
		f.generations.Add(1)
		if f.failGenerate {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"model crashed"}`))
			return
		}
		json.NewEncoder(w).Encode(ollama.GenerateResponse{
			Model:    req.Model,
			Response: f.continuation,
			Done:     true,
		})
	})
	mux.HandleFunc("/api/ps", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollama.ListRunningResponse{Models: f.loaded})
	})
	mux.HandleFunc("/api/show", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// writeTestConfig writes a config file that keeps every path inside dir.
func writeTestConfig(t *testing.T, dir, ollamaURL string, archive bool) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	content := fmt.Sprintf(`
[model]
name = "test-model"
ollama_url = %q
timeout_secs = 5
auto_start = false

[search]
enabled = false

[logging]
enabled = true
file = %q

[archive]
enabled = %t
path = %q

[ui]
markdown = false
input_history = false
`, ollamaURL, filepath.Join(dir, "logs", "assistant.log"), archive, filepath.Join(dir, "history.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// envelope decodes a JSONResponse with a typed payload.
type envelope[T any] struct {
	Success bool    `json:"success"`
	Data    T       `json:"data"`
	Error   *string `json:"error"`
	Command string  `json:"command"`
}

func decodeEnvelope[T any](t *testing.T, data []byte) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal(data, &env), "output: %s", data)
	return env
}

// =============================================================================
// PARSE TESTS
// =============================================================================

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		argv    []string
		wantCmd Command
		check   func(*testing.T, Args)
	}{
		{
			name:    "no args starts chat",
			argv:    nil,
			wantCmd: CmdChat,
		},
		{
			name:    "ask joins the query",
			argv:    []string{"ask", "what", "is", "go"},
			wantCmd: CmdAsk,
			check: func(t *testing.T, a Args) {
				assert.Equal(t, "what is go", a.Query)
			},
		},
		{
			name:    "global flags anywhere",
			argv:    []string{"ask", "--no-search", "hello", "--model", "llama3.2", "--json"},
			wantCmd: CmdAsk,
			check: func(t *testing.T, a Args) {
				assert.Equal(t, "hello", a.Query)
				assert.Equal(t, "llama3.2", a.Model)
				assert.True(t, a.NoSearch)
				assert.True(t, a.JSON)
			},
		},
		{
			name:    "equals forms",
			argv:    []string{"--config=/tmp/x.toml", "--model=m1", "status"},
			wantCmd: CmdStatus,
			check: func(t *testing.T, a Args) {
				assert.Equal(t, "/tmp/x.toml", a.ConfigPath)
				assert.Equal(t, "m1", a.Model)
			},
		},
		{
			name:    "offline aliases",
			argv:    []string{"--no-network", "chat"},
			wantCmd: CmdChat,
			check: func(t *testing.T, a Args) {
				assert.True(t, a.Offline)
			},
		},
		{
			name:    "status alias",
			argv:    []string{"s"},
			wantCmd: CmdStatus,
		},
		{
			name:    "history subcommand",
			argv:    []string{"sessions", "show", "0194"},
			wantCmd: CmdHistory,
			check: func(t *testing.T, a Args) {
				assert.Equal(t, "show", a.Subcommand)
				assert.Equal(t, []string{"show", "0194"}, a.Raw)
			},
		},
		{
			name:    "config subcommand",
			argv:    []string{"config", "SET", "model.name", "x"},
			wantCmd: CmdConfig,
			check: func(t *testing.T, a Args) {
				assert.Equal(t, "set", a.Subcommand)
			},
		},
		{
			name:    "version flag",
			argv:    []string{"--version"},
			wantCmd: CmdVersion,
		},
		{
			name:    "help flag",
			argv:    []string{"-h"},
			wantCmd: CmdHelp,
		},
		{
			name:    "unknown command",
			argv:    []string{"frobnicate", "x"},
			wantCmd: CmdUnknown,
			check: func(t *testing.T, a Args) {
				assert.Equal(t, "frobnicate", a.Subcommand)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args := Parse(tt.argv)
			assert.Equal(t, tt.wantCmd, cmd)
			if tt.check != nil {
				tt.check(t, args)
			}
		})
	}
}

// =============================================================================
// ARG PARSER TESTS (args.go)
// =============================================================================

func TestArgParser_BasicParsing(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		switches []string
		wantSub  string
		validate func(*testing.T, *ArgParser)
	}{
		{
			name:    "simple subcommand",
			args:    []string{"show"},
			wantSub: "show",
		},
		{
			name:    "subcommand with flag",
			args:    []string{"list", "--limit", "50"},
			wantSub: "list",
			validate: func(t *testing.T, p *ArgParser) {
				if p.Flag("limit") != "50" {
					t.Errorf("Flag(limit) = %q, want %q", p.Flag("limit"), "50")
				}
			},
		},
		{
			name:    "flag with equals",
			args:    []string{"list", "--limit=5"},
			wantSub: "list",
			validate: func(t *testing.T, p *ArgParser) {
				if p.Flag("limit") != "5" {
					t.Errorf("Flag(limit) = %q, want %q", p.Flag("limit"), "5")
				}
			},
		},
		{
			name:    "trailing boolean flag",
			args:    []string{"init", "--force"},
			wantSub: "init",
			validate: func(t *testing.T, p *ArgParser) {
				if !p.BoolFlag("force") {
					t.Error("BoolFlag(force) should be true")
				}
			},
		},
		{
			name:     "switch does not take the next word",
			args:     []string{"delete", "--confirm", "0194ab"},
			switches: []string{"confirm"},
			wantSub:  "delete",
			validate: func(t *testing.T, p *ArgParser) {
				if !p.BoolFlag("confirm") {
					t.Error("BoolFlag(confirm) should be true")
				}
				if p.Positional(1) != "0194ab" {
					t.Errorf("Positional(1) = %q, want 0194ab", p.Positional(1))
				}
			},
		},
		{
			name:    "negative number is a value",
			args:    []string{"set", "generation.seed", "-1"},
			wantSub: "set",
			validate: func(t *testing.T, p *ArgParser) {
				if p.Positional(2) != "-1" {
					t.Errorf("Positional(2) = %q, want -1", p.Positional(2))
				}
			},
		},
		{
			name:    "double dash ends flags",
			args:    []string{"set", "--", "--weird"},
			wantSub: "set",
			validate: func(t *testing.T, p *ArgParser) {
				if p.Positional(1) != "--weird" {
					t.Errorf("Positional(1) = %q, want --weird", p.Positional(1))
				}
			},
		},
		{
			name:    "multiple positional args",
			args:    []string{"set", "search.triggers", "news,", "weather"},
			wantSub: "set",
			validate: func(t *testing.T, p *ArgParser) {
				if p.PositionalCount() != 4 {
					t.Errorf("PositionalCount() = %d, want 4", p.PositionalCount())
				}
				joined := strings.Join(p.PositionalFrom(2), " ")
				if joined != "news, weather" {
					t.Errorf("PositionalFrom(2) joined = %q", joined)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewArgParser(tt.args, tt.switches...)
			if parser.Subcommand() != tt.wantSub {
				t.Errorf("Subcommand() = %q, want %q", parser.Subcommand(), tt.wantSub)
			}
			if tt.validate != nil {
				tt.validate(t, parser)
			}
		})
	}
}

func TestArgParser_HasFlag(t *testing.T) {
	parser := NewArgParser([]string{"cmd", "--all", "--limit", "50"})

	if !parser.HasFlag("all") {
		t.Error("HasFlag(all) should be true")
	}
	if !parser.HasFlag("--limit") {
		t.Error("HasFlag(--limit) should be true")
	}
	if parser.HasFlag("nonexistent") {
		t.Error("HasFlag(nonexistent) should be false")
	}
	if parser.FlagOrDefault("missing", "x") != "x" {
		t.Error("FlagOrDefault should fall back")
	}
	if _, err := parser.FlagInt("missing"); err == nil {
		t.Error("FlagInt(missing) should fail")
	}
}

func TestParseIntWithValidation(t *testing.T) {
	n, err := ParseIntWithValidation("5", "limit")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	for _, bad := range []string{"", "abc", "0", "-3"} {
		_, err := ParseIntWithValidation(bad, "limit")
		assert.Error(t, err, "input %q", bad)
	}
}

// =============================================================================
// ERROR TESTS (errors.go)
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"validation", NewValidationError("limit", "x", "bad"), ExitUsageError},
		{"missing argument", ErrMissingArgument("id", "usage"), ExitUsageError},
		{"not found", NewNotFoundError("session", "abc"), ExitNotFoundError},
		{"archive not found", fmt.Errorf("show: %w", storage.ErrSessionNotFound), ExitNotFoundError},
		{"config", &ConfigError{Path: "x", Err: errors.New("bad")}, ExitConfigError},
		{"config validation", config.ValidateErrors{{Field: "model.name", Message: "empty"}}, ExitConfigError},
		{"canceled", context.Canceled, ExitInterrupted},
		{"policy", fmt.Errorf("ollama url: %w", offline.ErrNonLocalhost), ExitPolicyError},
		{"timeout", ollama.ErrTimeout, ExitTimeoutError},
		{"not running", ollama.ErrNotRunning, ExitNetworkError},
		{"model missing", fmt.Errorf("generation failed: %w", ollama.ErrModelNotFound), ExitNotFoundError},
		{"connection refused text", errors.New("dial tcp: connection refused"), ExitNetworkError},
		{"generic", errors.New("boom"), ExitGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestDisplayError(t *testing.T) {
	_, errOut := captureOutput(t)

	DisplayError(ollama.ErrNotRunning, false)
	assert.Contains(t, errOut.String(), "Ollama is not running")
	assert.Contains(t, errOut.String(), "ollama serve")
}

func TestDisplayErrorJSON(t *testing.T) {
	out, _ := captureOutput(t)

	DisplayError(NewValidationErrorWithExample("id", "", "required argument missing", "minigpt history show ID"), true)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, false, got["success"])
	assert.Equal(t, "validation_error", got["error_type"])
	assert.Equal(t, float64(ExitUsageError), got["exit_code"])
	assert.Equal(t, "minigpt history show ID", got["example"])
}

// =============================================================================
// RUN / VERSION
// =============================================================================

func TestRun_UnknownCommand(t *testing.T) {
	captureOutput(t)
	cmd, args := Parse([]string{"frobnicate"})
	err := Run(cmd, args)
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

func TestHandleVersion_JSON(t *testing.T) {
	out, _ := captureOutput(t)
	require.NoError(t, HandleVersion(Args{JSON: true}))

	env := decodeEnvelope[VersionData](t, out.Bytes())
	assert.True(t, env.Success)
	assert.Equal(t, Version, env.Data.Version)
	assert.NotEmpty(t, env.Data.GoVersion)
}

func TestHandleHelp(t *testing.T) {
	out, _ := captureOutput(t)
	require.NoError(t, HandleHelp())
	assert.Contains(t, out.String(), "minigpt ask")
	assert.Contains(t, out.String(), Version)
}

// =============================================================================
// CONFIG
// =============================================================================

func TestLoadConfig_Overrides(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, "http://127.0.0.1:11434", false)

	cfg, err := LoadConfig(Args{
		ConfigPath: path,
		Model:      "other-model",
		Offline:    true,
		Verbose:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "other-model", cfg.Model.Name)
	assert.True(t, cfg.OfflineMode)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)

	cfg, err = LoadConfig(Args{ConfigPath: path, NoSearch: true})
	require.NoError(t, err)
	assert.False(t, cfg.Search.Enabled)
	assert.Equal(t, "test-model", cfg.Model.Name)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(Args{ConfigPath: filepath.Join(t.TempDir(), "nope.toml")})
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, GetExitCode(err))
}

func TestGenerationOptions(t *testing.T) {
	g := config.Default().Generation
	g.Stop = []string{"Human:"}
	g.Seed = 42

	opts := generationOptions(g)
	assert.Equal(t, g.Temperature, opts.Temperature)
	assert.Equal(t, g.TopK, opts.TopK)
	assert.Equal(t, g.TopP, opts.TopP)
	assert.Equal(t, g.RepetitionPenalty, opts.RepeatPenalty)
	assert.Equal(t, g.MaxNewTokens, opts.NumPredict)
	assert.Equal(t, []string{"Human:"}, opts.Stop)
	assert.Equal(t, 42, opts.Seed)
}

func TestNewApp_OfflineRejectsRemoteOllama(t *testing.T) {
	cfg := config.Default()
	cfg.Model.OllamaURL = "http://ollama.example.com:11434"
	cfg.OfflineMode = true
	cfg.Logging.Enabled = false
	cfg.Archive.Enabled = false

	_, err := newApp(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, offline.ErrNonLocalhost)
	assert.Equal(t, ExitPolicyError, GetExitCode(err))
}

func TestNewApp_NoSearchWhenOffline(t *testing.T) {
	cfg := config.Default()
	cfg.OfflineMode = true
	cfg.Logging.Enabled = false
	cfg.Archive.Enabled = false

	a, err := newApp(cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.searcher)
	assert.False(t, a.newSession().SearchEnabled())
}

func TestPrintStatus_SearchAndLog(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.OfflineMode = true
	cfg.Logging.File = filepath.Join(dir, "assistant.log")
	cfg.Archive.Enabled = false

	a, err := newApp(cfg)
	require.NoError(t, err)
	defer a.Close()

	out, _ := captureOutput(t)
	printStatus(&ChatSession{app: a, session: a.newSession()})
	assert.Contains(t, out.String(), "Search:")
	assert.Contains(t, out.String(), "offline (localhost only)")
	assert.Contains(t, out.String(), filepath.Join(dir, "assistant.log"))

	cfg = config.Default()
	cfg.Search.Enabled = false
	cfg.Logging.Enabled = false
	cfg.Archive.Enabled = false
	b, err := newApp(cfg)
	require.NoError(t, err)
	defer b.Close()

	out.Reset()
	printStatus(&ChatSession{app: b, session: b.newSession()})
	assert.Contains(t, out.String(), "[WARN] disabled")
	assert.Contains(t, out.String(), "online")
	assert.NotContains(t, out.String(), "assistant.log")
}

func TestChatSession_Terminate(t *testing.T) {
	t.Run("idle", func(t *testing.T) {
		s := &ChatSession{}
		assert.True(t, s.terminate())
		assert.True(t, s.isStopping())
		assert.False(t, s.setCancel(func() {}))
	})

	t.Run("generating", func(t *testing.T) {
		s := &ChatSession{}
		canceled := false
		require.True(t, s.setCancel(func() { canceled = true }))
		assert.False(t, s.terminate())
		assert.True(t, canceled)
		assert.True(t, s.isStopping())
		assert.False(t, s.cancelInFlight())
		assert.True(t, s.setCancel(nil))
	})

	t.Run("no new turn once stopping", func(t *testing.T) {
		out, errOut := captureOutput(t)
		s := &ChatSession{stopping: true}
		processMessage(s, "hello")
		assert.Empty(t, out.String())
		assert.Empty(t, errOut.String())
	})
}

func TestHandleConfig_Lifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minigpt.toml")
	args := Args{ConfigPath: path}

	out, _ := captureOutput(t)

	// path before init
	require.NoError(t, HandleConfig(withRaw(args, "path")))
	assert.Contains(t, out.String(), path)

	// init
	out.Reset()
	require.NoError(t, HandleConfig(withRaw(args, "init")))
	assert.FileExists(t, path)

	// init again needs --force
	err := HandleConfig(withRaw(args, "init"))
	require.Error(t, err)
	require.NoError(t, HandleConfig(withRaw(args, "init", "--force")))

	// set then get
	require.NoError(t, HandleConfig(withRaw(args, "set", "conversation.memory", "25")))
	out.Reset()
	require.NoError(t, HandleConfig(withRaw(args, "get", "conversation.memory")))
	assert.Equal(t, "25\n", out.String())

	require.NoError(t, HandleConfig(withRaw(args, "set", "search.triggers", "news,weather")))
	out.Reset()
	require.NoError(t, HandleConfig(withRaw(args, "get", "search.triggers")))
	assert.Equal(t, "news,weather\n", out.String())

	loaded, err := config.LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, 25, loaded.Conversation.Memory)
	assert.Equal(t, []string{"news", "weather"}, loaded.Search.Triggers)

	// invalid value is rejected and not written
	err = HandleConfig(withRaw(args, "set", "generation.temperature", "9"))
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, GetExitCode(err))
	loaded, err = config.LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Generation.Temperature, loaded.Generation.Temperature)

	// unknown key
	err = HandleConfig(withRaw(args, "set", "nope.key", "1"))
	require.Error(t, err)

	// show prints TOML
	out.Reset()
	require.NoError(t, HandleConfig(withRaw(args, "show")))
	assert.Contains(t, out.String(), "[conversation]")
	assert.Contains(t, out.String(), "memory = 25")
}

func TestHandleConfig_KeysJSON(t *testing.T) {
	out, _ := captureOutput(t)
	require.NoError(t, HandleConfig(Args{JSON: true, Raw: []string{"keys"}}))

	env := decodeEnvelope[[]string](t, out.Bytes())
	assert.Equal(t, config.Keys(), env.Data)
}

func TestHandleConfig_UnknownSubcommand(t *testing.T) {
	captureOutput(t)
	err := HandleConfig(Args{Raw: []string{"frob"}})
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

func withRaw(args Args, raw ...string) Args {
	args.Raw = raw
	return args
}

// =============================================================================
// ASK
// =============================================================================

func TestHandleAskCommand_JSON(t *testing.T) {
	fake := &fakeOllama{continuation: " Paris is the capital of France.\nHuman: thanks"}
	srv := fake.start(t)
	dir := t.TempDir()
	path := writeTestConfig(t, dir, srv.URL, true)

	out, _ := captureOutput(t)
	err := HandleAskCommand(Args{ConfigPath: path, JSON: true, Query: "What is the capital of France?"})
	require.NoError(t, err)

	env := decodeEnvelope[AskData](t, out.Bytes())
	require.True(t, env.Success)
	assert.Equal(t, "Paris is the capital of France.", env.Data.Response)
	assert.Equal(t, "test-model", env.Data.Model)
	assert.NotEmpty(t, env.Data.SessionID)
	assert.False(t, env.Data.Searched)

	req := fake.lastRequest.Load().(ollama.GenerateRequest)
	assert.True(t, req.Raw)
	assert.True(t, strings.HasSuffix(req.Prompt, "Human: What is the capital of France?\nAssistant:"))

	// The exchange was logged and archived.
	logData, err := os.ReadFile(filepath.Join(dir, "logs", "assistant.log"))
	require.NoError(t, err)
	assert.Contains(t, string(logData), "EXCHANGE")

	archive, err := storage.Open(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	defer archive.Close()
	exchanges, err := archive.Exchanges(context.Background(), env.Data.SessionID)
	require.NoError(t, err)
	require.Len(t, exchanges, 1)
	assert.Equal(t, "Paris is the capital of France.", exchanges[0].Assistant)
}

func TestHandleAskCommand_Plain(t *testing.T) {
	fake := &fakeOllama{continuation: " Hi there!"}
	srv := fake.start(t)
	path := writeTestConfig(t, t.TempDir(), srv.URL, false)

	out, errOut := captureOutput(t)
	require.NoError(t, HandleAskCommand(Args{ConfigPath: path, Query: "hello"}))
	assert.Equal(t, "Hi there!\n", out.String())
	assert.Contains(t, errOut.String(), "test-model")
}

func TestHandleAskCommand_EmptyReplyFallsBack(t *testing.T) {
	fake := &fakeOllama{continuation: "  \n  "}
	srv := fake.start(t)
	path := writeTestConfig(t, t.TempDir(), srv.URL, false)

	out, _ := captureOutput(t)
	require.NoError(t, HandleAskCommand(Args{ConfigPath: path, Quiet: true, Query: "hello"}))
	assert.Equal(t, "Hello! How can I help you today?\n", out.String())
}

func TestHandleAskCommand_GenerationFailure(t *testing.T) {
	fake := &fakeOllama{failGenerate: true}
	srv := fake.start(t)
	path := writeTestConfig(t, t.TempDir(), srv.URL, false)

	out, _ := captureOutput(t)
	err := HandleAskCommand(Args{ConfigPath: path, Query: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model crashed")
	assert.Empty(t, out.String())
	assert.Equal(t, int32(1), fake.generations.Load())
}

func TestHandleAskCommand_RejectsChatCommands(t *testing.T) {
	fake := &fakeOllama{continuation: " ok"}
	srv := fake.start(t)
	path := writeTestConfig(t, t.TempDir(), srv.URL, false)

	captureOutput(t)
	for _, q := range []string{"help", " Quit ", "/model llama3", "/clear"} {
		err := HandleAskCommand(Args{ConfigPath: path, Query: q})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "query %q", q)
		assert.Equal(t, "question", verr.Field)
		assert.Equal(t, ExitUsageError, GetExitCode(err))
	}
	assert.Equal(t, int32(0), fake.generations.Load())

	// Unknown slash text is an ordinary question.
	require.NoError(t, HandleAskCommand(Args{ConfigPath: path, Quiet: true, Query: "/etc/hosts format?"}))
	assert.Equal(t, int32(1), fake.generations.Load())
}

func TestHandleAskCommand_OllamaDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	path := writeTestConfig(t, t.TempDir(), url, false)

	captureOutput(t)
	err := HandleAskCommand(Args{ConfigPath: path, Query: "hello"})
	require.Error(t, err)
	assert.Equal(t, ExitNetworkError, GetExitCode(err))
}

// =============================================================================
// HISTORY
// =============================================================================

func TestHandleHistory_Lifecycle(t *testing.T) {
	fake := &fakeOllama{continuation: " Sure."}
	srv := fake.start(t)
	dir := t.TempDir()
	path := writeTestConfig(t, dir, srv.URL, true)

	out, _ := captureOutput(t)
	require.NoError(t, HandleAskCommand(Args{ConfigPath: path, JSON: true, Query: "first question"}))
	sessionID := decodeEnvelope[AskData](t, out.Bytes()).Data.SessionID

	// list
	out.Reset()
	require.NoError(t, HandleHistory(Args{ConfigPath: path, JSON: true, Raw: []string{"list"}}))
	list := decodeEnvelope[HistoryListData](t, out.Bytes())
	require.Len(t, list.Data.Sessions, 1)
	assert.Equal(t, sessionID, list.Data.Sessions[0].ID)
	assert.Equal(t, "first question", list.Data.Sessions[0].Preview)

	// show by prefix
	out.Reset()
	require.NoError(t, HandleHistory(Args{ConfigPath: path, JSON: true, Raw: []string{"show", sessionID[:13]}}))
	show := decodeEnvelope[HistoryShowData](t, out.Bytes())
	assert.Equal(t, sessionID, show.Data.Session.ID)
	require.Len(t, show.Data.Exchanges, 1)
	assert.Equal(t, "Sure.", show.Data.Exchanges[0].Assistant)

	// delete needs --confirm
	err := HandleHistory(Args{ConfigPath: path, Raw: []string{"delete", sessionID}})
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, GetExitCode(err))

	out.Reset()
	require.NoError(t, HandleHistory(Args{ConfigPath: path, Raw: []string{"delete", "--confirm", sessionID}}))
	assert.Contains(t, out.String(), sessionID)

	// gone
	err = HandleHistory(Args{ConfigPath: path, Raw: []string{"show", sessionID}})
	require.Error(t, err)
	assert.Equal(t, ExitNotFoundError, GetExitCode(err))
}

func TestHandleHistory_Clear(t *testing.T) {
	fake := &fakeOllama{continuation: " Ok."}
	srv := fake.start(t)
	path := writeTestConfig(t, t.TempDir(), srv.URL, true)

	out, _ := captureOutput(t)
	require.NoError(t, HandleAskCommand(Args{ConfigPath: path, Quiet: true, Query: "one"}))
	require.NoError(t, HandleAskCommand(Args{ConfigPath: path, Quiet: true, Query: "two"}))

	require.Error(t, HandleHistory(Args{ConfigPath: path, Raw: []string{"clear"}}))

	out.Reset()
	require.NoError(t, HandleHistory(Args{ConfigPath: path, JSON: true, Raw: []string{"clear", "--confirm"}}))
	env := decodeEnvelope[map[string]int](t, out.Bytes())
	assert.Equal(t, 2, env.Data["deleted"])
}

func TestHandleHistory_MissingArchive(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, "http://127.0.0.1:11434", true)

	out, _ := captureOutput(t)
	require.NoError(t, HandleHistory(Args{ConfigPath: path}))
	assert.Contains(t, out.String(), "No archived conversations.")
	assert.NoFileExists(t, filepath.Join(dir, "history.db"))

	err := HandleHistory(Args{ConfigPath: path, Raw: []string{"show", "0194"}})
	require.Error(t, err)
	assert.Equal(t, ExitNotFoundError, GetExitCode(err))
}

func TestHandleHistory_Disabled(t *testing.T) {
	path := writeTestConfig(t, t.TempDir(), "http://127.0.0.1:11434", false)

	captureOutput(t)
	err := HandleHistory(Args{ConfigPath: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

// =============================================================================
// STATUS
// =============================================================================

func TestHandleStatus_JSON(t *testing.T) {
	fake := &fakeOllama{loaded: []ollama.RunningModel{
		{Name: "test-model", Model: "test-model", Size: 100, SizeVRAM: 100},
	}}
	srv := fake.start(t)
	path := writeTestConfig(t, t.TempDir(), srv.URL, true)

	out, _ := captureOutput(t)
	require.NoError(t, HandleStatus(Args{ConfigPath: path, JSON: true}))

	env := decodeEnvelope[StatusData](t, out.Bytes())
	assert.Equal(t, "running", env.Data.Ollama)
	assert.Equal(t, "loaded", env.Data.ModelStatus)
	assert.Equal(t, "GPU", env.Data.Device)
	assert.Equal(t, "disabled", env.Data.Search)
	assert.Equal(t, 0, env.Data.Sessions)
	assert.Equal(t, path, env.Data.ConfigPath)
}

func TestHandleStatus_NotDownloaded(t *testing.T) {
	fake := &fakeOllama{}
	srv := fake.start(t)
	path := writeTestConfig(t, t.TempDir(), srv.URL, false)

	out, _ := captureOutput(t)
	require.NoError(t, HandleStatus(Args{ConfigPath: path, JSON: true, Offline: true}))

	env := decodeEnvelope[StatusData](t, out.Bytes())
	assert.Equal(t, "not_downloaded", env.Data.ModelStatus)
	assert.Equal(t, "offline", env.Data.Search)
	assert.True(t, env.Data.Offline)
}

func TestHandleStatus_OllamaDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	path := writeTestConfig(t, t.TempDir(), url, false)

	out, _ := captureOutput(t)
	require.NoError(t, HandleStatus(Args{ConfigPath: path}))
	assert.Contains(t, out.String(), "minigpt Status")
	assert.Contains(t, out.String(), "unknown")
}

// =============================================================================
// FORMATTING
// =============================================================================

func TestFormatDurationShort(t *testing.T) {
	assert.Equal(t, "250ms", formatDurationShort(250_000_000))
	assert.Equal(t, "1.5s", formatDurationShort(1_500_000_000))
	assert.Equal(t, "2m5s", formatDurationShort(125_000_000_000))
}

func TestRenderSeparator(t *testing.T) {
	assert.Contains(t, RenderSeparator(5), "=====")
	assert.NotContains(t, RenderSeparator(5), "======")
}
