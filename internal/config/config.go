// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jeranaias/minigpt/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete minigpt configuration.
type Config struct {
	// Model backend (Ollama)
	Model ModelConfig `toml:"model" json:"model"`

	// Sampling parameters for each generation call
	Generation GenerationConfig `toml:"generation" json:"generation"`

	// Conversation history
	Conversation ConversationConfig `toml:"conversation" json:"conversation"`

	// Web search augmentation
	Search SearchConfig `toml:"search" json:"search"`

	// Exchange log
	Logging LoggingConfig `toml:"logging" json:"logging"`

	// Persistent exchange archive
	Archive ArchiveConfig `toml:"archive" json:"archive"`

	// Terminal output
	UI UIConfig `toml:"ui" json:"ui"`

	// OfflineMode blocks every outbound request except to localhost.
	OfflineMode bool `toml:"offline_mode" json:"offline_mode"`
}

// ModelConfig selects the model and the Ollama server that runs it.
type ModelConfig struct {
	Name        string `toml:"name" json:"name"`
	OllamaURL   string `toml:"ollama_url" json:"ollama_url"`
	TimeoutSecs int    `toml:"timeout_secs" json:"timeout_secs"`
	AutoStart   bool   `toml:"auto_start" json:"auto_start"`
}

// Timeout returns the generation timeout as a duration.
func (m ModelConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSecs) * time.Second
}

// GenerationConfig holds the sampling parameters.
type GenerationConfig struct {
	MaxNewTokens      int      `toml:"max_new_tokens" json:"max_new_tokens"`
	Temperature       float64  `toml:"temperature" json:"temperature"`
	TopP              float64  `toml:"top_p" json:"top_p"`
	TopK              int      `toml:"top_k" json:"top_k"`
	RepetitionPenalty float64  `toml:"repetition_penalty" json:"repetition_penalty"`
	Stop              []string `toml:"stop" json:"stop"`
	Seed              int      `toml:"seed" json:"seed"` // 0 = random
}

// ConversationConfig controls how many exchanges the session retains.
type ConversationConfig struct {
	// Memory is the retention window in exchanges (0 = unlimited).
	// Prompts only ever use the last three regardless.
	Memory int `toml:"memory" json:"memory"`
}

// SearchConfig controls web search augmentation.
type SearchConfig struct {
	Enabled     bool     `toml:"enabled" json:"enabled"`
	APIURL      string   `toml:"api_url" json:"api_url"`
	HTMLURL     string   `toml:"html_url" json:"html_url"`
	TimeoutSecs int      `toml:"timeout_secs" json:"timeout_secs"`
	MaxResults  int      `toml:"max_results" json:"max_results"`
	Triggers    []string `toml:"triggers" json:"triggers"`
}

// Timeout returns the per-search timeout as a duration.
func (s SearchConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSecs) * time.Second
}

// LoggingConfig controls the exchange log.
type LoggingConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	File    string `toml:"file" json:"file"`
	Level   string `toml:"level" json:"level"`   // DEBUG, INFO, WARN, ERROR
	Format  string `toml:"format" json:"format"` // text, json
}

// ArchiveConfig controls the SQLite exchange archive.
type ArchiveConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Path    string `toml:"path" json:"path"`
}

// UIConfig controls terminal output.
type UIConfig struct {
	Markdown     bool `toml:"markdown" json:"markdown"`
	InputHistory bool `toml:"input_history" json:"input_history"`
}

// DefaultTriggers are the phrases that send a query to web search.
var DefaultTriggers = []string{
	"search", "look up", "find", "what's", "news", "current",
	"recent", "today", "latest", "weather", "stock", "price",
}

// Default returns a new Config with default values.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Name:        "qwen2.5:0.5b",
			OllamaURL:   "http://127.0.0.1:11434",
			TimeoutSecs: 120,
			AutoStart:   true,
		},
		Generation: GenerationConfig{
			MaxNewTokens:      150,
			Temperature:       0.3,
			TopP:              0.9,
			TopK:              50,
			RepetitionPenalty: 1.1,
			Stop:              []string{},
		},
		Conversation: ConversationConfig{
			Memory: 10,
		},
		Search: SearchConfig{
			Enabled:     true,
			APIURL:      "https://api.duckduckgo.com/",
			HTMLURL:     "https://html.duckduckgo.com/html/",
			TimeoutSecs: 10,
			MaxResults:  3,
			Triggers:    append([]string(nil), DefaultTriggers...),
		},
		Logging: LoggingConfig{
			Enabled: true,
			File:    "~/.minigpt/logs/assistant.log",
			Level:   "INFO",
			Format:  "text",
		},
		Archive: ArchiveConfig{
			Enabled: true,
			Path:    "~/.minigpt/history.db",
		},
		UI: UIConfig{
			Markdown:     true,
			InputHistory: true,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the minigpt configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".minigpt"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ExpandPath replaces a leading "~" with the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}

// ensureSecurePermissions checks and fixes permissions on config files.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}

	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads the configuration. An explicit path must exist; otherwise the
// default TOML file is tried, then JSON, then built-in defaults.
// Environment overrides are applied last, then the result is validated.
func Load(path string) (*Config, error) {
	if path != "" {
		return LoadFromPath(path)
	}

	for _, candidate := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		p, err := candidate()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(p); statErr == nil {
			return LoadFromPath(p)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(strings.ToLower(path), ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg. Keys absent from the file keep
// the values already in cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return fillDefaults(cfg)
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return fillDefaults(cfg)
}

// fillDefaults fills in values a config file blanked out explicitly.
func fillDefaults(cfg *Config) error {
	defaults := Default()

	if cfg.Model.Name == "" {
		cfg.Model.Name = defaults.Model.Name
	}
	if cfg.Model.OllamaURL == "" {
		cfg.Model.OllamaURL = defaults.Model.OllamaURL
	}
	if cfg.Model.TimeoutSecs == 0 {
		cfg.Model.TimeoutSecs = defaults.Model.TimeoutSecs
	}

	if cfg.Generation.MaxNewTokens == 0 {
		cfg.Generation.MaxNewTokens = defaults.Generation.MaxNewTokens
	}
	if cfg.Generation.Stop == nil {
		cfg.Generation.Stop = []string{}
	}

	if cfg.Search.APIURL == "" {
		cfg.Search.APIURL = defaults.Search.APIURL
	}
	if cfg.Search.HTMLURL == "" {
		cfg.Search.HTMLURL = defaults.Search.HTMLURL
	}
	if cfg.Search.TimeoutSecs == 0 {
		cfg.Search.TimeoutSecs = defaults.Search.TimeoutSecs
	}
	if cfg.Search.MaxResults == 0 {
		cfg.Search.MaxResults = defaults.Search.MaxResults
	}
	if cfg.Search.Triggers == nil {
		cfg.Search.Triggers = defaults.Search.Triggers
	}

	if cfg.Logging.File == "" {
		cfg.Logging.File = defaults.Logging.File
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}

	if cfg.Archive.Path == "" {
		cfg.Archive.Path = defaults.Archive.Path
	}

	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration to path, or to the default TOML file when
// path is empty. Files ending in .json are written as JSON.
func Save(cfg *Config, path string) error {
	if path == "" {
		if err := EnsureConfigDir(); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		p, err := ConfigPathTOML()
		if err != nil {
			return err
		}
		path = p
	}
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		return SaveJSON(cfg, path)
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf strings.Builder
	buf.WriteString("# minigpt configuration file\n")
	buf.WriteString("# Generated by minigpt - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := util.AtomicWriteFile(path, []byte(buf.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Model
	if strings.TrimSpace(c.Model.Name) == "" {
		add("model.name", "must not be empty")
	}
	if err := validateHTTPURL(c.Model.OllamaURL); err != nil {
		add("model.ollama_url", "%v", err)
	}
	if c.Model.TimeoutSecs < 1 || c.Model.TimeoutSecs > 3600 {
		add("model.timeout_secs", "must be between 1 and 3600, got %d", c.Model.TimeoutSecs)
	}

	// Generation
	g := c.Generation
	if g.MaxNewTokens < 1 || g.MaxNewTokens > 8192 {
		add("generation.max_new_tokens", "must be between 1 and 8192, got %d", g.MaxNewTokens)
	}
	if g.Temperature < 0 || g.Temperature > 2 {
		add("generation.temperature", "must be between 0.0 and 2.0, got %g", g.Temperature)
	}
	if g.TopP < 0 || g.TopP > 1 {
		add("generation.top_p", "must be between 0.0 and 1.0, got %g", g.TopP)
	}
	if g.TopK < 0 {
		add("generation.top_k", "must not be negative, got %d", g.TopK)
	}
	if g.RepetitionPenalty < 0 {
		add("generation.repetition_penalty", "must not be negative, got %g", g.RepetitionPenalty)
	}

	// Conversation
	if c.Conversation.Memory < 0 {
		add("conversation.memory", "must not be negative (0 = unlimited), got %d", c.Conversation.Memory)
	}

	// Search
	if c.Search.Enabled {
		if err := validateHTTPURL(c.Search.APIURL); err != nil {
			add("search.api_url", "%v", err)
		}
		if err := validateHTTPURL(c.Search.HTMLURL); err != nil {
			add("search.html_url", "%v", err)
		}
	}
	if c.Search.TimeoutSecs < 1 || c.Search.TimeoutSecs > 300 {
		add("search.timeout_secs", "must be between 1 and 300, got %d", c.Search.TimeoutSecs)
	}
	if c.Search.MaxResults < 1 || c.Search.MaxResults > 20 {
		add("search.max_results", "must be between 1 and 20, got %d", c.Search.MaxResults)
	}

	// Logging
	switch strings.ToUpper(c.Logging.Level) {
	case "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
	default:
		add("logging.level", "invalid level '%s', must be one of: DEBUG, INFO, WARN, ERROR", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		add("logging.format", "invalid format '%s', must be one of: text, json", c.Logging.Format)
	}
	if c.Logging.Enabled && strings.TrimSpace(c.Logging.File) == "" {
		add("logging.file", "must not be empty when logging is enabled")
	}

	// Archive
	if c.Archive.Enabled && strings.TrimSpace(c.Archive.Path) == "" {
		add("archive.path", "must not be empty when the archive is enabled")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must use http or https, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must include a host, got %q", raw)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported environment variables:
//   - MINIGPT_MODEL: overrides model.name
//   - MINIGPT_OLLAMA_URL: overrides model.ollama_url
//   - MINIGPT_OFFLINE: "1" or "true" enables offline mode
//   - MINIGPT_NO_SEARCH: "1" or "true" disables web search
//   - MINIGPT_LOG_FILE: overrides logging.file
//   - MINIGPT_LOG_LEVEL: overrides logging.level
func (c *Config) ApplyEnvOverrides() {
	if model := os.Getenv("MINIGPT_MODEL"); model != "" {
		c.Model.Name = model
	}
	if u := os.Getenv("MINIGPT_OLLAMA_URL"); u != "" {
		c.Model.OllamaURL = u
	}
	if offline := os.Getenv("MINIGPT_OFFLINE"); offline != "" {
		c.OfflineMode = isTruthy(offline)
	}
	if noSearch := os.Getenv("MINIGPT_NO_SEARCH"); noSearch != "" && isTruthy(noSearch) {
		c.Search.Enabled = false
	}
	if file := os.Getenv("MINIGPT_LOG_FILE"); file != "" {
		c.Logging.File = file
	}
	if level := os.Getenv("MINIGPT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

func isTruthy(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "1" || s == "true" || s == "yes"
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "generation.top_k").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "generation.top_k").
// String values are converted to the field's type; list fields take a
// comma-separated string.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("'%s' is a section, not a value", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}

	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strings.TrimSpace(strVal), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strings.TrimSpace(strVal), 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			field.SetBool(isTruthy(strVal))
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				field.Set(reflect.ValueOf(splitList(strVal)))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}

	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

func splitList(s string) []string {
	out := []string{}
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Keys returns all configuration keys in dot notation.
func Keys() []string {
	return []string{
		"model.name",
		"model.ollama_url",
		"model.timeout_secs",
		"model.auto_start",
		"generation.max_new_tokens",
		"generation.temperature",
		"generation.top_p",
		"generation.top_k",
		"generation.repetition_penalty",
		"generation.stop",
		"generation.seed",
		"conversation.memory",
		"search.enabled",
		"search.api_url",
		"search.html_url",
		"search.timeout_secs",
		"search.max_results",
		"search.triggers",
		"logging.enabled",
		"logging.file",
		"logging.level",
		"logging.format",
		"archive.enabled",
		"archive.path",
		"ui.markdown",
		"ui.input_history",
		"offline_mode",
	}
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Generation.Stop = append([]string(nil), c.Generation.Stop...)
	clone.Search.Triggers = append([]string(nil), c.Search.Triggers...)
	return &clone
}

// String returns the configuration as indented JSON for debugging.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
