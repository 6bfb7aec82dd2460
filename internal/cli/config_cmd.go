// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Config command implementation.
//
// Command: config [subcommand]
// Short:   Show and edit configuration
//
// Subcommands:
//   show (default)      Show the effective configuration as TOML
//   path                Show the config file path
//   init [--force]      Write a config file with default values
//   get KEY             Print one value
//   set KEY VALUE       Change one value and save
//   keys                List every settable key
//
// Examples:
//   minigpt config
//   minigpt config set model.name llama3.2:1b
//   minigpt config set search.triggers "news,weather,price"
//   minigpt config get conversation.memory
//   minigpt --config ./dev.toml config init
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/minigpt/internal/config"
)

// HandleConfig handles the "config" command.
func HandleConfig(args Args) error {
	p := NewArgParser(args.Raw, "force", "f")

	switch strings.ToLower(p.Subcommand()) {
	case "", "show":
		return handleConfigShow(args)
	case "path":
		return handleConfigPath(args)
	case "init":
		return handleConfigInit(args, p.BoolFlag("force") || p.BoolFlag("f"))
	case "get":
		if p.Positional(1) == "" {
			return ErrMissingArgument("key", "minigpt config get model.name")
		}
		return handleConfigGet(args, p.Positional(1))
	case "set":
		if p.PositionalCount() < 3 {
			return ErrMissingArgument("key/value", "minigpt config set model.name llama3.2:1b")
		}
		return handleConfigSet(args, p.Positional(1), strings.Join(p.PositionalFrom(2), " "))
	case "keys":
		return handleConfigKeys(args)
	default:
		return NewValidationErrorWithExample("subcommand", p.Subcommand(),
			"unknown config subcommand", "minigpt config [show|path|init|get|set|keys]")
	}
}

// resolveConfigPath returns the file a load would read: the explicit path,
// else whichever default file exists, else the default TOML path.
func resolveConfigPath(explicit string) (string, bool) {
	if explicit != "" {
		_, err := os.Stat(explicit)
		return explicit, err == nil
	}

	for _, candidate := range []func() (string, error){config.ConfigPathTOML, config.ConfigPathJSON} {
		p, err := candidate()
		if err != nil {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}

	p, err := config.ConfigPathTOML()
	if err != nil {
		return "", false
	}
	return p, false
}

// handleConfigShow prints the effective configuration, command-line
// overrides included.
func handleConfigShow(args Args) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	path, exists := resolveConfigPath(args.ConfigPath)

	if args.JSON {
		return NewJSONResponse("config show", ConfigData{Path: path, Exists: exists, Config: cfg}).Print()
	}

	if !args.Quiet {
		note := ""
		if !exists {
			note = " (not created, showing defaults)"
		}
		fmt.Fprintln(stdout, DimStyle.Render("# "+path+note))
	}
	return toml.NewEncoder(stdout).Encode(cfg)
}

func handleConfigPath(args Args) error {
	path, exists := resolveConfigPath(args.ConfigPath)
	if args.JSON {
		return NewJSONResponse("config path", map[string]interface{}{
			"path":   path,
			"exists": exists,
		}).Print()
	}

	fmt.Fprintln(stdout, path)
	if !exists && !args.Quiet {
		fmt.Fprintf(stderr, "%s (file does not exist - run 'minigpt config init' to create it)\n",
			DimStyle.Render("Note"))
	}
	return nil
}

// handleConfigInit writes the defaults. An existing file is kept unless forced.
func handleConfigInit(args Args, force bool) error {
	path, exists := resolveConfigPath(args.ConfigPath)
	if exists && !force {
		return NewCommandError("config", "init", "config file already exists: "+path+" (use --force to overwrite)", nil)
	}

	if err := config.Save(config.Default(), path); err != nil {
		return &ConfigError{Path: path, Err: err}
	}

	if args.JSON {
		return NewJSONResponse("config init", map[string]interface{}{"path": path}).Print()
	}
	fmt.Fprintf(stdout, "%s Wrote default configuration to %s\n", SuccessStyle.Render("[OK]"), path)
	return nil
}

func handleConfigGet(args Args, key string) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}

	value, err := cfg.Get(key)
	if err != nil {
		return NewValidationErrorWithExample("key", key, err.Error(), "minigpt config keys")
	}

	if args.JSON {
		return NewJSONResponse("config get", map[string]interface{}{"key": key, "value": value}).Print()
	}
	if list, ok := value.([]string); ok {
		fmt.Fprintln(stdout, strings.Join(list, ","))
		return nil
	}
	fmt.Fprintln(stdout, value)
	return nil
}

// handleConfigSet edits the file itself, not the effective config, so
// environment and command-line overrides are never written back.
func handleConfigSet(args Args, key, value string) error {
	path, exists := resolveConfigPath(args.ConfigPath)

	cfg := config.Default()
	if exists {
		var err error
		if strings.HasSuffix(strings.ToLower(path), ".json") {
			err = config.LoadJSON(cfg, path)
		} else {
			err = config.LoadTOML(cfg, path)
		}
		if err != nil {
			return &ConfigError{Path: path, Err: err}
		}
	}

	if err := cfg.Set(key, value); err != nil {
		return NewValidationErrorWithExample("key", key, err.Error(), "minigpt config keys")
	}
	if err := cfg.Validate(); err != nil {
		var verrs config.ValidateErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return NewValidationError(verrs[0].Field, value, verrs[0].Message)
		}
		return &ConfigError{Path: path, Err: err}
	}

	if err := config.Save(cfg, path); err != nil {
		return &ConfigError{Path: path, Err: err}
	}

	if args.JSON {
		stored, _ := cfg.Get(key)
		return NewJSONResponse("config set", map[string]interface{}{
			"path":  path,
			"key":   key,
			"value": stored,
		}).Print()
	}
	fmt.Fprintf(stdout, "%s %s = %s\n", SuccessStyle.Render("[OK]"), key, value)
	return nil
}

func handleConfigKeys(args Args) error {
	keys := config.Keys()
	if args.JSON {
		return NewJSONResponse("config keys", keys).Print()
	}
	for _, k := range keys {
		fmt.Fprintln(stdout, k)
	}
	return nil
}
