// Copyright (C) 2016 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package config loads the server's configuration from a config.json file
// and command-line flags, flags taking precedence. The TD_USERNAME and
// TD_PASSWORD environment variables fill in credentials the file leaves
// empty; they do not override values from the file.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
)

// Config is the server's full runtime configuration, per the external
// interfaces the core observes.
type Config struct {
	Path          string `json:"path"`
	Host          string `json:"host,omitempty"`
	Port          int    `json:"port,omitempty"`
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"`
	MetaTouch     bool   `json:"meta-touch,omitempty"`
	Debug         bool   `json:"debug,omitempty"`
	OpenInEditor  bool   `json:"open-in-editor,omitempty"`
	NoAuthWarning bool   `json:"no-auth-warning,omitempty"`
}

func defaults() Config {
	return Config{
		Host: "localhost",
		Port: 7000,
	}
}

// cliFlags mirrors Config but with pointer/optional fields, so that an
// unset flag can be distinguished from an explicit zero value and does
// not clobber a value already supplied by the config file or
// environment. CLI flags win over everything else.
type cliFlags struct {
	Path          string  `kong:"arg,optional,help='Root directory to serve.'"`
	Host          *string `kong:"help='Address to listen on.'"`
	Port          *int    `kong:"help='Port to listen on.'"`
	Username      *string `kong:"help='Basic auth username.'"`
	Password      *string `kong:"help='Basic auth password.'"`
	MetaTouch     bool    `kong:"name='meta-touch',help='Bump sibling .meta.json mtimes on matched .user.js changes.'"`
	Debug         bool    `kong:"help='Enable debug logging.'"`
	OpenInEditor  bool    `kong:"name='open-in-editor',help='Enable the EDITOR verb (answers with an editor:// redirect; launches nothing).'"`
	NoAuthWarning bool    `kong:"name='no-auth-warning',help='Suppress the warning logged when no credentials are configured.'"`
	ConfigFile    string  `kong:"name='config',default='config.json',help='Path to a JSON config file.'"`
}

// Load builds the effective Config: defaults, overlaid by config.json (if
// present), then TD_USERNAME/TD_PASSWORD for any credential still empty,
// then overlaid by CLI flags.
func Load(args []string) (*Config, error) {
	var flags cliFlags
	parser, err := kong.New(&flags, kong.Name("tdserver"), kong.Description(
		"Serves a directory tree over WebDAV-flavored HTTP with long-poll change notifications."))
	if err != nil {
		return nil, err
	}
	if _, err := parser.Parse(args); err != nil {
		return nil, err
	}

	cfg := defaults()
	if err := overlayFile(&cfg, flags.ConfigFile); err != nil {
		return nil, err
	}
	overlayEnv(&cfg)
	overlayFlags(&cfg, flags)

	if cfg.Path == "" {
		return nil, errNoPath
	}
	cfg.Path = filepath.Clean(cfg.Path)
	return &cfg, nil
}

var errNoPath = &missingPathError{}

type missingPathError struct{}

func (*missingPathError) Error() string {
	return "config: no root path given (config.json \"path\", or a positional argument)"
}

func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, cfg)
}

func overlayEnv(cfg *Config) {
	if cfg.Username == "" {
		cfg.Username = os.Getenv("TD_USERNAME")
	}
	if cfg.Password == "" {
		cfg.Password = os.Getenv("TD_PASSWORD")
	}
}

func overlayFlags(cfg *Config, flags cliFlags) {
	if flags.Path != "" {
		cfg.Path = flags.Path
	}
	if flags.Host != nil {
		cfg.Host = *flags.Host
	}
	if flags.Port != nil {
		cfg.Port = *flags.Port
	}
	if flags.Username != nil {
		cfg.Username = *flags.Username
	}
	if flags.Password != nil {
		cfg.Password = *flags.Password
	}
	if flags.MetaTouch {
		cfg.MetaTouch = true
	}
	if flags.Debug {
		cfg.Debug = true
	}
	if flags.OpenInEditor {
		cfg.OpenInEditor = true
	}
	if flags.NoAuthWarning {
		cfg.NoAuthWarning = true
	}
}
