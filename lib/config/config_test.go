// Copyright (C) 2016 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	cfg, err := Load([]string{"/srv/scripts"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Host != "localhost" || cfg.Port != 7000 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Path != filepath.Clean("/srv/scripts") {
		t.Fatalf("unexpected path: %q", cfg.Path)
	}
}

func TestLoadFileThenFlagPrecedence(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	data, _ := json.Marshal(map[string]any{
		"path": "/from/file",
		"host": "0.0.0.0",
		"port": 9000,
	})
	if err := os.WriteFile(filepath.Join(dir, "config.json"), data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load([]string{"--port=9100"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Path != filepath.Clean("/from/file") {
		t.Fatalf("expected file-supplied path, got %q", cfg.Path)
	}
	if cfg.Host != "0.0.0.0" {
		t.Fatalf("expected file-supplied host, got %q", cfg.Host)
	}
	if cfg.Port != 9100 {
		t.Fatalf("expected flag to win over file, got %d", cfg.Port)
	}
}

func TestLoadEnvCredentials(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("TD_USERNAME", "alice")
	t.Setenv("TD_PASSWORD", "s3cret")

	cfg, err := Load([]string{"/srv/scripts"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Username != "alice" || cfg.Password != "s3cret" {
		t.Fatalf("expected env credentials, got %+v", cfg)
	}
}

func TestLoadMissingPath(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	if _, err := Load(nil); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(cwd) })
}
