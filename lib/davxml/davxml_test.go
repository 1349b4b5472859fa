// Copyright (C) 2016 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package davxml_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tdserver/lib/davxml"
)

func TestBuildEmptyRoot(t *testing.T) {
	dir := t.TempDir()

	out, err := davxml.Build([]davxml.Entry{
		{Href: davxml.Href("."), Absolute: dir},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	s := string(out)
	if !strings.Contains(s, "<d:href>/</d:href>") {
		t.Fatalf("missing self entry href: %s", s)
	}
	if strings.Count(s, "<d:response>") != 1 {
		t.Fatalf("expected exactly one response element: %s", s)
	}
}

func TestBuildFileEntry(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "test.txt")
	if err := os.WriteFile(p, []byte("Hello, world!"), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := davxml.Build([]davxml.Entry{
		{Href: davxml.Href("test.txt"), Absolute: p},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	s := string(out)
	if !strings.Contains(s, "<d:href>/test.txt</d:href>") {
		t.Fatalf("missing file href: %s", s)
	}
	if !strings.Contains(s, "<d:getcontentlength>13</d:getcontentlength>") {
		t.Fatalf("missing content length: %s", s)
	}
}

func TestBuildDirectoryEntry(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}

	out, err := davxml.Build([]davxml.Entry{
		{Href: davxml.Href("sub"), Absolute: sub},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	s := string(out)
	if !strings.Contains(s, "<d:collection/>") {
		t.Fatalf("missing collection marker: %s", s)
	}
	if !strings.Contains(s, "<d:getcontentlength />") {
		t.Fatalf("missing self-closing content length for directory: %s", s)
	}
}

func TestBuildMissingEntryFallsBackToNegativeSize(t *testing.T) {
	dir := t.TempDir()

	out, err := davxml.Build([]davxml.Entry{
		{Href: davxml.Href("gone.txt"), Absolute: filepath.Join(dir, "gone.txt")},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	s := string(out)
	if !strings.Contains(s, "<d:getcontentlength>-1</d:getcontentlength>") {
		t.Fatalf("expected -1 size for unstatable entry: %s", s)
	}
}

func TestBuildWithCursor(t *testing.T) {
	dir := t.TempDir()
	cursor := int64(42)

	out, err := davxml.Build([]davxml.Entry{
		{Href: davxml.Href("."), Absolute: dir},
	}, &cursor)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "<td:cursor>42</td:cursor>") {
		t.Fatalf("missing cursor element: %s", out)
	}
}

func TestBuildWithoutCursorOmitsElement(t *testing.T) {
	dir := t.TempDir()

	out, err := davxml.Build([]davxml.Entry{
		{Href: davxml.Href("."), Absolute: dir},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(out), "cursor") {
		t.Fatalf("cursor element should be omitted: %s", out)
	}
}
