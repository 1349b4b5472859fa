// Copyright (C) 2016 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package pathmap_test

import (
	"path/filepath"
	"testing"

	"tdserver/lib/pathmap"
)

func TestToRelative(t *testing.T) {
	m := pathmap.New("/srv/scripts")

	cases := []struct {
		in   string
		want string
	}{
		{"", "."},
		{"/", "."},
		{"/foo", "foo"},
		{"/foo/", "foo"},
		{"/foo/bar", "foo/bar"},
		{"/foo/./bar", "foo/bar"},
		{"/foo/../bar", "bar"},
	}
	for _, c := range cases {
		got, err := m.ToRelative(c.in)
		if err != nil {
			t.Errorf("ToRelative(%q) unexpected error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ToRelative(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestToRelativeRejectsTraversal(t *testing.T) {
	m := pathmap.New("/srv/scripts")

	for _, in := range []string{"/..", "/../../etc/passwd", "/foo/../../bar"} {
		if _, err := m.ToRelative(in); err != pathmap.ErrInvalidPath {
			t.Errorf("ToRelative(%q) = %v, want ErrInvalidPath", in, err)
		}
	}
}

func TestToAbsolute(t *testing.T) {
	m := pathmap.New("/srv/scripts")

	got, err := m.ToAbsolute("foo/bar")
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join("/srv/scripts", "foo", "bar")
	if got != want {
		t.Errorf("ToAbsolute(%q) = %q, want %q", "foo/bar", got, want)
	}

	if got, err := m.ToAbsolute("."); err != nil || got != "/srv/scripts" {
		t.Errorf("ToAbsolute(\".\") = (%q, %v), want (%q, nil)", got, err, "/srv/scripts")
	}
}

func TestToAbsoluteRejectsEscape(t *testing.T) {
	m := pathmap.New("/srv/scripts")

	if _, err := m.ToAbsolute("../outside"); err != pathmap.ErrInvalidPath {
		t.Errorf("ToAbsolute(\"../outside\") = %v, want ErrInvalidPath", err)
	}
}

func TestRoundTrip(t *testing.T) {
	m := pathmap.New("/srv/scripts")

	for _, url := range []string{"/a/b/c.txt", "/", "/Tampermonkey/sync/a.user.js"} {
		rel, err := m.ToRelative(url)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := m.ToAbsolute(rel); err != nil {
			t.Fatalf("ToAbsolute(%q) failed: %v", rel, err)
		}
	}
}
