// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package changebus_test

import (
	"testing"
	"time"

	"tdserver/lib/changebus"
)

const testTimeout = 2 * time.Second

func TestNewBus(t *testing.T) {
	b := changebus.NewBus()
	if b == nil {
		t.Fatal("Unexpected nil Bus")
	}
}

func TestDirectMatch(t *testing.T) {
	b := changebus.NewBus()
	s := changebus.NewSubscription("test.txt", 0)
	b.Register(s)
	b.Post("test.txt")

	select {
	case r := <-s.C():
		if r.Err != nil {
			t.Fatal(r.Err)
		}
		if len(r.Matched) != 1 || r.Matched[0] != "test.txt" {
			t.Fatalf("unexpected matches: %v", r.Matched)
		}
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for match")
	}
}

func TestDepthZeroExcludesChildren(t *testing.T) {
	b := changebus.NewBus()
	s := changebus.NewSubscription("foo", 0)
	b.Register(s)
	b.Post("foo/bar")

	select {
	case r := <-s.C():
		t.Fatalf("depth 0 subscriber should not match foo/bar, got %v", r)
	case <-time.After(changebus.DebounceDelay * 2):
	}
}

func TestDepthOneIncludesChildren(t *testing.T) {
	b := changebus.NewBus()
	s := changebus.NewSubscription("foo", 1)
	b.Register(s)
	b.Post("foo/bar")

	select {
	case r := <-s.C():
		if len(r.Matched) != 1 || r.Matched[0] != "foo/bar" {
			t.Fatalf("unexpected matches: %v", r.Matched)
		}
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for match")
	}
}

func TestRootSubscriptionSeesEverything(t *testing.T) {
	b := changebus.NewBus()
	s := changebus.NewSubscription(".", 1)
	b.Register(s)
	b.Post("a/b/c.txt")

	select {
	case r := <-s.C():
		if len(r.Matched) != 1 || r.Matched[0] != "a/b/c.txt" {
			t.Fatalf("unexpected matches: %v", r.Matched)
		}
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for match")
	}
}

func TestUnrelatedPrefixDoesNotMatch(t *testing.T) {
	b := changebus.NewBus()
	s := changebus.NewSubscription("test", 1)
	b.Register(s)
	b.Post("test-not-equal/file")

	select {
	case r := <-s.C():
		t.Fatalf("unrelated sibling should not match, got %v", r)
	case <-time.After(changebus.DebounceDelay * 2):
	}
}

func TestDebounceCoalescesBurst(t *testing.T) {
	b := changebus.NewBus()
	s := changebus.NewSubscription(".", 1)
	b.Register(s)

	for _, p := range []string{"a", "b", "c"} {
		b.Post(p)
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case r := <-s.C():
		if len(r.Matched) != 3 {
			t.Fatalf("expected 3 coalesced changes, got %v", r.Matched)
		}
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for debounced flush")
	}
}

func TestCancel(t *testing.T) {
	b := changebus.NewBus()
	s := changebus.NewSubscription(".", 1)
	b.Register(s)
	b.Cancel(s)

	select {
	case r := <-s.C():
		if r.Err != changebus.ErrCancelled {
			t.Fatalf("expected ErrCancelled, got %v", r.Err)
		}
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for cancellation")
	}
}

func TestMatchPendingSeesUnflushedChange(t *testing.T) {
	b := changebus.NewBus()
	s := changebus.NewSubscription(".", 1)

	b.Post("a/b.txt")

	matched := b.MatchPending(s)
	if len(matched) != 1 || matched[0] != "a/b.txt" {
		t.Fatalf("expected pending change to be visible before the debounce timer fires, got %v", matched)
	}

	// MatchPending must not consume the change: a subscriber registered
	// before the flush still needs to see it.
	b.Register(s)
	select {
	case r := <-s.C():
		if len(r.Matched) != 1 || r.Matched[0] != "a/b.txt" {
			t.Fatalf("unexpected matches after flush: %v", r.Matched)
		}
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for debounced flush")
	}
}

func TestMatchPendingExcludesNonMatching(t *testing.T) {
	b := changebus.NewBus()
	s := changebus.NewSubscription("foo", 0)

	b.Post("bar")

	if matched := b.MatchPending(s); len(matched) != 0 {
		t.Fatalf("expected no match for unrelated pending change, got %v", matched)
	}
}

func TestResolvedOnlyOnce(t *testing.T) {
	b := changebus.NewBus()
	s := changebus.NewSubscription(".", 1)
	b.Register(s)
	b.Post("a")

	<-s.C()

	// A further post must not resolve the already-removed subscription again.
	b.Post("b")
	select {
	case r := <-s.C():
		t.Fatalf("subscription resolved twice: %v", r)
	case <-time.After(changebus.DebounceDelay * 2):
	}
}
