// Copyright (C) 2016 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package fswatch registers recursive or single-directory filesystem
// watches and forwards content-changing events, as root-relative POSIX
// paths, to a changebus.Bus. Watches are idempotent per (path, recursive)
// pair: calling EnsureWatch twice with the same arguments is a no-op.
package fswatch

import (
	"context"
	"path/filepath"

	"tdserver/lib/changebus"
	"tdserver/lib/logger"
	"tdserver/lib/sync"

	"github.com/syncthing/notify"
)

var l = logger.DefaultLogger.NewFacility("fswatch", "Filesystem watching")

// Notify does not block on sending to the channel, so it must be buffered.
var backendBuffer = 500

// contentEventMask is the set of notify.Event bits that imply a file's
// content, or the existence of a directory entry, actually changed.
// Anything outside this mask -- access-only notifications, catch-all bits
// that notify.All pulls in on platforms with no finer-grained mask, and
// kinds we don't recognize -- carries no information our subscribers care
// about and is dropped in eventIsRelevant.
const contentEventMask = notify.Create | notify.Write | notify.Remove | notify.Rename

func eventIsRelevant(e notify.Event) bool {
	return e&contentEventMask != 0
}

type key struct {
	path      string
	recursive bool
}

type session struct {
	cancel context.CancelFunc
}

// Watcher owns a registry of live filesystem watches rooted at a single
// directory and posts every relevant change it observes to a Bus.
type Watcher struct {
	root string
	bus  *changebus.Bus

	mut      sync.RWMutex
	sessions map[key]*session
}

func New(root string, bus *changebus.Bus) *Watcher {
	return &Watcher{
		root:     root,
		bus:      bus,
		mut:      sync.NewRWMutex(),
		sessions: make(map[key]*session),
	}
}

// EnsureWatch registers a watch on relPath (relative to the watcher root)
// if one isn't already active for the given (relPath, recursive) pair. It
// returns nil if a matching watch already exists.
func (w *Watcher) EnsureWatch(relPath string, recursive bool) error {
	k := key{path: relPath, recursive: recursive}

	w.mut.RLock()
	_, exists := w.sessions[k]
	w.mut.RUnlock()
	if exists {
		return nil
	}

	w.mut.Lock()
	defer w.mut.Unlock()
	if _, exists := w.sessions[k]; exists {
		return nil
	}

	absPath := filepath.Join(w.root, filepath.FromSlash(relPath))
	watchPath := absPath
	if recursive {
		watchPath = filepath.Join(absPath, "...")
	}

	backendChan := make(chan notify.EventInfo, backendBuffer)
	if err := notify.Watch(watchPath, backendChan, notify.All); err != nil {
		notify.Stop(backendChan)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.sessions[k] = &session{cancel: cancel}
	go w.watchLoop(ctx, backendChan)

	l.Debugln("Watching", watchPath)
	return nil
}

func (w *Watcher) watchLoop(ctx context.Context, backendChan chan notify.EventInfo) {
	defer notify.Stop(backendChan)
	for {
		if len(backendChan) == backendBuffer {
		drain:
			for {
				select {
				case <-backendChan:
				default:
					break drain
				}
			}
			// We lost events; the caller can't know what changed, so
			// report the root itself and let it re-scan.
			w.bus.Post(".")
			l.Debugln("Watch: event overflow, posting \".\"")
			continue
		}

		select {
		case ev := <-backendChan:
			if !eventIsRelevant(ev.Event()) {
				continue
			}
			rel, err := filepath.Rel(w.root, ev.Path())
			if err != nil {
				l.Debugln("Watch: could not relativize", ev.Path(), err)
				continue
			}
			rel = filepath.ToSlash(rel)
			l.Debugln("Watch: posting", rel, ev.Event())
			w.bus.Post(changebus.Change(rel))
		case <-ctx.Done():
			return
		}
	}
}

// HasSession reports whether a watch is currently active for the given
// (relPath, recursive) pair. Used only to decide whether a PROPFIND
// response should echo a cursor element.
func (w *Watcher) HasSession(relPath string, recursive bool) bool {
	w.mut.RLock()
	defer w.mut.RUnlock()
	_, ok := w.sessions[key{path: relPath, recursive: recursive}]
	return ok
}

// Stop cancels every active watch. The Watcher must not be used afterwards.
func (w *Watcher) Stop() {
	w.mut.Lock()
	defer w.mut.Unlock()
	for k, s := range w.sessions {
		s.cancel()
		delete(w.sessions, k)
	}
}
