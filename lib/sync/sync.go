// Copyright (C) 2015 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package sync provides wrappers for sync.(RW)Mutex and sync.WaitGroup that
// optionally log long lock holds and waits, for use in lock contention debugging. Use
// this package, rather than stdlib sync, for any mutex that protects
// something potentially hot (the change bus, the watcher registry, the
// void-budget counters).
package sync

import (
	"fmt"
	"path/filepath"
	"runtime"
	stdsync "sync"
	"time"
)

type Mutex interface {
	Lock()
	Unlock()
}

type RWMutex interface {
	Mutex
	RLock()
	RUnlock()
	RLocker() stdsync.Locker
}

type WaitGroup interface {
	Add(int)
	Done()
	Wait()
}

func NewMutex() Mutex {
	if debug {
		return &loggedMutex{}
	}
	return &stdsync.Mutex{}
}

func NewRWMutex() RWMutex {
	if debug {
		return &loggedRWMutex{}
	}
	return &stdsync.RWMutex{}
}

func NewWaitGroup() WaitGroup {
	if debug {
		return &loggedWaitGroup{}
	}
	return &stdsync.WaitGroup{}
}

type loggedMutex struct {
	stdsync.Mutex
	start time.Time
}

func (m *loggedMutex) Lock() {
	m.Mutex.Lock()
	m.start = time.Now()
}

func (m *loggedMutex) Unlock() {
	duration := time.Since(m.start)
	if duration >= threshold {
		l.Debugf("Mutex held for %v", duration)
	}
	m.Mutex.Unlock()
}

// loggedRWMutex tracks the call sites of currently held read locks so that,
// when a writer has to wait an unusually long time to acquire Lock, it can
// report who it was waiting on.
type loggedRWMutex struct {
	stdsync.RWMutex
	start time.Time

	readersMut stdsync.Mutex
	readers    []string
}

func (m *loggedRWMutex) Lock() {
	m.readersMut.Lock()
	waitingOn := concatCallers(m.readers)
	m.readersMut.Unlock()

	start := time.Now()
	m.RWMutex.Lock()
	m.start = time.Now()

	duration := m.start.Sub(start)
	if duration >= threshold && waitingOn != "" {
		l.Debugf("RWMutex took %v to lock. RUnlockers while locking:\n%s", duration, waitingOn)
	}
}

func (m *loggedRWMutex) Unlock() {
	duration := time.Since(m.start)
	if duration >= threshold {
		l.Debugf("RWMutex held for %v", duration)
	}
	m.RWMutex.Unlock()
}

func (m *loggedRWMutex) RLock() {
	m.RWMutex.RLock()
	_, file, line, _ := runtime.Caller(1)
	file = filepath.Join(filepath.Base(filepath.Dir(file)), filepath.Base(file))
	m.readersMut.Lock()
	m.readers = append(m.readers, fmt.Sprintf("at %s:%d\n", file, line))
	m.readersMut.Unlock()
}

func (m *loggedRWMutex) RUnlock() {
	m.readersMut.Lock()
	if n := len(m.readers); n > 0 {
		m.readers = m.readers[:n-1]
	}
	m.readersMut.Unlock()
	m.RWMutex.RUnlock()
}

func (m *loggedRWMutex) RLocker() stdsync.Locker {
	return stdsync.Locker(rlocker{m})
}

type rlocker struct {
	m *loggedRWMutex
}

func (r rlocker) Lock()   { r.m.RLock() }
func (r rlocker) Unlock() { r.m.RUnlock() }

func concatCallers(callers []string) string {
	var s string
	for _, c := range callers {
		s += c
	}
	return s
}

type loggedWaitGroup struct {
	stdsync.WaitGroup
}

func (wg *loggedWaitGroup) Wait() {
	start := time.Now()
	wg.WaitGroup.Wait()
	duration := time.Since(start)
	if duration >= threshold {
		l.Debugf("WaitGroup took %v", duration)
	}
}
