// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package api

import (
	"net/http"
	"os"
	"strings"
	"time"

	"tdserver/lib/changebus"
	"tdserver/lib/davxml"
)

// subscribeDepth implements the SUBSCRIBE reading of the depth header,
// which (unlike PROPFIND) defaults to 0 -- self only -- when absent.
func subscribeDepth(r *http.Request) int {
	if r.Header.Get("Depth") == "" || r.Header.Get("Depth") == "0" {
		return 0
	}
	return 1
}

func (s *Service) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	relative, err := s.core.Paths.ToRelative(requestPath(r))
	if err != nil {
		writeInvalidPath(w)
		return
	}
	depth := subscribeDepth(r)

	outcome := s.core.RecordSubscribe(time.Now())
	if outcome.TreatAsPropfind {
		s.writePropfindResponse(w, relative, depth >= 1)
		return
	}

	sub := changebus.NewSubscription(relative, depth)
	s.core.Bus.Register(sub)
	if err := s.core.Watcher.EnsureWatch(relative, depth >= 1); err != nil {
		l.Warnln("Watch:", err)
	}

	start := time.Now()
	if outcome.Timeout <= 0 {
		if matched := s.core.Bus.MatchPending(sub); len(matched) > 0 && !allMeta(matched) {
			s.core.Bus.Cancel(sub)
			subscribeWaitSeconds.Observe(time.Since(start).Seconds())
			s.core.RestoreVoidBudget()
			s.respondWithMatches(w, matched)
			return
		}
	}
	s.waitAndRespond(w, r, sub, start.Add(outcome.Timeout))
}

func (s *Service) waitAndRespond(w http.ResponseWriter, r *http.Request, sub *changebus.Subscription, deadline time.Time) {
	start := time.Now()
	for {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		timer := time.NewTimer(remaining)

		select {
		case <-r.Context().Done():
			timer.Stop()
			s.core.Bus.Cancel(sub)
			return

		case res := <-sub.C():
			timer.Stop()
			if res.Err != nil {
				return
			}
			if allMeta(res.Matched) {
				if remaining <= 0 {
					s.respondEmpty(w)
					return
				}
				sub.Reset()
				s.core.Bus.Register(sub)
				continue
			}
			subscribeWaitSeconds.Observe(time.Since(start).Seconds())
			s.core.RestoreVoidBudget()
			s.respondWithMatches(w, res.Matched)
			return

		case <-timer.C:
			s.core.Bus.Cancel(sub)
			s.respondEmpty(w)
			return
		}
	}
}

func allMeta(matched []string) bool {
	if len(matched) == 0 {
		return false
	}
	for _, m := range matched {
		if !strings.HasSuffix(m, ".meta.json") {
			return false
		}
	}
	return true
}

func (s *Service) respondEmpty(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) respondWithMatches(w http.ResponseWriter, matched []string) {
	if s.core.MetaTouch {
		matched = s.applyMetaTouch(matched)
	}

	entries := make([]davxml.Entry, 0, len(matched))
	for _, rel := range matched {
		abs, err := s.core.Paths.ToAbsolute(rel)
		if err != nil {
			continue
		}
		entries = append(entries, davxml.Entry{Href: davxml.Href(rel), Absolute: abs})
	}

	body, err := davxml.Build(entries, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	w.Write(body)
}

// applyMetaTouch bumps the mtime of every *.meta.json sibling of a
// matched *.user.js path and adds it to the result, per the meta-touch
// output contract.
func (s *Service) applyMetaTouch(matched []string) []string {
	out := make([]string, 0, len(matched))
	seen := make(map[string]struct{}, len(matched))
	for _, rel := range matched {
		if _, dup := seen[rel]; !dup {
			seen[rel] = struct{}{}
			out = append(out, rel)
		}

		metaRel, ok := metaSibling(rel)
		if !ok {
			continue
		}
		metaAbs, err := s.core.Paths.ToAbsolute(metaRel)
		if err != nil {
			continue
		}
		if _, err := os.Stat(metaAbs); err != nil {
			continue
		}
		now := time.Now()
		os.Chtimes(metaAbs, now, now)

		if _, dup := seen[metaRel]; !dup {
			seen[metaRel] = struct{}{}
			out = append(out, metaRel)
		}
	}
	return out
}

func metaSibling(relative string) (string, bool) {
	const suffix = ".user.js"
	if !strings.HasSuffix(relative, suffix) {
		return "", false
	}
	return strings.TrimSuffix(relative, suffix) + ".meta.json", true
}
