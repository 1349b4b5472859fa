// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package api

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"tdserver/lib/davxml"

	"github.com/julienschmidt/httprouter"
)

func requestPath(r *http.Request) string {
	return httprouter.ParamsFromContext(r.Context()).ByName("path")
}

func (s *Service) resolvePath(r *http.Request) (relative, absolute string, err error) {
	relative, err = s.core.Paths.ToRelative(requestPath(r))
	if err != nil {
		return "", "", err
	}
	absolute, err = s.core.Paths.ToAbsolute(relative)
	return relative, absolute, err
}

func writeInvalidPath(w http.ResponseWriter) {
	http.Error(w, "Invalid path", http.StatusBadRequest)
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	_, abs, err := s.resolvePath(r)
	if err != nil {
		writeInvalidPath(w)
		return
	}

	f, err := os.Open(abs)
	if errors.Is(err, os.ErrNotExist) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if info.IsDir() {
		http.Error(w, "Cannot GET a directory", http.StatusBadRequest)
		return
	}

	s.core.NoteGet()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	io.Copy(w, f)
}

func (s *Service) handleHead(w http.ResponseWriter, r *http.Request) {
	_, abs, err := s.resolvePath(r)
	if err != nil {
		writeInvalidPath(w)
		return
	}

	info, err := os.Stat(abs)
	if errors.Is(err, os.ErrNotExist) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
}

func (s *Service) handlePut(w http.ResponseWriter, r *http.Request) {
	_, abs, err := s.resolvePath(r)
	if err != nil {
		writeInvalidPath(w)
		return
	}

	f, err := os.Create(abs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	if _, err := io.Copy(f, r.Body); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if mtimeHeader := r.Header.Get("X-OC-Mtime"); mtimeHeader != "" {
		if secs, err := strconv.ParseFloat(mtimeHeader, 64); err == nil {
			mtime := time.Unix(0, int64(secs*float64(time.Second)))
			if err := os.Chtimes(abs, mtime, mtime); err == nil {
				w.Header().Set("X-OC-Mtime", "accepted")
			}
		}
	}
}

func (s *Service) handleDelete(w http.ResponseWriter, r *http.Request) {
	_, abs, err := s.resolvePath(r)
	if err != nil {
		writeInvalidPath(w)
		return
	}

	if err := os.Remove(abs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleOptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
	w.Header().Set("Access-Control-Allow-Credentials", "true")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Depth, Timeout, Cursor, X-OC-Mtime, Authorization")
	w.WriteHeader(http.StatusOK)
}

func (s *Service) handleMkcol(w http.ResponseWriter, r *http.Request) {
	relative, abs, err := s.resolvePath(r)
	if err != nil {
		writeInvalidPath(w)
		return
	}

	if err := os.Mkdir(abs, 0755); err != nil {
		if errors.Is(err, os.ErrExist) {
			writeMethodNotAllowedDAVError(w)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.writePropfindResponse(w, relative, false)
}

func writeMethodNotAllowedDAVError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMethodNotAllowed)
	io.WriteString(w, `<?xml version="1.0"?>`+"\n"+
		`<d:error xmlns:d="DAV:"><d:exception>MethodNotAllowed</d:exception></d:error>`+"\n")
}

func (s *Service) handlePropfind(w http.ResponseWriter, r *http.Request) {
	relative, abs, err := s.resolvePath(r)
	if err != nil {
		writeInvalidPath(w)
		return
	}

	if _, err := os.Stat(abs); errors.Is(err, os.ErrNotExist) {
		http.NotFound(w, r)
		return
	}

	s.writePropfindResponse(w, relative, isRecursiveDepth(r))
}

func (s *Service) writePropfindResponse(w http.ResponseWriter, relative string, recursive bool) {
	abs, err := s.core.Paths.ToAbsolute(relative)
	if err != nil {
		writeInvalidPath(w)
		return
	}

	entries := []davxml.Entry{{Href: davxml.Href(relative), Absolute: abs}}
	if recursive {
		entries = append(entries, s.childEntries(relative, abs)...)
	}

	var cursor *int64
	if s.core.Watcher.HasSession(relative, recursive) {
		n := int64(0)
		cursor = &n
	}

	body, err := davxml.Build(entries, cursor)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	w.Write(body)
}

func (s *Service) childEntries(relative, abs string) []davxml.Entry {
	children, err := os.ReadDir(abs)
	if err != nil {
		return nil
	}

	entries := make([]davxml.Entry, 0, len(children))
	for _, child := range children {
		childRel := child.Name()
		if relative != "." {
			childRel = relative + "/" + child.Name()
		}
		entries = append(entries, davxml.Entry{
			Href:     davxml.Href(childRel),
			Absolute: filepath.Join(abs, child.Name()),
		})
	}
	return entries
}

// handleEditor answers the EDITOR verb's response contract (a redirect to
// an editor:// URI) without actually launching anything: the "open file in
// external editor" integration itself is an external collaborator, out of
// scope for this core.
func (s *Service) handleEditor(w http.ResponseWriter, r *http.Request) {
	if !s.core.OpenInEditor {
		http.Error(w, "Editor integration not enabled", http.StatusNotImplemented)
		return
	}

	relative, abs, err := s.resolvePath(r)
	if err != nil {
		writeInvalidPath(w)
		return
	}
	if _, err := os.Stat(abs); errors.Is(err, os.ErrNotExist) {
		http.NotFound(w, r)
		return
	}

	http.Redirect(w, r, "editor://open?file="+url.QueryEscape(abs)+"&relative="+url.QueryEscape(relative), http.StatusFound)
}

// isRecursiveDepth implements the PROPFIND reading of the depth header:
// "0" means self only, anything else -- including a missing header --
// means recursive.
func isRecursiveDepth(r *http.Request) bool {
	return r.Header.Get("Depth") != "0"
}
