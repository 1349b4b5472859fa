// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package api

import (
	"crypto/subtle"
	"net/http"

	"tdserver/lib/core"
)

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="Enter credentials"`)
	http.Error(w, "Not Authorized", http.StatusUnauthorized)
}

// basicAuthMiddleware rejects requests with missing or mismatched Basic
// auth credentials. It is only installed in the handler chain when the
// Core has credentials configured.
func basicAuthMiddleware(c *core.Core, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if ok && constantTimeEqual(username, c.Username) && constantTimeEqual(password, c.Password) {
			next.ServeHTTP(w, r)
			return
		}
		l.Infof("Rejected request from %s: bad or missing credentials", r.RemoteAddr)
		unauthorized(w)
	})
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
