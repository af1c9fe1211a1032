// HTTP handler for the Prometheus metrics endpoint
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"crypto/subtle"
	"net/http"
	"strconv"
)

// Gatherer produces Prometheus text output
type Gatherer interface {
	Gather() string
}

// Handler serves a Gatherer at /metrics, optionally behind basic auth
type Handler struct {
	source   Gatherer
	username string
	password string
}

// NewHandler creates a handler for the given source
func NewHandler(source Gatherer) *Handler {
	return &Handler{source: source}
}

// WithBasicAuth requires the given credentials on every request
func (h *Handler) WithBasicAuth(username, password string) *Handler {
	h.username = username
	h.password = password
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkAuth(w, r) {
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	output := h.source.Gather()
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", strconv.Itoa(len(output)))
		return
	}
	_, _ = w.Write([]byte(output))
}

func (h *Handler) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	if h.username == "" && h.password == "" {
		return true
	}
	username, password, ok := r.BasicAuth()
	if ok &&
		subtle.ConstantTimeCompare([]byte(username), []byte(h.username)) == 1 &&
		subtle.ConstantTimeCompare([]byte(password), []byte(h.password)) == 1 {
		return true
	}
	w.Header().Set("WWW-Authenticate", `Basic realm="buffer stepper metrics"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
	return false
}
