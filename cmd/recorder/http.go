// Copyright 2025 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/screen-recorder/pkg/service"
)

type httpHandler struct {
	svc *service.Service
}

func newHealthRouter(svc *service.Service) http.Handler {
	h := &httpHandler{svc: svc}

	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)
	r.Get("/", h.status)
	r.Get("/status", h.status)
	r.Get("/elapsed", h.elapsed)
	r.Get("/sources", h.sources)
	return r
}

func (h *httpHandler) status(w http.ResponseWriter, _ *http.Request) {
	info, err := h.svc.Status()
	if err != nil {
		logger.Errorw("failed to read status", err)
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(info)
}

func (h *httpHandler) elapsed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]interface{}{
		"state":          h.svc.GetState(),
		"elapsedSeconds": h.svc.GetElapsedSeconds(),
	})
}

func (h *httpHandler) sources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.svc.ListSources(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, sources)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnw("failed to write response", err)
	}
}
