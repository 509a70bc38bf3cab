package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	transit "github.com/transitwatch/busbridge/internal"
)

// maxAdminBody is the maximum allowed admin request body size (64 KB).
const maxAdminBody = 64 << 10

type invalidateRequest struct {
	Prefix string `json:"prefix"`
}

type invalidateResponse struct {
	Status string `json:"status"`
	Prefix string `json:"prefix,omitempty"`
}

// handleInvalidate bulk-invalidates cached entries by key prefix. Used by
// collaborators that need to force-refresh after a known upstream state
// change. An empty prefix purges the whole cache.
func (s *server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxAdminBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, transit.Failure(&transit.Error{
			Code:       transit.CodeMissingParam,
			Message:    "invalid request body",
			HTTPStatus: http.StatusBadRequest,
		}))
		return
	}

	s.deps.Client.Invalidate(r.Context(), req.Prefix)
	slog.LogAttrs(r.Context(), slog.LevelInfo, "cache invalidated",
		slog.String("prefix", req.Prefix),
		slog.String("request_id", transit.RequestIDFromContext(r.Context())),
	)
	writeJSON(w, http.StatusOK, invalidateResponse{Status: "ok", Prefix: req.Prefix})
}
