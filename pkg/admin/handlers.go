package admin

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/tgnms/groupsocket/pkg/metrics"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, errCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:   errCode,
		Message: message,
	})
}

// handleHealth handles GET /health.
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: a.Uptime(),
	})
}

// handleStats handles GET /api/stats.
func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Stats:  a.backend.Stats(),
		Uptime: a.Uptime(),
	}
	if a.conns != nil {
		resp.ActiveConnections = a.conns.ActiveConnections()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListGroups handles GET /api/groups.
func (a *API) handleListGroups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.backend.Groups())
}

// handleGetGroup handles GET /api/groups/{group}.
func (a *API) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("group")
	for _, g := range a.backend.Groups() {
		if g.Name == name {
			writeJSON(w, http.StatusOK, GroupResponse{Name: name, Members: a.backend.Members(name)})
			return
		}
	}
	writeError(w, http.StatusNotFound, "not_found", "group not found: "+name)
}

// handlePublish handles POST /api/groups/{group}/messages. The request
// body is the payload, forwarded unchanged.
func (a *API) handlePublish(w http.ResponseWriter, r *http.Request) {
	group := r.PathValue("group")
	if group == "" {
		writeError(w, http.StatusBadRequest, "invalid_group", "group name is required")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "read_error", err.Error())
		return
	}
	if !json.Valid(body) {
		a.metrics.Dropped(metrics.DropInvalidJSON)
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be a JSON document")
		return
	}

	n, err := a.backend.MessageGroup(group, json.RawMessage(body))
	if err != nil {
		a.log.Error("publish failed", "group", group, "error", err)
		writeError(w, http.StatusInternalServerError, "publish_failed", err.Error())
		return
	}
	a.metrics.Ingested(metrics.SourceAdmin)

	writeJSON(w, http.StatusOK, PublishResponse{Group: group, Recipients: n})
}
