package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"llamactx/internal/inference"
	"llamactx/pkg/types"
)

// SessionService exposes per-session decode state and snapshots.
type SessionService interface {
	OpenSession(ctx context.Context, modelID string, params inference.ContextParams) (types.SessionInfo, error)
	CloseSession(id string) error
	SessionInfo(id string) (types.SessionInfo, error)
	Sessions() []types.SessionInfo
	Cancel(id string) error
	Reset(id string) error
	ClearKV(id string) error
	Stats(id string) (types.StatsResponse, error)
	SaveState(id string) ([]byte, error)
	LoadState(id string, data []byte) error
	PersistSession(id, key string) (types.SnapshotInfo, error)
	RestoreSession(id, key string) (types.SnapshotInfo, error)
	ListSnapshots() ([]types.SnapshotInfo, error)
	DeleteSnapshot(key string) error
}

func mountSessions(r chi.Router, h *handlers) {
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", h.listSessions)
		r.Post("/", h.openSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Delete("/", h.closeSession)
			r.Post("/cancel", h.sessionAction(h.sessions.Cancel))
			r.Post("/reset", h.sessionAction(h.sessions.Reset))
			r.Post("/clear", h.sessionAction(h.sessions.ClearKV))
			r.Get("/stats", h.sessionStats)
			r.Get("/state", h.saveState)
			r.Put("/state", h.loadState)
			r.Post("/snapshot", h.persistSession)
			r.Post("/restore", h.restoreSession)
		})
	})
	r.Get("/snapshots", h.listSnapshots)
	r.Delete("/snapshots/{key}", h.deleteSnapshot)
}

// listSessions godoc
// @Summary      List sessions
// @Tags         sessions
// @Produce      json
// @Success      200  {object}  types.SessionsResponse
// @Router       /sessions [get]
func (h *handlers) listSessions(w http.ResponseWriter, r *http.Request) {
	out := h.sessions.Sessions()
	if out == nil {
		out = []types.SessionInfo{}
	}
	writeJSON(w, http.StatusOK, types.SessionsResponse{Sessions: out})
}

// openSession godoc
// @Summary      Open a session
// @Description  Loads the model if needed and creates an independent decode state.
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Param        request  body      types.SessionRequest  true  "Session options"
// @Success      201      {object}  types.SessionInfo
// @Failure      400      {object}  types.ErrorResponse
// @Failure      404      {object}  types.ErrorResponse
// @Router       /sessions [post]
func (h *handlers) openSession(w http.ResponseWriter, r *http.Request) {
	var req types.SessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	params := inference.ContextParams{
		NCtx:         req.Context.NCtx,
		NBatch:       req.Context.NBatch,
		Threads:      req.Context.Threads,
		ThreadsBatch: req.Context.ThreadsBatch,
	}
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	info, err := h.sessions.OpenSession(ctx, req.Model, params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// getSession godoc
// @Summary      Describe a session
// @Tags         sessions
// @Produce      json
// @Param        id   path      string  true  "Session id"
// @Success      200  {object}  types.SessionInfo
// @Failure      404  {object}  types.ErrorResponse
// @Router       /sessions/{id} [get]
func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.sessions.SessionInfo(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// closeSession godoc
// @Summary      Close a session
// @Tags         sessions
// @Param        id   path  string  true  "Session id"
// @Success      204
// @Failure      404  {object}  types.ErrorResponse
// @Router       /sessions/{id} [delete]
func (h *handlers) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.CloseSession(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// sessionAction adapts cancel, reset and clear.
func (h *handlers) sessionAction(fn func(id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// sessionStats godoc
// @Summary      Session performance counters
// @Tags         sessions
// @Produce      json
// @Param        id   path      string  true  "Session id"
// @Success      200  {object}  types.StatsResponse
// @Failure      409  {object}  types.ErrorResponse
// @Router       /sessions/{id}/stats [get]
func (h *handlers) sessionStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.sessions.Stats(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// saveState godoc
// @Summary      Download raw decode state
// @Tags         state
// @Produce      application/octet-stream
// @Param        id   path  string  true  "Session id"
// @Success      200  {file}  binary
// @Failure      409  {object}  types.ErrorResponse
// @Router       /sessions/{id}/state [get]
func (h *handlers) saveState(w http.ResponseWriter, r *http.Request) {
	data, err := h.sessions.SaveState(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// loadState godoc
// @Summary      Upload raw decode state
// @Tags         state
// @Accept       application/octet-stream
// @Param        id   path  string  true  "Session id"
// @Success      204
// @Failure      409  {object}  types.ErrorResponse
// @Failure      413  {object}  types.ErrorResponse
// @Failure      422  {object}  types.ErrorResponse
// @Router       /sessions/{id}/state [put]
func (h *handlers) loadState(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxStateBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "state exceeds upload limit")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if err := h.sessions.LoadState(chi.URLParam(r, "id"), data); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// persistSession godoc
// @Summary      Store a compressed snapshot of a session
// @Tags         snapshots
// @Accept       json
// @Produce      json
// @Param        id       path      string                 true  "Session id"
// @Param        request  body      types.SnapshotRequest  true  "Snapshot key"
// @Success      201      {object}  types.SnapshotInfo
// @Failure      400      {object}  types.ErrorResponse
// @Failure      501      {object}  types.ErrorResponse
// @Router       /sessions/{id}/snapshot [post]
func (h *handlers) persistSession(w http.ResponseWriter, r *http.Request) {
	var req types.SnapshotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Key == "" {
		writeError(w, badRequest("key is required"))
		return
	}
	info, err := h.sessions.PersistSession(chi.URLParam(r, "id"), req.Key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// restoreSession godoc
// @Summary      Restore a session from a stored snapshot
// @Tags         snapshots
// @Accept       json
// @Produce      json
// @Param        id       path      string                 true  "Session id"
// @Param        request  body      types.SnapshotRequest  true  "Snapshot key"
// @Success      200      {object}  types.SnapshotInfo
// @Failure      404      {object}  types.ErrorResponse
// @Failure      422      {object}  types.ErrorResponse
// @Router       /sessions/{id}/restore [post]
func (h *handlers) restoreSession(w http.ResponseWriter, r *http.Request) {
	var req types.SnapshotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Key == "" {
		writeError(w, badRequest("key is required"))
		return
	}
	info, err := h.sessions.RestoreSession(chi.URLParam(r, "id"), req.Key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// listSnapshots godoc
// @Summary      List stored snapshots
// @Tags         snapshots
// @Produce      json
// @Success      200  {object}  types.SnapshotsResponse
// @Failure      501  {object}  types.ErrorResponse
// @Router       /snapshots [get]
func (h *handlers) listSnapshots(w http.ResponseWriter, r *http.Request) {
	out, err := h.sessions.ListSnapshots()
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []types.SnapshotInfo{}
	}
	writeJSON(w, http.StatusOK, types.SnapshotsResponse{Snapshots: out})
}

// deleteSnapshot godoc
// @Summary      Delete a stored snapshot
// @Tags         snapshots
// @Param        key  path  string  true  "Snapshot key"
// @Success      204
// @Failure      404  {object}  types.ErrorResponse
// @Router       /snapshots/{key} [delete]
func (h *handlers) deleteSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.DeleteSnapshot(chi.URLParam(r, "key")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
