package httpapi

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llamactx/internal/manager"
	"llamactx/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() []types.Model
	Status() types.StatusResponse
	Infer(ctx context.Context, req types.InferRequest, w io.Writer, flush func()) error
	Ready() bool
}

// Sanity is implemented by services that can report host capabilities.
type Sanity interface {
	SanityCheck() manager.SanityReport
}

// Switcher is implemented by services that can warm a model in the background.
type Switcher interface {
	Switch(ctx context.Context, modelID string) (string, error)
}

// NewMux builds the router. Optional capabilities (sessions, snapshots,
// sanity, switch) are mounted when svc implements them.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(corsMiddleware())
	}
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	h := &handlers{svc: svc}
	r.Get("/models", h.models)
	r.Get("/status", h.status)
	r.Post("/infer", h.infer)
	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	if s, ok := svc.(Sanity); ok {
		r.Get("/sanity", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, s.SanityCheck())
		})
	}
	if s, ok := svc.(Switcher); ok {
		h.switcher = s
		r.Post("/switch", h.switchModel)
	}
	if s, ok := svc.(SessionService); ok {
		h.sessions = s
		mountSessions(r, h)
	}
	MountSwagger(r)
	return r
}

type handlers struct {
	svc      Service
	switcher Switcher
	sessions SessionService
}

// decodeJSON enforces the content type and body limit before decoding into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// models godoc
// @Summary      List models
// @Description  Models discovered in the models directory.
// @Tags         models
// @Produce      json
// @Success      200  {object}  types.ModelsResponse
// @Router       /models [get]
func (h *handlers) models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.ModelsResponse{Models: h.svc.ListModels()})
}

// status godoc
// @Summary      Manager status
// @Tags         status
// @Produce      json
// @Success      200  {object}  types.StatusResponse
// @Router       /status [get]
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// infer godoc
// @Summary      Generate a completion
// @Description  Streams NDJSON token lines followed by a final line. With stream=false only the final line is written.
// @Tags         inference
// @Accept       json
// @Produce      application/x-ndjson
// @Param        request  body      types.InferRequest  true  "Inference request"
// @Success      200      {object}  types.FinalLine
// @Failure      400      {object}  types.ErrorResponse
// @Failure      404      {object}  types.ErrorResponse
// @Failure      409      {object}  types.ErrorResponse
// @Failure      429      {object}  types.ErrorResponse
// @Failure      503      {object}  types.ErrorResponse
// @Router       /infer [post]
func (h *handlers) infer(w http.ResponseWriter, r *http.Request) {
	var req types.InferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	var flush func()
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	start := time.Now()
	writer := io.Writer(w)
	lvl := requestLogLevel(r)
	if lvl >= LevelDebug {
		writer = io.MultiWriter(w, &loggingLineWriter{rid: middleware.GetReqID(r.Context())})
	}
	if lvl >= LevelInfo {
		reqEvent(r, zlog.Info()).Str("model", req.Model).Str("session", req.Session).Msg("infer start")
	}

	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	if inferTimeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, time.Duration(inferTimeout)*time.Second)
		defer tcancel()
	}

	err := h.svc.Infer(ctx, req, writer, flush)
	status := http.StatusOK
	switch {
	case err == nil:
	case manager.IsStreamed(err):
		// Already reported in-band.
	case r.Context().Err() != nil || serverBaseCtx.Err() != nil:
		return
	default:
		status = statusFor(err)
		writeError(w, err)
	}
	if lvl >= LevelInfo || (lvl >= LevelError && err != nil) {
		e := reqEvent(r, zlog.Info()).Int("status", status).Dur("dur", time.Since(start))
		if err != nil {
			e = e.Err(err)
		}
		e.Msg("infer end")
	}
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	if h.svc.Ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("loading"))
}

// switchModel godoc
// @Summary      Load a model in the background
// @Tags         models
// @Accept       json
// @Produce      json
// @Param        request  body      types.SwitchRequest  true  "Model to load"
// @Success      202      {object}  types.SwitchResponse
// @Failure      404      {object}  types.ErrorResponse
// @Router       /switch [post]
func (h *handlers) switchModel(w http.ResponseWriter, r *http.Request) {
	var req types.SwitchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	opID, err := h.switcher.Switch(serverBaseCtx, req.Model)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, types.SwitchResponse{OpID: opID, Model: req.Model, State: string(manager.StateLoading)})
}
