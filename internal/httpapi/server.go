package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sessiond/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() []types.Model
	Status() types.StatusResponse
	Modes() []string
	LastMetrics() (*types.Metrics, bool)
	Ready() bool
	Load(ctx context.Context, req types.LoadRequest) error
	// Generate writes NDJSON events to w. An error returned before anything
	// was written is reported as a JSON error response.
	Generate(ctx context.Context, req types.GenerateRequest, w io.Writer, flush func()) error
	Reset(req types.ResetRequest) error
	Release() error
}

type handlers struct {
	svc Service
}

// NewMux builds the chi router over svc.
func NewMux(svc Service) http.Handler {
	h := &handlers{svc: svc}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(inflight)
		r.Get("/models", h.models)
		r.Get("/status", h.status)
		r.Get("/modes", h.modes)
		r.Get("/metrics/generation", h.generationMetrics)
		r.Post("/load", h.load)
		r.Post("/generate", h.generate)
		r.Post("/reset", h.reset)
		r.Post("/release", h.release)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)

	return r
}

// models godoc
// @Summary      List model files
// @Tags         models
// @Produce      json
// @Success      200  {object}  types.ModelsResponse
// @Router       /models [get]
func (h *handlers) models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.ModelsResponse{Models: h.svc.ListModels()})
}

// status godoc
// @Summary      Controller status
// @Tags         session
// @Produce      json
// @Success      200  {object}  types.StatusResponse
// @Router       /status [get]
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// modes godoc
// @Summary      Available acceleration modes
// @Tags         session
// @Produce      json
// @Success      200  {object}  types.ModesResponse
// @Router       /modes [get]
func (h *handlers) modes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.ModesResponse{Modes: h.svc.Modes()})
}

// generationMetrics godoc
// @Summary      Metrics of the last completed generation
// @Tags         session
// @Produce      json
// @Success      200  {object}  types.Metrics
// @Success      204  "no generation completed yet"
// @Router       /metrics/generation [get]
func (h *handlers) generationMetrics(w http.ResponseWriter, r *http.Request) {
	m, ok := h.svc.LastMetrics()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// load godoc
// @Summary      Load a model
// @Tags         session
// @Accept       json
// @Produce      json
// @Param        body  body      types.LoadRequest  false  "model and config"
// @Success      200   {object}  types.StatusResponse
// @Failure      400,404,409,422,502,503  {object}  types.ErrorResponse
// @Router       /load [post]
func (h *handlers) load(w http.ResponseWriter, r *http.Request) {
	var req types.LoadRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	if err := h.svc.Load(ctx, req); err != nil {
		fail(w, r, "load", err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// generate godoc
// @Summary      Stream a reply
// @Description  Streams NDJSON lines; the last line has done=true and carries metrics only on success.
// @Tags         session
// @Accept       json
// @Produce      application/x-ndjson
// @Param        body  body      types.GenerateRequest  true  "prompt, history and config"
// @Success      200   {object}  types.StreamEvent
// @Failure      400,409,503  {object}  types.ErrorResponse
// @Router       /generate [post]
func (h *handlers) generate(w http.ResponseWriter, r *http.Request) {
	var req types.GenerateRequest
	if !decodeBody(w, r, &req, false) {
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
	rid := middleware.GetReqID(r.Context())
	writer := io.Writer(w)
	lvl := requestLogLevel(r)
	if lvl >= LevelDebug {
		writer = io.MultiWriter(w, &loggingLineWriter{reqID: rid})
	}
	if lvl >= LevelInfo {
		zlog.Info().Str("request_id", rid).Int("history", len(req.History)).Msg("generate start")
	}

	// Join server base context with request context so shutdown cancels work too.
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	if generateTimeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, generateTimeout)
		defer tcancel()
	}
	status := http.StatusOK
	err := h.svc.Generate(ctx, req, writer, flush)
	if err != nil {
		if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
			return
		}
		status = fail(w, r, "generate", err)
	}
	if lvl >= LevelInfo {
		zlog.Info().Str("request_id", rid).Int("status", status).Dur("dur", time.Since(start)).Err(err).Msg("generate end")
	}
}

// reset godoc
// @Summary      Recreate the session
// @Tags         session
// @Accept       json
// @Produce      json
// @Param        body  body      types.ResetRequest  false  "config"
// @Success      200   {object}  types.StatusResponse
// @Failure      400,409,503  {object}  types.ErrorResponse
// @Router       /reset [post]
func (h *handlers) reset(w http.ResponseWriter, r *http.Request) {
	var req types.ResetRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	if err := h.svc.Reset(req); err != nil {
		fail(w, r, "reset", err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// release godoc
// @Summary      Release the model
// @Tags         session
// @Produce      json
// @Success      200  {object}  types.StatusResponse
// @Router       /release [post]
func (h *handlers) release(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Release(); err != nil {
		fail(w, r, "release", err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// decodeBody enforces JSON content type and the body size limit. When
// optional is set an empty body is accepted and leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	if optional && r.ContentLength == 0 {
		return true
	}
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if optional && err == io.EOF {
			return true
		}
		// oversized bodies also land here; report 400 without size details
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// fail maps err to a status, writes it and returns the status.
func fail(w http.ResponseWriter, r *http.Request, route string, err error) int {
	status := statusFor(err)
	if status == http.StatusConflict {
		countBusy(route)
	}
	if status >= http.StatusInternalServerError {
		zlog.Error().Str("request_id", middleware.GetReqID(r.Context())).Str("route", route).Int("status", status).Err(err).Msg("request failed")
	}
	writeJSONError(w, status, err.Error())
	return status
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
