// Package server exposes a Parser over a small read-mostly HTTP API.
//
//	GET    /healthz
//	GET    /tables
//	GET    /tables/{name}
//	DELETE /tables/{name}   forget one cached table
//	POST   /flush           forget every cached table and the table list
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/koustreak/dbparser/internal/errs"
	"github.com/koustreak/dbparser/internal/logger"
	"github.com/koustreak/dbparser/internal/schema"
)

// Schema is the part of *schema.Parser the API needs.
type Schema interface {
	Tables(ctx context.Context) ([]string, error)
	Table(ctx context.Context, name string) (*schema.Table, error)
	Invalidate(ctx context.Context, name string) error
	Flush(ctx context.Context) error
}

// Handler serves the API.
type Handler struct {
	schema Schema
	log    *logger.Logger
}

// New builds the chi router.
func New(s Schema, log *logger.Logger) http.Handler {
	h := &Handler{schema: s, log: log.Component("http")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", h.health)
	r.Route("/tables", func(r chi.Router) {
		r.Get("/", h.listTables)
		r.Get("/{name}", h.getTable)
		r.Delete("/{name}", h.invalidateTable)
	})
	r.Post("/flush", h.flush)
	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.schema.Tables(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (h *Handler) getTable(w http.ResponseWriter, r *http.Request) {
	t, err := h.schema.Table(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) invalidateTable(w http.ResponseWriter, r *http.Request) {
	if err := h.schema.Invalidate(r.Context(), chi.URLParam(r, "name")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) flush(w http.ResponseWriter, r *http.Request) {
	if err := h.schema.Flush(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.log.ErrorWith("request failed", err, map[string]interface{}{
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		})
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  errs.KindOf(err).String(),
	})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Request().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

// statusOf maps an error kind to an HTTP status.
func statusOf(err error) int {
	switch errs.KindOf(err) {
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindInvalidInput:
		return http.StatusBadRequest
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case errs.ErrKindConnectionFailed:
		return http.StatusServiceUnavailable
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
