package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/retrieva/internal/embedding"
	"github.com/nikhilbhutani/retrieva/internal/rag"
	"github.com/nikhilbhutani/retrieva/internal/vectorstore"
	"github.com/nikhilbhutani/retrieva/pkg/chunker"
	"github.com/nikhilbhutani/retrieva/pkg/textextract"
)

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"path", r.URL.Path,
			"request_id", chimiddleware.GetReqID(r.Context()),
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, rag.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, rag.ErrEmptyDocument),
		errors.Is(err, chunker.ErrInvalidOptions),
		errors.Is(err, textextract.ErrUnsupportedType):
		return http.StatusBadRequest
	case errors.Is(err, embedding.ErrInitFailed):
		return http.StatusServiceUnavailable
	case errors.Is(err, embedding.ErrNoVector),
		errors.Is(err, vectorstore.ErrDimensionMismatch),
		errors.Is(err, vectorstore.ErrEmptyEmbedding):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}
