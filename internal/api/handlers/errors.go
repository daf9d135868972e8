package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/talkinghead/internal/pipeline"
)

// writePipelineError maps a pipeline failure to its HTTP response. Missing
// inputs are a 400 with a fixed body; everything else is a 500 whose message
// is sanitized unless expose is set.
func writePipelineError(w http.ResponseWriter, r *http.Request, err error, expose bool) {
	if errors.Is(err, pipeline.ErrMissingInput) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": pipeline.MissingInputMessage})
		return
	}

	slog.Error("generation failed",
		"request_id", chimiddleware.GetReqID(r.Context()),
		"error", err,
	)

	msg := pipeline.PublicMessage(err)
	if expose {
		msg = pipeline.DetailMessage(err)
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msg})
}
