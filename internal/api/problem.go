package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/davidahmann/continuum/internal/decision"
)

// ProblemDetail is an RFC 7807 error body.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	problem := &ProblemDetail{
		Type:   fmt.Sprintf("https://continuum.local/errors/%d", status),
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	}
	if r != nil {
		problem.Instance = r.URL.Path
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

// writeError maps decision error kinds to HTTP statuses. Storage and unknown
// errors are logged and never exposed.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, decision.ErrDecisionNotFound):
		writeProblem(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, decision.ErrInvalidTransition):
		writeProblem(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, decision.ErrValidation):
		writeProblem(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		logger.ErrorContext(r.Context(), "internal server error", "path", r.URL.Path, "error", err)
		writeProblem(w, r, http.StatusInternalServerError, "An unexpected error occurred. Please try again later.")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
