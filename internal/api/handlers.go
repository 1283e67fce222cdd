package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/davidahmann/continuum/internal/auth"
	"github.com/davidahmann/continuum/internal/decision"
	"github.com/davidahmann/continuum/internal/service"
	"github.com/davidahmann/continuum/pkg/types"
)

type Handler struct {
	Service     *service.Service
	Auth        auth.Authenticator
	RateLimiter *RateLimiter
	Logger      *slog.Logger
}

type StatusRequest struct {
	Status types.DecisionStatus `json:"status"`
}

type EnforceRequest struct {
	Action    types.Action `json:"action"`
	Scope     string       `json:"scope"`
	Approvals []string     `json:"approvals,omitempty"`
}

type ResolveRequest struct {
	Query      string            `json:"query"`
	Scope      string            `json:"scope"`
	Candidates []types.Candidate `json:"candidates,omitempty"`
}

// NewRouter mounts the decision API. /healthz is never authenticated or limited.
func NewRouter(h *Handler) http.Handler {
	if h.Logger == nil {
		h.Logger = slog.Default()
	}
	h.Logger = h.Logger.With("component", "api")

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(v1 chi.Router) {
		if h.RateLimiter != nil {
			v1.Use(h.RateLimiter.Middleware)
		}
		if h.Auth != nil {
			v1.Use(requireAuth(h.Auth))
		}

		v1.Post("/decisions", h.Commit)
		v1.Get("/decisions", h.List)
		v1.Get("/decisions/{id}", h.Get)
		v1.Post("/decisions/{id}/status", h.UpdateStatus)
		v1.Post("/decisions/{id}/supersede", h.Supersede)
		v1.Get("/decisions/{id}/analysis", h.Analyze)
		v1.Get("/inspect", h.Inspect)
		v1.Post("/enforce", h.Enforce)
		v1.Post("/override", h.Override)
		v1.Post("/resolve", h.Resolve)
		v1.Get("/arbitrate", h.Arbitrate)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusNotFound, "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusMethodNotAllowed, "The HTTP method is not supported for this endpoint")
	})
	return r
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeProblem(w, r, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return false
	}
	return true
}

func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	var in decision.Draft
	if !h.decode(w, r, &in) {
		return
	}
	d, err := h.Service.Commit(r.Context(), in)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ds, err := h.Service.List(r.Context(), r.URL.Query().Get("scope"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": ds})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	d, err := h.Service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) Supersede(w http.ResponseWriter, r *http.Request) {
	var in service.SupersedeInput
	if !h.decode(w, r, &in) {
		return
	}
	d, err := h.Service.Supersede(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	a, err := h.Service.Analyze(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("scope"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) Inspect(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.Inspect(r.Context(), r.URL.Query().Get("scope"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Enforce(w http.ResponseWriter, r *http.Request) {
	var req EnforceRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Service.Enforce(r.Context(), req.Action, req.Scope)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Override(w http.ResponseWriter, r *http.Request) {
	var req EnforceRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Service.Override(r.Context(), req.Action, req.Scope, req.Approvals)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Service.Resolve(r.Context(), req.Query, req.Scope, req.Candidates)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Arbitrate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bindingKey := q.Get("binding_key")
	if bindingKey == "" {
		writeProblem(w, r, http.StatusBadRequest, "binding_key is required")
		return
	}
	res, err := h.Service.Arbitrate(r.Context(), q.Get("scope"), bindingKey)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
