package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidahmann/continuum/internal/auth"
	"github.com/davidahmann/continuum/internal/ledger"
	"github.com/davidahmann/continuum/internal/service"
	"github.com/davidahmann/continuum/pkg/types"
)

const testToken = "test-token"

func newTestServer(t *testing.T, h *Handler) *httptest.Server {
	t.Helper()
	if h.Service == nil {
		h.Service = service.New(ledger.NewInMemoryStore())
	}
	if h.Logger == nil {
		h.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any, out any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res
}

func commitAndActivate(t *testing.T, srv *httptest.Server, payload map[string]any) types.Decision {
	t.Helper()
	var draft types.Decision
	res := do(t, srv, http.MethodPost, "/v1/decisions", payload, &draft)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	require.Equal(t, types.StatusDraft, draft.Status)

	var active types.Decision
	res = do(t, srv, http.MethodPost, "/v1/decisions/"+draft.ID+"/status", map[string]string{"status": "active"}, &active)
	require.Equal(t, http.StatusOK, res.StatusCode)
	return active
}

func TestDecisionLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, &Handler{Auth: auth.StaticToken{Token: testToken}})

	d := commitAndActivate(t, srv, map[string]any{
		"title":         "Keep auth module",
		"scope":         "repo:x",
		"decision_type": "rejection",
		"options": []map[string]any{
			{"title": "Incremental fixes", "selected": true},
			{"title": "Full rewrite", "selected": false, "rejected_reason": "too risky"},
		},
	})
	assert.Equal(t, types.StatusActive, d.Status)

	var got types.Decision
	res := do(t, srv, http.MethodGet, "/v1/decisions/"+d.ID, nil, &got)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, d.ID, got.ID)

	var list struct {
		Decisions []types.Decision `json:"decisions"`
	}
	do(t, srv, http.MethodGet, "/v1/decisions?scope=repo:*", nil, &list)
	assert.Len(t, list.Decisions, 1)

	var verdict types.EnforcementResult
	res = do(t, srv, http.MethodPost, "/v1/enforce", map[string]any{
		"action": map[string]any{"type": "code_change", "description": "Do a full rewrite of auth module"},
		"scope":  "repo:x",
	}, &verdict)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, types.VerdictBlock, verdict.Verdict)

	res = do(t, srv, http.MethodPost, "/v1/override", map[string]any{
		"action":    map[string]any{"type": "code_change", "description": "Do a full rewrite of auth module"},
		"scope":     "repo:x",
		"approvals": []string{"alice"},
	}, &verdict)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, types.VerdictOverride, verdict.Verdict)

	var inspect types.InspectResult
	do(t, srv, http.MethodGet, "/v1/inspect?scope=repo:x", nil, &inspect)
	assert.Len(t, inspect.Bindings, 1)

	var resolved types.ResolveResult
	do(t, srv, http.MethodPost, "/v1/resolve", map[string]any{"query": "keep auth module", "scope": "repo:x"}, &resolved)
	assert.Equal(t, types.ResolveResolved, resolved.Status)

	var arb struct {
		Winner      *types.Decision `json:"winner"`
		Explanation string          `json:"explanation"`
	}
	do(t, srv, http.MethodGet, "/v1/arbitrate?scope=repo:x&binding_key=Keep+auth+module", nil, &arb)
	require.NotNil(t, arb.Winner)
	assert.Equal(t, d.ID, arb.Winner.ID)

	var analysis struct {
		Risk float64 `json:"risk"`
	}
	do(t, srv, http.MethodGet, "/v1/decisions/"+d.ID+"/analysis?scope=repo:x", nil, &analysis)
	assert.InDelta(t, 0.8, analysis.Risk, 1e-9)

	var next types.Decision
	res = do(t, srv, http.MethodPost, "/v1/decisions/"+d.ID+"/supersede", map[string]any{"title": "Rewrite auth module"}, &next)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, d.ID, next.Enforcement.Supersedes)
	assert.Equal(t, types.StatusActive, next.Status)
}

func TestProblemResponses(t *testing.T) {
	srv := newTestServer(t, &Handler{Auth: auth.StaticToken{Token: testToken}})

	var problem ProblemDetail
	res := do(t, srv, http.MethodGet, "/v1/decisions/dec_missing", nil, &problem)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "application/problem+json", res.Header.Get("Content-Type"))
	assert.Equal(t, http.StatusNotFound, problem.Status)
	assert.Equal(t, "/v1/decisions/dec_missing", problem.Instance)

	res = do(t, srv, http.MethodPost, "/v1/decisions", map[string]any{"scope": "s", "decision_type": "preference"}, &problem)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)

	res = do(t, srv, http.MethodPost, "/v1/decisions", `{"title":`, &problem)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	d := commitAndActivate(t, srv, map[string]any{"title": "T", "scope": "s", "decision_type": "preference"})
	res = do(t, srv, http.MethodPost, "/v1/decisions/"+d.ID+"/status", map[string]string{"status": "draft"}, &problem)
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res = do(t, srv, http.MethodGet, "/v1/arbitrate?scope=s", nil, &problem)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestRequiresBearerToken(t *testing.T) {
	srv := newTestServer(t, &Handler{Auth: auth.StaticToken{Token: testToken}})

	res, err := srv.Client().Get(srv.URL + "/v1/decisions")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, err = srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, &Handler{
		Auth:        auth.StaticToken{Token: testToken},
		RateLimiter: NewRateLimiter(0.001, 2),
	})

	codes := []int{}
	for range 3 {
		res := do(t, srv, http.MethodGet, "/v1/decisions", nil, nil)
		codes = append(codes, res.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
