package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/contentflow/internal/action"
	"github.com/roach88/contentflow/internal/content"
	"github.com/roach88/contentflow/internal/permission"
	"github.com/roach88/contentflow/internal/schema"
	"github.com/roach88/contentflow/internal/service"
	"github.com/roach88/contentflow/internal/store"
	"github.com/roach88/contentflow/internal/testutil"
	"github.com/roach88/contentflow/internal/workflow"
)

func newTestAPI(t *testing.T) *echo.Echo {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := testutil.NewStepClock(testutil.DefaultEpoch, 0)
	registry := action.NewDefaultRegistry(action.Dependencies{Store: s, Now: clock.Now})
	engine := workflow.NewEngine(s, registry, workflow.WithRecorder(s), workflow.WithClock(clock.Now))

	v := schema.NewValidator()
	require.NoError(t, v.Register("Article", `{ Name: string, Seats?: int }`))

	svc := service.New(s, engine,
		service.WithValidator(v),
		service.WithIDGenerator(testutil.NewSequenceGenerator("c")),
		service.WithClock(clock.Now),
	)
	all := permission.Rule{Enabled: true}
	require.NoError(t, svc.ApplySeed(context.Background(), service.Seed{
		Roles: []permission.Role{
			{ID: "r-editor", Name: "Editor", Permissions: []permission.ContentTypePermission{{
				ContentTypeSlug: "Article", Create: all, Read: all, Update: all, Delete: all,
			}}},
			{ID: "r-reader", Name: "Reader", Permissions: []permission.ContentTypePermission{{
				ContentTypeSlug: "Article", Read: all,
			}}},
		},
		Users: []permission.User{
			{ID: "editor", RoleIDs: []string{"r-editor"}},
			{ID: "reader", RoleIDs: []string{"r-reader"}},
		},
	}))
	return NewEcho(svc)
}

func do(e *echo.Echo, method, path, user, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if user != "" {
		req.Header.Set(HeaderUserID, user)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) Problem {
	t.Helper()
	assert.Equal(t, ProblemContentType, rec.Header().Get(echo.HeaderContentType))
	var p Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestContentLifecycle(t *testing.T) {
	e := newTestAPI(t)

	rec := do(e, http.MethodPost, "/api/v1/content", "editor", `{"content_type":"Article","data":{"Name":"Version 1"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created content.Content
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "c-1", created.ID)
	assert.Equal(t, int64(1), created.Version)

	rec = do(e, http.MethodPut, "/api/v1/content/c-1", "editor", `{"data":{"Name":"Version 2"},"Version":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(e, http.MethodPut, "/api/v1/content/c-1", "editor", `{"data":{"Name":"stale"},"version":1}`)
	require.Equal(t, http.StatusPreconditionFailed, rec.Code)
	p := decodeProblem(t, rec)
	assert.Contains(t, p.Detail, "modified by another user")
	assert.Equal(t, "VERSION_CONFLICT", p.Code)

	rec = do(e, http.MethodPost, "/api/v1/content/c-1/rollback", "editor", `{"version":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rolled content.Content
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rolled))
	assert.Equal(t, int64(3), rolled.Version)
	assert.Equal(t, "Version 1", rolled.Data["Name"])

	rec = do(e, http.MethodGet, "/api/v1/content/c-1/history", "reader", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 3)
	assert.Equal(t, "Updated", history[2]["type"])

	rec = do(e, http.MethodGet, "/api/v1/content/c-1/versions/2", "reader", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Version 2")

	rec = do(e, http.MethodGet, "/api/v1/content?type=Article", "reader", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var items []content.Content
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	assert.Len(t, items, 1)

	rec = do(e, http.MethodDelete, "/api/v1/content/c-1", "editor", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(e, http.MethodGet, "/api/v1/content/c-1", "editor", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorStatuses(t *testing.T) {
	e := newTestAPI(t)
	rec := do(e, http.MethodPost, "/api/v1/content", "editor", `{"content_type":"Article","data":{"Name":"x"}}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("forbidden", func(t *testing.T) {
		rec := do(e, http.MethodPut, "/api/v1/content/c-1", "reader", `{"data":{"Name":"y"}}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "PERMISSION_DENIED", decodeProblem(t, rec).Code)
	})

	t.Run("validation", func(t *testing.T) {
		rec := do(e, http.MethodPost, "/api/v1/content", "editor", `{"content_type":"Article","data":{"Seats":"many"}}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		p := decodeProblem(t, rec)
		assert.Equal(t, "VALIDATION_FAILED", p.Code)
		assert.NotEmpty(t, p.Fields)
	})

	t.Run("idempotency", func(t *testing.T) {
		body := `{"content_type":"Article","data":{"Name":"once"}}`
		rec := do(e, http.MethodPost, "/api/v1/content", "editor", body, HeaderIdempotencyKey, "abc")
		assert.Equal(t, http.StatusCreated, rec.Code)
		rec = do(e, http.MethodPost, "/api/v1/content", "editor", body, HeaderIdempotencyKey, "abc")
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "IDEMPOTENCY_CONFLICT", decodeProblem(t, rec).Code)
	})

	t.Run("not found", func(t *testing.T) {
		rec := do(e, http.MethodGet, "/api/v1/content/missing", "editor", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = do(e, http.MethodGet, "/api/v1/workflows/missing", "editor", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing user", func(t *testing.T) {
		rec := do(e, http.MethodGet, "/api/v1/content/c-1", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestActionsDiscovery(t *testing.T) {
	e := newTestAPI(t)
	rec := do(e, http.MethodGet, "/api/v1/actions", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var catalog []action.Metadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &catalog))
	var types []string
	for _, m := range catalog {
		types = append(types, m.Type)
	}
	assert.Equal(t, []string{"Conditional", "CreateTask", "Email", "SMS", "UpdateField", "Webhook"}, types)
}

func TestWorkflowEndpoints(t *testing.T) {
	e := newTestAPI(t)
	def := `{"id":"wf-1","name":"Notify","trigger_content_type":"Article","trigger_event":"Created",
		"actions":[{"type":"Email","parameters":{"To":"a@b.c","Subject":"New {{id}}","Body":"{{data.Name}}"}}]}`

	rec := do(e, http.MethodPost, "/api/v1/workflows/validate", "", `{"name":"","trigger_event":"Renamed","actions":[{"type":"Fax"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var report ValidationReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.False(t, report.Valid)
	assert.NotEmpty(t, report.Errors)

	rec = do(e, http.MethodPost, "/api/v1/workflows/dry-run", "",
		`{"workflow":`+def+`,"sample":{"id":"sample-1","data":{"Name":"Hello"}}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var exec workflow.Execution
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exec))
	assert.True(t, exec.DryRun)
	require.Len(t, exec.Results, 1)
	assert.Equal(t, "New sample-1", exec.Results[0].Parameters["Subject"])

	rec = do(e, http.MethodPost, "/api/v1/workflows", "", `{"name":"Broken","trigger_content_type":"Article","trigger_event":"Created","actions":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_WORKFLOW", decodeProblem(t, rec).Code)

	rec = do(e, http.MethodPost, "/api/v1/workflows", "", def)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(e, http.MethodPost, "/api/v1/content", "editor", `{"content_type":"Article","data":{"Name":"x"}}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(e, http.MethodGet, "/api/v1/content/c-1/executions", "editor", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var execs []workflow.Execution
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &execs))
	require.Len(t, execs, 1)
	assert.Equal(t, "wf-1", execs[0].WorkflowID)

	rec = do(e, http.MethodGet, "/api/v1/workflows", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var defs []workflow.Definition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &defs))
	assert.Len(t, defs, 1)

	rec = do(e, http.MethodDelete, "/api/v1/workflows/wf-1", "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestVariables(t *testing.T) {
	e := newTestAPI(t)
	rec := do(e, http.MethodGet, "/api/v1/variables/Article", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "{{createdAt}}")
}
