// Package httpapi exposes the content service over HTTP.
//
// Every route lives under /api/v1. The acting user is taken from the
// X-User-ID header; mutations honour an optional Idempotency-Key header.
// Errors are returned as RFC 7807 problem documents.
package httpapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/roach88/contentflow/internal/content"
	"github.com/roach88/contentflow/internal/service"
	"github.com/roach88/contentflow/internal/workflow"
)

// Request headers.
const (
	HeaderUserID         = "X-User-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// Server holds the dependencies for the API server.
type Server struct {
	svc *service.Service
}

// NewServer creates a new Server.
func NewServer(svc *service.Service) *Server {
	return &Server{svc: svc}
}

// NewEcho builds an echo instance with middleware, the problem error
// handler and every route registered.
func NewEcho(svc *service.Service) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	NewServer(svc).Register(e.Group("/api/v1"))
	return e
}

// Register mounts the routes on g.
func (s *Server) Register(g *echo.Group) {
	g.POST("/content", s.CreateContent)
	g.GET("/content", s.ListContent)
	g.GET("/content/:id", s.GetContent)
	g.PUT("/content/:id", s.UpdateContent)
	g.DELETE("/content/:id", s.DeleteContent)
	g.POST("/content/:id/rollback", s.RollbackContent)
	g.GET("/content/:id/history", s.ContentHistory)
	g.GET("/content/:id/versions/:version", s.ContentVersion)
	g.GET("/content/:id/executions", s.ContentExecutions)

	g.GET("/actions", s.ListActions)
	g.GET("/variables/:type", s.ListVariables)

	g.GET("/workflows", s.ListWorkflows)
	g.POST("/workflows", s.SaveWorkflow)
	g.POST("/workflows/validate", s.ValidateWorkflow)
	g.POST("/workflows/dry-run", s.DryRunWorkflow)
	g.GET("/workflows/:id", s.GetWorkflow)
	g.DELETE("/workflows/:id", s.DeleteWorkflow)
	g.GET("/executions", s.ListExecutions)
}

func userID(c echo.Context) (string, error) {
	id := c.Request().Header.Get(HeaderUserID)
	if id == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing "+HeaderUserID+" header")
	}
	return id, nil
}

func idempotencyKey(c echo.Context) string {
	return c.Request().Header.Get(HeaderIdempotencyKey)
}

type createBody struct {
	ContentType string              `json:"content_type"`
	Data        content.Data        `json:"data"`
	Status      content.Status      `json:"status"`
	Sensitivity content.Sensitivity `json:"sensitivity"`
}

// CreateContent creates an item.
// (POST /api/v1/content)
func (s *Server) CreateContent(c echo.Context) error {
	user, err := userID(c)
	if err != nil {
		return err
	}
	var body createBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if body.ContentType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content_type is required")
	}

	item, err := s.svc.Create(c.Request().Context(), service.CreateRequest{
		UserID:         user,
		ContentType:    body.ContentType,
		Data:           body.Data,
		Status:         body.Status,
		Sensitivity:    body.Sensitivity,
		IdempotencyKey: idempotencyKey(c),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, item)
}

// ListContent lists the readable items of a content type.
// (GET /api/v1/content?type=...)
func (s *Server) ListContent(c echo.Context) error {
	user, err := userID(c)
	if err != nil {
		return err
	}
	contentType := c.QueryParam("type")
	if contentType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "type query parameter is required")
	}
	items, err := s.svc.List(c.Request().Context(), user, contentType)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

// GetContent returns an item as the caller may see it.
// (GET /api/v1/content/:id)
func (s *Server) GetContent(c echo.Context) error {
	user, err := userID(c)
	if err != nil {
		return err
	}
	item, err := s.svc.Get(c.Request().Context(), user, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}

type updateBody struct {
	Data    content.Data   `json:"data"`
	Status  content.Status `json:"status"`
	Version int64          `json:"version"`
}

// UpdateContent replaces the data of an item.
// (PUT /api/v1/content/:id)
func (s *Server) UpdateContent(c echo.Context) error {
	user, err := userID(c)
	if err != nil {
		return err
	}
	var body updateBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	item, err := s.svc.Update(c.Request().Context(), service.UpdateRequest{
		UserID:          user,
		ID:              c.Param("id"),
		Data:            body.Data,
		Status:          body.Status,
		ExpectedVersion: body.Version,
		IdempotencyKey:  idempotencyKey(c),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}

// DeleteContent tombstones an item.
// (DELETE /api/v1/content/:id)
func (s *Server) DeleteContent(c echo.Context) error {
	user, err := userID(c)
	if err != nil {
		return err
	}
	err = s.svc.Delete(c.Request().Context(), service.DeleteRequest{
		UserID:         user,
		ID:             c.Param("id"),
		IdempotencyKey: idempotencyKey(c),
	})
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type rollbackBody struct {
	Version int64 `json:"version"`
}

// RollbackContent restores the data of a prior version as a new version.
// (POST /api/v1/content/:id/rollback)
func (s *Server) RollbackContent(c echo.Context) error {
	user, err := userID(c)
	if err != nil {
		return err
	}
	var body rollbackBody
	if err := c.Bind(&body); err != nil || body.Version < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "version must be a positive integer")
	}
	item, err := s.svc.Rollback(c.Request().Context(), service.RollbackRequest{
		UserID:         user,
		ID:             c.Param("id"),
		TargetVersion:  body.Version,
		IdempotencyKey: idempotencyKey(c),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}

// ContentHistory returns the event stream of an item.
// (GET /api/v1/content/:id/history)
func (s *Server) ContentHistory(c echo.Context) error {
	user, err := userID(c)
	if err != nil {
		return err
	}
	envs, err := s.svc.History(c.Request().Context(), user, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, envs)
}

// ContentVersion returns an item as it was at a version.
// (GET /api/v1/content/:id/versions/:version)
func (s *Server) ContentVersion(c echo.Context) error {
	user, err := userID(c)
	if err != nil {
		return err
	}
	version, err := strconv.ParseInt(c.Param("version"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "version must be an integer")
	}
	item, err := s.svc.GetVersion(c.Request().Context(), user, c.Param("id"), version)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}

// ContentExecutions returns the workflow runs triggered by an item.
// (GET /api/v1/content/:id/executions)
func (s *Server) ContentExecutions(c echo.Context) error {
	user, err := userID(c)
	if err != nil {
		return err
	}
	// Executions carry resolved parameters, so they are as visible as the item.
	if _, err := s.svc.History(c.Request().Context(), user, c.Param("id")); err != nil {
		return err
	}
	execs, err := s.svc.Executions(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, execs)
}

// ListActions returns the registered action types and their metadata.
// (GET /api/v1/actions)
func (s *Server) ListActions(c echo.Context) error {
	return c.JSON(http.StatusOK, s.svc.Actions())
}

// ListVariables returns the template variables of a content type.
// (GET /api/v1/variables/:type)
func (s *Server) ListVariables(c echo.Context) error {
	vars, err := s.svc.Variables(c.Request().Context(), c.Param("type"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, vars)
}

// ListWorkflows returns every workflow in match order.
// (GET /api/v1/workflows)
func (s *Server) ListWorkflows(c echo.Context) error {
	defs, err := s.svc.ListWorkflows(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, defs)
}

// GetWorkflow returns one workflow.
// (GET /api/v1/workflows/:id)
func (s *Server) GetWorkflow(c echo.Context) error {
	def, err := s.svc.GetWorkflow(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, def)
}

// SaveWorkflow validates and stores a workflow.
// (POST /api/v1/workflows)
func (s *Server) SaveWorkflow(c echo.Context) error {
	var def workflow.Definition
	if err := c.Bind(&def); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	saved, err := s.svc.SaveWorkflow(c.Request().Context(), def)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, saved)
}

// DeleteWorkflow removes a workflow.
// (DELETE /api/v1/workflows/:id)
func (s *Server) DeleteWorkflow(c echo.Context) error {
	if err := s.svc.DeleteWorkflow(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ValidationReport is the response of the validate endpoint.
type ValidationReport struct {
	Valid  bool                       `json:"valid"`
	Errors []workflow.ValidationError `json:"errors"`
}

// ValidateWorkflow checks a workflow without saving it.
// (POST /api/v1/workflows/validate)
func (s *Server) ValidateWorkflow(c echo.Context) error {
	var def workflow.Definition
	if err := c.Bind(&def); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	errs := s.svc.ValidateWorkflow(def)
	if errs == nil {
		errs = []workflow.ValidationError{}
	}
	return c.JSON(http.StatusOK, ValidationReport{Valid: len(errs) == 0, Errors: errs})
}

type dryRunBody struct {
	Workflow workflow.Definition `json:"workflow"`
	Sample   *content.Content    `json:"sample"`
}

// DryRunWorkflow runs an unsaved workflow against a sample without effects.
// (POST /api/v1/workflows/dry-run)
func (s *Server) DryRunWorkflow(c echo.Context) error {
	var body dryRunBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	exec, err := s.svc.DryRun(c.Request().Context(), body.Workflow, body.Sample)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, exec)
}

// ListExecutions returns every recorded workflow run.
// (GET /api/v1/executions)
func (s *Server) ListExecutions(c echo.Context) error {
	execs, err := s.svc.Executions(c.Request().Context(), "")
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, execs)
}
