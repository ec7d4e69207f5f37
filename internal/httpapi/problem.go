package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/roach88/contentflow/internal/content"
	"github.com/roach88/contentflow/internal/repository"
	"github.com/roach88/contentflow/internal/service"
)

// ProblemContentType is the media type of error responses (RFC 7807).
const ProblemContentType = "application/problem+json"

// Problem is an RFC 7807 error body.
type Problem struct {
	Type   string               `json:"type"`
	Title  string               `json:"title"`
	Status int                  `json:"status"`
	Detail string               `json:"detail,omitempty"`
	Code   string               `json:"code,omitempty"`
	Fields []content.FieldError `json:"fields,omitempty"`
}

var statusByCode = map[content.ErrorCode]int{
	content.ErrCodeValidationFailed:    http.StatusBadRequest,
	content.ErrCodePermissionDenied:    http.StatusForbidden,
	content.ErrCodeNotFound:            http.StatusNotFound,
	content.ErrCodeVersionConflict:     http.StatusPreconditionFailed,
	content.ErrCodeIdempotencyConflict: http.StatusConflict,
}

// problemFor maps an error returned by a handler to a response body.
func problemFor(err error) Problem {
	var ce *content.Error
	if errors.As(err, &ce) {
		status, ok := statusByCode[ce.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		return Problem{
			Type:   "about:blank",
			Title:  http.StatusText(status),
			Status: status,
			Detail: ce.Message,
			Code:   string(ce.Code),
			Fields: ce.Fields,
		}
	}

	var invalid *service.InvalidWorkflowError
	if errors.As(err, &invalid) {
		fields := make([]content.FieldError, len(invalid.Errors))
		for i, ve := range invalid.Errors {
			fields[i] = content.FieldError{Field: ve.Field, Message: ve.Code + ": " + ve.Message}
		}
		return Problem{
			Type:   "about:blank",
			Title:  http.StatusText(http.StatusBadRequest),
			Status: http.StatusBadRequest,
			Detail: "workflow definition is invalid",
			Code:   "INVALID_WORKFLOW",
			Fields: fields,
		}
	}

	if errors.Is(err, repository.ErrNotFound) {
		return Problem{
			Type:   "about:blank",
			Title:  http.StatusText(http.StatusNotFound),
			Status: http.StatusNotFound,
			Detail: err.Error(),
			Code:   string(content.ErrCodeNotFound),
		}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		detail, _ := he.Message.(string)
		return Problem{
			Type:   "about:blank",
			Title:  http.StatusText(he.Code),
			Status: he.Code,
			Detail: detail,
		}
	}

	return Problem{
		Type:   "about:blank",
		Title:  http.StatusText(http.StatusInternalServerError),
		Status: http.StatusInternalServerError,
	}
}

// errorHandler renders every handler error as a problem document.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	p := problemFor(err)
	if p.Status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err,
		)
	}

	c.Response().Header().Set(echo.HeaderContentType, ProblemContentType)
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(p.Status)
	} else {
		err = c.JSON(p.Status, p)
	}
	if err != nil {
		slog.Error("failed to write problem response", "error", err)
	}
}
