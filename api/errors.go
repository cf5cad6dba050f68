package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"studyboard/domain"
)

const (
	codeInvalidArgument = "invalid_argument"
	codeNotFound        = "not_found"
	codeUnauthenticated = "unauthenticated"
	codeConflict        = "conflict"
	codeInternal        = "internal"
)

// classify maps a service error to its HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, codeInvalidArgument
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, codeUnauthenticated
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, codeConflict
	}
	return http.StatusInternalServerError, codeInternal
}

// writeError renders err as the JSON error body. Internal errors are logged and
// replaced with a generic message.
func writeError(c echo.Context, logger *log.Logger, err error) error {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.WithError(err).WithField("path", c.Path()).Error("request failed")
		msg = "internal error"
	}
	return c.JSON(status, errorResponse{Error: code, Message: msg})
}

// HTTPErrorHandler renders echo errors (unknown routes, bad gzip bodies, panics)
// with the same body as handler errors.
func HTTPErrorHandler(logger *log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var he *echo.HTTPError
		if !errors.As(err, &he) {
			_ = writeError(c, logger, err)
			return
		}
		code := codeForStatus(he.Code)
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok && m != "" {
			msg = m
		}
		if he.Code >= http.StatusInternalServerError {
			logger.WithError(err).Error("request failed")
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(he.Code)
			return
		}
		_ = c.JSON(he.Code, errorResponse{Error: code, Message: msg})
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		return codeInvalidArgument
	case http.StatusNotFound:
		return codeNotFound
	case http.StatusUnauthorized:
		return codeUnauthenticated
	case http.StatusConflict:
		return codeConflict
	}
	if status >= http.StatusInternalServerError {
		return codeInternal
	}
	return strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_")
}
