package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"studyboard/board"
	"studyboard/domain"
)

// maxBodySize bounds request bodies after gzip decoding.
const maxBodySize = 64 << 10

// Options configures Register.
type Options struct {
	Logger *log.Logger
	// Heartbeat is the interval of keep-alive comments on board streams.
	Heartbeat time.Duration
	// Health lists dependencies checked by /healthz.
	Health []Pinger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, svc Service, auth Authenticator, streams Streams, opts Options) {
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}

	e.JSONSerializer = SonicSerializer{}
	e.HTTPErrorHandler = HTTPErrorHandler(logger)

	g := e.Group("/api", GzipRequestMiddleware())
	g.GET("/board", observed(logger, "/api/board", getBoard(svc, auth, logger)))
	g.GET("/board/stream", streamBoard(svc, auth, streams, logger, heartbeat))
	g.POST("/tasks", observed(logger, "/api/tasks", createTask(svc, auth, logger)))
	g.PATCH("/tasks/:id", observed(logger, "/api/tasks/:id", updateTask(svc, auth, logger)))
	g.DELETE("/tasks/:id", observed(logger, "/api/tasks/:id", deleteTask(svc, auth, logger)))
	g.POST("/tasks/:id/move", observed(logger, "/api/tasks/:id/move", moveTask(svc, auth, logger)))
	e.GET("/healthz", healthz(opts.Health))
}

func healthz(deps []Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		for _, d := range deps {
			if err := d.Ping(ctx); err != nil {
				return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: codeInternal, Message: err.Error()})
			}
		}
		return c.NoContent(http.StatusOK)
	}
}

// authenticate resolves the caller and records auth timing.
func authenticate(c echo.Context, auth Authenticator, m *requestMetrics) (string, error) {
	start := time.Now()
	userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	m.ObserveAuth(time.Since(start))
	if err != nil {
		m.Fail("auth", err)
		if !errors.Is(err, domain.ErrUnauthenticated) {
			err = fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
		}
		return "", err
	}
	return userID, nil
}

// decodeBody reads at most maxBodySize bytes and decodes them into v, rejecting
// unknown fields. The raw bytes are returned for callers that need to inspect them.
func decodeBody(c echo.Context, v any) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable body", domain.ErrInvalidArgument)
	}
	if len(data) > maxBodySize {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", domain.ErrInvalidArgument, maxBodySize)
	}
	dec := sonic.ConfigStd.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return nil, fmt.Errorf("%w: invalid body", domain.ErrInvalidArgument)
	}
	return data, nil
}

// parseDueDate accepts RFC 3339 timestamps and plain dates.
func parseDueDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: dueDate must be RFC 3339 or YYYY-MM-DD", domain.ErrInvalidArgument)
	}
	return &t, nil
}

func getBoard(svc Service, auth Authenticator, logger *log.Logger) func(echo.Context, *requestMetrics) error {
	return func(c echo.Context, m *requestMetrics) error {
		userID, err := authenticate(c, auth, m)
		if err != nil {
			return writeError(c, logger, err)
		}
		start := time.Now()
		b, err := svc.GetBoard(c.Request().Context(), userID)
		m.ObserveStore(time.Since(start))
		if err != nil {
			m.Fail("storage", err)
			return writeError(c, logger, err)
		}
		m.SetTasks(b.Totals.All)
		return c.JSON(http.StatusOK, b)
	}
}

func createTask(svc Service, auth Authenticator, logger *log.Logger) func(echo.Context, *requestMetrics) error {
	return func(c echo.Context, m *requestMetrics) error {
		userID, err := authenticate(c, auth, m)
		if err != nil {
			return writeError(c, logger, err)
		}
		var req createTaskRequest
		if _, err := decodeBody(c, &req); err != nil {
			m.Fail("decode", err)
			return writeError(c, logger, err)
		}
		in := board.CreateInput{
			Title:       req.Title,
			Description: req.Description,
			Status:      req.Status,
			Priority:    req.Priority,
		}
		if req.DueDate != nil {
			if in.DueDate, err = parseDueDate(*req.DueDate); err != nil {
				m.Fail("decode", err)
				return writeError(c, logger, err)
			}
		}
		start := time.Now()
		task, err := svc.CreateTask(c.Request().Context(), userID, in)
		m.ObserveStore(time.Since(start))
		if err != nil {
			m.Fail("storage", err)
			return writeError(c, logger, err)
		}
		m.SetTasks(1)
		return c.JSON(http.StatusCreated, task)
	}
}

func updateTask(svc Service, auth Authenticator, logger *log.Logger) func(echo.Context, *requestMetrics) error {
	return func(c echo.Context, m *requestMetrics) error {
		userID, err := authenticate(c, auth, m)
		if err != nil {
			return writeError(c, logger, err)
		}
		var req updateTaskRequest
		raw, err := decodeBody(c, &req)
		if err != nil {
			m.Fail("decode", err)
			return writeError(c, logger, err)
		}
		// Explicit nulls clear optional fields; absent fields stay untouched.
		var present map[string]any
		if err := sonic.Unmarshal(raw, &present); err != nil {
			m.Fail("decode", err)
			return writeError(c, logger, fmt.Errorf("%w: invalid body", domain.ErrInvalidArgument))
		}
		in := board.UpdateInput{Title: req.Title, Priority: req.Priority}
		if v, ok := present["description"]; ok && v == nil {
			in.ClearDescription = true
		} else {
			in.Description = req.Description
		}
		if v, ok := present["dueDate"]; ok {
			switch {
			case v == nil:
				in.ClearDueDate = true
			case req.DueDate != nil:
				due, err := parseDueDate(*req.DueDate)
				if err != nil {
					m.Fail("decode", err)
					return writeError(c, logger, err)
				}
				if due == nil {
					in.ClearDueDate = true
				}
				in.DueDate = due
			}
		}
		start := time.Now()
		task, err := svc.UpdateTask(c.Request().Context(), userID, c.Param("id"), in)
		m.ObserveStore(time.Since(start))
		if err != nil {
			m.Fail("storage", err)
			return writeError(c, logger, err)
		}
		m.SetTasks(1)
		return c.JSON(http.StatusOK, task)
	}
}

func moveTask(svc Service, auth Authenticator, logger *log.Logger) func(echo.Context, *requestMetrics) error {
	return func(c echo.Context, m *requestMetrics) error {
		userID, err := authenticate(c, auth, m)
		if err != nil {
			return writeError(c, logger, err)
		}
		var req moveTaskRequest
		if _, err := decodeBody(c, &req); err != nil {
			m.Fail("decode", err)
			return writeError(c, logger, err)
		}
		if req.ToIndex == nil {
			err := fmt.Errorf("%w: toIndex is required", domain.ErrInvalidArgument)
			m.Fail("decode", err)
			return writeError(c, logger, err)
		}
		start := time.Now()
		task, err := svc.MoveTask(c.Request().Context(), userID, board.MoveRequest{
			TaskID:   c.Param("id"),
			ToStatus: req.ToStatus,
			ToIndex:  *req.ToIndex,
		})
		m.ObserveStore(time.Since(start))
		if err != nil {
			m.Fail("storage", err)
			return writeError(c, logger, err)
		}
		m.SetTasks(1)
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(svc Service, auth Authenticator, logger *log.Logger) func(echo.Context, *requestMetrics) error {
	return func(c echo.Context, m *requestMetrics) error {
		userID, err := authenticate(c, auth, m)
		if err != nil {
			return writeError(c, logger, err)
		}
		start := time.Now()
		err = svc.DeleteTask(c.Request().Context(), userID, c.Param("id"))
		m.ObserveStore(time.Since(start))
		if err != nil {
			m.Fail("storage", err)
			return writeError(c, logger, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
