package api

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const (
	sseDataPrefix = "data: "
	sseErrorEvent = "event: error\n"
	sseHeartbeat  = ": ping\n\n"
)

// streamBoard pushes the caller's board as server-sent events: once on connect and
// again after every change signal. EventSource cannot set headers, so the token may
// also be passed as ?token=.
func streamBoard(svc Service, auth Authenticator, streams Streams, logger *log.Logger, heartbeat time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if token := c.QueryParam("token"); authHeader == "" && token != "" {
			authHeader = "Bearer " + token
		}
		userID, err := auth.UserIDFromAuthHeader(authHeader)
		if err != nil {
			return writeError(c, logger, err)
		}
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		ctx := c.Request().Context()
		signals, unsubscribe := streams.Subscribe(userID)
		defer unsubscribe()

		h := c.Response().Header()
		h.Set(echo.HeaderContentType, "text/event-stream")
		h.Set(echo.HeaderCacheControl, "no-cache")
		h.Set(echo.HeaderConnection, "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		c.Response().WriteHeader(http.StatusOK)

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		entry := logger.WithField("owner", userID)
		entry.Debug("board stream opened")
		defer entry.Debug("board stream closed")

		for {
			b, err := svc.GetBoard(ctx, userID)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				entry.WithError(err).Error("load board for stream")
				writeStreamError(c, flusher)
				return nil
			}
			data, err := sonic.Marshal(b)
			if err != nil {
				entry.WithError(err).Error("encode board for stream")
				writeStreamError(c, flusher)
				return nil
			}
			frame := make([]byte, 0, len(sseDataPrefix)+len(data)+2)
			frame = append(frame, sseDataPrefix...)
			frame = append(frame, data...)
			frame = append(frame, '\n', '\n')
			if _, err := c.Response().Write(frame); err != nil {
				return nil
			}
			flusher.Flush()

		wait:
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-signals:
					break wait
				case <-ticker.C:
					if _, err := c.Response().Write([]byte(sseHeartbeat)); err != nil {
						return nil
					}
					flusher.Flush()
				}
			}
		}
	}
}

// writeStreamError tells the client the stream is ending because of a server
// failure rather than a shutdown.
func writeStreamError(c echo.Context, flusher http.Flusher) {
	data, _ := sonic.Marshal(errorResponse{Error: codeInternal, Message: "board unavailable"})
	frame := make([]byte, 0, len(sseErrorEvent)+len(sseDataPrefix)+len(data)+2)
	frame = append(frame, sseErrorEvent...)
	frame = append(frame, sseDataPrefix...)
	frame = append(frame, data...)
	frame = append(frame, '\n', '\n')
	if _, err := c.Response().Write(frame); err == nil {
		flusher.Flush()
	}
}
