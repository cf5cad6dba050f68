package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const inflatedKey = "api.inflated"

// GzipRequestMiddleware inflates request bodies sent with Content-Encoding: gzip
// using echo's Decompress. A body whose gzip header cannot be read never reaches
// the handler and is rejected as an invalid argument.
func GzipRequestMiddleware() echo.MiddlewareFunc {
	decompress := middleware.Decompress()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		inflated := decompress(func(c echo.Context) error {
			c.Set(inflatedKey, true)
			return next(c)
		})
		return func(c echo.Context) error {
			err := inflated(c)
			if err == nil || c.Get(inflatedKey) != nil {
				return err
			}
			var he *echo.HTTPError
			if errors.As(err, &he) {
				return err
			}
			return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body").SetInternal(err)
		}
	}
}
