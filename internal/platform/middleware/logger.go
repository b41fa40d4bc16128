package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Logger logs one line per request. Probe endpoints (health, metrics) log at
// debug so scrapes do not flood the output.
func Logger(logger zerolog.Logger, quiet ...string) echo.MiddlewareFunc {
	skip := make(map[string]bool, len(quiet))
	for _, p := range quiet {
		skip[p] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			err := next(c)

			evt := logger.Info()
			switch {
			case err != nil:
				evt = logger.Error().Err(err)
			case skip[req.URL.Path]:
				evt = logger.Debug()
			}
			evt.
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Msg("request")
			return err
		}
	}
}
