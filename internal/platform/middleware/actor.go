package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/recordstore/internal/platform/phi"
)

// Actor headers set by the upstream gateway after authentication.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

// Actor attaches the calling principal to the request context so PHI access
// and erasure events are attributed. Requests without an actor id pass
// through unattributed.
func Actor() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := strings.TrimSpace(c.Request().Header.Get(HeaderActorID))
			if id == "" {
				return next(c)
			}
			a := phi.Actor{ID: id, Role: strings.TrimSpace(c.Request().Header.Get(HeaderActorRole))}
			req := c.Request()
			c.SetRequest(req.WithContext(phi.WithActor(req.Context(), a)))
			return next(c)
		}
	}
}
