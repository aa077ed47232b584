package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Recovery converts a handler panic into a 500 error, which the FHIR error
// handler renders as an OperationOutcome. It logs through the request scoped
// logger when Logger runs before it, falling back to logger.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}

				l := zerolog.Ctx(c.Request().Context())
				if l.GetLevel() == zerolog.Disabled {
					l = &logger
				}
				l.Error().
					Str("route", c.Path()).
					Str("method", c.Request().Method).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")

				err = &echo.HTTPError{
					Code:     http.StatusInternalServerError,
					Message:  "internal server error",
					Internal: fmt.Errorf("panic: %v", r),
				}
			}()
			return next(c)
		}
	}
}
