package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Roles allowed to read and to write clinical data.
var (
	ReadRoles  = []string{"clinician", "nurse", "registrar", "reader"}
	WriteRoles = []string{"clinician", "nurse", "registrar"}
)

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			for _, required := range roles {
				for _, has := range userRoles {
					if has == required || has == "admin" {
						return next(c)
					}
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// RequireResourceScope checks a SMART style scope for the resource type the
// matched route serves, e.g. "user/Patient.read" for GET /fhir/Patient/:id.
// Routes that do not name a resource type pass through.
func RequireResourceScope(prefix, operation string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			resource := resourceFromRoute(prefix, c.Path())
			if resource == "" {
				return next(c)
			}
			if err := CheckResourceScope(c.Request().Context(), resource, operation); err != nil {
				return err
			}
			return next(c)
		}
	}
}

// CheckResourceScope returns a 403 error unless the caller holds a scope
// granting operation on resourceType. Handlers that learn the resource type
// only after routing, such as paging replay, call it directly.
func CheckResourceScope(ctx context.Context, resourceType, operation string) error {
	required := fmt.Sprintf("%s.%s", resourceType, operation)
	for _, scope := range ScopesFromContext(ctx) {
		if matchScope(scope, required) {
			return nil
		}
	}
	return echo.NewHTTPError(http.StatusForbidden,
		fmt.Sprintf("required scope: %s", required))
}

// resourceFromRoute returns the first path segment after prefix when it
// looks like a resource type.
func resourceFromRoute(prefix, route string) string {
	rest := strings.TrimPrefix(strings.TrimPrefix(route, prefix), "/")
	seg := strings.SplitN(rest, "/", 2)[0]
	if seg == "" || seg[0] < 'A' || seg[0] > 'Z' {
		return ""
	}
	return seg
}

// matchScope checks if a granted scope covers the required scope.
// "user/*.*" matches everything, "patient/*.read" any read, and
// "user/Patient.write" writes on Patient.
func matchScope(granted, required string) bool {
	if granted == required {
		return true
	}

	gParts := strings.SplitN(granted, ".", 2)
	rParts := strings.SplitN(required, ".", 2)
	if len(gParts) != 2 || len(rParts) != 2 {
		return false
	}

	gRes, gOp := gParts[0], gParts[1]
	rRes, rOp := rParts[0], rParts[1]
	if i := strings.IndexByte(gRes, '/'); i >= 0 {
		gRes = gRes[i+1:]
	}

	resMatch := gRes == rRes || gRes == "*"
	opMatch := gOp == rOp || gOp == "*"
	return resMatch && opMatch
}
