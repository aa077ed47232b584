package fhir

import (
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
)

// FHIRContentType is the FHIR JSON content type with charset.
const FHIRContentType = "application/fhir+json; charset=utf-8"

// ContentNegotiation rejects requests that ask for a representation other
// than JSON. _format takes precedence over Accept.
func ContentNegotiation() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if format := c.QueryParam("_format"); format != "" {
				if !isJSONFormat(format) {
					return WriteFHIR(c, http.StatusNotAcceptable,
						NotSupportedOutcome("unsupported _format "+format+", only JSON is served"))
				}
				return next(c)
			}
			if accept := c.Request().Header.Get(echo.HeaderAccept); accept != "" && !acceptsJSON(accept) {
				return WriteFHIR(c, http.StatusNotAcceptable,
					NotSupportedOutcome("Accept does not allow application/fhir+json"))
			}
			return next(c)
		}
	}
}

// WriteFHIR writes v as application/fhir+json.
func WriteFHIR(c echo.Context, status int, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Blob(status, FHIRContentType, data)
}

// normalizeFormat restores the "+" that query decoding turns into a space.
func normalizeFormat(raw string) string {
	f := strings.TrimSpace(strings.ToLower(raw))
	return strings.ReplaceAll(f, "fhir json", "fhir+json")
}

func isJSONFormat(format string) bool {
	switch normalizeFormat(format) {
	case "json", "application/json", "application/fhir+json":
		return true
	}
	return false
}

func acceptsJSON(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(part, ";", 2)[0]))
		switch mediaType {
		case "application/fhir+json", "application/json", "application/*", "*/*":
			return true
		}
	}
	return false
}
