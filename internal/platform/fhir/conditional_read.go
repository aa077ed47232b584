package fhir

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// NotModified reports whether a conditional read may be answered with 304.
// If-None-Match wins over If-Modified-Since when both are present.
func NotModified(c echo.Context, versionID int, lastUpdated time.Time) bool {
	req := c.Request()
	if inm := req.Header.Get("If-None-Match"); inm != "" {
		return etagsMatch(inm, FormatETag(versionID))
	}
	if ims := req.Header.Get("If-Modified-Since"); ims != "" && !lastUpdated.IsZero() {
		return !modifiedSince(lastUpdated, ims)
	}
	return false
}

// etagsMatch compares an If-None-Match value with a response ETag using weak
// comparison. The value may be a list ("W/\"1\", W/\"2\"") or "*".
func etagsMatch(ifNoneMatch, responseETag string) bool {
	if strings.TrimSpace(ifNoneMatch) == "*" {
		return true
	}
	serverVersion, err := ParseETag(responseETag)
	if err != nil {
		return false
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		v, err := ParseETag(candidate)
		if err == nil && v == serverVersion {
			return true
		}
	}
	return false
}

var modifiedSinceFormats = []string{
	http.TimeFormat,
	time.RFC3339,
	time.RFC1123Z,
}

// modifiedSince returns true if lastUpdated is after the client's
// If-Modified-Since time. An unparseable header counts as modified.
// HTTP dates carry whole seconds, so lastUpdated is truncated first.
func modifiedSince(lastUpdated time.Time, ifModifiedSince string) bool {
	for _, f := range modifiedSinceFormats {
		t, err := time.Parse(f, strings.TrimSpace(ifModifiedSince))
		if err == nil {
			return lastUpdated.Truncate(time.Second).After(t)
		}
	}
	return true
}
