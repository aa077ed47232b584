package fhir

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// SetVersionHeaders sets ETag and Last-Modified headers on the response.
func SetVersionHeaders(c echo.Context, versionID int, lastModified time.Time) {
	c.Response().Header().Set("ETag", FormatETag(versionID))
	if !lastModified.IsZero() {
		c.Response().Header().Set("Last-Modified", lastModified.UTC().Format(http.TimeFormat))
	}
}

// CheckIfMatch validates the If-Match header against the current version.
// A missing header means an unconditional update and returns nil.
func CheckIfMatch(c echo.Context, currentVersion int) error {
	ifMatch := c.Request().Header.Get("If-Match")
	if ifMatch == "" {
		return nil
	}

	expectedVersion, err := ParseETag(ifMatch)
	if err != nil {
		return Invalidf("invalid If-Match header: %v", err)
	}

	if expectedVersion != currentVersion {
		return fmt.Errorf("%w: expected version %d but resource is at version %d",
			ErrVersionConflict, expectedVersion, currentVersion)
	}
	return nil
}

// ParseETag extracts the version number from an ETag value like W/"3" or "3".
func ParseETag(etag string) (int, error) {
	etag = strings.TrimSpace(etag)
	etag = strings.TrimPrefix(etag, "W/")
	etag = strings.Trim(etag, `"`)

	v, err := strconv.Atoi(etag)
	if err != nil {
		return 0, fmt.Errorf("ETag must contain a numeric version: %s", etag)
	}
	return v, nil
}

// FormatETag creates a weak ETag from a version ID.
func FormatETag(versionID int) string {
	return fmt.Sprintf(`W/"%d"`, versionID)
}
