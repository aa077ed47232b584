package fhir

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func conditionalContext(headers map[string]string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/fhir/Patient/1", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return e.NewContext(req, httptest.NewRecorder())
}

func TestNotModified(t *testing.T) {
	updated := time.Date(2024, 1, 15, 10, 30, 0, 500, time.UTC)

	tests := []struct {
		name    string
		headers map[string]string
		want    bool
	}{
		{"no headers", nil, false},
		{"matching etag", map[string]string{"If-None-Match": `W/"5"`}, true},
		{"strong etag matches weak", map[string]string{"If-None-Match": `"5"`}, true},
		{"stale etag", map[string]string{"If-None-Match": `W/"4"`}, false},
		{"etag list", map[string]string{"If-None-Match": `W/"3", W/"5"`}, true},
		{"wildcard", map[string]string{"If-None-Match": "*"}, true},
		{"garbage etag", map[string]string{"If-None-Match": `W/"abc"`}, false},
		{"not modified since", map[string]string{"If-Modified-Since": "Mon, 15 Jan 2024 10:30:00 GMT"}, true},
		{"modified since", map[string]string{"If-Modified-Since": "Mon, 15 Jan 2024 10:29:59 GMT"}, false},
		{"unparseable date", map[string]string{"If-Modified-Since": "yesterday"}, false},
		{
			"etag wins over date",
			map[string]string{"If-None-Match": `W/"4"`, "If-Modified-Since": "Mon, 15 Jan 2024 10:30:00 GMT"},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := conditionalContext(tt.headers)
			if got := NotModified(c, 5, updated); got != tt.want {
				t.Errorf("NotModified() = %v, want %v", got, tt.want)
			}
		})
	}
}
