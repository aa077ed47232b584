// Package fhirtest is a harness for driving resource providers over HTTP
// without a database. A domain test embeds ProviderSuite, mounts its
// provider in SetupTest and exercises it with the request helpers.
package fhirtest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"github.com/emr/fhir2/internal/platform/fhir"
	"github.com/emr/fhir2/pkg/pagination"
)

// BaseURL is the FHIR base every suite serves.
const BaseURL = "http://localhost/fhir"

const basePath = "/fhir"

// ProviderSuite holds an in-memory FHIR server. Versions and Paging are
// recreated by Mount so each test starts clean.
type ProviderSuite struct {
	suite.Suite

	Echo     *echo.Echo
	Registry *fhir.Registry
	Versions *fhir.VersionTracker
	Paging   *fhir.MemoryPagingStore
	Limits   pagination.Limits
}

// Mount builds the server. register adds providers to the registry and may
// mount extra routes, such as operations, on the FHIR group.
func (s *ProviderSuite) Mount(register func(reg *fhir.Registry, g *echo.Group)) {
	if s.Limits.Default == 0 {
		s.Limits = pagination.Limits{Default: 10, Max: 50}
	}
	s.Versions = fhir.NewVersionTracker(fhir.NewMemoryHistoryStore())
	s.Paging = fhir.NewMemoryPagingStore(0)

	e := echo.New()
	e.HTTPErrorHandler = fhir.OutcomeErrorHandler(basePath, e.DefaultHTTPErrorHandler)
	g := e.Group(basePath, fhir.ContentNegotiation())

	s.Registry = fhir.NewRegistry(fhir.ProviderOptions{
		BaseURL:  BaseURL,
		Versions: s.Versions,
		Paging:   s.Paging,
		Limits:   s.Limits,
		Logger:   zerolog.Nop(),
	}, "test")
	register(s.Registry, g)
	s.Registry.RegisterRoutes(g, nil, nil)
	s.Echo = e
}

// Do sends a request to path, which is relative to the FHIR base. headers
// are key, value pairs.
func (s *ProviderSuite) Do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, basePath+path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, "application/fhir+json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

func (s *ProviderSuite) Get(path string, headers ...string) *httptest.ResponseRecorder {
	return s.Do(http.MethodGet, path, "", headers...)
}

// Post creates resource, given either as a JSON string or as a value to
// marshal.
func (s *ProviderSuite) Post(path string, resource interface{}, headers ...string) *httptest.ResponseRecorder {
	return s.Do(http.MethodPost, path, s.encode(resource), headers...)
}

func (s *ProviderSuite) Put(path string, resource interface{}, headers ...string) *httptest.ResponseRecorder {
	return s.Do(http.MethodPut, path, s.encode(resource), headers...)
}

// Patch sends body with the given patch media type.
func (s *ProviderSuite) Patch(path, contentType, body string, headers ...string) *httptest.ResponseRecorder {
	return s.Do(http.MethodPatch, path, body, append([]string{echo.HeaderContentType, contentType}, headers...)...)
}

func (s *ProviderSuite) Delete(path string) *httptest.ResponseRecorder {
	return s.Do(http.MethodDelete, path, "")
}

// Create posts resource and returns the id assigned by the server.
func (s *ProviderSuite) Create(resourceType string, resource interface{}) string {
	rec := s.Post("/"+resourceType, resource)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	id, _ := s.ReadResource(rec)["id"].(string)
	s.Require().NotEmpty(id, "created resource has no id")
	return id
}

// ReadResource decodes a resource body.
func (s *ProviderSuite) ReadResource(rec *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// ReadBundle decodes a Bundle body.
func (s *ProviderSuite) ReadBundle(rec *httptest.ResponseRecorder) *fhir.Bundle {
	var b fhir.Bundle
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &b), rec.Body.String())
	s.Require().Equal("Bundle", b.ResourceType)
	return &b
}

// ReadOutcome decodes an OperationOutcome body.
func (s *ProviderSuite) ReadOutcome(rec *httptest.ResponseRecorder) *fhir.OperationOutcome {
	var o fhir.OperationOutcome
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &o), rec.Body.String())
	s.Require().Equal("OperationOutcome", o.ResourceType)
	s.Require().NotEmpty(o.Issue)
	return &o
}

// EntryResources returns the resources of a bundle's entries. Entries
// without a resource, such as history deletes, yield nil.
func (s *ProviderSuite) EntryResources(b *fhir.Bundle) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(b.Entry))
	for _, e := range b.Entry {
		var m map[string]interface{}
		if len(e.Resource) == 0 {
			out = append(out, nil)
			continue
		}
		s.Require().NoError(json.Unmarshal(e.Resource, &m))
		out = append(out, m)
	}
	return out
}

// EntryIDs returns the ids of a bundle's entry resources in order.
func (s *ProviderSuite) EntryIDs(b *fhir.Bundle) []string {
	res := s.EntryResources(b)
	ids := make([]string, len(res))
	for i, r := range res {
		ids[i], _ = r["id"].(string)
	}
	return ids
}

// Follow turns an absolute bundle link into a path for Get.
func (s *ProviderSuite) Follow(link string) string {
	u, err := url.Parse(link)
	s.Require().NoError(err)
	path := strings.TrimPrefix(u.Path, basePath)
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path
}

// AllPages follows next links from the first page and returns every entry
// id. It fails after limit pages.
func (s *ProviderSuite) AllPages(first string, limit int) []string {
	var ids []string
	path := first
	for i := 0; path != ""; i++ {
		s.Require().Less(i, limit, "too many pages")
		rec := s.Get(path)
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
		b := s.ReadBundle(rec)
		ids = append(ids, s.EntryIDs(b)...)
		path = ""
		if next := b.LinkURL("next"); next != "" {
			path = s.Follow(next)
		}
	}
	return ids
}

// RequireStatus fails the test when rec does not have status code.
func (s *ProviderSuite) RequireStatus(rec *httptest.ResponseRecorder, code int) {
	s.Require().Equal(code, rec.Code, rec.Body.String())
}

func (s *ProviderSuite) encode(resource interface{}) string {
	if str, ok := resource.(string); ok {
		return str
	}
	data, err := json.Marshal(resource)
	s.Require().NoError(err)
	return string(data)
}
