package fhir

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/emr/fhir2/pkg/pagination"
)

// DomainResource is a stored row that can render itself as FHIR.
type DomainResource interface {
	ResourceID() string
	GetVersionID() int
	LastUpdated() time.Time
	ToFHIR() map[string]interface{}
}

// ResourceService is what a domain package implements to be served by a
// Provider. Read returns ErrNotFound for unknown ids and ErrGone for voided
// ones. Create and Update receive the FHIR JSON body and return ErrInvalid
// wrapped errors for bad input. Delete of an already voided resource succeeds.
type ResourceService interface {
	ResourceType() string
	Read(ctx context.Context, id string) (DomainResource, error)
	Create(ctx context.Context, resource map[string]interface{}) (DomainResource, error)
	Update(ctx context.Context, id string, resource map[string]interface{}) (DomainResource, error)
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, req *SearchRequest) ([]DomainResource, int, error)
}

// SearchParamSource is implemented by services that publish their search
// parameters in the CapabilityStatement.
type SearchParamSource interface {
	SearchParams() map[string]SearchParamConfig
}

// ProviderOptions configures a Provider.
type ProviderOptions struct {
	BaseURL   string // e.g. http://localhost:8000/fhir
	Versions  *VersionTracker
	Paging    PagingStore
	Limits    pagination.Limits
	Logger    zerolog.Logger
	// Authorize, when set, is consulted by paging replay once the stored
	// search reveals its resource type.
	Authorize func(ctx context.Context, resourceType, operation string) error
}

// Provider serves the instance and type level interactions of one resource
// type on top of a ResourceService.
type Provider struct {
	svc  ResourceService
	opts ProviderOptions
}

// NewProvider creates a provider for svc.
func NewProvider(svc ResourceService, opts ProviderOptions) *Provider {
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	if opts.Limits.Default == 0 {
		opts.Limits = pagination.DefaultLimits
	}
	return &Provider{svc: svc, opts: opts}
}

// ResourceType returns the served resource type.
func (p *Provider) ResourceType() string { return p.svc.ResourceType() }

// Service returns the underlying service.
func (p *Provider) Service() ResourceService { return p.svc }

// RegisterRoutes mounts the interactions on g. read guards the read and
// search routes, write guards the mutating ones.
func (p *Provider) RegisterRoutes(g *echo.Group, read, write []echo.MiddlewareFunc) {
	rt := "/" + p.ResourceType()

	g.GET(rt, p.Search, read...)
	g.POST(rt+"/_search", p.Search, read...)
	g.GET(rt+"/:id", p.Read, read...)
	g.GET(rt+"/:id/_history", p.History, read...)
	g.GET(rt+"/:id/_history/:vid", p.VRead, read...)

	g.POST(rt, p.Create, write...)
	g.PUT(rt+"/:id", p.Update, write...)
	g.PATCH(rt+"/:id", p.Patch, write...)
	g.DELETE(rt+"/:id", p.Delete, write...)
}

// Interactions lists the CapabilityStatement interaction codes served.
func (p *Provider) Interactions() []string {
	out := []string{"read", "search-type", "create", "update", "patch", "delete"}
	if p.opts.Versions != nil {
		out = append(out, "vread", "history-instance")
	}
	return out
}

func (p *Provider) Read(c echo.Context) error {
	id := c.Param("id")
	res, err := p.svc.Read(c.Request().Context(), id)
	if err != nil {
		return p.fail(c, err, id)
	}
	if NotModified(c, res.GetVersionID(), res.LastUpdated()) {
		SetVersionHeaders(c, res.GetVersionID(), res.LastUpdated())
		return c.NoContent(http.StatusNotModified)
	}
	SetVersionHeaders(c, res.GetVersionID(), res.LastUpdated())
	return WriteFHIR(c, http.StatusOK, res.ToFHIR())
}

func (p *Provider) VRead(c echo.Context) error {
	id := c.Param("id")
	vid, err := strconv.Atoi(c.Param("vid"))
	if err != nil || vid < 1 {
		return p.fail(c, Invalidf("invalid version id %q", c.Param("vid")), id)
	}

	ctx := c.Request().Context()
	if p.opts.Versions == nil {
		res, err := p.svc.Read(ctx, id)
		if err != nil {
			return p.fail(c, err, id)
		}
		if res.GetVersionID() != vid {
			return p.fail(c, ErrNotFound, id+"/_history/"+c.Param("vid"))
		}
		SetVersionHeaders(c, vid, res.LastUpdated())
		return WriteFHIR(c, http.StatusOK, res.ToFHIR())
	}

	entry, err := p.opts.Versions.GetVersion(ctx, p.ResourceType(), id, vid)
	if err != nil {
		return p.fail(c, err, id+"/_history/"+c.Param("vid"))
	}
	if entry.Action == ActionDelete {
		return p.fail(c, ErrGone, id)
	}
	SetVersionHeaders(c, entry.VersionID, entry.Timestamp)
	return c.Blob(http.StatusOK, FHIRContentType, entry.Resource)
}

func (p *Provider) History(c echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()
	page, err := pagination.Parse(c.QueryParams(), p.opts.Limits)
	if err != nil {
		return p.fail(c, Invalidf("%v", err), id)
	}

	var entries []*HistoryEntry
	var total int
	if p.opts.Versions != nil {
		entries, total, err = p.opts.Versions.ListVersions(ctx, p.ResourceType(), id, page.Limit, page.Offset)
		if err != nil {
			return p.fail(c, err, id)
		}
	}
	if total == 0 {
		// No recorded history: the current version is the only one.
		res, err := p.svc.Read(ctx, id)
		if err != nil {
			return p.fail(c, err, id)
		}
		raw, err := json.Marshal(res.ToFHIR())
		if err != nil {
			return p.fail(c, err, id)
		}
		entries = []*HistoryEntry{{
			ResourceType: p.ResourceType(),
			ResourceID:   id,
			VersionID:    res.GetVersionID(),
			Resource:     raw,
			Action:       ActionCreate,
			Timestamp:    res.LastUpdated(),
		}}
		total = 1
	}

	bundle := NewHistoryBundle(entries, total, p.opts.BaseURL)
	bundle.Link = []BundleLink{{Relation: "self", URL: p.requestURL(c)}}
	return WriteFHIR(c, http.StatusOK, bundle)
}

func (p *Provider) Create(c echo.Context) error {
	body, err := p.readResource(c)
	if err != nil {
		return p.fail(c, err, "")
	}
	res, err := p.svc.Create(c.Request().Context(), body)
	if err != nil {
		return p.fail(c, err, "")
	}

	c.Response().Header().Set(echo.HeaderLocation, p.versionURL(res))
	SetVersionHeaders(c, res.GetVersionID(), res.LastUpdated())
	return p.respondWrite(c, http.StatusCreated, res, "created")
}

func (p *Provider) Update(c echo.Context) error {
	id := c.Param("id")
	body, err := p.readResource(c)
	if err != nil {
		return p.fail(c, err, id)
	}
	bodyID, _ := body["id"].(string)
	if bodyID == "" {
		return p.fail(c, fmt.Errorf("%w: resource body must contain an id", ErrIDMismatch), id)
	}
	if bodyID != id {
		return p.fail(c, fmt.Errorf("%w: body id %q does not match URL id %q", ErrIDMismatch, bodyID, id), id)
	}
	return p.update(c, id, body)
}

func (p *Provider) Patch(c echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return p.fail(c, Invalidf("failed to read request body"), id)
	}

	current, err := p.svc.Read(ctx, id)
	if err != nil {
		return p.fail(c, err, id)
	}
	patched, err := ApplyPatch(current.ToFHIR(), c.Request().Header.Get(echo.HeaderContentType), body)
	if err != nil {
		return p.fail(c, err, id)
	}
	patched["id"] = id
	return p.update(c, id, patched)
}

// update checks If-Match against the stored version and applies body.
func (p *Provider) update(c echo.Context, id string, body map[string]interface{}) error {
	ctx := c.Request().Context()
	if c.Request().Header.Get("If-Match") != "" {
		current, err := p.svc.Read(ctx, id)
		if err != nil {
			return p.fail(c, err, id)
		}
		if err := CheckIfMatch(c, current.GetVersionID()); err != nil {
			return p.fail(c, err, id)
		}
	}

	res, err := p.svc.Update(ctx, id, body)
	if err != nil {
		return p.fail(c, err, id)
	}
	c.Response().Header().Set("Content-Location", p.versionURL(res))
	SetVersionHeaders(c, res.GetVersionID(), res.LastUpdated())
	return p.respondWrite(c, http.StatusOK, res, "updated")
}

func (p *Provider) Delete(c echo.Context) error {
	id := c.Param("id")
	if err := p.svc.Delete(c.Request().Context(), id); err != nil {
		return p.fail(c, err, id)
	}
	return WriteFHIR(c, http.StatusOK,
		InformationOutcome(fmt.Sprintf("Successfully deleted %s/%s", p.ResourceType(), id)))
}

// Search runs a type level search from the query string, and for
// POST _search from the form body as well.
func (p *Provider) Search(c echo.Context) error {
	query := url.Values{}
	for k, v := range c.QueryParams() {
		query[k] = append(query[k], v...)
	}
	if c.Request().Method == http.MethodPost {
		form, err := c.FormParams()
		if err != nil {
			return p.fail(c, Invalidf("invalid form body: %v", err), "")
		}
		for k, v := range form {
			if _, inQuery := c.QueryParams()[k]; !inQuery {
				query[k] = append(query[k], v...)
			}
		}
	}

	req, err := ParseSearchRequest(p.ResourceType(), query, p.opts.Limits)
	if err != nil {
		return p.fail(c, err, "")
	}
	return p.RespondSearch(c, req, "")
}

// RespondSearch executes req and writes the searchset. pageID is the paging
// store id when req is a replayed page; a new search is stored when it spans
// more than one page.
func (p *Provider) RespondSearch(c echo.Context, req *SearchRequest, pageID string) error {
	ctx := c.Request().Context()
	results, total, err := p.svc.Search(ctx, req)
	if err != nil {
		return p.fail(c, err, "")
	}

	self := p.searchURL(req)
	if req.CountOnly() {
		return WriteFHIR(c, http.StatusOK, NewCountBundle(total, self))
	}

	if pageID == "" && p.opts.Paging != nil && total > req.Count {
		id, err := p.opts.Paging.Save(ctx, req)
		if err != nil {
			// Offset links still work without the store.
			p.opts.Logger.Warn().Err(err).Str("resource_type", p.ResourceType()).Msg("failed to store search for paging")
		} else {
			pageID = id
		}
	}

	resources := make([]interface{}, len(results))
	for i, r := range results {
		resources[i] = r.ToFHIR()
	}
	bundle := NewSearchBundle(resources, SearchBundleParams{
		BaseURL:      p.opts.BaseURL,
		ResourceType: p.ResourceType(),
		SelfURL:      self,
		Query:        req.Query(),
		Count:        req.Count,
		Offset:       req.Offset,
		Total:        total,
		PageID:       pageID,
	})
	return WriteFHIR(c, http.StatusOK, bundle)
}

// RespondOperation writes the outcome of a resource-level operation that
// yields a list of resources: err as an OperationOutcome, otherwise a
// searchset paged in memory with _count and _offset.
func (p *Provider) RespondOperation(c echo.Context, results []DomainResource, err error) error {
	if err != nil {
		return p.fail(c, err, "")
	}
	page, err := pagination.Parse(c.QueryParams(), p.opts.Limits)
	if err != nil {
		return p.fail(c, Invalidf("%v", err), "")
	}

	total := len(results)
	start := min(page.Offset, total)
	end := min(start+page.Limit, total)
	resources := make([]interface{}, 0, end-start)
	for _, r := range results[start:end] {
		resources = append(resources, r.ToFHIR())
	}

	query := url.Values{}
	for k, v := range c.QueryParams() {
		if !controlParams[k] {
			query[k] = v
		}
	}
	var operation string
	if last := path.Base(c.Request().URL.Path); strings.HasPrefix(last, "$") {
		operation = last
	}

	bundle := NewSearchBundle(resources, SearchBundleParams{
		BaseURL:      p.opts.BaseURL,
		ResourceType: p.ResourceType(),
		Operation:    operation,
		SelfURL:      p.requestURL(c),
		Query:        query,
		Count:        page.Limit,
		Offset:       page.Offset,
		Total:        total,
	})
	return WriteFHIR(c, http.StatusOK, bundle)
}

// readResource decodes the body and checks its resourceType.
func (p *Provider) readResource(c echo.Context) (map[string]interface{}, error) {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, Invalidf("failed to read request body")
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, Invalidf("request body is empty")
	}
	var body map[string]interface{}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, Invalidf("request body is not a JSON object: %v", err)
	}
	rt, _ := body["resourceType"].(string)
	if rt != p.ResourceType() {
		return nil, Invalidf("expected resourceType %s, got %q", p.ResourceType(), rt)
	}
	return body, nil
}

func (p *Provider) respondWrite(c echo.Context, status int, res DomainResource, verb string) error {
	switch ParsePreferReturn(c.Request().Header.Get("Prefer")) {
	case ReturnMinimal:
		return c.NoContent(status)
	case ReturnOperationOutcome:
		return WriteFHIR(c, status, InformationOutcome(
			fmt.Sprintf("Successfully %s %s/%s", verb, p.ResourceType(), res.ResourceID())))
	default:
		return WriteFHIR(c, status, res.ToFHIR())
	}
}

func (p *Provider) fail(c echo.Context, err error, id string) error {
	status, outcome := ErrorStatus(err, p.ResourceType(), id)
	if status >= http.StatusInternalServerError {
		p.opts.Logger.Error().Err(err).
			Str("resource_type", p.ResourceType()).
			Str("id", id).
			Msg("fhir interaction failed")
	}
	return WriteFHIR(c, status, outcome)
}

func (p *Provider) versionURL(res DomainResource) string {
	return fmt.Sprintf("%s/%s/%s/_history/%d", p.opts.BaseURL, p.ResourceType(), res.ResourceID(), res.GetVersionID())
}

func (p *Provider) searchURL(req *SearchRequest) string {
	q := req.Query()
	q.Set("_count", strconv.Itoa(req.Count))
	if req.Offset > 0 {
		q.Set("_offset", strconv.Itoa(req.Offset))
	}
	return fmt.Sprintf("%s/%s?%s", p.opts.BaseURL, p.ResourceType(), q.Encode())
}

// requestURL is the absolute URL of the current request under BaseURL.
func (p *Provider) requestURL(c echo.Context) string {
	base, err := url.Parse(p.opts.BaseURL)
	if err != nil || base.Host == "" {
		return c.Request().URL.String()
	}
	return base.Scheme + "://" + base.Host + c.Request().URL.RequestURI()
}
