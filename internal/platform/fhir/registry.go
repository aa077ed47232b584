package fhir

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// Registry owns the providers mounted under the FHIR base path together
// with the server level endpoints: /metadata and paging replay.
type Registry struct {
	opts         ProviderOptions
	providers    map[string]*Provider
	capabilities *CapabilityBuilder
}

// NewRegistry creates a registry whose providers share opts.
func NewRegistry(opts ProviderOptions, version string) *Registry {
	return &Registry{
		opts:         opts,
		providers:    make(map[string]*Provider),
		capabilities: NewCapabilityBuilder(opts.BaseURL, version),
	}
}

// Register creates the provider for svc and records it in the
// CapabilityStatement.
func (r *Registry) Register(svc ResourceService) *Provider {
	p := NewProvider(svc, r.opts)
	r.providers[svc.ResourceType()] = p

	var params map[string]SearchParamConfig
	if src, ok := svc.(SearchParamSource); ok {
		params = src.SearchParams()
	}
	r.capabilities.AddResource(svc.ResourceType(), p.Interactions(), params)
	return p
}

// Provider returns the provider for a resource type.
func (r *Registry) Provider(resourceType string) (*Provider, bool) {
	p, ok := r.providers[resourceType]
	return p, ok
}

// Capabilities exposes the builder so operations can be advertised.
func (r *Registry) Capabilities() *CapabilityBuilder { return r.capabilities }

// RegisterRoutes mounts /metadata, the paging endpoint and every provider.
func (r *Registry) RegisterRoutes(g *echo.Group, read, write []echo.MiddlewareFunc) {
	g.GET("/metadata", r.capabilities.Handler())
	g.GET("", r.GetPages, read...)
	g.GET("/", r.GetPages, read...)
	for _, rt := range r.capabilities.ResourceTypes() {
		if p, ok := r.providers[rt]; ok {
			p.RegisterRoutes(g, read, write)
		}
	}
}

// GetPages replays a stored search:
// GET [base]?_getpages={id}&_getpagesoffset={n}&_count={c}
func (r *Registry) GetPages(c echo.Context) error {
	id := c.QueryParam("_getpages")
	if id == "" {
		return WriteFHIR(c, http.StatusBadRequest, ValidationOutcome("_getpages is required"))
	}
	if r.opts.Paging == nil {
		return WriteFHIR(c, http.StatusGone, NewOperationOutcome(IssueSeverityError, IssueTypeNotFound,
			"search "+id+" is not known"))
	}

	offset, err := nonNegative(c.QueryParam("_getpagesoffset"))
	if err != nil {
		return WriteFHIR(c, http.StatusBadRequest, ValidationOutcome("invalid _getpagesoffset: "+err.Error()))
	}
	count, err := nonNegative(c.QueryParam("_count"))
	if err != nil {
		return WriteFHIR(c, http.StatusBadRequest, ValidationOutcome("invalid _count: "+err.Error()))
	}
	if max := r.opts.Limits.Max; max > 0 && count > max {
		count = max
	}

	req, err := r.opts.Paging.Load(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrGone) {
			return WriteFHIR(c, http.StatusGone, NewOperationOutcome(IssueSeverityError, IssueTypeNotFound,
				"search "+id+" is not known or has expired"))
		}
		r.opts.Logger.Error().Err(err).Str("search_id", id).Msg("failed to load stored search")
		return WriteFHIR(c, http.StatusInternalServerError, InternalErrorOutcome(err.Error()))
	}

	if r.opts.Authorize != nil {
		if err := r.opts.Authorize(c.Request().Context(), req.ResourceType, "read"); err != nil {
			return err
		}
	}

	p, ok := r.providers[req.ResourceType]
	if !ok {
		return WriteFHIR(c, http.StatusGone, NewOperationOutcome(IssueSeverityError, IssueTypeNotFound,
			"search "+id+" refers to an unknown resource type"))
	}
	return p.RespondSearch(c, req.Page(offset, count), id)
}

func nonNegative(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("must not be negative")
	}
	return n, nil
}

// OutcomeErrorHandler renders errors for paths under prefix as an
// OperationOutcome and delegates the rest to fallback.
func OutcomeErrorHandler(prefix string, fallback echo.HTTPErrorHandler) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		if !strings.HasPrefix(c.Request().URL.Path, prefix) {
			fallback(err, c)
			return
		}

		status := http.StatusInternalServerError
		message := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if m, ok := he.Message.(string); ok {
				message = m
			}
		}

		var outcome *OperationOutcome
		switch status {
		case http.StatusNotFound:
			outcome = NewOperationOutcome(IssueSeverityError, IssueTypeNotFound, message)
		case http.StatusMethodNotAllowed:
			outcome = NotSupportedOutcome(message)
		case http.StatusUnauthorized, http.StatusForbidden:
			outcome = NewOperationOutcome(IssueSeverityError, IssueTypeSecurity, message)
		case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
			outcome = ValidationOutcome(message)
		default:
			if status < http.StatusInternalServerError {
				outcome = ErrorOutcome(message)
			} else {
				outcome = InternalErrorOutcome(message)
			}
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = WriteFHIR(c, status, outcome)
	}
}
