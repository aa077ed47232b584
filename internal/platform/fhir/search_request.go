package fhir

import (
	"net/url"
	"strings"

	"github.com/emr/fhir2/pkg/pagination"
)

// Summary modes accepted in _summary.
const (
	SummaryCount = "count"
)

var validSummaries = map[string]bool{
	"true": true, "false": true, "text": true, "data": true, SummaryCount: true,
}

// controlParams are result parameters handled by the server rather than
// translated into SQL.
var controlParams = map[string]bool{
	"_count": true, "_offset": true, "_sort": true, "_summary": true,
	"_format": true, "_pretty": true, "_elements": true, "_total": true,
	"_getpages": true, "_getpagesoffset": true, "_bundletype": true,
}

// SearchRequest is a normalized type-level search. It is what the paging
// store persists, so it must stay JSON-serializable.
type SearchRequest struct {
	ResourceType string     `json:"resourceType"`
	Params       url.Values `json:"params,omitempty"`
	Sort         string     `json:"sort,omitempty"`
	Count        int        `json:"count"`
	Offset       int        `json:"offset"`
	Summary      string     `json:"summary,omitempty"`
}

// CountOnly reports whether the caller asked only for the total.
func (r *SearchRequest) CountOnly() bool {
	return r.Summary == SummaryCount || r.Count == 0
}

// ParseSearchRequest separates control parameters from search parameters
// and validates the control parameters.
func ParseSearchRequest(resourceType string, query url.Values, limits pagination.Limits) (*SearchRequest, error) {
	page, err := pagination.Parse(query, limits)
	if err != nil {
		return nil, Invalidf("%v", err)
	}

	req := &SearchRequest{
		ResourceType: resourceType,
		Params:       url.Values{},
		Sort:         strings.TrimSpace(query.Get("_sort")),
		Count:        page.Limit,
		Offset:       page.Offset,
		Summary:      query.Get("_summary"),
	}
	if req.Summary != "" && !validSummaries[req.Summary] {
		return nil, Invalidf("invalid _summary %q", req.Summary)
	}
	if total := query.Get("_total"); total != "" && total != "none" && total != "estimate" && total != "accurate" {
		return nil, Invalidf("invalid _total %q", total)
	}

	for name, values := range query {
		if controlParams[name] {
			continue
		}
		for _, v := range values {
			req.Params.Add(name, v)
		}
	}
	return req, nil
}

// Query renders the search parameters back into a query string, e.g. for
// the self link.
func (r *SearchRequest) Query() url.Values {
	q := url.Values{}
	for k, v := range r.Params {
		q[k] = append([]string(nil), v...)
	}
	if r.Sort != "" {
		q.Set("_sort", r.Sort)
	}
	if r.Summary != "" {
		q.Set("_summary", r.Summary)
	}
	return q
}

// Page returns a copy of r positioned at offset with the given page size.
func (r *SearchRequest) Page(offset, count int) *SearchRequest {
	cp := *r
	cp.Offset = offset
	if count > 0 {
		cp.Count = count
	}
	return &cp
}
