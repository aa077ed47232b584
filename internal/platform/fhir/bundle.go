package fhir

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/emr/fhir2/pkg/pagination"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Meta         *Meta         `json:"meta,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Search   *BundleSearch   `json:"search,omitempty"`
	Request  *BundleRequest  `json:"request,omitempty"`
	Response *BundleResponse `json:"response,omitempty"`
}

type BundleSearch struct {
	Mode string `json:"mode,omitempty"`
}

type BundleRequest struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

type BundleResponse struct {
	Status       string     `json:"status"`
	Location     string     `json:"location,omitempty"`
	LastModified *time.Time `json:"lastModified,omitempty"`
}

// LinkURL returns the url of the link with the given relation, or "".
func (b *Bundle) LinkURL(relation string) string {
	for _, l := range b.Link {
		if l.Relation == relation {
			return l.URL
		}
	}
	return ""
}

// SearchBundleParams holds pagination and link information for a search bundle.
type SearchBundleParams struct {
	BaseURL      string     // server base, e.g. http://localhost:8080/fhir
	ResourceType string     // resource type searched
	Operation    string     // e.g. "$lastn"; offset links then target ResourceType/Operation
	SelfURL      string     // the request url as received
	Query        url.Values // non-control search parameters, used for offset links
	Count        int
	Offset       int
	Total        int
	PageID       string // paging store id; when set next/previous links use _getpages
}

// NewSearchBundle creates a searchset Bundle with fullUrl entries and
// self/next/previous links.
func NewSearchBundle(resources []interface{}, params SearchBundleParams) *Bundle {
	now := time.Now().UTC()
	entries := make([]BundleEntry, 0, len(resources))
	for _, r := range resources {
		raw, err := json.Marshal(r)
		if err != nil {
			continue
		}
		entries = append(entries, BundleEntry{
			FullURL:  extractFullURL(r, params.BaseURL),
			Resource: raw,
			Search:   &BundleSearch{Mode: "match"},
		})
	}

	total := params.Total
	return &Bundle{
		ResourceType: "Bundle",
		ID:           newBundleID(),
		Meta:         &Meta{LastUpdated: now},
		Type:         "searchset",
		Total:        &total,
		Timestamp:    &now,
		Link:         buildPaginationLinks(params),
		Entry:        entries,
	}
}

// NewCountBundle creates the body for _summary=count: a searchset with a
// total and no entries.
func NewCountBundle(total int, selfURL string) *Bundle {
	now := time.Now().UTC()
	return &Bundle{
		ResourceType: "Bundle",
		ID:           newBundleID(),
		Meta:         &Meta{LastUpdated: now},
		Type:         "searchset",
		Total:        &total,
		Timestamp:    &now,
		Link:         []BundleLink{{Relation: "self", URL: selfURL}},
	}
}

// extractFullURL builds an absolute fullUrl from a resource's resourceType and id.
func extractFullURL(r interface{}, baseURL string) string {
	m, ok := toMap(r)
	if !ok {
		return ""
	}
	rt, _ := m["resourceType"].(string)
	id, _ := m["id"].(string)
	if rt == "" || id == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(baseURL, "/"), rt, id)
}

// toMap converts an interface{} to map[string]interface{} if possible.
func toMap(v interface{}) (map[string]interface{}, bool) {
	switch val := v.(type) {
	case map[string]interface{}:
		return val, true
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		var m map[string]interface{}
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, false
		}
		return m, true
	}
}

// buildPaginationLinks creates self, next, and previous links for searchset bundles.
func buildPaginationLinks(params SearchBundleParams) []BundleLink {
	links := []BundleLink{{Relation: "self", URL: params.SelfURL}}

	page := pagination.Params{Limit: params.Count, Offset: params.Offset}
	if page.HasNext(params.Total) {
		links = append(links, BundleLink{Relation: "next", URL: pageURL(params, page.NextOffset())})
	}
	if page.HasPrevious() {
		links = append(links, BundleLink{Relation: "previous", URL: pageURL(params, page.PreviousOffset())})
	}
	return links
}

func pageURL(params SearchBundleParams, offset int) string {
	base := strings.TrimSuffix(params.BaseURL, "/")
	if params.PageID != "" {
		return fmt.Sprintf("%s?_getpages=%s&_getpagesoffset=%d&_count=%d&_bundletype=searchset",
			base, url.QueryEscape(params.PageID), offset, params.Count)
	}
	q := url.Values{}
	for k, v := range params.Query {
		q[k] = v
	}
	q.Set("_count", fmt.Sprintf("%d", params.Count))
	q.Set("_offset", fmt.Sprintf("%d", offset))
	target := params.ResourceType
	if params.Operation != "" {
		target += "/" + params.Operation
	}
	return fmt.Sprintf("%s/%s?%s", base, target, q.Encode())
}

func newBundleID() string {
	return uuid.New().String()
}
