package fhir

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// OperationCapability describes a resource-level operation such as $lastn.
type OperationCapability struct {
	Name       string `json:"name"`
	Definition string `json:"definition"`
}

type resourceEntry struct {
	interactions []string
	searchParams map[string]SearchParamConfig
	operations   []OperationCapability
}

// CapabilityBuilder accumulates what each provider serves and renders the
// CapabilityStatement returned by /metadata.
type CapabilityBuilder struct {
	mu        sync.RWMutex
	resources map[string]*resourceEntry

	BaseURL       string
	ServerName    string
	ServerVersion string
}

// NewCapabilityBuilder creates a builder for a server at baseURL.
func NewCapabilityBuilder(baseURL, version string) *CapabilityBuilder {
	return &CapabilityBuilder{
		resources:     make(map[string]*resourceEntry),
		BaseURL:       baseURL,
		ServerName:    "fhir2",
		ServerVersion: version,
	}
}

// AddResource registers a resource type. Repeated calls merge interactions
// and search parameters.
func (b *CapabilityBuilder) AddResource(resourceType string, interactions []string, params map[string]SearchParamConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := b.entry(resourceType)
	seen := make(map[string]bool, len(entry.interactions))
	for _, i := range entry.interactions {
		seen[i] = true
	}
	for _, i := range interactions {
		if !seen[i] {
			entry.interactions = append(entry.interactions, i)
			seen[i] = true
		}
	}
	for name, cfg := range params {
		entry.searchParams[name] = cfg
	}
}

// AddOperation registers an operation on a resource type.
func (b *CapabilityBuilder) AddOperation(resourceType string, op OperationCapability) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry := b.entry(resourceType)
	entry.operations = append(entry.operations, op)
}

func (b *CapabilityBuilder) entry(resourceType string) *resourceEntry {
	entry, ok := b.resources[resourceType]
	if !ok {
		entry = &resourceEntry{searchParams: make(map[string]SearchParamConfig)}
		b.resources[resourceType] = entry
	}
	return entry
}

// ResourceTypes returns the registered types in alphabetical order.
func (b *CapabilityBuilder) ResourceTypes() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	types := make([]string, 0, len(b.resources))
	for rt := range b.resources {
		types = append(types, rt)
	}
	sort.Strings(types)
	return types
}

// Build renders the CapabilityStatement. Resources, interactions and search
// parameters are sorted so the output is stable.
func (b *CapabilityBuilder) Build() map[string]interface{} {
	types := b.ResourceTypes()

	b.mu.RLock()
	defer b.mu.RUnlock()

	resources := make([]map[string]interface{}, 0, len(types))
	for _, rt := range types {
		resources = append(resources, buildResourceEntry(rt, b.resources[rt]))
	}

	return map[string]interface{}{
		"resourceType": "CapabilityStatement",
		"status":       "active",
		"date":         time.Now().UTC().Format("2006-01-02"),
		"kind":         "instance",
		"fhirVersion":  "4.0.1",
		"format":       []string{"application/fhir+json", "json"},
		"patchFormat":  []string{MediaTypeJSONPatch, MediaTypeMergePatch, MediaTypeXMLPatch},
		"software": map[string]interface{}{
			"name":    b.ServerName,
			"version": b.ServerVersion,
		},
		"implementation": map[string]interface{}{
			"description": b.ServerName + " FHIR R4 server",
			"url":         b.BaseURL,
		},
		"rest": []map[string]interface{}{{
			"mode":     "server",
			"resource": resources,
		}},
	}
}

func buildResourceEntry(rt string, entry *resourceEntry) map[string]interface{} {
	interactions := append([]string(nil), entry.interactions...)
	sort.Strings(interactions)
	codes := make([]map[string]string, len(interactions))
	for i, code := range interactions {
		codes[i] = map[string]string{"code": code}
	}

	res := map[string]interface{}{
		"type":            rt,
		"interaction":     codes,
		"versioning":      "versioned",
		"readHistory":     containsString(interactions, "vread"),
		"updateCreate":    false,
		"conditionalRead": "full-support",
	}

	if len(entry.searchParams) > 0 {
		names := make([]string, 0, len(entry.searchParams))
		for name := range entry.searchParams {
			names = append(names, name)
		}
		sort.Strings(names)
		params := make([]map[string]string, len(names))
		for i, name := range names {
			params[i] = map[string]string{"name": name, "type": entry.searchParams[name].Type.String()}
		}
		res["searchParam"] = params
	}
	if len(entry.operations) > 0 {
		res["operation"] = entry.operations
	}
	return res
}

// Handler serves the CapabilityStatement.
func (b *CapabilityBuilder) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return WriteFHIR(c, http.StatusOK, b.Build())
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
