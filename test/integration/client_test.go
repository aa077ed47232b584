//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emr/fhir2/internal/platform/fhir"
)

// client issues FHIR requests against a test server and decodes responses.
type client struct {
	t    *testing.T
	base string
}

type response struct {
	*http.Response
	body []byte
}

func (c *client) do(method, path, contentType string, body []byte, headers ...string) *response {
	c.t.Helper()
	url := path
	if len(path) == 0 || path[0] == '/' {
		url = c.base + path
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(c.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return &response{Response: resp, body: data}
}

func (c *client) get(path string, headers ...string) *response {
	return c.do(http.MethodGet, path, "", nil, headers...)
}

func (c *client) send(method, path string, resource interface{}) *response {
	c.t.Helper()
	data, err := json.Marshal(resource)
	require.NoError(c.t, err)
	return c.do(method, path, "application/fhir+json", data)
}

// create posts resource and returns the server assigned id.
func (c *client) create(resourceType string, resource map[string]interface{}) string {
	c.t.Helper()
	resp := c.send(http.MethodPost, "/"+resourceType, resource)
	require.Equal(c.t, http.StatusCreated, resp.StatusCode, string(resp.body))
	id, _ := c.resource(resp)["id"].(string)
	require.NotEmpty(c.t, id)
	return id
}

func (c *client) resource(resp *response) map[string]interface{} {
	c.t.Helper()
	var out map[string]interface{}
	require.NoError(c.t, json.Unmarshal(resp.body, &out), string(resp.body))
	return out
}

func (c *client) bundle(resp *response) *fhir.Bundle {
	c.t.Helper()
	require.Equal(c.t, http.StatusOK, resp.StatusCode, string(resp.body))
	var b fhir.Bundle
	require.NoError(c.t, json.Unmarshal(resp.body, &b), string(resp.body))
	return &b
}

func entryResources(t *testing.T, b *fhir.Bundle) []map[string]interface{} {
	t.Helper()
	out := make([]map[string]interface{}, 0, len(b.Entry))
	for _, e := range b.Entry {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(e.Resource, &m))
		out = append(out, m)
	}
	return out
}

func entryIDs(t *testing.T, b *fhir.Bundle) []string {
	t.Helper()
	var ids []string
	for _, m := range entryResources(t, b) {
		ids = append(ids, m["id"].(string))
	}
	return ids
}
