package fhir

import (
	"encoding/json"
	"fmt"
	"mime"
	"reflect"
	"strconv"
	"strings"
)

// Patch body media types accepted on PATCH /{type}/{id}.
const (
	MediaTypeJSONPatch  = "application/json-patch+json"
	MediaTypeMergePatch = "application/merge-patch+json"
	MediaTypeXMLPatch   = "application/xml-patch+xml"
)

// PatchOperation represents a single JSON Patch operation (RFC 6902).
type PatchOperation struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value,omitempty"`
	From  string      `json:"from,omitempty"`
}

// ApplyPatch dispatches on the request content type and applies body to a
// copy of resource. Malformed documents return ErrInvalid, documents that
// parse but cannot be applied return ErrPatchFailed and unknown content types
// return ErrUnsupportedMediaType.
func ApplyPatch(resource map[string]interface{}, contentType string, body []byte) (map[string]interface{}, error) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.TrimSpace(contentType)
	}

	var patched map[string]interface{}
	switch mt {
	case MediaTypeJSONPatch:
		ops, err := ParseJSONPatch(body)
		if err != nil {
			return nil, Invalidf("%v", err)
		}
		patched, err = ApplyJSONPatch(resource, ops)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPatchFailed, err)
		}
	case MediaTypeMergePatch:
		patch, err := ParseMergePatch(body)
		if err != nil {
			return nil, Invalidf("%v", err)
		}
		patched = ApplyMergePatch(resource, patch)
	case MediaTypeXMLPatch:
		diff, err := ParseXMLPatch(body)
		if err != nil {
			return nil, Invalidf("%v", err)
		}
		patched, err = ApplyXMLPatch(resource, diff)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPatchFailed, err)
		}
	default:
		return nil, fmt.Errorf("%w: %q, expected one of %s, %s, %s", ErrUnsupportedMediaType,
			contentType, MediaTypeJSONPatch, MediaTypeMergePatch, MediaTypeXMLPatch)
	}

	before, _ := resource["resourceType"].(string)
	if after, _ := patched["resourceType"].(string); after != before {
		return nil, fmt.Errorf("%w: patch must not change resourceType", ErrPatchFailed)
	}
	return patched, nil
}

// ApplyJSONPatch applies a JSON Patch (RFC 6902) to a copy of a FHIR resource map.
func ApplyJSONPatch(resource map[string]interface{}, patchOps []PatchOperation) (map[string]interface{}, error) {
	result := deepCopyMap(resource)

	for i, op := range patchOps {
		path, err := parsePointer(op.Path)
		if err != nil {
			return nil, fmt.Errorf("patch operation %d: %w", i, err)
		}
		switch op.Op {
		case "add":
			err = pointerAdd(result, path, op.Value)
		case "remove":
			err = pointerRemove(result, path)
		case "replace":
			err = pointerReplace(result, path, op.Value)
		case "move", "copy":
			err = patchMoveOrCopy(result, op.Op, op.From, path)
		case "test":
			err = patchTest(result, path, op.Value)
		default:
			err = fmt.Errorf("unknown patch operation: %s", op.Op)
		}
		if err != nil {
			return nil, fmt.Errorf("patch operation %d (%s %s) failed: %w", i, op.Op, op.Path, err)
		}
	}

	return result, nil
}

// ApplyMergePatch applies a JSON Merge Patch (RFC 7386) to a copy of a FHIR resource map.
func ApplyMergePatch(resource map[string]interface{}, patch map[string]interface{}) map[string]interface{} {
	return mergeValue(deepCopyMap(resource), patch).(map[string]interface{})
}

func mergeValue(target interface{}, patch interface{}) interface{} {
	patchMap, ok := patch.(map[string]interface{})
	if !ok {
		return patch
	}
	targetMap, ok := target.(map[string]interface{})
	if !ok {
		targetMap = make(map[string]interface{})
	}
	for key, val := range patchMap {
		if val == nil {
			delete(targetMap, key)
			continue
		}
		targetMap[key] = mergeValue(targetMap[key], val)
	}
	return targetMap
}

// ParseJSONPatch parses a JSON Patch document from raw JSON.
func ParseJSONPatch(data []byte) ([]PatchOperation, error) {
	var ops []PatchOperation
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("invalid JSON Patch document: %w", err)
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("JSON Patch document contains no operations")
	}
	for i, op := range ops {
		if op.Op == "" {
			return nil, fmt.Errorf("patch operation %d: missing 'op' field", i)
		}
		if op.Path == "" {
			return nil, fmt.Errorf("patch operation %d: missing 'path' field", i)
		}
		if (op.Op == "move" || op.Op == "copy") && op.From == "" {
			return nil, fmt.Errorf("patch operation %d: missing 'from' field", i)
		}
	}
	return ops, nil
}

// ParseMergePatch parses a JSON Merge Patch document from raw JSON.
func ParseMergePatch(data []byte) (map[string]interface{}, error) {
	var patch map[string]interface{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return nil, fmt.Errorf("invalid JSON Merge Patch document: %w", err)
	}
	return patch, nil
}

func patchMoveOrCopy(doc map[string]interface{}, op, from string, path []string) error {
	fromPath, err := parsePointer(from)
	if err != nil {
		return fmt.Errorf("%s from: %w", op, err)
	}
	value, err := pointerGet(doc, fromPath)
	if err != nil {
		return fmt.Errorf("%s from: %w", op, err)
	}
	if op == "move" {
		if isPrefix(fromPath, path) && len(fromPath) < len(path) {
			return fmt.Errorf("cannot move a value into one of its children")
		}
		if err := pointerRemove(doc, fromPath); err != nil {
			return err
		}
	} else {
		value = deepCopyValue(value)
	}
	return pointerAdd(doc, path, value)
}

func patchTest(doc map[string]interface{}, path []string, expected interface{}) error {
	actual, err := pointerGet(doc, path)
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(normalizeJSON(actual), normalizeJSON(expected)) {
		a, _ := json.Marshal(actual)
		e, _ := json.Marshal(expected)
		return fmt.Errorf("test failed: expected %s but got %s", e, a)
	}
	return nil
}

// parsePointer splits a JSON Pointer (RFC 6901) into unescaped reference tokens.
func parsePointer(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("invalid JSON pointer %q", path)
	}
	unescape := strings.NewReplacer("~1", "/", "~0", "~")
	parts := strings.Split(path[1:], "/")
	for i, p := range parts {
		parts[i] = unescape.Replace(p)
	}
	return parts, nil
}

func pointerGet(doc interface{}, path []string) (interface{}, error) {
	cur := doc
	for _, token := range path {
		switch n := cur.(type) {
		case map[string]interface{}:
			v, ok := n[token]
			if !ok {
				return nil, fmt.Errorf("path not found: %s", token)
			}
			cur = v
		case []interface{}:
			idx, err := arrayIndex(token, len(n), false)
			if err != nil {
				return nil, err
			}
			cur = n[idx]
		default:
			return nil, fmt.Errorf("cannot traverse into scalar at %q", token)
		}
	}
	return cur, nil
}

// mutate walks to the container holding the last token of path and calls fn
// with it. fn returns the container to store back, which lets array
// operations reallocate.
func mutate(node interface{}, path []string, fn func(container interface{}, token string) (interface{}, error)) (interface{}, error) {
	if len(path) == 1 {
		return fn(node, path[0])
	}
	switch n := node.(type) {
	case map[string]interface{}:
		child, ok := n[path[0]]
		if !ok {
			return nil, fmt.Errorf("path not found: %s", path[0])
		}
		updated, err := mutate(child, path[1:], fn)
		if err != nil {
			return nil, err
		}
		n[path[0]] = updated
		return n, nil
	case []interface{}:
		idx, err := arrayIndex(path[0], len(n), false)
		if err != nil {
			return nil, err
		}
		updated, err := mutate(n[idx], path[1:], fn)
		if err != nil {
			return nil, err
		}
		n[idx] = updated
		return n, nil
	default:
		return nil, fmt.Errorf("cannot traverse into scalar at %q", path[0])
	}
}

func pointerAdd(doc map[string]interface{}, path []string, value interface{}) error {
	if len(path) == 0 {
		return fmt.Errorf("cannot replace the whole resource")
	}
	_, err := mutate(doc, path, func(container interface{}, token string) (interface{}, error) {
		switch c := container.(type) {
		case map[string]interface{}:
			c[token] = value
			return c, nil
		case []interface{}:
			idx, err := arrayIndex(token, len(c), true)
			if err != nil {
				return nil, err
			}
			out := make([]interface{}, 0, len(c)+1)
			out = append(out, c[:idx]...)
			out = append(out, value)
			return append(out, c[idx:]...), nil
		default:
			return nil, fmt.Errorf("cannot add to scalar at %q", token)
		}
	})
	return err
}

func pointerRemove(doc map[string]interface{}, path []string) error {
	if len(path) == 0 {
		return fmt.Errorf("cannot remove the whole resource")
	}
	_, err := mutate(doc, path, func(container interface{}, token string) (interface{}, error) {
		switch c := container.(type) {
		case map[string]interface{}:
			if _, ok := c[token]; !ok {
				return nil, fmt.Errorf("path not found: %s", token)
			}
			delete(c, token)
			return c, nil
		case []interface{}:
			idx, err := arrayIndex(token, len(c), false)
			if err != nil {
				return nil, err
			}
			out := make([]interface{}, 0, len(c)-1)
			out = append(out, c[:idx]...)
			return append(out, c[idx+1:]...), nil
		default:
			return nil, fmt.Errorf("cannot remove from scalar at %q", token)
		}
	})
	return err
}

func pointerReplace(doc map[string]interface{}, path []string, value interface{}) error {
	if len(path) == 0 {
		return fmt.Errorf("cannot replace the whole resource")
	}
	_, err := mutate(doc, path, func(container interface{}, token string) (interface{}, error) {
		switch c := container.(type) {
		case map[string]interface{}:
			if _, ok := c[token]; !ok {
				return nil, fmt.Errorf("path not found: %s", token)
			}
			c[token] = value
			return c, nil
		case []interface{}:
			idx, err := arrayIndex(token, len(c), false)
			if err != nil {
				return nil, err
			}
			c[idx] = value
			return c, nil
		default:
			return nil, fmt.Errorf("cannot replace in scalar at %q", token)
		}
	})
	return err
}

// arrayIndex parses an array token. "-" and len are only valid for add.
func arrayIndex(token string, length int, forAdd bool) (int, error) {
	if forAdd && token == "-" {
		return length, nil
	}
	idx, err := strconv.Atoi(token)
	if err != nil || (len(token) > 1 && token[0] == '0') {
		return 0, fmt.Errorf("invalid array index: %s", token)
	}
	upper := length - 1
	if forAdd {
		upper = length
	}
	if idx < 0 || idx > upper {
		return 0, fmt.Errorf("array index out of bounds: %d", idx)
	}
	return idx, nil
}

func isPrefix(prefix, path []string) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i := range prefix {
		if prefix[i] != path[i] {
			return false
		}
	}
	return true
}

func normalizeJSON(v interface{}) interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	_ = json.Unmarshal(data, &out)
	return out
}

func deepCopyValue(v interface{}) interface{} {
	return normalizeJSON(v)
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	data, _ := json.Marshal(m)
	var result map[string]interface{}
	_ = json.Unmarshal(data, &result)
	if result == nil {
		result = make(map[string]interface{})
	}
	return result
}
