package fhir

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// XMLPatch is an RFC 5261 <diff> document. Selectors address elements of
// the FHIR XML representation, e.g. /Patient/gender/@value or
// /Observation/code/coding[1]/code/@value, and are applied to the JSON form
// of the resource.
type XMLPatch struct {
	XMLName    xml.Name  `xml:"diff"`
	Operations []xmlNode `xml:",any"`
}

type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []xmlNode  `xml:",any"`
}

func (n xmlNode) attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// repeatingElements are FHIR elements with max cardinality "*" that are
// serialized as JSON arrays even when a single XML element is present.
var repeatingElements = map[string]bool{
	"identifier": true, "name": true, "given": true, "prefix": true, "suffix": true,
	"telecom": true, "address": true, "line": true, "coding": true, "category": true,
	"note": true, "extension": true, "contact": true, "participant": true,
	"basedOn": true, "partOf": true, "performer": true, "interpretation": true,
	"component": true, "ingredient": true, "input": true, "output": true,
	"reasonCode": true, "bodySite": true,
}

// numericElements hold decimal or integer primitives.
var numericElements = map[string]bool{
	"value": true, "valueInteger": true, "valueDecimal": true, "multipleBirthInteger": true,
}

// ParseXMLPatch decodes an XML Patch document.
func ParseXMLPatch(data []byte) (*XMLPatch, error) {
	var diff XMLPatch
	dec := xml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&diff); err != nil {
		return nil, fmt.Errorf("invalid XML Patch document: %w", err)
	}
	if len(diff.Operations) == 0 {
		return nil, fmt.Errorf("XML Patch document contains no operations")
	}
	for i, op := range diff.Operations {
		switch op.XMLName.Local {
		case "add", "replace", "remove":
		default:
			return nil, fmt.Errorf("patch operation %d: unknown operation <%s>", i, op.XMLName.Local)
		}
		if _, ok := op.attr("sel"); !ok {
			return nil, fmt.Errorf("patch operation %d: missing 'sel' attribute", i)
		}
		if _, ok := op.attr("pos"); ok {
			return nil, fmt.Errorf("patch operation %d: 'pos' is not supported", i)
		}
		if _, ok := op.attr("type"); ok {
			return nil, fmt.Errorf("patch operation %d: 'type' is not supported", i)
		}
	}
	return &diff, nil
}

// ApplyXMLPatch applies diff to a copy of resource.
func ApplyXMLPatch(resource map[string]interface{}, diff *XMLPatch) (map[string]interface{}, error) {
	result := deepCopyMap(resource)
	resourceType, _ := result["resourceType"].(string)

	for i, op := range diff.Operations {
		sel, _ := op.attr("sel")
		path, attr, err := resolveXMLSelector(result, resourceType, sel)
		if err != nil {
			return nil, fmt.Errorf("patch operation %d: %w", i, err)
		}

		switch op.XMLName.Local {
		case "add":
			err = xmlAdd(result, path, op)
		case "replace":
			err = xmlReplace(result, path, attr, op)
		case "remove":
			if attr != "" && attr != "value" {
				path = append(path, attr)
			}
			err = pointerRemove(result, path)
		}
		if err != nil {
			return nil, fmt.Errorf("patch operation %d (%s %s) failed: %w", i, op.XMLName.Local, sel, err)
		}
	}

	pruneEmpty(result)
	return result, nil
}

// resolveXMLSelector converts an XPath-like selector into a JSON pointer path
// over doc. A trailing @attr is returned separately. Repeating elements
// without an explicit [n] predicate address their first item.
func resolveXMLSelector(doc map[string]interface{}, resourceType, sel string) ([]string, string, error) {
	segments := strings.Split(strings.Trim(sel, "/"), "/")
	if len(segments) == 0 || stripPrefix(segments[0]) != resourceType {
		return nil, "", fmt.Errorf("selector %q does not address a %s", sel, resourceType)
	}
	segments = segments[1:]

	var attr string
	if n := len(segments); n > 0 && strings.HasPrefix(segments[n-1], "@") {
		attr = strings.TrimPrefix(segments[n-1], "@")
		segments = segments[:n-1]
	}

	var path []string
	var cur interface{} = doc
	for _, seg := range segments {
		name, index, err := parseSelectorSegment(seg)
		if err != nil {
			return nil, "", err
		}
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, "", fmt.Errorf("selector %q: %s is not an element", sel, name)
		}
		next, ok := m[name]
		if !ok {
			return nil, "", fmt.Errorf("selector %q matched no element at %s", sel, name)
		}
		path = append(path, name)

		if arr, isArr := next.([]interface{}); isArr {
			if index < 0 {
				index = 0
			}
			if index >= len(arr) {
				return nil, "", fmt.Errorf("selector %q: %s[%d] does not exist", sel, name, index+1)
			}
			path = append(path, strconv.Itoa(index))
			next = arr[index]
		} else if index > 0 {
			return nil, "", fmt.Errorf("selector %q: %s[%d] does not exist", sel, name, index+1)
		}
		cur = next
	}
	return path, attr, nil
}

// parseSelectorSegment splits "coding[2]" into ("coding", 1). index is -1
// when no predicate is given.
func parseSelectorSegment(seg string) (string, int, error) {
	seg = stripPrefix(seg)
	open := strings.IndexByte(seg, '[')
	if open < 0 {
		return seg, -1, nil
	}
	if !strings.HasSuffix(seg, "]") {
		return "", 0, fmt.Errorf("malformed selector segment %q", seg)
	}
	n, err := strconv.Atoi(seg[open+1 : len(seg)-1])
	if err != nil || n < 1 {
		return "", 0, fmt.Errorf("unsupported predicate in %q, only positional [n] is allowed", seg)
	}
	return seg[:open], n - 1, nil
}

// stripPrefix drops a namespace prefix such as "f:".
func stripPrefix(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func xmlAdd(doc map[string]interface{}, path []string, op xmlNode) error {
	target, err := pointerGet(doc, path)
	if err != nil {
		return err
	}
	parent, ok := target.(map[string]interface{})
	if !ok {
		return fmt.Errorf("can only add children to a complex element")
	}
	if len(op.Children) == 0 {
		return fmt.Errorf("add requires at least one child element")
	}

	for _, child := range op.Children {
		name := child.XMLName.Local
		value := xmlToJSON(child, nil)
		existing, present := parent[name]
		switch {
		case !present && repeatingElements[name]:
			parent[name] = []interface{}{value}
		case !present:
			parent[name] = value
		default:
			arr, isArr := existing.([]interface{})
			if !isArr {
				return fmt.Errorf("element %s is already present", name)
			}
			parent[name] = append(arr, value)
		}
	}
	return nil
}

func xmlReplace(doc map[string]interface{}, path []string, attr string, op xmlNode) error {
	switch attr {
	case "value":
		existing, err := pointerGet(doc, path)
		if err != nil {
			return err
		}
		if _, isMap := existing.(map[string]interface{}); isMap {
			return fmt.Errorf("@value selects a complex element")
		}
		name := ""
		if len(path) > 0 {
			name = path[len(path)-1]
		}
		return pointerReplace(doc, path, coercePrimitive(name, strings.TrimSpace(op.Text), existing))
	case "":
		if len(op.Children) != 1 {
			return fmt.Errorf("replace of an element requires exactly one replacement element")
		}
		existing, err := pointerGet(doc, path)
		if err != nil {
			return err
		}
		return pointerReplace(doc, path, xmlToJSON(op.Children[0], existing))
	default:
		full := append(append([]string(nil), path...), attr)
		return pointerReplace(doc, full, strings.TrimSpace(op.Text))
	}
}

// xmlToJSON converts a FHIR XML element to its JSON value. existing, when
// known, decides the type of primitives.
func xmlToJSON(n xmlNode, existing interface{}) interface{} {
	name := n.XMLName.Local
	if v, ok := n.attr("value"); ok && len(n.Children) == 0 {
		return coercePrimitive(name, v, existing)
	}

	existingMap, _ := existing.(map[string]interface{})
	out := make(map[string]interface{})
	for _, a := range n.Attrs {
		if a.Name.Local == "xmlns" || a.Name.Space == "xmlns" || a.Name.Local == "value" {
			continue
		}
		out[a.Name.Local] = a.Value
	}
	for _, child := range n.Children {
		childName := child.XMLName.Local
		value := xmlToJSON(child, existingMap[childName])
		prev, present := out[childName]
		switch {
		case !present && repeatingElements[childName]:
			out[childName] = []interface{}{value}
		case !present:
			out[childName] = value
		default:
			if arr, ok := prev.([]interface{}); ok {
				out[childName] = append(arr, value)
			} else {
				out[childName] = []interface{}{prev, value}
			}
		}
	}
	return out
}

func coercePrimitive(name, raw string, existing interface{}) interface{} {
	switch existing.(type) {
	case bool:
		if b, err := strconv.ParseBool(raw); err == nil {
			return b
		}
		return raw
	case float64:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
		return raw
	case string:
		return raw
	}
	if raw == "true" || raw == "false" {
		return raw == "true"
	}
	if numericElements[name] {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	}
	return raw
}

// pruneEmpty removes empty arrays and objects left behind by removals.
func pruneEmpty(m map[string]interface{}) {
	for k, v := range m {
		switch val := v.(type) {
		case map[string]interface{}:
			pruneEmpty(val)
			if len(val) == 0 {
				delete(m, k)
			}
		case []interface{}:
			kept := val[:0]
			for _, item := range val {
				if im, ok := item.(map[string]interface{}); ok {
					pruneEmpty(im)
					if len(im) == 0 {
						continue
					}
				}
				kept = append(kept, item)
			}
			if len(kept) == 0 {
				delete(m, k)
			} else {
				m[k] = kept
			}
		}
	}
}
