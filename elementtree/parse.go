package elementtree

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mobile-next/siminspect/geometry"
)

var ErrUnrecognizedTree = errors.New("unrecognized element tree format")

// DeviceKit numeric element types.
var elementTypeMap = map[int]string{
	9:  "Button",
	40: "Switch",
	48: "TextField",
	49: "SearchField",
	52: "StaticText",
	57: "Icon",
	69: "Image",
}

var (
	idKeys         = []string{"id", "uid"}
	typeKeys       = []string{"type", "role", "AXRole"}
	labelKeys      = []string{"label", "AXLabel", "name", "title"}
	identifierKeys = []string{"identifier", "rawIdentifier", "AXUniqueId", "accessibilityIdentifier"}
	valueKeys      = []string{"value", "AXValue"}
	enabledKeys    = []string{"enabled", "isEnabled"}
	actionKeys     = []string{"customActions", "custom_actions"}
	frameKeys      = []string{"frame", "rect", "AXFrame", "bounds"}
)

// Parse builds nodes from a tree-fetch response. It accepts an array of
// roots, a single root, a DeviceKit {"axElement": ...} hierarchy or a
// WebDriverAgent {"value": ...} envelope. Fields that are missing or of
// the wrong type fall back to neutral values; only input that is not
// JSON, or whose top level is neither object nor array, is an error.
func Parse(data []byte) ([]*Node, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse element tree: %w", err)
	}
	return FromValue(raw)
}

// FromValue is Parse for an already decoded JSON value.
func FromValue(raw interface{}) ([]*Node, error) {
	switch v := raw.(type) {
	case []interface{}:
		return parseList(v, ""), nil
	case map[string]interface{}:
		if inner, ok := v["axElement"].(map[string]interface{}); ok {
			return []*Node{parseNode(inner, "0")}, nil
		}
		if _, isNode := findRect(v); !isNode {
			switch inner := v["value"].(type) {
			case map[string]interface{}, []interface{}:
				return FromValue(inner)
			}
		}
		return []*Node{parseNode(v, "0")}, nil
	}
	return nil, ErrUnrecognizedTree
}

func parseList(items []interface{}, parentPath string) []*Node {
	nodes := make([]*Node, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		path := strconv.Itoa(i)
		if parentPath != "" {
			path = parentPath + "." + path
		}
		nodes = append(nodes, parseNode(m, path))
	}
	return nodes
}

func parseNode(m map[string]interface{}, path string) *Node {
	n := &Node{
		ID:            firstString(m, idKeys),
		Type:          nodeType(m),
		Label:         optionalString(m, labelKeys),
		Identifier:    optionalString(m, identifierKeys),
		Value:         optionalString(m, valueKeys),
		Enabled:       firstBoolWithDefault(m, enabledKeys, true),
		Traits:        stringList(m["traits"]),
		CustomActions: []string{},
	}
	if n.ID == "" {
		n.ID = path
	}
	if rect, ok := findRect(m); ok {
		n.Frame = rect
	}
	for _, key := range actionKeys {
		if actions := stringList(m[key]); len(actions) > 0 {
			n.CustomActions = actions
			break
		}
	}
	if children, ok := m["children"].([]interface{}); ok {
		n.Children = parseList(children, path)
	}
	return n
}

func nodeType(m map[string]interface{}) string {
	if code, ok := getFloatAny(m, []string{"elementType"}); ok {
		if name, known := elementTypeMap[int(code)]; known {
			return name
		}
	}
	if t := firstString(m, typeKeys); t != "" {
		return t
	}
	return "Other"
}

func findRect(m map[string]interface{}) (geometry.Rect, bool) {
	for _, key := range frameKeys {
		switch v := m[key].(type) {
		case map[string]interface{}:
			if rect, ok := rectFromMap(v); ok {
				return rect, true
			}
		case string:
			if rect, ok := parseFrameString(v); ok {
				return rect, true
			}
		}
	}
	return geometry.Rect{}, false
}

func rectFromMap(m map[string]interface{}) (geometry.Rect, bool) {
	x, okX := getFloatAny(m, []string{"x", "X", "left"})
	y, okY := getFloatAny(m, []string{"y", "Y", "top"})
	w, okW := getFloatAny(m, []string{"width", "Width", "w"})
	h, okH := getFloatAny(m, []string{"height", "Height", "h"})
	if okX && okY && okW && okH {
		return geometry.NewRect(x, y, w, h), true
	}
	return geometry.Rect{}, false
}

var frameStringPattern = regexp.MustCompile(`^\{\{\s*(-?[\d.]+)\s*,\s*(-?[\d.]+)\s*\}\s*,\s*\{\s*(-?[\d.]+)\s*,\s*(-?[\d.]+)\s*\}\}$`)

// parseFrameString reads the "{{x, y}, {w, h}}" form used by AXFrame.
func parseFrameString(s string) (geometry.Rect, bool) {
	match := frameStringPattern.FindStringSubmatch(strings.TrimSpace(s))
	if match == nil {
		return geometry.Rect{}, false
	}
	var values [4]float64
	for i := range values {
		f, err := strconv.ParseFloat(match[i+1], 64)
		if err != nil {
			return geometry.Rect{}, false
		}
		values[i] = f
	}
	return geometry.NewRect(values[0], values[1], values[2], values[3]), true
}

func firstString(m map[string]interface{}, keys []string) string {
	if s := optionalString(m, keys); s != nil {
		return *s
	}
	return ""
}

// optionalString returns the first non-empty scalar under keys.
func optionalString(m map[string]interface{}, keys []string) *string {
	for _, k := range keys {
		var s string
		switch v := m[k].(type) {
		case string:
			s = strings.TrimSpace(v)
		case float64:
			s = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			s = strconv.FormatBool(v)
		default:
			continue
		}
		if s != "" {
			return &s
		}
	}
	return nil
}

func firstBoolWithDefault(m map[string]interface{}, keys []string, fallback bool) bool {
	for _, k := range keys {
		switch v := m[k].(type) {
		case bool:
			return v
		case float64:
			return v != 0
		case string:
			if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				return parsed
			}
		}
	}
	return fallback
}

func getFloatAny(m map[string]interface{}, keys []string) (float64, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v, true
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f, true
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// stringList accepts ["a","b"], [{"name":"a"}] or "a, b".
func stringList(v interface{}) []string {
	out := []string{}
	switch items := v.(type) {
	case []interface{}:
		for _, item := range items {
			switch it := item.(type) {
			case string:
				if s := strings.TrimSpace(it); s != "" {
					out = append(out, s)
				}
			case map[string]interface{}:
				if name := firstString(it, []string{"name", "label", "title"}); name != "" {
					out = append(out, name)
				}
			}
		}
	case string:
		for _, part := range strings.Split(items, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
