package dmarc

import (
	"math"
	"strconv"
	"strings"
)

// The generic document does not know whether an element occurs once or
// several times, and an empty element is an empty string instead of a map.
// These helpers resolve that once so the normalizer only deals with maps,
// lists and trimmed strings.

// asMap returns v as an element map. An empty element counts as an empty map.
func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Document:
		return map[string]any(t), true
	case string:
		if strings.TrimSpace(t) == "" {
			return map[string]any{}, true
		}
	}
	return nil, false
}

// asList returns the repeated elements of v. A single element becomes a one
// element list and an absent or empty element an empty list.
func asList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
	}
	return []any{v}
}

// lookup walks the element path below m. It returns nil if any step is
// missing or is not an element map.
func lookup(m map[string]any, path ...string) any {
	var cur any = m
	for _, p := range path {
		cm, ok := asMap(cur)
		if !ok {
			return nil
		}
		cur, ok = cm[p]
		if !ok {
			return nil
		}
	}
	return cur
}

// text returns the character data of an element. Attribute carrying elements
// keep their content in #text, repeated elements use the first occurrence.
func text(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		return text(t["#text"])
	case []any:
		if len(t) > 0 {
			return text(t[0])
		}
	}
	return ""
}

func stringAt(m map[string]any, path ...string) string {
	return text(lookup(m, path...))
}

// intAt parses the integer at path, falling back to 0
func intAt(m map[string]any, path ...string) int64 {
	s := stringAt(m, path...)
	if s == "" {
		return 0
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	// some reporters send "100.0"
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0
	}
	return int64(f)
}
