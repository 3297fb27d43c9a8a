// Package transform implements the response transform engine (C9): a
// structured-query expression evaluated against {meta, ...body} (or
// {meta, data: body} when body isn't a JSON object), replacing the
// response body with the result. Failures of any kind fail open.
package transform

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Meta is §3's TransformContext.meta.
type Meta struct {
	Provider  string
	Status    int
	LatencyMs int64
}

// Apply evaluates expr against {meta, ...body} (or {meta, data: body} for a
// non-object body) and returns the replacement body. If expr is empty,
// contentType isn't JSON, or evaluation fails in any way (parse error,
// non-existent path, panic recovered from a pathological expression), the
// original body is returned unchanged — the fail-open contract of §4.9.
func Apply(body []byte, contentType string, expr string, meta Meta) []byte {
	if expr == "" {
		return body
	}
	if !strings.HasPrefix(strings.TrimSpace(contentType), "application/json") {
		return body
	}

	combined, ok := wrap(body, meta)
	if !ok {
		return body
	}

	result, ok := safeGet(combined, expr)
	if !ok || !result.Exists() {
		return body
	}

	return []byte(result.Raw)
}

func wrap(body []byte, meta Meta) ([]byte, bool) {
	metaJSON, err := json.Marshal(map[string]any{
		"provider":   meta.Provider,
		"status":     meta.Status,
		"latency_ms": meta.LatencyMs,
	})
	if err != nil {
		return nil, false
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		trimmed = []byte("null")
	}

	if gjson.ValidBytes(trimmed) && len(trimmed) > 0 && trimmed[0] == '{' {
		inner := bytes.TrimSpace(trimmed[1 : len(trimmed)-1])
		var buf bytes.Buffer
		buf.WriteByte('{')
		buf.WriteString(`"meta":`)
		buf.Write(metaJSON)
		if len(inner) > 0 {
			buf.WriteByte(',')
			buf.Write(inner)
		}
		buf.WriteByte('}')
		return buf.Bytes(), true
	}

	if !gjson.ValidBytes(trimmed) {
		return nil, false
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	buf.WriteString(`"meta":`)
	buf.Write(metaJSON)
	buf.WriteString(`,"data":`)
	buf.Write(trimmed)
	buf.WriteByte('}')
	return buf.Bytes(), true
}

func safeGet(combined []byte, expr string) (result gjson.Result, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	return gjson.GetBytes(combined, expr), true
}
