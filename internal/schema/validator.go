// Package schema implements the response model validator (C11).
//
// No example in the pack's dependency surface imports a JSON-schema or
// validation library from actual source (ozzo-validation and
// jsonschema-adjacent packages appear only as indirect go.mod entries,
// never as a real import) — so registered response models are plain Go
// structs decoded with encoding/json's DisallowUnknownFields, which gives
// the same "does this JSON match the declared shape" guarantee the
// distillation source gets from its own hand-rolled field check.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// Registry holds the response model shapes named by a connector policy's
// response_model field. Each model is held as the reflect.Type of its
// struct.
type Registry struct {
	models map[string]reflect.Type
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]reflect.Type)}
}

// Register associates name with the struct type of model (model must be a
// struct or a pointer to one; only its type is retained).
func (r *Registry) Register(name string, model any) {
	t := reflect.TypeOf(model)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r.models[name] = t
}

// Registered reports whether name has a model registered. Callers should
// skip validation entirely when this is false — an unregistered model
// name is not drift, there is simply nothing to check against.
func (r *Registry) Registered(name string) bool {
	_, ok := r.models[name]
	return ok
}

// Validate decodes body against the struct type registered as name,
// rejecting unknown fields. It returns a non-nil error describing the
// first mismatch; the caller never rejects the response over this —
// per §4.11 it only attaches drift headers and increments a metric.
func (r *Registry) Validate(name string, body []byte) error {
	t, ok := r.models[name]
	if !ok {
		return fmt.Errorf("schema: no response model registered as %q", name)
	}

	dst := reflect.New(t).Interface()

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("schema: %s: %w", name, err)
	}
	return nil
}

// Truncate trims msg to at most n characters, matching §4.11's
// "first 180 chars of the error" drift header contract.
func Truncate(msg string, n int) string {
	r := []rune(msg)
	if len(r) <= n {
		return msg
	}
	return string(r[:n])
}
