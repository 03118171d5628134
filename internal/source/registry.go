package source

import (
	"errors"
	"fmt"
	"sort"
)

// ErrMissingType reports a source document without a "type" field.
var ErrMissingType = errors.New("source must have a 'type' field")

// InvalidTypeError reports a discriminator no parser is registered for.
type InvalidTypeError struct {
	Type      string
	Supported []string
}

func (e *InvalidTypeError) Error() string {
	return fmt.Sprintf("invalid source type '%s' — supported types: %v", e.Type, e.Supported)
}

// ParserFunc validates and constructs a source variant from its generic
// key/value document form.
type ParserFunc func(doc map[string]any) (Adapter, error)

// Registry maps type discriminators to source parsers. Registries are
// passed explicitly into parsing calls rather than kept as process
// globals, so tests can build isolated ones.
type Registry struct {
	parsers map[string]ParserFunc
}

// NewRegistry returns a registry with the built-in source types
// registered.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]ParserFunc)}
	r.Register("filesystem", ParseFilesystem)
	r.Register("git", ParseGit)
	return r
}

// Register adds a parser for a discriminator. Intended for startup
// wiring of additional source kinds, not runtime reloading.
func (r *Registry) Register(sourceType string, fn ParserFunc) {
	r.parsers[sourceType] = fn
}

// Parse constructs the source variant named by the document's "type"
// field.
func (r *Registry) Parse(doc map[string]any) (Adapter, error) {
	raw, ok := doc["type"]
	if !ok {
		return nil, ErrMissingType
	}
	sourceType, ok := raw.(string)
	if !ok || sourceType == "" {
		return nil, ErrMissingType
	}
	return r.ParseTyped(sourceType, doc)
}

// ParseTyped constructs a source variant with a known discriminator.
func (r *Registry) ParseTyped(sourceType string, doc map[string]any) (Adapter, error) {
	fn, ok := r.parsers[sourceType]
	if !ok {
		return nil, &InvalidTypeError{Type: sourceType, Supported: r.Types()}
	}
	return fn(doc)
}

// Types returns the registered discriminators, sorted.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.parsers))
	for t := range r.parsers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// stringField reads an optional string field from a source document,
// erroring when the field is present with a non-string value.
func stringField(doc map[string]any, key string) (string, error) {
	raw, ok := doc[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("field '%s' must be a string", key)
	}
	return s, nil
}

// boolField reads an optional bool field from a source document,
// falling back to def when absent.
func boolField(doc map[string]any, key string, def bool) (bool, error) {
	raw, ok := doc[key]
	if !ok || raw == nil {
		return def, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("field '%s' must be a boolean", key)
	}
	return b, nil
}
