package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// RenameKeys renames top-level keys of a JSON object. Non-objects are
// returned unchanged. A renamed key overwrites an existing target.
func RenameKeys(raw []byte, renames map[string]string) ([]byte, error) {
	if len(renames) == 0 {
		return raw, nil
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return raw, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, err
	}
	changed := false
	for from, to := range renames {
		v, ok := obj[from]
		if !ok {
			continue
		}
		obj[to] = v
		delete(obj, from)
		changed = true
	}
	if !changed {
		return raw, nil
	}
	return json.Marshal(obj)
}

// DecodeList accepts a bare array, {"products": [...]} or {"data": [...]}.
// Any other shape yields an empty list.
func DecodeList(raw []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return items, nil
	case '{':
		var wrapped struct {
			Products json.RawMessage `json:"products"`
			Data     json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, err
		}
		for _, candidate := range []json.RawMessage{wrapped.Products, wrapped.Data} {
			var items []json.RawMessage
			if len(candidate) > 0 && json.Unmarshal(candidate, &items) == nil && items != nil {
				return items, nil
			}
		}
	}
	return nil, nil
}

// ResourceOptions configures a Resource.
type ResourceOptions struct {
	// Endpoint is the path below the base URL, e.g. "/products".
	Endpoint string
	// Name prefixes metric and log operation names. Defaults to Endpoint.
	Name string
	// Renames fixes server naming quirks on every decoded object.
	Renames map[string]string
	// AuthReads sends the bearer token on List and Get.
	AuthReads bool
}

// Resource is generic CRUD over one REST collection.
type Resource[T any] struct {
	client *Client
	opts   ResourceOptions
}

// NewResource binds a collection endpoint to client.
func NewResource[T any](client *Client, opts ResourceOptions) *Resource[T] {
	if opts.Name == "" {
		opts.Name = opts.Endpoint
	}
	return &Resource[T]{client: client, opts: opts}
}

// Client returns the underlying HTTP client.
func (r *Resource[T]) Client() *Client {
	return r.client
}

// Path joins the endpoint with a suffix.
func (r *Resource[T]) Path(suffix string) string {
	return r.opts.Endpoint + suffix
}

func (r *Resource[T]) op(name string) string {
	return r.opts.Name + "." + name
}

// Decode applies the rename hook and unmarshals one object.
func (r *Resource[T]) Decode(raw []byte) (T, error) {
	var out T
	renamed, err := RenameKeys(raw, r.opts.Renames)
	if err != nil {
		return out, &APIError{Message: decodeMessage, Raw: string(raw), Kind: KindProtocol, Err: err}
	}
	if err := json.Unmarshal(renamed, &out); err != nil {
		return out, &APIError{Message: decodeMessage, Raw: string(raw), Kind: KindProtocol, Err: err}
	}
	return out, nil
}

// DecodeItems decodes a list response in any accepted shape.
func (r *Resource[T]) DecodeItems(raw []byte) ([]T, error) {
	items, err := DecodeList(raw)
	if err != nil {
		return nil, &APIError{Message: decodeMessage, Raw: string(raw), Kind: KindProtocol, Err: err}
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		v, err := r.Decode(item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Fetch runs req and decodes one object from the response.
func (r *Resource[T]) Fetch(ctx context.Context, req Request) (T, error) {
	var zero T
	raw, err := r.client.DoRaw(ctx, req)
	if err != nil {
		return zero, err
	}
	return r.Decode(raw)
}

// List fetches the collection with optional query parameters.
func (r *Resource[T]) List(ctx context.Context, query url.Values) ([]T, error) {
	raw, err := r.client.DoRaw(ctx, Request{
		Op:      r.op("list"),
		Method:  http.MethodGet,
		Path:    r.opts.Endpoint,
		Query:   query,
		Headers: HeaderOptions{IncludeAuth: r.opts.AuthReads, ContentType: ContentNone},
	})
	if err != nil {
		return nil, err
	}
	return r.DecodeItems(raw)
}

// Get fetches one item by id.
func (r *Resource[T]) Get(ctx context.Context, id int64) (T, error) {
	return r.Fetch(ctx, Request{
		Op:      r.op("get"),
		Method:  http.MethodGet,
		Path:    r.Path(fmt.Sprintf("/%d", id)),
		Headers: HeaderOptions{IncludeAuth: r.opts.AuthReads, ContentType: ContentNone},
	})
}

// Create posts body to the collection.
func (r *Resource[T]) Create(ctx context.Context, body any) (T, error) {
	return r.Fetch(ctx, Request{
		Op:      r.op("create"),
		Method:  http.MethodPost,
		Path:    r.opts.Endpoint,
		Body:    body,
		Headers: HeaderOptions{IncludeAuth: true, ContentType: ContentJSON},
	})
}

// Update replaces item id with body.
func (r *Resource[T]) Update(ctx context.Context, id int64, body any) (T, error) {
	return r.Fetch(ctx, Request{
		Op:      r.op("update"),
		Method:  http.MethodPut,
		Path:    r.Path(fmt.Sprintf("/%d", id)),
		Body:    body,
		Headers: HeaderOptions{IncludeAuth: true, ContentType: ContentJSON},
	})
}

// Delete removes item id.
func (r *Resource[T]) Delete(ctx context.Context, id int64) error {
	_, err := r.client.DoRaw(ctx, Request{
		Op:      r.op("delete"),
		Method:  http.MethodDelete,
		Path:    r.Path(fmt.Sprintf("/%d", id)),
		Headers: HeaderOptions{IncludeAuth: true, ContentType: ContentNone},
	})
	return err
}
