// Package storage defines the object storage abstraction used for notes,
// the registry file, and the unresolved-reference log. Implementations live in
// the local, memory, and gcs subpackages.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrNotFound is returned by Get when the object does not exist.
var ErrNotFound = errors.New("object not found")

// Content types used by callers.
const (
	ContentTypeMarkdown = "text/markdown; charset=utf-8"
	ContentTypeJSON     = "application/json"
)

// ObjectStore is a flat key/value blob store.
type ObjectStore interface {
	// Get returns the object stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores data under key, creating any containing location first.
	Put(ctx context.Context, key string, contentType string, data []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns the keys beginning with prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Prefixed scopes an ObjectStore to keys under a fixed prefix so one bucket can
// hold notes and data side by side.
type Prefixed struct {
	Store  ObjectStore
	Prefix string
}

// NewPrefixed returns store scoped to prefix. An empty prefix returns store unchanged.
func NewPrefixed(store ObjectStore, prefix string) ObjectStore {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return store
	}
	return &Prefixed{Store: store, Prefix: prefix}
}

func (p *Prefixed) key(k string) string {
	return path.Join(p.Prefix, k)
}

// Get implements ObjectStore.
func (p *Prefixed) Get(ctx context.Context, key string) ([]byte, error) {
	return p.Store.Get(ctx, p.key(key))
}

// Put implements ObjectStore.
func (p *Prefixed) Put(ctx context.Context, key string, contentType string, data []byte) error {
	return p.Store.Put(ctx, p.key(key), contentType, data)
}

// Delete implements ObjectStore.
func (p *Prefixed) Delete(ctx context.Context, key string) error {
	return p.Store.Delete(ctx, p.key(key))
}

// List implements ObjectStore and strips the prefix from returned keys.
func (p *Prefixed) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := p.Store.List(ctx, p.Prefix+"/"+prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, p.Prefix+"/"))
	}
	return out, nil
}
