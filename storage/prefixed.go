package storage

import (
	"context"
	"strings"
)

// Prefixed namespaces every key of an inner Backend.
type Prefixed struct {
	inner  Backend
	prefix string
}

// NewPrefixed returns a view of inner where every key is stored as prefix+key.
func NewPrefixed(inner Backend, prefix string) *Prefixed {
	return &Prefixed{inner: inner, prefix: prefix}
}

// Prefix returns the namespace prefix.
func (p *Prefixed) Prefix() string {
	return p.prefix
}

func (p *Prefixed) Get(ctx context.Context, key string) (string, bool, error) {
	return p.inner.Get(ctx, p.prefix+key)
}

func (p *Prefixed) Set(ctx context.Context, key, value string) error {
	return p.inner.Set(ctx, p.prefix+key, value)
}

func (p *Prefixed) Remove(ctx context.Context, key string) error {
	return p.inner.Remove(ctx, p.prefix+key)
}

// Keys returns the keys inside the namespace with the prefix stripped.
func (p *Prefixed) Keys(ctx context.Context) ([]string, error) {
	all, err := p.inner.Keys(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(all))
	for _, k := range all {
		if rest, ok := strings.CutPrefix(k, p.prefix); ok {
			keys = append(keys, rest)
		}
	}
	return keys, nil
}
