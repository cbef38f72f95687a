package modkit

import (
	"net/http"

	phttp "signalroom/internal/platform/net/http"
)

// Option mutates build configuration for a module
type Option func(*buildCfg)

type buildCfg struct {
	prefix string
	mw     []func(http.Handler) http.Handler
}

// WithPrefix mounts a module under a path prefix
func WithPrefix(prefix string) Option {
	return func(c *buildCfg) { c.prefix = prefix }
}

// WithMiddlewares attaches per module middleware in order
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(c *buildCfg) { c.mw = append(c.mw, mw...) }
}

// Built is the resolved option set
type Built struct {
	Prefix string
	Mw     []func(http.Handler) http.Handler
}

// Build applies opts
func Build(opts ...Option) Built {
	var c buildCfg
	for _, o := range opts {
		o(&c)
	}
	return Built{Prefix: c.prefix, Mw: append([]func(http.Handler) http.Handler(nil), c.mw...)}
}

// Scoped runs fn against r narrowed to the built prefix with the built middleware applied
func (b Built) Scoped(r phttp.Router, fn func(phttp.Router)) {
	inner := func(sub phttp.Router) {
		if len(b.Mw) > 0 {
			sub.Use(b.Mw...)
		}
		fn(sub)
	}
	if b.Prefix == "" || b.Prefix == "/" {
		r.Group(inner)
		return
	}
	r.Route(b.Prefix, inner)
}
