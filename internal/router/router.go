// Package router mounts the BFF's JSON routes on an http.ServeMux with
// per-group middleware and path prefixes.
package router

import (
	"net/http"
	"slices"
	"strings"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Route is one registered method and path.
type Route struct {
	Method  string
	Pattern string
}

// Router registers routes on a shared mux. Sub-routers from Group and Mount
// add middleware and a path prefix but serve through the same mux.
type Router struct {
	mux    *http.ServeMux
	chain  []Middleware
	prefix string
	table  *[]Route
}

// New creates a Router whose middleware wraps every route registered on it
// or on its sub-routers.
func New(middleware ...Middleware) *Router {
	return &Router{
		mux:   http.NewServeMux(),
		chain: middleware,
		table: &[]Route{},
	}
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) Get(pattern string, handler http.HandlerFunc, middleware ...Middleware) {
	r.Handle(http.MethodGet, pattern, handler, middleware...)
}

func (r *Router) Post(pattern string, handler http.HandlerFunc, middleware ...Middleware) {
	r.Handle(http.MethodPost, pattern, handler, middleware...)
}

func (r *Router) Put(pattern string, handler http.HandlerFunc, middleware ...Middleware) {
	r.Handle(http.MethodPut, pattern, handler, middleware...)
}

func (r *Router) Delete(pattern string, handler http.HandlerFunc, middleware ...Middleware) {
	r.Handle(http.MethodDelete, pattern, handler, middleware...)
}

// Handle registers handler for method on the router's prefix plus pattern.
// Route middleware runs after the router's chain.
func (r *Router) Handle(method, pattern string, handler http.Handler, middleware ...Middleware) {
	full := r.prefix + pattern
	if full == "" {
		full = "/"
	}
	r.mux.Handle(method+" "+full, r.wrap(handler, middleware))
	*r.table = append(*r.table, Route{Method: method, Pattern: full})
}

// wrap applies the chain so middleware executes in the order given.
func (r *Router) wrap(handler http.Handler, middleware []Middleware) http.Handler {
	combined := append(slices.Clone(r.chain), middleware...)
	for i := len(combined) - 1; i >= 0; i-- {
		handler = combined[i](handler)
	}
	return handler
}

// Group returns a sub-router with additional middleware and the same prefix.
func (r *Router) Group(middleware ...Middleware) *Router {
	return r.Mount("", middleware...)
}

// Mount returns a sub-router whose routes live under prefix.
func (r *Router) Mount(prefix string, middleware ...Middleware) *Router {
	return &Router{
		mux:    r.mux,
		chain:  append(slices.Clone(r.chain), middleware...),
		prefix: r.prefix + strings.TrimSuffix(prefix, "/"),
		table:  r.table,
	}
}

// Routes lists every route registered through this router or its
// sub-routers, sorted by pattern then method.
func (r *Router) Routes() []Route {
	out := slices.Clone(*r.table)
	slices.SortFunc(out, func(a, b Route) int {
		if c := strings.Compare(a.Pattern, b.Pattern); c != 0 {
			return c
		}
		return strings.Compare(a.Method, b.Method)
	})
	return out
}
