package ember

import "strings"

// Group is a path-prefixed, middleware-inheriting sub-router: scoped route
// registration sugar over the Router's middleware composition.
type Group struct {
	prefix      string
	router      *Router
	middlewares []Middleware
}

// Group creates a route group with the given prefix.
func (r *Router) Group(prefix string) *Group {
	return &Group{prefix: prefix, router: r}
}

// Use appends middleware inherited by every route registered on this group
// (and its sub-groups), composed after the Router's global middlewares.
func (g *Group) Use(mw ...Middleware) *Group {
	g.middlewares = append(g.middlewares, mw...)
	return g
}

func (g *Group) join(pattern string) string {
	if pattern == "" {
		return g.prefix
	}
	if !strings.HasPrefix(pattern, "/") {
		return g.prefix + "/" + pattern
	}
	return g.prefix + pattern
}

// Map registers handler at pattern under this group's prefix and inherited
// middleware chain.
func (g *Group) Map(method, pattern string, handler any) *Group {
	g.router.Map(method, g.join(pattern), handler, g.middlewares...)
	return g
}

func (g *Group) GET(pattern string, handler any) *Group     { return g.Map(MethodGet, pattern, handler) }
func (g *Group) POST(pattern string, handler any) *Group    { return g.Map(MethodPost, pattern, handler) }
func (g *Group) PUT(pattern string, handler any) *Group     { return g.Map(MethodPut, pattern, handler) }
func (g *Group) DELETE(pattern string, handler any) *Group  { return g.Map(MethodDelete, pattern, handler) }
func (g *Group) PATCH(pattern string, handler any) *Group   { return g.Map(MethodPatch, pattern, handler) }
func (g *Group) HEAD(pattern string, handler any) *Group    { return g.Map(MethodHead, pattern, handler) }
func (g *Group) OPTIONS(pattern string, handler any) *Group { return g.Map(MethodOptions, pattern, handler) }

// Group creates a sub-group combining prefixes and inheriting middleware.
func (g *Group) Group(prefix string) *Group {
	sub := &Group{prefix: g.join(prefix), router: g.router}
	sub.middlewares = append(sub.middlewares, g.middlewares...)
	return sub
}
