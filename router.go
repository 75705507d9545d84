package ember

import "strings"

type segmentKind int

const (
	segLiteral segmentKind = iota
	segParam
	segCatchAll
	segWildcard
)

type segment struct {
	kind segmentKind
	text string // literal text, or the captured name for Param/CatchAll
}

// route is a compiled (method, path_template, executor) triple.
type route struct {
	method      string
	template    string
	segments    []segment // nil for exact routes
	specificity int
	order       int
	handler     Handler
}

func (rt *route) isPattern() bool { return rt.segments != nil }

// compileSegments splits a path template on '/', skipping repeated
// slashes, classifying each segment per §4.5.
func compileSegments(template string) []segment {
	parts := splitPathSegments(template)
	out := make([]segment, 0, len(parts))
	for _, p := range parts {
		switch {
		case p == "*":
			out = append(out, segment{kind: segWildcard})
		case strings.HasPrefix(p, ":") && strings.HasSuffix(p, "*"):
			out = append(out, segment{kind: segCatchAll, text: p[1 : len(p)-1]})
		case strings.HasPrefix(p, ":"):
			out = append(out, segment{kind: segParam, text: p[1:]})
		default:
			out = append(out, segment{kind: segLiteral, text: p})
		}
	}
	return out
}

func splitPathSegments(path string) []string {
	var out []string
	start := -1
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if start >= 0 {
				out = append(out, path[start:i])
			}
			start = -1
		} else if start < 0 {
			start = i
		}
	}
	return out
}

func isPatternTemplate(template string) bool {
	return strings.ContainsAny(template, ":*")
}

func specificityOf(segs []segment) int {
	total := 0
	for _, s := range segs {
		if s.kind == segLiteral {
			total += len(s.text)
		}
	}
	return total
}

// Router owns the exact-match map, the per-method ordered pattern list, the
// global middleware chain, the fallback handler, and the handler-result
// policy. Immutable after the server starts.
type Router struct {
	exact    map[string]map[string]*route
	patterns map[string][]*route

	middlewares  []Middleware
	fallback     Handler
	resultPolicy HandlerResultPolicy

	insertCounter int
}

// NewRouter creates an empty Router with the default JSON handler-result
// policy.
func NewRouter() *Router {
	return &Router{
		exact:        make(map[string]map[string]*route),
		patterns:     make(map[string][]*route),
		resultPolicy: defaultHandlerResultPolicy,
	}
}

// UseMiddleware appends a middleware to the global chain; middlewares run
// in registration order (outer-most first).
func (r *Router) UseMiddleware(mw Middleware) *Router {
	r.middlewares = append(r.middlewares, mw)
	return r
}

// HandlerResult overrides the post-processing policy for non-nil handler
// returns.
func (r *Router) HandlerResult(policy HandlerResultPolicy) *Router {
	r.resultPolicy = policy
	return r
}

// MapFallback registers the handler used when no route matches.
func (r *Router) MapFallback(handler any) *Router {
	r.fallback = bindHandler(handler, r.resultPolicy)
	return r
}

// Map registers handler at (method, path), composed with any per-route
// middlewares supplied (e.g. a Group's inherited chain), folded right to
// left around the bound executor so the first middleware listed runs
// first.
func (r *Router) Map(method, pathTemplate string, handler any, middlewares ...Middleware) *Router {
	executor := bindHandler(handler, r.resultPolicy)
	chain := composeMiddleware(append(append([]Middleware{}, r.middlewares...), middlewares...), executor)

	rt := &route{method: method, template: pathTemplate, handler: chain, order: r.insertCounter}
	r.insertCounter++

	if isPatternTemplate(pathTemplate) {
		rt.segments = compileSegments(pathTemplate)
		rt.specificity = specificityOf(rt.segments)
		r.patterns[method] = append(r.patterns[method], rt)
		return r
	}

	if r.exact[method] == nil {
		r.exact[method] = make(map[string]*route)
	}
	r.exact[method][pathTemplate] = rt
	return r
}

func (r *Router) MapGet(path string, handler any, mw ...Middleware) *Router {
	return r.Map(MethodGet, path, handler, mw...)
}
func (r *Router) MapPost(path string, handler any, mw ...Middleware) *Router {
	return r.Map(MethodPost, path, handler, mw...)
}
func (r *Router) MapPut(path string, handler any, mw ...Middleware) *Router {
	return r.Map(MethodPut, path, handler, mw...)
}
func (r *Router) MapDelete(path string, handler any, mw ...Middleware) *Router {
	return r.Map(MethodDelete, path, handler, mw...)
}
func (r *Router) MapPatch(path string, handler any, mw ...Middleware) *Router {
	return r.Map(MethodPatch, path, handler, mw...)
}

// composeMiddleware builds a single closure as a right-to-left fold, per
// the Design Notes, avoiding per-request list traversal.
func composeMiddleware(chain []Middleware, terminal Handler) Handler {
	h := terminal
	for i := len(chain) - 1; i >= 0; i-- {
		mw := chain[i]
		next := h
		h = func(c *Ctx) {
			prev := c.next
			c.next = next
			mw(c)
			c.next = prev
		}
	}
	return h
}

// Dispatch implements §4.5's dispatch order against the request already
// decoded into session.request.
func (r *Router) Dispatch(c *Ctx) {
	req := c.Request
	method := req.Method

	if byPath, ok := r.exact[method]; ok {
		if rt, ok := byPath[req.Path]; ok {
			rt.handler(c)
			return
		}
	}

	if candidates, ok := r.patterns[method]; ok {
		var best *route
		if best = matchBestPattern(candidates, req.Path, req.RouteValues); best != nil {
			best.handler(c)
			return
		}
	}

	if r.fallback != nil {
		r.fallback(c)
		return
	}

	c.Response.Status(StatusNotFound).ContentType("text/plain; charset=utf-8").Text("Not Found")
	_ = c.Response.Send()
}

// matchBestPattern scans candidates for the highest-specificity match,
// ties broken by insertion order (candidates are already in insertion
// order, so the first equal-specificity match found stands), and writes
// the winner's captures into routeValues.
func matchBestPattern(candidates []*route, path string, routeValues map[string]string) *route {
	pathSegs := splitPathSegments(path)

	var best *route
	var bestCaptures map[string]string
	for _, rt := range candidates {
		captures := make(map[string]string, 2)
		if matchSegments(rt.segments, pathSegs, captures) {
			if best == nil || rt.specificity > best.specificity {
				best, bestCaptures = rt, captures
			}
		}
	}
	if best == nil {
		return nil
	}
	for k, v := range bestCaptures {
		routeValues[k] = v
	}
	return best
}

// matchSegments implements §4.5's matching rules left to right.
func matchSegments(pattern []segment, path []string, captures map[string]string) bool {
	pi := 0
	for si := 0; si < len(pattern); si++ {
		seg := pattern[si]
		switch seg.kind {
		case segWildcard:
			return true
		case segCatchAll:
			rest := strings.Join(path[pi:], "/")
			rest = strings.TrimRight(rest, "/")
			captures[seg.text] = rest
			return true
		case segParam:
			if pi >= len(path) || path[pi] == "" {
				return false
			}
			captures[seg.text] = path[pi]
			pi++
		case segLiteral:
			if pi >= len(path) || path[pi] != seg.text {
				return false
			}
			pi++
		}
	}
	return pi == len(path)
}
