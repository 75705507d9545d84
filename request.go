package ember

import (
	"github.com/emberhttp/ember/internal/bufferpool"
	"github.com/emberhttp/ember/internal/parser"
)

// Request is a per-session reusable decoded HTTP request. It is populated
// by the connection loop from a parser.Result and reset before each new
// parse.
type Request struct {
	Method    string
	Path      string
	RawTarget string
	Protocol  string
	Headers   Headers

	// Query maps a query-string key to its first-occurrence value.
	// Case-sensitive lookup; values are NOT percent-decoded (see §9 of
	// the core spec — this is documented, not a bug).
	Query map[string]string

	// RouteValues is populated by the Router when a pattern route
	// matches; cleared before each dispatch.
	RouteValues map[string]string

	// Body is a view over the decoded payload: either a slice of the
	// live parse buffer (valid only until the next TryRead) or, when
	// bodyPooled is true, a buffer owned by this request that must be
	// released exactly once after the handler completes.
	Body       []byte
	bodyPooled bool

	bodyPool *bufferpool.Pool
}

func newRequest(bodyPool *bufferpool.Pool) *Request {
	return &Request{
		Query:       make(map[string]string, 4),
		RouteValues: make(map[string]string, 4),
		bodyPool:    bodyPool,
	}
}

// reset clears r for the next request on the same session, releasing any
// pooled body buffer exactly once.
func (r *Request) reset() {
	r.releaseBody()
	r.Method, r.Path, r.RawTarget, r.Protocol = "", "", "", ""
	r.Headers.reset()
	for k := range r.Query {
		delete(r.Query, k)
	}
	for k := range r.RouteValues {
		delete(r.RouteValues, k)
	}
	r.Body = nil
}

// releaseBody returns a pooled body buffer exactly once; safe to call
// unconditionally (idempotent once bodyPooled is cleared).
func (r *Request) releaseBody() {
	if r.bodyPooled && r.Body != nil {
		r.bodyPool.Return(r.Body)
	}
	r.bodyPooled = false
}

// populate fills r from a fully-decoded parser result. Values that are
// views into the connection's parse buffer remain valid only until the next
// TryRead; the caller (the session's connection loop) must not call this
// again, nor advance the parse buffer, before the handler has consumed r.
func (r *Request) populate(res parser.Result) {
	r.Method = res.Method
	r.Path = res.Path
	r.RawTarget = res.RawTarget
	r.Protocol = res.Protocol

	for _, h := range res.Headers {
		r.Headers.Add(h.Name, h.Value)
	}

	parseQueryString(res.Query, r.Query)

	r.Body = res.Body
	r.bodyPooled = res.BodyPooled
}

// parseQueryString decodes a raw query string (already split off the path)
// into dst, per §4.2 step 3: split on '&', split each pair on the first
// '=', first occurrence of a key wins, a missing '=' stores an empty value.
// Values are stored exactly as they appeared — no percent-decoding.
func parseQueryString(raw string, dst map[string]string) {
	if raw == "" {
		return
	}
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == '&' {
			pair := raw[start:i]
			start = i + 1
			if pair == "" {
				continue
			}
			key, value := pair, ""
			for j := 0; j < len(pair); j++ {
				if pair[j] == '=' {
					key, value = pair[:j], pair[j+1:]
					break
				}
			}
			if _, exists := dst[key]; !exists {
				dst[key] = value
			}
		}
	}
}
