package ember

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"

	json "github.com/goccy/go-json"
)

// Ctx is the handler-facing object: the live Session's decoded Request and
// in-progress Response, plus the middleware continuation. One Ctx per
// Session, reused across requests on the same connection.
type Ctx struct {
	Request  *Request
	Response *Response

	session *Session
	next    Handler
	lastErr error

	// asyncPending is set while a Future-returning handler's result is still
	// in flight on the worker pool; dispatchOne must not send the response
	// (or let the connection loop reuse this Ctx for the next pipelined
	// request) until the future resolves and finishAsync runs.
	asyncPending int32

	// Locals holds arbitrary per-request values set by middleware (e.g. an
	// authenticated user, a session handle) for downstream handlers to read.
	// Cleared between requests on the same connection.
	Locals map[string]any
}

func newCtx(s *Session) *Ctx {
	return &Ctx{Request: s.request, Response: s.response, session: s, Locals: make(map[string]any, 4)}
}

// SetLocal stores a value under key for the remainder of this request.
func (c *Ctx) SetLocal(key string, value any) {
	c.Locals[key] = value
}

// GetLocal returns the value stored under key, or nil if none was set.
func (c *Ctx) GetLocal(key string) any {
	return c.Locals[key]
}

// SetNext wires the handler Next will invoke. Exposed for testing a single
// middleware in isolation; the router's own chain composition sets this
// field directly rather than through this method.
func (c *Ctx) SetNext(h Handler) {
	c.next = h
}

// Next invokes the next handler in the middleware chain. Calling it more
// than once re-runs the remainder of the chain; not calling it at all
// short-circuits the chain, per the Design Notes.
func (c *Ctx) Next() {
	if c.next != nil {
		c.next(c)
	}
}

// Error renders err onto the Response: an *HttpError uses its own status
// and message, anything else becomes a generic 500. A Config.ErrorHandler,
// if set, runs instead of the default body. No-op if a response was
// already sent.
func (c *Ctx) Error(err error) {
	if err == nil {
		return
	}
	c.lastErr = err
	if c.Response.sent {
		return
	}
	if c.session != nil && c.session.server != nil && c.session.server.config.ErrorHandler != nil {
		c.session.server.config.ErrorHandler(c)
		return
	}

	var httpErr *HttpError
	if errors.As(err, &httpErr) {
		c.Response.Status(httpErr.Code).Text(httpErr.Message)
		return
	}
	c.Response.Status(StatusInternalServerError).Text(StatusText(StatusInternalServerError))
}

// GetError returns the last error reported via Error, or nil if none.
func (c *Ctx) GetError() error {
	return c.lastErr
}

// markAsyncPending flags that the handler just dispatched returned a Future
// (a <-chan result or <-chan error) whose value is still outstanding.
func (c *Ctx) markAsyncPending() {
	atomic.StoreInt32(&c.asyncPending, 1)
}

// isAsyncPending reports whether a Future dispatched from this Ctx hasn't
// resolved yet.
func (c *Ctx) isAsyncPending() bool {
	return atomic.LoadInt32(&c.asyncPending) == 1
}

// finishAsync runs apply (the policy/error handling for a resolved Future),
// then sends the response and resumes the connection's feed loop for any
// pipelined bytes that arrived while the Future was outstanding. Called from
// the worker pool goroutine that received the Future's value, never from the
// connection loop itself.
func (c *Ctx) finishAsync(apply func()) {
	func() {
		defer func() {
			if r := recover(); r != nil {
				if c.session != nil && c.session.server != nil {
					c.session.server.logger.Error().Msgf("future handler panic: %v", r)
				}
				if !c.Response.sent {
					c.Response.Status(StatusInternalServerError).Text(StatusText(StatusInternalServerError))
				}
			}
		}()
		apply()
	}()
	if !c.Response.sent {
		if err := c.Response.Send(); err != nil && !isClosedConnError(err) {
			if c.session != nil && c.session.server != nil {
				c.session.server.logger.Error().Err(err).Msg("send failed after future resolved")
			}
		}
	}
	atomic.StoreInt32(&c.asyncPending, 0)
	if c.session != nil && c.session.server != nil {
		c.session.server.completeAsyncDispatch(c.session)
	}
}

// RawQuery returns the unparsed query string portion of the request
// target (everything after '?'), or "" if there is none.
func (c *Ctx) RawQuery() string {
	if i := strings.IndexByte(c.Request.RawTarget, '?'); i >= 0 {
		return c.Request.RawTarget[i+1:]
	}
	return ""
}

// ContentLength parses the request's Content-Length header, or returns -1
// if absent or malformed.
func (c *Ctx) ContentLength() int64 {
	raw, ok := c.Request.Headers.TryGet(HeaderContentLength)
	if !ok {
		return -1
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// Query returns the first-occurrence value of a query-string key, or "" if
// absent. Case-sensitive, not percent-decoded, per Request.Query's contract.
func (c *Ctx) Query(name string) string {
	return c.Request.Query[name]
}

// QueryDefault returns Query(name), or def if the key is absent.
func (c *Ctx) QueryDefault(name, def string) string {
	if v, ok := c.Request.Query[name]; ok {
		return v
	}
	return def
}

// Param returns a captured route value by name, or "" if the current route
// has no such capture.
func (c *Ctx) Param(name string) string {
	return c.Request.RouteValues[name]
}

// Cookie returns a request cookie's value by name (case-sensitive).
func (c *Ctx) Cookie(name string) string {
	v, _ := c.Request.Headers.TryGetCookie(name)
	return v
}

// TryCookie is Cookie with a presence flag.
func (c *Ctx) TryCookie(name string) (string, bool) {
	return c.Request.Headers.TryGetCookie(name)
}

// Header returns a request header's value by name (case-insensitive).
func (c *Ctx) Header(name string) string {
	return c.Request.Headers.Get(name)
}

// Get is an alias for Header, kept for call sites that read more naturally
// as "get the incoming header".
func (c *Ctx) Get(name string) string {
	return c.Request.Headers.Get(name)
}

// Set adds a response header.
func (c *Ctx) Set(name, value string) {
	c.Response.AddHeader(name, value)
}

// Status sets the response status code.
func (c *Ctx) Status(code int) *Ctx {
	c.Response.Status(code)
	return c
}

// IP resolves the caller's address: the first entry of X-Forwarded-For if
// present, else X-Real-Ip, else the transport's remote address. Trusting
// forwarding headers unconditionally is a deployment decision left to a
// reverse-proxy-aware middleware; this is the bare fallback chain.
func (c *Ctx) IP() string {
	if fwd := c.Request.Headers.Get(HeaderXForwardedFor); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	if real := c.Request.Headers.Get(HeaderXRealIP); real != "" {
		return real
	}
	return c.RemoteAddr()
}

// RemoteAddr returns the transport's remote address, or "" when the
// transport doesn't expose one.
func (c *Ctx) RemoteAddr() string {
	if c.session == nil {
		return ""
	}
	if ra, ok := c.session.transport.(interface{ RemoteAddr() net.Addr }); ok {
		if addr := ra.RemoteAddr(); addr != nil {
			return addr.String()
		}
	}
	return ""
}

// BindJSON decodes the request body as JSON into obj.
func (c *Ctx) BindJSON(obj any) error {
	if c.Request.Body == nil {
		return errors.New("ember: request body is nil")
	}
	if err := json.Unmarshal(c.Request.Body, obj); err != nil {
		return fmt.Errorf("ember: json decode: %w", err)
	}
	return nil
}

// BindForm parses the request body as application/x-www-form-urlencoded,
// multipart/form-data, text/plain, or no Content-Type (treated as
// URL-encoded), binding matching `form:"name"`-tagged fields of obj, which
// must be a pointer to a struct. Fields with no tag or an empty value are
// skipped; the first value that fails conversion stops the bind with an
// error, leaving fields bound before it already set.
func (c *Ctx) BindForm(obj any) error {
	if c.Request.Body == nil {
		return errors.New("ember: request body is nil")
	}
	objValue := reflect.ValueOf(obj)
	if objValue.Kind() != reflect.Ptr || objValue.Elem().Kind() != reflect.Struct {
		return errors.New("ember: obj must be a pointer to a struct")
	}

	contentType := c.Request.Headers.Get(HeaderContentType)
	values, err := parseFormValues(c, contentType)
	if err != nil {
		return err
	}

	elem := objValue.Elem()
	t := elem.Type()
	for i := 0; i < elem.NumField(); i++ {
		field := elem.Field(i)
		if !field.CanSet() {
			continue
		}
		tag := t.Field(i).Tag.Get("form")
		if tag == "" {
			continue
		}
		raw := values.Get(tag)
		if raw == "" {
			continue
		}
		if !setScalar(field, raw) {
			return fmt.Errorf("ember: failed to bind form field %q", tag)
		}
	}
	return nil
}

func parseFormValues(c *Ctx, contentType string) (url.Values, error) {
	switch {
	case strings.HasPrefix(contentType, "application/x-www-form-urlencoded"),
		contentType == "", strings.HasPrefix(contentType, "text/plain"):
		values, err := url.ParseQuery(string(c.Request.Body))
		if err != nil {
			return nil, fmt.Errorf("ember: parse form: %w", err)
		}
		return values, nil
	case strings.HasPrefix(contentType, "multipart/form-data"):
		httpReq, err := http.NewRequest(c.Request.Method, c.Request.RawTarget, bytes.NewReader(c.Request.Body))
		if err != nil {
			return nil, fmt.Errorf("ember: build multipart request: %w", err)
		}
		httpReq.Header.Set(HeaderContentType, contentType)
		if err := httpReq.ParseMultipartForm(32 << 20); err != nil {
			return nil, fmt.Errorf("ember: parse multipart form: %w", err)
		}
		return httpReq.Form, nil
	default:
		return nil, fmt.Errorf("ember: unsupported Content-Type for form binding: %s", contentType)
	}
}
