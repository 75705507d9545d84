package ember

import (
	"bufio"
	"bytes"
	"net"
	"net/http"
	"strings"
	"sync"
)

// memTransport is an in-memory Transport that records whatever Send writes
// to it, so a Ctx can be driven and inspected without a live socket.
type memTransport struct {
	mu  sync.Mutex
	out bytes.Buffer
}

func (t *memTransport) Read([]byte) (int, error)  { return 0, nil }
func (t *memTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.out.Write(p)
}

// Bytes returns everything written to the transport so far.
func (t *memTransport) Bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.out.Bytes()...)
}

func (t *memTransport) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
}

// NewTestCtx builds a Ctx backed by an in-memory transport, for testing
// handlers and middleware without a running Server. The query string is
// parsed as the connection loop would; route values stay empty until a
// Router dispatches the Ctx; headers and body are caller-supplied. The returned recorder's Bytes() contains the raw
// HTTP/1.1 response once the handler calls Response.Send.
func NewTestCtx(method, target string, headers map[string]string, body []byte) (*Ctx, *memTransport) {
	transport := &memTransport{}
	sess := newSession(transport, nil)

	sess.request.Method = method
	sess.request.Protocol = "HTTP/1.1"
	path, query := splitTarget(target)
	sess.request.Path = path
	sess.request.RawTarget = target
	parseQueryString(query, sess.request.Query)
	for name, value := range headers {
		sess.request.Headers.Add(name, value)
	}
	sess.request.Body = body

	return sess.ctx, transport
}

func splitTarget(target string) (path, query string) {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i], target[i+1:]
	}
	return target, ""
}

// ParseTestResponse decodes a recorded response's status code and headers
// using the standard library's HTTP response parser.
func ParseTestResponse(raw []byte) (*http.Response, error) {
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), nil)
}
