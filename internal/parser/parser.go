// Package parser implements the core's incremental HTTP/1.1 request parser:
// given accumulated connection bytes, decode one complete request in place
// and report how many bytes it occupied. It wraps evanphx/wildcat (used for
// its header-region validation) with the chunked/length-prefixed body
// framing, size-limit enforcement, and ordered-header extraction the spec's
// Request/Headers model needs but wildcat's minimal FindHeader-by-name API
// does not expose.
package parser

import (
	"bytes"
	"errors"
	"strconv"

	"github.com/evanphx/wildcat"

	"github.com/emberhttp/ember/internal/bufferpool"
)

// ErrBadRequest and ErrRequestTooLarge mirror the core's sentinel error
// kinds; the parser never imports the root package (it would cycle), so it
// raises its own values, and the root package's connection loop classifies
// them with errors.Is against these values (the root sentinels of the same
// names are separate values).
var (
	ErrBadRequest      = errors.New("parser: bad request")
	ErrRequestTooLarge = errors.New("parser: request too large")
)

var (
	crlf     = []byte("\r\n")
	crlfcrlf = []byte("\r\n\r\n")
)

// HeaderLine is one decoded (name, value) header pair, trimmed of ASCII
// whitespace. Name and Value are string copies; the slice holding them is
// reused by the next TryRead call on the same Parser.
type HeaderLine struct {
	Name  string
	Value string
}

// Result is one fully-decoded request. Method, Path, RawTarget, Query, and
// Protocol are string copies; Body is either a view into the input buffer
// (length-prefixed framing) or a buffer rented from the caller's pool
// (chunked framing), flagged by BodyPooled so the caller knows to return it
// exactly once after dispatch.
type Result struct {
	Method     string
	Path       string
	RawTarget  string
	Query      string
	Protocol   string
	Headers    []HeaderLine
	Body       []byte
	BodyPooled bool
}

// Parser decodes one request at a time from a growable receive buffer. It
// is not safe for concurrent use; each Session owns one.
type Parser struct {
	wild    *wildcat.HTTPParser
	headers []HeaderLine
}

// New creates a Parser.
func New() *Parser {
	return &Parser{wild: wildcat.NewHTTPParser()}
}

// TryRead attempts to decode one request from buf[offset : offset+length].
// consumed == 0 with a nil error means "need more data". A non-nil error is
// ErrBadRequest or ErrRequestTooLarge, both fatal for the connection.
// bodyPool rents the chunked-body accumulation buffer; its Return must be
// called by the caller once Result.BodyPooled is no longer needed.
func (p *Parser) TryRead(buf []byte, offset, length int, maxHeaderSize int, maxBodySize int64, bodyPool *bufferpool.Pool) (consumed int, result Result, err error) {
	window := buf[offset : offset+length]

	// Step 1: locate the header terminator.
	termIdx := bytes.Index(window, crlfcrlf)
	if termIdx < 0 {
		if length > maxHeaderSize {
			return 0, Result{}, ErrRequestTooLarge
		}
		return 0, Result{}, nil
	}
	headerRegionLen := termIdx + 4

	// Step 2: header-size limit.
	if headerRegionLen > maxHeaderSize {
		return 0, Result{}, ErrRequestTooLarge
	}
	headerRegion := window[:headerRegionLen]

	// wildcat validates request-line and header structure; any error it
	// raises on a complete header region is a malformed request, not a
	// need-more-data condition (step 1 already proved completeness).
	if _, werr := p.wild.Parse(headerRegion); werr != nil {
		return 0, Result{}, ErrBadRequest
	}

	// Step 3/4: parse the request line and header lines ourselves, since
	// wildcat exposes lookup-by-name (FindHeader) but not an ordered
	// enumeration, and the spec's hot+spill model needs order.
	lineEnd := bytes.Index(headerRegion, crlf)
	if lineEnd < 0 {
		return 0, Result{}, ErrBadRequest
	}
	requestLine := headerRegion[:lineEnd]

	sp1 := bytes.IndexByte(requestLine, ' ')
	if sp1 < 0 {
		return 0, Result{}, ErrBadRequest
	}
	sp2 := bytes.IndexByte(requestLine[sp1+1:], ' ')
	if sp2 < 0 {
		return 0, Result{}, ErrBadRequest
	}
	sp2 += sp1 + 1

	method := string(requestLine[:sp1])
	rawTarget := string(requestLine[sp1+1 : sp2])
	protocol := string(requestLine[sp2+1:])
	if method == "" || protocol == "" {
		return 0, Result{}, ErrBadRequest
	}

	path, query := rawTarget, ""
	if qIdx := indexByteString(rawTarget, '?'); qIdx >= 0 {
		path, query = rawTarget[:qIdx], rawTarget[qIdx+1:]
	}

	p.headers = p.headers[:0]
	rest := headerRegion[lineEnd+2 : headerRegionLen-2] // strip request line CRLF and terminating CRLFCRLF
	for len(rest) > 0 {
		nl := bytes.Index(rest, crlf)
		if nl < 0 {
			nl = len(rest)
		}
		line := rest[:nl]
		if len(line) > 0 {
			colon := bytes.IndexByte(line, ':')
			if colon < 0 {
				return 0, Result{}, ErrBadRequest
			}
			name := string(bytes.TrimSpace(line[:colon]))
			value := string(bytes.TrimSpace(line[colon+1:]))
			if name == "" {
				return 0, Result{}, ErrBadRequest
			}
			p.headers = append(p.headers, HeaderLine{Name: name, Value: value})
		}
		if nl == len(rest) {
			break
		}
		rest = rest[nl+2:]
	}

	// Step 5: framing selection.
	transferEncoding, hasTE := lookupHeader(p.headers, "Transfer-Encoding")
	contentLengthRaw, hasCL := lookupHeader(p.headers, "Content-Length")

	chunked := hasTE && containsTokenFold(transferEncoding, "chunked")

	base := Result{
		Method:    method,
		Path:      path,
		RawTarget: rawTarget,
		Query:     query,
		Protocol:  protocol,
		Headers:   p.headers,
	}

	if chunked {
		return p.readChunkedBody(window, headerRegionLen, maxBodySize, bodyPool, base)
	}

	if hasCL {
		contentLength, perr := strconv.ParseInt(contentLengthRaw, 10, 63)
		if perr != nil || contentLength < 0 {
			return 0, Result{}, ErrBadRequest
		}
		if contentLength > maxBodySize {
			return 0, Result{}, ErrRequestTooLarge
		}
		bodyEnd := headerRegionLen + int(contentLength)
		if length < bodyEnd {
			return 0, Result{}, nil
		}
		base.Body = window[headerRegionLen:bodyEnd]
		return bodyEnd, base, nil
	}

	// No body.
	return headerRegionLen, base, nil
}

// readChunkedBody implements §4.2 step 7: repeatedly read a hex size line
// (ignoring any ;chunk-ext), then that many bytes, then CRLF; size 0
// terminates, optionally followed by trailer lines up to CRLFCRLF.
func (p *Parser) readChunkedBody(window []byte, bodyStart int, maxBodySize int64, bodyPool *bufferpool.Pool, base Result) (int, Result, error) {
	acc := bodyPool.Rent(4096)
	i := bodyStart
	for {
		lineEnd := indexCRLF(window, i)
		if lineEnd < 0 {
			bodyPool.Return(acc)
			return 0, Result{}, nil
		}
		sizeLine := window[i:lineEnd]
		if semi := bytes.IndexByte(sizeLine, ';'); semi >= 0 {
			sizeLine = sizeLine[:semi]
		}
		size, ok := parseHexSize(sizeLine)
		if !ok {
			bodyPool.Return(acc)
			return 0, Result{}, ErrBadRequest
		}
		i = lineEnd + 2

		if size == 0 {
			// A bare CRLF ends the body when there are no trailers.
			if i+2 <= len(window) && window[i] == '\r' && window[i+1] == '\n' {
				consumed := i + 2
				base.Body = acc
				base.BodyPooled = true
				return consumed, base, nil
			}
			// Otherwise, optional trailers up to the terminating CRLFCRLF.
			trailerEnd := bytes.Index(window[i:], crlfcrlf)
			if trailerEnd < 0 {
				bodyPool.Return(acc)
				return 0, Result{}, nil
			}
			consumed := i + trailerEnd + 4
			base.Body = acc
			base.BodyPooled = true
			return consumed, base, nil
		}

		if int64(len(acc)+size) > maxBodySize {
			bodyPool.Return(acc)
			return 0, Result{}, ErrRequestTooLarge
		}
		if i+size+2 > len(window) {
			bodyPool.Return(acc)
			return 0, Result{}, nil
		}
		if window[i+size] != '\r' || window[i+size+1] != '\n' {
			bodyPool.Return(acc)
			return 0, Result{}, ErrBadRequest
		}

		if cap(acc)-len(acc) < size {
			grown := make([]byte, len(acc), len(acc)+size+4096)
			copy(grown, acc)
			acc = grown
		}
		acc = append(acc, window[i:i+size]...)
		i += size + 2
	}
}

func indexCRLF(buf []byte, from int) int {
	idx := bytes.Index(buf[from:], crlf)
	if idx < 0 {
		return -1
	}
	return from + idx
}

func parseHexSize(b []byte) (int, bool) {
	if len(b) == 0 {
		return 0, false
	}
	n := 0
	for _, c := range b {
		var d int
		switch {
		case c >= '0' && c <= '9':
			d = int(c - '0')
		case c >= 'a' && c <= 'f':
			d = int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			d = int(c-'A') + 10
		default:
			return 0, false
		}
		n = n*16 + d
	}
	return n, true
}

func lookupHeader(headers []HeaderLine, name string) (string, bool) {
	for i := range headers {
		if equalFold(headers[i].Name, name) {
			return headers[i].Value, true
		}
	}
	return "", false
}

func containsTokenFold(list, token string) bool {
	for _, part := range splitComma(list) {
		if equalFold(trimSpace(part), token) {
			return true
		}
	}
	return false
}

// Small ASCII-only helpers kept local to avoid importing strings for
// hot-path comparisons the way the teacher's internal packages do.

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func trimSpace(s string) string {
	start := 0
	for start < len(s) && isASCIISpace(s[start]) {
		start++
	}
	end := len(s)
	for end > start && isASCIISpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isASCIISpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func indexByteString(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}
