package ember

import (
	"fmt"
	"os"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/emberhttp/ember/internal/bufferpool"
)

type bodyTag int

const (
	bodyNone bodyTag = iota
	bodySegment       // array-backed: borrowed slice or owned pooled buffer, eligible for the single vectored send
	bodyBorrowedView  // borrowed, not array-backed in a way we can vector — two-send fallback
	bodyFile
)

var fileChunkPool = bufferpool.New(64 * 1024)
var headerWriterPool = bufferpool.New(512)

// Response is owned by the Session and reset between requests. It
// accumulates status, headers, cookies, and a body, then serializes a
// single HTTP/1.1 response frame on Send.
type Response struct {
	session *Session

	statusCode int
	statusText string

	contentType           string
	hasCustomContentLength bool
	customHeaders         []HeaderPair

	body           bodyTag
	segment        []byte // bodySegment / bodyBorrowedView payload
	segmentOwned   bool   // true => rented from a buffer pool, released on reset/send
	filePath       string
	fileLength     int64

	cookies []cookie

	compressionMode    CompressionMode
	compressionMinSize int
	compressionLevel   int

	sent bool
}

func newResponse(session *Session) *Response {
	r := &Response{session: session}
	r.reset()
	return r
}

// reset releases every owned buffer and restores defaults, per the "no
// residual pool references" design note.
func (r *Response) reset() {
	r.releaseOwnedBody()
	r.statusCode = StatusOK
	r.statusText = ""
	r.contentType = ""
	r.hasCustomContentLength = false
	r.customHeaders = r.customHeaders[:0]
	r.body = bodyNone
	r.segment = nil
	r.segmentOwned = false
	r.filePath = ""
	r.fileLength = 0
	r.cookies = r.cookies[:0]
	r.compressionMode = CompressionAuto
	r.compressionMinSize = 512
	r.compressionLevel = compressionLevelFastest
	r.sent = false
}

func (r *Response) releaseOwnedBody() {
	if r.segmentOwned && r.segment != nil {
		fileChunkPool.Return(r.segment)
	}
	r.segmentOwned = false
}

// Status sets the status line. An empty text resolves from the internal
// status table.
func (r *Response) Status(code int, text ...string) *Response {
	r.statusCode = code
	if len(text) > 0 && text[0] != "" {
		r.statusText = text[0]
	} else {
		r.statusText = ""
	}
	return r
}

// StatusCode returns the status code currently set on the response.
func (r *Response) StatusCode() int {
	return r.statusCode
}

func (r *Response) resolvedStatusText() string {
	if r.statusText != "" {
		return r.statusText
	}
	return StatusText(r.statusCode)
}

// ContentType sets the Content-Type header value directly.
func (r *Response) ContentType(value string) *Response {
	r.contentType = value
	return r
}

// ContentTypeFromExtension resolves ext through the internal MIME table.
func (r *Response) ContentTypeFromExtension(ext string) *Response {
	r.contentType = mimeFromExtension(ext)
	return r
}

// AddHeader appends a custom header verbatim, in insertion order. Setting
// Content-Length disables auto-emission of that header.
func (r *Response) AddHeader(name, value string) *Response {
	if equalFoldHeader(name, HeaderContentLength) {
		r.hasCustomContentLength = true
	}
	r.customHeaders = append(r.customHeaders, HeaderPair{Name: name, Value: value})
	return r
}

func equalFoldHeader(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
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

// Header returns a previously added response header's value, or "" if it
// was never set.
func (r *Response) Header(name string) string {
	v, _ := r.customHeaderValue(name)
	return v
}

func (r *Response) customHeaderValue(name string) (string, bool) {
	for _, h := range r.customHeaders {
		if equalFoldHeader(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// Body sets a borrowed body view. Array-backed slices are internally
// retagged for the single-syscall send path; owner, if non-nil, is pinned
// only to document intended lifetime (Go's GC needs no help, but the API
// shape follows the spec's borrowed/lifetime-managed distinction).
func (r *Response) Body(view []byte, owner ...any) *Response {
	r.releaseOwnedBody()
	r.segment = view
	r.segmentOwned = false
	r.body = bodySegment
	return r
}

// Text UTF-8 encodes s into a pooled buffer tagged owned.
func (r *Response) Text(s string, contentType ...string) *Response {
	r.releaseOwnedBody()
	buf := fileChunkPool.Rent(len(s))
	buf = append(buf, s...)
	r.segment = buf
	r.segmentOwned = true
	r.body = bodySegment
	if len(contentType) > 0 {
		r.contentType = contentType[0]
	} else {
		r.contentType = "text/plain; charset=utf-8"
	}
	return r
}

// JSON encodes value through a pooled writer and copies the result into a
// pooled body buffer the Response owns until it is sent or replaced.
func (r *Response) JSON(value any, contentType ...string) *Response {
	r.releaseOwnedBody()
	w := bufferpool.RentWriter()
	enc := json.NewEncoder(w)
	if err := enc.Encode(value); err != nil {
		bufferpool.ReturnWriter(w)
		r.Status(StatusInternalServerError)
		r.body = bodyNone
		return r
	}
	buf := w.Bytes()
	if n := len(buf); n > 0 && buf[n-1] == '\n' {
		buf = buf[:n-1] // json.Encoder always appends a trailing newline
	}
	out := fileChunkPool.Rent(len(buf))
	out = append(out, buf...)
	bufferpool.ReturnWriter(w)

	r.segment = out
	r.segmentOwned = true
	r.body = bodySegment
	if len(contentType) > 0 {
		r.contentType = contentType[0]
	} else {
		r.contentType = "application/json; charset=utf-8"
	}
	return r
}

// File tags the body as a file stream; length is recorded from stat now so
// it is fixed at selection time as the spec requires. An IoError-class
// error is returned (not raised) on stat failure.
func (r *Response) File(path string) (*Response, error) {
	info, err := os.Stat(path)
	if err != nil {
		return r, NewHttpErrorWithError(StatusInternalServerError, "stat failed", fmt.Errorf("%w: %v", ErrIoError, err))
	}
	r.releaseOwnedBody()
	r.filePath = path
	r.fileLength = info.Size()
	r.body = bodyFile
	return r, nil
}

// SetCookie appends a cookie to the ordered Set-Cookie list.
func (r *Response) SetCookie(name, value string, options CookieOptions) *Response {
	r.cookies = append(r.cookies, cookie{name: name, value: value, options: options})
	return r
}

// DeleteCookie is shorthand for Max-Age=0; Expires=<epoch>.
func (r *Response) DeleteCookie(name string, pathAndDomain ...string) *Response {
	opts := CookieOptions{Expires: time.Unix(0, 0)}
	if len(pathAndDomain) > 0 {
		opts.Path = pathAndDomain[0]
	}
	if len(pathAndDomain) > 1 {
		opts.Domain = pathAndDomain[1]
	}
	r.cookies = append(r.cookies, cookie{name: name, value: "", options: opts})
	r.cookies[len(r.cookies)-1].forceMaxAgeZero = true
	return r
}

// Compression configures the negotiation mode for Send.
func (r *Response) Compression(mode CompressionMode, minSizeAndLevel ...int) *Response {
	r.compressionMode = mode
	if len(minSizeAndLevel) > 0 {
		r.compressionMinSize = minSizeAndLevel[0]
	}
	if len(minSizeAndLevel) > 1 {
		r.compressionLevel = minSizeAndLevel[1]
	}
	return r
}

// NoCompression disables compression for this response.
func (r *Response) NoCompression() *Response {
	r.compressionMode = CompressionDisabled
	return r
}

// NotFound, InternalServerError, Unauthorized, Forbidden are status+body
// aliases matching the spec's convenience set.
func (r *Response) NotFound(message ...string) *Response {
	return r.errorAlias(StatusNotFound, "Not Found", message)
}
func (r *Response) InternalServerError(message ...string) *Response {
	return r.errorAlias(StatusInternalServerError, "Internal Server Error", message)
}
func (r *Response) Unauthorized(message ...string) *Response {
	return r.errorAlias(StatusUnauthorized, "Unauthorized", message)
}
func (r *Response) Forbidden(message ...string) *Response {
	return r.errorAlias(StatusForbidden, "Forbidden", message)
}

func (r *Response) errorAlias(code int, def string, message []string) *Response {
	text := def
	if len(message) > 0 && message[0] != "" {
		text = message[0]
	}
	r.Status(code)
	return r.Text(text)
}

// Redirect is a 302 + Location alias.
func (r *Response) Redirect(url string) *Response {
	r.Status(StatusFound)
	r.AddHeader(HeaderLocation, url)
	return r
}

// Send serializes and transmits the response. Idempotent: a second call is
// a no-op.
func (r *Response) Send() error {
	if r.sent {
		return nil
	}
	r.sent = true

	finalBody, finalLen, isFile := r.resolveBodyView()

	candidate := r.compressionCandidate(finalLen, isFile)
	var compressed []byte
	var chosenEncoding encoding
	if candidate {
		chosenEncoding = r.negotiateCompression()
		if chosenEncoding != encodingNone {
			out := fileChunkPool.Rent(len(finalBody) / 2)
			if err := compress(chosenEncoding, r.compressionLevel, finalBody, &out); err != nil {
				fileChunkPool.Return(out)
				chosenEncoding = encodingNone
			} else if r.compressionMode == CompressionAuto && len(out) >= len(finalBody) {
				fileChunkPool.Return(out)
				chosenEncoding = encodingNone
			} else {
				compressed = out
			}
		}
	}

	header := r.serializeHeader(finalBody, finalLen, isFile, chosenEncoding, compressed)
	defer headerWriterPool.Return(header)

	var sendErr error
	switch {
	case isFile:
		sendErr = r.session.trySend(header)
		if sendErr == nil {
			sendErr = r.streamFile()
		}
	case finalLen == 0 && compressed == nil:
		sendErr = r.session.trySend(header)
	case compressed != nil:
		sendErr = r.session.trySendVectored(header, compressed)
		fileChunkPool.Return(compressed)
	case r.body == bodySegment:
		sendErr = r.session.trySendVectored(header, finalBody)
	default:
		sendErr = r.session.trySend(header)
		if sendErr == nil {
			sendErr = r.session.trySend(finalBody)
		}
	}

	r.releaseOwnedBody()
	return sendErr
}

// resolveBodyView resolves §4.4 step 1: the body view and its length.
func (r *Response) resolveBodyView() (view []byte, length int64, isFile bool) {
	switch r.body {
	case bodyFile:
		return nil, r.fileLength, true
	case bodySegment, bodyBorrowedView:
		return r.segment, int64(len(r.segment)), false
	default:
		return nil, 0, false
	}
}

// compressionCandidate implements §4.4 step 2.
func (r *Response) compressionCandidate(bodyLength int64, isFile bool) bool {
	if bodyLength <= 0 || isFile {
		return false
	}
	if r.hasCustomContentLength {
		return false
	}
	if r.statusCode == StatusNoContent || r.statusCode == StatusNotModified {
		return false
	}
	if _, ok := r.customHeaderValue(HeaderContentEncoding); ok {
		return false
	}
	if noncompressibleType(r.contentType) {
		return false
	}
	switch r.compressionMode {
	case CompressionDisabled:
		return false
	case CompressionAuto:
		return bodyLength >= int64(r.compressionMinSize)
	case CompressionForceGzip, CompressionForceDeflate:
		return true
	}
	return false
}

func (r *Response) negotiateCompression() encoding {
	acceptEncoding := ""
	if r.session != nil && r.session.request != nil {
		acceptEncoding = r.session.request.Headers.Get(HeaderAcceptEncoding)
	}
	return negotiateEncoding(r.compressionMode, acceptEncoding)
}

// serializeHeader implements §4.4 steps 4-11, writing into a pooled buffer
// the caller must return after the send completes.
func (r *Response) serializeHeader(body []byte, bodyLen int64, isFile bool, enc encoding, compressed []byte) []byte {
	buf := headerWriterPool.Rent(256)

	buf = append(buf, "HTTP/1.1 "...)
	buf = strconv.AppendInt(buf, int64(r.statusCode), 10)
	buf = append(buf, ' ')
	buf = append(buf, r.resolvedStatusText()...)
	buf = append(buf, "\r\n"...)

	finalLen := bodyLen
	if enc != encodingNone {
		finalLen = int64(len(compressed))
	}
	if !r.hasCustomContentLength {
		buf = append(buf, "Content-Length: "...)
		buf = strconv.AppendInt(buf, finalLen, 10)
		buf = append(buf, "\r\n"...)
	}

	if r.contentType != "" {
		buf = append(buf, "Content-Type: "...)
		buf = append(buf, r.contentType...)
		buf = append(buf, "\r\n"...)
	}

	if enc != encodingNone {
		buf = append(buf, "Content-Encoding: "...)
		buf = append(buf, enc.token()...)
		buf = append(buf, "\r\n"...)
		if _, hasVary := r.customHeaderValue(HeaderVary); !hasVary {
			buf = append(buf, "Vary: Accept-Encoding\r\n"...)
		}
	}

	if r.session != nil && r.session.closeAfterResponse {
		buf = append(buf, "Connection: close\r\n"...)
	} else {
		buf = append(buf, "Connection: keep-alive\r\n"...)
	}

	for i := range r.cookies {
		c := &r.cookies[i]
		if c.name == "" {
			continue
		}
		buf = append(buf, "Set-Cookie: "...)
		buf = append(buf, c.String()...)
		buf = append(buf, "\r\n"...)
	}

	for _, h := range r.customHeaders {
		buf = append(buf, h.Name...)
		buf = append(buf, ": "...)
		buf = append(buf, h.Value...)
		buf = append(buf, "\r\n"...)
	}

	buf = append(buf, "\r\n"...)

	_ = body // body bytes are sent separately by the write strategy, not inlined here
	_ = isFile
	return buf
}

func (r *Response) streamFile() error {
	f, err := os.Open(r.filePath)
	if err != nil {
		return NewHttpErrorWithError(StatusInternalServerError, "open failed", fmt.Errorf("%w: %v", ErrIoError, err))
	}
	defer f.Close()

	chunk := fileChunkPool.Rent(64 * 1024)
	defer fileChunkPool.Return(chunk)
	chunk = chunk[:cap(chunk)]

	for {
		n, rerr := f.Read(chunk)
		if n > 0 {
			if werr := r.session.trySend(chunk[:n]); werr != nil {
				return werr
			}
		}
		if rerr != nil {
			break
		}
	}
	return nil
}
