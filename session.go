package ember

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/emberhttp/ember/internal/bufferpool"
	"github.com/emberhttp/ember/internal/parser"
)

// Transport is the core's view of a connection: an opaque duplex byte
// stream. TLS termination, if any, happens below this interface — the core
// never sees a raw socket versus a TLS-wrapped one differently.
type Transport interface {
	io.Reader
	io.Writer
}

var recvBufferPool = bufferpool.New(4096)
var parseBufferPool = bufferpool.New(8192)

// Session is the per-connection object: it owns the receive buffer, the
// growable parse buffer, parser state, and the reusable Request/Response
// pair. Created by the acceptor, lives until EOF/error/idle-timeout.
type Session struct {
	ID string

	transport Transport
	server    *server

	parseBuf []byte // growable; [0:count) holds unconsumed bytes, offset marks the start of the next request
	offset   int
	count    int

	parser *parser.Parser

	request  *Request
	response *Response
	ctx      *Ctx

	closeAfterResponse bool
	lastActivity       int64 // unix nanos, atomic

	// asyncBusy is set while a Future-returning handler's result is still
	// outstanding on the worker pool. While set, feed() must not touch
	// parseBuf/offset/count beyond appending newly-read bytes: the request
	// currently out at the handler may still hold views into parseBuf, and
	// compacting or re-parsing would corrupt them out from under it.
	asyncBusy int32

	sendMu sync.Mutex
	closed int32
}

func newSession(transport Transport, srv *server) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		transport: transport,
		server:    srv,
		parseBuf:  parseBufferPool.Rent(8192),
		parser:    parser.New(),
	}
	s.request = newRequest(bodyPoolFor(srv))
	s.response = newResponse(s)
	s.ctx = newCtx(s)
	s.touch()
	return s
}

func bodyPoolFor(srv *server) *bufferpool.Pool {
	if srv != nil {
		return srv.chunkedBodyPool
	}
	return fileChunkPool
}

func (s *Session) touch() {
	atomic.StoreInt64(&s.lastActivity, time.Now().UnixNano())
}

func (s *Session) idleSince() time.Duration {
	last := atomic.LoadInt64(&s.lastActivity)
	return time.Since(time.Unix(0, last))
}

func (s *Session) isClosed() bool {
	return atomic.LoadInt32(&s.closed) == 1
}

// ensureCapacity grows the parse buffer to fit additional more bytes,
// doubling on demand and returning any replaced buffer to the pool, per
// §4.7 step 2.
func (s *Session) ensureCapacity(additional int) {
	s.parseBuf = s.parseBuf[:cap(s.parseBuf)]
	need := s.count + additional
	if need <= cap(s.parseBuf) {
		return
	}
	newCap := cap(s.parseBuf)
	if newCap == 0 {
		newCap = 8192
	}
	for newCap < need {
		newCap *= 2
	}
	grown := parseBufferPool.Rent(newCap)
	grown = grown[:cap(grown)]
	copy(grown, s.parseBuf[:s.count])
	parseBufferPool.Return(s.parseBuf)
	s.parseBuf = grown
}

// compact copies [offset, count) to the front and resets count, per §4.7
// step 5.
func (s *Session) compact() {
	if s.offset == 0 {
		return
	}
	remaining := s.count - s.offset
	if remaining > 0 {
		copy(s.parseBuf, s.parseBuf[s.offset:s.count])
	}
	s.offset = 0
	s.count = remaining
	s.parseBuf = s.parseBuf[:cap(s.parseBuf)]
}

// trySend writes buf to the transport under the per-session send gate.
// Closed-peer conditions (reset, aborted, disposed) are silently absorbed
// on both TLS and non-TLS transports, per the Design Notes; other I/O
// errors propagate as ErrIoError.
func (s *Session) trySend(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if !s.sendMu.TryLock() {
		return ErrConcurrentSend
	}
	defer s.sendMu.Unlock()

	return s.writeLocked(buf)
}

// trySendVectored writes header and body as one logical send, holding
// sendMu for both writes so no other goroutine's trySend/trySendVectored
// call can interleave a write between them. Go's net.Conn exposes no
// writev, so this is two Write calls under one critical section rather
// than a single syscall; the transport abstraction doesn't carry a
// platform-specific writev wrapper to make a true single syscall possible.
func (s *Session) trySendVectored(header, body []byte) error {
	if len(header) == 0 && len(body) == 0 {
		return nil
	}
	if !s.sendMu.TryLock() {
		return ErrConcurrentSend
	}
	defer s.sendMu.Unlock()

	if err := s.writeLocked(header); err != nil {
		return err
	}
	return s.writeLocked(body)
}

// writeLocked performs the actual transport write; callers must hold sendMu.
func (s *Session) writeLocked(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if s.isClosed() {
		return nil
	}
	_, err := s.transport.Write(buf)
	if err != nil {
		if isClosedConnError(err) {
			return nil
		}
		return NewHttpErrorWithError(StatusInternalServerError, "write failed", fmt.Errorf("%w: %v", ErrIoError, err))
	}
	return nil
}

func (s *Session) dispose() {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return
	}
	s.request.releaseBody()
	s.response.releaseOwnedBody()
	if s.parseBuf != nil {
		parseBufferPool.Return(s.parseBuf)
		s.parseBuf = nil
	}
	if closer, ok := s.transport.(io.Closer); ok {
		_ = closer.Close()
	}
}

func isClosedConnError(err error) bool {
	if err == nil {
		return false
	}
	if err == io.EOF || err == io.ErrClosedPipe || err == io.ErrUnexpectedEOF {
		return true
	}
	return isNetClosedOrReset(err)
}
