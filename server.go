package ember

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/gnet/v2"
	"golang.org/x/sync/errgroup"

	"github.com/emberhttp/ember/internal/bufferpool"
	"github.com/emberhttp/ember/internal/parser"
	"github.com/emberhttp/ember/internal/workerpool"
	"github.com/emberhttp/ember/log"
)

// noopGnetLogger silences gnet's own logging; ember logs through its own
// logger exclusively, per the Design Notes.
type noopGnetLogger struct{}

func (noopGnetLogger) Debugf(string, ...interface{}) {}
func (noopGnetLogger) Infof(string, ...interface{})  {}
func (noopGnetLogger) Warnf(string, ...interface{})  {}
func (noopGnetLogger) Errorf(string, ...interface{}) {}
func (noopGnetLogger) Fatalf(string, ...interface{}) {}

// server is the internal gnet event handler: the event-driven, multi-core
// accept/OnTraffic loop the connection-loop algorithm runs inside.
type server struct {
	gnet.BuiltinEventEngine

	config          Config
	router          *Router
	chunkedBodyPool *bufferpool.Pool
	tlsAdapter      TLSAdapter

	eng      gnet.Engine
	listener net.Listener // set only on the TLS blocking-listener path

	sessionsMu sync.Mutex
	sessions   map[*Session]struct{}

	stopSweep chan struct{}
	sweepDone chan struct{}

	logger *log.Logger
}

// Server is the embeddable HTTP server: a Router plus the listener
// lifecycle (Run/Shutdown) and Module installation.
type Server struct {
	srv    *server
	router *Router
}

// New creates a Server with the given configuration (DefaultConfig() if
// omitted).
func New(config ...Config) *Server {
	cfg := DefaultConfig()
	if len(config) > 0 {
		cfg = config[0]
	}
	r := NewRouter()

	console := log.DefaultConsoleWriter()
	logger := log.New(console, log.InfoLevel)

	srv := &server{
		config:          cfg,
		router:          r,
		chunkedBodyPool: bufferpool.New(4096),
		sessions:        make(map[*Session]struct{}),
		logger:          logger,
	}
	return &Server{srv: srv, router: r}
}

// Use installs a Module; modules MUST be installed before Run.
func (s *Server) Use(m Module) *Server {
	m.Install(s)
	return s
}

// Router exposes the underlying Router for route registration.
func (s *Server) Router() *Router { return s.router }

func (s *Server) MapGet(path string, handler any, mw ...Middleware) *Server {
	s.router.MapGet(path, handler, mw...)
	return s
}
func (s *Server) MapPost(path string, handler any, mw ...Middleware) *Server {
	s.router.MapPost(path, handler, mw...)
	return s
}
func (s *Server) MapPut(path string, handler any, mw ...Middleware) *Server {
	s.router.MapPut(path, handler, mw...)
	return s
}
func (s *Server) MapDelete(path string, handler any, mw ...Middleware) *Server {
	s.router.MapDelete(path, handler, mw...)
	return s
}
func (s *Server) MapPatch(path string, handler any, mw ...Middleware) *Server {
	s.router.MapPatch(path, handler, mw...)
	return s
}

// UseMiddleware appends a global middleware.
func (s *Server) UseMiddleware(mw Middleware) *Server {
	s.router.UseMiddleware(mw)
	return s
}

// Group creates a prefixed sub-router.
func (s *Server) Group(prefix string) *Group {
	return s.router.Group(prefix)
}

// UseTLS installs a pluggable TLS transport adapter; must be called before
// Run.
func (s *Server) UseTLS(adapter TLSAdapter) *Server {
	s.srv.tlsAdapter = adapter
	return s
}

// Run starts the listener and blocks until Shutdown or a fatal listener
// error.
func (s *Server) Run(addr string) error {
	if addr == "" {
		addr = ":3000"
	}
	if s.srv.config.AsyncHandlerConcurrency > 0 {
		workerpool.Resize(s.srv.config.AsyncHandlerConcurrency)
	}

	if !s.srv.config.DisableStartupMessage {
		displayStartupMessage(s.srv.logger, addr)
	}

	s.srv.startIdleSweep()

	if s.srv.tlsAdapter != nil {
		err := s.srv.serveTLS(addr)
		s.srv.stopIdleSweep()
		return err
	}

	keepAlive := s.srv.config.TCPKeepAliveTime
	if !s.srv.config.KeepAlive {
		keepAlive = 0
	}
	opts := []gnet.Option{
		gnet.WithMulticore(true),
		gnet.WithLogger(noopGnetLogger{}),
		gnet.WithReuseAddr(s.srv.config.ReuseAddress),
		gnet.WithReusePort(s.srv.config.ReusePort),
		gnet.WithTCPNoDelay(tcpNoDelay(s.srv.config.NoDelay)),
		gnet.WithTCPKeepAlive(keepAlive),
		gnet.WithReadBufferCap(int(s.srv.config.ReadTimeout.Seconds()) * 1024),
		gnet.WithWriteBufferCap(int(s.srv.config.WriteTimeout.Seconds()) * 1024),
	}

	err := gnet.Run(s.srv, "tcp://"+addr, opts...)
	s.srv.stopIdleSweep()
	return err
}

func tcpNoDelay(noDelay bool) gnet.TCPSocketOpt {
	if noDelay {
		return gnet.TCPNoDelay
	}
	return gnet.TCPDelay
}

// Shutdown gracefully stops accepting new connections and drains the idle
// sweep goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if s.srv.listener != nil {
		g.Go(func() error {
			return s.srv.listener.Close()
		})
	} else {
		g.Go(func() error {
			return s.srv.eng.Stop(gctx)
		})
	}
	err := g.Wait()
	s.srv.stopIdleSweep()
	return err
}

func displayStartupMessage(logger *log.Logger, addr string) {
	logger.Info().Msg(" _____ __  __ ____  _____ ____")
	logger.Info().Msg("| ____|  \\/  | __ )| ____|  _ \\")
	logger.Info().Msg("|  _| | |\\/| |  _ \\|  _| | |_) |")
	logger.Info().Msg("| |___| |  | | |_) | |___|  _ <")
	logger.Info().Msg("|_____|_|  |_|____/|_____|_| \\_\\")
	logger.Info().Msgf("listening on %s", addr)
	logger.Info().Msg("press Ctrl+C to stop")
}

// startIdleSweep launches the single background ticker that disposes
// sessions idle longer than Config.IdleTimeout, per §5.
func (s *server) startIdleSweep() {
	interval := s.config.idleSweepInterval()
	if interval <= 0 {
		return
	}
	s.stopSweep = make(chan struct{})
	s.sweepDone = make(chan struct{})
	go func() {
		defer close(s.sweepDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopSweep:
				return
			case <-ticker.C:
				s.sweepIdleSessions()
			}
		}
	}()
}

func (s *server) stopIdleSweep() {
	if s.stopSweep == nil {
		return
	}
	close(s.stopSweep)
	<-s.sweepDone
	s.stopSweep = nil
}

func (s *server) sweepIdleSessions() {
	s.sessionsMu.Lock()
	victims := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		if sess.idleSince() >= s.config.IdleTimeout {
			victims = append(victims, sess)
		}
	}
	s.sessionsMu.Unlock()

	for _, sess := range victims {
		s.logger.Debug().Msgf("disposing idle session %s", sess.ID)
		sess.dispose()
	}
}

func (s *server) registerSession(sess *Session) {
	s.sessionsMu.Lock()
	s.sessions[sess] = struct{}{}
	s.sessionsMu.Unlock()
}

func (s *server) unregisterSession(sess *Session) {
	s.sessionsMu.Lock()
	delete(s.sessions, sess)
	s.sessionsMu.Unlock()
}

// gnetTransport adapts a gnet.Conn's Peek/Discard ring buffer to the
// plain io.Reader half of Transport, so the Session's own growable parse
// buffer (EnsureCapacity/compact) is exercised uniformly whether the
// underlying connection is a raw gnet socket or a TLS-wrapped net.Conn —
// the core never branches on transport kind.
type gnetTransport struct {
	conn gnet.Conn
}

func (t *gnetTransport) Read(p []byte) (int, error) {
	data, err := t.conn.Peek(-1)
	if len(data) == 0 {
		if err != nil && err != io.EOF {
			return 0, nil
		}
		return 0, nil
	}
	n := copy(p, data)
	if n == 0 {
		return 0, nil
	}
	if _, derr := t.conn.Discard(n); derr != nil {
		return n, derr
	}
	return n, nil
}

func (t *gnetTransport) Write(p []byte) (int, error) {
	return t.conn.Write(p)
}

func (t *gnetTransport) Close() error {
	return t.conn.Close()
}

func (t *gnetTransport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

func (s *server) OnBoot(eng gnet.Engine) gnet.Action {
	s.eng = eng
	return gnet.None
}

func (s *server) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	sess := newSession(&gnetTransport{conn: c}, s)
	c.SetContext(sess)
	s.registerSession(sess)
	return nil, gnet.None
}

func (s *server) OnClose(c gnet.Conn, _ error) gnet.Action {
	if sess, ok := c.Context().(*Session); ok && sess != nil {
		s.unregisterSession(sess)
		sess.dispose()
	}
	return gnet.None
}

// OnTraffic implements the per-connection loop of §4.7 for the gnet
// transport path.
func (s *server) OnTraffic(c gnet.Conn) gnet.Action {
	sess, ok := c.Context().(*Session)
	if !ok || sess == nil {
		return gnet.Close
	}

	recv := recvBufferPool.Rent(4096)
	recv = recv[:cap(recv)]
	n, rerr := sess.transport.Read(recv)
	closeConn := s.feed(sess, recv[:n])
	recvBufferPool.Return(recv)

	if rerr != nil {
		if !isClosedConnError(rerr) {
			s.logger.Error().Err(rerr).Msg("transport read failed")
		}
		return gnet.Close
	}
	if closeConn {
		return gnet.Close
	}
	return gnet.None
}

// feed implements §4.7 steps 2-5 against newly-read bytes: append to the
// growable parse buffer, parse and dispatch every complete request found,
// then compact. Shared by both the gnet transport path and the blocking
// TLS listener path so the connection-loop algorithm never branches on
// transport kind.
func (s *server) feed(sess *Session, newData []byte) (closeConn bool) {
	sess.touch()

	if len(newData) > 0 {
		sess.ensureCapacity(len(newData))
		copy(sess.parseBuf[sess.count:], newData)
		sess.count += len(newData)
	}

	if atomic.LoadInt32(&sess.asyncBusy) == 1 {
		// A Future-returning handler still owns sess.request/parseBuf;
		// completeAsyncDispatch will resume parsing once it resolves.
		return false
	}

	for {
		consumed, result, perr := sess.parser.TryRead(
			sess.parseBuf, sess.offset, sess.count-sess.offset,
			s.config.MaxHeaderSize, s.config.MaxBodySize, s.chunkedBodyPool,
		)

		if perr != nil {
			s.handleParseError(sess, perr)
			closeConn = true
			break
		}
		if consumed == 0 {
			break // need more data
		}

		sess.offset += consumed

		sess.request.reset()
		sess.response.reset()
		sess.ctx.lastErr = nil
		for k := range sess.ctx.Locals {
			delete(sess.ctx.Locals, k)
		}
		sess.request.populate(result)

		sess.closeAfterResponse = decideCloseAfterResponse(sess.request)

		if s.dispatchOne(sess) {
			// A Future-returning handler is still outstanding: its own
			// completion (finishAsync, on the worker pool) will send the
			// response and resume feeding whatever is left in parseBuf. Do
			// not compact or reuse sess.request for the next pipelined
			// request while the handler still owns a view into parseBuf.
			atomic.StoreInt32(&sess.asyncBusy, 1)
			return false
		}

		sess.request.releaseBody()

		if sess.closeAfterResponse {
			closeConn = true
			break
		}
	}

	sess.compact()
	return closeConn
}

// completeAsyncDispatch resumes feed's loop after a Future-returning
// handler's result arrived on the worker pool. Runs on that worker
// goroutine, not the connection's own event-loop goroutine.
func (s *server) completeAsyncDispatch(sess *Session) {
	atomic.StoreInt32(&sess.asyncBusy, 0)
	if sess.isClosed() {
		return
	}
	sess.request.releaseBody()
	if sess.closeAfterResponse {
		if closer, ok := sess.transport.(io.Closer); ok {
			_ = closer.Close()
		}
		return
	}
	if s.feed(sess, nil) {
		if closer, ok := sess.transport.(io.Closer); ok {
			_ = closer.Close()
		}
	}
}

// decideCloseAfterResponse implements §4.7 step 4's keep-alive negotiation.
func decideCloseAfterResponse(req *Request) bool {
	connHeader := req.Headers.Get(HeaderConnection)
	switch req.Protocol {
	case "HTTP/1.1":
		return strings.EqualFold(strings.TrimSpace(connHeader), "close")
	case "HTTP/1.0":
		return !containsTokenFold(connHeader, "keep-alive")
	default:
		return true
	}
}

func containsTokenFold(list, token string) bool {
	for _, part := range strings.Split(list, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// dispatchOne runs the router against sess's current request/response and
// recovers a panicking handler into a 500, per §7's HandlerError kind. It
// returns true when the matched handler returned a Future whose value is
// still outstanding — the response is not sent yet, and the caller must not
// advance to the next pipelined request until finishAsync (running on the
// worker pool once the Future resolves) sends it and resumes the loop.
func (s *server) dispatchOne(sess *Session) (asyncPending bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Msgf("handler panic: %v", r)
			if !sess.response.sent {
				sess.response.Status(StatusInternalServerError).Text(StatusText(StatusInternalServerError))
			}
		}
		if sess.ctx.isAsyncPending() {
			asyncPending = true
			return
		}
		if err := sess.response.Send(); err != nil && !isClosedConnError(err) {
			s.logger.Error().Err(err).Msg("send failed")
		}
	}()
	s.router.Dispatch(sess.ctx)
	return sess.ctx.isAsyncPending()
}

// handleParseError implements §4.7 steps 6-7: RequestTooLarge gets a 413,
// any other parse failure (BadRequest) gets a 400, both fatal. The parser
// package cannot import ember (cycle), so it raises its own sentinel
// copies; errors.Is maps them back onto ember's exported kinds here.
func (s *server) handleParseError(sess *Session, err error) {
	code, text := StatusBadRequest, "Bad Request"
	switch {
	case errors.Is(err, parser.ErrRequestTooLarge):
		code, text = StatusRequestEntityTooLarge, "Request Entity Too Large"
	case errors.Is(err, parser.ErrBadRequest):
		code, text = StatusBadRequest, "Bad Request"
	}
	sess.response.reset()
	sess.response.Status(code).Text(text)
	sess.closeAfterResponse = true
	if serr := sess.response.Send(); serr != nil && !isClosedConnError(serr) {
		s.logger.Error().Err(serr).Msg("send failed after parse error")
	}
}

// connTransport adapts a plain net.Conn (or *tls.Conn) to Transport,
// unused by the gnet path but exercised by serveTLS's blocking accept loop.
type connTransport struct {
	net.Conn
}

// serveTLS runs a classic blocking net.Listener + tls.Listener +
// goroutine-per-connection accept loop. crypto/tls's handshake API is
// synchronous and has no verified bridge into gnet's non-blocking reactor,
// so when a TLSAdapter is configured the server falls back to this
// architecture entirely — but every connection still drives the exact same
// feed() method the gnet path uses, so the connection-loop algorithm itself
// never branches on transport kind.
func (s *server) serveTLS(addr string) error {
	raw, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln := tls.NewListener(raw, tlsConfigFrom(s.tlsAdapter))
	s.listener = ln

	for {
		conn, aerr := ln.Accept()
		if aerr != nil {
			if isClosedConnError(aerr) {
				return nil
			}
			return aerr
		}
		go s.serveTLSConn(conn)
	}
}

func (s *server) serveTLSConn(conn net.Conn) {
	sess := newSession(&connTransport{Conn: conn}, s)
	s.registerSession(sess)
	defer func() {
		s.unregisterSession(sess)
		sess.dispose()
	}()

	buf := make([]byte, 4096)
	for {
		if s.config.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}
		n, rerr := conn.Read(buf)
		if n > 0 {
			if s.feed(sess, buf[:n]) {
				return
			}
		}
		if rerr != nil {
			if !isClosedConnError(rerr) {
				s.logger.Error().Err(rerr).Msg("tls transport read failed")
			}
			return
		}
	}
}
