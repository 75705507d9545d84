package ember

import "time"

// Config carries every option that affects the core plus the listener
// options the core threads through to gnet without interpreting.
type Config struct {
	// MaxHeaderSize rejects a request with ErrRequestTooLarge once the
	// header region exceeds this many bytes.
	MaxHeaderSize int
	// MaxBodySize rejects a request with ErrRequestTooLarge once the
	// decoded body (length-prefixed or chunked) exceeds this many bytes.
	MaxBodySize int64

	// IdleTimeout disconnects a session once it has been idle this long.
	// Zero disables the idle sweep entirely.
	IdleTimeout time.Duration

	// ReadTimeout and WriteTimeout bound a single read/write syscall on
	// the underlying transport.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// CompressionMinSize is the body-length threshold for Auto-mode
	// compression candidacy.
	CompressionMinSize int
	// CompressionLevel is the default compressor level used when a
	// Response does not override it.
	CompressionLevel int

	// ErrorHandler, if set, is invoked by Ctx.Error in place of the default
	// error body, for an *HttpError and any other error alike. A recovered
	// handler panic still gets the plain 500 body.
	ErrorHandler Handler

	// AsyncHandlerConcurrency bounds the goroutine pool backing
	// FutureValue/FutureVoid executor returns. Zero keeps the pool's
	// built-in default.
	AsyncHandlerConcurrency int

	// DisableStartupMessage suppresses the startup banner the logger
	// would otherwise print.
	DisableStartupMessage bool

	// Listener-only options below: passed to gnet.Run as gnet.Options,
	// never interpreted by the core.
	KeepAlive           bool
	TCPKeepAliveTime    time.Duration
	TCPKeepAliveInterval time.Duration
	TCPKeepAliveRetryCount int
	NoDelay             bool
	ReuseAddress        bool
	ExclusiveAddressUse bool
	ReusePort           bool
	DualMode            bool
	ListenBacklog       int
	AcceptPerCore       int
}

// DefaultConfig returns the configuration table's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxHeaderSize:      64 * 1024,
		MaxBodySize:        10 * 1024 * 1024,
		IdleTimeout:        30 * time.Second,
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       10 * time.Second,
		CompressionMinSize: 512,
		CompressionLevel:   compressionLevelFastest,
		ErrorHandler:       nil,

		KeepAlive:              true,
		TCPKeepAliveTime:       15 * time.Second,
		TCPKeepAliveInterval:   5 * time.Second,
		TCPKeepAliveRetryCount: 3,
		NoDelay:                true,
		ReuseAddress:           true,
		ReusePort:              false,
		DualMode:               false,
		ListenBacklog:          512,
		AcceptPerCore:          1,
	}
}

// idleSweepInterval returns the idle sweep period: half the configured idle
// window, capped at 5s, per §5's "single background timer" design note.
func (c Config) idleSweepInterval() time.Duration {
	if c.IdleTimeout <= 0 {
		return 0
	}
	half := c.IdleTimeout / 2
	if half > 5*time.Second {
		half = 5 * time.Second
	}
	if half <= 0 {
		half = time.Second
	}
	return half
}
