package ember

// HTTP methods, compared case-sensitively after parse.
const (
	MethodGet     = "GET"
	MethodHead    = "HEAD"
	MethodPost    = "POST"
	MethodPut     = "PUT"
	MethodDelete  = "DELETE"
	MethodConnect = "CONNECT"
	MethodOptions = "OPTIONS"
	MethodTrace   = "TRACE"
	MethodPatch   = "PATCH"
)

// Hot header names, promoted to fixed Headers slots for fast access.
const (
	HeaderHost            = "Host"
	HeaderContentType     = "Content-Type"
	HeaderContentLength   = "Content-Length"
	HeaderUserAgent       = "User-Agent"
	HeaderAccept          = "Accept"
	HeaderAcceptEncoding  = "Accept-Encoding"
	HeaderAcceptLanguage  = "Accept-Language"
	HeaderConnection      = "Connection"
	HeaderTransferEncoding = "Transfer-Encoding"
	HeaderCookie          = "Cookie"
)

// Header names ember itself writes into responses.
const (
	HeaderSetCookie      = "Set-Cookie"
	HeaderContentEncoding = "Content-Encoding"
	HeaderVary           = "Vary"
	HeaderLocation       = "Location"
	HeaderOrigin         = "Origin"
	HeaderAuthorization  = "Authorization"
	HeaderWWWAuthenticate = "WWW-Authenticate"

	HeaderAccessControlAllowOrigin      = "Access-Control-Allow-Origin"
	HeaderAccessControlAllowMethods     = "Access-Control-Allow-Methods"
	HeaderAccessControlAllowHeaders     = "Access-Control-Allow-Headers"
	HeaderAccessControlAllowCredentials = "Access-Control-Allow-Credentials"
	HeaderAccessControlExposeHeaders    = "Access-Control-Expose-Headers"
	HeaderAccessControlMaxAge           = "Access-Control-Max-Age"
	HeaderAccessControlRequestHeaders   = "Access-Control-Request-Headers"
)

// Header names read from the spill list when resolving a caller's address
// behind a reverse proxy.
const (
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderXRealIP       = "X-Real-Ip"
)

// Byte sequences the parser and response writer both look for.
var (
	crlf      = []byte("\r\n")
	crlfcrlf  = []byte("\r\n\r\n")
	lastChunk = []byte("0\r\n\r\n")
)
