// Package cors implements Cross-Origin Resource Sharing as an
// ember.Middleware. Config's comma-separated strings are parsed once in
// New into a matcher built at startup, rather than re-split on every
// request.
package cors

import (
	"strconv"
	"strings"

	"github.com/emberhttp/ember"
)

// Config represents the configuration for the CORS middleware.
type Config struct {
	// AllowOrigins is a comma-separated list of origins a cross-domain
	// request can be executed from. An entry may be the exact origin, the
	// special "*" value (all origins), or a leading-wildcard host pattern
	// such as "https://*.example.com" to match any subdomain.
	// Default value is "*"
	AllowOrigins string

	// AllowMethods is a comma-separated list of methods the client is allowed to use with
	// cross-domain requests. Default value is simple methods (GET, POST, PUT, DELETE, HEAD, OPTIONS, PATCH)
	AllowMethods string

	// AllowHeaders is a comma-separated list of non-simple headers the client is allowed to use with
	// cross-domain requests. Default value is ""
	AllowHeaders string

	// ExposeHeaders indicates which headers are safe to expose to the API of a CORS
	// API specification as a comma-separated list. Default value is ""
	ExposeHeaders string

	// AllowCredentials indicates whether the request can include user credentials like
	// cookies, HTTP authentication or client side SSL certificates. Default value is false
	AllowCredentials bool

	// MaxAge indicates how long (in seconds) the results of a preflight request
	// can be cached. Default value is 0 which stands for no max age.
	MaxAge int
}

// DefaultConfig returns the default configuration for the CORS middleware.
func DefaultConfig() Config {
	return Config{
		AllowOrigins: "*",
		AllowMethods: strings.Join([]string{
			ember.MethodGet,
			ember.MethodPost,
			ember.MethodPut,
			ember.MethodDelete,
			ember.MethodHead,
			ember.MethodOptions,
			ember.MethodPatch,
		}, ","),
		AllowHeaders:     "",
		ExposeHeaders:    "",
		AllowCredentials: false,
		MaxAge:           0,
	}
}

// originMatcher decides whether a request Origin is allowed, built once
// from Config.AllowOrigins so the middleware never re-splits that string
// per request.
type originMatcher struct {
	wildcard bool
	exact    map[string]struct{}
	suffixes []string // from entries like "https://*.example.com" -> ".example.com", scheme kept separate
	schemes  []string
}

func newOriginMatcher(allowOrigins string) *originMatcher {
	m := &originMatcher{exact: make(map[string]struct{})}
	for _, o := range strings.Split(allowOrigins, ",") {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if o == "*" {
			m.wildcard = true
			continue
		}
		if scheme, suffix, ok := splitWildcardHost(o); ok {
			m.schemes = append(m.schemes, scheme)
			m.suffixes = append(m.suffixes, suffix)
			continue
		}
		m.exact[o] = struct{}{}
	}
	return m
}

// splitWildcardHost splits an entry of the form "scheme://*.host" into its
// scheme and the ".host" suffix a matching origin's host part must have.
func splitWildcardHost(entry string) (scheme, suffix string, ok bool) {
	idx := strings.Index(entry, "://*")
	if idx == -1 {
		return "", "", false
	}
	scheme = entry[:idx+len("://")]
	suffix = entry[idx+len("://*"):]
	if suffix == "" {
		return "", "", false
	}
	return scheme, suffix, true
}

// allow reports whether origin is permitted, returning the exact string to
// echo back in Access-Control-Allow-Origin (empty if disallowed).
func (m *originMatcher) allow(origin string) (allowOrigin string, ok bool) {
	if m.wildcard {
		return "*", true
	}
	if _, exact := m.exact[origin]; exact {
		return origin, true
	}
	for i, suffix := range m.suffixes {
		scheme := m.schemes[i]
		if strings.HasPrefix(origin, scheme) && strings.HasSuffix(origin, suffix) {
			return origin, true
		}
	}
	return "", false
}

// New returns a middleware that handles CORS.
// If no config is provided, it uses the default config.
// If multiple configs are provided, only the first one is used.
func New(config ...Config) ember.Middleware {
	cfg := DefaultConfig()
	if len(config) > 0 {
		cfg = config[0]
	}

	matcher := newOriginMatcher(cfg.AllowOrigins)
	allowMethods := cfg.AllowMethods
	allowHeaders := strings.TrimSpace(cfg.AllowHeaders)
	exposeHeaders := strings.TrimSpace(cfg.ExposeHeaders)
	maxAge := ""
	if cfg.MaxAge > 0 {
		maxAge = strconv.Itoa(cfg.MaxAge)
	}

	return func(c *ember.Ctx) {
		origin := c.Get(ember.HeaderOrigin)
		if origin == "" {
			c.Next()
			return
		}

		allowOrigin, allowed := matcher.allow(origin)
		if !allowed {
			// No header is set at all: the browser enforces its default
			// same-origin policy rather than being told to allow an empty
			// origin.
			c.Next()
			return
		}

		c.Set(ember.HeaderAccessControlAllowOrigin, allowOrigin)
		if allowOrigin != "*" {
			c.Set(ember.HeaderVary, "Origin")
		}

		if c.Request.Method == ember.MethodOptions {
			c.Set(ember.HeaderAccessControlAllowMethods, allowMethods)

			if allowHeaders != "" {
				c.Set(ember.HeaderAccessControlAllowHeaders, allowHeaders)
			} else if requestHeaders := c.Get(ember.HeaderAccessControlRequestHeaders); requestHeaders != "" {
				// Mirror the requested headers when none are configured.
				c.Set(ember.HeaderAccessControlAllowHeaders, requestHeaders)
			}

			if cfg.AllowCredentials {
				c.Set(ember.HeaderAccessControlAllowCredentials, "true")
			}
			if maxAge != "" {
				c.Set(ember.HeaderAccessControlMaxAge, maxAge)
			}

			c.Status(ember.StatusNoContent)
			return
		}

		if exposeHeaders != "" {
			c.Set(ember.HeaderAccessControlExposeHeaders, exposeHeaders)
		}
		if cfg.AllowCredentials {
			c.Set(ember.HeaderAccessControlAllowCredentials, "true")
		}

		c.Next()
	}
}
