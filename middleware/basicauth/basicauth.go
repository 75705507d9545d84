// Package basicauth implements RFC 7617 HTTP Basic Authentication as an
// ember.Middleware, with credential verification delegated to a pluggable
// Authorizer rather than a single fixed username/password pair.
package basicauth

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"github.com/emberhttp/ember"
)

// Authorizer reports whether username/password is a valid credential pair.
// Implementations must run in constant time with respect to the supplied
// password to avoid leaking match length through response timing; Static
// and the default Config.Authorize already do this.
type Authorizer func(username, password string) bool

// Static returns an Authorizer that accepts exactly one username/password
// pair, compared in constant time.
func Static(username, password string) Authorizer {
	return func(u, p string) bool {
		okUser := subtle.ConstantTimeCompare([]byte(u), []byte(username)) == 1
		okPass := subtle.ConstantTimeCompare([]byte(p), []byte(password)) == 1
		return okUser && okPass
	}
}

// Config represents the configuration for the basicauth middleware.
type Config struct {
	// Authorize decides whether a decoded username/password pair is valid.
	// Defaults to Static("example", "example") if left nil.
	Authorize Authorizer

	// Realm is advertised in the WWW-Authenticate challenge on a 401
	// response, per RFC 7617 §2.1. Defaults to "Restricted".
	Realm string
}

// DefaultConfig returns a Config that accepts the single credential pair
// "example"/"example" under the "Restricted" realm.
func DefaultConfig() Config {
	return Config{
		Authorize: Static("example", "example"),
		Realm:     "Restricted",
	}
}

// New creates and returns a middleware function for Basic Authentication
// using the provided configuration or defaults. A failed check renders
// ErrUnauthorized onto the response, sets a WWW-Authenticate challenge, and
// does not call Next.
func New(config ...Config) ember.Middleware {
	cfg := DefaultConfig()
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.Authorize == nil {
		cfg.Authorize = DefaultConfig().Authorize
	}
	if cfg.Realm == "" {
		cfg.Realm = "Restricted"
	}

	challenge := fmt.Sprintf(`Basic realm=%q`, cfg.Realm)

	return func(c *ember.Ctx) {
		username, password, ok := decode(c.Get(ember.HeaderAuthorization))
		if !ok || !cfg.Authorize(username, password) {
			c.Set(ember.HeaderWWWAuthenticate, challenge)
			c.Error(ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// decode extracts the username/password pair from an "Authorization: Basic
// <base64>" header value. ok is false if the header is missing, uses a
// different scheme, isn't valid base64, or has no ':' separator.
func decode(authHeader string) (username, password string, ok bool) {
	const prefix = "Basic "
	if len(authHeader) <= len(prefix) || authHeader[:len(prefix)] != prefix {
		return "", "", false
	}

	decoded, err := base64.StdEncoding.DecodeString(authHeader[len(prefix):])
	if err != nil {
		return "", "", false
	}
	cred := string(decoded)

	sep := -1
	for i := 0; i < len(cred); i++ {
		if cred[i] == ':' {
			sep = i
			break
		}
	}
	if sep == -1 {
		return "", "", false
	}
	return cred[:sep], cred[sep+1:], true
}

// ErrUnauthorized is returned when basic authentication fails.
var ErrUnauthorized = ember.NewHttpError(ember.StatusUnauthorized, "Unauthorized")
