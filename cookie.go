package ember

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// SameSite is the Set-Cookie SameSite attribute.
type SameSite int

const (
	SameSiteUnspecified SameSite = iota
	SameSiteLax
	SameSiteStrict
	SameSiteNone
)

func (s SameSite) String() string {
	switch s {
	case SameSiteLax:
		return "Lax"
	case SameSiteStrict:
		return "Strict"
	case SameSiteNone:
		return "None"
	default:
		return ""
	}
}

// CookieOptions configures the attributes of a cookie set via
// Response.SetCookie.
type CookieOptions struct {
	Path       string
	Domain     string
	MaxAgeSecs int // 0 means "not set" (use DeleteCookie for Max-Age=0); any other value, negative included, is written as-is
	Expires    time.Time
	Secure     bool
	HTTPOnly   bool
	SameSite   SameSite
}

// cookie is one entry of Response.cookies: name, value, and the options it
// was set with. Ordered list, insertion order preserved onto the wire.
type cookie struct {
	name    string
	value   string
	options CookieOptions
	// forceMaxAgeZero distinguishes DeleteCookie's literal "Max-Age=0"
	// from CookieOptions.MaxAgeSecs's zero value, which means "not set".
	forceMaxAgeZero bool
}

// String serializes the cookie as it appears in a Set-Cookie header, per
// §4.4 step 9's attribute order.
func (c *cookie) String() string {
	var b strings.Builder
	b.WriteString(c.name)
	b.WriteByte('=')
	b.WriteString(c.value)

	if c.options.Path != "" {
		b.WriteString("; Path=")
		b.WriteString(c.options.Path)
	}
	if c.options.Domain != "" {
		b.WriteString("; Domain=")
		b.WriteString(c.options.Domain)
	}
	if c.options.MaxAgeSecs != 0 {
		b.WriteString("; Max-Age=")
		b.WriteString(strconv.Itoa(c.options.MaxAgeSecs))
	} else if c.forceMaxAgeZero {
		b.WriteString("; Max-Age=0")
	}
	if !c.options.Expires.IsZero() {
		b.WriteString("; Expires=")
		b.WriteString(c.options.Expires.UTC().Format(http.TimeFormat))
	}
	if c.options.Secure {
		b.WriteString("; Secure")
	}
	if c.options.HTTPOnly {
		b.WriteString("; HttpOnly")
	}
	if s := c.options.SameSite.String(); s != "" {
		b.WriteString("; SameSite=")
		b.WriteString(s)
	}
	return b.String()
}

// parsedCookie is one (name, value) pair decoded from a request's Cookie
// header, in the order it appeared.
type parsedCookie struct {
	name  string
	value string
}

// parseCookieHeader splits a Cookie header value on ';' into ordered
// (name, value) pairs. Malformed segments (no '=' or empty name) are
// skipped.
func parseCookieHeader(header string) []parsedCookie {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ";")
	out := make([]parsedCookie, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := strings.IndexByte(part, '=')
		if idx <= 0 {
			continue
		}
		out = append(out, parsedCookie{name: part[:idx], value: part[idx+1:]})
	}
	return out
}
