package ember

import "strings"

// spillEntry is one (name, value) pair outside the ten hot fields.
type spillEntry struct {
	name  string
	value string
}

// Headers holds a decoded request's header set: ten fixed hot fields for
// the names the parser sees on nearly every request, plus an ordered spill
// list for everything else. All lookups are case-insensitive.
type Headers struct {
	host            string
	contentType     string
	contentLengthRaw string
	userAgent       string
	accept          string
	acceptEncoding  string
	acceptLanguage  string
	connection      string
	transferEncoding string
	cookie          string

	hostSet            bool
	contentTypeSet     bool
	contentLengthSet   bool
	userAgentSet       bool
	acceptSet          bool
	acceptEncodingSet  bool
	acceptLanguageSet  bool
	connectionSet      bool
	transferEncodingSet bool
	cookieSet          bool

	spill []spillEntry

	cookies     []parsedCookie
	cookiesDone bool
}

// reset clears h for reuse by the next request on the same session.
func (h *Headers) reset() {
	h.host, h.contentType, h.contentLengthRaw = "", "", ""
	h.userAgent, h.accept, h.acceptEncoding = "", "", ""
	h.acceptLanguage, h.connection, h.transferEncoding, h.cookie = "", "", "", ""
	h.hostSet, h.contentTypeSet, h.contentLengthSet = false, false, false
	h.userAgentSet, h.acceptSet, h.acceptEncodingSet = false, false, false
	h.acceptLanguageSet, h.connectionSet, h.transferEncodingSet, h.cookieSet = false, false, false, false
	h.spill = h.spill[:0]
	h.cookies = h.cookies[:0]
	h.cookiesDone = false
}

// isHotName reports whether name (any casing) is one of the ten hot fields,
// and if so which slot.
func isHotName(name string) (slot int, hot bool) {
	switch {
	case strings.EqualFold(name, HeaderHost):
		return 0, true
	case strings.EqualFold(name, HeaderContentType):
		return 1, true
	case strings.EqualFold(name, HeaderContentLength):
		return 2, true
	case strings.EqualFold(name, HeaderUserAgent):
		return 3, true
	case strings.EqualFold(name, HeaderAccept):
		return 4, true
	case strings.EqualFold(name, HeaderAcceptEncoding):
		return 5, true
	case strings.EqualFold(name, HeaderAcceptLanguage):
		return 6, true
	case strings.EqualFold(name, HeaderConnection):
		return 7, true
	case strings.EqualFold(name, HeaderTransferEncoding):
		return 8, true
	case strings.EqualFold(name, HeaderCookie):
		return 9, true
	default:
		return -1, false
	}
}

// Add records a (name, value) pair: promoted to its hot slot if name
// matches one of the ten case-insensitively, otherwise appended to spill.
func (h *Headers) Add(name, value string) {
	if slot, hot := isHotName(name); hot {
		switch slot {
		case 0:
			h.host, h.hostSet = value, true
		case 1:
			h.contentType, h.contentTypeSet = value, true
		case 2:
			h.contentLengthRaw, h.contentLengthSet = value, true
		case 3:
			h.userAgent, h.userAgentSet = value, true
		case 4:
			h.accept, h.acceptSet = value, true
		case 5:
			h.acceptEncoding, h.acceptEncodingSet = value, true
		case 6:
			h.acceptLanguage, h.acceptLanguageSet = value, true
		case 7:
			h.connection, h.connectionSet = value, true
		case 8:
			h.transferEncoding, h.transferEncodingSet = value, true
		case 9:
			h.cookie, h.cookieSet = value, true
			h.cookiesDone = false
		}
		return
	}
	h.spill = append(h.spill, spillEntry{name: name, value: value})
}

// TryGet returns the value for name (case-insensitive) and whether it was
// present.
func (h *Headers) TryGet(name string) (string, bool) {
	if slot, hot := isHotName(name); hot {
		switch slot {
		case 0:
			return h.host, h.hostSet
		case 1:
			return h.contentType, h.contentTypeSet
		case 2:
			return h.contentLengthRaw, h.contentLengthSet
		case 3:
			return h.userAgent, h.userAgentSet
		case 4:
			return h.accept, h.acceptSet
		case 5:
			return h.acceptEncoding, h.acceptEncodingSet
		case 6:
			return h.acceptLanguage, h.acceptLanguageSet
		case 7:
			return h.connection, h.connectionSet
		case 8:
			return h.transferEncoding, h.transferEncodingSet
		case 9:
			return h.cookie, h.cookieSet
		}
	}
	for i := range h.spill {
		if strings.EqualFold(h.spill[i].name, name) {
			return h.spill[i].value, true
		}
	}
	return "", false
}

// Get is TryGet without the presence flag; returns "" when absent.
func (h *Headers) Get(name string) string {
	v, _ := h.TryGet(name)
	return v
}

// HeaderPair is one (name, value) entry as returned by EnumerateAll.
type HeaderPair struct {
	Name  string
	Value string
}

// EnumerateAll returns every present header in hot-fields-then-spill order.
func (h *Headers) EnumerateAll() []HeaderPair {
	out := make([]HeaderPair, 0, 10+len(h.spill))
	if h.hostSet {
		out = append(out, HeaderPair{HeaderHost, h.host})
	}
	if h.contentTypeSet {
		out = append(out, HeaderPair{HeaderContentType, h.contentType})
	}
	if h.contentLengthSet {
		out = append(out, HeaderPair{HeaderContentLength, h.contentLengthRaw})
	}
	if h.userAgentSet {
		out = append(out, HeaderPair{HeaderUserAgent, h.userAgent})
	}
	if h.acceptSet {
		out = append(out, HeaderPair{HeaderAccept, h.accept})
	}
	if h.acceptEncodingSet {
		out = append(out, HeaderPair{HeaderAcceptEncoding, h.acceptEncoding})
	}
	if h.acceptLanguageSet {
		out = append(out, HeaderPair{HeaderAcceptLanguage, h.acceptLanguage})
	}
	if h.connectionSet {
		out = append(out, HeaderPair{HeaderConnection, h.connection})
	}
	if h.transferEncodingSet {
		out = append(out, HeaderPair{HeaderTransferEncoding, h.transferEncoding})
	}
	if h.cookieSet {
		out = append(out, HeaderPair{HeaderCookie, h.cookie})
	}
	for _, s := range h.spill {
		out = append(out, HeaderPair{s.name, s.value})
	}
	return out
}

// ensureCookiesParsed lazily splits the Cookie hot field into its
// constituent pairs, memoized until the next reset or Cookie re-Add.
func (h *Headers) ensureCookiesParsed() {
	if h.cookiesDone {
		return
	}
	h.cookies = parseCookieHeader(h.cookie)
	h.cookiesDone = true
}

// TryGetCookie looks up a request cookie by name, case-sensitively per RFC.
func (h *Headers) TryGetCookie(name string) (string, bool) {
	h.ensureCookiesParsed()
	for _, c := range h.cookies {
		if c.name == name {
			return c.value, true
		}
	}
	return "", false
}

// EnumerateCookies returns every request cookie with its name verbatim
// (same case as on the wire), agreeing with TryGetCookie's case-sensitive
// comparison because both walk this same parsed slice.
func (h *Headers) EnumerateCookies() []parsedCookie {
	h.ensureCookiesParsed()
	return h.cookies
}
