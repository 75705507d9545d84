package ember

import (
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// CompressionMode selects how Response.send negotiates a compressed body.
type CompressionMode int

const (
	CompressionAuto CompressionMode = iota
	CompressionDisabled
	CompressionForceGzip
	CompressionForceDeflate
)

// Compression levels, named the way the spec's "Fastest" default reads;
// values line up with klauspost/compress's gzip/flate level constants.
const (
	compressionLevelFastest = 1
	compressionLevelDefault = 6
	compressionLevelBest    = 9
)

type encoding int

const (
	encodingNone encoding = iota
	encodingGzip
	encodingDeflate
	encodingBrotli
)

func (e encoding) token() string {
	switch e {
	case encodingGzip:
		return "gzip"
	case encodingDeflate:
		return "deflate"
	case encodingBrotli:
		return "br"
	default:
		return ""
	}
}

// brotliEnabled is a process-wide opt-in: until EnableBrotli is called,
// Auto-mode negotiation only chooses between gzip and deflate. There is no
// force mode for brotli; it is only reached through Auto-mode client
// preference. See EnableBrotli.
var brotliEnabled = false

// EnableBrotli opts a process into negotiating the brotli ("br") token when
// a client's Accept-Encoding prefers it over gzip/deflate and the Response
// is not pinned to ForceGzip/ForceDeflate. It only affects requests that
// list "br" with a q-value strictly above every gzip/deflate token and a
// Response left in Auto mode; q-value ties still resolve to gzip.
func EnableBrotli() { brotliEnabled = true }

type acceptToken struct {
	name string
	q    float64
}

// parseAcceptEncoding parses a header value as a list of name[;q=Q] tokens.
func parseAcceptEncoding(header string) []acceptToken {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	out := make([]acceptToken, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name := part
		q := 1.0
		if semi := strings.IndexByte(part, ';'); semi >= 0 {
			name = strings.TrimSpace(part[:semi])
			params := part[semi+1:]
			for _, p := range strings.Split(params, ";") {
				p = strings.TrimSpace(p)
				if strings.HasPrefix(p, "q=") {
					if v, err := strconv.ParseFloat(strings.TrimPrefix(p, "q="), 64); err == nil {
						q = v
					}
				}
			}
		}
		out = append(out, acceptToken{name: strings.ToLower(name), q: q})
	}
	return out
}

// negotiateEncoding picks the compressor for acceptEncoding under mode.
// Ties between gzip and deflate resolve to gzip. ForceGzip/ForceDeflate
// restrict the candidate set to exactly one token regardless of q-values;
// Auto considers {gzip, deflate}, plus brotli when EnableBrotli was called
// and the client ranks "br" above both.
func negotiateEncoding(mode CompressionMode, acceptEncoding string) encoding {
	tokens := parseAcceptEncoding(acceptEncoding)
	if len(tokens) == 0 {
		return encodingNone
	}

	switch mode {
	case CompressionForceGzip:
		if tokenAllowed(tokens, "gzip") {
			return encodingGzip
		}
		return encodingNone
	case CompressionForceDeflate:
		if tokenAllowed(tokens, "deflate") {
			return encodingDeflate
		}
		return encodingNone
	}

	// Resolve each token to a candidate encoding first, then pick by q,
	// breaking ties on q by a fixed encoding preference (gzip, then
	// deflate, then brotli) rather than by token order in the header —
	// sort.SliceStable would otherwise let "deflate, gzip" (both q=1.0)
	// resolve to deflate just because it came first on the wire.
	bestQ := 0.0
	haveCandidate := false
	best := encodingNone
	for _, t := range tokens {
		if t.q <= 0 {
			continue
		}
		var e encoding
		switch t.name {
		case "gzip", "*":
			e = encodingGzip
		case "deflate":
			e = encodingDeflate
		case "br":
			if brotliEnabled {
				e = encodingBrotli
			} else {
				continue
			}
		default:
			continue
		}
		switch {
		case !haveCandidate, t.q > bestQ, t.q == bestQ && encodingPreference(e) < encodingPreference(best):
			best, bestQ, haveCandidate = e, t.q, true
		}
	}
	return best
}

// encodingPreference orders encodings for q-value ties: gzip first, per
// spec, then deflate, then brotli.
func encodingPreference(e encoding) int {
	switch e {
	case encodingGzip:
		return 0
	case encodingDeflate:
		return 1
	case encodingBrotli:
		return 2
	default:
		return 3
	}
}

func tokenAllowed(tokens []acceptToken, name string) bool {
	for _, t := range tokens {
		if (t.name == name || t.name == "*") && t.q > 0 {
			return true
		}
	}
	return false
}

var gzipWriterPool = sync.Pool{
	New: func() any {
		w, _ := gzip.NewWriterLevel(nil, compressionLevelDefault)
		return w
	},
}

var flateWriterPool = sync.Pool{
	New: func() any {
		w, _ := flate.NewWriter(nil, compressionLevelDefault)
		return w
	},
}

var brotliWriterPool = sync.Pool{
	New: func() any {
		return brotli.NewWriterLevel(nil, brotli.DefaultCompression)
	},
}

// compress writes src through e at level, appending the compressed bytes to
// dst; it returns the first write or flush error, if any.
func compress(e encoding, level int, src []byte, dst *[]byte) error {
	switch e {
	case encodingGzip:
		w := gzipWriterPool.Get().(*gzip.Writer)
		defer gzipWriterPool.Put(w)
		buf := byteSliceWriter{dst}
		w.Reset(&buf)
		if err := w.SetLevel(clampLevel(level)); err != nil {
			w.Reset(&buf)
		}
		if _, err := w.Write(src); err != nil {
			return err
		}
		return w.Close()
	case encodingDeflate:
		buf := byteSliceWriter{dst}
		w, err := flate.NewWriter(&buf, clampLevel(level))
		if err != nil {
			return err
		}
		if _, err := w.Write(src); err != nil {
			return err
		}
		return w.Close()
	case encodingBrotli:
		buf := byteSliceWriter{dst}
		w := brotliWriterPool.Get().(*brotli.Writer)
		defer brotliWriterPool.Put(w)
		w.Reset(&buf)
		if _, err := w.Write(src); err != nil {
			return err
		}
		return w.Close()
	default:
		return nil
	}
}

func clampLevel(level int) int {
	if level < 1 {
		return compressionLevelFastest
	}
	if level > 9 {
		return compressionLevelBest
	}
	return level
}

// byteSliceWriter adapts a *[]byte to io.Writer by appending, avoiding an
// intermediate bytes.Buffer for the compressor output pipeline.
type byteSliceWriter struct{ buf *[]byte }

func (w *byteSliceWriter) Write(p []byte) (int, error) {
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}
