package ember

import "strings"

// mimeTypes maps a lowercased, dot-less file extension to its MIME type.
// Unknown extensions resolve to application/octet-stream.
var mimeTypes = map[string]string{
	"html": "text/html; charset=utf-8",
	"htm":  "text/html; charset=utf-8",
	"css":  "text/css; charset=utf-8",
	"js":   "application/javascript; charset=utf-8",
	"mjs":  "application/javascript; charset=utf-8",
	"json": "application/json; charset=utf-8",
	"xml":  "application/xml; charset=utf-8",
	"txt":  "text/plain; charset=utf-8",
	"csv":  "text/csv; charset=utf-8",
	"md":   "text/markdown; charset=utf-8",

	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"svg":  "image/svg+xml",
	"webp": "image/webp",
	"ico":  "image/x-icon",

	"mp3": "audio/mpeg",
	"wav": "audio/wav",
	"ogg": "audio/ogg",

	"mp4":  "video/mp4",
	"webm": "video/webm",

	"pdf":  "application/pdf",
	"zip":  "application/zip",
	"gz":   "application/gzip",
	"tar":  "application/x-tar",
	"wasm": "application/wasm",

	"woff":  "font/woff",
	"woff2": "font/woff2",
	"ttf":   "font/ttf",
	"otf":   "font/otf",
}

const defaultMimeType = "application/octet-stream"

// mimeFromExtension resolves ext (with or without a leading dot) to a MIME
// type, case-insensitively.
func mimeFromExtension(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if mt, ok := mimeTypes[ext]; ok {
		return mt
	}
	return defaultMimeType
}

// noncompressibleType reports whether a Content-Type value should never be
// considered for the Response compression step: images, audio, video, and
// already-compressed archive/document formats.
func noncompressibleType(contentType string) bool {
	ct := strings.ToLower(contentType)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.TrimSpace(ct)

	switch {
	case strings.HasPrefix(ct, "image/"),
		strings.HasPrefix(ct, "audio/"),
		strings.HasPrefix(ct, "video/"):
		return true
	}

	switch ct {
	case "application/zip", "application/gzip", "application/x-gzip",
		"application/zlib", "application/x-rar", "application/x-7z-compressed",
		"application/pdf":
		return true
	}
	return false
}
