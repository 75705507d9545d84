package ember

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseSendIsIdempotent(t *testing.T) {
	ctx, transport := NewTestCtx(MethodGet, "/", nil, nil)
	ctx.Response.Text("hello")

	require.NoError(t, ctx.Response.Send())
	firstLen := len(transport.Bytes())

	require.NoError(t, ctx.Response.Send(), "a second Send must be a no-op, not an error")
	secondLen := len(transport.Bytes())

	assert.Equal(t, firstLen, secondLen, "second Send must not touch the transport")
}

func TestResponseCompressionNeverExceedsUncompressedLength(t *testing.T) {
	ctx, transport := NewTestCtx(MethodGet, "/", map[string]string{
		"Accept-Encoding": "gzip",
	}, nil)

	body := strings.Repeat("a", 4096) // large, highly compressible payload
	ctx.Response.Text(body)
	ctx.Response.Compression(CompressionAuto, 512, 1)

	require.NoError(t, ctx.Response.Send())
	resp, err := ParseTestResponse(transport.Bytes())
	require.NoError(t, err)

	cl := resp.Header.Get("Content-Length")
	require.NotEmpty(t, cl)
	n, err := strconv.Atoi(cl)
	require.NoError(t, err)
	assert.LessOrEqual(t, n, len(body))
}

func TestResponseCompressionSkippedForIncompressibleBody(t *testing.T) {
	ctx, transport := NewTestCtx(MethodGet, "/", map[string]string{
		"Accept-Encoding": "gzip",
	}, nil)

	ctx.Response.Text("short")
	require.NoError(t, ctx.Response.Send())

	resp, err := ParseTestResponse(transport.Bytes())
	require.NoError(t, err)
	assert.Empty(t, resp.Header.Get("Content-Encoding"), "body below the minimum size must not be compressed")
}

func TestResponseJSONBody(t *testing.T) {
	ctx, transport := NewTestCtx(MethodGet, "/", nil, nil)
	ctx.Response.JSON(map[string]string{"message": "Hello World !"})

	require.NoError(t, ctx.Response.Send())
	resp, err := ParseTestResponse(transport.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))

	buf := make([]byte, 256)
	n, _ := resp.Body.Read(buf)
	assert.Equal(t, `{"message":"Hello World !"}`, string(buf[:n]))
}

func TestResponseSetCookieAndDeleteCookie(t *testing.T) {
	ctx, transport := NewTestCtx(MethodGet, "/", nil, nil)
	ctx.Response.SetCookie("a", "1", CookieOptions{Path: "/"})
	ctx.Response.DeleteCookie("b", "/app")
	ctx.Response.Text("ok")

	require.NoError(t, ctx.Response.Send())
	resp, err := ParseTestResponse(transport.Bytes())
	require.NoError(t, err)

	var names []string
	for _, c := range resp.Cookies() {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"a", "b"}, names)
}

func TestResponseCustomContentLengthDisablesAutoEmission(t *testing.T) {
	ctx, transport := NewTestCtx(MethodGet, "/", nil, nil)
	ctx.Response.Text("hello")
	ctx.Response.AddHeader("Content-Length", "999")

	require.NoError(t, ctx.Response.Send())
	resp, err := ParseTestResponse(transport.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "999", resp.Header.Get("Content-Length"))
}

func TestResponseRedirect(t *testing.T) {
	ctx, transport := NewTestCtx(MethodGet, "/", nil, nil)
	ctx.Response.Redirect("/new-place")

	require.NoError(t, ctx.Response.Send())
	resp, err := ParseTestResponse(transport.Bytes())
	require.NoError(t, err)
	assert.Equal(t, StatusFound, resp.StatusCode)
	assert.Equal(t, "/new-place", resp.Header.Get("Location"))
}

func TestResponseNoContentHasNoBody(t *testing.T) {
	ctx, transport := NewTestCtx(MethodGet, "/", nil, nil)
	ctx.Response.Status(StatusNoContent)

	require.NoError(t, ctx.Response.Send())
	resp, err := ParseTestResponse(transport.Bytes())
	require.NoError(t, err)
	assert.Equal(t, StatusNoContent, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get("Content-Length"))
}
