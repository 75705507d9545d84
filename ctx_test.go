package ember

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCtxLocalsRoundTrip(t *testing.T) {
	ctx, _ := NewTestCtx(MethodGet, "/", nil, nil)
	assert.Nil(t, ctx.GetLocal("missing"))

	ctx.SetLocal("user", "alice")
	assert.Equal(t, "alice", ctx.GetLocal("user"))
}

func TestCtxNextInvokesWiredHandler(t *testing.T) {
	ctx, _ := NewTestCtx(MethodGet, "/", nil, nil)
	called := false
	ctx.SetNext(func(c *Ctx) { called = true })
	ctx.Next()
	assert.True(t, called)
}

func TestCtxNextNoopWhenUnset(t *testing.T) {
	ctx, _ := NewTestCtx(MethodGet, "/", nil, nil)
	assert.NotPanics(t, ctx.Next)
}

func TestCtxQueryAndQueryDefault(t *testing.T) {
	ctx, _ := NewTestCtx(MethodGet, "/search?q=go", nil, nil)
	assert.Equal(t, "go", ctx.Query("q"))
	assert.Equal(t, "", ctx.Query("missing"))
	assert.Equal(t, "fallback", ctx.QueryDefault("missing", "fallback"))
}

func TestCtxRawQuery(t *testing.T) {
	ctx, _ := NewTestCtx(MethodGet, "/search?q=go&lang=en", nil, nil)
	assert.Equal(t, "q=go&lang=en", ctx.RawQuery())

	ctx2, _ := NewTestCtx(MethodGet, "/search", nil, nil)
	assert.Equal(t, "", ctx2.RawQuery())
}

func TestCtxParamReadsRouteValues(t *testing.T) {
	ctx, _ := NewTestCtx(MethodGet, "/user/42", nil, nil)
	ctx.Request.RouteValues["id"] = "42"
	assert.Equal(t, "42", ctx.Param("id"))
	assert.Equal(t, "", ctx.Param("missing"))
}

func TestCtxHeaderAndGetAreAliases(t *testing.T) {
	ctx, _ := NewTestCtx(MethodGet, "/", map[string]string{"X-Trace": "abc"}, nil)
	assert.Equal(t, "abc", ctx.Header("X-Trace"))
	assert.Equal(t, "abc", ctx.Get("X-Trace"))
	assert.Equal(t, "abc", ctx.Get("x-trace"))
}

func TestCtxCookieAndTryCookie(t *testing.T) {
	ctx, _ := NewTestCtx(MethodGet, "/", map[string]string{"Cookie": "session=xyz"}, nil)
	assert.Equal(t, "xyz", ctx.Cookie("session"))

	v, ok := ctx.TryCookie("session")
	assert.True(t, ok)
	assert.Equal(t, "xyz", v)

	_, ok = ctx.TryCookie("missing")
	assert.False(t, ok)
}

func TestCtxContentLength(t *testing.T) {
	ctx, _ := NewTestCtx(MethodPost, "/", map[string]string{"Content-Length": "42"}, nil)
	assert.Equal(t, int64(42), ctx.ContentLength())

	ctx2, _ := NewTestCtx(MethodGet, "/", nil, nil)
	assert.Equal(t, int64(-1), ctx2.ContentLength())
}

func TestCtxIPPrefersForwardedFor(t *testing.T) {
	ctx, _ := NewTestCtx(MethodGet, "/", map[string]string{
		"X-Forwarded-For": "203.0.113.5, 10.0.0.1",
	}, nil)
	assert.Equal(t, "203.0.113.5", ctx.IP())
}

func TestCtxIPFallsBackToXRealIP(t *testing.T) {
	ctx, _ := NewTestCtx(MethodGet, "/", map[string]string{"X-Real-Ip": "203.0.113.9"}, nil)
	assert.Equal(t, "203.0.113.9", ctx.IP())
}

func TestCtxIPFallsBackToRemoteAddr(t *testing.T) {
	ctx, _ := NewTestCtx(MethodGet, "/", nil, nil)
	assert.NotEmpty(t, ctx.IP())
}

func TestCtxErrorWithHttpErrorUsesItsStatus(t *testing.T) {
	ctx, transport := NewTestCtx(MethodGet, "/", nil, nil)
	ctx.Error(NewHttpError(StatusForbidden, "nope"))
	require.NoError(t, ctx.Response.Send())

	resp, err := ParseTestResponse(transport.Bytes())
	require.NoError(t, err)
	assert.Equal(t, StatusForbidden, resp.StatusCode)
	assert.Equal(t, NewHttpError(StatusForbidden, "nope"), ctx.GetError())
}

func TestCtxErrorWithPlainErrorIs500(t *testing.T) {
	ctx, transport := NewTestCtx(MethodGet, "/", nil, nil)
	ctx.Error(errors.New("boom"))
	require.NoError(t, ctx.Response.Send())

	resp, err := ParseTestResponse(transport.Bytes())
	require.NoError(t, err)
	assert.Equal(t, StatusInternalServerError, resp.StatusCode)
}

func TestCtxErrorIsNoopAfterSend(t *testing.T) {
	ctx, transport := NewTestCtx(MethodGet, "/", nil, nil)
	ctx.Response.Status(StatusOK).Text("done")
	require.NoError(t, ctx.Response.Send())
	firstLen := len(transport.Bytes())

	ctx.Error(errors.New("too late"))
	assert.Equal(t, firstLen, len(transport.Bytes()), "Error after Send must not touch the transport")
}

func TestCtxErrorWithNilIsNoop(t *testing.T) {
	ctx, _ := NewTestCtx(MethodGet, "/", nil, nil)
	ctx.Error(nil)
	assert.Nil(t, ctx.GetError())
}

func TestCtxBindJSON(t *testing.T) {
	ctx, _ := NewTestCtx(MethodPost, "/", nil, []byte(`{"name":"ember"}`))
	var payload struct {
		Name string `json:"name"`
	}
	require.NoError(t, ctx.BindJSON(&payload))
	assert.Equal(t, "ember", payload.Name)
}

func TestCtxBindJSONNilBody(t *testing.T) {
	ctx, _ := NewTestCtx(MethodPost, "/", nil, nil)
	var payload struct{ Name string }
	assert.Error(t, ctx.BindJSON(&payload))
}
