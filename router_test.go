package ember

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dispatchPath(t *testing.T, r *Router, method, path string) (*Ctx, string) {
	t.Helper()
	ctx, transport := NewTestCtx(method, path, nil, nil)
	r.Dispatch(ctx)
	require.NoError(t, ctx.Response.Send())
	resp, err := ParseTestResponse(transport.Bytes())
	require.NoError(t, err)
	body := make([]byte, 4096)
	n, _ := resp.Body.Read(body)
	return ctx, string(body[:n])
}

// TestRouterExactBeatsPattern is invariant 5: the exact route wins over any
// pattern, even one registered earlier.
func TestRouterExactBeatsPattern(t *testing.T) {
	r := NewRouter()
	r.MapGet("/user/:id", func(c *Ctx) { c.Response.Text("pattern") })
	r.MapGet("/user/42", func(c *Ctx) { c.Response.Text("exact") })

	_, body := dispatchPath(t, r, MethodGet, "/user/42")
	assert.Equal(t, "exact", body)
}

// TestRouterGreatestSpecificityWins is invariant 5's second clause: among
// matching patterns, the one with more literal text wins.
func TestRouterGreatestSpecificityWins(t *testing.T) {
	r := NewRouter()
	r.MapGet("/user/:id", func(c *Ctx) { c.Response.Text("generic") })
	r.MapGet("/user/:id/profile", func(c *Ctx) { c.Response.Text("specific") })

	_, body := dispatchPath(t, r, MethodGet, "/user/42/profile")
	assert.Equal(t, "specific", body)
}

// TestRouterTieBreaksByRegistrationOrder is invariant 5's third clause.
func TestRouterTieBreaksByRegistrationOrder(t *testing.T) {
	r := NewRouter()
	r.MapGet("/a/:x", func(c *Ctx) { c.Response.Text("first") })
	r.MapGet("/:y/b", func(c *Ctx) { c.Response.Text("second") })

	_, body := dispatchPath(t, r, MethodGet, "/a/b")
	assert.Equal(t, "first", body, "equal-specificity patterns break ties by earliest registration")
}

// TestRouterWildcardTail is invariant 6.
func TestRouterWildcardTail(t *testing.T) {
	r := NewRouter()
	r.MapGet("/static/*", func(c *Ctx) { c.Response.Text("asset") })

	for _, path := range []string{"/static/a", "/static/a/b/c", "/static/a.js"} {
		_, body := dispatchPath(t, r, MethodGet, path)
		assert.Equal(t, "asset", body, "path %s should match the wildcard tail", path)
	}
}

// TestRouterCatchAllCapture is invariant 7.
func TestRouterCatchAllCapture(t *testing.T) {
	r := NewRouter()
	r.MapGet("/:x*", func(c *Ctx) { c.Response.Text(c.Param("x")) })

	_, body := dispatchPath(t, r, MethodGet, "/a/b/c/")
	assert.Equal(t, "a/b/c", body, "trailing slash must be stripped from the capture")
}

func TestRouterParamCapture(t *testing.T) {
	r := NewRouter()
	r.MapGet("/user/:id", func(c *Ctx) { c.Response.Text(c.Param("id")) })

	_, body := dispatchPath(t, r, MethodGet, "/user/42")
	assert.Equal(t, "42", body)
}

func TestRouterNoMatchFallsThroughToDefaultNotFound(t *testing.T) {
	r := NewRouter()
	r.MapGet("/known", func(c *Ctx) { c.Response.Text("ok") })

	ctx, body := dispatchPath(t, r, MethodGet, "/unknown")
	assert.Equal(t, StatusNotFound, ctx.Response.StatusCode())
	assert.Equal(t, "Not Found", body)
}

func TestRouterCustomFallback(t *testing.T) {
	r := NewRouter()
	r.MapFallback(func(c *Ctx) { c.Response.Status(418).Text("nothing here") })

	ctx, body := dispatchPath(t, r, MethodGet, "/missing")
	assert.Equal(t, 418, ctx.Response.StatusCode())
	assert.Equal(t, "nothing here", body)
}

func TestRouterMiddlewareRunsOuterFirst(t *testing.T) {
	r := NewRouter()
	var order []string
	r.UseMiddleware(func(c *Ctx) {
		order = append(order, "global")
		c.Next()
	})
	r.MapGet("/x", func(c *Ctx) {
		order = append(order, "handler")
		c.Response.Text("done")
	}, func(c *Ctx) {
		order = append(order, "route")
		c.Next()
	})

	dispatchPath(t, r, MethodGet, "/x")
	assert.Equal(t, []string{"global", "route", "handler"}, order)
}

func TestRouterMethodsAreIndependent(t *testing.T) {
	r := NewRouter()
	r.MapGet("/x", func(c *Ctx) { c.Response.Text("get") })
	r.MapPost("/x", func(c *Ctx) { c.Response.Text("post") })

	_, getBody := dispatchPath(t, r, MethodGet, "/x")
	_, postBody := dispatchPath(t, r, MethodPost, "/x")
	assert.Equal(t, "get", getBody)
	assert.Equal(t, "post", postBody)
}
