package cors

import (
	"net/http"
	"testing"

	"github.com/emberhttp/ember"
	"github.com/stretchr/testify/assert"
)

// TestCORSMiddlewareE2E drives the middleware followed by a handler through
// a real Response.Send and inspects the serialized HTTP/1.1 frame.
func TestCORSMiddlewareE2E(t *testing.T) {
	testCases := []struct {
		name           string
		config         Config
		origin         string
		expectedOrigin string
	}{
		{"Default config with allowed origin", DefaultConfig(), "http://example.com", "*"},
		{
			"Custom config with specific allowed origin",
			Config{
				AllowOrigins:     "http://example.com",
				AllowMethods:     "GET,POST",
				AllowHeaders:     "Content-Type,Authorization",
				ExposeHeaders:    "X-Custom-Header",
				AllowCredentials: true,
				MaxAge:           3600,
			},
			"http://example.com",
			"http://example.com",
		},
		{"Custom config with disallowed origin", Config{AllowOrigins: "http://allowed.com"}, "http://disallowed.com", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, transport := ember.NewTestCtx("GET", "/test", map[string]string{"Origin": tc.origin}, nil)

			New(tc.config)(ctx)
			ctx.Response.Status(ember.StatusOK).Text("OK")
			assert.NoError(t, ctx.Response.Send())

			resp, err := ember.ParseTestResponse(transport.Bytes())
			assert.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tc.expectedOrigin, resp.Header.Get("Access-Control-Allow-Origin"))

			if tc.config.AllowCredentials {
				assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
			}
			if tc.config.ExposeHeaders != "" {
				assert.Equal(t, tc.config.ExposeHeaders, resp.Header.Get("Access-Control-Expose-Headers"))
			}
		})
	}
}

// TestCORSPreflightE2E exercises the preflight short-circuit path through a
// real Send.
func TestCORSPreflightE2E(t *testing.T) {
	config := Config{
		AllowOrigins:     "http://example.com",
		AllowMethods:     "GET,POST",
		AllowHeaders:     "Content-Type,Authorization",
		ExposeHeaders:    "X-Custom-Header",
		AllowCredentials: true,
		MaxAge:           3600,
	}
	ctx, transport := ember.NewTestCtx("OPTIONS", "/test", map[string]string{
		"Origin":                         "http://example.com",
		"Access-Control-Request-Method":  "POST",
		"Access-Control-Request-Headers": "Content-Type",
	}, nil)

	New(config)(ctx)
	assert.NoError(t, ctx.Response.Send())

	resp, err := ember.ParseTestResponse(transport.Bytes())
	assert.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET,POST", resp.Header.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type,Authorization", resp.Header.Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "3600", resp.Header.Get("Access-Control-Max-Age"))
}
