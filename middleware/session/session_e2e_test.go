package session

import (
	"net/http"
	"testing"
	"time"

	"github.com/emberhttp/ember"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSessionMiddlewareE2E drives a set-then-get round trip through the
// middleware using a shared store, as two independent requests would see it.
func TestSessionMiddlewareE2E(t *testing.T) {
	store := newMemoryStore()
	middleware := New(Config{Store: store})

	ctxSet, transportSet := ember.NewTestCtx("GET", "/set-session", nil, nil)
	ctxSet.SetNext(func(c *ember.Ctx) {
		sess := GetSession(c)
		require.NotNil(t, sess, "Session should not be nil")
		sess.Set("testKey", "testValue")
		c.Response.Status(ember.StatusOK).Text("Session set")
	})
	middleware(ctxSet)
	require.NoError(t, ctxSet.Response.Send())

	respSet, err := ember.ParseTestResponse(transportSet.Bytes())
	require.NoError(t, err)

	var sessionCookie *http.Cookie
	for _, cookie := range respSet.Cookies() {
		if cookie.Name == "session_id" {
			sessionCookie = cookie
			break
		}
	}
	require.NotNil(t, sessionCookie, "Session cookie was not set")

	ctxGet, transportGet := ember.NewTestCtx("GET", "/get-session", map[string]string{
		"Cookie": sessionCookie.Name + "=" + sessionCookie.Value,
	}, nil)
	ctxGet.SetNext(func(c *ember.Ctx) {
		sess := GetSession(c)
		require.NotNil(t, sess, "Session should not be nil")
		if value := sess.Get("testKey"); value != nil {
			c.Response.Status(ember.StatusOK).Text(value.(string))
		} else {
			c.Response.Status(ember.StatusNotFound).Text("Value not found")
		}
	})
	middleware(ctxGet)
	require.NoError(t, ctxGet.Response.Send())

	respGet, err := ember.ParseTestResponse(transportGet.Bytes())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, respGet.StatusCode)

	body := make([]byte, 1024)
	n, _ := respGet.Body.Read(body)
	assert.Equal(t, "testValue", string(body[:n]), "Unexpected session value")
}

// TestSessionExpireE2E tests that a session set with a short expiration is
// gone by the time it would be looked up after that duration passes.
func TestSessionExpireE2E(t *testing.T) {
	store := newMemoryStore()
	middleware := New(Config{
		Store:      store,
		Expiration: 200 * time.Millisecond,
		KeyLookup:  "cookie:session_id",
	})

	ctxSet, transportSet := ember.NewTestCtx("GET", "/set-session", nil, nil)
	ctxSet.SetNext(func(c *ember.Ctx) {
		sess := GetSession(c)
		require.NotNil(t, sess, "Session should not be nil")
		sess.Set("testKey", "testValue")
		c.Response.Status(ember.StatusOK).Text("Session set")
	})
	middleware(ctxSet)
	require.NoError(t, ctxSet.Response.Send())

	respSet, err := ember.ParseTestResponse(transportSet.Bytes())
	require.NoError(t, err)

	var sessionCookie *http.Cookie
	for _, cookie := range respSet.Cookies() {
		if cookie.Name == "session_id" {
			sessionCookie = cookie
			break
		}
	}
	require.NotNil(t, sessionCookie, "Session cookie was not set")

	time.Sleep(300 * time.Millisecond)

	ctxGet, transportGet := ember.NewTestCtx("GET", "/get-session", map[string]string{
		"Cookie": sessionCookie.Name + "=" + sessionCookie.Value,
	}, nil)
	ctxGet.SetNext(func(c *ember.Ctx) {
		sess := GetSession(c)
		require.NotNil(t, sess, "Session should not be nil")
		if value := sess.Get("testKey"); value != nil {
			c.Response.Status(ember.StatusOK).Text(value.(string))
		} else {
			c.Response.Status(ember.StatusNotFound).Text("Value not found")
		}
	})
	middleware(ctxGet)
	require.NoError(t, ctxGet.Response.Send())

	respGet, err := ember.ParseTestResponse(transportGet.Bytes())
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, respGet.StatusCode, "Expected NotFound status after session expiry")
}
