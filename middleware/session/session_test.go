package session

import (
	"testing"
	"time"

	"github.com/emberhttp/ember"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew tests the New function
func TestNew(t *testing.T) {
	middleware := New()
	assert.NotNil(t, middleware, "New() returned nil")

	customConfig := Config{
		KeyLookup: "cookie:custom_session",
		Expiration: time.Hour,
		Path:       "/api",
		Secure:     true,
		HttpOnly:   false,
	}
	middleware = New(customConfig)
	assert.NotNil(t, middleware, "New(customConfig) returned nil")
}

// TestDefaultConfig tests the DefaultConfig function
func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "cookie:session_id", config.KeyLookup, "DefaultConfig() returned unexpected KeyLookup")
	assert.Equal(t, 24*time.Hour, config.Expiration, "DefaultConfig() returned unexpected Expiration")
	assert.Equal(t, "/", config.Path, "DefaultConfig() returned unexpected Path")
	assert.False(t, config.Secure, "DefaultConfig() returned unexpected Secure value")
	assert.True(t, config.HttpOnly, "DefaultConfig() returned unexpected HttpOnly value")
	assert.Equal(t, "cookie", config.source)
	assert.Equal(t, "session_id", config.sessionName)
}

// TestMemoryStore tests the memoryStore backend
func TestMemoryStore(t *testing.T) {
	store := newMemoryStore()

	sess := &Session{
		ID:        "test-session-id",
		Values:    make(map[string]interface{}),
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}

	require.NoError(t, store.Save(sess), "Failed to save session")

	retrieved, err := store.Get("test-session-id")
	require.NoError(t, err, "Failed to get session")
	assert.NotNil(t, retrieved, "Retrieved session is nil")
	assert.Equal(t, "test-session-id", retrieved.ID, "Retrieved session has wrong ID")

	nonExistent, err := store.Get("non-existent-id")
	assert.NoError(t, err, "Get with non-existent ID returned error")
	assert.Nil(t, nonExistent, "Get with non-existent ID should return nil")

	require.NoError(t, store.Delete("test-session-id"), "Failed to delete session")

	deleted, err := store.Get("test-session-id")
	assert.NoError(t, err, "Get after delete returned error")
	assert.Nil(t, deleted, "Session should be nil after deletion")

	expired := &Session{
		ID:        "expired-session-id",
		Values:    make(map[string]interface{}),
		CreatedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-1 * time.Hour),
	}
	require.NoError(t, store.Save(expired), "Failed to save expired session")

	retrievedExpired, err := store.Get("expired-session-id")
	assert.NoError(t, err, "Get expired session returned error")
	assert.Nil(t, retrievedExpired, "Get should return nil for expired session")
}

// TestSessionMethods tests the Session methods
func TestSessionMethods(t *testing.T) {
	sess := &Session{
		ID:        "test-session-id",
		Values:    make(map[string]interface{}),
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}

	sess.Set("key1", "value1")
	sess.Set("key2", 123)

	assert.Equal(t, "value1", sess.Get("key1"))
	assert.Equal(t, 123, sess.Get("key2"))

	sess.Delete("key1")
	assert.Nil(t, sess.Get("key1"))

	sess.Clear()
	assert.Nil(t, sess.Get("key2"))
	assert.Equal(t, 0, len(sess.Values))
}

// TestGenerateSessionID tests the generateSessionID function
func TestGenerateSessionID(t *testing.T) {
	id1, err := generateSessionID()
	require.NoError(t, err, "generateSessionID() returned error")
	assert.NotEmpty(t, id1, "generateSessionID() returned empty string")

	id2, err := generateSessionID()
	require.NoError(t, err, "generateSessionID() returned error")

	assert.NotEqual(t, id1, id2, "generateSessionID() returned the same ID twice")
}

// TestManager tests the Manager functionality
func TestManager(t *testing.T) {
	config := DefaultConfig()
	store := newMemoryStore()
	manager := NewManager(config, store)

	assert.NotNil(t, manager, "NewManager returned nil")
	assert.Equal(t, config.KeyLookup, manager.config.KeyLookup)
	assert.Equal(t, store, manager.store, "manager.store is not the same as the provided store")
}

// TestGetSession tests the GetSession function
func TestGetSession(t *testing.T) {
	ctx, _ := ember.NewTestCtx("GET", "/test", nil, nil)

	// GetSession should return nil when no session was set by a middleware
	sess := GetSession(ctx)
	assert.Nil(t, sess, "GetSession returned non-nil session when none was set")
}

// TestMiddlewareSessionCreation tests that the middleware creates a new session when none exists
func TestMiddlewareSessionCreation(t *testing.T) {
	ctx, transport := ember.NewTestCtx("GET", "/test", nil, nil)
	ctx.SetNext(func(c *ember.Ctx) {
		c.Response.Status(ember.StatusOK).Text("OK")
	})

	middleware := New()
	middleware(ctx)

	sess := GetSession(ctx)
	assert.NotNil(t, sess, "No session was created by middleware")

	assert.NotEmpty(t, sess.ID, "Session ID is empty")
	assert.NotNil(t, sess.Values, "Session Values map is nil")
	assert.False(t, sess.CreatedAt.IsZero(), "Session CreatedAt is zero")
	assert.False(t, sess.ExpiresAt.IsZero(), "Session ExpiresAt is zero")

	sess.Set("testKey", "testValue")
	assert.Equal(t, "testValue", sess.Get("testKey"))

	require.NoError(t, ctx.Response.Send())
	resp, err := ember.ParseTestResponse(transport.Bytes())
	require.NoError(t, err)

	found := false
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "session_id" {
			found = true
			assert.NotEmpty(t, cookie.Value, "Session cookie has empty value")
			assert.Equal(t, "/", cookie.Path, "Session cookie has unexpected path")
			assert.True(t, cookie.HttpOnly, "Session cookie is not HttpOnly")
			break
		}
	}
	assert.True(t, found, "Session cookie was not set")
}

// TestMiddlewareSessionRetrieval tests that the middleware retrieves an existing session via its cookie
func TestMiddlewareSessionRetrieval(t *testing.T) {
	store := newMemoryStore()
	testSession := &Session{
		ID:        "test-session-id",
		Values:    map[string]interface{}{"existingKey": "existingValue"},
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, store.Save(testSession), "Failed to save test session")

	ctx, _ := ember.NewTestCtx("GET", "/test", map[string]string{
		"Cookie": "session_id=test-session-id",
	}, nil)
	ctx.SetNext(func(c *ember.Ctx) {})

	middleware := New(Config{Store: store})
	middleware(ctx)

	sess := GetSession(ctx)
	require.NotNil(t, sess, "No session was retrieved by middleware")
	assert.Equal(t, "test-session-id", sess.ID)
	assert.Equal(t, "existingValue", sess.Get("existingKey"))

	sess.Set("newKey", "newValue")
	require.NoError(t, store.Save(sess))

	updated, err := store.Get("test-session-id")
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "newValue", updated.Get("newKey"))
}

// TestMiddlewareCustomConfig tests the middleware with a custom cookie name and path
func TestMiddlewareCustomConfig(t *testing.T) {
	ctx, transport := ember.NewTestCtx("GET", "/test", nil, nil)
	ctx.SetNext(func(c *ember.Ctx) {})

	customConfig := Config{
		KeyLookup:  "cookie:custom_session",
		Expiration: time.Hour,
		Path:       "/api",
		Secure:     true,
		HttpOnly:   false,
	}
	middleware := New(customConfig)
	middleware(ctx)

	require.NoError(t, ctx.Response.Send())
	resp, err := ember.ParseTestResponse(transport.Bytes())
	require.NoError(t, err)

	found := false
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "custom_session" {
			found = true
			assert.NotEmpty(t, cookie.Value, "Session cookie has empty value")
			assert.Equal(t, "/api", cookie.Path, "Session cookie has unexpected path")
			assert.True(t, cookie.Secure, "Session cookie is not Secure")
			assert.False(t, cookie.HttpOnly, "Session cookie is HttpOnly when it should not be")
			break
		}
	}
	assert.True(t, found, "Custom session cookie was not set")

	sess := GetSession(ctx)
	assert.NotNil(t, sess, "No session was created by middleware")
}

// TestMiddlewareExpiredSession tests that the middleware replaces an expired session
func TestMiddlewareExpiredSession(t *testing.T) {
	store := newMemoryStore()
	expired := &Session{
		ID:        "expired-session-id",
		Values:    map[string]interface{}{"key": "value"},
		CreatedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-1 * time.Hour),
	}
	require.NoError(t, store.Save(expired), "Failed to save expired session")

	ctx, transport := ember.NewTestCtx("GET", "/test", map[string]string{
		"Cookie": "session_id=expired-session-id",
	}, nil)
	ctx.SetNext(func(c *ember.Ctx) {})

	middleware := New(Config{Store: store})
	middleware(ctx)

	sess := GetSession(ctx)
	require.NotNil(t, sess, "No session was created by middleware")
	assert.NotEqual(t, "expired-session-id", sess.ID, "Middleware did not create a new session for an expired one")

	require.NoError(t, ctx.Response.Send())
	resp, err := ember.ParseTestResponse(transport.Bytes())
	require.NoError(t, err)

	found := false
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "session_id" {
			found = true
			assert.Equal(t, sess.ID, cookie.Value)
			break
		}
	}
	assert.True(t, found, "New session cookie was not set")

	retrievedExpired, err := store.Get("expired-session-id")
	assert.NoError(t, err)
	assert.Nil(t, retrievedExpired, "Expired session should have been swept")
}
