// Package session provides cookie-backed user session storage: a Manager
// that resolves a session ID from the request (cookie, header, or query
// string), and a middleware that wires a Session into Ctx.Locals for the
// duration of a request, persisting any changes on the way out.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emberhttp/ember"
	"github.com/emberhttp/ember/internal/memorystore"
)

// localsKey is the Ctx.Locals key the middleware stores the active Session
// under.
const localsKey = "ember_session"

// Session represents a user session with identification, data storage, and
// expiration information.
type Session struct {
	ID string

	Values map[string]interface{}

	CreatedAt time.Time
	ExpiresAt time.Time

	store Store

	cookieName string
	cookiePath string
}

// Config represents the configuration for the Session middleware.
type Config struct {
	// Expiration is the duration after which the session will expire.
	Expiration time.Duration
	// KeyLookup is the format of where to look for the session ID.
	// Format: "source:name" where source is "cookie", "header", or "query".
	KeyLookup string
	// KeyGenerator generates a new session ID. Defaults to 32 random bytes,
	// URL-safe base64 encoded.
	KeyGenerator func() string
	// Path is the cookie path.
	Path string
	// Domain is the cookie domain.
	Domain string
	// Secure marks the cookie HTTPS-only.
	Secure bool
	// HttpOnly marks the cookie inaccessible to JavaScript.
	HttpOnly bool
	// Store is the storage backend for sessions. Defaults to an in-memory
	// store swept every 5 minutes.
	Store Store

	source      string
	sessionName string
}

// DefaultConfig returns the default configuration for the Session middleware.
func DefaultConfig() Config {
	cfg := Config{
		Expiration: 24 * time.Hour,
		KeyLookup:  "cookie:session_id",
		Path:       "/",
		HttpOnly:   true,
	}
	cfg.source, cfg.sessionName = parseKeyLookup(cfg.KeyLookup)
	return cfg
}

func parseKeyLookup(keyLookup string) (source, name string) {
	parts := strings.SplitN(keyLookup, ":", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "cookie", "session_id"
}

// Store is the interface that session backends must implement.
type Store interface {
	Get(id string) (*Session, error)
	Save(session *Session) error
	Delete(id string) error
}

// memoryStore adapts memorystore.Store to the Store interface, serializing
// Sessions to and from its flat byte-slice values.
type memoryStore struct {
	backend *memorystore.Store
}

func newMemoryStore() *memoryStore {
	return &memoryStore{backend: memorystore.New(5 * time.Minute)}
}

func (m *memoryStore) Get(id string) (*Session, error) {
	data, err := m.backend.Get(id)
	if err != nil {
		if errors.Is(err, memorystore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	sess := &Session{}
	if err := unmarshalSession(data, sess); err != nil {
		return nil, err
	}
	if time.Now().After(sess.ExpiresAt) {
		_ = m.backend.Delete(id)
		return nil, nil
	}
	return sess, nil
}

func (m *memoryStore) Save(sess *Session) error {
	data, err := marshalSession(sess)
	if err != nil {
		return err
	}
	var ttl time.Duration
	if !sess.ExpiresAt.IsZero() {
		ttl = time.Until(sess.ExpiresAt)
		if ttl <= 0 {
			return m.backend.Delete(sess.ID)
		}
	}
	return m.backend.Set(sess.ID, data, ttl)
}

func (m *memoryStore) Delete(id string) error {
	return m.backend.Delete(id)
}

// marshalSession encodes a session as a flat "id|created|expires|k=type:v;..."
// string. Good enough for the in-memory store and any byte-oriented backend;
// a production deployment swapping in e.g. a Redis-backed Store is free to
// use a richer encoding of its own.
func marshalSession(session *Session) ([]byte, error) {
	data := fmt.Sprintf("%s|%d|%d|", session.ID, session.CreatedAt.Unix(), session.ExpiresAt.Unix())

	for k, v := range session.Values {
		if v == nil {
			data += fmt.Sprintf("%s=__NIL_VALUE__;", k)
			continue
		}
		switch v.(type) {
		case string:
			data += fmt.Sprintf("%s=string:%v;", k, v)
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			data += fmt.Sprintf("%s=number:%v;", k, v)
		case float32, float64:
			data += fmt.Sprintf("%s=float:%v;", k, v)
		case bool:
			data += fmt.Sprintf("%s=bool:%v;", k, v)
		default:
			data += fmt.Sprintf("%s=other:%v;", k, v)
		}
	}

	return []byte(data), nil
}

func unmarshalSession(data []byte, session *Session) error {
	parts := strings.Split(string(data), "|")
	if len(parts) < 3 {
		return fmt.Errorf("session: invalid encoded session")
	}

	session.ID = parts[0]

	createdAt, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return err
	}
	session.CreatedAt = time.Unix(createdAt, 0)

	expiresAt, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return err
	}
	session.ExpiresAt = time.Unix(expiresAt, 0)

	session.Values = make(map[string]interface{})

	if len(parts) > 3 && parts[3] != "" {
		for _, pair := range strings.Split(parts[3], ";") {
			if pair == "" {
				continue
			}
			kv := strings.SplitN(pair, "=", 2)
			if len(kv) != 2 {
				continue
			}
			if kv[1] == "__NIL_VALUE__" {
				session.Values[kv[0]] = nil
				continue
			}
			typeValue := strings.SplitN(kv[1], ":", 2)
			if len(typeValue) != 2 {
				session.Values[kv[0]] = kv[1]
				continue
			}
			switch typeValue[0] {
			case "string":
				session.Values[kv[0]] = typeValue[1]
			case "number":
				if n, err := strconv.ParseInt(typeValue[1], 10, 64); err == nil {
					session.Values[kv[0]] = n
				} else if n, err := strconv.ParseUint(typeValue[1], 10, 64); err == nil {
					session.Values[kv[0]] = n
				} else {
					session.Values[kv[0]] = typeValue[1]
				}
			case "float":
				if f, err := strconv.ParseFloat(typeValue[1], 64); err == nil {
					session.Values[kv[0]] = f
				} else {
					session.Values[kv[0]] = typeValue[1]
				}
			case "bool":
				if b, err := strconv.ParseBool(typeValue[1]); err == nil {
					session.Values[kv[0]] = b
				} else {
					session.Values[kv[0]] = typeValue[1]
				}
			default:
				session.Values[kv[0]] = typeValue[1]
			}
		}
	}

	return nil
}

// Manager resolves, creates, and persists Sessions for incoming requests.
type Manager struct {
	config Config
	store  Store
}

// NewManager creates a Manager with the given configuration and backend.
func NewManager(config Config, store Store) *Manager {
	return &Manager{config: config, store: store}
}

func (m *Manager) sessionIDFromRequest(c *ember.Ctx) string {
	switch m.config.source {
	case "header":
		return c.Get(m.config.sessionName)
	case "query":
		return c.Query(m.config.sessionName)
	default:
		v, _ := c.TryCookie(m.config.sessionName)
		return v
	}
}

func (m *Manager) newSession() (*Session, error) {
	var id string
	if m.config.KeyGenerator != nil {
		id = m.config.KeyGenerator()
	} else {
		var err error
		id, err = generateSessionID()
		if err != nil {
			return nil, err
		}
	}
	return &Session{
		ID:         id,
		Values:     make(map[string]interface{}),
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(m.config.Expiration),
		store:      m.store,
		cookieName: m.config.sessionName,
		cookiePath: m.config.Path,
	}, nil
}

// Get resolves the session for the current request, creating one in memory
// if none is found. It never sets a cookie; use GetOrCreate for that.
func (m *Manager) Get(c *ember.Ctx) (*Session, error) {
	id := m.sessionIDFromRequest(c)
	if id != "" {
		sess, err := m.store.Get(id)
		if err != nil {
			return nil, err
		}
		if sess != nil {
			sess.store = m.store
			return sess, nil
		}
	}
	return m.newSession()
}

// GetOrCreate resolves the session for the current request. If none exists
// and the lookup source is "cookie", a new session is created and its
// cookie is written onto the response.
func (m *Manager) GetOrCreate(c *ember.Ctx) (*Session, error) {
	id := m.sessionIDFromRequest(c)
	if id != "" {
		sess, err := m.store.Get(id)
		if err != nil {
			return nil, err
		}
		if sess != nil {
			sess.store = m.store
			return sess, nil
		}
	}

	sess, err := m.newSession()
	if err != nil {
		return nil, err
	}

	if m.config.source == "cookie" {
		c.Response.SetCookie(m.config.sessionName, sess.ID, ember.CookieOptions{
			Path:       m.config.Path,
			Domain:     m.config.Domain,
			MaxAgeSecs: int(m.config.Expiration.Seconds()),
			Secure:     m.config.Secure,
			HTTPOnly:   m.config.HttpOnly,
		})
	}

	return sess, nil
}

// generateSessionID returns a 32-byte random value, URL-safe base64 encoded.
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// UUIDv4 generates a random RFC 4122 version-4 UUID string. Usable as a
// Config.KeyGenerator.
func UUIDv4() string {
	u := make([]byte, 16)
	if _, err := rand.Read(u); err != nil {
		return "00000000-0000-0000-0000-000000000000"
	}
	u[6] = (u[6] & 0x0f) | 0x40
	u[8] = (u[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", u[0:4], u[4:6], u[6:8], u[8:10], u[10:])
}

// New builds a session middleware. The middleware resolves or creates a
// Session for the request, stores it under Ctx.Locals so handlers can reach
// it via GetSession, runs the rest of the chain, then persists the session.
func New(config ...Config) ember.Middleware {
	cfg := DefaultConfig()
	if len(config) > 0 {
		cfg = config[0]
		if cfg.KeyLookup == "" {
			cfg.KeyLookup = "cookie:session_id"
		}
		cfg.source, cfg.sessionName = parseKeyLookup(cfg.KeyLookup)
		if cfg.Expiration <= 0 {
			cfg.Expiration = 24 * time.Hour
		}
		if cfg.Path == "" {
			cfg.Path = "/"
		}
	}

	store := cfg.Store
	if store == nil {
		store = newMemoryStore()
	}
	manager := NewManager(cfg, store)

	return func(c *ember.Ctx) {
		sess, err := manager.GetOrCreate(c)
		if err != nil {
			c.Error(err)
			return
		}

		c.SetLocal(localsKey, sess)
		c.Next()

		if err := manager.store.Save(sess); err != nil {
			c.Error(err)
		}
	}
}

// GetSession returns the Session a prior session middleware stored on c, or
// nil if none was set.
func GetSession(c *ember.Ctx) *Session {
	sess, _ := c.GetLocal(localsKey).(*Session)
	return sess
}

// Set stores a value under key.
func (s *Session) Set(key string, value interface{}) {
	s.Values[key] = value
}

// Get retrieves a value by key, or nil if absent.
func (s *Session) Get(key string) interface{} {
	return s.Values[key]
}

// Delete removes a value by key.
func (s *Session) Delete(key string) {
	delete(s.Values, key)
}

// Clear removes all values.
func (s *Session) Clear() {
	s.Values = make(map[string]interface{})
}

// Keys returns all keys currently stored in the session.
func (s *Session) Keys() []string {
	keys := make([]string, 0, len(s.Values))
	for k := range s.Values {
		keys = append(keys, k)
	}
	return keys
}

// Destroy clears the session and marks it expired so the next Save removes
// it from the store. If c is given, the session cookie is also cleared on
// the client.
func (s *Session) Destroy(c ...*ember.Ctx) error {
	s.Clear()
	s.ExpiresAt = time.Now().Add(-1 * time.Hour)

	if len(c) > 0 && c[0] != nil {
		cookieName := s.cookieName
		if cookieName == "" {
			cookieName = "session_id"
		}
		cookiePath := s.cookiePath
		if cookiePath == "" {
			cookiePath = "/"
		}
		c[0].Response.DeleteCookie(cookieName, cookiePath)
	}

	return nil
}

// SetExpiry overrides the session's expiration to now+expiry.
func (s *Session) SetExpiry(expiry time.Duration) {
	s.ExpiresAt = time.Now().Add(expiry)
}

// Save persists the session to its associated store immediately, outside
// the normal end-of-request save the middleware performs.
func (s *Session) Save() error {
	if s.store == nil {
		return fmt.Errorf("session: not associated with a store")
	}
	return s.store.Save(s)
}
