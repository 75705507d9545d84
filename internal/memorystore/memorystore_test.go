package memorystore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetRoundTrip(t *testing.T) {
	s := New(0)
	defer s.Close()

	require.NoError(t, s.Set("key", []byte("value"), 0))
	got, err := s.Get("key")
	require.NoError(t, err)
	assert.Equal(t, "value", string(got))
}

func TestGetMissingKeyReturnsErrNotFound(t *testing.T) {
	s := New(0)
	defer s.Close()

	_, err := s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRemovesKey(t *testing.T) {
	s := New(0)
	defer s.Close()

	require.NoError(t, s.Set("key", []byte("value"), 0))
	require.NoError(t, s.Delete("key"))

	_, err := s.Get("key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteMissingKeyIsNotAnError(t *testing.T) {
	s := New(0)
	defer s.Close()
	assert.NoError(t, s.Delete("never-set"))
}

func TestGetExpiresLazily(t *testing.T) {
	s := New(0) // no background sweep, so expiry is only observed on Get
	defer s.Close()

	require.NoError(t, s.Set("key", []byte("value"), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	_, err := s.Get("key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBackgroundSweepEvictsExpiredEntries(t *testing.T) {
	s := New(10 * time.Millisecond)
	defer s.Close()

	require.NoError(t, s.Set("key", []byte("value"), 5*time.Millisecond))
	time.Sleep(50 * time.Millisecond)

	s.mu.RLock()
	_, stillPresent := s.items["key"]
	s.mu.RUnlock()
	assert.False(t, stillPresent, "expired entry should have been swept in the background")
}

func TestSetCopiesValue(t *testing.T) {
	s := New(0)
	defer s.Close()

	original := []byte("value")
	require.NoError(t, s.Set("key", original, 0))
	original[0] = 'X'

	got, err := s.Get("key")
	require.NoError(t, err)
	assert.Equal(t, "value", string(got), "Store should not alias the caller's slice")
}

func TestGetReturnsCopyNotAlias(t *testing.T) {
	s := New(0)
	defer s.Close()

	require.NoError(t, s.Set("key", []byte("value"), 0))
	got, err := s.Get("key")
	require.NoError(t, err)
	got[0] = 'X'

	again, err := s.Get("key")
	require.NoError(t, err)
	assert.Equal(t, "value", string(again))
}

func TestCloseWithoutCleanupIntervalIsSafe(t *testing.T) {
	s := New(0)
	assert.NoError(t, s.Close())
}
