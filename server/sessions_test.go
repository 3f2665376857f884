package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"yegnachat/db"
	"yegnachat/models"
)

// fakePersist is an in-memory PersistentSessions used to observe tiering.
type fakePersist struct {
	rows map[string]*models.Session
}

func newFakePersist() *fakePersist {
	return &fakePersist{rows: make(map[string]*models.Session)}
}

func (f *fakePersist) SaveSession(s *models.Session) error {
	copied := *s
	f.rows[s.Token] = &copied
	return nil
}

func (f *fakePersist) GetSession(token string, now time.Time) (*models.Session, error) {
	s, ok := f.rows[token]
	if !ok || s.Expired(now) {
		return nil, db.ErrNoRows
	}
	copied := *s
	return &copied, nil
}

func (f *fakePersist) DeleteSession(token string) error {
	delete(f.rows, token)
	return nil
}

func TestSessionStoreCreateAndResolve(t *testing.T) {
	store := NewSessionStore(nil, time.Hour, zap.NewNop())

	s, err := store.Create(9, "am")
	require.NoError(t, err)
	assert.NotEmpty(t, s.Token)
	assert.Equal(t, "am", s.PreferredLanguageCode)

	got, err := store.Resolve(s.Token)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(9), got.UserID)
}

func TestSessionStoreRefreshReplacesRecord(t *testing.T) {
	store := NewSessionStore(nil, time.Hour, zap.NewNop())

	s, err := store.Create(9, "am")
	require.NoError(t, err)

	fresh := *s
	fresh.PreferredLanguageCode = "en"
	store.Refresh(&fresh)

	got, err := store.Resolve(s.Token)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "en", got.PreferredLanguageCode)
	// The record published at create time is left untouched.
	assert.Equal(t, "am", s.PreferredLanguageCode)
}

func TestSessionStoreUnknownTokenResolvesNil(t *testing.T) {
	store := NewSessionStore(nil, time.Hour, zap.NewNop())

	got, err := store.Resolve("no-such-token")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionStoreInvalidateIsTerminal(t *testing.T) {
	persist := newFakePersist()
	store := NewSessionStore(persist, time.Hour, zap.NewNop())

	s, err := store.Create(9, "")
	require.NoError(t, err)
	require.NoError(t, store.Invalidate(s.Token))

	got, err := store.Resolve(s.Token)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Invalidating twice is fine.
	assert.NoError(t, store.Invalidate(s.Token))
}

func TestSessionStoreFallsBackToPersistedTier(t *testing.T) {
	persist := newFakePersist()
	warm := NewSessionStore(persist, time.Hour, zap.NewNop())

	s, err := warm.Create(9, "am")
	require.NoError(t, err)

	// A fresh store with an empty memory tier simulates a restart.
	cold := NewSessionStore(persist, time.Hour, zap.NewNop())
	got, err := cold.Resolve(s.Token)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(9), got.UserID)
}

func TestSessionStoreExpiryOnBothTiers(t *testing.T) {
	persist := newFakePersist()
	store := NewSessionStore(persist, time.Hour, zap.NewNop())

	s, err := store.Create(9, "")
	require.NoError(t, err)

	// Age the session past its expiry in both tiers.
	expired := time.Now().UTC().Add(-time.Minute)
	s.ExpiresAt = expired
	persist.rows[s.Token].ExpiresAt = expired

	got, err := store.Resolve(s.Token)
	require.NoError(t, err)
	assert.Nil(t, got)
}
