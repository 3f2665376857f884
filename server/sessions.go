package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"yegnachat/db"
	"yegnachat/models"
)

// PersistentSessions is the slice of the storage collaborator the session
// store needs. *db.DB implements it; tests may substitute their own.
type PersistentSessions interface {
	SaveSession(s *models.Session) error
	GetSession(token string, now time.Time) (*models.Session, error)
	DeleteSession(token string) error
}

// SessionStore is the two-tier token table: an in-memory fast path over a
// persisted sessions table. With a nil persist it degrades to the memory-only
// variant (no durability across restarts; used by tests).
type SessionStore struct {
	byToken sync.Map // string -> *models.Session
	persist PersistentSessions
	ttl     time.Duration
	log     *zap.Logger
}

func NewSessionStore(persist PersistentSessions, ttl time.Duration, log *zap.Logger) *SessionStore {
	return &SessionStore{
		persist: persist,
		ttl:     ttl,
		log:     log,
	}
}

// Create mints a session for the user and stores it in both tiers.
func (st *SessionStore) Create(userID int64, preferredLanguage string) (*models.Session, error) {
	now := time.Now().UTC()
	s := &models.Session{
		Token:                 uuid.NewString(),
		UserID:                userID,
		PreferredLanguageCode: preferredLanguage,
		CreatedAt:             now,
	}
	if st.ttl > 0 {
		s.ExpiresAt = now.Add(st.ttl)
	}

	if st.persist != nil {
		if err := st.persist.SaveSession(s); err != nil {
			return nil, err
		}
	}

	st.byToken.Store(s.Token, s)
	return s, nil
}

// Resolve looks the token up in memory first and falls back to the persisted
// table, repopulating the cache on a hit. An expired session never resolves,
// no matter which tier still holds it. Returns (nil, nil) for not found.
func (st *SessionStore) Resolve(token string) (*models.Session, error) {
	now := time.Now().UTC()

	if v, ok := st.byToken.Load(token); ok {
		s := v.(*models.Session)
		if !s.Expired(now) {
			return s, nil
		}
		st.byToken.Delete(token)
	}

	if st.persist == nil {
		return nil, nil
	}

	s, err := st.persist.GetSession(token, now)
	if err == db.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	st.byToken.Store(token, s)
	return s, nil
}

// Refresh replaces the cached record for a token with an updated copy.
// Cached records are shared across connections and never mutated in place;
// a change mints a new record and installs it here.
func (st *SessionStore) Refresh(s *models.Session) {
	st.byToken.Store(s.Token, s)
}

// Invalidate removes the token from both tiers. Idempotent; once a token is
// invalidated it never resolves again.
func (st *SessionStore) Invalidate(token string) error {
	st.byToken.Delete(token)
	if st.persist == nil {
		return nil
	}
	if err := st.persist.DeleteSession(token); err != nil {
		st.log.Warn("failed to delete persisted session", zap.Error(err))
		return err
	}
	return nil
}
