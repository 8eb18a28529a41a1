package session

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"feedsync/internal/models"
	"feedsync/internal/observability"

	"github.com/golang-jwt/jwt/v5"
)

// Store keys.
const (
	keyUserID      = "viewer:user_id"
	keyCredential  = "viewer:credential"
	keyDisplayName = "viewer:display_name"
	keyAvatar      = "viewer:avatar"
	followPrefix   = "follow:"
)

// storeTimeout bounds each write-through to the persisted store.
const storeTimeout = 2 * time.Second

// Identity is the signed-in viewer.
type Identity struct {
	UserID      string
	Credential  string
	DisplayName string
	AvatarURL   string
}

// Summary returns the viewer as a post/comment author.
func (i Identity) Summary() models.UserSummary {
	return models.UserSummary{ID: i.UserID, DisplayName: i.DisplayName, AvatarURL: i.AvatarURL}
}

// Session mirrors the persisted store in memory so reads at dispatch time are
// synchronous. Writes go to the mirror first and then through to the store.
type Session struct {
	store Store
	now   func() time.Time

	mu       sync.RWMutex
	identity Identity
	hints    map[string]bool

	// unsaved holds hint writes not yet sent to the store. One flusher
	// goroutine drains it; flushed is closed when that goroutine exits.
	unsaved map[string]bool
	flushed chan struct{}
}

// New returns a session over store. Call Load to read persisted values.
func New(store Store) *Session {
	return &Session{
		store: store,
		now:   time.Now,
		hints: make(map[string]bool),
	}
}

// SetClock overrides the clock used for credential expiry checks.
func (s *Session) SetClock(now func() time.Time) {
	s.now = now
}

// Load reads identity and follow hints from the store into memory.
func (s *Session) Load(ctx context.Context) error {
	var id Identity
	for key, dst := range map[string]*string{
		keyUserID:      &id.UserID,
		keyCredential:  &id.Credential,
		keyDisplayName: &id.DisplayName,
		keyAvatar:      &id.AvatarURL,
	} {
		v, _, err := s.store.Get(ctx, key)
		if err != nil {
			return err
		}
		*dst = v
	}

	keys, err := s.store.Keys(ctx, followPrefix)
	if err != nil {
		return err
	}
	hints := make(map[string]bool, len(keys))
	for _, key := range keys {
		v, ok, err := s.store.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		following, err := strconv.ParseBool(v)
		if err != nil {
			continue
		}
		hints[strings.TrimPrefix(key, followPrefix)] = following
	}

	s.mu.Lock()
	s.identity = id
	s.hints = hints
	s.mu.Unlock()
	return nil
}

// SignIn stores the viewer identity.
func (s *Session) SignIn(ctx context.Context, id Identity) error {
	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()

	for key, value := range map[string]string{
		keyUserID:      id.UserID,
		keyCredential:  id.Credential,
		keyDisplayName: id.DisplayName,
		keyAvatar:      id.AvatarURL,
	} {
		if err := s.store.Set(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}

// SignOut forgets the viewer and every hint, in memory and in the store.
// Hint writes not yet flushed are dropped.
func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	s.identity = Identity{}
	s.hints = make(map[string]bool)
	s.unsaved = nil
	s.mu.Unlock()
	if err := s.WaitHints(ctx); err != nil {
		return err
	}
	return s.store.Clear(ctx)
}

// Identity returns the current viewer.
func (s *Session) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// ViewerID returns the signed-in user's id, or "".
func (s *Session) ViewerID() string {
	return s.Identity().UserID
}

// Credential returns the bearer credential. A missing credential, or a JWT
// whose exp claim has passed, is an AuthFailure.
func (s *Session) Credential() (string, error) {
	token := s.Identity().Credential
	if token == "" {
		return "", models.NewUnauthorizedError("not signed in")
	}
	if expired(token, s.now()) {
		return "", models.NewUnauthorizedError("credential expired")
	}
	return token, nil
}

func expired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		// Opaque tokens carry no expiry; the backend decides.
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}

// FollowHint returns the last locally written follow state for target.
func (s *Session) FollowHint(targetID string) (following, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	following, ok = s.hints[targetID]
	return following, ok
}

// SetFollowHint records an optimistic follow state. The in-memory hint is
// updated at once; the store write happens on a background goroutine so the
// caller never waits on the network. Store failures are logged and
// otherwise ignored: hints are superseded by the next fetch.
func (s *Session) SetFollowHint(targetID string, following bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hints[targetID] = following
	if s.unsaved == nil {
		s.unsaved = make(map[string]bool)
	}
	s.unsaved[targetID] = following
	if s.flushed == nil {
		s.flushed = make(chan struct{})
		go s.flushHints(s.flushed)
	}
}

// WaitHints blocks until every hint written so far has reached the store.
func (s *Session) WaitHints(ctx context.Context) error {
	s.mu.RLock()
	flushed := s.flushed
	s.mu.RUnlock()
	if flushed == nil {
		return nil
	}
	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// flushHints writes hints until none are left. Only the latest value per
// target is written.
func (s *Session) flushHints(done chan struct{}) {
	defer close(done)
	for {
		s.mu.Lock()
		batch := s.unsaved
		s.unsaved = nil
		if len(batch) == 0 {
			s.flushed = nil
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		for targetID, following := range batch {
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			if err := s.store.Set(ctx, followPrefix+targetID, strconv.FormatBool(following)); err != nil {
				observability.LogAsyncOperationError(ctx, "session.follow_hint", err, map[string]any{"target_id": targetID})
			}
			cancel()
		}
	}
}
