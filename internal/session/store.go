// Package session holds the authenticated session: the credential, which
// survives restarts in a durable slot, and the identity fetched with it.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/IVANFROL/reklama-oleg/internal/apierr"
	"github.com/IVANFROL/reklama-oleg/internal/models"
)

// FetchIdentity resolves a credential to the identity it belongs to.
type FetchIdentity func(ctx context.Context, credential string) (models.Identity, error)

// Store is safe for concurrent use. Every establish and clear bumps the epoch,
// which callers capture before a request and compare afterwards to drop results
// that belong to an earlier session.
type Store struct {
	mu       sync.RWMutex
	slot     Slot
	cred     string
	identity *models.Identity
	epoch    uint64
	logger   *slog.Logger
	now      func() time.Time
}

func NewStore(slot Slot, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{slot: slot, logger: logger, now: time.Now}
}

// Establish persists credential and makes identity current. Nothing changes
// when the slot cannot be written.
func (s *Store) Establish(ctx context.Context, credential string, identity models.Identity) error {
	if credential == "" {
		return errors.New("session: empty credential")
	}
	if err := s.slot.Save(ctx, credential); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = credential
	id := identity
	s.identity = &id
	s.epoch++
	return nil
}

// Clear forgets the session and deletes the stored credential. The in-memory
// session is gone even when the slot fails.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.cred = ""
	s.identity = nil
	s.epoch++
	s.mu.Unlock()
	return s.slot.Delete(ctx)
}

// Invalidate clears the session after the backend rejected credential. A
// rejection of an older credential leaves a newer session alone.
func (s *Store) Invalidate(credential string) {
	s.mu.RLock()
	current := s.cred
	s.mu.RUnlock()
	if current == "" || current != credential {
		return
	}
	s.logger.Warn("session rejected by server, clearing")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Clear(ctx); err != nil {
		s.logger.Error("failed to delete stored credential", "error", err)
	}
}

// Current returns the identity of the active session.
func (s *Store) Current() (models.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == "" || s.identity == nil {
		return models.Identity{}, false
	}
	return *s.identity, true
}

func (s *Store) Credential() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred, s.cred != ""
}

func (s *Store) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// UpdateIdentity stores a refetched identity if the session of epoch is still
// the active one.
func (s *Store) UpdateIdentity(identity models.Identity, epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == "" || s.epoch != epoch {
		return false
	}
	id := identity
	s.identity = &id
	return true
}

// Restore loads the stored credential and resolves it with fetch. It returns
// false with a nil error when there is no usable session; the stored
// credential is deleted when it is expired or the backend refuses it. On
// network or server failures the credential is kept for a later attempt and
// the error is returned.
func (s *Store) Restore(ctx context.Context, fetch FetchIdentity) (models.Identity, bool, error) {
	cred, err := s.slot.Load(ctx)
	if errors.Is(err, ErrNoCredential) {
		return models.Identity{}, false, nil
	}
	if err != nil {
		return models.Identity{}, false, err
	}
	if info := InspectToken(cred); info.Expired(s.now()) {
		s.logger.Info("stored credential expired, clearing", "subject", info.Subject)
		return models.Identity{}, false, s.Clear(ctx)
	}

	s.mu.Lock()
	s.cred = cred
	s.identity = nil
	s.epoch++
	epoch := s.epoch
	s.mu.Unlock()

	identity, err := fetch(ctx, cred)
	if err != nil {
		switch apierr.KindOf(err) {
		case apierr.KindUnauthenticated, apierr.KindUnauthorized, apierr.KindNotFound:
			s.logger.Warn("stored credential refused, clearing", "error", err)
			if s.Epoch() != epoch {
				return models.Identity{}, false, nil
			}
			return models.Identity{}, false, s.Clear(ctx)
		}
		return models.Identity{}, false, err
	}
	if !s.UpdateIdentity(identity, epoch) {
		return models.Identity{}, false, nil
	}
	return identity, true, nil
}
