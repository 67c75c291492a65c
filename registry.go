package docroom

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Registry holds the Document Sessions, keyed by document id. Sessions are
// created lazily on first access and stay resident until the janitor evicts
// them.
//
// The registry lock only guards the map; it is never held across a session
// operation, so hydration I/O on one document cannot stall another. The
// janitor marks sessions it removes as evicted under their own mutex, and
// withSession retries on that mark, so an operation can never land on a
// session that left the map between lookup and lock.
type Registry struct {
	m        sync.RWMutex
	sessions map[string]*Session

	store  *SnapshotStore
	logger zerolog.Logger
}

func NewRegistry(store *SnapshotStore, logger zerolog.Logger) *Registry {
	return &Registry{
		sessions: map[string]*Session{},
		store:    store,
		logger:   logger.With().Str("component", "registry").Logger(),
	}
}

// withSession runs fn against docID's session while the session mutex is
// held. When create is false and no session exists, fn is not called.
func (r *Registry) withSession(docID string, create bool, fn func(*Session)) bool {
	for {
		r.m.RLock()
		s, ok := r.sessions[docID]
		r.m.RUnlock()

		if !ok {
			if !create {
				return false
			}
			r.m.Lock()
			s, ok = r.sessions[docID]
			if !ok {
				s = newSession(docID)
				r.sessions[docID] = s
				getMetrics().activeSessions.Inc()
				r.logger.Debug().Str("doc", docID).Msg("session created")
			}
			r.m.Unlock()
		}

		s.m.Lock()
		if s.evicted {
			s.m.Unlock()
			continue
		}
		fn(s)
		s.m.Unlock()
		return true
	}
}

// Get returns the in-memory working copy of docID, hydrating it from the
// Snapshot Store on first access.
func (r *Registry) Get(ctx context.Context, docID string) (json.RawMessage, error) {
	var (
		content json.RawMessage
		err     error
	)
	r.withSession(docID, true, func(s *Session) {
		content, err = s.get(ctx, r.store.LoadLatest)
	})
	return content, err
}

// Set replaces the working copy unconditionally. The Registry performs no
// authorization; callers validate lock ownership first.
func (r *Registry) Set(docID string, content json.RawMessage) {
	r.withSession(docID, true, func(s *Session) {
		s.set(content)
	})
}

// Join records connID as a member of docID's session.
func (r *Registry) Join(docID, connID string) {
	r.withSession(docID, true, func(s *Session) {
		s.join(connID)
	})
}

// JoinAndLoad records connID as a member and returns the working copy and
// current lock holder as one atomic observation, so a joiner can never see
// content and lock state from two different instants.
func (r *Registry) JoinAndLoad(ctx context.Context, docID, connID string) (json.RawMessage, string, error) {
	var (
		content json.RawMessage
		holder  string
		err     error
	)
	r.withSession(docID, true, func(s *Session) {
		s.join(connID)
		content, err = s.get(ctx, r.store.LoadLatest)
		holder = s.holderID()
	})
	return content, holder, err
}

// Leave removes connID from docID's session membership.
func (r *Registry) Leave(docID, connID string) {
	r.withSession(docID, false, func(s *Session) {
		s.leave(connID)
	})
}

// snapshotSessions returns the current sessions for read-only iteration.
func (r *Registry) snapshotSessions() map[string]*Session {
	r.m.RLock()
	defer r.m.RUnlock()
	out := make(map[string]*Session, len(r.sessions))
	for id, s := range r.sessions {
		out[id] = s
	}
	return out
}

// StartJanitor evicts idle sessions every interval until ctx is done.
// Sessions that are unlocked, memberless and untouched for idleTTL are
// flushed to the Snapshot Store when they carry unsaved changes, then
// dropped. Locked or populated sessions are never evicted.
func (r *Registry) StartJanitor(ctx context.Context, interval, idleTTL time.Duration) {
	if interval <= 0 || idleTTL <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.evictIdle(ctx, idleTTL)
			}
		}
	}()
}

func (r *Registry) evictIdle(ctx context.Context, idleTTL time.Duration) {
	now := time.Now()

	type flush struct {
		docID   string
		content json.RawMessage
	}
	var flushes []flush

	r.m.Lock()
	for docID, s := range r.sessions {
		s.m.Lock()
		content, evictable := s.idleContent(idleTTL, now)
		if !evictable {
			s.m.Unlock()
			continue
		}
		s.evicted = true
		s.m.Unlock()
		delete(r.sessions, docID)
		getMetrics().activeSessions.Dec()
		getMetrics().sessionsEvicted.Inc()
		if content != nil {
			flushes = append(flushes, flush{docID: docID, content: content})
		}
	}
	r.m.Unlock()

	//store writes happen outside the registry lock
	for _, f := range flushes {
		if _, err := r.store.Append(ctx, f.docID, f.content); err != nil {
			r.logger.Error().Err(err).Str("doc", f.docID).Msg("failed to flush evicted session")
			continue
		}
		r.logger.Debug().Str("doc", f.docID).Msg("evicted session flushed")
	}
}
