package docroom

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Session is the in-memory state of one collaboratively edited document:
// working content, the current lock holder and the joined connections. One
// mutex guards every field, so no two state transitions on the same document
// can interleave their check-then-set, while unrelated documents never
// contend.
//
// The methods below assume m is held; the registry's withSession and the
// janitor take it. Keeping the lock outside the methods lets hydration I/O
// run under the session mutex alone, without pinning the registry.
type Session struct {
	docID string

	m          sync.Mutex
	hydrated   bool
	content    json.RawMessage
	holder     string //connection id, empty when unlocked
	members    map[string]struct{}
	dirty      bool //content changed since it was last handed off for persistence
	lastActive time.Time
	evicted    bool //set by the janitor; the session is no longer resident
}

func newSession(docID string) *Session {
	return &Session{
		docID:      docID,
		members:    map[string]struct{}{},
		lastActive: time.Now(),
	}
}

type contentLoader func(ctx context.Context, docID string) (json.RawMessage, error)

// get returns the working copy, hydrating it through load exactly once per
// session lifetime. Later calls reuse the in-memory copy and never re-read
// persisted (possibly stale) data while the session is hot.
func (s *Session) get(ctx context.Context, load contentLoader) (json.RawMessage, error) {
	if !s.hydrated {
		content, err := load(ctx, s.docID)
		if err != nil {
			return nil, err
		}
		s.content = content
		s.hydrated = true
	}
	s.lastActive = time.Now()
	return s.content, nil
}

// set replaces the working copy unconditionally. Authorization is the
// caller's problem.
func (s *Session) set(content json.RawMessage) {
	s.content = content
	s.hydrated = true
	s.dirty = true
	s.lastActive = time.Now()
}

func (s *Session) join(connID string) {
	s.members[connID] = struct{}{}
	s.lastActive = time.Now()
}

func (s *Session) leave(connID string) {
	delete(s.members, connID)
	s.lastActive = time.Now()
}

// request grants the lock to connID if it is free. The first caller to take
// the session mutex wins; losers get false and nothing else. Joining is a
// precondition for holding the lock.
func (s *Session) request(connID string) bool {
	if s.holder != "" {
		return false
	}
	if _, joined := s.members[connID]; !joined {
		return false
	}
	s.holder = connID
	s.lastActive = time.Now()
	return true
}

// release clears the lock if connID holds it. A non-nil final replaces the
// working copy first. The returned content is captured in the same critical
// section as the lock clear, so the snapshot written afterwards is exactly
// the content observed at release time. A non-holder cannot release.
func (s *Session) release(connID string, final json.RawMessage) (json.RawMessage, bool) {
	if s.holder == "" || s.holder != connID {
		return nil, false
	}
	if final != nil {
		s.content = final
		s.hydrated = true
	}
	s.holder = ""
	s.dirty = false //the captured value is on its way to the store
	s.lastActive = time.Now()
	if s.content == nil {
		return EmptyContent, true
	}
	return s.content, true
}

// applyEdit overwrites the working copy if connID is the current holder.
// Holder check and overwrite are one atomic step.
func (s *Session) applyEdit(connID string, content json.RawMessage) bool {
	if s.holder != connID {
		return false
	}
	s.content = content
	s.hydrated = true
	s.dirty = true
	s.lastActive = time.Now()
	return true
}

func (s *Session) holderID() string {
	return s.holder
}

// idleContent reports whether the session is evictable (unlocked, memberless
// and untouched for ttl) and returns the content to flush, which is non-nil
// only when there are unsaved changes.
func (s *Session) idleContent(ttl time.Duration, now time.Time) (json.RawMessage, bool) {
	if s.holder != "" || len(s.members) > 0 {
		return nil, false
	}
	if now.Sub(s.lastActive) < ttl {
		return nil, false
	}
	if !s.dirty {
		return nil, true
	}
	return s.content, true
}
