package docroom

import (
	"encoding/json"
	"sort"
)

// Arbiter arbitrates the single-writer edit lock per document. Each document
// is either Unlocked or Locked(holder), and every transition runs as one
// atomic step against the session state, so two simultaneous requests for a
// free lock resolve to exactly one grant, in arrival order at the session
// mutex.
type Arbiter struct {
	registry *Registry
}

func NewArbiter(registry *Registry) *Arbiter {
	return &Arbiter{registry: registry}
}

// Request grants docID's lock to connID if it is free and connID has joined
// the document. A request for a held lock is dropped, not queued; the loser
// learns nothing.
func (a *Arbiter) Request(docID, connID string) bool {
	granted := false
	a.registry.withSession(docID, false, func(s *Session) {
		granted = s.request(connID)
	})
	if granted {
		getMetrics().locksHeld.Inc()
	}
	return granted
}

// Release clears the lock if connID holds it, replacing the working copy
// with final when non-nil. The returned content was captured atomically with
// the lock clear and must be persisted by the caller. A release from a
// non-holder is a no-op.
func (a *Arbiter) Release(docID, connID string, final json.RawMessage) (json.RawMessage, bool) {
	var (
		content  json.RawMessage
		released bool
	)
	a.registry.withSession(docID, false, func(s *Session) {
		content, released = s.release(connID, final)
	})
	if released {
		getMetrics().locksHeld.Dec()
	}
	return content, released
}

// ForceRelease is Release without a final content, used when connID
// disconnects while holding the lock. The in-memory working copy is what
// gets captured for persistence.
func (a *Arbiter) ForceRelease(docID, connID string) (json.RawMessage, bool) {
	return a.Release(docID, connID, nil)
}

// ApplyEdit overwrites docID's working copy if connID is the current holder.
// Holder validation and overwrite are a single atomic step. An edit from
// anyone else has no observable effect.
func (a *Arbiter) ApplyEdit(docID, connID string, content json.RawMessage) bool {
	applied := false
	a.registry.withSession(docID, false, func(s *Session) {
		applied = s.applyEdit(connID, content)
	})
	return applied
}

// HolderOf returns the connection currently holding docID's lock.
func (a *Arbiter) HolderOf(docID string) (string, bool) {
	holder := ""
	a.registry.withSession(docID, false, func(s *Session) {
		holder = s.holderID()
	})
	return holder, holder != ""
}

// HeldBy returns every document id whose lock connID currently holds. A
// single connection can hold locks on multiple documents, so disconnect
// handling must walk them all.
func (a *Arbiter) HeldBy(connID string) []string {
	var docs []string
	for docID, s := range a.registry.snapshotSessions() {
		s.m.Lock()
		held := s.holderID() == connID
		s.m.Unlock()
		if held {
			docs = append(docs, docID)
		}
	}
	sort.Strings(docs)
	return docs
}
