// Package docroom is a real-time document collaboration engine. It keeps an
// in-memory session per open document, arbitrates a single-writer edit lock
// among the connected participants, relays edit payloads between them and
// persists snapshots when the lock is released or a participant disconnects.
//
// Edit payloads are opaque to the engine; it enforces mutual exclusion
// instead of merging concurrent changes.
package docroom

import "time"

// SnapshotDoc is the persisted snapshot row. Exported only for marshalling.
type SnapshotDoc struct {
	ID      string    `docstore:"id"` //docID for the latest pointer, docID/version for history rows
	DocID   string    `docstore:"doc_id"`
	Version string    `docstore:"version"`
	Content string    `docstore:"content"`
	SavedAt time.Time `docstore:"saved_at"`

	//for optimistic concurrency
	DocstoreRevision interface{}
}
