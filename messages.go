package docroom

import "encoding/json"

// Protocol events. Client to server: join_document, edit, request_lock,
// release_lock. Server to client: init, lock_taken, lock_granted,
// lock_released, edit, save_failed, error.
const (
	EventJoinDocument = "join_document"
	EventInit         = "init"
	EventLockTaken    = "lock_taken"
	EventEdit         = "edit"
	EventRequestLock  = "request_lock"
	EventLockGranted  = "lock_granted"
	EventReleaseLock  = "release_lock"
	EventLockReleased = "lock_released"
	EventSaveFailed   = "save_failed"
	EventError        = "error"
)

// Envelope frames every message on the wire, both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinPayload asks to join a document's room.
type JoinPayload struct {
	DocID string `json:"doc_id"`
}

// EditPayload carries one edit from the lock holder. Operation is relayed to
// the other room members as-is; FullContent replaces the server's working
// copy. Both are opaque to the engine.
type EditPayload struct {
	DocID       string          `json:"doc_id"`
	Operation   json.RawMessage `json:"operation"`
	FullContent json.RawMessage `json:"full_content"`
}

// RequestLockPayload asks for the edit lock on a document.
type RequestLockPayload struct {
	DocID string `json:"doc_id"`
}

// ReleaseLockPayload gives the lock back along with the final content to
// persist.
type ReleaseLockPayload struct {
	DocID       string          `json:"doc_id"`
	FullContent json.RawMessage `json:"full_content"`
}

// InitPayload delivers the current working content to a joining connection.
type InitPayload struct {
	DocID   string          `json:"doc_id"`
	Content json.RawMessage `json:"content"`
}

// LockTakenPayload tells room members who holds the edit lock.
type LockTakenPayload struct {
	DocID string `json:"doc_id"`
	By    string `json:"by"`
}

// LockGrantedPayload confirms a lock acquisition to the requester alone.
type LockGrantedPayload struct {
	DocID string `json:"doc_id"`
}

// LockReleasedPayload is broadcast on explicit or forced release.
type LockReleasedPayload struct {
	DocID string `json:"doc_id"`
}

// EditNotice relays an accepted edit operation to the other room members.
type EditNotice struct {
	DocID     string          `json:"doc_id"`
	Operation json.RawMessage `json:"operation"`
}

// SaveFailedPayload reports a failed snapshot write to the connection whose
// release triggered it.
type SaveFailedPayload struct {
	DocID  string `json:"doc_id"`
	Reason string `json:"reason"`
}

// ErrorPayload reports an internal fault. Protocol misuse is never reported,
// it is dropped silently.
type ErrorPayload struct {
	Message string `json:"message"`
}

func marshalEvent(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
