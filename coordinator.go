package docroom

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
)

// Coordinator translates connection lifecycle events into calls on the
// registry, arbiter, snapshot store and hub. Protocol misuse (edits or
// releases from non-holders, requests for a held lock) degrades to silent
// no-ops; only internal faults surface as events.
type Coordinator struct {
	registry *Registry
	arbiter  *Arbiter
	hub      *Hub
	store    *SnapshotStore
	logger   zerolog.Logger
}

func NewCoordinator(registry *Registry, arbiter *Arbiter, hub *Hub, store *SnapshotStore, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		registry: registry,
		arbiter:  arbiter,
		hub:      hub,
		store:    store,
		logger:   logger.With().Str("component", "coordinator").Logger(),
	}
}

// HandleJoin puts p in the document's room, delivers the current working
// content to p alone and, if the lock is held, tells p who holds it.
func (c *Coordinator) HandleJoin(ctx context.Context, p Peer, docID string) {
	if docID == "" {
		return
	}
	c.hub.Join(docID, p)
	c.logger.Debug().Str("conn", p.ID()).Str("doc", docID).Msg("joined document")

	//content and lock state are one atomic observation. An edit relayed
	//between the room join above and that observation is also folded into
	//init; the protocol does not order init against relays.
	content, holder, err := c.registry.JoinAndLoad(ctx, docID, p.ID())
	if err != nil {
		c.logger.Error().Err(err).Str("doc", docID).Msg("failed to hydrate document")
		c.unicast(p, EventError, ErrorPayload{Message: "failed to load document"})
		return
	}
	c.unicast(p, EventInit, InitPayload{DocID: docID, Content: content})

	if holder != "" {
		c.unicast(p, EventLockTaken, LockTakenPayload{DocID: docID, By: holder})
	}
}

// HandleEdit relays an edit from the lock holder to the other room members
// and overwrites the working copy with the sender-supplied full content. The
// server is a relay, not an editor: the operation is never interpreted.
// Edits from anyone but the holder are dropped without a trace.
func (c *Coordinator) HandleEdit(ctx context.Context, p Peer, payload EditPayload) {
	if payload.DocID == "" {
		return
	}
	if !c.arbiter.ApplyEdit(payload.DocID, p.ID(), payload.FullContent) {
		return
	}
	getMetrics().editsRelayed.Inc()
	c.broadcast(payload.DocID, p.ID(), EventEdit, EditNotice{
		DocID:     payload.DocID,
		Operation: payload.Operation,
	})
}

// HandleRequestLock attempts lock acquisition. On success the requester gets
// lock_granted and everyone else in the room gets lock_taken. On failure
// nothing happens; the loser simply never hears back.
func (c *Coordinator) HandleRequestLock(ctx context.Context, p Peer, docID string) {
	if docID == "" {
		return
	}
	if !c.arbiter.Request(docID, p.ID()) {
		return
	}
	c.logger.Debug().Str("conn", p.ID()).Str("doc", docID).Msg("lock granted")
	c.unicast(p, EventLockGranted, LockGrantedPayload{DocID: docID})
	c.broadcast(docID, p.ID(), EventLockTaken, LockTakenPayload{DocID: docID, By: p.ID()})
}

// HandleReleaseLock releases the lock if p holds it, persists the supplied
// final content and notifies the whole room. A release that did not take
// effect persists and notifies nothing.
func (c *Coordinator) HandleReleaseLock(ctx context.Context, p Peer, payload ReleaseLockPayload) {
	final, released := c.arbiter.Release(payload.DocID, p.ID(), payload.FullContent)
	if !released {
		return
	}
	c.logger.Debug().Str("conn", p.ID()).Str("doc", payload.DocID).Msg("lock released")
	c.persist(ctx, p, payload.DocID, final)
	c.broadcast(payload.DocID, "", EventLockReleased, LockReleasedPayload{DocID: payload.DocID})
}

// HandleDisconnect is the implicit release path: for every document p holds
// the lock on, the captured working copy is persisted and the lock freed,
// then p leaves all its rooms and the releases are announced.
func (c *Coordinator) HandleDisconnect(ctx context.Context, p Peer) {
	var releasedDocs []string
	for _, docID := range c.arbiter.HeldBy(p.ID()) {
		content, released := c.arbiter.ForceRelease(docID, p.ID())
		if !released {
			continue
		}
		c.logger.Info().Str("conn", p.ID()).Str("doc", docID).Msg("lock force-released on disconnect")
		c.persist(ctx, p, docID, content)
		releasedDocs = append(releasedDocs, docID)
	}

	for _, docID := range c.hub.LeaveAll(p.ID()) {
		c.registry.Leave(docID, p.ID())
	}

	for _, docID := range releasedDocs {
		c.broadcast(docID, "", EventLockReleased, LockReleasedPayload{DocID: docID})
	}
}

// persist appends content as a new snapshot. Failures are logged and
// reported to the connection whose action triggered the save; there is no
// retry queue.
func (c *Coordinator) persist(ctx context.Context, p Peer, docID string, content json.RawMessage) {
	if _, err := c.store.Append(ctx, docID, content); err != nil {
		c.logger.Error().Err(err).Str("doc", docID).Msg("snapshot append failed")
		c.unicast(p, EventSaveFailed, SaveFailedPayload{DocID: docID, Reason: "snapshot write failed"})
	}
}

func (c *Coordinator) unicast(p Peer, event string, payload interface{}) {
	msg, err := marshalEvent(event, payload)
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("failed to marshal event")
		return
	}
	p.Send(msg)
}

func (c *Coordinator) broadcast(docID, exclude, event string, payload interface{}) {
	msg, err := marshalEvent(event, payload)
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("failed to marshal event")
		return
	}
	c.hub.Broadcast(docID, msg, exclude)
}
