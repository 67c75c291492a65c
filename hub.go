package docroom

import (
	"sync"

	"github.com/rs/zerolog"
)

// Peer is a connected client as the engine sees it. Send must not block;
// implementations queue or drop.
type Peer interface {
	ID() string
	Send(msg []byte)
}

// Hub groups peers into named rooms, one room per document id, and delivers
// messages to room members. It never touches session state.
type Hub struct {
	m      sync.RWMutex
	rooms  map[string]map[string]Peer //docID -> connID -> peer
	byConn map[string]map[string]struct{}

	logger zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		rooms:  map[string]map[string]Peer{},
		byConn: map[string]map[string]struct{}{},
		logger: logger.With().Str("component", "hub").Logger(),
	}
}

// Join adds p to docID's room.
func (h *Hub) Join(docID string, p Peer) {
	h.m.Lock()
	defer h.m.Unlock()
	room, ok := h.rooms[docID]
	if !ok {
		room = map[string]Peer{}
		h.rooms[docID] = room
	}
	room[p.ID()] = p

	docs, ok := h.byConn[p.ID()]
	if !ok {
		docs = map[string]struct{}{}
		h.byConn[p.ID()] = docs
	}
	docs[docID] = struct{}{}
}

// Leave removes connID from docID's room.
func (h *Hub) Leave(docID, connID string) {
	h.m.Lock()
	defer h.m.Unlock()
	h.leaveLocked(docID, connID)
}

func (h *Hub) leaveLocked(docID, connID string) {
	if room, ok := h.rooms[docID]; ok {
		delete(room, connID)
		if len(room) == 0 {
			delete(h.rooms, docID)
		}
	}
	if docs, ok := h.byConn[connID]; ok {
		delete(docs, docID)
		if len(docs) == 0 {
			delete(h.byConn, connID)
		}
	}
}

// LeaveAll removes connID from every room it joined and returns the affected
// document ids.
func (h *Hub) LeaveAll(connID string) []string {
	h.m.Lock()
	defer h.m.Unlock()
	var docs []string
	for docID := range h.byConn[connID] {
		docs = append(docs, docID)
	}
	for _, docID := range docs {
		h.leaveLocked(docID, connID)
	}
	if len(docs) > 0 {
		h.logger.Debug().Str("conn", connID).Int("rooms", len(docs)).Msg("left all rooms")
	}
	return docs
}

// Broadcast delivers msg to every member of docID's room, skipping exclude
// when non-empty. Delivery is per-peer queued and never blocks the caller.
func (h *Hub) Broadcast(docID string, msg []byte, exclude string) {
	h.m.RLock()
	defer h.m.RUnlock()
	for connID, p := range h.rooms[docID] {
		if connID == exclude {
			continue
		}
		p.Send(msg)
	}
}

// Members returns the number of peers in docID's room.
func (h *Hub) Members(docID string) int {
	h.m.RLock()
	defer h.m.RUnlock()
	return len(h.rooms[docID])
}
