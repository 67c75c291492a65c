package docroom

import (
	"context"
	"sync"

	"gocloud.dev/docstore"
)

// InMemoryCollection doubles as the snapshot collection in tests, mirroring
// what a docstore driver would persist.
type InMemoryCollection struct {
	m        sync.Mutex
	storage  map[string]SnapshotDoc
	getCalls int
	failPut  error
}

func NewInMemoryCollection() *InMemoryCollection {
	return &InMemoryCollection{
		storage: map[string]SnapshotDoc{},
	}
}

func (m *InMemoryCollection) Put(ctx context.Context, doc docstore.Document) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.failPut != nil {
		return m.failPut
	}
	asDoc := doc.(*SnapshotDoc)
	m.storage[asDoc.ID] = *asDoc
	return nil
}

func (m *InMemoryCollection) Get(ctx context.Context, doc docstore.Document, fps ...docstore.FieldPath) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.getCalls++
	asDoc := doc.(*SnapshotDoc)
	stored, ok := m.storage[asDoc.ID]
	if !ok {
		return ErrSnapshotNotFound
	}
	asDoc.DocID = stored.DocID
	asDoc.Version = stored.Version
	asDoc.Content = stored.Content
	asDoc.SavedAt = stored.SavedAt
	asDoc.DocstoreRevision = stored.DocstoreRevision
	return nil
}

// Latest returns the latest-pointer row for docID.
func (m *InMemoryCollection) Latest(docID string) (SnapshotDoc, bool) {
	m.m.Lock()
	defer m.m.Unlock()
	doc, ok := m.storage[docID]
	return doc, ok
}

// Rows returns how many rows are stored, history and latest pointers alike.
func (m *InMemoryCollection) Rows() int {
	m.m.Lock()
	defer m.m.Unlock()
	return len(m.storage)
}

// GetCalls returns how many times Get was invoked.
func (m *InMemoryCollection) GetCalls() int {
	m.m.Lock()
	defer m.m.Unlock()
	return m.getCalls
}

// FailPuts makes every following Put return err.
func (m *InMemoryCollection) FailPuts(err error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.failPut = err
}
