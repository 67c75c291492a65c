package docroom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gocloud.dev/docstore"
	"gocloud.dev/gcerrors"
	"golang.org/x/exp/rand"
)

// EmptyContent is the defined representation of a document nobody has saved
// yet. Cold document ids resolve to it instead of an error.
var EmptyContent = json.RawMessage(`{"ops":[]}`)

// ErrSnapshotNotFound is returned by Collection implementations that do not
// speak gcerrors when a document id has no snapshot.
var ErrSnapshotNotFound = errors.New("snapshot not found")

//go:generate mockgen -source=snapshot.go -destination=mock_collection_test.go -package=docroom

// Collection is the slice of gocloud docstore the store needs. Snapshots are
// never deleted, so Get and Put suffice.
type Collection interface {
	Get(ctx context.Context, doc docstore.Document, fps ...docstore.FieldPath) error
	Put(ctx context.Context, doc docstore.Document) error
}

// Marker records a document's last-modified time in the metadata
// collaborator. Optional.
type Marker interface {
	Touch(ctx context.Context, docID string, at time.Time) error
}

// SnapshotStore persists full-content snapshots of documents. Every Append
// creates a new history row; nothing is ever overwritten except the
// latest-pointer row read back by LoadLatest.
type SnapshotStore struct {
	collection Collection
	marker     Marker
	logger     zerolog.Logger
}

func NewSnapshotStore(collection Collection, marker Marker, logger zerolog.Logger) *SnapshotStore {
	return &SnapshotStore{
		collection: collection,
		marker:     marker,
		logger:     logger.With().Str("component", "snapshots").Logger(),
	}
}

// LoadLatest returns the most recently appended content for docID, or
// EmptyContent when none exists. Absence is not an error.
func (s *SnapshotStore) LoadLatest(ctx context.Context, docID string) (json.RawMessage, error) {
	doc := SnapshotDoc{ID: docID}
	err := s.collection.Get(ctx, &doc)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound || errors.Is(err, ErrSnapshotNotFound) {
			return EmptyContent, nil
		}
		return nil, fmt.Errorf("load latest snapshot for %q: %w", docID, err)
	}
	if doc.Content == "" {
		return EmptyContent, nil
	}
	return json.RawMessage(doc.Content), nil
}

// Append writes a new timestamped snapshot for docID and moves the latest
// pointer to it. Returns the unique version label of the new row.
func (s *SnapshotStore) Append(ctx context.Context, docID string, content json.RawMessage) (string, error) {
	if len(content) == 0 {
		content = EmptyContent
	}
	now := time.Now().UTC()
	version := fmt.Sprintf("save_%d_%d", now.UnixNano(), nonZeroRandom())

	history := SnapshotDoc{
		ID:      docID + "/" + version,
		DocID:   docID,
		Version: version,
		Content: string(content),
		SavedAt: now,
	}
	if err := s.collection.Put(ctx, &history); err != nil {
		getSnapshotSaves().WithLabelValues("error").Inc()
		return "", fmt.Errorf("append snapshot for %q: %w", docID, err)
	}

	latest := SnapshotDoc{
		ID:      docID,
		DocID:   docID,
		Version: version,
		Content: string(content),
		SavedAt: now,
	}
	if err := s.collection.Put(ctx, &latest); err != nil {
		getSnapshotSaves().WithLabelValues("error").Inc()
		return "", fmt.Errorf("update latest snapshot for %q: %w", docID, err)
	}

	if s.marker != nil {
		//the marker is best effort, the snapshot itself is already durable
		if err := s.marker.Touch(ctx, docID, now); err != nil {
			s.logger.Warn().Err(err).Str("doc", docID).Msg("failed to update last-modified marker")
		}
	}

	getSnapshotSaves().WithLabelValues("ok").Inc()
	s.logger.Debug().Str("doc", docID).Str("version", version).Msg("snapshot appended")
	return version, nil
}

func nonZeroRandom() uint64 {
	for {
		r := rand.Uint64()
		if r != 0 {
			return r
		}
	}
}
