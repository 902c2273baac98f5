// Package store defines the document-store contract the discovery and
// profile-sync layers are written against. The store owns per-document
// atomicity for merge-writes and set-union appends; nothing above it takes
// additional locks or attempts multi-document transactions.
package store

import (
	"context"
	"errors"

	"aidmap/internal/domain/entities"
)

// ErrNotFound is returned by point lookups for ids with no document.
var ErrNotFound = errors.New("record not found")

// ChangeFunc receives the new state of a subscribed document after every
// write. The record is a private copy; fn receives nil when the document is
// deleted.
type ChangeFunc func(record *entities.UserRecord)

// RecordStore is the user-record document store.
type RecordStore interface {
	// Get returns the record for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*entities.UserRecord, error)

	// GetByGeohashRange returns all records whose geohash falls
	// lexicographically within [start, end], ordered by geohash.
	GetByGeohashRange(ctx context.Context, start, end string) ([]*entities.UserRecord, error)

	// Merge applies a partial update to the record with upsert semantics:
	// the document is created if absent, unspecified fields are left
	// untouched, and UpdatedAt is bumped monotonically on every apply.
	Merge(ctx context.Context, id string, patch entities.RecordPatch) error

	// Delete removes the record. Deleting an absent record is not an error.
	Delete(ctx context.Context, id string) error

	// Subscribe registers fn to be called after every change to the given
	// document, including its deletion. The returned cancel func releases
	// the subscription and must be called on every exit path.
	Subscribe(ctx context.Context, id string, fn ChangeFunc) (func(), error)
}
