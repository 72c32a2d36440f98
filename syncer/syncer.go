// Package syncer publishes exported snapshots to external systems.
//
// Syncers run after the snapshot has been written to its sink. They are
// best-effort: the exporter retries and logs failures, but a failed sync never
// rolls back the local snapshot.
package syncer

import (
	"context"
	"errors"
	"fmt"
)

// Target describes a snapshot that was just written.
type Target struct {
	// RootHash is the root of the exported snapshot.
	RootHash string
	// Name is the blob name inside the sink.
	Name string
	// Path is the file path when the sink lives on the local disk.
	Path string
}

// Syncer publishes a written snapshot.
type Syncer interface {
	Name() string
	Sync(ctx context.Context, t Target) error
}

// Multi runs several syncers in order and joins their errors.
type Multi []Syncer

// Name implements Syncer.
func (m Multi) Name() string { return "multi" }

// Sync runs every syncer even if an earlier one failed.
func (m Multi) Sync(ctx context.Context, t Target) error {
	var errs []error
	for _, s := range m {
		if err := s.Sync(ctx, t); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
