// Package source provides record producers polled by the daemon.
package source

import (
	"context"

	"github.com/hupe1980/hashroot/codec"
)

// Source yields the records that arrived since the previous poll.
type Source interface {
	Name() string
	Poll(ctx context.Context) ([]codec.Record, error)
}
