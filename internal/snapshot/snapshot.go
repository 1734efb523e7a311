package snapshot

import (
	"context"

	"github.com/speedwagon-io/opcsnapshot/internal/model"
)

// Session is the part of a protocol session the run needs.
type Session interface {
	Browse(ctx context.Context, nodeID string) ([]model.DataPoint, error)
	Read(ctx context.Context, nodeIDs []string) ([]model.Result, error)
	Close(ctx context.Context) error
}

type Recorder interface {
	Record(ctx context.Context, r model.Reading) (int64, error)
}

type Store interface {
	Recorder
	Latest(ctx context.Context, limit int) ([]model.StoredRow, error)
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}
