package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/speedwagon-io/opcsnapshot/internal/model"
)

// LogRecorder logs readings instead of storing them (for dry runs)
type LogRecorder struct {
	log *slog.Logger
	seq atomic.Int64
}

func NewLogRecorder(log *slog.Logger) *LogRecorder {
	return &LogRecorder{log: log}
}

func (r *LogRecorder) Record(ctx context.Context, reading model.Reading) (int64, error) {
	data, err := reading.ToJSON()
	if err != nil {
		return 0, fmt.Errorf("failed to marshal reading: %w", err)
	}

	id := r.seq.Add(1)

	r.log.Info("RECORD",
		slog.Int64("seq", id),
		slog.String("node_id", reading.NodeID),
		slog.String("display_name", reading.DisplayName),
		slog.String("data_type", reading.Value.TypeName()),
		slog.String("payload", string(data)),
	)

	return id, nil
}

// Recorded returns how many readings were logged.
func (r *LogRecorder) Recorded() int64 {
	return r.seq.Load()
}
