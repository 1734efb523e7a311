package snapshot

import (
	"context"
	"log/slog"

	"github.com/speedwagon-io/opcsnapshot/internal/lib/logger/sl"
	"github.com/speedwagon-io/opcsnapshot/internal/model"
)

type RecordStats struct {
	Stored   int
	Rejected int
	Failed   int
}

// RecordAll persists every reading with a good status. Readings with a bad
// or uncertain status are logged and dropped. A failed insert is logged and
// the remaining readings are still recorded.
func RecordAll(ctx context.Context, log *slog.Logger, rec Recorder, readings []model.Reading) RecordStats {
	var stats RecordStats

	for _, r := range readings {
		if !r.Status.IsGood() {
			stats.Rejected++
			log.Warn("reading not good, skipping",
				slog.String("node_id", r.NodeID),
				slog.String("display_name", r.DisplayName),
				slog.String("quality", r.Quality()),
			)
			continue
		}

		id, err := rec.Record(ctx, r)
		if err != nil {
			stats.Failed++
			log.Error("failed to record reading",
				slog.String("node_id", r.NodeID),
				slog.String("display_name", r.DisplayName),
				sl.Err(err),
			)
			continue
		}

		stats.Stored++
		log.Debug("reading recorded",
			slog.Int64("id", id),
			slog.String("node_id", r.NodeID),
			slog.String("value", r.Value.String()),
			slog.String("data_type", r.Value.TypeName()),
		)
	}

	return stats
}
