package snapshot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/speedwagon-io/opcsnapshot/internal/model"
)

// ReadAll reads the current value of every point in a single request and
// pairs the results with the points by position.
func ReadAll(ctx context.Context, log *slog.Logger, sess Session, points []model.DataPoint) ([]model.Reading, error) {
	if len(points) == 0 {
		log.Info("no candidates to read")
		return nil, nil
	}

	ids := make([]string, 0, len(points))
	for _, p := range points {
		ids = append(ids, p.NodeID)
	}

	results, err := sess.Read(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to read %d nodes: %w", len(ids), err)
	}

	n := len(points)
	if len(results) < n {
		log.Warn("server returned fewer results than requested",
			slog.Int("requested", len(points)),
			slog.Int("returned", len(results)),
		)
		n = len(results)
	}

	readings := make([]model.Reading, 0, n)
	for i := 0; i < n; i++ {
		readings = append(readings, model.NewReading(points[i], results[i]))
	}

	return readings, nil
}
