package snapshot

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/speedwagon-io/opcsnapshot/internal/model"
)

type LatestSource interface {
	Latest(ctx context.Context, limit int) ([]model.StoredRow, error)
}

// Report prints the newest limit rows, one per line, and returns how many
// were printed.
func Report(ctx context.Context, w io.Writer, src LatestSource, limit int) (int, error) {
	rows, err := src.Latest(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to query latest rows: %w", err)
	}

	if len(rows) == 0 {
		fmt.Fprintln(w, "no data")
		return 0, nil
	}

	for _, row := range rows {
		fmt.Fprintf(w, "%s: %s @ %s\n", row.DisplayName, row.Value, row.Timestamp.Format(time.DateTime))
	}

	return len(rows), nil
}
