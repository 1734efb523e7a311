package snapshot

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"

	"github.com/speedwagon-io/opcsnapshot/internal/config"
	"github.com/speedwagon-io/opcsnapshot/internal/lib/logger/sl"
	"github.com/speedwagon-io/opcsnapshot/internal/model"
)

// Discover walks two levels below the root node and returns at most
// MaxCandidates variables, in browse order. Only the first MaxBranches
// children of the root and the first MaxLeaves children of each branch are
// looked at. Branches are browsed lazily, so browsing stops as soon as the
// candidate cap is reached.
func Discover(ctx context.Context, log *slog.Logger, sess Session, cfg config.DiscoveryConfig) ([]model.DataPoint, error) {
	branches, err := sess.Browse(ctx, cfg.RootNode)
	if err != nil {
		return nil, fmt.Errorf("failed to browse root %s: %w", cfg.RootNode, err)
	}

	log.Debug("root browsed",
		slog.String("root", cfg.RootNode),
		slog.Int("children", len(branches)),
	)

	leaves := children(ctx, log, sess, take(slices.Values(branches), cfg.MaxBranches), cfg.MaxLeaves)
	candidates := slices.Collect(take(filter(leaves, model.DataPoint.IsVariable), cfg.MaxCandidates))

	log.Info("discovery finished", slog.Int("candidates", len(candidates)))

	return candidates, nil
}

// children yields the first limit children of every branch. A branch that
// fails to browse is logged and skipped.
func children(ctx context.Context, log *slog.Logger, sess Session, branches iter.Seq[model.DataPoint], limit int) iter.Seq[model.DataPoint] {
	return func(yield func(model.DataPoint) bool) {
		for branch := range branches {
			points, err := sess.Browse(ctx, branch.NodeID)
			if err != nil {
				log.Warn("failed to browse branch, skipping",
					slog.String("branch", branch.DisplayName),
					slog.String("node_id", branch.NodeID),
					sl.Err(err),
				)
				continue
			}

			for point := range take(slices.Values(points), limit) {
				if !yield(point) {
					return
				}
			}
		}
	}
}

func take[T any](seq iter.Seq[T], n int) iter.Seq[T] {
	return func(yield func(T) bool) {
		if n <= 0 {
			return
		}
		i := 0
		for v := range seq {
			if !yield(v) {
				return
			}
			i++
			if i == n {
				return
			}
		}
	}
}

func filter[T any](seq iter.Seq[T], keep func(T) bool) iter.Seq[T] {
	return func(yield func(T) bool) {
		for v := range seq {
			if keep(v) && !yield(v) {
				return
			}
		}
	}
}
