package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/speedwagon-io/opcsnapshot/internal/config"
	"github.com/speedwagon-io/opcsnapshot/internal/lib/logger/sl"
)

type Stage int32

const (
	StageInitializing Stage = iota
	StageSessionOpen
	StageDiscovering
	StageReading
	StageRecording
	StageReporting
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageInitializing:
		return "initializing"
	case StageSessionOpen:
		return "session_open"
	case StageDiscovering:
		return "discovering"
	case StageReading:
		return "reading"
	case StageRecording:
		return "recording"
	case StageReporting:
		return "reporting"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return fmt.Sprintf("stage(%d)", int32(s))
	}
}

var ErrStoreNotOpen = errors.New("store is not open")

const closeTimeout = 5 * time.Second

type StoreOpener func(ctx context.Context, log *slog.Logger, cfg config.StoreConfig) (Store, error)

type Dialer func(ctx context.Context, log *slog.Logger, cfg config.OPCUAConfig) (Session, error)

type Summary struct {
	RunID      string `json:"run_id"`
	Candidates int    `json:"candidates"`
	Readings   int    `json:"readings"`
	Stored     int    `json:"stored"`
	Rejected   int    `json:"rejected"`
	Failed     int    `json:"failed"`
	Reported   int    `json:"reported"`
}

// Runner performs one snapshot: it initializes the store, opens a session,
// discovers and reads candidates, records the good readings and reports the
// newest rows.
type Runner struct {
	log       *slog.Logger
	cfg       *config.Config
	openStore StoreOpener
	dial      Dialer
	out       io.Writer
	recorder  Recorder
	runID     string

	stage atomic.Int32

	mu    sync.RWMutex
	store Store
}

func NewRunner(log *slog.Logger, cfg *config.Config, openStore StoreOpener, dial Dialer, out io.Writer) *Runner {
	runID := uuid.NewString()
	return &Runner{
		log:       log.With(slog.String("run_id", runID)),
		cfg:       cfg,
		openStore: openStore,
		dial:      dial,
		out:       out,
		runID:     runID,
	}
}

// WithRecorder makes the run record readings through rec instead of the store.
func (r *Runner) WithRecorder(rec Recorder) *Runner {
	r.recorder = rec
	return r
}

func (r *Runner) RunID() string {
	return r.runID
}

func (r *Runner) Stage() Stage {
	return Stage(r.stage.Load())
}

func (r *Runner) setStage(s Stage) {
	r.stage.Store(int32(s))
	r.log.Debug("stage changed", slog.String("stage", s.String()))
}

// Ping checks the store opened by the current run.
func (r *Runner) Ping(ctx context.Context) error {
	st := r.currentStore()
	if st == nil {
		return ErrStoreNotOpen
	}
	return st.Ping(ctx)
}

// Count returns the row count of the store opened by the current run.
func (r *Runner) Count(ctx context.Context) (int64, error) {
	st := r.currentStore()
	if st == nil {
		return 0, ErrStoreNotOpen
	}
	return st.Count(ctx)
}

func (r *Runner) currentStore() Store {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store
}

func (r *Runner) setStore(st Store) {
	r.mu.Lock()
	r.store = st
	r.mu.Unlock()
}

func (r *Runner) Run(ctx context.Context) (summary Summary, err error) {
	summary.RunID = r.runID
	log := r.log

	defer func() {
		if err != nil {
			log.Error("run failed", slog.String("stage", r.Stage().String()), sl.Err(err))
			r.setStage(StageFailed)
			return
		}
		r.setStage(StageDone)
		log.Info("run finished",
			slog.Int("candidates", summary.Candidates),
			slog.Int("readings", summary.Readings),
			slog.Int("stored", summary.Stored),
			slog.Int("rejected", summary.Rejected),
			slog.Int("failed", summary.Failed),
			slog.Int("reported", summary.Reported),
		)
	}()

	r.setStage(StageInitializing)
	st, err := r.openStore(ctx, log, r.cfg.Store)
	if err != nil {
		return summary, fmt.Errorf("failed to initialize store: %w", err)
	}
	r.setStore(st)
	defer func() {
		r.setStore(nil)
		if closeErr := st.Close(); closeErr != nil {
			log.Error("failed to close store", sl.Err(closeErr))
		}
	}()

	sess, err := r.dial(ctx, log, r.cfg.OPCUA)
	if err != nil {
		return summary, fmt.Errorf("failed to open session: %w", err)
	}
	r.setStage(StageSessionOpen)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if closeErr := sess.Close(closeCtx); closeErr != nil {
			log.Error("failed to close session", sl.Err(closeErr))
		}
	}()

	r.setStage(StageDiscovering)
	candidates, err := Discover(ctx, log, sess, r.cfg.Discovery)
	if err != nil {
		return summary, err
	}
	summary.Candidates = len(candidates)

	r.setStage(StageReading)
	readings, err := ReadAll(ctx, log, sess, candidates)
	if err != nil {
		return summary, err
	}
	summary.Readings = len(readings)

	r.setStage(StageRecording)
	var rec Recorder = st
	if r.recorder != nil {
		rec = r.recorder
	}
	stats := RecordAll(ctx, log, rec, readings)
	summary.Stored = stats.Stored
	summary.Rejected = stats.Rejected
	summary.Failed = stats.Failed

	r.setStage(StageReporting)
	reported, err := Report(ctx, r.out, st, r.cfg.Report.Limit)
	if err != nil {
		return summary, err
	}
	summary.Reported = reported

	return summary, nil
}
