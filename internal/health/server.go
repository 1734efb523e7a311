package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/speedwagon-io/opcsnapshot/internal/lib/logger/sl"
	"github.com/speedwagon-io/opcsnapshot/internal/snapshot"
)

const checkTimeout = 5 * time.Second

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

var severity = map[Status]int{
	StatusHealthy:   0,
	StatusDegraded:  1,
	StatusUnhealthy: 2,
}

func worst(a, b Status) Status {
	if severity[b] > severity[a] {
		return b
	}
	return a
}

// Check is the result of one checker.
type Check struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Report is the body of /health: the run's stage plus every check.
type Report struct {
	RunID     string    `json:"run_id"`
	Stage     string    `json:"stage"`
	Status    Status    `json:"status"`
	Checks    []Check   `json:"checks"`
	CheckedAt time.Time `json:"checked_at"`
}

type Checker interface {
	Check(ctx context.Context) Check
}

// Server exposes the progress of a single snapshot run over HTTP.
type Server struct {
	log     *slog.Logger
	address string
	runID   string
	stage   func() snapshot.Stage
	server  *http.Server

	mu       sync.RWMutex
	checkers []Checker
}

func NewServer(log *slog.Logger, address, runID string, stage func() snapshot.Stage) *Server {
	return &Server{
		log:     log,
		address: address,
		runID:   runID,
		stage:   stage,
	}
}

func (s *Server) AddChecker(c Checker) {
	s.mu.Lock()
	s.checkers = append(s.checkers, c)
	s.mu.Unlock()
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	return r
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}

	s.server = &http.Server{
		Handler:      s.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.log.Info("starting health server", slog.String("address", ln.Addr().String()))

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("health server error", sl.Err(err))
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) report(ctx context.Context) Report {
	stage := s.stage()

	rep := Report{
		RunID:     s.runID,
		Stage:     stage.String(),
		Status:    StatusHealthy,
		CheckedAt: time.Now().UTC(),
	}
	if stage == snapshot.StageFailed {
		rep.Status = StatusUnhealthy
	}

	s.mu.RLock()
	checkers := append([]Checker(nil), s.checkers...)
	s.mu.RUnlock()

	for _, c := range checkers {
		check := c.Check(ctx)
		rep.Checks = append(rep.Checks, check)
		rep.Status = worst(rep.Status, check.Status)
	}

	return rep
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	rep := s.report(ctx)

	code := http.StatusOK
	if rep.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		s.log.Error("failed to encode health report", sl.Err(err))
	}
}

// handleReady answers 200 once the session is open, until the run fails.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	stage := s.stage()

	code := http.StatusServiceUnavailable
	if ready(stage) {
		code = http.StatusOK
	}

	w.WriteHeader(code)
	w.Write([]byte(stage.String()))
}

func ready(stage snapshot.Stage) bool {
	return stage >= snapshot.StageSessionOpen && stage != snapshot.StageFailed
}

// StoreChecker reports on the store opened by the run. A store that is not
// open yet, or holds no rows, is degraded rather than unhealthy.
type StoreChecker struct {
	ping  func(ctx context.Context) error
	count func(ctx context.Context) (int64, error)
}

func NewStoreChecker(ping func(ctx context.Context) error, count func(ctx context.Context) (int64, error)) *StoreChecker {
	return &StoreChecker{ping: ping, count: count}
}

func (c *StoreChecker) Check(ctx context.Context) Check {
	check := Check{Name: "store", Status: StatusHealthy}

	if err := c.ping(ctx); err != nil {
		check.Status = StatusUnhealthy
		if errors.Is(err, snapshot.ErrStoreNotOpen) {
			check.Status = StatusDegraded
		}
		check.Message = err.Error()
		return check
	}

	n, err := c.count(ctx)
	switch {
	case err != nil:
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	case n == 0:
		check.Status = StatusDegraded
		check.Message = "no rows recorded"
	default:
		check.Message = fmt.Sprintf("%d rows", n)
	}

	return check
}
