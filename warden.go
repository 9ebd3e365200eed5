package warden

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aretw0/warden/internal/logging"
	"github.com/aretw0/warden/internal/store"
	"github.com/aretw0/warden/pkg/domain"
	"github.com/aretw0/warden/pkg/observability"
	"github.com/aretw0/warden/pkg/worker"
)

// exitWatch is how often the shutdown path re-probes workers while waiting
// out the grace period.
const exitWatch = 50 * time.Millisecond

// Supervisor owns a pool of workers, the shared task and interrupt-handler
// definitions, and the polling/respawn/shutdown policy. It is the
// long-lived original process; spawned children never get past the
// dispatch at the top of Run.
//
// A Supervisor is reusable across sequential runs but not reentrant:
// launching twice concurrently is a usage error.
type Supervisor struct {
	workers       int
	task          worker.Task
	onInterrupted worker.InterruptHandler
	onTick        func(*Supervisor)
	pollInterval  time.Duration
	gracePeriod   time.Duration
	timeLimit     time.Duration
	payload       any
	storeCfg      store.Config
	spawnArgs     []string
	logger        *slog.Logger
	metrics       *observability.Metrics

	launched atomic.Bool
	stopping atomic.Bool

	stopMu     sync.Mutex
	stopNotify chan struct{}

	poolMu sync.Mutex
	pool   []*worker.Worker
}

// New creates a Supervisor. A task is required before Run; everything else
// has defaults (1 worker, 200ms poll interval, 5s grace period, no time
// limit).
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		workers:      DefaultWorkers,
		pollInterval: DefaultPollInterval,
		gracePeriod:  DefaultGracePeriod,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run spawns the pool and supervises it until every worker has marked
// itself finished or a stop is requested. It returns the final persisted
// result of each slot, ordered by slot index (nil for slots that never
// saved one).
//
// When the current process is itself a spawned worker child, Run dispatches
// to the task instead: the task runs exactly once and the process exits.
// Only the original process ever reaches the polling loop.
func (s *Supervisor) Run(ctx context.Context) (map[int]any, error) {
	if s.task == nil {
		return nil, domain.ErrNoTask
	}

	if w, ok, err := worker.FromEnv(s.task, s.onInterrupted); err != nil {
		return nil, err
	} else if ok {
		s.runChild(w) // never returns
	}

	if !s.launched.CompareAndSwap(false, true) {
		return nil, domain.ErrAlreadyLaunched
	}
	defer s.launched.Store(false)
	defer s.stopping.Store(false)

	s.stopMu.Lock()
	s.stopping.Store(false)
	s.stopNotify = make(chan struct{})
	stopNotify := s.stopNotify
	s.stopMu.Unlock()

	finished := make(chan struct{})
	defer close(finished)
	go s.listenSignals(finished)

	cfg := s.storeCfg.Normalize()

	pool := make([]*worker.Worker, s.workers)
	for i := range pool {
		pool[i] = worker.New(i, s.task,
			worker.WithInterruptHandler(s.onInterrupted),
			worker.WithStoreConfig(cfg),
			worker.WithLogger(s.logger),
			worker.WithSpawnArgs(s.spawnArgs),
		)
	}
	s.setPool(pool)
	defer s.setPool(nil)

	for _, w := range pool {
		if err := w.Run(ctx, s.payload); err != nil {
			s.shutdownPool()
			return nil, err
		}
	}
	s.logger.Info("pool launched", "workers", s.workers)

	for {
		if s.stopping.Load() {
			s.shutdownPool()
			break
		}

		active := s.sweep(ctx, pool)
		s.metrics.RecordSweep(active)

		if active == 0 {
			break
		}
		if s.onTick != nil {
			s.onTick(s)
		}

		select {
		case <-stopNotify:
		case <-time.After(s.pollInterval):
		}
	}

	return s.collect(ctx, pool), nil
}

// sweep iterates the pool once, in slot order, and returns how many workers
// are still active this tick.
func (s *Supervisor) sweep(ctx context.Context, pool []*worker.Worker) int {
	active := 0
	for _, w := range pool {
		if w.IsAlive() {
			if s.timeLimit > 0 && time.Since(w.StartTime()) > s.timeLimit {
				// Blocks the whole loop for up to the grace period.
				// Time-limit violations are rare; pausing the sweep keeps
				// the escalation sequence trivial to reason about.
				s.logger.Warn("worker over time limit, escalating",
					"slot", w.Slot(), "pid", w.ChildPID(), "limit", s.timeLimit)
				s.metrics.RecordEscalation()
				if err := w.Terminate(ctx, s.gracePeriod); err != nil {
					s.logger.Error("escalation failed", "slot", w.Slot(), "err", err)
				}
			}
			active++
			continue
		}

		finished, err := w.IsTaskFinished(ctx)
		if err != nil {
			// Keep the slot tracked and retry next tick rather than
			// mistaking a store hiccup for completion.
			s.logger.Error("failed to read worker state", "slot", w.Slot(), "err", err)
			active++
			continue
		}
		if finished {
			continue // retired this tick
		}

		s.logger.Info("worker exited unfinished, respawning", "slot", w.Slot())
		s.metrics.RecordRespawn()
		if err := w.Run(ctx, w.Payload()); err != nil {
			s.logger.Error("respawn failed", "slot", w.Slot(), "err", err)
		}
		active++
	}
	return active
}

// shutdownPool runs the stop procedure: graceful interrupt to every tracked
// worker, one shared grace period, then force-kill of any survivor.
func (s *Supervisor) shutdownPool() {
	pool := s.Workers()
	for _, w := range pool {
		if err := w.Interrupt(); err != nil {
			s.logger.Error("failed to interrupt worker", "slot", w.Slot(), "err", err)
		}
	}

	deadline := time.Now().Add(s.gracePeriod)
	for time.Now().Before(deadline) {
		alive := false
		for _, w := range pool {
			if w.IsAlive() {
				alive = true
				break
			}
		}
		if !alive {
			return
		}
		time.Sleep(exitWatch)
	}

	for _, w := range pool {
		if w.IsAlive() {
			s.logger.Warn("worker survived grace period, force-killing",
				"slot", w.Slot(), "pid", w.ChildPID())
			w.Kill()
		}
	}
}

// collect snapshots each slot's persisted result and destroys the records.
func (s *Supervisor) collect(ctx context.Context, pool []*worker.Worker) map[int]any {
	results := make(map[int]any, len(pool))
	for _, w := range pool {
		value, err := w.SavedResult(ctx)
		if err != nil {
			s.logger.Error("failed to read worker result", "slot", w.Slot(), "err", err)
			value = nil
		}
		results[w.Slot()] = value

		if err := w.Close(ctx); err != nil {
			s.logger.Error("failed to destroy worker state", "slot", w.Slot(), "err", err)
		}
	}
	return results
}

// runChild is the child half of the spawn dispatch: signal handling, one
// task invocation, then the process terminates itself. Its exit code is
// meaningless; completion travels through the persisted record only.
func (s *Supervisor) runChild(w *worker.Worker) {
	w.ListenInterrupts()
	w.RunTask()
	os.Exit(0)
}

// listenSignals forwards termination-class signals into a stop request. The
// goroutine only flips the stop flag; the polling loop observes it at sweep
// boundaries and performs the actual shutdown.
func (s *Supervisor) listenSignals(finished <-chan struct{}) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(ch)

	select {
	case sig := <-ch:
		s.logger.Info("termination signal received, stopping pool", "signal", sig)
		s.ForceStop()
	case <-finished:
	}
}

// ForceStop requests a cooperative stop of the current run: workers receive
// the graceful interrupt, get one shared grace period, and are then
// force-killed. Idempotent; a second call while already stopping is a
// no-op, and a call without a run in flight does nothing.
func (s *Supervisor) ForceStop() {
	if !s.launched.Load() {
		return
	}
	if !s.stopping.CompareAndSwap(false, true) {
		return
	}

	s.stopMu.Lock()
	if s.stopNotify != nil {
		close(s.stopNotify)
	}
	s.stopMu.Unlock()
}

// Stopping reports whether a stop has been requested for the current run.
func (s *Supervisor) Stopping() bool {
	return s.stopping.Load()
}

// Workers returns a snapshot of the tracked pool, nil outside a run. Meant
// for tick handlers and tests; worker mutation stays with the supervisor.
func (s *Supervisor) Workers() []*worker.Worker {
	s.poolMu.Lock()
	defer s.poolMu.Unlock()
	out := make([]*worker.Worker, len(s.pool))
	copy(out, s.pool)
	return out
}

func (s *Supervisor) setPool(pool []*worker.Worker) {
	s.poolMu.Lock()
	s.pool = pool
	s.poolMu.Unlock()
}
