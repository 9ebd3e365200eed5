package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aretw0/warden/internal/logging"
	"github.com/aretw0/warden/internal/store"
	"github.com/aretw0/warden/pkg/domain"
	"github.com/aretw0/warden/pkg/ports"
)

// Task is the user-supplied unit of work. It is invoked exactly once per
// spawned process image, with the worker's own handle as argument. A task
// that wants no further respawn must call MarkFinished; a task that returns
// without it will be respawned by the supervisor.
type Task func(*Worker)

// InterruptHandler runs inside the child process when it receives a
// graceful-termination signal, before the process exits.
type InterruptHandler func(*Worker, os.Signal)

// killConfirm bounds how long Kill waits for the process to actually die
// before declaring the termination primitive itself broken.
const killConfirm = 2 * time.Second

// Worker represents one supervised unit of repeated work: a fixed pool
// slot, a task, and the persisted record that carries its completion flag
// and result across process restarts.
//
// Identity is process-identity-as-state: the creator's PID is captured at
// construction and every parent/child context check compares the current
// PID against it at call time. A cloned handle therefore answers the
// question correctly on its own, with no cached boolean to go stale.
type Worker struct {
	slot          int
	task          Task
	onInterrupted InterruptHandler
	parentPID     int
	prefix        string
	storeCfg      store.Config
	spawnArgs     []string
	logger        *slog.Logger

	// Parent-side view of the current child process.
	cmd       *exec.Cmd
	childPID  int
	payload   any
	startTime time.Time
	done      chan struct{}

	storeMu sync.Mutex
	store   ports.StateStore
}

// Option configures a Worker.
type Option func(*Worker)

// WithInterruptHandler sets the child-side graceful-termination handler.
func WithInterruptHandler(h InterruptHandler) Option {
	return func(w *Worker) {
		w.onInterrupted = h
	}
}

// WithStoreConfig sets the persistence backend configuration. It should be
// normalized before workers are built, so that children inherit identical
// settings.
func WithStoreConfig(cfg store.Config) Option {
	return func(w *Worker) {
		w.storeCfg = cfg
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithSpawnArgs overrides the CLI args passed to the child executable.
// Defaults to the parent's own os.Args[1:], so that the child re-enters the
// same code path that built the supervisor.
func WithSpawnArgs(args []string) Option {
	return func(w *Worker) {
		w.spawnArgs = args
	}
}

// New creates a Worker bound to a pool slot. The caller's PID is captured
// as the owning parent identity.
func New(slot int, task Task, opts ...Option) *Worker {
	pid := os.Getpid()
	w := &Worker{
		slot:      slot,
		task:      task,
		parentPID: pid,
		prefix:    domain.RecordPrefix(pid, slot),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Clone creates an independent Worker for a new slot from this one used as
// a template. Configuration (task, handlers, store config, logger) is
// shared; all per-instance runtime state is reset, including the cached
// store handle, so the clone gets its own persisted record under its own
// prefix.
func (w *Worker) Clone(slot int) *Worker {
	return &Worker{
		slot:          slot,
		task:          w.task,
		onInterrupted: w.onInterrupted,
		parentPID:     w.parentPID,
		prefix:        domain.RecordPrefix(w.parentPID, slot),
		storeCfg:      w.storeCfg,
		spawnArgs:     w.spawnArgs,
		logger:        w.logger,
	}
}

// inChild reports whether the calling context is a spawned child image.
// Computed fresh on every call, never cached.
func (w *Worker) inChild() bool {
	return os.Getpid() != w.parentPID
}

// openStore lazily opens the persistence backend for this worker's prefix.
func (w *Worker) openStore(ctx context.Context) (ports.StateStore, error) {
	w.storeMu.Lock()
	defer w.storeMu.Unlock()
	if w.store != nil {
		return w.store, nil
	}
	s, err := store.Open(ctx, w.storeCfg, w.prefix, w.logger)
	if err != nil {
		return nil, err
	}
	w.store = s
	return s, nil
}

// Run spawns a new child process for this worker.
//
// It fails with domain.ErrChildContext when called from a child image and
// with domain.ErrStillAlive when the previous child has not exited; both
// are programming errors, surfaced immediately and never retried. Before
// spawning it reloads the persisted record, so a respawn observes whatever
// the previous incarnation committed. Run never blocks on the child.
func (w *Worker) Run(ctx context.Context, payload any) error {
	if w.inChild() {
		return fmt.Errorf("worker %d: %w", w.slot, domain.ErrChildContext)
	}
	if w.IsAlive() {
		return fmt.Errorf("worker %d: %w", w.slot, domain.ErrStillAlive)
	}

	s, err := w.openStore(ctx)
	if err != nil {
		return err
	}
	if err := s.Reload(ctx); err != nil {
		return fmt.Errorf("worker %d: %w", w.slot, err)
	}

	cmd, err := w.spawn(payload)
	if err != nil {
		return fmt.Errorf("worker %d: %w", w.slot, err)
	}

	w.cmd = cmd
	w.childPID = cmd.Process.Pid
	w.payload = payload
	w.startTime = time.Now()

	done := make(chan struct{})
	w.done = done
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	w.logger.Debug("worker spawned", "slot", w.slot, "pid", w.childPID)
	return nil
}

// IsAlive is the parent's non-blocking liveness probe for the current
// child. Called from a child image it always reports true, since a process
// cannot observe its own death; only ever invoke it from the parent.
func (w *Worker) IsAlive() bool {
	if w.inChild() {
		return true
	}
	if w.cmd == nil {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// awaitExit waits up to d for the current child to be reaped.
func (w *Worker) awaitExit(d time.Duration) bool {
	if w.cmd == nil {
		return true
	}
	select {
	case <-w.done:
		return true
	case <-time.After(d):
		return false
	}
}

// IsTaskFinished reports whether the task has signaled completion. On the
// parent side it reloads first, because the child commits the flag
// asynchronously relative to the supervisor's poll cadence.
func (w *Worker) IsTaskFinished(ctx context.Context) (bool, error) {
	s, err := w.openStore(ctx)
	if err != nil {
		return false, err
	}
	if !w.inChild() {
		if err := s.Reload(ctx); err != nil {
			return false, err
		}
	}
	finished, _ := s.Get(domain.FieldFinished, false).(bool)
	return finished, nil
}

// MarkFinished signals that this worker's slot must not be respawned once
// the current process exits. It is only meaningful from inside the task
// closure, i.e. the child context; the parent gets domain.ErrParentContext.
func (w *Worker) MarkFinished(ctx context.Context) error {
	if !w.inChild() {
		return fmt.Errorf("worker %d: %w", w.slot, domain.ErrParentContext)
	}
	s, err := w.openStore(ctx)
	if err != nil {
		return err
	}
	s.Set(domain.FieldFinished, true)
	return s.Commit(ctx)
}

// SaveResult persists an arbitrary structured value for this slot. Tasks
// use it to accumulate state across respawns, since every spawned image
// starts fresh and must rehydrate from the store.
func (w *Worker) SaveResult(ctx context.Context, value any) error {
	s, err := w.openStore(ctx)
	if err != nil {
		return err
	}
	s.Set(domain.FieldResult, value)
	return s.Commit(ctx)
}

// SavedResult returns the last persisted result, or nil if none was ever
// saved. The parent side reloads first. Use domain.DecodeResult to restore
// typed values.
func (w *Worker) SavedResult(ctx context.Context) (any, error) {
	s, err := w.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if !w.inChild() {
		if err := s.Reload(ctx); err != nil {
			return nil, err
		}
	}
	return s.Get(domain.FieldResult, nil), nil
}

// Interrupt asks the current child to wind down gracefully. A dead or
// never-started child is not an error.
func (w *Worker) Interrupt() error {
	if !w.IsAlive() {
		return nil
	}
	if err := w.cmd.Process.Signal(syscall.SIGTERM); err != nil && w.IsAlive() {
		return fmt.Errorf("worker %d: failed to interrupt pid %d: %w", w.slot, w.childPID, err)
	}
	return nil
}

// Kill terminates the current child unconditionally. If the kill primitive
// itself fails with the process still alive, nothing above this point can
// safely continue, so it panics.
func (w *Worker) Kill() {
	if !w.IsAlive() {
		return
	}
	err := w.cmd.Process.Kill()
	if !w.awaitExit(killConfirm) {
		panic(fmt.Sprintf("warden: SIGKILL did not terminate pid %d (err=%v)", w.childPID, err))
	}
}

// Terminate runs the two-phase escalation against the current child:
// graceful interrupt, wait up to grace, then force-kill.
func (w *Worker) Terminate(ctx context.Context, grace time.Duration) error {
	if !w.IsAlive() {
		return nil
	}
	if err := w.Interrupt(); err != nil {
		return err
	}
	if w.awaitExit(grace) {
		return nil
	}
	w.logger.Warn("worker ignored interrupt, force-killing", "slot", w.slot, "pid", w.childPID)
	w.Kill()
	return nil
}

// RunTask invokes the task closure exactly once with this worker as
// argument. Child images call it via the supervisor's dispatch; the task's
// return does not imply completion, only MarkFinished does.
func (w *Worker) RunTask() {
	w.task(w)
}

// ListenInterrupts installs the child-side signal handler: on a
// graceful-termination signal the interrupt handler (if any) runs, then
// the process exits.
func (w *Worker) ListenInterrupts() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-ch
		if w.onInterrupted != nil {
			w.onInterrupted(w, sig)
		}
		os.Exit(0)
	}()
}

// Close destroys the worker's persisted record. Only the original owning
// process may do so: a child image, or any other process that merely shares
// the in-memory handle, leaves the shared record untouched.
func (w *Worker) Close(ctx context.Context) error {
	if os.Getpid() != w.parentPID {
		return nil
	}
	s, err := w.openStore(ctx)
	if err != nil {
		return err
	}
	return s.Destroy(ctx)
}

// Slot returns the worker's fixed pool slot.
func (w *Worker) Slot() int { return w.slot }

// ChildPID returns the PID of the most recently spawned child, zero before
// the first spawn. In a child image it is zero as well: the child's view
// never includes its own handle's process.
func (w *Worker) ChildPID() int { return w.childPID }

// StartTime returns the wall-clock time of the last spawn.
func (w *Worker) StartTime() time.Time { return w.startTime }

// Payload returns the most recent launch parameters.
func (w *Worker) Payload() any { return w.payload }

// Prefix returns the persisted-record key prefix for this worker.
func (w *Worker) Prefix() string { return w.prefix }
