package warden

import (
	"log/slog"
	"time"

	"github.com/aretw0/warden/internal/store"
	"github.com/aretw0/warden/pkg/observability"
	"github.com/aretw0/warden/pkg/worker"
)

// Defaults for the supervision policy.
const (
	DefaultWorkers      = 1
	DefaultPollInterval = 200 * time.Millisecond
	DefaultGracePeriod  = 5 * time.Second
)

// Option defines a functional option for configuring the Supervisor.
type Option func(*Supervisor)

// WithWorkers sets the pool size (slots 0..n-1).
func WithWorkers(n int) Option {
	return func(s *Supervisor) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithTask sets the user task every worker runs. Required.
func WithTask(task worker.Task) Option {
	return func(s *Supervisor) {
		s.task = task
	}
}

// WithInterruptHandler sets the child-side handler invoked on a graceful
// termination signal, before the child exits.
func WithInterruptHandler(h worker.InterruptHandler) Option {
	return func(s *Supervisor) {
		s.onInterrupted = h
	}
}

// WithTickHandler sets a callback invoked once per poll sweep, in the
// long-lived supervisor process only.
func WithTickHandler(h func(*Supervisor)) Option {
	return func(s *Supervisor) {
		s.onTick = h
	}
}

// WithPollInterval sets the sweep cadence.
func WithPollInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithGracePeriod sets how long a worker gets between the graceful
// interrupt and the force-kill.
func WithGracePeriod(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.gracePeriod = d
		}
	}
}

// WithTimeLimit sets a per-worker wall-clock budget. A worker alive past it
// is terminated with the two-phase escalation and, unless finished,
// respawned. Zero (the default) means unlimited.
func WithTimeLimit(d time.Duration) Option {
	return func(s *Supervisor) {
		s.timeLimit = d
	}
}

// WithPayload sets the launch parameters passed to every worker's first
// spawn. Respawns reuse each worker's own last payload.
func WithPayload(payload any) Option {
	return func(s *Supervisor) {
		s.payload = payload
	}
}

// WithStoreConfig sets the persistence backend configuration shared by all
// workers.
func WithStoreConfig(cfg store.Config) Option {
	return func(s *Supervisor) {
		s.storeCfg = cfg
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics attaches Prometheus collectors for respawns, escalations and
// sweeps.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Supervisor) {
		s.metrics = m
	}
}

// WithSpawnArgs overrides the CLI args used when re-execing worker
// children. Defaults to the supervisor's own os.Args[1:].
func WithSpawnArgs(args []string) Option {
	return func(s *Supervisor) {
		s.spawnArgs = args
	}
}
