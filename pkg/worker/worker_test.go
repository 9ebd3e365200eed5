package worker_test

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/aretw0/warden/internal/store"
	"github.com/aretw0/warden/pkg/domain"
	"github.com/aretw0/warden/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain doubles as the worker-child entry point: spawning re-execs this
// test binary, and children are intercepted here before any test runs.
func TestMain(m *testing.M) {
	if worker.InChildProcess() {
		runWorkerChild()
		return
	}
	os.Exit(m.Run())
}

// runWorkerChild mirrors the supervisor's child dispatch. The behavior is
// selected through the payload, so each test controls its child without a
// separate fixture binary.
func runWorkerChild() {
	w, ok, err := worker.FromEnv(testTask, nil)
	if err != nil || !ok {
		os.Exit(1)
	}
	w.ListenInterrupts()
	w.RunTask()
	os.Exit(0)
}

func testTask(w *worker.Worker) {
	ctx := context.Background()
	payload, _ := w.Payload().(map[string]any)
	mode, _ := payload["mode"].(string)

	switch mode {
	case "finish":
		_ = w.SaveResult(ctx, map[string]any{"slot": w.Slot()})
		_ = w.MarkFinished(ctx)

	case "count":
		raw, _ := w.SavedResult(ctx)
		record, _ := raw.(map[string]any)
		count, _ := record["count"].(float64)
		count++
		_ = w.SaveResult(ctx, map[string]any{"count": count})
		if target, _ := payload["target"].(float64); count >= target {
			_ = w.MarkFinished(ctx)
		}

	case "sleep":
		time.Sleep(time.Minute)

	case "stubborn":
		// Outlive the graceful phase: swallow SIGTERM and keep going.
		signal.Ignore(syscall.SIGTERM)
		time.Sleep(time.Minute)

	default:
		// Exit without marking finished.
	}
}

func fileConfig(t *testing.T) store.Config {
	t.Helper()
	return store.Config{Backend: store.BackendFile, Dir: t.TempDir()}
}

// awaitDead polls the parent-side liveness probe until the child exits.
func awaitDead(t *testing.T, w *worker.Worker) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if !w.IsAlive() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("worker %d still alive past deadline", w.Slot())
}

func TestWorker_RunFinishAndCollect(t *testing.T) {
	ctx := context.Background()
	w := worker.New(0, testTask, worker.WithStoreConfig(fileConfig(t)))

	require.NoError(t, w.Run(ctx, map[string]any{"mode": "finish"}))
	assert.NotZero(t, w.ChildPID())
	assert.False(t, w.StartTime().IsZero())

	awaitDead(t, w)

	finished, err := w.IsTaskFinished(ctx)
	require.NoError(t, err)
	assert.True(t, finished)

	raw, err := w.SavedResult(ctx)
	require.NoError(t, err)

	var res struct {
		Slot int `json:"slot"`
	}
	require.NoError(t, domain.DecodeResult(raw, &res))
	assert.Equal(t, 0, res.Slot)

	require.NoError(t, w.Close(ctx))
}

func TestWorker_RunWhileAliveFails(t *testing.T) {
	ctx := context.Background()
	w := worker.New(1, testTask, worker.WithStoreConfig(fileConfig(t)))

	require.NoError(t, w.Run(ctx, map[string]any{"mode": "sleep"}))
	defer func() { _ = w.Terminate(ctx, time.Second) }()

	err := w.Run(ctx, map[string]any{"mode": "sleep"})
	assert.ErrorIs(t, err, domain.ErrStillAlive)
}

func TestWorker_RespawnRehydratesState(t *testing.T) {
	ctx := context.Background()
	w := worker.New(2, testTask, worker.WithStoreConfig(fileConfig(t)))
	payload := map[string]any{"mode": "count", "target": float64(2)}

	// First spawn increments to 1 and exits unfinished.
	require.NoError(t, w.Run(ctx, payload))
	awaitDead(t, w)

	finished, err := w.IsTaskFinished(ctx)
	require.NoError(t, err)
	assert.False(t, finished)

	// The respawn must observe count=1 and finish at 2.
	require.NoError(t, w.Run(ctx, payload))
	awaitDead(t, w)

	finished, err = w.IsTaskFinished(ctx)
	require.NoError(t, err)
	assert.True(t, finished)

	raw, err := w.SavedResult(ctx)
	require.NoError(t, err)
	var res struct {
		Count int `json:"count"`
	}
	require.NoError(t, domain.DecodeResult(raw, &res))
	assert.Equal(t, 2, res.Count)
}

func TestWorker_TerminateGraceful(t *testing.T) {
	ctx := context.Background()
	w := worker.New(3, testTask, worker.WithStoreConfig(fileConfig(t)))

	require.NoError(t, w.Run(ctx, map[string]any{"mode": "sleep"}))

	start := time.Now()
	require.NoError(t, w.Terminate(ctx, 5*time.Second))
	assert.False(t, w.IsAlive())
	// The sleeper honors SIGTERM, so this must not have waited for a kill.
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestWorker_TerminateEscalatesToKill(t *testing.T) {
	ctx := context.Background()
	w := worker.New(4, testTask, worker.WithStoreConfig(fileConfig(t)))

	require.NoError(t, w.Run(ctx, map[string]any{"mode": "stubborn"}))
	// Give the child a moment to install its SIGTERM ignore.
	time.Sleep(300 * time.Millisecond)

	require.NoError(t, w.Terminate(ctx, 500*time.Millisecond))
	assert.False(t, w.IsAlive())
}

func TestWorker_ChildContextGuards(t *testing.T) {
	// Fake a child image: parent PID from the environment differs from the
	// current process.
	cfg := store.Config{Backend: store.BackendMemory}
	raw, err := cfg.Encode()
	require.NoError(t, err)

	t.Setenv(worker.EnvSlot, "5")
	t.Setenv(worker.EnvParentPID, strconv.Itoa(os.Getpid()+1))
	t.Setenv(worker.EnvPrefix, "warden:test:5")
	t.Setenv(store.EnvConfig, raw)

	w, ok, err := worker.FromEnv(testTask, nil)
	require.NoError(t, err)
	require.True(t, ok)

	ctx := context.Background()

	// A child context may never re-spawn itself.
	assert.ErrorIs(t, w.Run(ctx, nil), domain.ErrChildContext)

	// A child cannot observe its own death.
	assert.True(t, w.IsAlive())

	// Child-only writes work here.
	require.NoError(t, w.SaveResult(ctx, map[string]any{"ok": true}))
	require.NoError(t, w.MarkFinished(ctx))

	finished, err := w.IsTaskFinished(ctx)
	require.NoError(t, err)
	assert.True(t, finished)

	// A non-owner must never destroy shared persisted state.
	require.NoError(t, w.Close(ctx))
	finished, err = w.IsTaskFinished(ctx)
	require.NoError(t, err)
	assert.True(t, finished)
}

func TestWorker_MarkFinishedFromParentFails(t *testing.T) {
	w := worker.New(6, testTask, worker.WithStoreConfig(store.Config{Backend: store.BackendMemory}))
	assert.ErrorIs(t, w.MarkFinished(context.Background()), domain.ErrParentContext)
}

func TestWorker_CloneResetsRuntimeState(t *testing.T) {
	ctx := context.Background()
	w := worker.New(7, testTask, worker.WithStoreConfig(fileConfig(t)))

	require.NoError(t, w.Run(ctx, map[string]any{"mode": "finish"}))
	awaitDead(t, w)

	clone := w.Clone(8)

	assert.Equal(t, 8, clone.Slot())
	assert.Zero(t, clone.ChildPID())
	assert.True(t, clone.StartTime().IsZero())
	assert.Nil(t, clone.Payload())
	assert.False(t, clone.IsAlive())
	assert.NotEqual(t, w.Prefix(), clone.Prefix())

	// The template's persisted record must not leak into the clone.
	finished, err := clone.IsTaskFinished(ctx)
	require.NoError(t, err)
	assert.False(t, finished)
}

func TestWorker_CloneRecordsAreIndependent(t *testing.T) {
	ctx := context.Background()
	cfg := fileConfig(t)
	template := worker.New(10, testTask, worker.WithStoreConfig(cfg))

	first := template.Clone(11)
	second := template.Clone(12)

	require.NoError(t, first.Run(ctx, map[string]any{"mode": "finish"}))
	awaitDead(t, first)

	finished, err := first.IsTaskFinished(ctx)
	require.NoError(t, err)
	assert.True(t, finished)

	finished, err = second.IsTaskFinished(ctx)
	require.NoError(t, err)
	assert.False(t, finished)
}
