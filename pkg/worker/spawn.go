package worker

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/aretw0/warden/internal/store"
)

// Environment variables tagging a spawned child process. Go cannot fork, so
// a "fork" is a re-exec of the parent's own executable: the child enters
// main() again and Supervisor.Run recognizes these variables before doing
// anything else. They are the Child half of the spawn's tagged dispatch;
// the Parent half is the *exec.Cmd returned to the caller.
const (
	EnvSlot      = "WARDEN_WORKER_SLOT"
	EnvParentPID = "WARDEN_WORKER_PARENT_PID"
	EnvPrefix    = "WARDEN_WORKER_PREFIX"
	EnvPayload   = "WARDEN_WORKER_PAYLOAD"
)

// spawn launches the worker's child process. The child runs the same
// executable with the same CLI args (unless overridden), distinguished
// purely through its environment.
func (w *Worker) spawn(payload any) (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve own executable: %w", err)
	}

	args := w.spawnArgs
	if args == nil {
		args = os.Args[1:]
	}

	storeEnv, err := w.storeCfg.Encode()
	if err != nil {
		return nil, err
	}

	env := append(os.Environ(),
		EnvSlot+"="+strconv.Itoa(w.slot),
		EnvParentPID+"="+strconv.Itoa(w.parentPID),
		EnvPrefix+"="+w.prefix,
		store.EnvConfig+"="+storeEnv,
	)
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		env = append(env, EnvPayload+"="+string(data))
	}

	cmd := exec.Command(exe, args...)
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to spawn worker process: %w", err)
	}
	return cmd, nil
}

// InChildProcess reports whether the current process image is a spawned
// worker child. Hosts that need to short-circuit their own startup (before
// building a supervisor) can consult it directly.
func InChildProcess() bool {
	return os.Getenv(EnvSlot) != ""
}

// FromEnv reconstructs a Worker handle inside a spawned child image,
// binding the task and interrupt handler the host configured. The second
// return is false when the current process is not a worker child.
//
// The handle's parent PID comes from the environment, never from the
// current process, so identity checks (parent vs child context) keep
// working in the fresh image.
func FromEnv(task Task, onInterrupted InterruptHandler) (*Worker, bool, error) {
	slotStr := os.Getenv(EnvSlot)
	if slotStr == "" {
		return nil, false, nil
	}

	slot, err := strconv.Atoi(slotStr)
	if err != nil {
		return nil, false, fmt.Errorf("malformed %s: %w", EnvSlot, err)
	}
	parentPID, err := strconv.Atoi(os.Getenv(EnvParentPID))
	if err != nil {
		return nil, false, fmt.Errorf("malformed %s: %w", EnvParentPID, err)
	}

	cfg, err := store.DecodeConfig(os.Getenv(store.EnvConfig))
	if err != nil {
		return nil, false, err
	}

	var payload any
	if raw := os.Getenv(EnvPayload); raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, false, fmt.Errorf("malformed %s: %w", EnvPayload, err)
		}
	}

	w := New(slot, task, WithInterruptHandler(onInterrupted), WithStoreConfig(cfg))
	w.parentPID = parentPID
	w.prefix = os.Getenv(EnvPrefix)
	w.payload = payload
	return w, true, nil
}
