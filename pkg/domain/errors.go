package domain

import "errors"

// ErrAlreadyLaunched is returned when Run is called on a supervisor that is
// already supervising a pool.
var ErrAlreadyLaunched = errors.New("supervisor already launched")

// ErrNoTask is returned when Run is called without a task configured.
var ErrNoTask = errors.New("no task configured")

// ErrStillAlive is returned when a worker is re-run while its previous child
// process has not exited yet.
var ErrStillAlive = errors.New("worker process still alive")

// ErrChildContext is returned when a parent-only operation (such as Run) is
// invoked from inside a spawned child's execution context.
var ErrChildContext = errors.New("operation not allowed from child context")

// ErrParentContext is returned when a child-only operation (such as
// MarkFinished) is invoked from the parent's execution context.
var ErrParentContext = errors.New("operation not allowed from parent context")
