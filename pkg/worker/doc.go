/*
Package worker implements the supervised unit of the warden pool: one fixed
slot, one user task, one persisted record, and at most one live child
process at a time.

A Worker's only channels back to the supervisor are its child's exit status
and the external persisted record — never shared memory. Completion is
signaled purely through the record (MarkFinished), not through exit codes.

Since Go cannot fork, spawning re-execs the parent's own executable and
tags the child through environment variables; FromEnv rebuilds the handle
inside the child image. Parent/child context is decided by comparing the
current PID against the creator PID captured at construction, computed
fresh at every call site.
*/
package worker
