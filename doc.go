/*
Package warden is a process-based worker-pool supervisor: a parent process
spawns N independent child processes, runs a user task once per spawn
inside each, persists per-slot results so state survives process restarts,
and respawns any worker that exits before marking itself finished.

There is no shared-memory runtime. Workers talk back to the supervisor only
through process exit and an external persisted record (Redis when
reachable, atomic JSON files otherwise); a task that wants to loop simply
returns without calling MarkFinished and gets respawned with its previous
saved state available.

# Lifecycle

The supervisor polls the pool on a fixed interval. Each sweep, in slot
order: a live worker past its time limit gets the two-phase escalation
(graceful interrupt, grace period, force-kill); a dead unfinished worker is
respawned with its last payload; a dead finished worker is retired. The run
ends when every slot is retired or a stop is requested via ForceStop or a
termination signal, and returns each slot's last saved result.

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/warden"
		"github.com/aretw0/warden/pkg/worker"
	)

	func main() {
		sup := warden.New(
			warden.WithWorkers(4),
			warden.WithTask(func(w *worker.Worker) {
				ctx := context.Background()
				// ... do one unit of work, then:
				_ = w.SaveResult(ctx, map[string]any{"done": true})
				_ = w.MarkFinished(ctx)
			}),
		)

		// Run re-executes this binary for each worker; in those child
		// processes Run dispatches straight to the task and exits.
		results, err := sup.Run(context.Background())
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(results)
	}
*/
package warden
