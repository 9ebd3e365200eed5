package ports

import "context"

// StateStore defines the interface for persisting a single worker's state
// across process restarts. Each store instance is bound to one key prefix
// (one worker slot); the record behind it is a small JSON document.
//
// Writes are buffered locally until Commit publishes them atomically. This
// matters for layered backends: a fallback store can batch the buffered
// writes into a single durable write. Single-writer backends may treat
// Commit as a cheap flush.
//
// Visibility contract: a record committed by one process must become
// visible to Reload+Get in any other process sharing the same prefix.
// Visibility is eventual; the supervisor tolerates up to one poll interval
// of staleness. A process image that did not itself perform the most recent
// Commit (a freshly spawned child, or the parent after a child committed)
// must Reload before reading, because its in-memory snapshot is stale.
type StateStore interface {
	// Set buffers a write. It becomes visible to other processes only
	// after Commit.
	Set(key string, value any)

	// Commit atomically publishes all buffered writes to the backing
	// medium.
	Commit(ctx context.Context) error

	// Get reads a key from the current snapshot (buffered writes
	// included), returning def when the key is absent.
	Get(key string, def any) any

	// Reload replaces the in-memory snapshot with the latest persisted
	// record. Unknown records load as empty, not as an error.
	Reload(ctx context.Context) error

	// Destroy irreversibly removes the persisted record.
	Destroy(ctx context.Context) error
}
