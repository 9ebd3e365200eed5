/*
Package ports defines the driven ports (interfaces) for the warden
supervisor.

These interfaces decouple the core lifecycle logic from external
implementations, allowing workers to persist their state through various
backends without the supervisor knowing which one is in use.

# Key Interfaces

  - StateStore: per-worker buffered key-value persistence with transactional
    Commit, Reload for fresh process images, and Destroy for cleanup.
  - RunStateStoreContract: a reusable test suite every backend adapter must
    pass.
*/
package ports
