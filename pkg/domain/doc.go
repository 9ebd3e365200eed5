/*
Package domain contains the core domain models for the warden supervisor.

It defines the error taxonomy shared by workers and supervisors, the
well-known fields of a worker's persisted record, and the key-prefix scheme
that ties a record to its owning process and slot. This package is kept pure
and free of external dependencies like I/O or persistence, following
Hexagonal Architecture principles.

# Key Entities

  - Record fields: FieldFinished and FieldResult, the only keys the
    supervisor ever interprets in a worker's persisted record.
  - RecordPrefix: derives the per-slot persistence key from the owning
    process identity.
  - Errors: usage errors (ErrAlreadyLaunched, ErrStillAlive, ...) that are
    fatal to the caller and never retried.
*/
package domain
