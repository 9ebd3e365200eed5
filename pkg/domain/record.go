package domain

import "fmt"

// Well-known fields of a worker's persisted record. The record itself is an
// opaque JSON document; the supervisor only ever interprets these two keys.
const (
	// FieldFinished carries the completion flag. Once true, the worker's
	// slot is retired instead of respawned when its process exits.
	FieldFinished = "finished"

	// FieldResult carries the task's saved result value.
	FieldResult = "result"
)

// RecordPrefix derives the persisted-state key prefix for a worker slot.
// The prefix is unique per owning process so that two pools started from
// different parent processes never share records.
func RecordPrefix(parentPID, slot int) string {
	return fmt.Sprintf("warden:%d:%d", parentPID, slot)
}
