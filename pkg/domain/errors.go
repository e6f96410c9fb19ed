package domain

import "errors"

// ErrStaleReference is returned when a local edit targets a node that no
// longer exists in the tree. The edit is dropped and must not be retried.
var ErrStaleReference = errors.New("stale reference")

// ErrOrphanPatch is reported when a NodeAdded patch still references an
// unknown parent after its retry pass. The patch is dropped.
var ErrOrphanPatch = errors.New("orphan patch")

// ErrInvalidTree is returned for malformed trees (cycles, duplicate ids, empty
// names). The previous graph is kept.
var ErrInvalidTree = errors.New("invalid tree")

// ErrChannel wraps transport-level failures of a sync channel.
var ErrChannel = errors.New("channel error")

// ErrEmptyLabel is returned when a label would become empty.
var ErrEmptyLabel = errors.New("empty label")

// ErrMapNotFound is returned when a map ID cannot be found in the store.
var ErrMapNotFound = errors.New("map not found")

// ErrUnknownPatch is returned for patches with an unrecognized type.
var ErrUnknownPatch = errors.New("unknown patch type")

// ErrInvalidPatch is returned for patches missing a field their type requires.
var ErrInvalidPatch = errors.New("invalid patch")
