package domain

import (
	"context"
	"time"
)

// Outcome describes what happened to a patch handed to the engine.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeIgnored   Outcome = "ignored"   // target no longer exists or nothing to change
	OutcomeDuplicate Outcome = "duplicate" // patch id already applied
	OutcomeBuffered  Outcome = "buffered"  // waiting for its parent
	OutcomeDropped   Outcome = "dropped"   // orphan after its retry pass
	OutcomeAbandoned Outcome = "abandoned" // state was replaced mid-flight
)

// PatchEvent is emitted to lifecycle hooks for every patch outcome.
type PatchEvent struct {
	Timestamp time.Time `json:"timestamp"`
	MapID     string    `json:"map_id,omitempty"`
	Patch     Patch     `json:"patch"`
	Outcome   Outcome   `json:"outcome"`
	Local     bool      `json:"local"`
	Err       error     `json:"-"`
}

// LifecycleHooks defines callbacks for engine observability.
// Hooks run synchronously on the engine's execution context and may call back
// into the engine.
type LifecycleHooks struct {
	OnPatchApplied  func(context.Context, *PatchEvent)
	OnPatchDropped  func(context.Context, *PatchEvent)
	OnPatchBuffered func(context.Context, *PatchEvent)
}
