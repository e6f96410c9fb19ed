package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/arbor/pkg/domain"
)

// LoggingHooks writes one record per hooked patch outcome: applied at debug,
// buffered at info and dropped at warn.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	record := func(ctx context.Context, e *domain.PatchEvent) {
		level := slog.LevelDebug
		switch e.Outcome {
		case domain.OutcomeBuffered:
			level = slog.LevelInfo
		case domain.OutcomeDropped:
			level = slog.LevelWarn
		}
		attrs := []any{
			"map_id", e.MapID,
			"patch_id", e.Patch.ID,
			"type", e.Patch.Type,
			"outcome", e.Outcome,
			"local", e.Local,
		}
		if e.Patch.NodeID != "" {
			attrs = append(attrs, "node_id", e.Patch.NodeID)
		}
		if e.Err != nil {
			attrs = append(attrs, "err", e.Err)
		}
		logger.Log(ctx, level, "patch", attrs...)
	}
	return domain.LifecycleHooks{
		OnPatchApplied:  record,
		OnPatchDropped:  record,
		OnPatchBuffered: record,
	}
}

// ChainHooks runs every set of hooks in order.
func ChainHooks(all ...domain.LifecycleHooks) domain.LifecycleHooks {
	pick := func(get func(domain.LifecycleHooks) func(context.Context, *domain.PatchEvent)) func(context.Context, *domain.PatchEvent) {
		var fns []func(context.Context, *domain.PatchEvent)
		for _, h := range all {
			if fn := get(h); fn != nil {
				fns = append(fns, fn)
			}
		}
		if len(fns) == 0 {
			return nil
		}
		return func(ctx context.Context, e *domain.PatchEvent) {
			for _, fn := range fns {
				fn(ctx, e)
			}
		}
	}
	return domain.LifecycleHooks{
		OnPatchApplied:  pick(func(h domain.LifecycleHooks) func(context.Context, *domain.PatchEvent) { return h.OnPatchApplied }),
		OnPatchDropped:  pick(func(h domain.LifecycleHooks) func(context.Context, *domain.PatchEvent) { return h.OnPatchDropped }),
		OnPatchBuffered: pick(func(h domain.LifecycleHooks) func(context.Context, *domain.PatchEvent) { return h.OnPatchBuffered }),
	}
}
