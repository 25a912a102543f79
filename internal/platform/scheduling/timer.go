package scheduling

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Timer fires deferred close requests from in-process timers. Delivery is
// at-least-once within the process lifetime only; the due-time sweep worker
// covers restarts, and double firing is safe because the close transition is
// a check-and-set.
type Timer struct {
	mu     sync.Mutex
	fire   func(ctx context.Context, assemblyID string) error
	logger *slog.Logger
}

func NewTimer(logger *slog.Logger) *Timer {
	return &Timer{logger: logger}
}

// Bind sets the callback invoked when a timer fires. Wiring happens after
// construction because the assembly use case and the timer reference each
// other.
func (t *Timer) Bind(fire func(ctx context.Context, assemblyID string) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fire = fire
}

func (t *Timer) ScheduleClose(_ context.Context, assemblyID string, after time.Duration) error {
	if after < 0 {
		after = 0
	}
	time.AfterFunc(after, func() {
		t.mu.Lock()
		fire := t.fire
		t.mu.Unlock()
		if fire == nil {
			return
		}
		if err := fire(context.Background(), assemblyID); err != nil && t.logger != nil {
			t.logger.Error("deferred close timer failed",
				"event", "close_timer_fire_failed",
				"module", "internal/platform/scheduling",
				"layer", "platform",
				"assembly_id", assemblyID,
				"error", err.Error(),
			)
		}
	})
	return nil
}
