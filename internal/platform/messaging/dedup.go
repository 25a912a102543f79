package messaging

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"concord/contexts/community-governance/assembly-engine/ports"
)

// dedupTTL bounds how long a consumed event id blocks redelivery.
const dedupTTL = 24 * time.Hour

// alreadyConsumed reserves the event id before the handler runs so
// at-least-once delivery collapses to one handler invocation per event.
// A reservation conflict (same id, different payload) also keeps the
// suspect redelivery away from handlers.
func alreadyConsumed(
	ctx context.Context,
	dedup ports.EventDedupStore,
	topic string,
	event ports.EventEnvelope,
	logger *slog.Logger,
) bool {
	if dedup == nil || event.EventID == "" {
		return false
	}

	sum := sha256.Sum256(event.Data)
	seen, err := dedup.ReserveEvent(ctx, event.EventID, hex.EncodeToString(sum[:]), time.Now().UTC().Add(dedupTTL))
	if err != nil {
		if logger != nil {
			logger.Error("event reservation failed",
				"event", "consume_reserve_failed",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"topic", topic,
				"event_id", event.EventID,
				"error", err.Error(),
			)
		}
		return true
	}
	if seen && logger != nil {
		logger.Info("duplicate delivery skipped",
			"event", "consume_duplicate_skipped",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"topic", topic,
			"event_id", event.EventID,
		)
	}
	return seen
}
