package commands

import (
	"encoding/json"
	"time"

	"concord/contexts/community-governance/assembly-engine/ports"
)

func newGovernanceEnvelope(
	eventID string,
	eventType string,
	assemblyID string,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	// Lifecycle events are partitioned by assembly for stable ordering on
	// assembly-scoped consumers.
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    "assembly-engine",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "assembly_id",
		PartitionKey:     assemblyID,
		Data:             payload,
	}, nil
}
