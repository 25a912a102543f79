// Package assemblyengine implements the assembly governance core inside the
// community-governance context.
//
// The module owns the assembly lifecycle (schedule/start/close/cancel),
// ballots with coefficient-weighted unit votes, per-assembly voting
// delegations with lazy expiry, and quorum/tally computation whose results
// freeze at closure. Business rules live in application/domain layers;
// infrastructure stays behind ports and adapters, with outbox-backed event
// production relayed by workers.
package assemblyengine
