// Package integration contains the Synchronization bounded context.
// This context keeps an inventory source system and an accounting target
// system in step and records everything needed to reconcile the two.
//
// Key concepts:
//   - SyncRun: Integration log entry for one orchestrator execution of a sync type
//   - FailedRecord: Durable retry queue entry for a record the target did not accept
//   - Mapping: Stored equivalence between a source identifier and a target identifier
//   - PendingAdjustment: Stock change waiting for an operator to approve or reject it
//   - SourceClient / TargetClient: Ports to the two external systems of record
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
