// Package core provides the foundational domain types, interfaces and helpers
// used by agentrun. It defines the core abstractions for:
//
//   - Agents (pluggable units of work satisfying Execute(ctx, input))
//   - Agent specifications (identity, capabilities, configuration, activity)
//   - Execution results and statuses
//   - The typed event bus connecting scheduler, monitors and consumers
//   - The shared error taxonomy for validation, lookup and execution failures
//
// The package intentionally keeps implementation concerns (registries,
// scheduling, environments) out of scope, exposing small interfaces to enable
// custom backends and extensions.
package core
