// Package diag defines the diagnostic model shared by the build, link,
// symbol and policy phases.
//
// # Purpose
//
// Recoverable problems never abort a run: an unrepresentable declaration is
// skipped, an ignore entry that names nothing is flagged, a conflicting ODR
// definition is kept under a new id. Each of these is recorded as a
// Diagnostic and surfaced once the phase completes. Fatal problems
// (malformed dumps, dangling references on read) are plain Go errors and do
// not go through this package.
//
// # Data model
//
//   - Severity – Info, Warning, Error.
//   - Code – numeric identifier grouped by phase (BLD, LNK, SYM, DIF, POL, OBS).
//   - Location – header position or, when the frontend has none, the entity key.
//   - Notes – optional secondary locations.
//
// # Emitting
//
// Producers write through a Reporter. BagReporter stores into a Bag, which
// supports limits, merging, sorting and deduplication. Parallel workers
// each own a Bag and the driver merges them in input order.
package diag
