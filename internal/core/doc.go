// Package core provides the bulk ingestion pipeline for policy CSV uploads.
//
// The package holds all domain logic independent of the HTTP layer. It can
// be driven by web handlers, CLI tools, or tests against any [Store].
//
// # Pipeline
//
// One upload flows through these steps:
//
//  1. [RecordReader] streams the spooled file with BOM skipping and UTF-8
//     sanitization, yielding rows keyed by lower-cased header names.
//  2. [ChunkRows] partitions the whole stream into fixed-size chunks before
//     any work starts. A parse error aborts here with a [*StreamError].
//  3. [Dispatcher] runs one unit of work per chunk on a bounded worker pool.
//     Each unit holds one store [Session] for its whole run.
//  4. Inside a unit the five dimensions (agent, user, account, category,
//     carrier) are resolved in order: insert-if-absent, then read back ids.
//     Policies are then written with references attached.
//  5. [Aggregator] collects exactly one outcome per chunk, removes the
//     spooled artifact, and returns a [Result].
//
// Chunks are independent. A failed chunk never rolls back the others, so a
// partially failed upload leaves the successful chunks persisted.
//
// # Storage
//
// [PgStore] implements [Store] on a pgx pool. Dimensions use
// INSERT ... ON CONFLICT DO NOTHING so concurrent chunks never duplicate a
// natural key. Policies go through COPY, falling back to per-row inserts
// under savepoints so one bad row does not sink the rest of the batch.
//
// # Error Handling
//
// Chunk failures are [*ChunkError] values tagged with a stage (stream,
// dimension, fact, unit_start). Technical errors shown to users are mapped
// to codes with [MapError].
//
// # History
//
// With a [RunStore] configured, every call to [Service.Ingest] records an
// [IngestRun], including rejected and unparsable uploads.
//
// # Scheduled Messages
//
// [MessageScheduler] persists deferred messages and marks them sent when
// their time comes. Pending messages are re-armed on startup.
package core
