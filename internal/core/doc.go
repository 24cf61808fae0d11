// Package core provides the business logic for meter reading ingestion.
//
// This package is the heart of the importer, containing all domain logic
// independent of any UI or transport layer. It can be used by web handlers,
// CLI tools, or tests without modification.
//
// # Pipeline
//
// An ingest moves through five stages:
//
//  1. Tabular reading: [ReadRows] or the streaming [RowReader] turn a
//     delimited source into [RawRow] values (BOM skipped, UTF-8 enforced).
//  2. Row mapping: a caller-supplied [RowMapper] turns each row into a
//     [MappedCandidate]. Vendor formats live in the mappers subpackage.
//  3. Sequential processing: [Process] walks the candidates in chronological
//     order, differencing cumulative sources and classifying every row as
//     accepted, dropped with a warning, or fatal for the whole batch.
//  4. Batch validation: [ValidateReadings] applies the meter's [ConditionSet].
//  5. Bulk commit: [Committer] writes the accepted readings in bounded
//     batches inside one transaction, together with the new [MeterState].
//
// [Service.Ingest] runs the whole sequence for one meter.
//
// # Meter State
//
// The only state carried between uploads is the meter's last reading and its
// time bounds. An end timestamp equal to [EpochSentinel] means the meter has
// never stored a reading, so the first row of a cumulative or end-only
// source is consumed as the baseline instead of being stored.
//
// # Error Handling
//
// Errors are [*Error] values with a [Kind]; use errors.Is against
// [ErrConfig], [ErrRead], [ErrFatalBatch], [ErrValidation] or [ErrCommit].
// Row-level problems never surface as errors: they are collected in the
// outcome's diagnostics. [MapError] turns any error into a coded
// [UserMessage] for display:
//
//   - CFG001-CFG099: Parameter and condition set errors
//   - READ001-READ099: Source decoding and mapping errors
//   - BATCH001-BATCH099: Whole-batch rejections
//   - VAL001-VAL099: Condition set violations
//   - DB001-DB099: Database and commit errors
//   - ING001-ING099: Ingest scheduling errors
package core
