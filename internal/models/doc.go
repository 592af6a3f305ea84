// Package models defines domain entities for the pressline migration ledger.
//
// The package contains two categories of persisted state:
//
// 1. Run tracking:
//   - [MigrationJob] : one batch or single-post invocation
//   - [MigrationJobItem] : one source URL's attempt within a job
//   - [ImageAsset] : one binary asset transferred for an item
//
// 2. Cross-run evidence:
//   - [PostMap] : durable source-URL to destination-ID mapping for link rewriting
//   - [InternalLink] : extracted same-origin links, read later for export
//
// All rows carry a uuid primary key and a per-table sequence for stable
// insertion ordering. The ledger package owns every read and write.
package models
