// Package core provides the reconciliation engine behind fleetsync imports.
//
// This package is the heart of the importer, containing all domain logic
// independent of any UI, spreadsheet library or record store transport. It can
// be used by web handlers, the CLI, or tests without modification.
//
// # Architecture
//
// A run flows through four stages:
//
//  1. Normalizer: raw spreadsheet cells are turned into canonical field values
//     ([NormalizeClassCode], [NormalizeDate], [NormalizeMoney], ...).
//  2. Identity matcher: each [SourceRecord] is looked up in a snapshot of the
//     record store by its identity key ([Matcher.FindMatch]).
//  3. Merge planner: the match decides between Create, Patch and Skip
//     ([Plan]). Patches only ever fill fields the store has not set.
//  4. Import driver: [Importer.Run] fetches the snapshot once, plans every
//     record and dispatches the plans to the [Store].
//
// # Feed Registry
//
// Sheet layouts are registered at init time using [Register]. Each
// [FeedDefinition] describes where the data sits in a workbook and how each
// column is normalized:
//
//	core.Register(FeedDefinition{
//	    Info: FeedInfo{Key: "drivers", Group: "Fleet", Label: "Drivers"},
//	    Layout: Layout{
//	        Kind:         KindDriver,
//	        HeaderOffset: 3,
//	        LastRow:      28,
//	        Columns: []ColumnSpec{
//	            {Index: 1, Field: FieldName, Type: ColumnName},
//	            {Index: 4, Field: FieldPhone, Type: ColumnText},
//	        },
//	    },
//	})
//
// # Error Handling
//
// Per-record failures never abort a run; they are collected in the [Report].
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - VAL001-VAL003: Validation errors (layouts, missing required fields)
//   - REL001: Relationship conflicts (driver already assigned)
//   - STORE001-STORE004: Record store errors (rejected, unreachable, timeout)
//   - FILE001-FILE005: Spreadsheet errors (size, format, missing sheet)
//   - RUN001-RUN003: Run errors (busy, cancelled, unknown feed)
package core
