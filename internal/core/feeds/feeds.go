// Package feeds registers the built-in feed definitions with the core registry.
// Import this package to ensure all feeds are registered.
//
// Each file uses init() to register its feeds. Feeds for sheets that differ
// from the built-ins can be added at startup with LoadFile.
package feeds

import "github.com/JonMunkholm/fleetsync/internal/core"

// Groups shown on the dashboard.
const (
	GroupFees  = "Fees"
	GroupFleet = "Fleet"
)

func text(index int, field string) core.ColumnSpec {
	return core.ColumnSpec{Index: index, Field: field, Type: core.ColumnText}
}

func column(index int, field string, typ core.ColumnType) core.ColumnSpec {
	return core.ColumnSpec{Index: index, Field: field, Type: typ}
}
