package feeds

import "github.com/JonMunkholm/fleetsync/internal/core"

func init() {
	registerDrivers()
	registerVehicles()
}

// The vehicle details workbook lists at most 26 entries on rows 3 to 28.
const (
	fleetFirstRow = 3
	fleetLastRow  = 28
)

func registerDrivers() {
	core.Register(core.FeedDefinition{
		Info: core.FeedInfo{
			Key:         "drivers",
			Group:       GroupFleet,
			Label:       "Drivers",
			Description: "Vehicle details workbook, first sheet",
		},
		Layout: core.Layout{
			Kind:         core.KindDriver,
			HeaderOffset: fleetFirstRow,
			LastRow:      fleetLastRow,
			Columns: []core.ColumnSpec{
				column(1, core.FieldName, core.ColumnName),
				text(2, core.FieldLicenseNumber),
				column(3, core.FieldLicenseExpiry, core.ColumnDate),
				text(4, core.FieldPhone),
				text(5, core.FieldAddress),
			},
		},
	})
}

// Import drivers first: the driver column is resolved against drivers
// already in the store.
func registerVehicles() {
	core.Register(core.FeedDefinition{
		Info: core.FeedInfo{
			Key:         "vehicles",
			Group:       GroupFleet,
			Label:       "Vehicles",
			Sheet:       "Sheet2",
			Description: "Vehicle details workbook, bus list",
		},
		Layout: core.Layout{
			Kind:         core.KindVehicle,
			HeaderOffset: fleetFirstRow,
			LastRow:      fleetLastRow,
			Columns: []core.ColumnSpec{
				column(1, core.FieldRegistrationNumber, core.ColumnRegistration),
				column(2, core.FieldDriverName, core.ColumnName),
				text(3, core.FieldChassisNumber),
				column(4, core.FieldSeatingCapacity, core.ColumnInt),
				column(5, core.FieldPurchaseDate, core.ColumnDate),
				column(6, core.FieldFitnessExpiry, core.ColumnDate),
			},
		},
	})
}
