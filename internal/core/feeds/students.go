package feeds

import "github.com/JonMunkholm/fleetsync/internal/core"

func init() {
	registerStudents()
	registerStudentsCompact()
	registerStudentsPadampur()
}

// studentColumns is the column order of every conveyance fee sheet:
// serial number, student name, class, village, monthly fee.
func studentColumns() []core.ColumnSpec {
	return []core.ColumnSpec{
		column(1, core.FieldName, core.ColumnName),
		column(2, core.FieldClass, core.ColumnClassCode),
		text(3, core.FieldVillage),
		column(4, core.FieldMonthlyFee, core.ColumnMoney),
	}
}

// One worksheet per bus. Row 0 is the title, row 2 the column header.
func registerStudents() {
	core.Register(core.FeedDefinition{
		Info: core.FeedInfo{
			Key:         "students",
			Group:       GroupFees,
			Label:       "Students",
			Description: "Conveyance fee sheet, one worksheet per bus",
		},
		Layout: core.Layout{
			Kind:         core.KindStudent,
			HeaderOffset: 3,
			Columns:      studentColumns(),
			ScopeField:   core.FieldBusID,
		},
	})
}

// Some buses keep their fee sheet without the title row.
func registerStudentsCompact() {
	core.Register(core.FeedDefinition{
		Info: core.FeedInfo{
			Key:         "students-compact",
			Group:       GroupFees,
			Label:       "Students (no title row)",
			Description: "Fee sheet whose data starts right below the header",
		},
		Layout: core.Layout{
			Kind:         core.KindStudent,
			HeaderOffset: 2,
			Columns:      studentColumns(),
			ScopeField:   core.FieldBusID,
		},
	})
}

func registerStudentsPadampur() {
	core.Register(core.FeedDefinition{
		Info: core.FeedInfo{
			Key:         "students-padampur",
			Group:       GroupFees,
			Label:       "Students (Padampur route)",
			Description: "Fee sheet of the Padampur route, lower default fee",
		},
		Layout: core.Layout{
			Kind:         core.KindStudent,
			HeaderOffset: 3,
			Columns:      studentColumns(),
			Defaults:     core.Fields{core.FieldVillage: "Padampur"},
			FeeFallback:  1000,
			ScopeField:   core.FieldBusID,
		},
	})
}
