package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"fieldcrm/internal/model"
)

const walkListSheet = "Walk list"

var walkListHeaders = []string{"Seq", "Target", "Address", "Latitude", "Longitude", "Geocode", "Outcome", "Visited at", "Note"}

// WriteWalkList writes the route's stops as an .xlsx workbook to w.
func WriteWalkList(w io.Writer, rt model.Route) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", walkListSheet); err != nil {
		return fmt.Errorf("walk list: %w", err)
	}
	for i, h := range walkListHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(walkListSheet, cell, h); err != nil {
			return fmt.Errorf("walk list header: %w", err)
		}
	}
	for r, s := range rt.Stops {
		row := walkListRow(s)
		for c, v := range row {
			if v == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(walkListSheet, cell, v); err != nil {
				return fmt.Errorf("walk list row %d: %w", r+1, err)
			}
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(walkListHeaders), len(rt.Stops)+1)
	if err := f.AutoFilter(walkListSheet, "A1:"+last, []excelize.AutoFilterOptions{}); err != nil {
		return fmt.Errorf("walk list filter: %w", err)
	}
	_ = f.SetColWidth(walkListSheet, "B", "C", 36)
	_ = f.SetColWidth(walkListSheet, "I", "I", 48)
	_ = f.SetDocProps(&excelize.DocProperties{Title: rt.Name, Creator: "fieldcrm"})
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("walk list write: %w", err)
	}
	return nil
}

func walkListRow(s model.RouteStop) []any {
	row := make([]any, len(walkListHeaders))
	row[0] = s.Seq
	if t := s.Target; t != nil {
		row[1] = t.Name
		row[2] = t.AddressRaw
		if t.AddressNormalized != nil && *t.AddressNormalized != "" {
			row[2] = *t.AddressNormalized
		}
		if t.Latitude != nil && t.Longitude != nil {
			row[3], row[4] = *t.Latitude, *t.Longitude
		}
		row[5] = string(t.GeocodeStatus)
	}
	if s.Outcome != nil {
		row[6] = string(*s.Outcome)
	}
	if s.VisitedAt != nil {
		row[7] = s.VisitedAt.UTC().Format(time.RFC3339)
	}
	if s.Note != nil {
		row[8] = *s.Note
	}
	return row
}
