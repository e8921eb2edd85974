// Package checks holds the out-of-band diagnostics for the reconciliation
// engine. The trigger handlers are not transactional across documents, so a
// partial failure can strand a slot without its attendance pair or vice
// versa; these scans make that drift visible. They are read-only; repair is
// a separate, explicitly invoked migration.
package checks

import (
	"context"
	"sort"

	"rinkserver/collections"
	"rinkserver/storage"
)

// Report is the result of a slot/attendance scan for one organization.
type Report struct {
	UnpairedEntries UnpairedEntries `json:"unpairedEntries"`
	DateMismatches  []DateMismatch  `json:"dateMismatches"`
}

// UnpairedEntries lists document ids missing their counterpart.
type UnpairedEntries struct {
	// Slots with no attendance document of the same id.
	Slots []string `json:"slots"`
	// Attendance documents with no slot of the same id.
	Attendances []string `json:"attendances"`
}

// DateMismatch is a slot/attendance pair whose date fields disagree.
type DateMismatch struct {
	ID             string `json:"id"`
	SlotDate       string `json:"slotDate"`
	AttendanceDate string `json:"attendanceDate"`
}

// Clean reports whether the scan found nothing to flag.
func (r *Report) Clean() bool {
	return len(r.UnpairedEntries.Slots) == 0 &&
		len(r.UnpairedEntries.Attendances) == 0 &&
		len(r.DateMismatches) == 0
}

// FindSlotAttendanceMismatches scans every slot and attendance document of
// org and reports unpaired documents and date disagreements. Idempotent and
// read-only.
func FindSlotAttendanceMismatches(ctx context.Context, db storage.Store, org string) (*Report, error) {
	slots, err := db.GetAll(ctx, collections.SlotsCollection(org))
	if err != nil {
		return nil, err
	}
	attendances, err := db.GetAll(ctx, collections.AttendanceCollection(org))
	if err != nil {
		return nil, err
	}

	report := &Report{
		UnpairedEntries: UnpairedEntries{Slots: []string{}, Attendances: []string{}},
		DateMismatches:  []DateMismatch{},
	}
	for id, slot := range slots {
		attendance, ok := attendances[id]
		if !ok {
			report.UnpairedEntries.Slots = append(report.UnpairedEntries.Slots, id)
			continue
		}
		slotDate := collections.Str(slot, collections.DateField)
		attendanceDate := collections.Str(attendance, collections.DateField)
		if slotDate != attendanceDate {
			report.DateMismatches = append(report.DateMismatches, DateMismatch{
				ID:             id,
				SlotDate:       slotDate,
				AttendanceDate: attendanceDate,
			})
		}
	}
	for id := range attendances {
		if _, ok := slots[id]; !ok {
			report.UnpairedEntries.Attendances = append(report.UnpairedEntries.Attendances, id)
		}
	}

	sort.Strings(report.UnpairedEntries.Slots)
	sort.Strings(report.UnpairedEntries.Attendances)
	sort.Slice(report.DateMismatches, func(i, j int) bool {
		return report.DateMismatches[i].ID < report.DateMismatches[j].ID
	})
	return report, nil
}
