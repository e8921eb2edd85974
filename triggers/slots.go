package triggers

import (
	"context"

	log "rinkserver/cloudlog"
	"rinkserver/collections"
	"rinkserver/storage"
)

// SlotReconciler keeps the month-bucketed slot index and the paired
// attendance document in lockstep with slot writes. Each sub-step is an
// independent write, so a partial failure leaves drift the consistency
// checker can surface rather than a fatal condition.
type SlotReconciler struct {
	db storage.Store
}

// NewSlotReconciler creates a reconciler over db.
func NewSlotReconciler(db storage.Store) *SlotReconciler {
	return &SlotReconciler{db: db}
}

// Handle reacts to any write to a slot document.
func (r *SlotReconciler) Handle(ctx context.Context, change *DocumentChange) error {
	org := change.Params[paramOrg]
	slotID := change.Params[paramSlot]

	if change.Deleted() {
		return r.remove(ctx, org, slotID, change.Before)
	}

	date := collections.Str(change.After, collections.DateField)
	month, err := collections.MonthOf(date)
	if err != nil {
		// Nothing downstream can be derived from a slot without a valid
		// date; converging on the next well-formed write is all we can do.
		log.Printf("slot %s/%s has no usable date: %v", org, slotID, err)
		return nil
	}

	if change.Created() {
		if err := r.backfillID(ctx, org, slotID, change.After); err != nil {
			return err
		}
		if err := r.ensureAttendance(ctx, org, slotID, date); err != nil {
			return err
		}
	}

	return r.updateDayBucket(ctx, org, slotID, month, date, change)
}

// backfillID writes the store-generated document id onto the slot itself.
// No-op if the slot already carries it.
func (r *SlotReconciler) backfillID(ctx context.Context, org, slotID string, after storage.Doc) error {
	if collections.Str(after, collections.IDField) == slotID {
		return nil
	}
	return r.db.Merge(ctx, collections.SlotPath(org, slotID), storage.Doc{
		collections.IDField: slotID,
	})
}

// ensureAttendance creates the paired attendance document unless one already
// exists, which happens on redelivery and during data restores.
func (r *SlotReconciler) ensureAttendance(ctx context.Context, org, slotID, date string) error {
	path := collections.AttendancePath(org, slotID)
	_, exists, err := r.db.Get(ctx, path)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return r.db.Set(ctx, path, storage.Doc{
		collections.DateField:        date,
		collections.AttendancesField: storage.Doc{},
	})
}

// updateDayBucket upserts the slot into SlotsByDay[month][date] and cleans
// up the previous location if the slot moved to another day or month.
func (r *SlotReconciler) updateDayBucket(ctx context.Context, org, slotID, month, date string, change *DocumentChange) error {
	writes := storage.Doc{
		date: storage.Doc{slotID: bucketEntry(change.Before, change.After, slotID)},
	}

	beforeDate := collections.Str(change.Before, collections.DateField)
	if beforeDate != "" && beforeDate != date {
		oldMonth, err := collections.MonthOf(beforeDate)
		switch {
		case err != nil:
			log.Printf("slot %s/%s moved off a malformed date %q", org, slotID, beforeDate)
		case oldMonth == month:
			writes[beforeDate] = storage.Doc{slotID: storage.Tombstone}
		default:
			tombstone := storage.Doc{beforeDate: storage.Doc{slotID: storage.Tombstone}}
			if err := r.db.Merge(ctx, collections.SlotsByDayPath(org, oldMonth), tombstone); err != nil {
				return err
			}
		}
	}

	return r.db.Merge(ctx, collections.SlotsByDayPath(org, month), writes)
}

// remove tombstones the slot's bucket entry and deletes the paired
// attendance document.
func (r *SlotReconciler) remove(ctx context.Context, org, slotID string, before storage.Doc) error {
	date := collections.Str(before, collections.DateField)
	if month, err := collections.MonthOf(date); err != nil {
		log.Printf("deleted slot %s/%s had no usable date: %v", org, slotID, err)
	} else {
		tombstone := storage.Doc{date: storage.Doc{slotID: storage.Tombstone}}
		if err := r.db.Merge(ctx, collections.SlotsByDayPath(org, month), tombstone); err != nil {
			return err
		}
	}
	return r.db.Delete(ctx, collections.AttendancePath(org, slotID))
}

// bucketEntry builds the SlotsByDay payload for a slot. The bucket write is
// a merge, so every interval key present before the write gets an explicit
// tombstone; merging the old and new interval maps naively would leave
// deleted intervals behind.
func bucketEntry(before, after storage.Doc, slotID string) storage.Doc {
	entry := storage.Doc{}
	for key, value := range after {
		if key == collections.IntervalsField {
			continue
		}
		entry[key] = value
	}
	entry[collections.IDField] = slotID

	intervals := storage.Doc{}
	for key := range collections.Sub(before, collections.IntervalsField) {
		intervals[key] = storage.Tombstone
	}
	for key, value := range collections.Sub(after, collections.IntervalsField) {
		intervals[key] = value
	}
	entry[collections.IntervalsField] = intervals
	return entry
}
