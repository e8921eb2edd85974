package triggers

import (
	"context"
	"sync"

	log "rinkserver/cloudlog"
	"rinkserver/collections"
	"rinkserver/storage"
)

// AttendanceSynchronizer propagates state between a customer's booked slots
// and the per-slot attendance aggregate, in both directions. Booking a slot
// records provisional attendance at the booked interval; admin-recorded
// attendance is mirrored back into the customer's attended-slots view, but
// only for customers whose own booking doesn't already represent the slot.
type AttendanceSynchronizer struct {
	db storage.Store
}

// NewAttendanceSynchronizer creates a synchronizer over db.
func NewAttendanceSynchronizer(db storage.Store) *AttendanceSynchronizer {
	return &AttendanceSynchronizer{db: db}
}

// HandleBookedSlot reacts to a write on a customer's booked-slot document and
// updates that one customer's entry in the slot's attendance map.
func (s *AttendanceSynchronizer) HandleBookedSlot(ctx context.Context, change *DocumentChange) error {
	org := change.Params[paramOrg]
	secretKey := change.Params[paramSecretKey]
	slotID := change.Params[paramSlot]

	booking, exists, err := s.db.Get(ctx, collections.BookingPath(org, secretKey))
	if err != nil {
		return err
	}
	customerID := collections.Str(booking, collections.IDField)
	if !exists || customerID == "" {
		// A booking without a resolvable customer can't be reflected in the
		// attendance map; skip rather than fail the whole reconciliation.
		log.Printf("no customer behind booking %s/%s, skipping attendance sync", org, secretKey)
		return nil
	}

	path := collections.AttendancePath(org, slotID)
	if change.Deleted() {
		// The customer never attended and no longer claims to have booked,
		// so their entry disappears entirely.
		return s.db.Merge(ctx, path, storage.Doc{
			collections.AttendancesField: storage.Doc{customerID: storage.Tombstone},
		})
	}

	interval := collections.Str(change.After, collections.IntervalField)
	return s.db.Merge(ctx, path, storage.Doc{
		collections.AttendancesField: storage.Doc{
			customerID: storage.Doc{
				collections.BookedIntervalField:   interval,
				collections.AttendedIntervalField: interval,
			},
		},
	})
}

// attendedUpdate is one customer's pending attended-slots write, resolved
// from their customer document before batching.
type attendedUpdate struct {
	secretKey string
	interval  string // empty means delete the attended entry
}

// HandleAttendance reacts to a write on a slot's attendance document and
// mirrors changed attended intervals into the affected customers'
// attended-slots views. Customer lookups run concurrently; all writes are
// collected into a single batch committed once.
func (s *AttendanceSynchronizer) HandleAttendance(ctx context.Context, change *DocumentChange) error {
	org := change.Params[paramOrg]
	slotID := change.Params[paramSlot]

	before := collections.Sub(change.Before, collections.AttendancesField)
	after := collections.Sub(change.After, collections.AttendancesField)
	date := collections.Str(change.After, collections.DateField)
	if date == "" {
		date = collections.Str(change.Before, collections.DateField)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		updates []attendedUpdate
		readErr error
	)
	for _, customerID := range changedCustomers(before, after) {
		beforeEntry := collections.Sub(before, customerID)
		afterEntry := collections.Sub(after, customerID)

		// A customer's own booking already represents this slot in their
		// calendar; a separate attended entry would show it twice.
		if collections.Str(beforeEntry, collections.BookedIntervalField) != "" ||
			collections.Str(afterEntry, collections.BookedIntervalField) != "" {
			continue
		}
		attended := collections.Str(afterEntry, collections.AttendedIntervalField)
		if attended == collections.Str(beforeEntry, collections.AttendedIntervalField) {
			continue
		}

		wg.Add(1)
		go func(customerID, attended string) {
			defer wg.Done()
			customer, exists, err := s.db.Get(ctx, collections.CustomerPath(org, customerID))
			if err != nil {
				mu.Lock()
				if readErr == nil {
					readErr = err
				}
				mu.Unlock()
				return
			}
			secretKey := collections.Str(customer, collections.SecretKeyField)
			if !exists || secretKey == "" {
				log.Printf("attendance for %s/%s references unknown customer %s", org, slotID, customerID)
				return
			}
			mu.Lock()
			updates = append(updates, attendedUpdate{secretKey: secretKey, interval: attended})
			mu.Unlock()
		}(customerID, attended)
	}
	wg.Wait()
	if readErr != nil {
		return readErr
	}
	if len(updates) == 0 {
		return nil
	}

	batch := s.db.Batch()
	for _, u := range updates {
		path := collections.AttendedSlotPath(org, u.secretKey, slotID)
		if u.interval == "" {
			batch.Delete(path)
			continue
		}
		batch.Set(path, storage.Doc{
			collections.DateField:     date,
			collections.IntervalField: u.interval,
		})
	}
	return batch.Commit(ctx)
}

// changedCustomers gives the customer ids whose attendance entry differs
// between the two snapshots: added, removed, or changed in either field.
func changedCustomers(before, after storage.Doc) []string {
	ids := []string{}
	seen := map[string]bool{}
	for id := range before {
		seen[id] = true
		if entryChanged(collections.Sub(before, id), collections.Sub(after, id)) {
			ids = append(ids, id)
		}
	}
	for id := range after {
		if seen[id] {
			continue
		}
		if entryChanged(collections.Sub(before, id), collections.Sub(after, id)) {
			ids = append(ids, id)
		}
	}
	return ids
}

func entryChanged(before, after storage.Doc) bool {
	return collections.Str(before, collections.BookedIntervalField) != collections.Str(after, collections.BookedIntervalField) ||
		collections.Str(before, collections.AttendedIntervalField) != collections.Str(after, collections.AttendedIntervalField)
}
