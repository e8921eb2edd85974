package triggers

import (
	"context"
	"sync"
	"time"

	log "rinkserver/cloudlog"
	"rinkserver/collections"
	"rinkserver/storage"
)

// StatsAggregator recomputes a customer's cumulative booked-duration
// statistics whenever any of their booked slots changes. Durations are
// cumulative and slot types live in external state, so the whole booked-slot
// set is re-read and recomputed rather than patched incrementally; a
// computation over a half-updated slot set self-corrects on the next write.
//
// Current and next month are taken from wall-clock time at invocation, so
// the stats are a forward-looking view; a booking recorded long after the
// fact for a past month does not revise historical entries.
type StatsAggregator struct {
	db storage.Store

	// now is swappable for deterministic tests.
	now func() time.Time
}

// NewStatsAggregator creates an aggregator over db.
func NewStatsAggregator(db storage.Store) *StatsAggregator {
	return &StatsAggregator{db: db, now: time.Now}
}

// Handle reacts to any write on a customer's booked-slot document.
func (a *StatsAggregator) Handle(ctx context.Context, change *DocumentChange) error {
	org := change.Params[paramOrg]
	secretKey := change.Params[paramSecretKey]

	booking, exists, err := a.db.Get(ctx, collections.BookingPath(org, secretKey))
	if err != nil {
		return err
	}
	customerID := collections.Str(booking, collections.IDField)
	if !exists || customerID == "" {
		log.Printf("no customer behind booking %s/%s, skipping stats", org, secretKey)
		return nil
	}

	bookedSlots, err := a.db.GetAll(ctx, collections.BookedSlotsCollection(org, secretKey))
	if err != nil {
		return err
	}

	now := a.now()
	months := []string{collections.MonthKey(now), collections.NextMonthKey(now)}
	buckets, err := a.readBuckets(ctx, org, months)
	if err != nil {
		return err
	}

	// Zero-initialized so a customer with no bookings left gets explicit
	// zeroed entries instead of stale ones.
	stats := storage.Doc{}
	minutes := map[string]map[string]int{}
	for _, month := range months {
		minutes[month] = map[string]int{
			collections.SlotTypeIce:    0,
			collections.SlotTypeOffIce: 0,
		}
	}

	for slotID, booked := range bookedSlots {
		date := collections.Str(booked, collections.DateField)
		month, err := collections.MonthOf(date)
		if err != nil {
			log.Printf("booked slot %s for %s/%s has no usable date", slotID, org, customerID)
			continue
		}
		byType, tracked := minutes[month]
		if !tracked {
			continue
		}
		slot := collections.Sub(collections.Sub(buckets[month], date), slotID)
		if slot == nil {
			// The slot was deleted out from under the booking.
			continue
		}
		slotType := collections.Str(slot, collections.TypeField)
		if _, known := byType[slotType]; !known {
			continue
		}
		duration, err := collections.IntervalMinutes(collections.Str(booked, collections.IntervalField))
		if err != nil {
			log.Printf("booked slot %s for %s/%s: %v", slotID, org, customerID, err)
			continue
		}
		byType[slotType] += duration
	}

	for _, month := range months {
		stats[month] = storage.Doc{
			collections.SlotTypeIce:    minutes[month][collections.SlotTypeIce],
			collections.SlotTypeOffIce: minutes[month][collections.SlotTypeOffIce],
		}
	}
	return a.db.Merge(ctx, collections.CustomerPath(org, customerID), storage.Doc{
		collections.BookingStatsField: stats,
	})
}

// readBuckets fetches the SlotsByDay documents for the given months
// concurrently. A missing bucket reads as nil, which downstream lookups
// treat as "no slots that month".
func (a *StatsAggregator) readBuckets(ctx context.Context, org string, months []string) (map[string]storage.Doc, error) {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		buckets = map[string]storage.Doc{}
		readErr error
	)
	for _, month := range months {
		wg.Add(1)
		go func(month string) {
			defer wg.Done()
			bucket, _, err := a.db.Get(ctx, collections.SlotsByDayPath(org, month))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if readErr == nil {
					readErr = err
				}
				return
			}
			buckets[month] = bucket
		}(month)
	}
	wg.Wait()
	if readErr != nil {
		return nil, readErr
	}
	return buckets, nil
}
