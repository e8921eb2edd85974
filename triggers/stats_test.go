package triggers

import (
	"context"
	"testing"
	"time"

	"rinkserver/collections"
	"rinkserver/storage"
	"rinkserver/teststore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedAggregator pins "now" to mid-March 2024, so current month is 2024-03
// and next month is 2024-04.
func fixedAggregator(db storage.Store) *StatsAggregator {
	a := NewStatsAggregator(db)
	a.now = func() time.Time {
		return time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)
	}
	return a
}

func seedBucketSlot(t *testing.T, db *teststore.Store, month, date, slotID, slotType string) {
	t.Helper()
	require.NoError(t, db.Merge(context.Background(), collections.SlotsByDayPath(testOrg, month), storage.Doc{
		date: storage.Doc{
			slotID: storage.Doc{
				collections.IDField:   slotID,
				collections.DateField: date,
				collections.TypeField: slotType,
			},
		},
	}))
}

func seedBookedSlot(t *testing.T, db *teststore.Store, secretKey, slotID, date, interval string) {
	t.Helper()
	require.NoError(t, db.Set(context.Background(), collections.BookedSlotPath(testOrg, secretKey, slotID), storage.Doc{
		collections.DateField:     date,
		collections.IntervalField: interval,
	}))
}

func customerStats(t *testing.T, db *teststore.Store, customerID, month string) storage.Doc {
	t.Helper()
	customer, _, err := db.Get(context.Background(), collections.CustomerPath(testOrg, customerID))
	require.NoError(t, err)
	return collections.Sub(collections.Sub(customer, collections.BookingStatsField), month)
}

func TestStatsSingleBooking(t *testing.T) {
	ctx := context.Background()
	db := teststore.New()
	a := fixedAggregator(db)
	seedCustomer(t, db, "cust-1", "sk-1")
	seedBucketSlot(t, db, "2024-03", "2024-03-05", "slot-a", "ice")
	seedBookedSlot(t, db, "sk-1", "slot-a", "2024-03-05", "10:00-11:00")

	require.NoError(t, a.Handle(ctx, bookedSlotChange("sk-1", "slot-a", nil, storage.Doc{})))

	march := customerStats(t, db, "cust-1", "2024-03")
	assert.Equal(t, 60, march[collections.SlotTypeIce])
	assert.Equal(t, 0, march[collections.SlotTypeOffIce])
}

func TestStatsAccumulateAcrossBookings(t *testing.T) {
	ctx := context.Background()
	db := teststore.New()
	a := fixedAggregator(db)
	seedCustomer(t, db, "cust-1", "sk-1")
	seedBucketSlot(t, db, "2024-03", "2024-03-05", "slot-a", "ice")
	seedBucketSlot(t, db, "2024-03", "2024-03-06", "slot-b", "off-ice")
	seedBookedSlot(t, db, "sk-1", "slot-a", "2024-03-05", "10:00-11:00")
	seedBookedSlot(t, db, "sk-1", "slot-b", "2024-03-06", "09:00-09:30")

	require.NoError(t, a.Handle(ctx, bookedSlotChange("sk-1", "slot-b", nil, storage.Doc{})))

	march := customerStats(t, db, "cust-1", "2024-03")
	assert.Equal(t, 60, march[collections.SlotTypeIce])
	assert.Equal(t, 30, march[collections.SlotTypeOffIce])
}

func TestStatsSplitCurrentAndNextMonth(t *testing.T) {
	ctx := context.Background()
	db := teststore.New()
	a := fixedAggregator(db)
	seedCustomer(t, db, "cust-1", "sk-1")
	seedBucketSlot(t, db, "2024-03", "2024-03-05", "slot-a", "ice")
	seedBucketSlot(t, db, "2024-04", "2024-04-02", "slot-b", "ice")
	seedBookedSlot(t, db, "sk-1", "slot-a", "2024-03-05", "10:00-11:00")
	seedBookedSlot(t, db, "sk-1", "slot-b", "2024-04-02", "08:00-09:30")

	require.NoError(t, a.Handle(ctx, bookedSlotChange("sk-1", "slot-a", nil, storage.Doc{})))

	assert.Equal(t, 60, customerStats(t, db, "cust-1", "2024-03")[collections.SlotTypeIce])
	assert.Equal(t, 90, customerStats(t, db, "cust-1", "2024-04")[collections.SlotTypeIce])
}

func TestStatsIgnoreOtherMonthsAndMissingSlots(t *testing.T) {
	ctx := context.Background()
	db := teststore.New()
	a := fixedAggregator(db)
	seedCustomer(t, db, "cust-1", "sk-1")
	seedBucketSlot(t, db, "2024-03", "2024-03-05", "slot-a", "ice")
	seedBookedSlot(t, db, "sk-1", "slot-a", "2024-03-05", "10:00-11:00")
	// Booked against a slot no longer in the index: skipped silently.
	seedBookedSlot(t, db, "sk-1", "slot-gone", "2024-03-09", "10:00-12:00")
	// Wall-clock-relative window: a past month is not recomputed.
	seedBookedSlot(t, db, "sk-1", "slot-old", "2024-01-10", "10:00-12:00")

	require.NoError(t, a.Handle(ctx, bookedSlotChange("sk-1", "slot-a", nil, storage.Doc{})))

	customer, _, err := db.Get(ctx, collections.CustomerPath(testOrg, "cust-1"))
	require.NoError(t, err)
	stats := collections.Sub(customer, collections.BookingStatsField)
	assert.Equal(t, 60, collections.Sub(stats, "2024-03")[collections.SlotTypeIce])
	assert.NotContains(t, stats, "2024-01")
}

func TestStatsZeroedWhenNoBookingsRemain(t *testing.T) {
	ctx := context.Background()
	db := teststore.New()
	a := fixedAggregator(db)
	seedCustomer(t, db, "cust-1", "sk-1")
	require.NoError(t, db.Merge(ctx, collections.CustomerPath(testOrg, "cust-1"), storage.Doc{
		collections.BookingStatsField: storage.Doc{
			"2024-03": storage.Doc{collections.SlotTypeIce: 120, collections.SlotTypeOffIce: 0},
		},
	}))

	// The last booked slot was just deleted; the stats entry must be
	// zeroed rather than left stale.
	require.NoError(t, a.Handle(ctx, bookedSlotChange("sk-1", "slot-a", storage.Doc{}, nil)))

	march := customerStats(t, db, "cust-1", "2024-03")
	require.NotNil(t, march)
	assert.Equal(t, 0, march[collections.SlotTypeIce])
	assert.Equal(t, 0, march[collections.SlotTypeOffIce])
}

func TestStatsSkipsUnknownBooking(t *testing.T) {
	ctx := context.Background()
	db := teststore.New()
	a := fixedAggregator(db)

	require.NoError(t, a.Handle(ctx, bookedSlotChange("ghost", "slot-a", nil, storage.Doc{})))
}
