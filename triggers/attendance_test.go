package triggers

import (
	"context"
	"testing"

	"rinkserver/collections"
	"rinkserver/storage"
	"rinkserver/teststore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bookedSlotChange(secretKey, slotID string, before, after storage.Doc) *DocumentChange {
	return &DocumentChange{
		Params: map[string]string{paramOrg: testOrg, paramSecretKey: secretKey, paramSlot: slotID},
		Before: before,
		After:  after,
	}
}

func attendanceChange(slotID string, before, after storage.Doc) *DocumentChange {
	return &DocumentChange{
		Params: map[string]string{paramOrg: testOrg, paramSlot: slotID},
		Before: before,
		After:  after,
	}
}

func attendanceDoc(date string, attendances storage.Doc) storage.Doc {
	return storage.Doc{
		collections.DateField:        date,
		collections.AttendancesField: attendances,
	}
}

func seedCustomer(t *testing.T, db *teststore.Store, customerID, secretKey string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.Set(ctx, collections.CustomerPath(testOrg, customerID), storage.Doc{
		collections.IDField:        customerID,
		collections.SecretKeyField: secretKey,
	}))
	require.NoError(t, db.Set(ctx, collections.BookingPath(testOrg, secretKey), storage.Doc{
		collections.IDField: customerID,
	}))
}

func TestBookedSlotWriteRecordsProvisionalAttendance(t *testing.T) {
	ctx := context.Background()
	db := teststore.New()
	s := NewAttendanceSynchronizer(db)
	seedCustomer(t, db, "cust-1", "sk-1")

	booked := storage.Doc{collections.DateField: "2024-03-05", collections.IntervalField: "09:00-10:00"}
	require.NoError(t, s.HandleBookedSlot(ctx, bookedSlotChange("sk-1", "slot-1", nil, booked)))

	attendance, _, err := db.Get(ctx, collections.AttendancePath(testOrg, "slot-1"))
	require.NoError(t, err)
	entry := collections.Sub(collections.Sub(attendance, collections.AttendancesField), "cust-1")
	require.NotNil(t, entry)
	assert.Equal(t, "09:00-10:00", collections.Str(entry, collections.BookedIntervalField))
	assert.Equal(t, "09:00-10:00", collections.Str(entry, collections.AttendedIntervalField),
		"booking implies provisional attendance at the booked interval")
}

func TestBookedSlotDeletionRemovesAttendanceEntry(t *testing.T) {
	ctx := context.Background()
	db := teststore.New()
	s := NewAttendanceSynchronizer(db)
	seedCustomer(t, db, "cust-1", "sk-1")

	require.NoError(t, db.Set(ctx, collections.AttendancePath(testOrg, "slot-1"), attendanceDoc("2024-03-05", storage.Doc{
		"cust-1": storage.Doc{
			collections.BookedIntervalField:   "09:00-10:00",
			collections.AttendedIntervalField: "09:00-10:00",
		},
		"cust-2": storage.Doc{
			collections.BookedIntervalField:   "10:00-11:00",
			collections.AttendedIntervalField: "10:00-11:00",
		},
	})))

	booked := storage.Doc{collections.DateField: "2024-03-05", collections.IntervalField: "09:00-10:00"}
	require.NoError(t, s.HandleBookedSlot(ctx, bookedSlotChange("sk-1", "slot-1", booked, nil)))

	attendance, _, err := db.Get(ctx, collections.AttendancePath(testOrg, "slot-1"))
	require.NoError(t, err)
	attendances := collections.Sub(attendance, collections.AttendancesField)
	assert.NotContains(t, attendances, "cust-1")
	assert.Contains(t, attendances, "cust-2", "only the cancelling customer's entry may be touched")
}

func TestBookedSlotWriteSkipsUnknownBooking(t *testing.T) {
	ctx := context.Background()
	db := teststore.New()
	s := NewAttendanceSynchronizer(db)

	booked := storage.Doc{collections.IntervalField: "09:00-10:00"}
	require.NoError(t, s.HandleBookedSlot(ctx, bookedSlotChange("ghost", "slot-1", nil, booked)))

	_, exists, err := db.Get(ctx, collections.AttendancePath(testOrg, "slot-1"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAttendanceMirrorSkipsBookedCustomers(t *testing.T) {
	ctx := context.Background()
	db := teststore.New()
	s := NewAttendanceSynchronizer(db)
	seedCustomer(t, db, "cust-1", "sk-1")

	// Booked and now marked attended: their own booking already shows the
	// slot, so no attended entry may appear.
	before := attendanceDoc("2024-03-05", storage.Doc{
		"cust-1": storage.Doc{collections.BookedIntervalField: "09:00-10:00"},
	})
	after := attendanceDoc("2024-03-05", storage.Doc{
		"cust-1": storage.Doc{
			collections.BookedIntervalField:   "09:00-10:00",
			collections.AttendedIntervalField: "09:00-10:00",
		},
	})
	require.NoError(t, s.HandleAttendance(ctx, attendanceChange("slot-1", before, after)))

	_, exists, err := db.Get(ctx, collections.AttendedSlotPath(testOrg, "sk-1", "slot-1"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAttendanceMirrorMaterializesAfterBookingCancelled(t *testing.T) {
	ctx := context.Background()
	db := teststore.New()
	s := NewAttendanceSynchronizer(db)
	seedCustomer(t, db, "cust-1", "sk-1")

	// The cancellation removed the customer's entry; the admin then
	// re-records the attendance as a walk-in. With no booking on either
	// side, the attended entry materializes.
	after := attendanceDoc("2024-03-05", storage.Doc{
		"cust-1": storage.Doc{collections.AttendedIntervalField: "09:00-10:00"},
	})
	require.NoError(t, s.HandleAttendance(ctx, attendanceChange("slot-1", attendanceDoc("2024-03-05", storage.Doc{}), after)))

	attended, exists, err := db.Get(ctx, collections.AttendedSlotPath(testOrg, "sk-1", "slot-1"))
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, "2024-03-05", collections.Str(attended, collections.DateField))
	assert.Equal(t, "09:00-10:00", collections.Str(attended, collections.IntervalField))
}

func TestAttendanceMirrorRemovesWalkInCorrection(t *testing.T) {
	ctx := context.Background()
	db := teststore.New()
	s := NewAttendanceSynchronizer(db)
	seedCustomer(t, db, "cust-1", "sk-1")
	require.NoError(t, db.Set(ctx, collections.AttendedSlotPath(testOrg, "sk-1", "slot-1"), storage.Doc{
		collections.DateField:     "2024-03-05",
		collections.IntervalField: "09:00-10:00",
	}))

	before := attendanceDoc("2024-03-05", storage.Doc{
		"cust-1": storage.Doc{collections.AttendedIntervalField: "09:00-10:00"},
	})
	after := attendanceDoc("2024-03-05", storage.Doc{})
	require.NoError(t, s.HandleAttendance(ctx, attendanceChange("slot-1", before, after)))

	_, exists, err := db.Get(ctx, collections.AttendedSlotPath(testOrg, "sk-1", "slot-1"))
	require.NoError(t, err)
	assert.False(t, exists, "an attendance-only entry that disappears takes its mirror with it")
}

func TestAttendanceMirrorSkipsUnchangedValues(t *testing.T) {
	ctx := context.Background()
	db := teststore.New()
	s := NewAttendanceSynchronizer(db)

	// The customer document is deliberately absent: an unchanged entry must
	// short-circuit before any lookup happens.
	same := attendanceDoc("2024-03-05", storage.Doc{
		"cust-1": storage.Doc{collections.AttendedIntervalField: "09:00-10:00"},
	})
	require.NoError(t, s.HandleAttendance(ctx, attendanceChange("slot-1", same, same)))
}

func TestAttendanceMirrorFansOutToAllChangedCustomers(t *testing.T) {
	ctx := context.Background()
	db := teststore.New()
	s := NewAttendanceSynchronizer(db)
	seedCustomer(t, db, "cust-1", "sk-1")
	seedCustomer(t, db, "cust-2", "sk-2")

	after := attendanceDoc("2024-03-05", storage.Doc{
		"cust-1": storage.Doc{collections.AttendedIntervalField: "09:00-10:00"},
		"cust-2": storage.Doc{collections.AttendedIntervalField: "10:00-11:00"},
		"cust-3": storage.Doc{collections.AttendedIntervalField: "11:00-12:00"},
	})
	require.NoError(t, s.HandleAttendance(ctx, attendanceChange("slot-1", attendanceDoc("2024-03-05", storage.Doc{}), after)))

	one, exists, err := db.Get(ctx, collections.AttendedSlotPath(testOrg, "sk-1", "slot-1"))
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, "09:00-10:00", collections.Str(one, collections.IntervalField))

	two, exists, err := db.Get(ctx, collections.AttendedSlotPath(testOrg, "sk-2", "slot-1"))
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, "10:00-11:00", collections.Str(two, collections.IntervalField))

	// cust-3 has no customer document; the miss must not block the others.
}
