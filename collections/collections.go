// Package collections contains the document paths, field names and entry
// structures of the club's Firestore layout, plus small helpers for reading
// fields out of loosely-typed documents. Every per-club document lives under
// an organization prefix; secrets and the public org mirror are parallel
// top-level collections.
package collections

import (
	"fmt"

	"rinkserver/storage"
)

// Collection ids.
const (
	OrganizationsID  = "organizations"
	SlotsID          = "slots"
	SlotsByDayID     = "slotsByDay"
	AttendanceID     = "attendance"
	CustomersID      = "customers"
	BookingsID       = "bookings"
	BookedSlotsID    = "bookedSlots"
	AttendedSlotsID  = "attendedSlots"
	SecretsID        = "secrets"
	PublicOrgInfoID  = "publicOrgInfo"
	DeliveryQueuesID = "deliveryQueues"

	// Delivery queue names under deliveryQueues/{org}.
	EmailQueueID = "emailQueue"
	SMSQueueID   = "smsQueue"
)

// Field keys shared between handlers.
const (
	IDField               = "id"
	SecretKeyField        = "secretKey"
	DateField             = "date"
	TypeField             = "type"
	IntervalField         = "interval"
	IntervalsField        = "intervals"
	AttendancesField      = "attendances"
	BookedIntervalField   = "bookedInterval"
	AttendedIntervalField = "attendedInterval"
	ExistingSecretsField  = "existingSecrets"
	SMTPConfiguredField   = "smtpConfigured"
	BookingStatsField     = "bookingStats"
	AdminsField           = "admins"
	PayloadField          = "payload"
)

// Slot types.
const (
	SlotTypeIce    = "ice"
	SlotTypeOffIce = "off-ice"
)

// SMTPSecretKeys are the secret fields that must all be present for an
// organization to count as SMTP-configured.
var SMTPSecretKeys = []string{"smtpHost", "smtpPort", "smtpUser", "smtpPass"}

// CustomerBookingFields is the allow-list of Customer fields mirrored onto
// the anonymous-access Booking document. Everything else on the Customer is
// server-internal.
var CustomerBookingFields = []string{
	IDField, "name", "surname", "email", "phone", "categories",
	"extendedDate", "deleted",
}

// PublicOrgFields is the allow-list of Organization fields republished to
// the pre-authentication public info document.
var PublicOrgFields = []string{
	"displayName", "location", "emailFrom", "defaultCountryCode",
	"privacyPolicy",
}

// Document path builders.

func OrgPath(org string) string {
	return fmt.Sprintf("%s/%s", OrganizationsID, org)
}

func SlotPath(org, slotID string) string {
	return fmt.Sprintf("%s/%s/%s", OrgPath(org), SlotsID, slotID)
}

func SlotsByDayPath(org, month string) string {
	return fmt.Sprintf("%s/%s/%s", OrgPath(org), SlotsByDayID, month)
}

func AttendancePath(org, slotID string) string {
	return fmt.Sprintf("%s/%s/%s", OrgPath(org), AttendanceID, slotID)
}

func SlotsCollection(org string) string {
	return fmt.Sprintf("%s/%s", OrgPath(org), SlotsID)
}

func AttendanceCollection(org string) string {
	return fmt.Sprintf("%s/%s", OrgPath(org), AttendanceID)
}

func CustomerPath(org, customerID string) string {
	return fmt.Sprintf("%s/%s/%s", OrgPath(org), CustomersID, customerID)
}

func BookingPath(org, secretKey string) string {
	return fmt.Sprintf("%s/%s/%s", OrgPath(org), BookingsID, secretKey)
}

func BookedSlotsCollection(org, secretKey string) string {
	return fmt.Sprintf("%s/%s", BookingPath(org, secretKey), BookedSlotsID)
}

func BookedSlotPath(org, secretKey, slotID string) string {
	return fmt.Sprintf("%s/%s", BookedSlotsCollection(org, secretKey), slotID)
}

func AttendedSlotPath(org, secretKey, slotID string) string {
	return fmt.Sprintf("%s/%s/%s", BookingPath(org, secretKey), AttendedSlotsID, slotID)
}

func SecretsPath(org string) string {
	return fmt.Sprintf("%s/%s", SecretsID, org)
}

func PublicOrgInfoPath(org string) string {
	return fmt.Sprintf("%s/%s", PublicOrgInfoID, org)
}

func DeliveryDocPath(org, queue, id string) string {
	return fmt.Sprintf("%s/%s/%s/%s", DeliveryQueuesID, org, queue, id)
}

// Loose-document field helpers. Absent or wrongly-typed fields read as zero
// values; handlers treat an empty interval string as null.

// Str reads a string field from doc.
func Str(doc storage.Doc, key string) string {
	if doc == nil {
		return ""
	}
	s, _ := doc[key].(string)
	return s
}

// Sub reads a nested map field from doc.
func Sub(doc storage.Doc, key string) storage.Doc {
	if doc == nil {
		return nil
	}
	sub, _ := doc[key].(map[string]interface{})
	return sub
}

// Strs reads a string-slice field from doc, tolerating []interface{} as
// decoded from JSON.
func Strs(doc storage.Doc, key string) []string {
	if doc == nil {
		return nil
	}
	switch v := doc[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Pick copies the allow-listed fields present in doc into a new document.
func Pick(doc storage.Doc, fields []string) storage.Doc {
	out := storage.Doc{}
	for _, field := range fields {
		if value, ok := doc[field]; ok {
			out[field] = value
		}
	}
	return out
}
