package triggers

import (
	"context"

	log "rinkserver/cloudlog"
	"rinkserver/collections"
	"rinkserver/storage"

	"github.com/google/uuid"
)

// CustomerPropagator assigns durable identity fields to new customers and
// keeps the sanitized booking mirror in sync. The id/secretKey pair is
// written exactly once, on creation; re-running the handler on an
// already-identified customer is a no-op for those fields.
type CustomerPropagator struct {
	db storage.Store

	// newSecretKey is swappable for deterministic tests.
	newSecretKey func() string
}

// NewCustomerPropagator creates a propagator over db.
func NewCustomerPropagator(db storage.Store) *CustomerPropagator {
	return &CustomerPropagator{
		db:           db,
		newSecretKey: func() string { return uuid.New().String() },
	}
}

// Handle reacts to a create or update of a customer document. Deletions are
// ignored; customers are retired with a deleted flag, not removed.
func (p *CustomerPropagator) Handle(ctx context.Context, change *DocumentChange) error {
	if change.Deleted() {
		return nil
	}
	org := change.Params[paramOrg]
	customerID := change.Params[paramCustomer]

	secretKey := collections.Str(change.After, collections.SecretKeyField)
	if change.Created() {
		// A redelivered creation event still carries a snapshot without the
		// key, so check the stored document before minting one; otherwise a
		// replay would rotate the customer's key.
		current, _, err := p.db.Get(ctx, collections.CustomerPath(org, customerID))
		if err != nil {
			return err
		}
		if stored := collections.Str(current, collections.SecretKeyField); stored != "" {
			secretKey = stored
		} else if secretKey == "" {
			// A self-registration flow may pre-generate the secret key;
			// reuse it rather than minting a second one.
			secretKey = p.newSecretKey()
		}
		if err := p.assignIdentity(ctx, org, customerID, secretKey, current); err != nil {
			return err
		}
	}
	if secretKey == "" {
		// An update raced ahead of the creation's identity merge. The merge
		// itself retriggers this handler, which then rebuilds the mirror.
		log.Printf("customer %s/%s has no secret key yet, skipping booking mirror", org, customerID)
		return nil
	}

	booking := collections.Pick(change.After, collections.CustomerBookingFields)
	booking[collections.IDField] = customerID
	return p.db.Set(ctx, collections.BookingPath(org, secretKey), booking)
}

func (p *CustomerPropagator) assignIdentity(ctx context.Context, org, customerID, secretKey string, stored storage.Doc) error {
	if collections.Str(stored, collections.IDField) == customerID &&
		collections.Str(stored, collections.SecretKeyField) == secretKey {
		return nil
	}
	return p.db.Merge(ctx, collections.CustomerPath(org, customerID), storage.Doc{
		collections.IDField:        customerID,
		collections.SecretKeyField: secretKey,
	})
}
