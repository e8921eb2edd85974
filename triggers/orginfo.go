package triggers

import (
	"context"
	"sort"

	"rinkserver/collections"
	"rinkserver/storage"
)

// OrgRegistrar reflects the access-restricted secrets document onto the
// organization as a value-free manifest, and republishes an allow-listed
// organization subset to the pre-authentication public info document. This
// is the only channel through which the fact of a secret's existence crosses
// to broadly-readable documents; values never do.
type OrgRegistrar struct {
	db storage.Store
}

// NewOrgRegistrar creates a registrar over db.
func NewOrgRegistrar(db storage.Store) *OrgRegistrar {
	return &OrgRegistrar{db: db}
}

// HandleSecrets reacts to any write on an organization's secrets document.
// Deletion counts as an empty record.
func (r *OrgRegistrar) HandleSecrets(ctx context.Context, change *DocumentChange) error {
	org := change.Params[paramOrg]

	existing := make([]string, 0, len(change.After))
	for key := range change.After {
		existing = append(existing, key)
	}
	sort.Strings(existing)

	configured := true
	for _, key := range collections.SMTPSecretKeys {
		if _, ok := change.After[key]; !ok {
			configured = false
			break
		}
	}

	return r.db.Merge(ctx, collections.OrgPath(org), storage.Doc{
		collections.ExistingSecretsField: existing,
		collections.SMTPConfiguredField:  configured,
	})
}

// HandleOrganization republishes the public subset of the organization
// document, and removes the public mirror when the organization goes away.
func (r *OrgRegistrar) HandleOrganization(ctx context.Context, change *DocumentChange) error {
	org := change.Params[paramOrg]
	if change.Deleted() {
		return r.db.Delete(ctx, collections.PublicOrgInfoPath(org))
	}
	info := collections.Pick(change.After, collections.PublicOrgFields)
	return r.db.Set(ctx, collections.PublicOrgInfoPath(org), info)
}
