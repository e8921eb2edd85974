// Package clubauth verifies caller identity for the callable surfaces. The
// reconciliation triggers themselves never consult it; only diagnostics and
// admin-invoked operations do.
package clubauth

import (
	"context"
	"errors"

	firebase "firebase.google.com/go"
)

// ErrNoIdentity is given when a verified token carries no usable identity
// claim.
var ErrNoIdentity = errors.New("token carries no usable identity")

// Verifier resolves a bearer token into the caller's identity strings
// (email, phone number, uid).
type Verifier interface {
	Identities(ctx context.Context, idToken string) ([]string, error)
}

// IsOrgAdmin reports whether any of the caller's identities appears in the
// organization's admin list.
func IsOrgAdmin(identities, orgAdmins []string) bool {
	admins := map[string]bool{}
	for _, admin := range orgAdmins {
		admins[admin] = true
	}
	for _, identity := range identities {
		if admins[identity] {
			return true
		}
	}
	return false
}

// firebaseVerifier implements Verifier against the Firebase Auth service.
type firebaseVerifier struct {
	app *firebase.App
}

// NewVerifier wraps a Firebase app as a Verifier.
func NewVerifier(app *firebase.App) Verifier {
	return &firebaseVerifier{app: app}
}

func (v *firebaseVerifier) Identities(ctx context.Context, idToken string) ([]string, error) {
	client, err := v.app.Auth(ctx)
	if err != nil {
		return nil, err
	}
	token, err := client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}

	identities := []string{}
	if email, ok := token.Claims["email"].(string); ok && email != "" {
		identities = append(identities, email)
	}
	if phone, ok := token.Claims["phone_number"].(string); ok && phone != "" {
		identities = append(identities, phone)
	}
	if token.UID != "" {
		identities = append(identities, token.UID)
	}
	if len(identities) == 0 {
		return nil, ErrNoIdentity
	}
	return identities, nil
}
