// Package clientauth extracts and verifies client and resource server
// credentials presented on token-style endpoints.
package clientauth

import (
	"errors"
	"net/http"
)

var (
	// ErrNoCredentials means neither the Basic header nor request
	// parameters carried credentials.
	ErrNoCredentials = errors.New("clientauth: no credentials presented")

	// ErrAmbiguousCredentials means credentials arrived on both channels.
	// This is a hard failure even when one channel alone would validate.
	ErrAmbiguousCredentials = errors.New("clientauth: credentials on multiple channels")

	// ErrInvalidCredentials means the presented secret did not verify.
	ErrInvalidCredentials = errors.New("clientauth: invalid credentials")
)

// Credentials is an id/secret pair plus the channel it arrived on.
type Credentials struct {
	ID     string
	Secret string
	Basic  bool
}

// Extract pulls client credentials from the request. Exactly one channel may
// be used: the Basic Authorization header, or the client_id/client_secret
// request parameters (form or query). Both at once is ambiguous and fails
// regardless of whether either pair is individually correct.
func Extract(r *http.Request) (*Credentials, error) {
	return extract(r, "client_id", "client_secret")
}

// ExtractResourceServer is Extract for resource server endpoints, which use
// id/secret parameter names.
func ExtractResourceServer(r *http.Request) (*Credentials, error) {
	return extract(r, "id", "secret")
}

func extract(r *http.Request, idParam, secretParam string) (*Credentials, error) {
	basicID, basicSecret, hasBasic := r.BasicAuth()

	// FormValue covers both the parsed body and the query string.
	paramID := r.FormValue(idParam)
	paramSecret := r.FormValue(secretParam)
	hasParams := paramID != "" || paramSecret != ""

	switch {
	case hasBasic && hasParams:
		return nil, ErrAmbiguousCredentials
	case hasBasic:
		return &Credentials{ID: basicID, Secret: basicSecret, Basic: true}, nil
	case hasParams:
		return &Credentials{ID: paramID, Secret: paramSecret}, nil
	default:
		return nil, ErrNoCredentials
	}
}

// SecretValidator verifies a plaintext secret against a stored credential.
type SecretValidator interface {
	ValidateSecret(secret string) bool
}

// Verify checks the extracted credentials against the stored entity.
func Verify(creds *Credentials, entity SecretValidator) error {
	if entity == nil || !entity.ValidateSecret(creds.Secret) {
		return ErrInvalidCredentials
	}
	return nil
}
