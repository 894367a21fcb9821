package services

import "errors"

// Sentinel errors mapped to protocol error codes by the handlers.
var (
	// ErrClientNotFound is fatal for the authorization flow: with no client
	// there is no trusted redirect target.
	ErrClientNotFound = errors.New("client not found")

	// ErrInvalidRedirectURI is fatal: the presented redirect URI does not
	// match the client's registration, so nothing may be sent to it.
	ErrInvalidRedirectURI = errors.New("invalid redirect URI")

	// ErrUnknownRequest means the consent referenced a pending request id
	// that does not exist or was already consumed.
	ErrUnknownRequest = errors.New("unknown authorization request")

	// ErrInvalidGrant covers unusable codes and refresh tokens.
	ErrInvalidGrant = errors.New("invalid grant")

	// ErrInvalidScope means the requested scope exceeds what was granted
	// or registered.
	ErrInvalidScope = errors.New("invalid scope")

	// ErrUnsupportedGrantType is returned for grant types the server does
	// not implement or the client did not register.
	ErrUnsupportedGrantType = errors.New("unsupported grant type")

	// ErrInvalidClientMetadata is returned when a registration request is
	// structurally unacceptable.
	ErrInvalidClientMetadata = errors.New("invalid client metadata")

	// ErrResourceServerNotFound is returned for unknown resource server ids.
	ErrResourceServerNotFound = errors.New("resource server not found")

	// ErrBaseURLTaken is returned when a resource server registration
	// collides with an existing base URL.
	ErrBaseURLTaken = errors.New("base URL already registered")

	// ErrUserNotFound is returned when a referenced resource owner does
	// not exist.
	ErrUserNotFound = errors.New("user not found")
)

// RedirectError is an authorization-flow error that may be delivered to the
// client via its validated redirect URI. Fragment selects the delivery
// channel: query for the code flow, fragment for the implicit flow.
type RedirectError struct {
	Code        string // unsupported_response_type, invalid_scope, access_denied
	RedirectURI string
	State       string
	Fragment    bool
}

func (e *RedirectError) Error() string {
	return "authorization error: " + e.Code
}
