package ports

import "net/http"

// Principal is the authenticated caller resolved by the identity collaborator.
type Principal struct {
	UserID  string
	IsAdmin bool
}

// Identity resolves the authenticated principal for an inbound request.
// The real identity service is an external collaborator; adapters translate
// whatever credential it issues into a Principal.
type Identity interface {
	// Authenticate returns the principal for the request, or ErrPermissionDenied.
	Authenticate(r *http.Request) (Principal, error)
}
