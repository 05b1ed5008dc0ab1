package headerauth

import (
	"fmt"
	"net/http"
	"strings"

	"quickTrade/internal/ports"
)

// Identity implements ports.Identity against the upstream identity
// collaborator's header contract: the gateway authenticates the caller and
// forwards the user id in X-User-ID. Admin capability is granted by a shared
// bearer token, checked explicitly here rather than inferred from the route.
type Identity struct {
	adminToken string
}

// New creates a header-based identity adapter. An empty adminToken means no
// caller can ever hold the admin capability.
func New(adminToken string) *Identity {
	return &Identity{adminToken: adminToken}
}

// Authenticate resolves the principal for the request.
func (i *Identity) Authenticate(r *http.Request) (ports.Principal, error) {
	userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if userID == "" {
		// WebSocket clients cannot set headers from browsers; accept a query
		// parameter as the fallback credential carrier.
		userID = strings.TrimSpace(r.URL.Query().Get("userId"))
	}
	if userID == "" {
		return ports.Principal{}, fmt.Errorf("missing user identity: %w", ports.ErrPermissionDenied)
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	isAdmin := i.adminToken != "" && token == i.adminToken

	return ports.Principal{UserID: userID, IsAdmin: isAdmin}, nil
}
