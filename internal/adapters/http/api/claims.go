package api

import (
	"net/http"
	"strings"

	"github.com/okian/watchtower/internal/domain/model"
)

// Identity headers read by HeaderClaims.
const (
	HeaderUserID = "X-User-ID"
	HeaderRole   = "X-User-Role"
	HeaderTier   = "X-User-Tier"
)

// ClaimsProvider extracts the caller identity from a request.
type ClaimsProvider interface {
	Claims(r *http.Request) (model.UserClaims, error)
}

// HeaderClaims trusts identity headers set by an authenticating proxy.
type HeaderClaims struct{}

// Claims implements ClaimsProvider.
func (HeaderClaims) Claims(r *http.Request) (model.UserClaims, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		return model.UserClaims{}, NewKind("api.claims", ErrUnauthenticated)
	}
	role := model.RoleUser
	if strings.EqualFold(r.Header.Get(HeaderRole), string(model.RoleAdmin)) {
		role = model.RoleAdmin
	}
	return model.UserClaims{UserID: id, Role: role, Tier: r.Header.Get(HeaderTier)}, nil
}
