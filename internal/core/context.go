package core

import "context"

type contextKey string

const ctxKeyIdentity contextKey = "identity"

// Roles understood by the web layer's gates. The engine itself never checks
// them; rows only record the caller's user id.
const (
	RoleAdmin  = "admin"
	RoleLeader = "leader"
	RoleMember = "member"
)

// Identity is the caller as established by the upstream identity provider.
type Identity struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

// ContextWithIdentity attaches the caller identity to ctx.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

// IdentityFromContext returns the caller identity, if one was attached.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity).(Identity)
	return id, ok
}
