package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

type contextKey string

const (
	ctxUserID     contextKey = "user_id"
	ctxRole       contextKey = "actor_role"
	ctxSupplierID contextKey = "supplier_id"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

func SupplierIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxSupplierID).(string); ok {
		return v
	}
	return ""
}

// Actor is the authenticated caller as seen by controllers.
type Actor struct {
	UserID     uuid.UUID
	Role       enums.Role
	SupplierID *uuid.UUID
}

// ActorFromContext rebuilds the caller identity seeded by Auth. ok is false when the
// request was not authenticated.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	userID, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil {
		return Actor{}, false
	}
	actor := Actor{UserID: userID, Role: enums.Role(RoleFromContext(ctx))}
	if raw := SupplierIDFromContext(ctx); raw != "" {
		if supplierID, err := uuid.Parse(raw); err == nil {
			actor.SupplierID = &supplierID
		}
	}
	return actor, true
}

// RequireUserID returns the authenticated user or an UNAUTHORIZED error.
func RequireUserID(ctx context.Context) (uuid.UUID, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return actor.UserID, nil
}

// RequireSupplierID returns the caller's supplier account.
func RequireSupplierID(ctx context.Context) (uuid.UUID, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	if actor.SupplierID == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "supplier context required")
	}
	return *actor.SupplierID, nil
}

// WithActor injects an identity into the context. Used by tests and internal callers
// that bypass token parsing.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, actor.UserID.String())
	ctx = context.WithValue(ctx, ctxRole, string(actor.Role))
	if actor.SupplierID != nil {
		ctx = context.WithValue(ctx, ctxSupplierID, actor.SupplierID.String())
	}
	return ctx
}
