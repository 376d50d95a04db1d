package dispatch

import (
	"context"

	"github.com/ILLUVRSE/ledger/internal/identity"
)

type ctxKey string

const ctxKeyOperator ctxKey = "dispatch.operator"

// WithOperator attaches a resolved operator actor to ctx.
func WithOperator(ctx context.Context, actor *identity.Actor) context.Context {
	return context.WithValue(ctx, ctxKeyOperator, actor)
}

// OperatorFromContext returns the operator actor resolved for the current
// request, or nil if none authenticated.
func OperatorFromContext(ctx context.Context) *identity.Actor {
	v := ctx.Value(ctxKeyOperator)
	if v == nil {
		return nil
	}
	actor, _ := v.(*identity.Actor)
	return actor
}
