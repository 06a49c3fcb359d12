package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxRole
	ctxAction
)

func WithIdentity(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxRole, role)
	return ctx
}

func UserID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxUserID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("user_id not in context")
}

func Role(ctx context.Context) (string, error) {
	v := ctx.Value(ctxRole)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("role not in context")
}

// WithAuthorizedAction records the action an action token authorized for this request.
func WithAuthorizedAction(ctx context.Context, action string) context.Context {
	return context.WithValue(ctx, ctxAction, action)
}

func AuthorizedAction(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(ctxAction).(string)
	return s, ok && s != ""
}
