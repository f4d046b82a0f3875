package auth

import (
	"context"
)

type contextKey string

const accountKey contextKey = "account"

// EchoAccountKey is the echo.Context key holding the *AccountContext.
const EchoAccountKey = "account"

// ContextWithAccount attaches the authorized account to ctx.
func ContextWithAccount(ctx context.Context, acct *AccountContext) context.Context {
	return context.WithValue(ctx, accountKey, acct)
}

// AccountFromContext returns the authorized account, or nil.
func AccountFromContext(ctx context.Context) *AccountContext {
	acct, _ := ctx.Value(accountKey).(*AccountContext)
	return acct
}
