package service

import (
	"context"
	"net/http"

	"github.com/TooLazyToCreate/blood-connect/internal/model"
	"github.com/TooLazyToCreate/blood-connect/internal/token"
	"go.uber.org/zap"
)

type contextKey struct{ name string }

var accountContextKey = &contextKey{"account"}

// AccountFromContext returns the account placed by RequireSession, or nil.
func AccountFromContext(ctx context.Context) *model.Account {
	account, _ := ctx.Value(accountContextKey).(*model.Account)
	return account
}

func withAccount(ctx context.Context, account *model.Account) context.Context {
	return context.WithValue(ctx, accountContextKey, account)
}

// RequireSession lets through only requests carrying an active bearer token.
// With kinds given, accounts of any other kind get 403.
func (service *AuthService) RequireSession(kinds ...model.AccountKind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			rawToken, err := token.FromHeader(req.Header.Get("Authorization"))
			if err != nil {
				writeError(service.logger, w, req, newError(ErrUnauthorized, msgMissingAuthorization, err))
				return
			}
			account, _, err := service.Authenticate(req.Context(), rawToken)
			if err != nil {
				writeError(service.logger, w, req, err)
				return
			}
			if len(kinds) > 0 && !containsKind(kinds, account.Kind) {
				writeError(service.logger, w, req, newError(ErrForbidden, "Access denied", nil),
					zap.String("account_id", account.ID),
					zap.String("kind", string(account.Kind)))
				return
			}
			next.ServeHTTP(w, req.WithContext(withAccount(req.Context(), account)))
		})
	}
}
