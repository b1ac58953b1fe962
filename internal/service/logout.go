package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/TooLazyToCreate/blood-connect/internal/model"
	"github.com/TooLazyToCreate/blood-connect/internal/repository"
	"github.com/TooLazyToCreate/blood-connect/internal/token"
	"go.uber.org/zap"
)

const msgMissingAuthorization = "No authorization header, access denied"

// Logout revokes rawToken. The token is always verified in full first; a token
// that is valid but no longer stored is treated as already logged out.
func (service *AuthService) Logout(ctx context.Context, kind model.AccountKind, rawToken string) error {
	if rawToken == "" {
		return newError(ErrUnauthorized, msgMissingAuthorization, token.ErrMissing)
	}
	claims, err := service.verifyToken(rawToken, kind)
	if err != nil {
		return err
	}
	err = service.accounts.RemoveSession(ctx, kind, claims.AccountID, rawToken)
	if errors.Is(err, repository.ErrNotFound) {
		return newError(ErrNotFound, notFoundMessage(kind), err)
	}
	if err != nil {
		return newError(ErrInternal, "Logout failed. Please try again later.", err)
	}
	service.logger.Debug("Session revoked",
		zap.String("account_id", claims.AccountID),
		zap.String("kind", string(kind)))
	return nil
}

func (service *AuthService) handleLogout(kind model.AccountKind, w http.ResponseWriter, req *http.Request) {
	rawToken, err := token.FromHeader(req.Header.Get("Authorization"))
	if err != nil {
		writeError(service.logger, w, req, newError(ErrUnauthorized, msgMissingAuthorization, err))
		return
	}
	if err = service.Logout(req.Context(), kind, rawToken); err != nil {
		writeError(service.logger, w, req, err, zap.String("kind", string(kind)))
		return
	}
	writeMessage(w, http.StatusOK, "Logged out successfully")
}

func (service *AuthService) HandleLogoutUser(w http.ResponseWriter, req *http.Request) {
	service.handleLogout(model.KindUser, w, req)
}

func (service *AuthService) HandleLogoutHospital(w http.ResponseWriter, req *http.Request) {
	service.handleLogout(model.KindHospital, w, req)
}
