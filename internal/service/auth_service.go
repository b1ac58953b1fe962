package service

import (
	"context"
	"errors"
	"time"

	"github.com/TooLazyToCreate/blood-connect/config"
	"github.com/TooLazyToCreate/blood-connect/internal/model"
	"github.com/TooLazyToCreate/blood-connect/internal/repository"
	"github.com/TooLazyToCreate/blood-connect/internal/token"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type AuthService struct {
	logger    *zap.Logger
	cfg       *config.Config
	accounts  repository.AccountRepository
	issuer    *token.Issuer
	dummyHash []byte
	now       func() time.Time
}

func NewAuthService(logger *zap.Logger, cfg *config.Config, issuer *token.Issuer, accounts repository.AccountRepository) *AuthService {
	/* Хэш-пустышка: для несуществующего email тоже тратим время на bcrypt,
	 * чтобы по времени ответа нельзя было понять, зарегистрирован ли адрес. */
	dummyHash, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cfg.BcryptCost)
	if err != nil {
		logger.Warn("Failed to generate dummy bcrypt hash", zap.Error(err))
	}
	return &AuthService{
		logger:    logger,
		cfg:       cfg,
		accounts:  accounts,
		issuer:    issuer,
		dummyHash: dummyHash,
		now:       time.Now,
	}
}

func notFoundMessage(kind model.AccountKind) string {
	if kind == model.KindHospital {
		return "Hospital not found"
	}
	return "User not found"
}

// verifyToken checks signature and expiry and that the token belongs to kind.
func (service *AuthService) verifyToken(rawToken string, kinds ...model.AccountKind) (*token.Claims, error) {
	claims, err := service.issuer.Verify(rawToken)
	if errors.Is(err, token.ErrMissingSecret) {
		return nil, newError(ErrConfig, genericServerMessage, err)
	}
	if errors.Is(err, token.ErrExpired) {
		return nil, newError(ErrUnauthorized, "Token has expired", err)
	}
	if err != nil {
		return nil, newError(ErrUnauthorized, "Invalid token", err)
	}
	if len(kinds) > 0 && !containsKind(kinds, model.AccountKind(claims.Type)) {
		return nil, newError(ErrUnauthorized, "Invalid token", errors.New("unexpected account type "+claims.Type))
	}
	return claims, nil
}

func containsKind(kinds []model.AccountKind, kind model.AccountKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Authenticate accepts rawToken only while it is active: valid signature,
// not expired, and still present in the account's session list.
func (service *AuthService) Authenticate(ctx context.Context, rawToken string) (*model.Account, *token.Claims, error) {
	claims, err := service.verifyToken(rawToken, model.KindUser, model.KindHospital)
	if err != nil {
		return nil, nil, err
	}
	kind := model.AccountKind(claims.Type)
	account, err := service.accounts.GetByID(ctx, kind, claims.AccountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, newError(ErrUnauthorized, "Invalid token", err)
	}
	if err != nil {
		return nil, nil, newError(ErrInternal, genericServerMessage, err)
	}
	if !account.HasSession(rawToken) {
		return nil, nil, newError(ErrUnauthorized, "Session has been revoked", nil)
	}
	return account, claims, nil
}

// PruneSessions removes sessions older than the token lifetime from every account.
func (service *AuthService) PruneSessions(ctx context.Context) (int64, error) {
	return service.accounts.DeleteExpiredSessions(ctx, service.now().Add(-service.issuer.Lifetime()))
}
