package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/TooLazyToCreate/blood-connect/internal/model"
	"github.com/TooLazyToCreate/blood-connect/internal/repository"
	"github.com/TooLazyToCreate/blood-connect/internal/token"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const msgInvalidCredentials = "Invalid credentials"

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResult struct {
	Token   string
	Claims  *token.Claims
	Account *model.Account
}

type loginResponse struct {
	Token    string `json:"token"`
	UserType string `json:"userType"`
	UserName string `json:"userName,omitempty"`
}

// Login checks the credentials, issues a bearer token and records it as a
// new session of the account. Unknown email and wrong password fail identically.
func (service *AuthService) Login(ctx context.Context, kind model.AccountKind, email, password string) (*LoginResult, error) {
	email = model.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, newError(ErrValidation, "Email and password are required", nil)
	}

	account, err := service.accounts.GetByEmail(ctx, kind, email)
	if errors.Is(err, repository.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(service.dummyHash, []byte(password))
		return nil, newError(ErrAuth, msgInvalidCredentials, err)
	}
	if err != nil {
		return nil, newError(ErrInternal, genericServerMessage, err)
	}
	if err = bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, newError(ErrAuth, msgInvalidCredentials, err)
	}

	/* Имя кладём в токен только донорам, чтобы клиенту не ходить лишний раз за профилем */
	name := ""
	if kind == model.KindUser {
		name = account.Name
	}
	rawToken, claims, err := service.issuer.Issue(account.ID, string(kind), name)
	if errors.Is(err, token.ErrMissingSecret) {
		return nil, newError(ErrConfig, genericServerMessage, err)
	}
	if err != nil {
		return nil, newError(ErrInternal, genericServerMessage, err)
	}

	session := model.Session{Token: rawToken, IssuedAt: claims.IssuedTime().UTC()}
	if err = service.accounts.AddSession(ctx, kind, account.ID, session); err != nil {
		return nil, newError(ErrInternal, genericServerMessage, err)
	}
	account.AddSession(session.Token, session.IssuedAt)

	service.logger.Debug("New token was given",
		zap.String("account_id", account.ID),
		zap.String("kind", string(kind)))
	return &LoginResult{Token: rawToken, Claims: claims, Account: account}, nil
}

func (service *AuthService) handleLogin(kind model.AccountKind, w http.ResponseWriter, req *http.Request) {
	var creds Credentials
	if err := decodeJSON(req, &creds); err != nil {
		writeError(service.logger, w, req, err)
		return
	}
	result, err := service.Login(req.Context(), kind, creds.Email, creds.Password)
	if err != nil {
		writeError(service.logger, w, req, err, zap.String("kind", string(kind)))
		return
	}
	response := loginResponse{Token: result.Token, UserType: string(kind)}
	if kind == model.KindUser {
		response.UserName = result.Account.Name
	}
	writeJSON(w, http.StatusOK, response)
}

func (service *AuthService) HandleLoginUser(w http.ResponseWriter, req *http.Request) {
	service.handleLogin(model.KindUser, w, req)
}

func (service *AuthService) HandleLoginHospital(w http.ResponseWriter, req *http.Request) {
	service.handleLogin(model.KindHospital, w, req)
}
