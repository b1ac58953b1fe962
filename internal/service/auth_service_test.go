package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/TooLazyToCreate/blood-connect/config"
	"github.com/TooLazyToCreate/blood-connect/internal/model"
	"github.com/TooLazyToCreate/blood-connect/internal/repository"
	"github.com/TooLazyToCreate/blood-connect/internal/token"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

var testSecret = []byte("service-test-secret-0123456789abcdef")

func newTestConfig() *config.Config {
	cfg := &config.Config{BcryptCost: bcrypt.MinCost, Secret: testSecret}
	cfg.ApplyDefaults()
	return cfg
}

func newTestAuthService(t *testing.T) (*AuthService, *repository.Storage) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	storage := repository.NewMemoryStorage(logger)
	cfg := newTestConfig()
	issuer := token.NewIssuer(cfg.Secret, cfg.TokenLifetime())
	return NewAuthService(logger, cfg, issuer, storage.Accounts), storage
}

func donorRegistration(email string) UserRegistration {
	return UserRegistration{
		Name:       "A",
		Email:      email,
		Password:   "secret1",
		BloodGroup: "O+",
		Location:   &model.Location{City: "X", State: "Y"},
	}
}

func hospitalRegistration(email string) HospitalRegistration {
	return HospitalRegistration{
		Email:              email,
		Password:           "secret1",
		HospitalName:       "City General",
		RegistrationNumber: "REG-1",
		Location:           &model.Location{City: "Pune", State: "MH"},
	}
}

func TestRegister_DuplicateEmailIsCaseInsensitive(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	account, err := svc.RegisterUser(ctx, donorRegistration("a@x.com"))
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", account.Email)
	assert.NotEqual(t, "secret1", account.PasswordHash)

	_, err = svc.RegisterUser(ctx, donorRegistration("A@X.com"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "Email already in use", PublicMessage(err))
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
}

func TestRegister_SameEmailDifferentKinds(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.RegisterUser(ctx, donorRegistration("shared@x.com"))
	require.NoError(t, err)
	_, err = svc.RegisterHospital(ctx, hospitalRegistration("shared@x.com"))
	assert.NoError(t, err)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(r *UserRegistration)
		message string
	}{
		{"missing name", func(r *UserRegistration) { r.Name = "" }, msgRequiredFields},
		{"blank name", func(r *UserRegistration) { r.Name = "   " }, msgRequiredFields},
		{"missing password", func(r *UserRegistration) { r.Password = "" }, msgRequiredFields},
		{"missing blood group", func(r *UserRegistration) { r.BloodGroup = "" }, msgRequiredFields},
		{"missing location", func(r *UserRegistration) { r.Location = nil }, msgRequiredFields},
		{"missing city", func(r *UserRegistration) { r.Location.City = "" }, msgRequiredFields},
		{"malformed email", func(r *UserRegistration) { r.Email = "not-an-email" }, msgInvalidEmail},
		{"email without tld", func(r *UserRegistration) { r.Email = "a@x" }, msgInvalidEmail},
		{"unknown blood group", func(r *UserRegistration) { r.BloodGroup = "C+" }, msgInvalidBlood},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestAuthService(t)
			r := donorRegistration("v@x.com")
			tt.modify(&r)

			_, err := svc.RegisterUser(context.Background(), r)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, tt.message, PublicMessage(err))
			assert.Equal(t, http.StatusBadRequest, StatusCode(err))
		})
	}
}

func TestRegister_MissingFieldCreatesNoRecord(t *testing.T) {
	svc, storage := newTestAuthService(t)
	ctx := context.Background()
	r := hospitalRegistration("h@x.com")
	r.RegistrationNumber = ""

	_, err := svc.RegisterHospital(ctx, r)
	require.ErrorIs(t, err, ErrValidation)

	count, err := storage.Accounts.Count(ctx, model.KindHospital)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = svc.Login(ctx, model.KindHospital, "h@x.com", "secret1")
	assert.ErrorIs(t, err, ErrAuth)
}

func TestRegister_LowercaseBloodGroupIsAccepted(t *testing.T) {
	svc, _ := newTestAuthService(t)
	r := donorRegistration("lower@x.com")
	r.BloodGroup = "ab-"

	account, err := svc.RegisterUser(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "AB-", account.BloodGroup)
}

func TestLogin_InvalidCredentialsAreIndistinguishable(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()
	_, err := svc.RegisterUser(ctx, donorRegistration("a@x.com"))
	require.NoError(t, err)

	_, wrongPassword := svc.Login(ctx, model.KindUser, "a@x.com", "wrong")
	_, unknownEmail := svc.Login(ctx, model.KindUser, "nobody@x.com", "secret1")

	require.Error(t, wrongPassword)
	require.Error(t, unknownEmail)
	assert.Equal(t, PublicMessage(wrongPassword), PublicMessage(unknownEmail))
	assert.Equal(t, StatusCode(wrongPassword), StatusCode(unknownEmail))
	assert.Equal(t, msgInvalidCredentials, PublicMessage(unknownEmail))
}

func TestLogin_EmptyCredentials(t *testing.T) {
	svc, _ := newTestAuthService(t)

	_, err := svc.Login(context.Background(), model.KindUser, "", "secret1")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "Email and password are required", PublicMessage(err))
}

func TestLogin_WrongKind(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()
	_, err := svc.RegisterUser(ctx, donorRegistration("a@x.com"))
	require.NoError(t, err)

	_, err = svc.Login(ctx, model.KindHospital, "a@x.com", "secret1")
	assert.ErrorIs(t, err, ErrAuth)
}

func TestLogin_RecordsSessionAndClaims(t *testing.T) {
	svc, storage := newTestAuthService(t)
	ctx := context.Background()
	registered, err := svc.RegisterUser(ctx, donorRegistration("a@x.com"))
	require.NoError(t, err)

	result, err := svc.Login(ctx, model.KindUser, "  A@X.com ", "secret1")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, result.Claims.AccountID)
	assert.Equal(t, "user", result.Claims.Type)
	assert.Equal(t, "A", result.Claims.Name)
	assert.Equal(t, time.Hour, result.Claims.ExpiresTime().Sub(result.Claims.IssuedTime()))

	stored, err := storage.Accounts.GetByID(ctx, model.KindUser, registered.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasSession(result.Token))
}

func TestLogin_HospitalTokenHasNoName(t *testing.T) {
	svc, storage := newTestAuthService(t)
	ctx := context.Background()
	hospital, err := svc.RegisterHospital(ctx, hospitalRegistration("h@x.com"))
	require.NoError(t, err)

	result, err := svc.Login(ctx, model.KindHospital, "h@x.com", "secret1")
	require.NoError(t, err)
	assert.Empty(t, result.Claims.Name)
	assert.Equal(t, "hospital", result.Claims.Type)

	stored, err := storage.Accounts.GetByID(ctx, model.KindHospital, hospital.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasSession(result.Token))
}

func TestLogin_MissingSecretIsConfigError(t *testing.T) {
	logger := zaptest.NewLogger(t)
	storage := repository.NewMemoryStorage(logger)
	cfg := newTestConfig()
	working := NewAuthService(logger, cfg, token.NewIssuer(cfg.Secret, time.Hour), storage.Accounts)
	_, err := working.RegisterUser(context.Background(), donorRegistration("a@x.com"))
	require.NoError(t, err)

	broken := NewAuthService(logger, cfg, token.NewIssuer(nil, time.Hour), storage.Accounts)
	_, err = broken.Login(context.Background(), model.KindUser, "a@x.com", "secret1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
	assert.ErrorIs(t, err, token.ErrMissingSecret)
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
}

func TestLogout_IsIdempotent(t *testing.T) {
	svc, storage := newTestAuthService(t)
	ctx := context.Background()
	_, err := svc.RegisterUser(ctx, donorRegistration("a@x.com"))
	require.NoError(t, err)
	result, err := svc.Login(ctx, model.KindUser, "A@X.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, model.KindUser, result.Token))
	require.NoError(t, svc.Logout(ctx, model.KindUser, result.Token))

	stored, err := storage.Accounts.GetByID(ctx, model.KindUser, result.Account.ID)
	require.NoError(t, err)
	assert.False(t, stored.HasSession(result.Token))

	_, _, err = svc.Authenticate(ctx, result.Token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLogout_KeepsOtherSessions(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()
	_, err := svc.RegisterUser(ctx, donorRegistration("a@x.com"))
	require.NoError(t, err)
	first, err := svc.Login(ctx, model.KindUser, "a@x.com", "secret1")
	require.NoError(t, err)
	second, err := svc.Login(ctx, model.KindUser, "a@x.com", "secret1")
	require.NoError(t, err)
	require.NotEqual(t, first.Token, second.Token)

	require.NoError(t, svc.Logout(ctx, model.KindUser, first.Token))

	_, _, err = svc.Authenticate(ctx, second.Token)
	assert.NoError(t, err)
}

func TestLogout_HospitalRepeatedLogoutSucceeds(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()
	_, err := svc.RegisterHospital(ctx, hospitalRegistration("h@x.com"))
	require.NoError(t, err)
	result, err := svc.Login(ctx, model.KindHospital, "h@x.com", "secret1")
	require.NoError(t, err)

	assert.NoError(t, svc.Logout(ctx, model.KindHospital, result.Token))
	assert.NoError(t, svc.Logout(ctx, model.KindHospital, result.Token))
	_, _, err = svc.Authenticate(ctx, result.Token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLogout_Rejections(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()
	_, err := svc.RegisterUser(ctx, donorRegistration("a@x.com"))
	require.NoError(t, err)
	result, err := svc.Login(ctx, model.KindUser, "a@x.com", "secret1")
	require.NoError(t, err)

	foreign, _, err := token.NewIssuer([]byte("another-secret-0123456789abcdefgh"), time.Hour).Issue(result.Account.ID, "user", "")
	require.NoError(t, err)
	orphan, _, err := svc.issuer.Issue(uuid.NewString(), "user", "")
	require.NoError(t, err)

	tests := []struct {
		name    string
		kind    model.AccountKind
		token   string
		kindErr error
		status  int
	}{
		{"missing token", model.KindUser, "", ErrUnauthorized, http.StatusUnauthorized},
		{"garbage", model.KindUser, "not.a.token", ErrUnauthorized, http.StatusUnauthorized},
		{"wrong secret", model.KindUser, foreign, ErrUnauthorized, http.StatusUnauthorized},
		{"wrong account kind", model.KindHospital, result.Token, ErrUnauthorized, http.StatusUnauthorized},
		{"unknown account", model.KindUser, orphan, ErrNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Logout(ctx, tt.kind, tt.token)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kindErr)
			assert.Equal(t, tt.status, StatusCode(err))
		})
	}
}

func TestExpiredTokenIsRejected(t *testing.T) {
	svc, storage := newTestAuthService(t)
	ctx := context.Background()
	account, err := svc.RegisterUser(ctx, donorRegistration("a@x.com"))
	require.NoError(t, err)

	past := token.NewIssuer(testSecret, time.Hour).WithClock(func() time.Time {
		return time.Now().Add(-61 * time.Minute)
	})
	raw, claims, err := past.Issue(account.ID, "user", "A")
	require.NoError(t, err)
	require.NoError(t, storage.Accounts.AddSession(ctx, model.KindUser, account.ID,
		model.Session{Token: raw, IssuedAt: claims.IssuedTime()}))

	_, _, err = svc.Authenticate(ctx, raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, "Token has expired", PublicMessage(err))

	err = svc.Logout(ctx, model.KindUser, raw)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestPruneSessions(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()
	_, err := svc.RegisterUser(ctx, donorRegistration("a@x.com"))
	require.NoError(t, err)
	result, err := svc.Login(ctx, model.KindUser, "a@x.com", "secret1")
	require.NoError(t, err)

	pruned, err := svc.PruneSessions(ctx)
	require.NoError(t, err)
	assert.Zero(t, pruned)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	pruned, err = svc.PruneSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	_, _, err = svc.Authenticate(ctx, result.Token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRequireSession(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()
	_, err := svc.RegisterUser(ctx, donorRegistration("a@x.com"))
	require.NoError(t, err)
	user, err := svc.Login(ctx, model.KindUser, "a@x.com", "secret1")
	require.NoError(t, err)

	var seen *model.Account
	next := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		seen = AccountFromContext(req.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name    string
		handler http.Handler
		header  string
		status  int
	}{
		{"no header", svc.RequireSession()(next), "", http.StatusUnauthorized},
		{"bare bearer", svc.RequireSession()(next), "Bearer ", http.StatusUnauthorized},
		{"any kind", svc.RequireSession()(next), "Bearer " + user.Token, http.StatusNoContent},
		{"matching kind", svc.RequireSession(model.KindUser)(next), "Bearer " + user.Token, http.StatusNoContent},
		{"wrong kind", svc.RequireSession(model.KindHospital)(next), "Bearer " + user.Token, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			tt.handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusNoContent {
				require.NotNil(t, seen)
				assert.Equal(t, user.Account.ID, seen.ID)
			} else {
				assert.Nil(t, seen)
			}
		})
	}
}
