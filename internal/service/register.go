package service

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/TooLazyToCreate/blood-connect/internal/model"
	"github.com/TooLazyToCreate/blood-connect/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type UserRegistration struct {
	Name          string          `json:"name" validate:"required"`
	Email         string          `json:"email" validate:"required,mailbox"`
	Phone         string          `json:"phone"`
	Password      string          `json:"password" validate:"required"`
	BloodGroup    string          `json:"bloodGroup" validate:"required,bloodgroup"`
	Location      *model.Location `json:"location" validate:"required"`
	OrganDonation bool            `json:"organDonation"`
}

type HospitalRegistration struct {
	Email              string          `json:"email" validate:"required,mailbox"`
	Phone              string          `json:"phone"`
	Password           string          `json:"password" validate:"required"`
	HospitalName       string          `json:"hospitalName" validate:"required"`
	RegistrationNumber string          `json:"registrationNumber" validate:"required"`
	Location           *model.Location `json:"location" validate:"required"`
}

func normalizeLocation(l *model.Location) {
	if l != nil {
		trim(&l.City, &l.State)
	}
}

func (service *AuthService) RegisterUser(ctx context.Context, r UserRegistration) (*model.Account, error) {
	trim(&r.Name, &r.Email, &r.Phone, &r.BloodGroup)
	r.BloodGroup = strings.ToUpper(r.BloodGroup)
	normalizeLocation(r.Location)
	if err := validateStruct(&r); err != nil {
		return nil, err
	}
	account := &model.Account{
		Kind:          model.KindUser,
		Email:         r.Email,
		Phone:         r.Phone,
		Location:      *r.Location,
		Name:          r.Name,
		BloodGroup:    r.BloodGroup,
		OrganDonation: r.OrganDonation,
	}
	return account, service.register(ctx, account, r.Password)
}

func (service *AuthService) RegisterHospital(ctx context.Context, r HospitalRegistration) (*model.Account, error) {
	trim(&r.Email, &r.Phone, &r.HospitalName, &r.RegistrationNumber)
	normalizeLocation(r.Location)
	if err := validateStruct(&r); err != nil {
		return nil, err
	}
	account := &model.Account{
		Kind:               model.KindHospital,
		Email:              r.Email,
		Phone:              r.Phone,
		Location:           *r.Location,
		HospitalName:       r.HospitalName,
		RegistrationNumber: r.RegistrationNumber,
	}
	return account, service.register(ctx, account, r.Password)
}

/* Уникальность проверяется самим хранилищем при вставке, поэтому частичных записей не бывает */
func (service *AuthService) register(ctx context.Context, account *model.Account, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), service.cfg.BcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return newError(ErrValidation, "Password must be at most 72 bytes", err)
	}
	if err != nil {
		return newError(ErrInternal, "Registration failed. Please try again later.", err)
	}
	account.ID = uuid.NewString()
	account.Email = model.NormalizeEmail(account.Email)
	account.PasswordHash = string(hash)
	account.Sessions = []model.Session{}
	account.CreatedAt = service.now().UTC()

	err = service.accounts.Create(ctx, account)
	if errors.Is(err, repository.ErrDuplicate) {
		return newError(ErrConflict, "Email already in use", err)
	}
	if err != nil {
		return newError(ErrInternal, "Registration failed. Please try again later.", err)
	}
	service.logger.Debug("Account registered",
		zap.String("account_id", account.ID),
		zap.String("kind", string(account.Kind)))
	return nil
}

func (service *AuthService) HandleRegisterUser(w http.ResponseWriter, req *http.Request) {
	var r UserRegistration
	if err := decodeJSON(req, &r); err != nil {
		writeError(service.logger, w, req, err)
		return
	}
	if _, err := service.RegisterUser(req.Context(), r); err != nil {
		writeError(service.logger, w, req, err, zap.String("kind", string(model.KindUser)))
		return
	}
	writeMessage(w, http.StatusCreated, "User registered successfully")
}

func (service *AuthService) HandleRegisterHospital(w http.ResponseWriter, req *http.Request) {
	var r HospitalRegistration
	if err := decodeJSON(req, &r); err != nil {
		writeError(service.logger, w, req, err)
		return
	}
	if _, err := service.RegisterHospital(req.Context(), r); err != nil {
		writeError(service.logger, w, req, err, zap.String("kind", string(model.KindHospital)))
		return
	}
	writeMessage(w, http.StatusCreated, "Hospital registered successfully")
}
