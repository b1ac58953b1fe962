package repository

import (
	"context"
	"errors"
	"time"

	"github.com/TooLazyToCreate/blood-connect/internal/model"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

type AccountRepository interface {
	// Create fails with ErrDuplicate when kind+email is taken.
	Create(ctx context.Context, account *model.Account) error
	GetByEmail(ctx context.Context, kind model.AccountKind, email string) (*model.Account, error)
	GetByID(ctx context.Context, kind model.AccountKind, id string) (*model.Account, error)
	List(ctx context.Context, kind model.AccountKind) ([]model.Account, error)
	Count(ctx context.Context, kind model.AccountKind) (int64, error)
	AddSession(ctx context.Context, kind model.AccountKind, id string, session model.Session) error
	// RemoveSession is a no-op when the token is not stored.
	RemoveSession(ctx context.Context, kind model.AccountKind, id string, token string) error
	// DeleteExpiredSessions drops sessions issued before cutoff across all accounts.
	DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error)
}

type DonorRepository interface {
	Create(ctx context.Context, donor *model.Donor) error
	GetByID(ctx context.Context, id string) (*model.Donor, error)
	Update(ctx context.Context, donor *model.Donor) error
	// Search returns donors matching filter, newest first.
	Search(ctx context.Context, filter model.DonorFilter) ([]model.Donor, error)
}

type EmergencyRepository interface {
	Create(ctx context.Context, request *model.EmergencyRequest) error
	GetByID(ctx context.Context, id string) (*model.EmergencyRequest, error)
	// List returns requests newest first; an empty status lists everything.
	List(ctx context.Context, status model.EmergencyStatus) ([]model.EmergencyRequest, error)
	Update(ctx context.Context, request *model.EmergencyRequest) error
	Count(ctx context.Context, status model.EmergencyStatus) (int64, error)
}

// Storage bundles the repositories of one backend.
type Storage struct {
	Accounts    AccountRepository
	Donors      DonorRepository
	Emergencies EmergencyRepository
	Close       func(ctx context.Context) error
}
