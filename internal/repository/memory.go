package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/TooLazyToCreate/blood-connect/internal/model"
	"go.uber.org/zap"
)

/* In-process хранилище: для разработки (DATABASE_URL=memory://) и тестов.
 * Все структуры копируются на входе и выходе, чтобы вызывающий не мог менять состояние в обход методов. */

type memoryAccounts struct {
	mu       sync.RWMutex
	logger   *zap.Logger
	accounts map[string]*model.Account
}

func NewMemoryStorage(logger *zap.Logger) *Storage {
	return &Storage{
		Accounts:    &memoryAccounts{logger: logger, accounts: make(map[string]*model.Account)},
		Donors:      &memoryDonors{donors: make(map[string]*model.Donor)},
		Emergencies: &memoryEmergencies{requests: make(map[string]*model.EmergencyRequest)},
		Close:       func(context.Context) error { return nil },
	}
}

func copyAccount(a *model.Account) *model.Account {
	c := *a
	c.Sessions = append([]model.Session(nil), a.Sessions...)
	return &c
}

func (r *memoryAccounts) Create(_ context.Context, account *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Kind == account.Kind && a.Email == account.Email {
			return ErrDuplicate
		}
	}
	r.accounts[account.ID] = copyAccount(account)
	return nil
}

func (r *memoryAccounts) GetByEmail(_ context.Context, kind model.AccountKind, email string) (*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if a.Kind == kind && a.Email == email {
			return copyAccount(a), nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryAccounts) GetByID(_ context.Context, kind model.AccountKind, id string) (*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok || a.Kind != kind {
		return nil, ErrNotFound
	}
	return copyAccount(a), nil
}

func (r *memoryAccounts) List(_ context.Context, kind model.AccountKind) ([]model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]model.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		if a.Kind == kind {
			result = append(result, *copyAccount(a))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (r *memoryAccounts) Count(_ context.Context, kind model.AccountKind) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, a := range r.accounts {
		if a.Kind == kind {
			n++
		}
	}
	return n, nil
}

func (r *memoryAccounts) AddSession(_ context.Context, kind model.AccountKind, id string, session model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok || a.Kind != kind {
		return ErrNotFound
	}
	a.AddSession(session.Token, session.IssuedAt)
	return nil
}

func (r *memoryAccounts) RemoveSession(_ context.Context, kind model.AccountKind, id string, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok || a.Kind != kind {
		return ErrNotFound
	}
	a.RemoveSession(token)
	return nil
}

func (r *memoryAccounts) DeleteExpiredSessions(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pruned int64
	for _, a := range r.accounts {
		pruned += int64(a.PruneSessions(cutoff))
	}
	r.logger.Debug("Pruned in-memory sessions", zap.Int64("count", pruned))
	return pruned, nil
}

type memoryDonors struct {
	mu     sync.RWMutex
	donors map[string]*model.Donor
}

func (r *memoryDonors) Create(_ context.Context, donor *model.Donor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.donors[donor.ID]; ok {
		return ErrDuplicate
	}
	d := *donor
	r.donors[donor.ID] = &d
	return nil
}

func (r *memoryDonors) GetByID(_ context.Context, id string) (*model.Donor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.donors[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *d
	return &c, nil
}

func (r *memoryDonors) Update(_ context.Context, donor *model.Donor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.donors[donor.ID]; !ok {
		return ErrNotFound
	}
	d := *donor
	r.donors[donor.ID] = &d
	return nil
}

func (r *memoryDonors) Search(_ context.Context, filter model.DonorFilter) ([]model.Donor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]model.Donor, 0)
	for _, d := range r.donors {
		if filter.Matches(d) {
			result = append(result, *d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

type memoryEmergencies struct {
	mu       sync.RWMutex
	requests map[string]*model.EmergencyRequest
}

func (r *memoryEmergencies) Create(_ context.Context, request *model.EmergencyRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requests[request.ID]; ok {
		return ErrDuplicate
	}
	c := *request
	r.requests[request.ID] = &c
	return nil
}

func (r *memoryEmergencies) GetByID(_ context.Context, id string) (*model.EmergencyRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *e
	return &c, nil
}

func (r *memoryEmergencies) List(_ context.Context, status model.EmergencyStatus) ([]model.EmergencyRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]model.EmergencyRequest, 0)
	for _, e := range r.requests {
		if status == "" || e.Status == status {
			result = append(result, *e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (r *memoryEmergencies) Update(_ context.Context, request *model.EmergencyRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requests[request.ID]; !ok {
		return ErrNotFound
	}
	c := *request
	r.requests[request.ID] = &c
	return nil
}

func (r *memoryEmergencies) Count(_ context.Context, status model.EmergencyStatus) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, e := range r.requests {
		if status == "" || e.Status == status {
			n++
		}
	}
	return n, nil
}
