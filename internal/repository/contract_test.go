package repository

import (
	"context"
	"testing"
	"time"

	"github.com/TooLazyToCreate/blood-connect/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStorageContract exercises the behaviour every backend has to share.
func runStorageContract(t *testing.T, storage *Storage) {
	t.Helper()
	t.Run("accounts", func(t *testing.T) { testAccounts(t, storage.Accounts) })
	t.Run("sessions", func(t *testing.T) { testSessions(t, storage.Accounts) })
	t.Run("donors", func(t *testing.T) { testDonors(t, storage.Donors) })
	t.Run("emergencies", func(t *testing.T) { testEmergencies(t, storage.Emergencies) })
}

func newAccount(kind model.AccountKind) *model.Account {
	return &model.Account{
		ID:           uuid.NewString(),
		Kind:         kind,
		Email:        uuid.NewString()[:8] + "@example.com",
		PasswordHash: "hash",
		Name:         "Ann",
		BloodGroup:   "O+",
		Location:     model.Location{City: "Pune", State: "MH"},
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
}

func testAccounts(t *testing.T, repo AccountRepository) {
	ctx := context.Background()
	user := newAccount(model.KindUser)
	require.NoError(t, repo.Create(ctx, user))

	dup := newAccount(model.KindUser)
	dup.Email = user.Email
	assert.ErrorIs(t, repo.Create(ctx, dup), ErrDuplicate)

	// the same email is free for the other account kind
	hospital := newAccount(model.KindHospital)
	hospital.Email = user.Email
	hospital.HospitalName = "City General"
	require.NoError(t, repo.Create(ctx, hospital))

	got, err := repo.GetByEmail(ctx, model.KindUser, user.Email)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "Ann", got.Name)

	got, err = repo.GetByID(ctx, model.KindHospital, hospital.ID)
	require.NoError(t, err)
	assert.Equal(t, "City General", got.HospitalName)

	_, err = repo.GetByID(ctx, model.KindHospital, user.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetByEmail(ctx, model.KindUser, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	hospitals, err := repo.List(ctx, model.KindHospital)
	require.NoError(t, err)
	ids := make([]string, 0, len(hospitals))
	for _, h := range hospitals {
		ids = append(ids, h.ID)
	}
	assert.Contains(t, ids, hospital.ID)
	assert.NotContains(t, ids, user.ID)

	n, err := repo.Count(ctx, model.KindHospital)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))
}

func testSessions(t *testing.T, repo AccountRepository) {
	ctx := context.Background()
	a := newAccount(model.KindUser)
	require.NoError(t, repo.Create(ctx, a))

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, repo.AddSession(ctx, model.KindUser, a.ID, model.Session{Token: "old-" + a.ID, IssuedAt: now.Add(-3 * time.Hour)}))
	require.NoError(t, repo.AddSession(ctx, model.KindUser, a.ID, model.Session{Token: "new-" + a.ID, IssuedAt: now}))

	got, err := repo.GetByID(ctx, model.KindUser, a.ID)
	require.NoError(t, err)
	assert.True(t, got.HasSession("old-"+a.ID))
	assert.True(t, got.HasSession("new-"+a.ID))

	require.NoError(t, repo.RemoveSession(ctx, model.KindUser, a.ID, "new-"+a.ID))
	// removing an unknown token is not an error
	require.NoError(t, repo.RemoveSession(ctx, model.KindUser, a.ID, "new-"+a.ID))

	pruned, err := repo.DeleteExpiredSessions(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pruned, int64(1))

	got, err = repo.GetByID(ctx, model.KindUser, a.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Sessions)

	assert.ErrorIs(t, repo.AddSession(ctx, model.KindHospital, a.ID, model.Session{Token: "x"}), ErrNotFound)
	assert.ErrorIs(t, repo.RemoveSession(ctx, model.KindUser, uuid.NewString(), "x"), ErrNotFound)
}

func testDonors(t *testing.T, repo DonorRepository) {
	ctx := context.Background()
	city := "City-" + uuid.NewString()[:6]
	now := time.Now().UTC().Truncate(time.Millisecond)
	first := &model.Donor{ID: uuid.NewString(), Name: "A", Email: "a@x.com", Phone: "1", BloodGroup: "O+",
		City: city, State: "MH", CreatedAt: now.Add(-time.Minute), UpdatedAt: now}
	second := &model.Donor{ID: uuid.NewString(), Name: "B", Email: "b@x.com", Phone: "2", BloodGroup: "A-",
		City: city, State: "MH", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	found, err := repo.Search(ctx, model.DonorFilter{City: city})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, second.ID, found[0].ID, "newest first")

	found, err = repo.Search(ctx, model.DonorFilter{BloodGroup: "O+", City: city, State: "mh"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, first.ID, found[0].ID)

	first.Phone = "999"
	require.NoError(t, repo.Update(ctx, first))
	got, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "999", got.Phone)

	assert.ErrorIs(t, repo.Update(ctx, &model.Donor{ID: uuid.NewString()}), ErrNotFound)
	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func testEmergencies(t *testing.T, repo EmergencyRepository) {
	ctx := context.Background()
	before, err := repo.Count(ctx, model.EmergencyOpen)
	require.NoError(t, err)

	e := &model.EmergencyRequest{ID: uuid.NewString(), Name: "Bob", Phone: "1", BloodGroup: "B+", Units: 2,
		Hospital: "City General", Location: model.Location{City: "Pune", State: "MH"},
		Status: model.EmergencyOpen, CreatedAt: time.Now().UTC().Truncate(time.Millisecond)}
	require.NoError(t, repo.Create(ctx, e))

	after, err := repo.Count(ctx, model.EmergencyOpen)
	require.NoError(t, err)
	assert.Equal(t, before+1, after)

	resolvedAt := time.Now().UTC().Truncate(time.Millisecond)
	e.Status = model.EmergencyResolved
	e.ResolvedAt = &resolvedAt
	require.NoError(t, repo.Update(ctx, e))

	got, err := repo.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EmergencyResolved, got.Status)
	require.NotNil(t, got.ResolvedAt)

	open, err := repo.List(ctx, model.EmergencyOpen)
	require.NoError(t, err)
	for _, o := range open {
		assert.NotEqual(t, e.ID, o.ID)
	}
	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	assert.NotEmpty(t, all)

	assert.ErrorIs(t, repo.Update(ctx, &model.EmergencyRequest{ID: uuid.NewString()}), ErrNotFound)
}
