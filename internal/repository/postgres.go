package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/TooLazyToCreate/blood-connect/internal/model"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

//go:embed schema.sql
var postgresSchema string

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// NewPostgresStorage opens dsn with lib/pq and applies the schema.
func NewPostgresStorage(ctx context.Context, logger *zap.Logger, dsn string) (*Storage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err = db.ExecContext(ctx, postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	logger.Info("Connected to PostgreSQL")
	return &Storage{
		Accounts:    NewAccountRepository(logger, db),
		Donors:      NewDonorRepository(logger, db),
		Emergencies: NewEmergencyRepository(logger, db),
		Close:       func(context.Context) error { return db.Close() },
	}, nil
}

type accountRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewAccountRepository(logger *zap.Logger, db *sql.DB) AccountRepository {
	return &accountRepo{
		db:     db,
		logger: logger,
	}
}

const accountColumns = `id, kind, email, password_hash, phone, name, blood_group, organ_donation,
	hospital_name, registration_number, city, state, created_at`

func scanAccount(row interface{ Scan(...any) error }) (*model.Account, error) {
	a := &model.Account{}
	var kind string
	err := row.Scan(&a.ID, &kind, &a.Email, &a.PasswordHash, &a.Phone, &a.Name, &a.BloodGroup,
		&a.OrganDonation, &a.HospitalName, &a.RegistrationNumber, &a.Location.City, &a.Location.State, &a.CreatedAt)
	a.Kind = model.AccountKind(kind)
	return a, err
}

func (r *accountRepo) Create(ctx context.Context, a *model.Account) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, string(a.Kind), a.Email, a.PasswordHash, a.Phone, a.Name, a.BloodGroup, a.OrganDonation,
		a.HospitalName, a.RegistrationNumber, a.Location.City, a.Location.State, a.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	for _, s := range a.Sessions {
		if _, err = tx.ExecContext(ctx, `INSERT INTO sessions (token, account_id, issued_at) VALUES ($1, $2, $3)`,
			s.Token, a.ID, s.IssuedAt); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *accountRepo) getOne(ctx context.Context, query string, args ...any) (*model.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if a.Sessions, err = r.sessions(ctx, a.ID); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *accountRepo) sessions(ctx context.Context, accountID string) ([]model.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT token, issued_at FROM sessions WHERE account_id = $1 ORDER BY issued_at`, accountID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()
	result := make([]model.Session, 0, 4)
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(&s.Token, &s.IssuedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *accountRepo) GetByEmail(ctx context.Context, kind model.AccountKind, email string) (*model.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE kind = $1 AND email = $2`, string(kind), email)
}

func (r *accountRepo) GetByID(ctx context.Context, kind model.AccountKind, id string) (*model.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE kind = $1 AND id = $2`, string(kind), id)
}

// List does not load sessions.
func (r *accountRepo) List(ctx context.Context, kind model.AccountKind) ([]model.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE kind = $1 ORDER BY created_at DESC`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()
	result := make([]model.Account, 0, 10)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *accountRepo) Count(ctx context.Context, kind model.AccountKind) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM accounts WHERE kind = $1`, string(kind)).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *accountRepo) exists(ctx context.Context, kind model.AccountKind, id string) error {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE kind = $1 AND id = $2`, string(kind), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *accountRepo) AddSession(ctx context.Context, kind model.AccountKind, id string, session model.Session) error {
	if err := r.exists(ctx, kind, id); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO sessions (token, account_id, issued_at) VALUES ($1, $2, $3)`,
		session.Token, id, session.IssuedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *accountRepo) RemoveSession(ctx context.Context, kind model.AccountKind, id string, token string) error {
	if err := r.exists(ctx, kind, id); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE account_id = $1 AND token = $2`, id, token); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *accountRepo) DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE issued_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	r.logger.Debug("Pruned sessions", zap.Int64("count", n))
	return n, nil
}

type donorRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewDonorRepository(logger *zap.Logger, db *sql.DB) DonorRepository {
	return &donorRepo{
		db:     db,
		logger: logger,
	}
}

const donorColumns = `id, name, email, phone, blood_group, city, state, created_at, updated_at`

func scanDonor(row interface{ Scan(...any) error }) (*model.Donor, error) {
	d := &model.Donor{}
	return d, row.Scan(&d.ID, &d.Name, &d.Email, &d.Phone, &d.BloodGroup, &d.City, &d.State, &d.CreatedAt, &d.UpdatedAt)
}

func (r *donorRepo) Create(ctx context.Context, d *model.Donor) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO donors (`+donorColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.Name, d.Email, d.Phone, d.BloodGroup, d.City, d.State, d.CreatedAt, d.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *donorRepo) GetByID(ctx context.Context, id string) (*model.Donor, error) {
	d, err := scanDonor(r.db.QueryRowContext(ctx, `SELECT `+donorColumns+` FROM donors WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}

func (r *donorRepo) Update(ctx context.Context, d *model.Donor) error {
	res, err := r.db.ExecContext(ctx, `UPDATE donors SET name = $2, email = $3, phone = $4, blood_group = $5,
		city = $6, state = $7, updated_at = $8 WHERE id = $1`,
		d.ID, d.Name, d.Email, d.Phone, d.BloodGroup, d.City, d.State, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("db error: %w", err)
	} else if n == 0 {
		return ErrNotFound
	}
	return nil
}

/* Пустые фильтры пропускаются через "$n = ''", чтобы запрос оставался одним и тем же */
func (r *donorRepo) Search(ctx context.Context, f model.DonorFilter) ([]model.Donor, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+donorColumns+` FROM donors
		WHERE ($1 = '' OR blood_group = $1)
		  AND ($2 = '' OR lower(city) = lower($2))
		  AND ($3 = '' OR lower(state) = lower($3))
		ORDER BY created_at DESC`, f.BloodGroup, f.City, f.State)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()
	result := make([]model.Donor, 0, 10)
	for rows.Next() {
		d, err := scanDonor(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

type emergencyRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewEmergencyRepository(logger *zap.Logger, db *sql.DB) EmergencyRepository {
	return &emergencyRepo{
		db:     db,
		logger: logger,
	}
}

const emergencyColumns = `id, name, phone, blood_group, units, hospital, city, state, status, created_at, resolved_at`

func scanEmergency(row interface{ Scan(...any) error }) (*model.EmergencyRequest, error) {
	e := &model.EmergencyRequest{}
	var status string
	var resolvedAt sql.NullTime
	err := row.Scan(&e.ID, &e.Name, &e.Phone, &e.BloodGroup, &e.Units, &e.Hospital,
		&e.Location.City, &e.Location.State, &status, &e.CreatedAt, &resolvedAt)
	e.Status = model.EmergencyStatus(status)
	if resolvedAt.Valid {
		e.ResolvedAt = &resolvedAt.Time
	}
	return e, err
}

func (r *emergencyRepo) Create(ctx context.Context, e *model.EmergencyRequest) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO emergencies (`+emergencyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.Name, e.Phone, e.BloodGroup, e.Units, e.Hospital, e.Location.City, e.Location.State,
		string(e.Status), e.CreatedAt, e.ResolvedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *emergencyRepo) GetByID(ctx context.Context, id string) (*model.EmergencyRequest, error) {
	e, err := scanEmergency(r.db.QueryRowContext(ctx, `SELECT `+emergencyColumns+` FROM emergencies WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return e, nil
}

func (r *emergencyRepo) List(ctx context.Context, status model.EmergencyStatus) ([]model.EmergencyRequest, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+emergencyColumns+` FROM emergencies
		WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()
	result := make([]model.EmergencyRequest, 0, 10)
	for rows.Next() {
		e, err := scanEmergency(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}

func (r *emergencyRepo) Update(ctx context.Context, e *model.EmergencyRequest) error {
	res, err := r.db.ExecContext(ctx, `UPDATE emergencies SET status = $2, resolved_at = $3 WHERE id = $1`,
		e.ID, string(e.Status), e.ResolvedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("db error: %w", err)
	} else if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *emergencyRepo) Count(ctx context.Context, status model.EmergencyStatus) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM emergencies WHERE ($1 = '' OR status = $1)`,
		string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
