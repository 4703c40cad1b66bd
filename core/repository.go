package core

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned by repositories when a record does not exist.
var ErrNotFound = errors.New("record not found")

// UserRecord represents the full persisted user row, including credential hash.
// The hash never leaves the core; handlers only see User projections.
type UserRecord struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         string
	GoogleID     string
	CreatedAt    time.Time
}

// Public strips sensitive fields for responses and the request principal.
func (u UserRecord) Public() User {
	return User{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt}
}

// ProfileUpdate carries optional profile changes; nil fields are left untouched.
type ProfileUpdate struct {
	Name         *string
	Email        *string
	PasswordHash *string
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*UserRecord, error)
	FindByEmail(ctx context.Context, email string) (*UserRecord, error)
	FindByGoogleID(ctx context.Context, googleID string) (*UserRecord, error)
	Create(ctx context.Context, name, email, passwordHash, role string) (*UserRecord, error)
	CreateGoogleUser(ctx context.Context, name, email, googleID string) (*UserRecord, error)
	UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*UserRecord, error)
	HasAdmin(ctx context.Context) (bool, error)
	List(ctx context.Context, page, perPage int) ([]User, int, error)
}

// PgUserRepository implements UserRepository using pgxpool.
type PgUserRepository struct {
	db *pgxpool.Pool
}

func NewPgUserRepository(db *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{db: db}
}

const userColumns = `id, name, email, COALESCE(password_hash,''), role, COALESCE(google_id,''), created_at`

func scanUser(row pgx.Row) (*UserRecord, error) {
	var u UserRecord
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.GoogleID, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *PgUserRepository) FindByID(ctx context.Context, id string) (*UserRecord, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return scanUser(r.db.QueryRow(ctx, q, id))
}

func (r *PgUserRepository) FindByEmail(ctx context.Context, email string) (*UserRecord, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	return scanUser(r.db.QueryRow(ctx, q, email))
}

func (r *PgUserRepository) FindByGoogleID(ctx context.Context, googleID string) (*UserRecord, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE google_id=$1`
	return scanUser(r.db.QueryRow(ctx, q, googleID))
}

func (r *PgUserRepository) Create(ctx context.Context, name, email, passwordHash, role string) (*UserRecord, error) {
	const q = `INSERT INTO users (name, email, password_hash, role) VALUES ($1,$2,$3,$4) RETURNING ` + userColumns
	return scanUser(r.db.QueryRow(ctx, q, name, email, passwordHash, role))
}

func (r *PgUserRepository) CreateGoogleUser(ctx context.Context, name, email, googleID string) (*UserRecord, error) {
	const q = `INSERT INTO users (name, email, google_id, role) VALUES ($1,$2,$3,'user') RETURNING ` + userColumns
	return scanUser(r.db.QueryRow(ctx, q, name, email, googleID))
}

func (r *PgUserRepository) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*UserRecord, error) {
	const q = `UPDATE users SET
			name = COALESCE($2, name),
			email = COALESCE($3, email),
			password_hash = COALESCE($4, password_hash)
		WHERE id=$1 RETURNING ` + userColumns
	return scanUser(r.db.QueryRow(ctx, q, id, update.Name, update.Email, update.PasswordHash))
}

func (r *PgUserRepository) HasAdmin(ctx context.Context) (bool, error) {
	const q = `SELECT 1 FROM users WHERE role='admin' LIMIT 1`
	var one int
	if err := r.db.QueryRow(ctx, q).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List returns paginated users without password hash.
func (r *PgUserRepository) List(ctx context.Context, page, perPage int) ([]User, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	const countQ = `SELECT COUNT(*) FROM users`
	var total int
	if err := r.db.QueryRow(ctx, countQ).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, name, email, role, created_at FROM users ORDER BY created_at LIMIT $1 OFFSET $2`, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]User, 0, perPage)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, u)
	}
	return items, total, rows.Err()
}
