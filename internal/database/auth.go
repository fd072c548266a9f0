package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kebairia/sbackup/internal/config"
)

// DB is the subset of a pgx connection the auth store needs.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AuthUser is one row of auth.users as captured in a backup.
type AuthUser struct {
	ID                uuid.UUID       `json:"id"`
	Email             *string         `json:"email"`
	EncryptedPassword *string         `json:"encrypted_password"`
	EmailConfirmedAt  *time.Time      `json:"email_confirmed_at"`
	Phone             *string         `json:"phone"`
	PhoneConfirmedAt  *time.Time      `json:"phone_confirmed_at"`
	CreatedAt         *time.Time      `json:"created_at"`
	UpdatedAt         *time.Time      `json:"updated_at"`
	LastSignInAt      *time.Time      `json:"last_sign_in_at"`
	RawAppMetaData    json.RawMessage `json:"raw_app_meta_data"`
	RawUserMetaData   json.RawMessage `json:"raw_user_meta_data"`
	IsSuperAdmin      *bool           `json:"is_super_admin"`
	Role              *string         `json:"role"`
}

const authUserColumns = `id, email, encrypted_password, email_confirmed_at, phone,
	phone_confirmed_at, created_at, updated_at, last_sign_in_at,
	raw_app_meta_data, raw_user_meta_data, is_super_admin, role`

const selectAuthUsers = `SELECT ` + authUserColumns + ` FROM auth.users ORDER BY created_at, id`

// created_at is kept from the existing row on conflict.
const upsertAuthUser = `INSERT INTO auth.users (` + authUserColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (id) DO UPDATE SET
		email = EXCLUDED.email,
		encrypted_password = EXCLUDED.encrypted_password,
		email_confirmed_at = EXCLUDED.email_confirmed_at,
		phone = EXCLUDED.phone,
		phone_confirmed_at = EXCLUDED.phone_confirmed_at,
		updated_at = EXCLUDED.updated_at,
		last_sign_in_at = EXCLUDED.last_sign_in_at,
		raw_app_meta_data = EXCLUDED.raw_app_meta_data,
		raw_user_meta_data = EXCLUDED.raw_user_meta_data,
		is_super_admin = EXCLUDED.is_super_admin,
		role = EXCLUDED.role`

// AuthStore reads and writes auth.users.
type AuthStore struct {
	db    DB
	close func(ctx context.Context) error
}

// NewAuthStore creates an AuthStore over an existing connection.
func NewAuthStore(db DB) *AuthStore {
	return &AuthStore{db: db}
}

// OpenAuthStore connects to the database described by cfg. The returned
// store owns the connection and must be closed.
func OpenAuthStore(ctx context.Context, cfg config.DatabaseConfig) (*AuthStore, error) {
	conn, err := pgx.Connect(ctx, cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("connect to %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Name, err)
	}
	return &AuthStore{db: conn, close: conn.Close}, nil
}

// Close releases the connection opened by OpenAuthStore.
func (s *AuthStore) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// ListUsers returns every row of auth.users.
func (s *AuthStore) ListUsers(ctx context.Context) ([]AuthUser, error) {
	rows, err := s.db.Query(ctx, selectAuthUsers)
	if err != nil {
		return nil, fmt.Errorf("query auth users: %w", err)
	}
	defer rows.Close()

	var users []AuthUser
	for rows.Next() {
		u, err := scanAuthUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate auth users: %w", err)
	}
	return users, nil
}

// UpsertUser inserts u, or updates the existing row with the same id.
func (s *AuthStore) UpsertUser(ctx context.Context, u AuthUser) error {
	if u.ID == uuid.Nil {
		return errors.New("auth user has no id")
	}
	_, err := s.db.Exec(ctx, upsertAuthUser,
		u.ID, u.Email, u.EncryptedPassword, u.EmailConfirmedAt, u.Phone,
		u.PhoneConfirmedAt, u.CreatedAt, u.UpdatedAt, u.LastSignInAt,
		jsonArg(u.RawAppMetaData), jsonArg(u.RawUserMetaData), u.IsSuperAdmin, u.Role,
	)
	if err != nil {
		return fmt.Errorf("upsert auth user %s: %w", u.ID, err)
	}
	return nil
}

func scanAuthUser(row interface{ Scan(dest ...any) error }) (AuthUser, error) {
	var u AuthUser
	err := row.Scan(&u.ID, &u.Email, &u.EncryptedPassword, &u.EmailConfirmedAt, &u.Phone,
		&u.PhoneConfirmedAt, &u.CreatedAt, &u.UpdatedAt, &u.LastSignInAt,
		&u.RawAppMetaData, &u.RawUserMetaData, &u.IsSuperAdmin, &u.Role)
	if err != nil {
		return AuthUser{}, fmt.Errorf("scan auth user: %w", err)
	}
	return u, nil
}

// jsonArg maps an absent or JSON null document to SQL NULL.
func jsonArg(doc json.RawMessage) any {
	if len(doc) == 0 || string(doc) == "null" {
		return nil
	}
	return doc
}
