package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sahana-project/ewaste-api/types"
)

// AccountRepository handles persistence for accounts.
type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `
	id, name, email, password_hash, role, phone, address, organization_name,
	is_active, profile_picture, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (types.Account, error) {
	var account types.Account
	var orgName sql.NullString
	err := row.Scan(
		&account.ID,
		&account.Name,
		&account.Email,
		&account.PasswordHash,
		&account.Role,
		&account.Phone,
		&account.Address,
		&orgName,
		&account.IsActive,
		&account.ProfilePicture,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, err
	}
	if orgName.Valid {
		account.OrganizationName = &orgName.String
	}
	return account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (types.Account, error) {
	query := `SELECT` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail looks up an account by its normalized e-mail address.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (types.Account, error) {
	query := `SELECT` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, email))
}

// Create inserts a new account. A duplicate e-mail yields ErrEmailExists.
func (r *AccountRepository) Create(ctx context.Context, account types.Account) (types.Account, error) {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	const query = `
		INSERT INTO accounts (id, name, email, password_hash, role, phone, address,
			organization_name, is_active, profile_picture, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		account.ID,
		account.Name,
		account.Email,
		account.PasswordHash,
		account.Role,
		account.Phone,
		account.Address,
		account.OrganizationName,
		account.IsActive,
		account.ProfilePicture,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.Account{}, ErrEmailExists
		}
		return types.Account{}, err
	}
	return account, nil
}

// Update writes the mutable profile fields. E-mail, role and password are
// never changed through this path.
func (r *AccountRepository) Update(ctx context.Context, account types.Account) (types.Account, error) {
	account.UpdatedAt = time.Now().UTC()

	const query = `
		UPDATE accounts
		SET name = $1,
			phone = $2,
			address = $3,
			organization_name = $4,
			is_active = $5,
			profile_picture = $6,
			updated_at = $7
		WHERE id = $8`
	result, err := r.db.ExecContext(
		ctx,
		query,
		account.Name,
		account.Phone,
		account.Address,
		account.OrganizationName,
		account.IsActive,
		account.ProfilePicture,
		account.UpdatedAt,
		account.ID,
	)
	if err != nil {
		return types.Account{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Account{}, err
	}
	if affected == 0 {
		return types.Account{}, ErrNotFound
	}
	return account, nil
}
