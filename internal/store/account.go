package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rush-contest/apiserver/types"
)

const accountColumns = `id, login, login_kind, email, first_name, last_name,
		password_hash, active, admin, organizer_kind, organizer_id,
		individual, notifications, created_at, updated_at`

// AccountRepository handles persistence for accounts.
type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func scanAccount(row *sql.Row) (types.Account, error) {
	var account types.Account
	err := row.Scan(
		&account.ID,
		&account.Login,
		&account.LoginKind,
		&account.Email,
		&account.FirstName,
		&account.LastName,
		&account.PasswordHash,
		&account.Active,
		&account.Admin,
		&account.Organizer.Kind,
		&account.Organizer.ID,
		&account.Individual,
		&account.Notifications,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, err
	}
	return account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id int) (types.Account, error) {
	const query = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE id = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

func (r *AccountRepository) GetByLogin(ctx context.Context, login string) (types.Account, error) {
	const query = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE login = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, login))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (types.Account, error) {
	const query = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE email = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, email))
}

func (r *AccountRepository) Create(ctx context.Context, account types.Account) (types.Account, error) {
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	const query = `
		INSERT INTO accounts (login, login_kind, email, first_name, last_name,
			password_hash, active, admin, organizer_kind, organizer_id,
			individual, notifications, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`
	err := r.db.QueryRowContext(
		ctx,
		query,
		account.Login,
		account.LoginKind,
		account.Email,
		account.FirstName,
		account.LastName,
		account.PasswordHash,
		account.Active,
		account.Admin,
		account.Organizer.Kind,
		account.Organizer.ID,
		account.Individual,
		account.Notifications,
		account.CreatedAt,
		account.UpdatedAt,
	).Scan(&account.ID)
	if err != nil {
		switch constraint, ok := uniqueViolation(err); {
		case ok && constraint == "accounts_email_key":
			return types.Account{}, ErrEmailTaken
		case ok && constraint == "accounts_login_key":
			return types.Account{}, ErrLoginTaken
		}
		return types.Account{}, err
	}
	return account, nil
}

// Activate flips a pending account to active in one compare-and-set,
// assigning its human-derived login. It reports false when the account was
// not pending anymore (or does not exist), so a racing second caller loses
// deterministically. A login collision surfaces as ErrLoginTaken.
func (r *AccountRepository) Activate(ctx context.Context, id int, login string) (bool, error) {
	const query = `
		UPDATE accounts
		SET login = $2,
			login_kind = $3,
			active = TRUE,
			updated_at = $4
		WHERE id = $1 AND active = FALSE`
	result, err := r.db.ExecContext(ctx, query, id, login, types.LoginAssigned, time.Now())
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "accounts_login_key" {
			return false, ErrLoginTaken
		}
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *AccountRepository) SetPassword(ctx context.Context, id int, hash string) error {
	const query = `
		UPDATE accounts
		SET password_hash = $2,
			updated_at = $3
		WHERE id = $1`
	return r.execOne(ctx, query, id, hash, time.Now())
}

func (r *AccountRepository) SetNotifications(ctx context.Context, id int, enabled bool) error {
	const query = `
		UPDATE accounts
		SET notifications = $2,
			updated_at = $3
		WHERE id = $1`
	return r.execOne(ctx, query, id, enabled, time.Now())
}

func (r *AccountRepository) LoginExists(ctx context.Context, login string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM accounts WHERE login = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, login).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *AccountRepository) ListPending(ctx context.Context) ([]types.Account, error) {
	const query = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE active = FALSE
		ORDER BY created_at`
	return r.list(ctx, query)
}

// ListNotifiable returns the active accounts opted in to contest notices.
func (r *AccountRepository) ListNotifiable(ctx context.Context) ([]types.Account, error) {
	const query = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE active = TRUE AND notifications = TRUE
		ORDER BY id`
	return r.list(ctx, query)
}

func (r *AccountRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM accounts WHERE id = $1`
	return r.execOne(ctx, query, id)
}

func (r *AccountRepository) list(ctx context.Context, query string, args ...any) ([]types.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []types.Account
	for rows.Next() {
		var account types.Account
		if err := rows.Scan(
			&account.ID,
			&account.Login,
			&account.LoginKind,
			&account.Email,
			&account.FirstName,
			&account.LastName,
			&account.PasswordHash,
			&account.Active,
			&account.Admin,
			&account.Organizer.Kind,
			&account.Organizer.ID,
			&account.Individual,
			&account.Notifications,
			&account.CreatedAt,
			&account.UpdatedAt,
		); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (r *AccountRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
