package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-menu-auth/app/entity"

	"github.com/go-sql-driver/mysql"
)

// ErrDuplicateEntry is returned when a write violates a unique index.
var ErrDuplicateEntry = errors.New("duplicate entry")

const mysqlErrDuplicateEntry = 1062

type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// AccountRepository stores one kind of account. Users and customers live in
// separate tables and never share a repository instance.
type AccountRepository struct {
	db    DBTX
	kind  entity.AccountKind
	table string
}

func NewAccountRepository(db DBTX, kind entity.AccountKind) *AccountRepository {
	table := "users"
	if kind == entity.KindCustomer {
		table = "customers"
	}
	return &AccountRepository{db: db, kind: kind, table: table}
}

func NewUserRepository(db DBTX) *AccountRepository {
	return NewAccountRepository(db, entity.KindUser)
}

func NewCustomerRepository(db DBTX) *AccountRepository {
	return NewAccountRepository(db, entity.KindCustomer)
}

func (r *AccountRepository) Kind() entity.AccountKind {
	return r.kind
}

// Create claims the email in account_emails and inserts the row in one
// transaction. The claim table keeps an email unique across both kinds.
func (r *AccountRepository) Create(ctx context.Context, account *entity.Account) error {
	return r.inTx(ctx, func(db DBTX) error {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO account_emails (email, kind) VALUES (?, ?)`,
			account.Email,
			string(r.kind),
		); err != nil {
			return translateError(err)
		}

		query := fmt.Sprintf(`
			INSERT INTO %s (email, username, password_hash, role, is_verified, verification_token, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, r.table)
		result, err := db.ExecContext(ctx, query,
			account.Email,
			account.Username,
			account.PasswordHash,
			account.Role,
			account.IsVerified,
			account.VerificationToken,
			account.CreatedAt,
			account.UpdatedAt,
		)
		if err != nil {
			return translateError(err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return err
		}
		account.ID = uint64(id)
		account.Kind = r.kind
		return nil
	})
}

func (r *AccountRepository) FindByID(ctx context.Context, id uint64) (*entity.Account, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*entity.Account, error) {
	return r.findOne(ctx, "email = ?", email)
}

func (r *AccountRepository) FindByVerificationToken(ctx context.Context, token string) (*entity.Account, error) {
	return r.findOne(ctx, "verification_token = ?", token)
}

func (r *AccountRepository) FindByResetToken(ctx context.Context, token string) (*entity.Account, error) {
	return r.findOne(ctx, "password_reset_token = ?", token)
}

func (r *AccountRepository) Update(ctx context.Context, account *entity.Account) error {
	query := fmt.Sprintf(`
		UPDATE %s SET
			email = ?,
			username = ?,
			password_hash = ?,
			role = ?,
			is_verified = ?,
			verification_token = ?,
			password_reset_token = ?,
			reset_token_expires_at = ?,
			updated_at = ?
		WHERE id = ?
	`, r.table)
	if account.UpdatedAt.IsZero() {
		account.UpdatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, query,
		account.Email,
		account.Username,
		account.PasswordHash,
		account.Role,
		account.IsVerified,
		account.VerificationToken,
		account.PasswordResetToken,
		account.ResetTokenExpiresAt,
		account.UpdatedAt,
		account.ID,
	)
	return translateError(err)
}

func (r *AccountRepository) findOne(ctx context.Context, where string, args ...interface{}) (*entity.Account, error) {
	query := fmt.Sprintf(`
		SELECT id, email, username, password_hash, role, is_verified, verification_token,
		       password_reset_token, reset_token_expires_at, created_at, updated_at
		FROM %s WHERE %s
	`, r.table, where)

	row := r.db.QueryRowContext(ctx, query, args...)
	account, err := scanAccount(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	account.Kind = r.kind
	return account, nil
}

type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// inTx runs fn in a new transaction when the repository holds a *sql.DB, and
// directly on the caller's transaction otherwise.
func (r *AccountRepository) inTx(ctx context.Context, fn func(db DBTX) error) error {
	beginner, ok := r.db.(txBeginner)
	if !ok {
		return fn(r.db)
	}

	tx, err := beginner.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type rowScanner func(dest ...interface{}) error

func scanAccount(scan rowScanner) (*entity.Account, error) {
	account := &entity.Account{}
	if err := scan(
		&account.ID,
		&account.Email,
		&account.Username,
		&account.PasswordHash,
		&account.Role,
		&account.IsVerified,
		&account.VerificationToken,
		&account.PasswordResetToken,
		&account.ResetTokenExpiresAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		return nil, err
	}

	return account, nil
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, mysqlErr.Message)
	}
	return err
}
