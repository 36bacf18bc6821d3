package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"identity-service/internal/domain"
	"identity-service/internal/repository/migrations"
	xerrors "identity-service/shared/utils/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AccountRepository is the PostgreSQL CredentialStore.
type AccountRepository struct {
	db *pgxpool.Pool
}

func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, email, phone, phone_key, password_hash, first_name, last_name, role,
	pending_code, code_expires_at, is_verified, provider, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	var id int64
	var role, provider string
	err := row.Scan(
		&id,
		&a.Email,
		&a.Phone,
		&a.PhoneKey,
		&a.PasswordHash,
		&a.FirstName,
		&a.LastName,
		&role,
		&a.PendingCode,
		&a.CodeExpiresAt,
		&a.IsVerified,
		&provider,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	a.ID = strconv.FormatInt(id, 10)
	a.Role = domain.Role(role)
	a.Provider = domain.Provider(provider)
	return &a, nil
}

func parseID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, xerrors.ErrUserNotFound
	}
	return n, nil
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return scanAccount(row)
}

func (r *AccountRepository) FindByPhoneKey(ctx context.Context, phoneKey string) (*domain.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE phone_key = $1`, phoneKey)
	return scanAccount(row)
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	n, err := parseID(id)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, n)
	return scanAccount(row)
}

func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) error {
	n, err := strconv.ParseInt(a.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("account id %q is not numeric: %w", a.ID, err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		n, a.Email, a.Phone, a.PhoneKey, a.PasswordHash, a.FirstName, a.LastName, string(a.Role),
		a.PendingCode, a.CodeExpiresAt, a.IsVerified, string(a.Provider), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if xerrors.ParsePGErrorCode(err) == xerrors.PgUniqueViolation {
			return xerrors.ErrUserAlreadyExists
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *AccountRepository) SetPendingCode(ctx context.Context, id, code string, expiresAt, now time.Time) error {
	n, err := parseID(id)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE accounts SET pending_code = $2, code_expires_at = $3, updated_at = $4
		WHERE id = $1`,
		n, code, expiresAt, now,
	)
	if err != nil {
		return fmt.Errorf("set pending code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrUserNotFound
	}
	return nil
}

func (r *AccountRepository) MarkVerified(ctx context.Context, id string, now time.Time) (bool, error) {
	n, err := parseID(id)
	if err != nil {
		return false, err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE accounts
		SET is_verified = TRUE, pending_code = NULL, code_expires_at = NULL, updated_at = $2
		WHERE id = $1 AND NOT is_verified`,
		n, now,
	)
	if err != nil {
		return false, fmt.Errorf("mark verified: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *AccountRepository) ConsumeCode(ctx context.Context, c domain.CodeConsumption) error {
	n, err := parseID(c.AccountID)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE accounts
		SET pending_code = NULL,
		    code_expires_at = NULL,
		    is_verified = (is_verified OR $3),
		    password_hash = COALESCE($4, password_hash),
		    updated_at = $5
		WHERE id = $1 AND pending_code = $2 AND code_expires_at >= $5`,
		n, c.Code, c.MarkVerified, c.NewPasswordHash, c.Now,
	)
	if err != nil {
		return fmt.Errorf("consume code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNoCodeOutstanding
	}
	return nil
}

// Migrate applies the embedded PostgreSQL schema.
func (r *AccountRepository) Migrate(ctx context.Context) error {
	return applyMigrations(ctx, pgMigrator{r.db}, migrations.FS, "postgres")
}

type pgMigrator struct{ db *pgxpool.Pool }

func (m pgMigrator) ensureTable(ctx context.Context) error {
	_, err := m.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
		name TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	return err
}

func (m pgMigrator) applied(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := m.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+migrationTable+` WHERE name = $1)`, name).Scan(&exists)
	return exists, err
}

func (m pgMigrator) apply(ctx context.Context, name, upSQL string) error {
	return pgx.BeginFunc(ctx, m.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upSQL); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO `+migrationTable+` (name) VALUES ($1) ON CONFLICT DO NOTHING`, name)
		return err
	})
}

var _ CredentialStore = (*AccountRepository)(nil)
