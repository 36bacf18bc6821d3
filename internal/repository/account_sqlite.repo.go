package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"identity-service/internal/domain"
	"identity-service/internal/repository/migrations"
	xerrors "identity-service/shared/utils/errors"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// SQLiteStore is the single-node CredentialStore.
type SQLiteStore struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Code expiry keeps full clock resolution so a code is still accepted at
// exactly the instant it was issued to expire.
func toNanos(value time.Time) int64 {
	return value.UTC().UnixNano()
}

func fromNanos(value int64) time.Time {
	return time.Unix(0, value).UTC()
}

// OpenSQLite opens the database at path and applies embedded migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer keeps the conditional updates serialised
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqliteMigrator{sqlDB}, migrations.FS, "sqlite"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteAccount(row rowScanner) (*domain.Account, error) {
	var (
		a             domain.Account
		firstName     sql.NullString
		lastName      sql.NullString
		role          string
		provider      string
		pendingCode   sql.NullString
		codeExpiresAt sql.NullInt64
		isVerified    int64
		createdAt     int64
		updatedAt     int64
	)
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.Phone,
		&a.PhoneKey,
		&a.PasswordHash,
		&firstName,
		&lastName,
		&role,
		&pendingCode,
		&codeExpiresAt,
		&isVerified,
		&provider,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, xerrors.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if firstName.Valid {
		a.FirstName = &firstName.String
	}
	if lastName.Valid {
		a.LastName = &lastName.String
	}
	if pendingCode.Valid && codeExpiresAt.Valid {
		code := pendingCode.String
		exp := fromNanos(codeExpiresAt.Int64)
		a.PendingCode = &code
		a.CodeExpiresAt = &exp
	}
	a.Role = domain.Role(role)
	a.Provider = domain.Provider(provider)
	a.IsVerified = isVerified != 0
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	return &a, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(*t), Valid: true}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteStore) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email)
	return scanSQLiteAccount(row)
}

func (s *SQLiteStore) FindByPhoneKey(ctx context.Context, phoneKey string) (*domain.Account, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE phone_key = ?`, phoneKey)
	return scanSQLiteAccount(row)
}

func (s *SQLiteStore) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return scanSQLiteAccount(row)
}

func (s *SQLiteStore) Create(ctx context.Context, a *domain.Account) error {
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Email, a.Phone, a.PhoneKey, a.PasswordHash,
		nullString(a.FirstName), nullString(a.LastName), string(a.Role),
		nullString(a.PendingCode), nullNanos(a.CodeExpiresAt), boolInt(a.IsVerified),
		string(a.Provider), toMillis(a.CreatedAt), toMillis(a.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return xerrors.ErrUserAlreadyExists
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetPendingCode(ctx context.Context, id, code string, expiresAt, now time.Time) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE accounts SET pending_code = ?, code_expires_at = ?, updated_at = ? WHERE id = ?`,
		code, toNanos(expiresAt), toMillis(now), id,
	)
	if err != nil {
		return fmt.Errorf("set pending code: %w", err)
	}
	return requireRow(res, xerrors.ErrUserNotFound)
}

func (s *SQLiteStore) MarkVerified(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.sqlDB.ExecContext(ctx, `
		UPDATE accounts
		SET is_verified = 1, pending_code = NULL, code_expires_at = NULL, updated_at = ?
		WHERE id = ? AND is_verified = 0`,
		toMillis(now), id,
	)
	if err != nil {
		return false, fmt.Errorf("mark verified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) ConsumeCode(ctx context.Context, c domain.CodeConsumption) error {
	res, err := s.sqlDB.ExecContext(ctx, `
		UPDATE accounts
		SET pending_code = NULL,
		    code_expires_at = NULL,
		    is_verified = (is_verified OR ?),
		    password_hash = COALESCE(?, password_hash),
		    updated_at = ?
		WHERE id = ? AND pending_code = ? AND code_expires_at >= ?`,
		boolInt(c.MarkVerified), nullString(c.NewPasswordHash), toMillis(c.Now),
		c.AccountID, c.Code, toNanos(c.Now),
	)
	if err != nil {
		return fmt.Errorf("consume code: %w", err)
	}
	return requireRow(res, xerrors.ErrNoCodeOutstanding)
}

func requireRow(res sql.Result, none error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return none
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

type sqliteMigrator struct{ db *sql.DB }

func (m sqliteMigrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
		name TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`)
	return err
}

func (m sqliteMigrator) applied(ctx context.Context, name string) (bool, error) {
	var count int
	err := m.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM `+migrationTable+` WHERE name = ?`, name).Scan(&count)
	return count > 0, err
}

func (m sqliteMigrator) apply(ctx context.Context, name, upSQL string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, upSQL); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`,
		name, toMillis(time.Now()),
	); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

var _ CredentialStore = (*SQLiteStore)(nil)
