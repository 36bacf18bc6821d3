package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"identity-service/internal/domain"
	xerrors "identity-service/shared/utils/errors"
)

func openTempStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "identity.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testAccount(id, email, phoneKey string, now time.Time) *domain.Account {
	code := "123456"
	exp := now.Add(10 * time.Minute)
	return &domain.Account{
		ID:            id,
		Email:         email,
		Phone:         "+" + phoneKey,
		PhoneKey:      phoneKey,
		PasswordHash:  "$2a$10$abcdefghijklmnopqrstuuJ7Gx2Jx7bQ0v5P3X3cQm4v1c7y0R7e",
		Role:          domain.RoleCustomer,
		Provider:      domain.ProviderPassword,
		PendingCode:   &code,
		CodeExpiresAt: &exp,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	if _, err := OpenSQLite(context.Background(), " "); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestOpenSQLiteIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.db")
	for i := 0; i < 2; i++ {
		store, err := OpenSQLite(context.Background(), path)
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		_ = store.Close()
	}
}

func TestCreateAndFind(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	in := testAccount("1001", "alice@example.com", "15550100000", now)
	if err := store.Create(ctx, in); err != nil {
		t.Fatalf("create: %v", err)
	}

	byEmail, err := store.FindByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if byEmail.ID != "1001" || byEmail.Role != domain.RoleCustomer || byEmail.IsVerified {
		t.Fatalf("unexpected account %+v", byEmail)
	}
	if !byEmail.HasPendingCode() || *byEmail.PendingCode != "123456" {
		t.Fatalf("pending code not persisted: %+v", byEmail)
	}
	if !byEmail.CodeExpiresAt.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("expiry = %v", byEmail.CodeExpiresAt)
	}

	if _, err := store.FindByPhoneKey(ctx, "15550100000"); err != nil {
		t.Fatalf("find by phone key: %v", err)
	}
	if _, err := store.FindByID(ctx, "1001"); err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if _, err := store.FindByEmail(ctx, "bob@example.com"); !errors.Is(err, xerrors.ErrUserNotFound) {
		t.Fatalf("missing email err = %v, want ErrUserNotFound", err)
	}
}

func TestCreateRejectsDuplicates(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.Create(ctx, testAccount("1", "alice@example.com", "15550100000", now)); err != nil {
		t.Fatalf("create: %v", err)
	}

	tests := []struct {
		name string
		acc  *domain.Account
	}{
		{"same email", testAccount("2", "alice@example.com", "15550100001", now)},
		{"same phone", testAccount("3", "carol@example.com", "15550100000", now)},
	}
	for _, tt := range tests {
		if err := store.Create(ctx, tt.acc); !errors.Is(err, xerrors.ErrUserAlreadyExists) {
			t.Fatalf("%s: err = %v, want ErrUserAlreadyExists", tt.name, err)
		}
	}
}

func TestConsumeCode(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	if err := store.Create(ctx, testAccount("7", "alice@example.com", "15550100000", now)); err != nil {
		t.Fatalf("create: %v", err)
	}

	wrong := domain.CodeConsumption{AccountID: "7", Code: "000000", Now: now, MarkVerified: true}
	if err := store.ConsumeCode(ctx, wrong); !errors.Is(err, xerrors.ErrNoCodeOutstanding) {
		t.Fatalf("wrong code err = %v", err)
	}

	late := domain.CodeConsumption{AccountID: "7", Code: "123456", Now: now.Add(10*time.Minute + time.Second), MarkVerified: true}
	if err := store.ConsumeCode(ctx, late); !errors.Is(err, xerrors.ErrNoCodeOutstanding) {
		t.Fatalf("expired code err = %v", err)
	}

	onTime := domain.CodeConsumption{AccountID: "7", Code: "123456", Now: now.Add(10 * time.Minute), MarkVerified: true}
	if err := store.ConsumeCode(ctx, onTime); err != nil {
		t.Fatalf("consume at expiry instant: %v", err)
	}

	got, err := store.FindByID(ctx, "7")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !got.IsVerified || got.HasPendingCode() {
		t.Fatalf("after consume: verified=%v pending=%v", got.IsVerified, got.HasPendingCode())
	}

	if err := store.ConsumeCode(ctx, onTime); !errors.Is(err, xerrors.ErrNoCodeOutstanding) {
		t.Fatalf("second consume err = %v", err)
	}
}

func TestConsumeCodeSubMillisecondExpiry(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 12, 0, 0, 500_000, time.UTC)
	in := testAccount("8", "bob@example.com", "15550100001", now)
	if err := store.Create(ctx, in); err != nil {
		t.Fatalf("create: %v", err)
	}
	exp := *in.CodeExpiresAt

	got, err := store.FindByID(ctx, "8")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !got.CodeExpiresAt.Equal(exp) {
		t.Fatalf("expiry = %v, want %v", got.CodeExpiresAt, exp)
	}

	late := domain.CodeConsumption{AccountID: "8", Code: "123456", Now: exp.Add(time.Nanosecond), MarkVerified: true}
	if err := store.ConsumeCode(ctx, late); !errors.Is(err, xerrors.ErrNoCodeOutstanding) {
		t.Fatalf("consume just after expiry err = %v", err)
	}
	atExpiry := domain.CodeConsumption{AccountID: "8", Code: "123456", Now: exp, MarkVerified: true}
	if err := store.ConsumeCode(ctx, atExpiry); err != nil {
		t.Fatalf("consume at expiry instant: %v", err)
	}
}

func TestConsumeCodeReplacesPassword(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	acc := testAccount("8", "alice@example.com", "15550100000", now)
	if err := store.Create(ctx, acc); err != nil {
		t.Fatalf("create: %v", err)
	}

	newHash := "new-digest"
	c := domain.CodeConsumption{AccountID: "8", Code: "123456", Now: now, NewPasswordHash: &newHash}
	if err := store.ConsumeCode(ctx, c); err != nil {
		t.Fatalf("consume: %v", err)
	}
	got, _ := store.FindByID(ctx, "8")
	if got.PasswordHash != newHash {
		t.Fatalf("password hash = %q", got.PasswordHash)
	}
	if got.IsVerified {
		t.Fatal("reset must not change verification state")
	}
}

func TestConsumeCodeConcurrentlyHasOneWinner(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	if err := store.Create(ctx, testAccount("9", "alice@example.com", "15550100000", now)); err != nil {
		t.Fatalf("create: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.ConsumeCode(ctx, domain.CodeConsumption{AccountID: "9", Code: "123456", Now: now, MarkVerified: true})
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, xerrors.ErrNoCodeOutstanding):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("wins = %d, want 1", wins)
	}
}

func TestSetPendingCode(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	acc := testAccount("10", "alice@example.com", "15550100000", now)
	if err := store.Create(ctx, acc); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.SetPendingCode(ctx, "10", "654321", now.Add(time.Minute), now); err != nil {
		t.Fatalf("set pending code: %v", err)
	}
	got, _ := store.FindByID(ctx, "10")
	if *got.PendingCode != "654321" {
		t.Fatalf("pending code = %q", *got.PendingCode)
	}

	if err := store.SetPendingCode(ctx, "missing", "1", now, now); !errors.Is(err, xerrors.ErrUserNotFound) {
		t.Fatalf("missing account err = %v", err)
	}
}

func TestMarkVerifiedLeavesOtherColumns(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	if err := store.Create(ctx, testAccount("11", "alice@example.com", "15550100000", now)); err != nil {
		t.Fatalf("create: %v", err)
	}

	// a reset lands between the caller's read and its write
	newHash := "$2a$10$zyxwvutsrqponmlkjihgfeJ7Gx2Jx7bQ0v5P3X3cQm4v1c7y0R7e"
	if err := store.ConsumeCode(ctx, domain.CodeConsumption{AccountID: "11", Code: "123456", Now: now, NewPasswordHash: &newHash}); err != nil {
		t.Fatalf("consume: %v", err)
	}

	changed, err := store.MarkVerified(ctx, "11", now.Add(time.Second))
	if err != nil || !changed {
		t.Fatalf("mark verified = %v, %v", changed, err)
	}
	got, _ := store.FindByID(ctx, "11")
	if !got.IsVerified || got.HasPendingCode() || got.PasswordHash != newHash {
		t.Fatalf("after mark verified: %+v", got)
	}

	if changed, err := store.MarkVerified(ctx, "11", now); err != nil || changed {
		t.Fatalf("second mark verified = %v, %v", changed, err)
	}
	if changed, err := store.MarkVerified(ctx, "missing", now); err != nil || changed {
		t.Fatalf("missing account = %v, %v", changed, err)
	}
}

func TestExtractUpMigration(t *testing.T) {
	in := "-- +migrate Up\nCREATE TABLE a (x INT);\n-- +migrate Down\nDROP TABLE a;\n"
	if got := extractUpMigration(in); got != "\nCREATE TABLE a (x INT);\n" {
		t.Fatalf("extractUpMigration = %q", got)
	}
	if got := extractUpMigration("SELECT 1;"); got != "SELECT 1;" {
		t.Fatalf("no markers = %q", got)
	}
}
