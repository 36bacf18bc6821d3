package usecase

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"identity-service/internal/domain"
	"identity-service/internal/repository"
	"identity-service/pkg/utils"
	"identity-service/shared/auth/pkg/jwtutil"
	"identity-service/shared/utils/id"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var errSMTPDown = errors.New("smtp: connection refused")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type sentCode struct {
	to      string
	code    string
	purpose domain.CodePurpose
}

type fakeGateway struct {
	mu   sync.Mutex
	sent []sentCode
	fail error
}

func (g *fakeGateway) SendCode(_ context.Context, to, code string, purpose domain.CodePurpose) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail != nil {
		return g.fail
	}
	g.sent = append(g.sent, sentCode{to: to, code: code, purpose: purpose})
	return nil
}

func (g *fakeGateway) setFail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail = err
}

func (g *fakeGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}

func (g *fakeGateway) last(t *testing.T) sentCode {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.sent) == 0 {
		t.Fatal("no code was sent")
	}
	return g.sent[len(g.sent)-1]
}

type memRevoker struct {
	mu  sync.Mutex
	ids map[string]time.Duration
}

func (r *memRevoker) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[tokenID] = ttl
	return nil
}

func (r *memRevoker) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ids[tokenID]
	return ok, nil
}

type recordingEvents struct {
	mu    sync.Mutex
	types []string
}

func (e *recordingEvents) PublishAccountEvent(_ context.Context, ev *AccountEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types = append(e.types, ev.Type)
	return nil
}

func (e *recordingEvents) has(eventType string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.types {
		if t == eventType {
			return true
		}
	}
	return false
}

type harness struct {
	uc      *IdentityUsecase
	store   *repository.SQLiteStore
	gw      *fakeGateway
	clock   *fakeClock
	revoker *memRevoker
	events  *recordingEvents
}

var (
	signingKeyOnce sync.Once
	signingKey     *rsa.PrivateKey
)

func testSigningKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	signingKeyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		signingKey = k
	})
	return signingKey
}

func newHarness(t *testing.T, policy ResendPolicy) *harness {
	t.Helper()
	store, err := repository.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "identity.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	sf, err := id.NewSnowflake(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}

	clock := &fakeClock{t: time.Now().UTC().Truncate(time.Second)}
	key := testSigningKey(t)
	gen := jwtutil.NewGenerator(key, "identity-test", "clients", "test", 0)
	ver := jwtutil.NewVerifier(&key.PublicKey, "identity-test", "clients").WithClock(clock.Now)

	h := &harness{
		store:   store,
		gw:      &fakeGateway{},
		clock:   clock,
		revoker: &memRevoker{ids: map[string]time.Duration{}},
		events:  &recordingEvents{},
	}
	h.uc = NewIdentityUsecase(
		store,
		utils.NewPasswordHasher(bcrypt.MinCost, 4),
		h.gw,
		gen,
		ver,
		h.revoker,
		h.events,
		sf,
		zap.NewNop(),
		Options{ResendPolicy: policy, Now: clock.Now},
	)
	return h
}

const (
	alicePhone    = "+15550100000"
	alicePassword = "S3cure!pw"
)

// registerAlice registers alice@example.com and returns the emailed code.
func (h *harness) registerAlice(t *testing.T) string {
	t.Helper()
	email, err := h.uc.Register(context.Background(), RegisterRequest{
		Email:    "alice@example.com",
		Password: alicePassword,
		Phone:    alicePhone,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if email != "alice@example.com" {
		t.Fatalf("register returned %q", email)
	}
	return h.gw.last(t).code
}

func (h *harness) account(t *testing.T, email string) *domain.Account {
	t.Helper()
	acc, err := h.store.FindByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("find %s: %v", email, err)
	}
	return acc
}
