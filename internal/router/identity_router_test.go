package router

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"identity-service/internal/domain"
	"identity-service/internal/handler"
	"identity-service/internal/repository"
	"identity-service/internal/service/session"
	"identity-service/internal/usecase"
	"identity-service/pkg/utils"
	"identity-service/shared/auth/middleware"
	"identity-service/shared/auth/pkg/jwtutil"
	"identity-service/shared/utils/id"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type inbox struct {
	mu    sync.Mutex
	codes map[string]string
	fail  error
}

func (b *inbox) SendCode(_ context.Context, to, code string, _ domain.CodePurpose) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	b.codes[to] = code
	return nil
}

func (b *inbox) code(to string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.codes[to]
}

func (b *inbox) setFail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail = err
}

type stubGoogle struct{}

func (stubGoogle) Verify(_ context.Context, token string) (*domain.FederatedIdentity, error) {
	if token != "good-google-token" {
		return nil, errors.New("bad token")
	}
	return &domain.FederatedIdentity{Email: "g@example.com", DisplayName: "Grace Hopper", Provider: domain.ProviderGoogle}, nil
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	srv   *httptest.Server
	inbox *inbox
}

func newTestServer(t *testing.T, google handler.FederatedVerifier) *testServer {
	t.Helper()
	store, err := repository.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "identity.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	gen := jwtutil.NewGenerator(key, "identity-test", "clients", "k1", 0)
	ver := jwtutil.NewVerifier(&key.PublicKey, "identity-test", "clients")
	jwks, err := jwtutil.BuildJWKS(&key.PublicKey, "k1")
	if err != nil {
		t.Fatalf("jwks: %v", err)
	}
	sf, err := id.NewSnowflake(2)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}

	box := &inbox{codes: map[string]string{}}
	logger := zap.NewNop()
	uc := usecase.NewIdentityUsecase(
		store,
		utils.NewPasswordHasher(bcrypt.MinCost, 4),
		box,
		gen,
		ver,
		session.NewMemoryRevoker(),
		nil,
		sf,
		logger,
		usecase.Options{},
	)

	h := handler.NewIdentityHandler(uc, google, jwks, "identity-test", logger)
	r := SetupRoutes(chi.NewRouter(), h, middleware.NewAuthMiddleware(uc, logger), []string{"*"}, logger)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, inbox: box}
}

func (s *testServer) do(t *testing.T, method, path string, body any, token string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		_ = json.NewDecoder(resp.Body).Decode(&env)
	}
	return resp.StatusCode, env
}

func (s *testServer) expect(t *testing.T, method, path string, body any, token string, want int) envelope {
	t.Helper()
	status, env := s.do(t, method, path, body, token)
	if status != want {
		t.Fatalf("%s %s: status = %d (%s), want %d", method, path, status, env.Message, want)
	}
	return env
}

var alice = map[string]string{
	"email":    "alice@example.com",
	"password": "S3cure!pw",
	"phone":    "(555) 010-0000",
}

func TestRegistrationVerificationLoginFlow(t *testing.T) {
	s := newTestServer(t, nil)

	s.expect(t, "POST", "/api/v1/auth/register", alice, "", http.StatusCreated)
	env := s.expect(t, "POST", "/api/v1/auth/register", alice, "", http.StatusBadRequest)
	if env.Message != "an account with these details already exists" {
		t.Fatalf("duplicate message = %q", env.Message)
	}

	login := map[string]string{"email": alice["email"], "password": alice["password"]}
	s.expect(t, "POST", "/api/v1/auth/login", login, "", http.StatusUnauthorized)

	s.expect(t, "POST", "/api/v1/auth/verify-otp", map[string]string{"email": alice["email"], "otp": "000000"}, "", http.StatusBadRequest)
	code := s.inbox.code(alice["email"])
	s.expect(t, "POST", "/api/v1/auth/verify-otp", map[string]string{"email": alice["email"], "otp": code}, "", http.StatusOK)
	s.expect(t, "POST", "/api/v1/auth/verify-otp", map[string]string{"email": alice["email"], "otp": code}, "", http.StatusBadRequest)

	env = s.expect(t, "POST", "/api/v1/auth/login", login, "", http.StatusOK)
	var sess domain.Session
	if err := json.Unmarshal(env.Data, &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess.Token == "" || sess.Claims.Email != alice["email"] || sess.Claims.Role != domain.RoleCustomer {
		t.Fatalf("session = %+v", sess)
	}

	s.expect(t, "GET", "/api/v1/auth/session", nil, sess.Token, http.StatusOK)
	s.expect(t, "POST", "/api/v1/auth/logout", nil, sess.Token, http.StatusOK)
	s.expect(t, "GET", "/api/v1/auth/session", nil, sess.Token, http.StatusUnauthorized)
	s.expect(t, "GET", "/api/v1/auth/session", nil, "", http.StatusUnauthorized)
}

func TestRegisterValidationNamesField(t *testing.T) {
	s := newTestServer(t, nil)
	body := map[string]string{"email": "bob@example.com", "password": "short", "phone": "5550100000"}
	env := s.expect(t, "POST", "/api/v1/auth/register", body, "", http.StatusBadRequest)
	var data map[string]string
	_ = json.Unmarshal(env.Data, &data)
	if data["field"] != "password" {
		t.Fatalf("field = %q", data["field"])
	}
}

func TestUnknownAccount(t *testing.T) {
	s := newTestServer(t, nil)
	s.expect(t, "POST", "/api/v1/auth/verify-otp", map[string]string{"email": "nobody@example.com", "otp": "123456"}, "", http.StatusNotFound)
	s.expect(t, "POST", "/api/v1/auth/resend-otp", map[string]string{"email": "nobody@example.com"}, "", http.StatusNotFound)
	s.expect(t, "POST", "/api/v1/auth/forgot-password", map[string]string{"email": "nobody@example.com"}, "", http.StatusNotFound)

	unknown := s.expect(t, "POST", "/api/v1/auth/login", map[string]string{"email": "nobody@example.com", "password": "S3cure!pw"}, "", http.StatusUnauthorized)
	s.expect(t, "POST", "/api/v1/auth/register", alice, "", http.StatusCreated)
	wrong := s.expect(t, "POST", "/api/v1/auth/login", map[string]string{"email": alice["email"], "password": "Wr0ng!pw"}, "", http.StatusUnauthorized)
	if unknown.Message != wrong.Message {
		t.Fatalf("login failures differ: %q vs %q", unknown.Message, wrong.Message)
	}
}

func TestDeliveryFailureIsGeneric(t *testing.T) {
	s := newTestServer(t, nil)
	s.inbox.setFail(errors.New("smtp 10.0.0.7:587: connection refused"))
	env := s.expect(t, "POST", "/api/v1/auth/register", alice, "", http.StatusInternalServerError)
	if strings.Contains(env.Message, "10.0.0.7") {
		t.Fatalf("infrastructure detail leaked: %q", env.Message)
	}

	s.inbox.setFail(nil)
	s.expect(t, "POST", "/api/v1/auth/register", alice, "", http.StatusCreated)
}

func TestPasswordResetFlow(t *testing.T) {
	s := newTestServer(t, nil)
	s.expect(t, "POST", "/api/v1/auth/register", alice, "", http.StatusCreated)

	reset := map[string]string{"email": alice["email"], "otp": "123456", "newPassword": "N3w!passw"}
	s.expect(t, "POST", "/api/v1/auth/forgot-password", map[string]string{"email": alice["email"]}, "", http.StatusOK)
	reset["otp"] = s.inbox.code(alice["email"])
	s.expect(t, "POST", "/api/v1/auth/reset-password", reset, "", http.StatusOK)
	env := s.expect(t, "POST", "/api/v1/auth/reset-password", reset, "", http.StatusBadRequest)
	if env.Message != "no password reset request found" {
		t.Fatalf("replay message = %q", env.Message)
	}
}

func TestAvailability(t *testing.T) {
	s := newTestServer(t, nil)
	s.expect(t, "POST", "/api/v1/auth/register", alice, "", http.StatusCreated)

	tests := []struct {
		path      string
		status    int
		available bool
	}{
		{"/api/v1/auth/check-email?email=alice@example.com", http.StatusOK, false},
		{"/api/v1/auth/check-email?email=new@example.com", http.StatusOK, true},
		{"/api/v1/auth/check-email?email=not-an-email", http.StatusBadRequest, false},
		{"/api/v1/auth/check-phone?phone=5550100000", http.StatusOK, false},
		{"/api/v1/auth/check-phone?phone=5550199999", http.StatusOK, true},
		{"/api/v1/auth/check-phone?phone=12ab", http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		env := s.expect(t, "GET", tt.path, nil, "", tt.status)
		if tt.status != http.StatusOK {
			continue
		}
		var got handler.AvailabilityResponse
		if err := json.Unmarshal(env.Data, &got); err != nil {
			t.Fatalf("%s: decode: %v", tt.path, err)
		}
		if got.Available != tt.available {
			t.Fatalf("%s: available = %v", tt.path, got.Available)
		}
	}
}

func TestGoogleHandOff(t *testing.T) {
	s := newTestServer(t, stubGoogle{})
	s.expect(t, "POST", "/api/v1/auth/google", map[string]string{"id_token": "forged"}, "", http.StatusUnauthorized)
	s.expect(t, "POST", "/api/v1/auth/google", map[string]string{}, "", http.StatusBadRequest)
	env := s.expect(t, "POST", "/api/v1/auth/google", map[string]string{"id_token": "good-google-token"}, "", http.StatusOK)
	var sess domain.Session
	if err := json.Unmarshal(env.Data, &sess); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sess.Claims.Email != "g@example.com" {
		t.Fatalf("claims = %+v", sess.Claims)
	}

	disabled := newTestServer(t, nil)
	disabled.expect(t, "POST", "/api/v1/auth/google", map[string]string{"id_token": "good-google-token"}, "", http.StatusServiceUnavailable)
}

func TestOperationalEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	s.expect(t, "GET", "/api/v1/auth/health", nil, "", http.StatusOK)

	resp, err := s.srv.Client().Get(s.srv.URL + "/.well-known/jwks.json")
	if err != nil {
		t.Fatalf("jwks: %v", err)
	}
	defer resp.Body.Close()
	var set struct {
		Keys []map[string]any `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		t.Fatalf("decode jwks: %v", err)
	}
	if len(set.Keys) != 1 || set.Keys[0]["kid"] != "k1" {
		t.Fatalf("jwks = %+v", set)
	}

	m, err := s.srv.Client().Get(s.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	m.Body.Close()
	if m.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", m.StatusCode)
	}
}

func TestMalformedBody(t *testing.T) {
	s := newTestServer(t, nil)
	req, _ := http.NewRequest("POST", s.srv.URL+"/api/v1/auth/login", strings.NewReader("{not json"))
	resp, err := s.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
