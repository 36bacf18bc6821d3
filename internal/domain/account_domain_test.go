package domain

import (
	"testing"
	"time"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"", RoleCustomer, true},
		{"customer", RoleCustomer, true},
		{" Admin ", RoleAdmin, true},
		{"seller", RoleSeller, true},
		{"superuser", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseRole(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("ParseRole(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
	if Role("").Valid() {
		t.Fatal("empty role must not be valid once persisted")
	}
}

func TestPhoneKey(t *testing.T) {
	if got := PhoneKey("+1 (555) 010-0000"); got != "15550100000" {
		t.Fatalf("PhoneKey = %q", got)
	}
	if PhoneKey("+15550100000") != PhoneKey("1 555 010 0000") {
		t.Fatal("formatting variants must share a key")
	}
	if FederatedPhoneKey("42") == PhoneKey("42") {
		t.Fatal("federated key must not look like a digit key")
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Alice@Example.COM "); got != "alice@example.com" {
		t.Fatalf("NormalizeEmail = %q", got)
	}
}

func TestSplitDisplayName(t *testing.T) {
	tests := []struct{ in, first, last string }{
		{"Ada King Lovelace", "Ada", "King Lovelace"},
		{"Plato", "Plato", ""},
		{"   ", "", ""},
	}
	for _, tt := range tests {
		first, last := SplitDisplayName(tt.in)
		if first != tt.first || last != tt.last {
			t.Fatalf("SplitDisplayName(%q) = %q, %q", tt.in, first, last)
		}
	}
}

func TestPendingCodePair(t *testing.T) {
	code := "123456"
	exp := time.Now()
	a := &Account{PendingCode: &code, CodeExpiresAt: &exp}
	if !a.HasPendingCode() {
		t.Fatal("expected pending code")
	}
	a.ClearPendingCode()
	if a.HasPendingCode() || a.PendingCode != nil || a.CodeExpiresAt != nil {
		t.Fatal("expected both fields cleared")
	}
}
