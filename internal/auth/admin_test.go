package auth

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"incident-portal/internal/config"
)

func TestAdminAccount_Check(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("operator-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	acct := NewAdminAccount(config.AuthConfig{AdminEmail: "Ops@Portal.ng", AdminPasswordHash: string(hash)})

	if err := acct.Check(" ops@portal.ng", "operator-pass"); err != nil {
		t.Fatalf("expected valid login, got %v", err)
	}
	if err := acct.Check("ops@portal.ng", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for bad password, got %v", err)
	}
	if err := acct.Check("other@portal.ng", "operator-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for bad email, got %v", err)
	}
}

func TestAdminAccount_UnconfiguredRejectsEverything(t *testing.T) {
	acct := NewAdminAccount(config.AuthConfig{})
	if err := acct.Check("", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}
