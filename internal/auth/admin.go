package auth

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"incident-portal/internal/config"
)

var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// AdminAccount is the single operator login configured through the environment.
// The password is stored as a bcrypt hash only.
type AdminAccount struct {
	ID           string
	email        string
	passwordHash []byte
}

func NewAdminAccount(cfg config.AuthConfig) AdminAccount {
	return AdminAccount{
		ID:           "admin",
		email:        strings.ToLower(strings.TrimSpace(cfg.AdminEmail)),
		passwordHash: []byte(cfg.AdminPasswordHash),
	}
}

// Check verifies email and password. The bcrypt comparison runs even on an
// email mismatch so both failures take similar time.
func (a AdminAccount) Check(email, password string) error {
	emailOK := subtle.ConstantTimeCompare([]byte(strings.ToLower(strings.TrimSpace(email))), []byte(a.email)) == 1
	pwErr := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password))
	if !emailOK || pwErr != nil || a.email == "" {
		return ErrInvalidCredentials
	}
	return nil
}
