package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/aryan0dhankhar/farmorders/internal/domain"
)

const (
	MinPasswordLength = 6
	MaxUsernameLength = 32
)

// LoginIdentifier maps a username to the synthetic email-shaped identifier
// used as the credential key, e.g. "steve" -> "steve@darknova.app"
func LoginIdentifier(username, domainName string) string {
	return domain.NormalizeUsername(username) + "@" + domainName
}

// ValidateUsername checks length and character set of a new username
func ValidateUsername(username string) error {
	name := strings.TrimSpace(username)
	if name == "" {
		return fmt.Errorf("%w: username is required", domain.ErrBadArguments)
	}
	if utf8.RuneCountInString(name) > MaxUsernameLength {
		return fmt.Errorf("%w: username longer than %d characters", domain.ErrBadArguments, MaxUsernameLength)
	}
	for _, r := range name {
		ok := r == '_' || r == '-' || r == '.' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return fmt.Errorf("%w: username may only contain letters, digits, '.', '-' and '_'", domain.ErrBadArguments)
		}
	}
	return nil
}

// HashPassword returns a bcrypt hash of password
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("%w: password must be at least %d characters", domain.ErrBadArguments, MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares password with a bcrypt hash
func CheckPassword(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return domain.ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidCredentials, err)
	}
	return nil
}
