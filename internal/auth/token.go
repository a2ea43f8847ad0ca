// Package auth guards the approval endpoints with a shared approver token.
// Only the bcrypt hash of the token is ever configured.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 12

	// MinTokenLength is the minimum accepted approver token length.
	MinTokenLength = 24

	tokenBytes = 24
)

var randRead = rand.Read

// HashToken generates a bcrypt hash from a plain text token.
func HashToken(token string) (string, error) {
	if err := ValidateToken(token); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckTokenHash compares a plain text token with a hash.
func CheckTokenHash(token, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}

// ValidateToken checks length limits. bcrypt ignores bytes past 72.
func ValidateToken(token string) error {
	if len(token) < MinTokenLength {
		return fmt.Errorf("token must be at least %d characters long", MinTokenLength)
	}
	if len(token) > 72 {
		return fmt.Errorf("token must be at most 72 characters long")
	}
	return nil
}

// GenerateToken returns a random hex token suitable for HashToken.
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := randRead(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// RequireApprover rejects requests whose bearer token does not match hash.
// An empty hash disables the check.
func RequireApprover(hash string, next http.Handler) http.Handler {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" || !CheckTokenHash(token, hash) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="codeweaver"`)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"status":"error","message":"approver token required"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
