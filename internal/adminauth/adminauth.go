// Package adminauth guards the administrative API with a single shared
// credential pair checked on every request. There is no admin session
// state; the console re-sends the credential each time.
package adminauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

type Checker struct {
	username string
	// Exactly one of password / passwordHash is set. passwordHash is a
	// bcrypt hash and preferred for deployments.
	password     string
	passwordHash string
}

func New(username, password, passwordHash string) *Checker {
	return &Checker{username: username, password: password, passwordHash: passwordHash}
}

// VerifyPassword compares in constant time. Plain equality would leak
// prefix length through timing.
func (c *Checker) VerifyPassword(password string) bool {
	if c.passwordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(c.passwordHash), []byte(password)) == nil
	}
	return constantTimeEqual(c.password, password)
}

func (c *Checker) verifyUsername(username string) bool {
	return constantTimeEqual(c.username, username)
}

// constantTimeEqual hashes both sides first so inputs of different
// lengths still compare in constant time.
func constantTimeEqual(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}

// Middleware enforces HTTP basic auth on the admin sub-router.
func (c *Checker) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || !c.verifyUsername(username) || !c.VerifyPassword(password) {
			slog.Warn("admin auth rejected", "path", r.URL.Path, "remote", r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Basic realm="license admin"`)
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
