package handlers

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ══════════════════════════════════════════════════════════════════════════════
// API KEY AUTHENTICATION
// Keys are configured as bcrypt hashes. A key that verified once is remembered
// by its SHA-256 digest so bcrypt runs once per key, not once per request.
// ══════════════════════════════════════════════════════════════════════════════

// ErrNoAPIKeys is returned when no hash is configured.
var ErrNoAPIKeys = errors.New("no API key hashes configured")

// APIKeyAuth verifies admin API keys against bcrypt hashes.
type APIKeyAuth struct {
	hashes [][]byte

	mu       sync.RWMutex
	verified map[[sha256.Size]byte]bool
}

// NewAPIKeyAuth validates the hashes and returns an authenticator.
func NewAPIKeyAuth(hashes []string) (*APIKeyAuth, error) {
	a := &APIKeyAuth{verified: make(map[[sha256.Size]byte]bool)}
	for i, h := range hashes {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, err := bcrypt.Cost([]byte(h)); err != nil {
			return nil, fmt.Errorf("api key hash %d: %w", i, err)
		}
		a.hashes = append(a.hashes, []byte(h))
	}
	if len(a.hashes) == 0 {
		return nil, ErrNoAPIKeys
	}
	return a, nil
}

// HashAPIKey returns the bcrypt hash to put in HTTP_API_KEY_HASHES.
func HashAPIKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("api key is empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// IsValid checks if an API key matches one of the configured hashes.
func (a *APIKeyAuth) IsValid(key string) bool {
	if key == "" {
		return false
	}
	digest := sha256.Sum256([]byte(key))

	a.mu.RLock()
	ok, seen := a.verified[digest]
	a.mu.RUnlock()
	if seen {
		return ok
	}

	ok = false
	for _, h := range a.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(key)) == nil {
			ok = true
			break
		}
	}

	// Only positives are cached; a flood of random keys must not grow the map.
	if ok {
		a.mu.Lock()
		a.verified[digest] = true
		a.mu.Unlock()
	}
	return ok
}

// ══════════════════════════════════════════════════════════════════════════════
// SECURITY HEADERS MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// SecurityHeadersMiddleware adds security-related headers.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST SIZE LIMIT MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// RequestSizeLimitMiddleware limits the size of request bodies.
func RequestSizeLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				_, _ = w.Write([]byte(`{"success":false,"error":{"code":"payload_too_large","message":"Request body too large"}}`))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
