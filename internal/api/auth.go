package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ValidateAPIKey reports whether providedKey matches configKey in constant
// time. An empty key on either side never matches.
func ValidateAPIKey(providedKey, configKey string) bool {
	if configKey == "" || providedKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(providedKey), []byte(configKey)) == 1
}

// ValidateAPIKeyHash reports whether providedKey matches a bcrypt hash.
func ValidateAPIKeyHash(providedKey, hash string) bool {
	if hash == "" || providedKey == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(providedKey)) == nil
}

// HashAPIKey returns the bcrypt hash to store as api_key_hash.
func HashAPIKey(key string) (string, error) {
	if key == "" {
		return "", errors.New("api key is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ExtractAPIKey extracts an API key from an Authorization: Bearer <key> header.
func ExtractAPIKey(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing Authorization header")
	}
	key, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", errors.New("invalid Authorization header format")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("missing API key")
	}
	return key, nil
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey, err := ExtractAPIKey(r)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, codeUnauthorized, err.Error())
			return
		}
		if !ValidateAPIKey(apiKey, s.config.APIKey) && !ValidateAPIKeyHash(apiKey, s.config.APIKeyHash) {
			s.writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
