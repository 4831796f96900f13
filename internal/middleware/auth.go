package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const (
	SubjectKey   contextKey = "subject"
	RequestIDKey contextKey = "request_id"
)

// SessionTTL is the lifetime of tokens minted from the API key.
const SessionTTL = 24 * time.Hour

var ErrInvalidAPIKey = errors.New("invalid API key")

// Auth accepts either the shared API key or an HS256 session token minted
// from it. There is a single owner, so the subject is informational.
type Auth struct {
	APIKey string
	Secret []byte
}

func NewAuth(apiKey, secret string) *Auth {
	return &Auth{APIKey: apiKey, Secret: []byte(secret)}
}

func (a *Auth) validKey(key string) bool {
	return key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(a.APIKey)) == 1
}

// IssueToken trades the API key for a session token.
func (a *Auth) IssueToken(apiKey, subject string) (string, time.Time, error) {
	if !a.validKey(apiKey) {
		return "", time.Time{}, ErrInvalidAPIKey
	}
	if subject == "" {
		subject = "owner"
	}

	now := time.Now()
	exp := now.Add(SessionTTL)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseToken verifies a session token and returns its subject.
func (a *Auth) ParseToken(tokenStr string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.Secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", jwt.ErrTokenInvalidClaims
	}
	return claims.Subject, nil
}

// Middleware checks, in order, the apiKey query parameter, the X-API-Key
// header and a Bearer session token.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.validKey(r.URL.Query().Get("apiKey")) || a.validKey(r.Header.Get("X-API-Key")) {
			ctx := context.WithValue(r.Context(), SubjectKey, "api_key")
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing API key or authorization header", r)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid authorization format", r)
			return
		}

		subject, err := a.ParseToken(parts[1])
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				writeError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired", r)
			} else {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token", r)
			}
			return
		}

		ctx := context.WithValue(r.Context(), SubjectKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSubject extracts the authenticated subject from the request context.
func GetSubject(ctx context.Context) string {
	s, _ := ctx.Value(SubjectKey).(string)
	return s
}

func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

func writeError(w http.ResponseWriter, status int, code, message string, r *http.Request) {
	requestID := GetRequestID(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":       code,
			"message":    message,
			"request_id": requestID,
		},
	})
}
