package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"
)

type subjectKey struct{}

// ContextWithSubject stores the authenticated caller
func ContextWithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext returns the authenticated caller or ""
func SubjectFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(subjectKey{}).(string); ok {
		return s
	}
	return ""
}

// JWTAuth verifies HS256 bearer tokens issued for the admin API
type JWTAuth struct {
	secret []byte
	issuer string
	logger logging.Logger
}

func NewJWTAuth(secret, issuer string, logger logging.Logger) (*JWTAuth, error) {
	if len(secret) < 32 {
		return nil, errors.ConfigError("JWT secret must be at least 32 characters long")
	}
	return &JWTAuth{
		secret: []byte(secret),
		issuer: issuer,
		logger: logging.OrGlobal(logger).WithFields(logging.Field{"component", "jwt_auth"}),
	}, nil
}

// IssueToken signs a token for subject valid for ttl
func (a *JWTAuth) IssueToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseToken validates tokenString and returns its subject
func (a *JWTAuth) ParseToken(tokenString string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", errors.AuthError("invalid token")
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.AuthError("token has no subject")
	}
	return claims.Subject, nil
}

// Middleware rejects requests without a valid "Authorization: Bearer" token with 401
func (a *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(tokenString) == "" {
			unauthorized(w, "missing bearer token")
			return
		}

		subject, err := a.ParseToken(strings.TrimSpace(tokenString))
		if err != nil {
			a.logger.WithContext(r.Context()).Debug("Rejected admin API token", logging.Err(err))
			unauthorized(w, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithSubject(r.Context(), subject)))
	})
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="trigger-engine"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
