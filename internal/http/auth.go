package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/box3-delivery/internal/models"
)

const (
	bearerPrefix            = "bearer"
	viewerKey    contextKey = "viewer"
)

// ViewerClaims identify a wallet and the side of the order it acts on.
type ViewerClaims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// ViewerAuth verifies HS256 bearer tokens whose subject is a wallet address.
type ViewerAuth struct {
	Secret []byte
	Issuer string
}

// Sign issues a token for v, used by box3ctl and tests.
func (a ViewerAuth) Sign(v models.Viewer, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := ViewerClaims{
		Role: v.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.Issuer,
			Subject:   v.Account,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
}

// Viewer parses and validates a token.
func (a ViewerAuth) Viewer(token string) (models.Viewer, error) {
	var claims ViewerClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(time.Minute),
	)
	if err != nil {
		return models.Viewer{}, fmt.Errorf("failed to parse token: %w", err)
	}
	if claims.Subject == "" {
		return models.Viewer{}, errors.New("missing subject claim")
	}
	switch claims.Role {
	case models.RoleCustomer, models.RoleAgent:
	default:
		return models.Viewer{}, fmt.Errorf("invalid role %q", claims.Role)
	}
	return models.Viewer{Account: claims.Subject, Role: claims.Role}, nil
}

func (s *Server) viewerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractToken(r)
		if err == nil {
			var v models.Viewer
			v, err = s.auth.Viewer(token)
			if err == nil {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), viewerKey, v)))
				return
			}
		}
		s.logger.Debug("unauthorized", "error", err, "request_id", requestIDFromContext(r.Context()))
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
	})
}

// extractToken reads the Authorization header, falling back to the token
// query parameter for websocket clients that cannot set headers.
func extractToken(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		if t := r.URL.Query().Get("token"); t != "" {
			return t, nil
		}
		return "", errors.New("missing authorization header")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], bearerPrefix) {
		return "", errors.New("invalid authorization format")
	}
	return parts[1], nil
}

func viewerFromContext(ctx context.Context) (models.Viewer, bool) {
	v, ok := ctx.Value(viewerKey).(models.Viewer)
	return v, ok
}
