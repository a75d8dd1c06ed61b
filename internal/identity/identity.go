package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/medagenda/clinic-scheduling/internal/scheduling"
)

type contextKey string

const principalKey contextKey = "principal"

// Claims is the token shape issued by the identity collaborator.
type Claims struct {
	Roles    []string `json:"roles"`
	DoctorID string   `json:"doctor_id,omitempty"`
	jwt.RegisteredClaims
}

// Middleware enforces an HMAC-signed bearer token and resolves it into a
// scheduling.Principal on the request context.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "authentication not configured", http.StatusUnauthorized)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := Claims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			principal, err := claims.principal()
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (c Claims) principal() (scheduling.Principal, error) {
	p := scheduling.Principal{Subject: c.Subject}

	for _, r := range c.Roles {
		switch scheduling.Role(r) {
		case scheduling.RoleAdmin, scheduling.RoleSecretary, scheduling.RoleDoctor:
			p.Roles = append(p.Roles, scheduling.Role(r))
		}
	}
	if len(p.Roles) == 0 {
		return scheduling.Principal{}, fmt.Errorf("token carries no known role")
	}

	if p.HasRole(scheduling.RoleDoctor) {
		id, err := uuid.Parse(c.DoctorID)
		if err != nil {
			return scheduling.Principal{}, fmt.Errorf("doctor role without valid doctor_id")
		}
		p.DoctorID = id
	}

	return p, nil
}

// PrincipalFromContext returns the resolved principal, if any.
func PrincipalFromContext(ctx context.Context) (scheduling.Principal, bool) {
	p, ok := ctx.Value(principalKey).(scheduling.Principal)
	return p, ok
}

// SignToken mints a token for the given principal. Used by tests and the
// simulator; production tokens come from the identity collaborator.
func SignToken(secret string, p scheduling.Principal, ttl time.Duration) (string, error) {
	roles := make([]string, len(p.Roles))
	for i, r := range p.Roles {
		roles[i] = string(r)
	}

	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	if p.DoctorID != uuid.Nil {
		claims.DoctorID = p.DoctorID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
