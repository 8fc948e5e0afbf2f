package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/guidedesk/guidedesk/internal/api"
	"github.com/guidedesk/guidedesk/internal/server/store"
)

const tokenIssuer = "guidedesk"

// Claims are carried by the bearer tokens issued at login.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() int64 {
	id, _ := strconv.ParseInt(c.Subject, 10, 64)
	return id
}

// IsAdmin reports whether the token grants admin rights.
func (c *Claims) IsAdmin() bool {
	return c.Role == api.RoleAdmin
}

type tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func (t tokens) issue(u store.User) (string, error) {
	now := t.now()
	claims := Claims{
		Username: u.Username,
		Role:     u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatInt(u.ID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

func (t tokens) parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

type claimsKey struct{}

func withClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFromContext returns the claims set by the auth middleware.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok && c != nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// requireAuth rejects requests without a valid bearer token. Browsers cannot
// set headers on websocket upgrades, so queryToken also accepts ?token=.
func (s *Server) requireAuth(queryToken bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" && queryToken {
				raw = strings.TrimSpace(r.URL.Query().Get("token"))
			}
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "Missing token")
				return
			}
			claims, err := s.tokens.parse(raw)
			if err != nil {
				message := "Invalid token"
				if errors.Is(err, jwt.ErrTokenExpired) {
					message = "Token expired"
				}
				writeError(w, http.StatusUnauthorized, message)
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok || !claims.IsAdmin() {
			writeError(w, http.StatusForbidden, "Admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	body.Username = strings.TrimSpace(body.Username)
	if body.Username == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := s.store.UserByUsername(r.Context(), body.Username)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.log.Infow("login rejected", "username", body.Username, "reason", "unknown user")
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	case err != nil:
		s.log.Errorw("login lookup failed", "username", body.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)); err != nil {
		s.log.Infow("login rejected", "username", body.Username, "reason", "bad password")
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := s.tokens.issue(user)
	if err != nil {
		s.log.Errorw("issue token failed", "username", user.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}
	s.log.Infow("login", "username", user.Username, "role", user.Role)
	writeJSON(w, http.StatusOK, api.LoginResponse{
		Token: token,
		User:  api.User{ID: user.ID, Username: user.Username, Role: user.Role},
	})
}
