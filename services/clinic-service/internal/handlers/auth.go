package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"golang.org/x/crypto/bcrypt"
)

// RoleAdmin is the only role allowed through the administrative routes.
const RoleAdmin = "admin"

type claimsKey struct{}

// ClaimsFromContext returns the verified session claims, if any.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return c, ok
}

// RequireAuth rejects requests without a valid bearer token and stores the
// verified claims on the request context.
func RequireAuth(v auth.Verifier) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			if !strings.HasPrefix(header, "Bearer ") || token == "" {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid Authorization header")
				return
			}
			claims, err := v.Verify(token)
			if err != nil {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

// RequireRole lets through only callers whose verified role is in roles.
// It must run after RequireAuth.
func RequireRole(roles ...string) httpx.Middleware {
	allowed := map[string]struct{}{}
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			if _, ok := allowed[claims.Role]; !ok {
				httpx.WriteError(w, http.StatusForbidden, "forbidden", "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoginConfig describes the single administrator account. An empty
// PasswordHash disables login.
type LoginConfig struct {
	Email        string
	PasswordHash []byte
	Secret       []byte
	Issuer       string
	TTL          time.Duration
}

type AuthHandler struct {
	cfg    LoginConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewAuthHandler(cfg LoginConfig, logger *slog.Logger) *AuthHandler {
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	return &AuthHandler{cfg: cfg, logger: logger, now: time.Now}
}

type loginResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresAt string `json:"expires_at"`
}

// Login exchanges the administrator's credentials for a session token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if len(h.cfg.PasswordHash) == 0 || h.cfg.Email == "" || len(h.cfg.Secret) == 0 {
		httpx.WriteError(w, http.StatusServiceUnavailable, "login_disabled", "administrator login is not configured")
		return
	}
	p, err := decodePayload(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	email := strings.ToLower(p.str("email", "username"))
	password := p.str("password")
	if email == "" || password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_credentials", "email and password are required")
		return
	}
	// Compare the hash even on an email mismatch so both failures cost the same.
	hashErr := bcrypt.CompareHashAndPassword(h.cfg.PasswordHash, []byte(password))
	if email != strings.ToLower(h.cfg.Email) || hashErr != nil {
		h.logger.WarnContext(r.Context(), "admin login rejected", "email", email)
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	}

	now := h.now()
	claims := auth.NewSessionClaims(email, email, RoleAdmin, h.cfg.Issuer, h.cfg.TTL, now)
	token, err := auth.SignHS256(claims, h.cfg.Secret)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.InfoContext(r.Context(), "admin login", "email", email)
	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: now.Add(h.cfg.TTL).UTC().Format(time.RFC3339),
	})
}
