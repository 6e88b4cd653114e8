package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rush-contest/apiserver/internal/services"
	"github.com/rush-contest/apiserver/internal/store"
	"github.com/rush-contest/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const defaultSessionTTL = 24 * time.Hour

// Password flows rendered by the frontend for a valid credential link.
const (
	passwordFlowSet   = "set"
	passwordFlowReset = "reset"
)

// AuthHandler provides login, session and credential-link endpoints.
type AuthHandler struct {
	accounts *services.AccountService
	tokens   *services.CredentialTokenService
	secret   []byte
	tokenTTL time.Duration
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(accounts *services.AccountService, tokens *services.CredentialTokenService, jwtSecret string) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		tokens:   tokens,
		secret:   []byte(jwtSecret),
		tokenTTL: defaultSessionTTL,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, accounts *services.AccountService, tokens *services.CredentialTokenService, jwtSecret string) {
	handler := NewAuthHandler(accounts, tokens, jwtSecret)

	r.Post("/login", handler.Login)
	r.With(handler.RequireAuth).Get("/me", handler.Me)
	r.Get("/password/{ref}/{token}", handler.CheckPasswordToken)
	r.Post("/password/{ref}/{token}", handler.SetPassword)
	r.Post("/password-reset", handler.RequestPasswordReset)
}

// RequireAuth enforces JWT authentication and injects the subject into context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return requireAuth(h.secret)(next)
}

// RequireAuth constructs auth middleware for other routers.
func RequireAuth(jwtSecret string) func(http.Handler) http.Handler {
	return requireAuth([]byte(jwtSecret))
}

func requireAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			subject, err := parseTokenSubject(tokenString, secret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), contextSubjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Login verifies credentials and returns a session JWT. Only active
// accounts that have set a password can log in.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Login = strings.TrimSpace(req.Login)
	if req.Login == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	account, err := h.accounts.GetByLogin(r.Context(), req.Login)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	if !account.Active || !account.HasPassword() {
		writeError(w, http.StatusForbidden, "account not active")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := issueSessionToken(account.ID, h.secret, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: token, Account: account})
}

// Me returns the current authenticated account.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	account, err := h.accounts.GetByID(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load account")
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// CheckPasswordToken validates a credential link before the frontend shows
// the password form. For a stale first-set link it re-issues and re-mails
// the link, so clicking an expired activation mail is self-healing.
func (h *AuthHandler) CheckPasswordToken(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	token := chi.URLParam(r, "token")

	account, err := h.tokens.ValidateToken(r.Context(), ref, token)
	switch {
	case err == nil:
		flow := passwordFlowSet
		if account.HasPassword() {
			flow = passwordFlowReset
		}
		writeJSON(w, http.StatusOK, PasswordTokenResponse{Email: account.Email, Flow: flow})
	case errors.Is(err, services.ErrTokenExpired):
		if !account.HasPassword() {
			if _, resendErr := h.accounts.ResendActivation(r.Context(), account); resendErr == nil {
				writeError(w, http.StatusGone, "token expired, a new link has been sent")
				return
			}
		}
		writeError(w, http.StatusGone, "token expired")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "account not found")
	case errors.Is(err, services.ErrTokenInvalid):
		writeError(w, http.StatusBadRequest, "invalid token")
	default:
		writeError(w, http.StatusInternalServerError, "failed to validate token")
	}
}

// SetPassword redeems a credential link, setting the account's password.
// The same endpoint serves first-time set and reset; redemption never runs
// activation side effects.
func (h *AuthHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	token := chi.URLParam(r, "token")

	var req SetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing password")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to set password")
		return
	}

	account, err := h.tokens.RedeemToken(r.Context(), ref, token, string(hashed))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, account)
	case errors.Is(err, services.ErrTokenExpired):
		writeError(w, http.StatusGone, "token expired")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "account not found")
	case errors.Is(err, services.ErrTokenInvalid):
		writeError(w, http.StatusBadRequest, "invalid token")
	default:
		writeError(w, http.StatusInternalServerError, "failed to set password")
	}
}

// RequestPasswordReset mails a reset link to an active account.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "missing email")
		return
	}

	_, _, err := h.accounts.RequestPasswordReset(r.Context(), req.Email)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"message": "reset link sent"})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "account not found")
	case errors.Is(err, services.ErrNotActive):
		writeError(w, http.StatusConflict, "account not active")
	default:
		writeError(w, http.StatusInternalServerError, "failed to request reset")
	}
}

type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type SetPasswordRequest struct {
	Password string `json:"password"`
}

type PasswordResetRequest struct {
	Email string `json:"email"`
}

type AuthResponse struct {
	Token   string        `json:"token"`
	Account types.Account `json:"account"`
}

type PasswordTokenResponse struct {
	Email string `json:"email"`
	Flow  string `json:"flow"`
}

func issueSessionToken(accountID int, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(accountID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func parseTokenSubject(tokenString string, secret []byte) (string, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("missing subject")
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
