package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rush-contest/apiserver/internal/services"
	"github.com/rush-contest/apiserver/internal/store"
	"github.com/rush-contest/apiserver/types"
)

// AccountsHandler serves registration and the admin review queue.
type AccountsHandler struct {
	accounts *services.AccountService
}

func NewAccountsHandler(accounts *services.AccountService) *AccountsHandler {
	return &AccountsHandler{accounts: accounts}
}

// AccountsRouter registers account routes. Registration is public; the
// review queue is admin-only and notification opt-out needs a session.
func AccountsRouter(r chi.Router, accounts *services.AccountService, jwtSecret string) {
	handler := NewAccountsHandler(accounts)

	r.Post("/", handler.Register)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(jwtSecret))
		r.Post("/cancel-notifications", handler.CancelNotifications)

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin(accounts))
			r.Get("/pending", handler.ListPending)
			r.Post("/{accountID}/accept", handler.Accept)
			r.Delete("/{accountID}", handler.Reject)
		})
	})
}

type RegisterRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	// Unit is the encoded organizer selection, required unless Individual.
	Unit       string `json:"unit"`
	Individual bool   `json:"individual"`

	Notifications bool `json:"notifications"`
}

// Register accepts a public registration request and queues it for review.
func (h *AccountsHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if req.FirstName == "" || req.LastName == "" {
		writeError(w, http.StatusBadRequest, "first and last name are required")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, "invalid email address")
		return
	}
	if !req.Individual && strings.TrimSpace(req.Unit) == "" {
		writeError(w, http.StatusBadRequest, "unit is required")
		return
	}

	account, err := h.accounts.SubmitRequest(r.Context(), services.SubmitRequestInput{
		Email:         req.Email,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Unit:          req.Unit,
		Individual:    req.Individual,
		Notifications: req.Notifications,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, account)
	case errors.Is(err, services.ErrMalformedReference):
		writeError(w, http.StatusBadRequest, "malformed unit reference")
	case errors.Is(err, services.ErrUnknownUnit):
		writeError(w, http.StatusUnprocessableEntity, "unknown unit")
	case errors.Is(err, services.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email already registered")
	default:
		writeError(w, http.StatusInternalServerError, "failed to submit request")
	}
}

// ListPending returns accounts awaiting review.
func (h *AccountsHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.ListPending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}
	if accounts == nil {
		accounts = []types.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

// Accept approves a pending account.
func (h *AccountsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "accountID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	account, _, err := h.accounts.Accept(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, account)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "account not found")
	case errors.Is(err, services.ErrAlreadyActive):
		writeError(w, http.StatusConflict, "account already active")
	default:
		writeError(w, http.StatusInternalServerError, "failed to accept account")
	}
}

// Reject removes a pending account.
func (h *AccountsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "accountID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = h.accounts.Reject(r.Context(), id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "account not found")
	case errors.Is(err, services.ErrAlreadyActive):
		writeError(w, http.StatusConflict, "account already active")
	default:
		writeError(w, http.StatusInternalServerError, "failed to reject account")
	}
}

// CancelNotifications flips the caller's announcement opt-in off.
func (h *AccountsHandler) CancelNotifications(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.accounts.CancelNotifications(r.Context(), accountID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "notifications cancelled"})
}
