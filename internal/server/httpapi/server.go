// Package httpapi implements the relay's HTTP endpoints: account
// lifecycle and the contact graph. Authenticated routes carry a bearer
// token; errors are JSON bodies with a "message" field.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cipherchat/internal/errs"
	"cipherchat/internal/models"
)

// Store is the persistence surface the API needs. *database.DB
// satisfies it.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByTag(ctx context.Context, tag string) (*models.User, error)
	UpdateUsername(ctx context.Context, tag, username string) error
	DeleteUser(ctx context.Context, tag string) error

	CreateContactRequest(ctx context.Context, fromTag, toTag string) (*models.Contact, error)
	ListContacts(ctx context.Context, ownerTag string) ([]models.Contact, error)
	AcceptContact(ctx context.Context, id uuid.UUID, ownerTag string) error
	RejectContact(ctx context.Context, id uuid.UUID, ownerTag string) error
	BlockContact(ctx context.Context, id uuid.UUID, ownerTag string) error
}

// Server holds the API dependencies.
type Server struct {
	store  Store
	tokens *TokenIssuer
	log    *zap.Logger
}

// New constructs the API server.
func New(store Store, tokens *TokenIssuer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{store: store, tokens: tokens, log: logger}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /register", s.handleRegister)

	mux.Handle("PUT /user/username", s.authenticated(s.handleUpdateUsername))
	mux.Handle("DELETE /user", s.authenticated(s.handleDeleteUser))

	mux.Handle("GET /contacts", s.authenticated(s.handleListContacts))
	mux.Handle("POST /contacts/request", s.authenticated(s.handleRequestContact))
	mux.Handle("PUT /contacts/accept/{id}", s.authenticated(s.handleAcceptContact))
	mux.Handle("DELETE /contacts/reject/{id}", s.authenticated(s.handleRejectContact))
	mux.Handle("PUT /contacts/block/{id}", s.authenticated(s.handleBlockContact))

	return mux
}

type ctxKey int

const ctxKeyTag ctxKey = 0

// authenticated verifies the bearer token and stores the caller's tag
// in the request context.
func (s *Server) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		tag, err := s.tokens.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), ctxKeyTag, tag)))
	})
}

// callerTag returns the authenticated tag stored by the middleware.
func callerTag(r *http.Request) string {
	tag, _ := r.Context().Value(ctxKeyTag).(string)
	return tag
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// writeStoreError maps sentinel errors to HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, errs.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already exists")
	case errors.Is(err, errs.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid request")
	case errors.Is(err, errs.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
