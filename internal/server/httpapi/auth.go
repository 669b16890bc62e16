package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"cipherchat/internal/crypto"
	"cipherchat/internal/models"
)

// TokenIssuer signs and verifies HS256 bearer tokens whose subject is
// the user tag.
type TokenIssuer struct {
	signKey   []byte
	accessTTL time.Duration
}

// NewTokenIssuer constructs an issuer with the given signing key and TTL.
func NewTokenIssuer(signKey []byte, accessTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{signKey: signKey, accessTTL: accessTTL}
}

// Issue creates a signed token for the given tag.
func (t *TokenIssuer) Issue(tag string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   tag,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.accessTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.signKey)
}

// Verify parses a token and returns its subject tag.
func (t *TokenIssuer) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.signKey, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", fmt.Errorf("missing subject")
	}
	return claims.Subject, nil
}

type authRequest struct {
	Tag      string `json:"tag"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token    string `json:"token"`
	Tag      string `json:"tag"`
	Username string `json:"username"`
}

// normalizeTag enforces the @tag form used across the system.
func normalizeTag(tag string) string {
	tag = strings.TrimSpace(strings.ToLower(tag))
	if tag == "" {
		return ""
	}
	if !strings.HasPrefix(tag, "@") {
		tag = "@" + tag
	}
	return tag
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	tag := normalizeTag(req.Tag)
	if tag == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "tag and password are required")
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		username = strings.TrimPrefix(tag, "@")
	}

	salt, err := crypto.RandBytes(16)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user := &models.User{
		ID:           uuid.New(),
		Tag:          tag,
		Username:     username,
		PasswordHash: crypto.HashPassword([]byte(req.Password), salt),
		Salt:         salt,
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		writeStoreError(w, err)
		return
	}

	token, err := s.tokens.Issue(tag)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.log.Info("user registered", zap.String("tag", tag))
	writeJSON(w, http.StatusCreated, authResponse{Token: token, Tag: tag, Username: username})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	tag := normalizeTag(req.Tag)
	user, err := s.store.GetUserByTag(r.Context(), tag)
	if err != nil || !crypto.VerifyPassword([]byte(req.Password), user.Salt, user.PasswordHash) {
		// do not reveal whether the tag exists
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := s.tokens.Issue(tag)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.log.Info("user logged in", zap.String("tag", tag))
	writeJSON(w, http.StatusOK, authResponse{Token: token, Tag: user.Tag, Username: user.Username})
}

func (s *Server) handleUpdateUsername(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Username) == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	if err := s.store.UpdateUsername(r.Context(), callerTag(r), strings.TrimSpace(req.Username)); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	tag := callerTag(r)
	if err := s.store.DeleteUser(r.Context(), tag); err != nil {
		writeStoreError(w, err)
		return
	}
	s.log.Info("user deleted", zap.String("tag", tag))
	w.WriteHeader(http.StatusNoContent)
}
