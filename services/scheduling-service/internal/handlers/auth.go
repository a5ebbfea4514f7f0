package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/slotline/slotline/libs/auth"
	"github.com/slotline/slotline/services/scheduling-service/internal/storage"
)

// UserStore is what the auth surface needs from account storage.
type UserStore interface {
	Create(ctx context.Context, user storage.User) error
	GetByEmail(ctx context.Context, email string) (storage.User, error)
}

type AuthHandler struct {
	users    UserStore
	logger   *slog.Logger
	secret   string
	tokenTTL time.Duration
}

func NewAuthHandler(users UserStore, logger *slog.Logger, secret string, tokenTTL time.Duration) *AuthHandler {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{users: users, logger: logger, secret: secret, tokenTTL: tokenTTL}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      string `json:"user_id"`
	ProviderID  string `json:"provider_id,omitempty"`
	Role        string `json:"role"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Password = strings.TrimSpace(req.Password)
	req.Name = strings.TrimSpace(req.Name)
	req.Role = strings.TrimSpace(req.Role)
	if req.Email == "" || req.Password == "" || req.Name == "" {
		badRequest(w, "email, password and name required")
		return
	}
	if len(req.Password) < 8 {
		badRequest(w, "password must be at least 8 characters")
		return
	}
	if req.Role == "" {
		req.Role = RoleCustomer
	}
	if req.Role != RoleProvider && req.Role != RoleCustomer {
		badRequest(w, "role must be provider or customer")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "failed to hash password", http.StatusInternalServerError)
		return
	}

	user := storage.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Name:         req.Name,
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: string(hash),
		Role:         req.Role,
	}
	if user.Role == RoleProvider {
		user.ProviderID = user.ID
	}

	if err := h.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			writeJSON(w, http.StatusConflict, errorBody{Error: "email already registered"})
			return
		}
		h.logger.ErrorContext(r.Context(), "user create failed", "err", err)
		http.Error(w, "failed to create user", http.StatusInternalServerError)
		return
	}

	h.issueToken(w, user, http.StatusCreated)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		badRequest(w, "email and password required")
		return
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		// Same response for unknown email and wrong password.
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	h.issueToken(w, user, http.StatusOK)
}

func (h *AuthHandler) issueToken(w http.ResponseWriter, user storage.User, status int) {
	now := time.Now().UTC()
	token, err := auth.SignHS256(auth.Claims{
		Sub:        user.ID,
		ProviderID: user.ProviderID,
		Role:       user.Role,
		Iat:        now.Unix(),
		Exp:        now.Add(h.tokenTTL).Unix(),
	}, h.secret)
	if err != nil {
		http.Error(w, "failed to sign token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		UserID:      user.ID,
		ProviderID:  user.ProviderID,
		Role:        user.Role,
	})
}
