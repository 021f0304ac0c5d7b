package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/user"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/security"
)

type UserFinder interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
}

type TokenSigner interface {
	Sign(userID, role string) (string, time.Time, error)
}

type AuthHandler struct {
	users  UserFinder
	tokens TokenSigner
}

func NewAuthHandler(users UserFinder, tokens TokenSigner) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req loginRequest
	if !BindJSON(ctx, &req) {
		return
	}

	u, err := h.users.GetByEmail(ctx.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			// same response as a bad password; do not reveal which
			RespondError(ctx, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid credentials", nil)
			return
		}
		RespondInternal(ctx)
		return
	}

	if security.CheckPassword(u.PasswordHash, req.Password) != nil {
		RespondError(ctx, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid credentials", nil)
		return
	}

	token, expiresAt, err := h.tokens.Sign(u.ID, u.Role)
	if err != nil {
		RespondInternal(ctx)
		return
	}

	Respond(ctx, http.StatusOK, "Logged in", gin.H{
		"token":     token,
		"expiresAt": expiresAt,
		"user": gin.H{
			"id":    u.ID,
			"email": u.Email,
			"name":  u.Name,
			"role":  u.Role,
		},
	})
}
