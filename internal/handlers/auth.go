package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/emilythestrangee/lireddit/backend/internal/middleware"
	"github.com/emilythestrangee/lireddit/backend/internal/models"
	"github.com/emilythestrangee/lireddit/backend/internal/users"
)

type AuthHandler struct {
	users    *users.Service
	sessions SessionIssuer
	cookie   CookieConfig
	logger   *zap.Logger
}

func NewAuthHandler(userService *users.Service, sessions SessionIssuer, cookie CookieConfig, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: userService, sessions: sessions, cookie: cookie, logger: logger}
}

// Register handles user registration
func (h *AuthHandler) Register(c *gin.Context) {
	var input models.UsernamePasswordInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, fieldErrs, err := h.users.Register(c.Request.Context(), input)
	if err != nil {
		h.logger.Error("failed to register user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}
	if fieldErrs != nil {
		c.JSON(http.StatusBadRequest, models.UserResponse{Errors: fieldErrs})
		return
	}

	h.startSession(c, http.StatusCreated, user)
}

// Login handles user login
func (h *AuthHandler) Login(c *gin.Context) {
	var input models.LoginRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, fieldErrs, err := h.users.Login(c.Request.Context(), input.UsernameOrEmail, input.Password)
	if err != nil {
		h.logger.Error("failed to log in", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log in"})
		return
	}
	if fieldErrs != nil {
		c.JSON(http.StatusUnauthorized, models.UserResponse{Errors: fieldErrs})
		return
	}

	h.startSession(c, http.StatusOK, user)
}

// Logout clears the session cookie. Bearer tokens simply expire.
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var input models.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sent, err := h.users.ForgotPassword(c.Request.Context(), input.Email)
	if err != nil {
		h.logger.Error("forgot password failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send reset link"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": sent})
}

// ChangePassword redeems a reset token and logs the user in.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var input models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, fieldErrs, err := h.users.ChangePassword(c.Request.Context(), input.Token, input.NewPassword)
	if err != nil {
		h.logger.Error("change password failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to change password"})
		return
	}
	if fieldErrs != nil {
		c.JSON(http.StatusBadRequest, models.UserResponse{Errors: fieldErrs})
		return
	}

	h.startSession(c, http.StatusOK, user)
}

// GetMe returns the current user, or a null user for anonymous callers.
func (h *AuthHandler) GetMe(c *gin.Context) {
	user, err := h.users.CurrentUser(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		h.logger.Error("failed to load current user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *AuthHandler) startSession(c *gin.Context, status int, user *models.User) {
	token, expiresAt, err := h.sessions.Issue(user.ID)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Int("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	maxAge := int(time.Until(expiresAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, token, maxAge, "/", "", h.cookie.Secure, true)
	c.JSON(status, models.UserResponse{User: user, Token: token})
}
