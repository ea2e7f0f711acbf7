package handlers

import (
	"net/http"

	"github.com/diagnosis/cruise-bookings/internal/domain"
	"github.com/diagnosis/cruise-bookings/internal/http/middleware"
	"github.com/diagnosis/cruise-bookings/internal/http/response"
	"github.com/diagnosis/cruise-bookings/internal/session"
	"github.com/diagnosis/cruise-bookings/pkg/logger"
)

const resetRequestedMessage = "If an account with that email exists, a password reset link has been generated"

// Register handles user registration
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	user, err := h.accounts.Register(r.Context(), &req)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	if err := h.startSession(w, r, user.ID); err != nil {
		response.Error(w, r, err)
		return
	}

	response.JSON(w, http.StatusCreated, user.Public())
}

// Login handles user authentication
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	user, err := h.accounts.Login(r.Context(), &req, middleware.ClientIP(r))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	if err := h.startSession(w, r, user.ID); err != nil {
		response.Error(w, r, err)
		return
	}

	logger.InfoContext(r.Context(), "User logged in", "user_id", user.ID)
	response.JSON(w, http.StatusOK, user.Public())
}

// startSession binds a fresh CSRF secret and session cookie to the response.
func (h *Handlers) startSession(w http.ResponseWriter, r *http.Request, userID int64) error {
	if _, err := h.csrf.Rotate(r.Context(), w, r); err != nil {
		return err
	}
	return h.sessions.Establish(r.Context(), w, r, userID)
}

// Logout handles POST /api/auth/logout. It succeeds without a session.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Destroy(r.Context(), w, r); err != nil {
		response.Error(w, r, err)
		return
	}
	if _, err := h.csrf.Rotate(r.Context(), w, r); err != nil {
		response.Error(w, r, err)
		return
	}
	response.Message(w, http.StatusOK, "Logged out successfully")
}

// CurrentUser handles GET /api/auth/user
func (h *Handlers) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user := session.UserFromContext(r.Context())
	if user == nil {
		response.Error(w, r, domain.ErrNotAuthenticated)
		return
	}
	response.JSON(w, http.StatusOK, user.Public())
}

// RequestPasswordReset answers the same way whether or not the email is known.
func (h *Handlers) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req domain.ResetRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	issued, err := h.accounts.RequestPasswordReset(r.Context(), &req)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	body := map[string]any{"message": resetRequestedMessage}
	if h.opts.EchoResetToken && issued.Token != "" {
		body["resetToken"] = issued.Token
		body["resetLink"] = issued.Link
	}
	response.JSON(w, http.StatusOK, body)
}

// ResetPassword handles POST /api/auth/reset-password
func (h *Handlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ResetPasswordRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	if err := h.accounts.ResetPassword(r.Context(), &req); err != nil {
		response.Error(w, r, err)
		return
	}
	response.Message(w, http.StatusOK, "Password reset successfully")
}

// UpdateProfile handles PATCH /api/profile
func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateProfileRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	user, err := h.accounts.UpdateProfile(r.Context(), currentUserID(r), &req)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"message": "Profile updated successfully",
		"user":    user.Public(),
	})
}

// ChangePassword handles POST /api/profile/change-password
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ChangePasswordRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	if err := h.accounts.ChangePassword(r.Context(), currentUserID(r), &req); err != nil {
		response.Error(w, r, err)
		return
	}
	response.Message(w, http.StatusOK, "Password changed successfully")
}
