// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/oklog/ulid/v2"

	"github.com/mysurvey/mysurvey/internal/auth"
)

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	reg, err := auth.NewRegistration(req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.auth.Register(r.Context(), reg)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, result)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	email, err := auth.ValidateEmail(req.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Password == "" {
		s.writeError(w, r, invalidInput("password", "Password is required"))
		return
	}
	result, err := s.auth.Login(r.Context(), email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.RefreshToken == "" {
		s.writeError(w, r, invalidInput("refreshToken", "Refresh token is required"))
		return
	}
	result, err := s.auth.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	email, err := auth.ValidateEmail(req.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.auth.ForgotPassword(r.Context(), email); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, "If the email exists, a reset link has been sent")
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, "Password successfully reset")
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := s.callerID(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.CurrentPassword == "" {
		s.writeError(w, r, invalidInput("currentPassword", "Current password is required"))
		return
	}
	if err := s.auth.ChangePassword(r.Context(), id, req.CurrentPassword, req.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, "Password successfully changed")
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := s.callerID(w, r)
	if !ok {
		return
	}
	profile, err := s.auth.Profile(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, profile)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, ok := s.callerID(w, r)
	if !ok {
		return
	}
	if err := s.auth.Logout(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, "Successfully logged out")
}

func (s *Server) handleSetActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := ulid.Parse(mux.Vars(r)["id"])
		if err != nil {
			s.writeError(w, r, invalidInput("id", "Invalid user id"))
			return
		}
		profile, err := s.auth.SetActive(r.Context(), id, active)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, profile)
	}
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.readiness != nil {
		if err := s.readiness(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "readiness check failed", "error", err)
			writeErrorBody(w, http.StatusServiceUnavailable, "NOT_READY", "Service unavailable")
			return
		}
	}
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

// callerID returns the authenticated account id.
func (s *Server) callerID(w http.ResponseWriter, r *http.Request) (ulid.ULID, bool) {
	profile, ok := ProfileFrom(r.Context())
	if ok {
		if id, err := ulid.Parse(profile.ID); err == nil {
			return id, true
		}
	}
	writeErrorBody(w, http.StatusUnauthorized, auth.CodeInvalidToken, "Unauthorized")
	return ulid.ULID{}, false
}
