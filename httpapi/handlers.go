package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/MrEthical07/stagepass"
	"github.com/MrEthical07/stagepass/middleware"
)

// decode reads a JSON body into v, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req stagepass.RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.service.Register(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req stagepass.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	pair, err := s.service.Login(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req stagepass.RefreshRequest
	if !decode(w, r, &req) {
		return
	}
	pair, err := s.service.RefreshSession(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// handleLogout revokes the session behind the posted refresh token. Logging
// out everywhere goes through /auth/logout/all so the user id comes from a
// verified access token.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req stagepass.LogoutRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.service.Logout(r.Context(), stagepass.LogoutRequest{RefreshToken: req.RefreshToken})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	res, err := s.service.Logout(r.Context(), stagepass.LogoutRequest{UserID: claims.UserID(), All: true})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRequestVerification(w http.ResponseWriter, r *http.Request) {
	var req stagepass.EmailVerificationRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.service.RequestEmailVerification(r.Context(), req); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req stagepass.VerifyEmailRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.service.VerifyEmail(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req stagepass.ForgotPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.service.ForgotPassword(r.Context(), req); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req stagepass.ResetPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.service.ResetPassword(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type meResponse struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	UserType  string    `json:"user_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	res := meResponse{UserID: claims.UserID(), Email: claims.Email, UserType: claims.UserType}
	if claims.ExpiresAt != nil {
		res.ExpiresAt = claims.ExpiresAt.Time
	}
	writeJSON(w, http.StatusOK, res)
}

type sessionsResponse struct {
	Sessions []stagepass.Session `json:"sessions"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	sessions, err := s.service.Sessions(r.Context(), claims.UserID())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if sessions == nil {
		sessions = []stagepass.Session{}
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: sessions})
}
