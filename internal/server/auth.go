package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"bibliotrack/pkg/domain"
)

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many signup attempts") {
		s.audit(r, "api.signup", "rate_limited")
		return
	}
	var req signupRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.audit(r, "api.signup", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, session, err := s.app.SignUp(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		s.audit(r, "api.signup", "fail", "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "api.signup", "success", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, authResponse{
		Token:        session.AccessToken,
		RefreshToken: session.RefreshToken,
		User:         user,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		s.audit(r, "api.login", "rate_limited")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.audit(r, "api.login", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, session, err := s.app.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		s.audit(r, "api.login", "fail", "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "api.login", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, authResponse{
		Token:        session.AccessToken,
		RefreshToken: session.RefreshToken,
		User:         user,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many refresh attempts") {
		s.audit(r, "api.refresh", "rate_limited")
		return
	}
	var req refreshRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.audit(r, "api.refresh", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		s.audit(r, "api.refresh", "fail", "reason", "missing_refresh_token")
		writeError(w, http.StatusBadRequest, "refreshToken is required")
		return
	}
	session, err := s.app.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.audit(r, "api.refresh", "fail", "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "api.refresh", "success")
	writeJSON(w, http.StatusOK, authResponse{
		Token:        session.AccessToken,
		RefreshToken: session.RefreshToken,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req logoutRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.audit(r, "api.logout", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		s.audit(r, "api.logout", "fail", "reason", "missing_token")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := s.app.Logout(r.Context(), token, req.RefreshToken); err != nil {
		s.audit(r, "api.logout", "fail", "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "api.logout", "success")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.otpLimiter, "too many password reset requests") {
		s.audit(r, "api.password_reset.request", "rate_limited")
		return
	}
	var req passwordResetRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	challengeID, expiresIn, err := s.app.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		s.audit(r, "api.password_reset.request", "fail", "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "api.password_reset.request", "success")
	writeJSON(w, http.StatusOK, passwordResetResponse{
		ChallengeID: challengeID,
		ExpiresIn:   expiresIn,
	})
}

func (s *Server) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.otpLimiter, "too many password reset attempts") {
		s.audit(r, "api.password_reset.confirm", "rate_limited")
		return
	}
	var req passwordResetConfirmRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.ResetPassword(r.Context(), req.ChallengeID, req.Email, req.Code, req.NewPassword); err != nil {
		s.audit(r, "api.password_reset.confirm", "fail", "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "api.password_reset.confirm", "success")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, user)
	case http.MethodPatch:
		var req updateMeRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if len(req.Preferences) == 0 {
			writeError(w, http.StatusBadRequest, "preferences is required")
			return
		}
		updated, err := s.app.UpdatePreferences(r.Context(), user.ID, req.Preferences)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	default:
		methodNotAllowed(w)
	}
}

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type authResponse struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken,omitempty"`
	User         domain.User `json:"user"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

type passwordResetResponse struct {
	ChallengeID string `json:"challengeId"`
	ExpiresIn   int    `json:"expiresIn"`
}

type passwordResetConfirmRequest struct {
	ChallengeID string `json:"challengeId"`
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

type updateMeRequest struct {
	Preferences map[string]string `json:"preferences"`
}
