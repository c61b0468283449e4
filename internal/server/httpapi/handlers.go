package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/dmitrijs2005/starauth/internal/server/ratelimit"
	"github.com/dmitrijs2005/starauth/internal/server/services"
)

const tokenType = "Bearer"

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, services.KindValidation, "registration data is required")
		return
	}
	req.normalize()
	if err := req.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	reg, err := s.sessions.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	s.guard.setAccessCookie(w, reg.AccessToken, reg.ExpiresIn)
	writeJSON(w, http.StatusOK, registerResponse{
		Message:     "Registration successful. Please check your email for verification.",
		AccessToken: reg.AccessToken,
		TokenType:   tokenType,
		ExpiresIn:   seconds(reg.ExpiresIn),
		User:        reg.Account,
	})
}

func (s *Server) verifyEmail(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		writeError(w, http.StatusBadRequest, services.KindValidation, "verification token is required")
		return
	}

	if err := s.sessions.VerifyEmail(r.Context(), token); err != nil {
		status := 0
		if services.KindOf(err) == services.KindInvalidToken {
			status = http.StatusBadRequest
		}
		writeServiceErrorStatus(w, err, status)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Email verified successfully. You can now log in."})
}

func (s *Server) resendVerification(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req resendVerificationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, services.KindValidation, "email is required")
		return
	}
	req.normalize()
	if err := req.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	if err := s.sessions.ResendVerification(r.Context(), req.Email); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Message: "If the account exists and is not verified yet, a new verification email has been sent.",
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, services.KindValidation, "login credentials are required")
		return
	}
	req.normalize()
	if err := req.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	ctx := r.Context()
	key := ratelimit.LoginKey(clientIP(r), req.Email)
	if ok, retryAfter := s.allowLogin(ctx, key); !ok {
		s.logger.Warn(ctx, "login throttled", "email", services.NormalizeEmail(req.Email), "ip", clientIP(r))
		writeRateLimited(w, retryAfter)
		return
	}

	pair, err := s.sessions.Login(ctx, req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.resetLogin(ctx, key)

	s.writeTokens(w, pair)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, services.KindValidation, "refresh token is required")
		return
	}
	req.normalize()
	if err := req.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	pair, err := s.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	s.writeTokens(w, pair)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	id := IdentityFrom(r.Context())

	if err := s.sessions.Logout(r.Context(), id.ID); err != nil {
		writeServiceError(w, err)
		return
	}

	s.guard.clearAccessCookie(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully."})
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, services.KindValidation, "password data is required")
		return
	}
	if err := req.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	id := IdentityFrom(r.Context())
	if err := s.sessions.ChangePassword(r.Context(), id.ID, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Password changed successfully. Please log in again."})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, IdentityFrom(r.Context()))
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	account, err := s.accounts.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) updateAccount(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req updateAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, services.KindValidation, "update data is required")
		return
	}
	if err := req.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	actor := IdentityFrom(r.Context())
	account, err := s.accounts.UpdateState(r.Context(), ps.ByName("id"), req.change())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	s.logger.Info(r.Context(), "account updated by admin", "admin_id", actor.ID, "account_id", account.ID)
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Timestamp: time.Now().UTC()})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			s.logger.Warn(r.Context(), "readiness check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Timestamp: time.Now().UTC()})
			return
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ready", Timestamp: time.Now().UTC()})
}

func (s *Server) writeTokens(w http.ResponseWriter, pair *services.TokenPair) {
	s.guard.setAccessCookie(w, pair.AccessToken, pair.ExpiresIn)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    tokenType,
		ExpiresIn:    seconds(pair.ExpiresIn),
	})
}
