package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/go-chi/chi/v5"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Username string `json:"username" validate:"required,min=1,max=64"`
	Password string `json:"password" validate:"required,max=1024"`
}

type sessionResponse struct {
	User  *userView `json:"user"`
	Token string    `json:"token"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.engine.Register(r.Context(), authcore.RegisterRequest{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, sessionResponse{User: viewOf(res.Record), Token: res.SessionToken})
}

type loginRequest struct {
	Email         string `json:"email" validate:"required,max=254"`
	Password      string `json:"password" validate:"required,max=1024"`
	TwoFactorCode string `json:"twoFactorCode" validate:"omitempty,numeric,min=6,max=8"`
}

type challengeResponse struct {
	TwoFactorRequired bool `json:"twoFactorRequired"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.engine.Login(r.Context(), authcore.LoginRequest{
		Email:         req.Email,
		Password:      req.Password,
		TwoFactorCode: req.TwoFactorCode,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if res.TwoFactorRequired {
		h.writeJSON(w, http.StatusOK, challengeResponse{TwoFactorRequired: true})
		return
	}
	h.writeJSON(w, http.StatusOK, sessionResponse{User: viewOf(res.Record), Token: res.SessionToken})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if err := h.engine.Logout(r.Context(), p.Record.ID, p.SessionID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, viewOf(principal(r).Record))
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ConsumeVerificationToken(r.Context(), r.URL.Query().Get("token")); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, messageResponse{Message: "email verified"})
}

func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	if _, err := h.engine.IssueVerificationToken(r.Context(), principal(r).Record.ID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, messageResponse{Message: "verification email sent"})
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// ForgotPassword answers 202 whether or not the address is registered.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.IssueResetToken(r.Context(), req.Email); err != nil {
		h.logger.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("issue reset token")
	}
	h.writeJSON(w, http.StatusAccepted, messageResponse{Message: "if the address is registered a reset email has been sent"})
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,max=1024"`
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.ConsumeResetToken(r.Context(), req.Token, req.Password); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, messageResponse{Message: "password updated"})
}

func (h *Handler) TwoFactorSetup(w http.ResponseWriter, r *http.Request) {
	enrollment, err := h.engine.EnrollTwoFactor(r.Context(), principal(r).Record.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, enrollment)
}

type twoFactorCodeRequest struct {
	Code string `json:"code" validate:"required,numeric,min=6,max=8"`
}

type twoFactorStatusResponse struct {
	TwoFactorEnabled bool `json:"twoFactorEnabled"`
}

func (h *Handler) TwoFactorVerify(w http.ResponseWriter, r *http.Request) {
	var req twoFactorCodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	ok, err := h.engine.ConfirmTwoFactor(r.Context(), principal(r).Record.ID, req.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !ok {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid two-factor code"})
		return
	}
	h.writeJSON(w, http.StatusOK, twoFactorStatusResponse{TwoFactorEnabled: true})
}

type twoFactorDisableRequest struct {
	Password string `json:"password" validate:"required,max=1024"`
}

func (h *Handler) TwoFactorDisable(w http.ResponseWriter, r *http.Request) {
	var req twoFactorDisableRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.DisableTwoFactor(r.Context(), principal(r).Record.ID, req.Password); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, twoFactorStatusResponse{TwoFactorEnabled: false})
}

type sessionsResponse struct {
	Sessions []string `json:"sessions"`
	Current  string   `json:"current"`
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	ids, err := h.engine.ListSessions(r.Context(), p.Record.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	h.writeJSON(w, http.StatusOK, sessionsResponse{Sessions: ids, Current: p.SessionID})
}

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 200
)

type activityResponse struct {
	Logs []authcore.ActivityEvent `json:"logs"`
}

// Activity lists the caller's own recent activity, newest first.
func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	limit := defaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeError(w, r, fmt.Errorf("%w: limit must be a positive integer", authcore.ErrInvalidInput))
			return
		}
		limit = min(n, maxActivityLimit)
	}
	logs, err := h.activity.Recent(r.Context(), p.Record.ID, int64(limit))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if logs == nil {
		logs = []authcore.ActivityEvent{}
	}
	h.writeJSON(w, http.StatusOK, activityResponse{Logs: logs})
}

type revokeSessionRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
}

func (h *Handler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	var req revokeSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.RevokeSession(r.Context(), principal(r).Record.ID, req.SessionID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

func (h *Handler) SetRole(w http.ResponseWriter, r *http.Request) {
	var req setRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.engine.SetRole(r.Context(), chi.URLParam(r, "id"), authcore.Role(req.Role))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, viewOf(rec))
}

type setPermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"dive,required,max=128"`
}

func (h *Handler) SetPermissions(w http.ResponseWriter, r *http.Request) {
	var req setPermissionsRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.engine.SetPermissions(r.Context(), id, req.Permissions); err != nil {
		h.writeError(w, r, err)
		return
	}
	rec, err := h.engine.GetRecord(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, viewOf(rec))
}

func (h *Handler) Metrics(w http.ResponseWriter, _ *http.Request) {
	snap := h.engine.MetricsSnapshot()
	out := make(map[string]uint64, len(snap.Counters))
	for id, v := range snap.Counters {
		out[id.String()] = v
	}
	h.writeJSON(w, http.StatusOK, out)
}

// principal is only called behind middleware.Authenticate.
func principal(r *http.Request) *authcore.Principal {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		panic(errors.New("httpapi: handler mounted without authentication"))
	}
	return p
}
