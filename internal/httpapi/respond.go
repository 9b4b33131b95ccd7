package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/go-playground/validator/v10"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug().Err(err).Msg("write response")
	}
}

// decode reads a JSON body into dst and runs its validate tags.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.logger.Debug().Err(err).Msg("invalid payload")
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid payload"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		msg := "invalid payload"
		if errors.As(err, &verrs) && len(verrs) > 0 {
			msg = "invalid " + verrs[0].Field()
		}
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
		return false
	}
	return true
}

// statusFor maps engine errors onto HTTP statuses and client-safe messages.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, authcore.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, authcore.ErrInvalidTwoFactorCode):
		return http.StatusUnauthorized, "invalid two-factor code"
	case errors.Is(err, authcore.ErrTokenExpired),
		errors.Is(err, authcore.ErrTokenInvalid):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, authcore.ErrAccountLocked):
		return http.StatusLocked, "account locked"
	case errors.Is(err, authcore.ErrRoleDenied),
		errors.Is(err, authcore.ErrPermissionDenied):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, authcore.ErrDuplicateEmail):
		return http.StatusConflict, "email already registered"
	case errors.Is(err, authcore.ErrDuplicateUsername):
		return http.StatusConflict, "username already taken"
	case errors.Is(err, authcore.ErrTwoFactorAlreadyEnabled):
		return http.StatusConflict, "two-factor already enabled"
	case errors.Is(err, authcore.ErrEmailAlreadyVerified):
		return http.StatusConflict, "email already verified"
	case errors.Is(err, authcore.ErrTwoFactorRateLimited):
		return http.StatusTooManyRequests, "too many attempts"
	case errors.Is(err, authcore.ErrRecordNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, authcore.ErrTokenInvalidOrExpired):
		return http.StatusBadRequest, "token invalid or expired"
	case errors.Is(err, authcore.ErrInvalidPassword):
		return http.StatusBadRequest, "invalid password"
	case errors.Is(err, authcore.ErrTwoFactorNotEnrolled):
		return http.StatusBadRequest, "two-factor not enrolled"
	case errors.Is(err, authcore.ErrInvalidRole):
		return http.StatusBadRequest, "invalid role"
	case errors.Is(err, authcore.ErrInvalidInput):
		return http.StatusBadRequest, "invalid input"
	case errors.Is(err, authcore.ErrNotificationFailed):
		return http.StatusBadGateway, "notification delivery failed"
	case errors.Is(err, authcore.ErrTwoFactorUnavailable):
		return http.StatusServiceUnavailable, "temporarily unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Str("path", r.URL.Path).Msg("request failed")
	}
	h.writeJSON(w, status, errorResponse{Error: msg})
}

type userView struct {
	ID               string            `json:"id"`
	Email            string            `json:"email"`
	Username         string            `json:"username"`
	Provider         string            `json:"provider"`
	EmailVerified    bool              `json:"emailVerified"`
	TwoFactorEnabled bool              `json:"twoFactorEnabled"`
	Role             string            `json:"role"`
	Permissions      []string          `json:"permissions"`
	ExternalIDs      map[string]string `json:"externalIds,omitempty"`
	LastLogin        *time.Time        `json:"lastLogin,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
}

func viewOf(rec *authcore.Record) *userView {
	if rec == nil {
		return nil
	}
	v := &userView{
		ID:               rec.ID,
		Email:            rec.Email,
		Username:         rec.Username,
		Provider:         string(rec.Provider),
		EmailVerified:    rec.EmailVerified,
		TwoFactorEnabled: rec.TwoFactorEnabled,
		Role:             string(rec.Role),
		Permissions:      rec.Permissions,
		LastLogin:        rec.LastLogin,
		CreatedAt:        rec.CreatedAt,
	}
	if v.Permissions == nil {
		v.Permissions = []string{}
	}
	if len(rec.ExternalIDs) > 0 {
		v.ExternalIDs = make(map[string]string, len(rec.ExternalIDs))
		for p, id := range rec.ExternalIDs {
			v.ExternalIDs[string(p)] = id
		}
	}
	return v
}
