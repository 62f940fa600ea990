package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/securehub/internal/models"
	"github.com/iudanet/securehub/internal/server/auth"
	"github.com/iudanet/securehub/pkg/api"
)

// AuthService is the subset of auth.Service used by AuthHandler
type AuthService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*models.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResult, error)
	VerifyDeviceOTP(ctx context.Context, email, deviceID, code string) (*auth.Session, error)
}

// AuthHandler обрабатывает запросы авторизации
type AuthHandler struct {
	responder
	svc AuthService
}

// NewAuthHandler создает новый handler для авторизации
func NewAuthHandler(logger *slog.Logger, svc AuthService) *AuthHandler {
	return &AuthHandler{
		responder: responder{logger: logger},
		svc:       svc,
	}
}

// Register обрабатывает POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Парсим request body
	var req api.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode register request", slog.Any("error", err))
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.svc.Register(ctx, auth.RegisterRequest{
		Name:       req.Name,
		Email:      req.Email,
		Password:   req.Password,
		Department: req.Department,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrValidation):
			h.sendError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, auth.ErrEmailTaken):
			h.sendError(w, "email already registered", http.StatusBadRequest)
		default:
			h.logger.ErrorContext(ctx, "failed to register user", slog.Any("error", err))
			h.sendError(w, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.sendJSON(w, api.RegisterResponse{
		Message: "registration successful",
		User:    toAPIUser(user),
	}, http.StatusCreated)
}

// Login обрабатывает POST /api/auth/login.
// Неподтверждённое устройство получает 403 с DEVICE_OTP_REQUIRED.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode login request", slog.Any("error", err))
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.svc.Login(ctx, auth.LoginRequest{
		Email:     req.Email,
		Password:  req.Password,
		DeviceID:  req.DeviceID,
		HostName:  req.HostName,
		IPAddress: ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrValidation):
			h.sendError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, auth.ErrInvalidCredentials):
			h.sendError(w, "invalid credentials", http.StatusBadRequest)
		default:
			h.logger.ErrorContext(ctx, "failed to login", slog.Any("error", err))
			h.sendError(w, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	if res.Challenge != nil {
		h.sendJSON(w, api.DeviceChallengeResponse{
			Status:   res.Challenge.Status,
			Message:  "New device detected. OTP sent to your email.",
			DeviceID: res.Challenge.DeviceID,
		}, http.StatusForbidden)
		return
	}

	h.sendSession(w, res.Session, "login successful")
}

// VerifyDeviceOTP обрабатывает POST /api/auth/verify-device-otp
func (h *AuthHandler) VerifyDeviceOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.VerifyDeviceOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode verify request", slog.Any("error", err))
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	session, err := h.svc.VerifyDeviceOTP(ctx, req.Email, req.DeviceID, req.OTPCode)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrValidation):
			h.sendError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, auth.ErrInvalidCredentials):
			h.sendError(w, "invalid credentials", http.StatusBadRequest)
		case errors.Is(err, auth.ErrInvalidOrExpiredOTP):
			h.sendError(w, "invalid or expired OTP", http.StatusBadRequest)
		case errors.Is(err, auth.ErrDeviceNotFound):
			h.sendError(w, "device not found", http.StatusBadRequest)
		default:
			h.logger.ErrorContext(ctx, "failed to verify device otp", slog.Any("error", err))
			h.sendError(w, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.sendSession(w, session, "device verified")
}

func (h *AuthHandler) sendSession(w http.ResponseWriter, s *auth.Session, message string) {
	h.sendJSON(w, api.SessionResponse{
		ExpiresAt: s.ExpiresAt,
		Message:   message,
		Token:     s.Token,
		User:      toAPIUser(s.User),
	}, http.StatusOK)
}
