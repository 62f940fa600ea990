package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/iudanet/securehub/internal/client/storage"
	"github.com/iudanet/securehub/internal/validation"
	"github.com/iudanet/securehub/pkg/api"
)

// ErrNotLoggedIn возвращается, когда локальной сессии нет или токен истёк
var ErrNotLoggedIn = errors.New("not logged in")

// LoginResult результат входа.
// Если OTPRequired, на почту ушёл код и нужно вызвать VerifyOTP.
type LoginResult struct {
	Session     *storage.AuthData
	DeviceID    string
	OTPRequired bool
}

// Service предоставляет функции авторизации
type Service struct {
	apiClient APIClient
	store     Store
	logger    *slog.Logger
	now       func() time.Time
	hostName  string
}

// NewService создает новый сервис авторизации
func NewService(apiClient APIClient, store Store, logger *slog.Logger) *Service {
	host, _ := os.Hostname()
	return &Service{
		apiClient: apiClient,
		store:     store,
		logger:    logger,
		now:       time.Now,
		hostName:  host,
	}
}

// Register регистрирует нового пользователя.
// Сессия не создаётся: первый вход с этого устройства всё равно потребует OTP.
func (s *Service) Register(ctx context.Context, name, email, password, department string) (*api.User, error) {
	email = validation.NormalizeEmail(email)

	// Валидация входных данных
	if err := validation.ValidateName(name); err != nil {
		return nil, fmt.Errorf("invalid name: %w", err)
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, fmt.Errorf("invalid email: %w", err)
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("invalid password: %w", err)
	}
	if err := validation.ValidateDepartment(department); err != nil {
		return nil, fmt.Errorf("invalid department: %w", err)
	}

	resp, err := s.apiClient.Register(ctx, api.RegisterRequest{
		Name:       name,
		Email:      email,
		Password:   password,
		Department: department,
	})
	if err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "user registered", slog.String("user_id", resp.User.ID))
	return &resp.User, nil
}

// Login выполняет вход с fingerprint этого устройства
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = validation.NormalizeEmail(email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, fmt.Errorf("invalid email: %w", err)
	}
	if password == "" {
		return nil, fmt.Errorf("invalid password: password cannot be empty")
	}

	deviceID, err := s.store.DeviceID(ctx)
	if err != nil {
		return nil, err
	}

	out, err := s.apiClient.Login(ctx, api.LoginRequest{
		Email:    email,
		Password: password,
		DeviceID: deviceID,
		HostName: s.hostName,
	})
	if err != nil {
		return nil, err
	}

	if out.Challenge != nil {
		s.logger.DebugContext(ctx, "device approval required", slog.String("device_id", deviceID))
		return &LoginResult{DeviceID: deviceID, OTPRequired: true}, nil
	}

	session, err := s.saveSession(ctx, email, out.Session)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Session: session, DeviceID: deviceID}, nil
}

// VerifyOTP подтверждает это устройство кодом из письма и сохраняет сессию
func (s *Service) VerifyOTP(ctx context.Context, email, code string) (*storage.AuthData, error) {
	email = validation.NormalizeEmail(email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, fmt.Errorf("invalid email: %w", err)
	}
	if code == "" {
		return nil, fmt.Errorf("otp code cannot be empty")
	}

	deviceID, err := s.store.DeviceID(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.apiClient.VerifyDeviceOTP(ctx, api.VerifyDeviceOTPRequest{
		Email:    email,
		DeviceID: deviceID,
		OTPCode:  code,
	})
	if err != nil {
		return nil, err
	}

	return s.saveSession(ctx, email, resp)
}

// Current возвращает действующую сессию или ErrNotLoggedIn
func (s *Service) Current(ctx context.Context) (*storage.AuthData, error) {
	data, err := s.store.GetAuth(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			return nil, ErrNotLoggedIn
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if data.Expired(s.now()) {
		return nil, ErrNotLoggedIn
	}
	return data, nil
}

// Logout удаляет локальную сессию. Fingerprint устройства остаётся.
func (s *Service) Logout(ctx context.Context) error {
	err := s.store.DeleteAuth(ctx)
	if err != nil && !errors.Is(err, storage.ErrAuthNotFound) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *Service) saveSession(ctx context.Context, email string, resp *api.SessionResponse) (*storage.AuthData, error) {
	if resp == nil || resp.Token == "" {
		return nil, fmt.Errorf("server returned an empty session")
	}

	data := &storage.AuthData{
		UserID:     resp.User.ID,
		Name:       resp.User.Name,
		Email:      email,
		Department: resp.User.Department,
		Role:       resp.User.Role,
		Token:      resp.Token,
		ExpiresAt:  resp.ExpiresAt.Unix(),
	}
	if err := s.store.SaveAuth(ctx, data); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return data, nil
}
