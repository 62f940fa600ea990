// Package auth implements registration, device-trust login and OTP approval.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/securehub/internal/crypto"
	"github.com/iudanet/securehub/internal/models"
	"github.com/iudanet/securehub/internal/server/jwt"
	"github.com/iudanet/securehub/internal/server/mailer"
	"github.com/iudanet/securehub/internal/server/metrics"
	"github.com/iudanet/securehub/internal/server/storage"
	"github.com/iudanet/securehub/internal/validation"
)

// DefaultOTPTTL is the lifetime of a device approval code
const DefaultOTPTTL = 10 * time.Minute

// DefaultMaxOTPAttempts wrong codes per (user, device) before live codes are burned
const DefaultMaxOTPAttempts = 5

// StatusDeviceOTPRequired is reported to clients logging in from an unapproved device
const StatusDeviceOTPRequired = "DEVICE_OTP_REQUIRED"

// MailQueue accepts mail for asynchronous delivery
type MailQueue interface {
	Enqueue(ctx context.Context, msg mailer.Message) error
}

// Session is an issued bearer credential
type Session struct {
	ExpiresAt time.Time
	User      *models.User
	Token     string
}

// Challenge tells the client a code was sent for this device
type Challenge struct {
	Status   string
	DeviceID string
}

// LoginResult holds exactly one of Session or Challenge
type LoginResult struct {
	Session   *Session
	Challenge *Challenge
}

// RegisterRequest входные данные регистрации
type RegisterRequest struct {
	Name       string
	Email      string
	Password   string
	Department string
}

// LoginRequest входные данные входа
type LoginRequest struct {
	Email     string
	Password  string
	DeviceID  string
	HostName  string
	IPAddress string
	UserAgent string
}

// Service implements the authentication flow
type Service struct {
	users   storage.UserStorage
	devices storage.DeviceStorage
	otps    storage.OTPStorage
	tokens  *jwt.Service
	mail    MailQueue
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	otpTTL  time.Duration
	// maxOTPAttempts неверных кодов, после которых живые коды устройства сгорают
	maxOTPAttempts int
}

// Option configures a Service
type Option func(*Service)

// WithOTPTTL overrides the approval code lifetime
func WithOTPTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.otpTTL = ttl
		}
	}
}

// WithMaxOTPAttempts overrides how many wrong codes a device may send
func WithMaxOTPAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxOTPAttempts = n
		}
	}
}

// WithMetrics enables login and OTP counters
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates the authentication service
func NewService(
	logger *slog.Logger,
	users storage.UserStorage,
	devices storage.DeviceStorage,
	otps storage.OTPStorage,
	tokens *jwt.Service,
	mail MailQueue,
	opts ...Option,
) *Service {
	s := &Service{
		users:   users,
		devices: devices,
		otps:    otps,
		tokens:  tokens,
		mail:    mail,
		logger:  logger,
		now:     time.Now,
		otpTTL:  DefaultOTPTTL,

		maxOTPAttempts: DefaultMaxOTPAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// Register creates an employee account
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	email := validation.NormalizeEmail(req.Email)

	if err := validation.ValidateName(req.Name); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := validation.ValidateDepartment(req.Department); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	return s.createUser(ctx, req.Name, email, req.Password, models.Department(req.Department), models.RoleEmployee)
}

// CreateAdmin creates an admin account in the admin department
func (s *Service) CreateAdmin(ctx context.Context, name, email, password string) (*models.User, error) {
	email = validation.NormalizeEmail(email)

	if err := validation.ValidateName(name); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	return s.createUser(ctx, name, email, password, models.DepartmentAdmin, models.RoleAdmin)
}

func (s *Service) createUser(ctx context.Context, name, email, password string, dept models.Department, role models.Role) (*models.User, error) {
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.clock()
	user := &models.User{
		ID:           uuid.New().String(),
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: hash,
		Department:   dept,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("department", string(user.Department)),
		slog.String("role", string(user.Role)))

	return user, nil
}

// Login checks credentials and decides whether the device is trusted.
// Admins always receive a session. Other users receive a session only from an
// approved device; otherwise a fresh code is mailed and a Challenge returned.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	email := validation.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrValidation)
	}
	if err := validation.ValidateDeviceID(req.DeviceID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			// Выравниваем время ответа для неизвестного email
			crypto.BurnPasswordCheck(req.Password)
			s.metrics.ObserveLogin("invalid")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := crypto.VerifyPassword(req.Password, user.PasswordHash); err != nil {
		if !errors.Is(err, crypto.ErrPasswordMismatch) {
			s.logger.ErrorContext(ctx, "password verification failed",
				slog.String("user_id", user.ID), slog.Any("error", err))
		}
		s.metrics.ObserveLogin("invalid")
		return nil, ErrInvalidCredentials
	}

	now := s.clock()
	device, err := s.upsertDevice(ctx, user, req, now)
	if err != nil {
		return nil, err
	}

	if device.IsApproved {
		session, err := s.issueSession(user)
		if err != nil {
			return nil, err
		}
		s.metrics.ObserveLogin("session")
		s.logger.InfoContext(ctx, "user logged in",
			slog.String("user_id", user.ID),
			slog.String("device_id", device.DeviceID))
		return &LoginResult{Session: session}, nil
	}

	if err := s.issueDeviceOTP(ctx, user, device.DeviceID, now); err != nil {
		return nil, err
	}
	s.metrics.ObserveLogin("challenge")

	return &LoginResult{Challenge: &Challenge{
		Status:   StatusDeviceOTPRequired,
		DeviceID: device.DeviceID,
	}}, nil
}

// upsertDevice registers the device on first sight and refreshes it otherwise.
// Admin devices are approved immediately.
func (s *Service) upsertDevice(ctx context.Context, user *models.User, req LoginRequest, now time.Time) (*models.Device, error) {
	device, err := s.devices.GetDevice(ctx, user.ID, req.DeviceID)
	switch {
	case errors.Is(err, storage.ErrDeviceNotFound):
		device = &models.Device{
			ID:          uuid.New().String(),
			UserID:      user.ID,
			DeviceID:    req.DeviceID,
			FirstSeenAt: now,
		}
		device.Touch(req.IPAddress, req.UserAgent, req.HostName, now)
		if user.IsAdmin() {
			device.Approve(now)
		}

		err = s.devices.CreateDevice(ctx, device)
		if err == nil {
			s.logger.InfoContext(ctx, "new device registered",
				slog.String("user_id", user.ID),
				slog.String("device_id", device.DeviceID),
				slog.Bool("approved", device.IsApproved))
			return device, nil
		}
		if !errors.Is(err, storage.ErrDeviceAlreadyExists) {
			return nil, fmt.Errorf("failed to create device: %w", err)
		}

		// Параллельный логин успел создать запись, обновляем её
		device, err = s.devices.GetDevice(ctx, user.ID, req.DeviceID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload device: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	device.Touch(req.IPAddress, req.UserAgent, req.HostName, now)
	if user.IsAdmin() && !device.IsApproved {
		device.Approve(now)
	}
	if err := s.devices.UpdateDevice(ctx, device); err != nil {
		return nil, fmt.Errorf("failed to update device: %w", err)
	}
	return device, nil
}

func (s *Service) issueDeviceOTP(ctx context.Context, user *models.User, deviceID string, now time.Time) error {
	code, err := crypto.GenerateOTP(crypto.DefaultOTPDigits)
	if err != nil {
		return fmt.Errorf("failed to generate otp: %w", err)
	}

	token := &models.OTPToken{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		DeviceID:  deviceID,
		Code:      code,
		Purpose:   models.OTPPurposeDeviceApproval,
		ExpiresAt: now.Add(s.otpTTL),
		CreatedAt: now,
	}
	if err := s.otps.SaveOTP(ctx, token); err != nil {
		return fmt.Errorf("failed to save otp: %w", err)
	}

	msg := mailer.DeviceOTPMessage(user.Email, code, deviceID, int(s.otpTTL.Minutes()))
	if err := s.mail.Enqueue(ctx, msg); err != nil {
		// Код уже сохранён; пользователь может повторить вход
		s.logger.WarnContext(ctx, "failed to enqueue otp mail",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
	}

	s.logger.InfoContext(ctx, "device approval required",
		slog.String("user_id", user.ID),
		slog.String("device_id", deviceID))
	return nil
}

// VerifyDeviceOTP consumes a code and approves the device
func (s *Service) VerifyDeviceOTP(ctx context.Context, email, deviceID, code string) (*Session, error) {
	email = validation.NormalizeEmail(email)
	if email == "" || deviceID == "" || code == "" {
		return nil, fmt.Errorf("%w: email, deviceId and otpCode are required", ErrValidation)
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			s.metrics.ObserveOTPVerification("rejected")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	now := s.clock()
	if _, err := s.otps.ConsumeOTP(ctx, user.ID, deviceID, code, models.OTPPurposeDeviceApproval, now); err != nil {
		if errors.Is(err, storage.ErrOTPNotFound) {
			s.metrics.ObserveOTPVerification("rejected")
			s.logger.WarnContext(ctx, "otp rejected",
				slog.String("user_id", user.ID),
				slog.String("device_id", deviceID))
			s.recordOTPFailure(ctx, user.ID, deviceID, now)
			return nil, ErrInvalidOrExpiredOTP
		}
		return nil, fmt.Errorf("failed to consume otp: %w", err)
	}

	device, err := s.devices.GetDevice(ctx, user.ID, deviceID)
	if err != nil {
		if errors.Is(err, storage.ErrDeviceNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	if !device.IsApproved {
		device.Approve(now)
	}
	if err := s.devices.UpdateDevice(ctx, device); err != nil {
		return nil, fmt.Errorf("failed to approve device: %w", err)
	}

	session, err := s.issueSession(user)
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveOTPVerification("approved")
	s.logger.InfoContext(ctx, "device approved",
		slog.String("user_id", user.ID),
		slog.String("device_id", deviceID))

	return session, nil
}

// recordOTPFailure засчитывает неверный код; ошибка хранилища только логируется,
// клиент в любом случае получает отказ
func (s *Service) recordOTPFailure(ctx context.Context, userID, deviceID string, now time.Time) {
	touched, err := s.otps.RecordOTPFailure(ctx, userID, deviceID, models.OTPPurposeDeviceApproval, now, s.maxOTPAttempts)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to record otp failure",
			slog.String("user_id", userID),
			slog.String("device_id", deviceID),
			slog.Any("error", err))
		return
	}
	if touched > 0 {
		s.logger.DebugContext(ctx, "otp failure recorded",
			slog.String("user_id", userID),
			slog.String("device_id", deviceID),
			slog.Int("tokens", touched))
	}
}

func (s *Service) issueSession(user *models.User) (*Session, error) {
	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// Resolve verifies a session token and loads the current identity.
// Department and name come from the user record, not from the token.
func (s *Service) Resolve(ctx context.Context, token string) (models.Identity, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.Identity{}, ErrInvalidSession
		}
		return models.Identity{}, fmt.Errorf("failed to get user: %w", err)
	}

	return models.Identity{
		UserID:     user.ID,
		Email:      user.Email,
		Name:       user.Name,
		Department: user.Department,
		Role:       user.Role,
	}, nil
}

// ListUsers returns the directory used to pick share targets
func (s *Service) ListUsers(ctx context.Context) ([]*models.User, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}
