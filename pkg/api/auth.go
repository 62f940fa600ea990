package api

import "time"

// StatusDeviceOTPRequired is the challenge status returned by login
const StatusDeviceOTPRequired = "DEVICE_OTP_REQUIRED"

// RegisterRequest представляет запрос на регистрацию нового пользователя
type RegisterRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Department string `json:"department"` // admin | hr | sales | purchase | godown
}

// RegisterResponse представляет ответ на успешную регистрацию
type RegisterResponse struct {
	Message string `json:"message"`
	User    User   `json:"user"`
}

// LoginRequest представляет запрос на аутентификацию
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	DeviceID string `json:"deviceId"`           // fingerprint устройства
	HostName string `json:"hostName,omitempty"` // опциональное имя хоста
}

// VerifyDeviceOTPRequest подтверждает устройство кодом из письма
type VerifyDeviceOTPRequest struct {
	Email    string `json:"email"`
	DeviceID string `json:"deviceId"`
	OTPCode  string `json:"otpCode"`
}

// SessionResponse возвращается при успешном входе
type SessionResponse struct {
	ExpiresAt time.Time `json:"expiresAt"`
	Message   string    `json:"message"`
	Token     string    `json:"token"` // JWT bearer token
	User      User      `json:"user"`
}

// DeviceChallengeResponse возвращается с 403, когда устройство нужно подтвердить
type DeviceChallengeResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	DeviceID string `json:"deviceId"`
}

// User публичное представление пользователя
type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department"`
	Role       string `json:"role"`
}

// MessageResponse ответ без данных
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse представляет ответ health check
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}
