package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/iudanet/securehub/internal/models"
)

// DeviceIDPattern определяет допустимый формат fingerprint устройства
// Клиент генерирует UUID, но принимаем любые печатные идентификаторы до 128 символов
var DeviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

const (
	// MinPasswordLen минимальная длина пароля
	MinPasswordLen = 8
	// MaxPasswordLen bcrypt игнорирует все после 72 байт
	MaxPasswordLen = 72
	// MaxNameLen максимальная длина отображаемого имени
	MaxNameLen = 100
)

// NormalizeEmail приводит email к каноническому виду для хранения и поиска
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail проверяет синтаксис email адреса
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("email is not a valid address")
	}

	return nil
}

// ValidatePassword проверяет минимальные требования к паролю
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	if len(password) < MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLen)
	}

	if len(password) > MaxPasswordLen {
		return fmt.Errorf("password must not exceed %d bytes", MaxPasswordLen)
	}

	return nil
}

// ValidateName проверяет отображаемое имя
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) > MaxNameLen {
		return fmt.Errorf("name must not exceed %d characters", MaxNameLen)
	}
	return nil
}

// ValidateDepartment проверяет, что отдел входит в фиксированный список
func ValidateDepartment(department string) error {
	if department == "" {
		return fmt.Errorf("department cannot be empty")
	}
	if !models.Department(department).Valid() {
		return fmt.Errorf("unknown department %q", department)
	}
	return nil
}

// ValidateDeviceID проверяет fingerprint устройства
func ValidateDeviceID(deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("deviceId cannot be empty")
	}
	if !DeviceIDPattern.MatchString(deviceID) {
		return fmt.Errorf("deviceId can only contain letters, digits and . _ : - (max 128)")
	}
	return nil
}
