package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost - стоимость bcrypt для паролей пользователей
const PasswordCost = 10

// ErrPasswordMismatch returned when a password does not match the stored hash
var ErrPasswordMismatch = errors.New("password does not match")

// dummyHash используется для выравнивания времени ответа, когда пользователь не найден
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("securehub-dummy-password"), PasswordCost)

// HashPassword хеширует пароль с использованием bcrypt
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return string(hash), nil
}

// VerifyPassword проверяет пароль против сохраненного bcrypt хеша
// Returns ErrPasswordMismatch for a wrong password
func VerifyPassword(password, hash string) error {
	if hash == "" {
		return fmt.Errorf("hashed password cannot be empty")
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	if err != nil {
		return fmt.Errorf("failed to verify password: %w", err)
	}

	return nil
}

// BurnPasswordCheck runs a bcrypt comparison against a fixed hash so that a
// lookup miss costs the same time as a wrong password.
func BurnPasswordCheck(password string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}
