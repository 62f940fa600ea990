package crypto

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// DefaultOTPDigits количество цифр в коде подтверждения устройства
const DefaultOTPDigits = 6

// GenerateOTP генерирует числовой код заданной длины
// Leading zeros are kept, so "004211" is a valid 6-digit code.
func GenerateOTP(digits int) (string, error) {
	if digits <= 0 || digits > 18 {
		return "", fmt.Errorf("invalid otp length: %d", digits)
	}

	var b strings.Builder
	b.Grow(digits)
	ten := big.NewInt(10)
	for range digits {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("failed to generate otp: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	return b.String(), nil
}
