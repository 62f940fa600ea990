package cli

import (
	"context"
	"time"

	"github.com/iudanet/securehub/internal/client/storage"
)

// LoginInput параметры входа. OTP можно передать заранее для неинтерактивного режима.
type LoginInput struct {
	Email    string
	OTP      string
	Password PasswordSource
}

func (c *Cli) RunLogin(ctx context.Context, in LoginInput) error {
	c.io.Println("=== Login ===")
	c.io.Println()

	email, err := c.ask(in.Email, "Email: ")
	if err != nil {
		return err
	}

	password, err := c.getPassword(in.Password, "Password: ")
	if err != nil {
		return err
	}

	c.io.Println("Authenticating...")

	result, err := c.auth.Login(ctx, email, password)
	if err != nil {
		return err
	}

	if !result.OTPRequired {
		c.printSession(result.Session)
		return nil
	}

	// Новое устройство: код отправлен на почту
	c.io.Println()
	c.io.Printf("New device detected (%s). An OTP was sent to %s.\n", result.DeviceID, email)

	code, err := c.ask(in.OTP, "OTP code: ")
	if err != nil {
		return err
	}

	session, err := c.auth.VerifyOTP(ctx, email, code)
	if err != nil {
		return err
	}

	c.printSession(session)
	return nil
}

// RunVerify подтверждает устройство кодом, полученным после прерванного login
func (c *Cli) RunVerify(ctx context.Context, email, code string) error {
	email, err := c.ask(email, "Email: ")
	if err != nil {
		return err
	}
	code, err = c.ask(code, "OTP code: ")
	if err != nil {
		return err
	}

	session, err := c.auth.VerifyOTP(ctx, email, code)
	if err != nil {
		return err
	}

	c.printSession(session)
	return nil
}

func (c *Cli) printSession(s *storage.AuthData) {
	c.io.Println()
	c.io.Println("✓ Login successful!")
	c.io.Printf("User: %s <%s>\n", s.Name, s.Email)
	c.io.Printf("Department: %s, role: %s\n", s.Department, s.Role)
	c.io.Printf("Token expires: %s\n", time.Unix(s.ExpiresAt, 0).Format(time.RFC3339))
}
