package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/iudanet/securehub/internal/models"
)

// RegisterInput поля регистрации; пустые спрашиваются интерактивно
type RegisterInput struct {
	Name       string
	Email      string
	Department string
	Password   PasswordSource
}

func (c *Cli) RunRegister(ctx context.Context, in RegisterInput) error {
	c.io.Println("=== Registration ===")
	c.io.Println()

	name, err := c.ask(in.Name, "Name: ")
	if err != nil {
		return err
	}
	email, err := c.ask(in.Email, "Email: ")
	if err != nil {
		return err
	}

	departments := make([]string, 0, len(models.Departments))
	for _, d := range models.Departments {
		departments = append(departments, string(d))
	}
	department, err := c.ask(in.Department, fmt.Sprintf("Department (%s): ", strings.Join(departments, ", ")))
	if err != nil {
		return err
	}

	password, err := c.getPassword(in.Password, "Password: ")
	if err != nil {
		return err
	}

	user, err := c.auth.Register(ctx, name, email, password, department)
	if err != nil {
		return err
	}

	c.io.Println()
	c.io.Println("✓ Registration successful!")
	c.io.Printf("User ID: %s\n", user.ID)
	c.io.Printf("Department: %s\n", user.Department)
	c.io.Println()
	c.io.Println("Run 'securehub login' to sign in. The first login from this device requires an emailed OTP.")
	return nil
}
