package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/securehub/internal/client/auth"
)

func (c *Cli) RunStatus(ctx context.Context) error {
	c.io.Println("=== Authentication Status ===")
	c.io.Println()

	deviceID, err := c.devices.DeviceID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get device id: %w", err)
	}

	s, err := c.auth.Current(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrNotLoggedIn) {
			c.io.Println("Status: Not authenticated")
			c.io.Printf("Device: %s\n", deviceID)
			c.io.Println()
			c.io.Println("Run 'securehub login' to authenticate.")
			return nil
		}
		return fmt.Errorf("failed to check authentication: %w", err)
	}

	expiresAt := time.Unix(s.ExpiresAt, 0)

	c.io.Println("Status: Authenticated")
	c.io.Printf("User: %s <%s>\n", s.Name, s.Email)
	c.io.Printf("Department: %s, role: %s\n", s.Department, s.Role)
	c.io.Printf("Device: %s\n", deviceID)
	c.io.Printf("Token expires: %s\n", expiresAt.Format(time.RFC3339))
	c.io.Printf("Time remaining: %s\n", time.Until(expiresAt).Round(time.Second))
	return nil
}
