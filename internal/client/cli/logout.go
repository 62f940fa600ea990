package cli

import "context"

func (c *Cli) RunLogout(ctx context.Context) error {
	if err := c.auth.Logout(ctx); err != nil {
		return err
	}
	c.io.Println("✓ Logged out. This device stays trusted for the next login.")
	return nil
}
