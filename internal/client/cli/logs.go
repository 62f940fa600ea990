package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/iudanet/securehub/pkg/api"
)

// RunLogs печатает журнал скачиваний; all требует роли admin
func (c *Cli) RunLogs(ctx context.Context, all bool) error {
	s, err := c.session(ctx)
	if err != nil {
		return err
	}

	var logs []api.DownloadLog
	if all {
		logs, err = c.files.AllLogs(ctx, s.Token)
	} else {
		logs, err = c.files.MyLogs(ctx, s.Token)
	}
	if err != nil {
		return err
	}

	if len(logs) == 0 {
		c.io.Println("No downloads recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(c.io, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "DATE\tFILE\tUSER\tDEVICE\tIP")
	for _, l := range logs {
		file := l.FileName
		if file == "" {
			file = l.FileID + " (deleted)"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			l.CreatedAt.Local().Format(time.DateTime), file, l.UserEmail, l.DeviceID, l.IPAddress)
	}
	return tw.Flush()
}

func (c *Cli) RunUsers(ctx context.Context) error {
	s, err := c.session(ctx)
	if err != nil {
		return err
	}

	users, err := c.files.Users(ctx, s.Token)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.io, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tDEPARTMENT")
	for _, u := range users {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.ID, u.Name, u.Email, u.Department)
	}
	return tw.Flush()
}

// RunDeadLetters печатает письма, которые не удалось доставить (admin)
func (c *Cli) RunDeadLetters(ctx context.Context, limit int) error {
	s, err := c.session(ctx)
	if err != nil {
		return err
	}

	letters, err := c.files.DeadLetters(ctx, s.Token, limit)
	if err != nil {
		return err
	}

	if len(letters) == 0 {
		c.io.Println("No undelivered mail.")
		return nil
	}

	tw := tabwriter.NewWriter(c.io, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "DATE\tKIND\tRECIPIENT\tATTEMPTS\tERROR")
	for _, l := range letters {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			l.CreatedAt.Local().Format(time.DateTime), l.Kind, l.Recipient, l.Attempts, l.LastError)
	}
	return tw.Flush()
}
