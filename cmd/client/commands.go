package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/iudanet/securehub/internal/client/api"
	"github.com/iudanet/securehub/internal/client/auth"
	"github.com/iudanet/securehub/internal/client/cli"
	"github.com/iudanet/securehub/internal/client/iocli"
	"github.com/iudanet/securehub/internal/client/storage/boltdb"
)

// withCli открывает локальное хранилище, собирает Cli и закрывает всё после run
func withCli(cmd *cobra.Command, opts *options, run func(ctx context.Context, c *cli.Cli) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	level := slog.LevelWarn
	if opts.verbose() {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	store, err := boltdb.New(ctx, opts.dbPath())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	apiClient := api.NewClient(opts.serverURL())
	authService := auth.NewService(apiClient, store, logger)
	stdio := iocli.NewStdioWith(cmd.InOrStdin(), cmd.OutOrStdout())

	return run(ctx, cli.New(stdio, authService, apiClient, store))
}

func newRegisterCmd(opts *options) *cobra.Command {
	var in cli.RegisterInput
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCli(cmd, opts, func(ctx context.Context, c *cli.Cli) error {
				return c.RunRegister(ctx, in)
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringVar(&in.Department, "department", "", "admin | hr | sales | purchase | godown")
	cmd.Flags().StringVar(&in.Password.FromFile, "password-file", "", "read password from file (or set "+cli.PasswordEnv+")")
	return cmd
}

func newLoginCmd(opts *options) *cobra.Command {
	var in cli.LoginInput
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in; a new device is confirmed with an emailed OTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCli(cmd, opts, func(ctx context.Context, c *cli.Cli) error {
				return c.RunLogin(ctx, in)
			})
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringVar(&in.OTP, "otp", "", "OTP code if already received")
	cmd.Flags().StringVar(&in.Password.FromFile, "password-file", "", "read password from file (or set "+cli.PasswordEnv+")")
	return cmd
}

func newVerifyCmd(opts *options) *cobra.Command {
	var email, code string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Confirm this device with the emailed OTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCli(cmd, opts, func(ctx context.Context, c *cli.Cli) error {
				return c.RunVerify(ctx, email, code)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&code, "otp", "", "OTP code")
	return cmd
}

func newLogoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the local session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCli(cmd, opts, func(ctx context.Context, c *cli.Cli) error {
				return c.RunLogout(ctx)
			})
		},
	}
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCli(cmd, opts, func(ctx context.Context, c *cli.Cli) error {
				return c.RunStatus(ctx)
			})
		},
	}
}

func newFilesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "files",
		Aliases: []string{"ls"},
		Short:   "List files shared with you",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCli(cmd, opts, func(ctx context.Context, c *cli.Cli) error {
				return c.RunFiles(ctx)
			})
		},
	}
}

func newUploadCmd(opts *options) *cobra.Command {
	var in cli.UploadInput
	cmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "Share a file with everyone, a department or a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Path = args[0]
			return withCli(cmd, opts, func(ctx context.Context, c *cli.Cli) error {
				return c.RunUpload(ctx, in)
			})
		},
	}
	cmd.Flags().StringVar(&in.Scope, "to", "everyone", "everyone | department | user")
	cmd.Flags().StringVar(&in.Department, "department", "", "target department for --to department")
	cmd.Flags().StringVar(&in.User, "user", "", "target user id for --to user")
	return cmd
}

func newDownloadCmd(opts *options) *cobra.Command {
	var in cli.DownloadInput
	cmd := &cobra.Command{
		Use:   "download <file-id>",
		Short: "Download a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.FileID = args[0]
			return withCli(cmd, opts, func(ctx context.Context, c *cli.Cli) error {
				return c.RunDownload(ctx, in)
			})
		},
	}
	cmd.Flags().StringVarP(&in.Output, "output", "o", "", "output file path")
	cmd.Flags().StringVar(&in.Dir, "dir", ".", "output directory when --output is not set")
	return cmd
}

func newDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <file-id>",
		Short: "Delete a file (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCli(cmd, opts, func(ctx context.Context, c *cli.Cli) error {
				return c.RunDelete(ctx, args[0])
			})
		},
	}
}

func newLogsCmd(opts *options) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show download history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCli(cmd, opts, func(ctx context.Context, c *cli.Cli) error {
				return c.RunLogs(ctx, all)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "every user's downloads (admin)")
	return cmd
}

func newUsersCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List users you can share with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCli(cmd, opts, func(ctx context.Context, c *cli.Cli) error {
				return c.RunUsers(ctx)
			})
		},
	}
}

func newDeadLettersCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "dead-letters",
		Short: "Show undelivered notification mail (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCli(cmd, opts, func(ctx context.Context, c *cli.Cli) error {
				return c.RunDeadLetters(ctx, limit)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "max entries (server default when 0)")
	return cmd
}
