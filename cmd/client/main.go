package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options глобальные флаги клиента.
// Значения можно задать через SECUREHUB_SERVER_URL и SECUREHUB_CLIENT_DB.
type options struct {
	v *viper.Viper
}

func (o *options) serverURL() string { return o.v.GetString("server_url") }
func (o *options) dbPath() string    { return o.v.GetString("client_db") }
func (o *options) verbose() bool     { return o.v.GetBool("verbose") }

func newOptions(flags *pflag.FlagSet) *options {
	v := viper.New()
	v.SetEnvPrefix("SECUREHUB")
	v.AutomaticEnv()

	flags.String("server", "http://localhost:8080", "server URL")
	flags.String("db", "securehub-client.db", "path to local session database")
	flags.BoolP("verbose", "v", false, "debug logging")

	_ = v.BindPFlag("server_url", flags.Lookup("server"))
	_ = v.BindPFlag("client_db", flags.Lookup("db"))
	_ = v.BindPFlag("verbose", flags.Lookup("verbose"))

	return &options{v: v}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "securehub",
		Short:         "SecureHub file sharing client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts := newOptions(root.PersistentFlags())

	root.AddCommand(
		newRegisterCmd(opts),
		newLoginCmd(opts),
		newVerifyCmd(opts),
		newLogoutCmd(opts),
		newStatusCmd(opts),
		newFilesCmd(opts),
		newUploadCmd(opts),
		newDownloadCmd(opts),
		newDeleteCmd(opts),
		newLogsCmd(opts),
		newUsersCmd(opts),
		newDeadLettersCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "SecureHub Client\n")
	fmt.Fprintf(w, "Version:    %s\n", Version)
	fmt.Fprintf(w, "Build Date: %s\n", BuildDate)
	fmt.Fprintf(w, "Git Commit: %s\n", GitCommit)
}
