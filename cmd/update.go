package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/maxvaer/w3ccheck/internal/updater"
	"github.com/maxvaer/w3ccheck/pkg/version"
	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update w3ccheck to the latest release",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return updater.New(version.Version, cmd.ErrOrStderr(), logger).Update(ctx)
	},
}
