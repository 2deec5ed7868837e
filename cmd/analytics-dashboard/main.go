package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/openkcm/common-sdk/pkg/utils"
	"github.com/spf13/cobra"

	slogctx "github.com/veqryn/slog-context"

	"github.com/medcampus/analytics-dashboard/cmd/analytics-dashboard/apiserver"
	"github.com/medcampus/analytics-dashboard/cmd/analytics-dashboard/fetch"
	"github.com/medcampus/analytics-dashboard/cmd/analytics-dashboard/login"
	"github.com/medcampus/analytics-dashboard/cmd/analytics-dashboard/logout"
	"github.com/medcampus/analytics-dashboard/cmd/analytics-dashboard/migrate"
	"github.com/medcampus/analytics-dashboard/cmd/analytics-dashboard/tokenrefresher"
)

var (
	// BuildInfo will be set by the build system
	BuildInfo = "{}"

	isServiceCmd     bool
	gracefulShutdown time.Duration
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Analytics Dashboard Version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		value, err := utils.ExtractFromComplexValue(BuildInfo)
		if err != nil {
			return err
		}

		slog.InfoContext(cmd.Context(), value)

		return nil
	},
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "analytics-dashboard",
		Short:         "Analytics Dashboard",
		Long:          "Medical education analytics dashboard client with a local API for the UI.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().DurationVar(&gracefulShutdown, "graceful-shutdown", 1*time.Second, "graceful shutdown")

	services := []*cobra.Command{
		apiserver.Cmd(BuildInfo),
		tokenrefresher.Cmd(BuildInfo),
	}
	for _, s := range services {
		s.PreRun = func(*cobra.Command, []string) { isServiceCmd = true }
	}

	cmd.AddCommand(versionCmd, migrate.Cmd(BuildInfo), login.Cmd(BuildInfo), logout.Cmd(BuildInfo), fetch.Cmd(BuildInfo))
	cmd.AddCommand(services...)

	return cmd
}

func execute() error {
	ctx, cancelOnSignal := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer cancelOnSignal()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		slogctx.Error(ctx, "failed to run the application", "error", err)
		_, _ = fmt.Fprintln(os.Stderr, err)

		return err
	}

	if isServiceCmd {
		_, _ = fmt.Fprintf(os.Stderr, "Graceful shutdown in %s\n", gracefulShutdown)
		time.Sleep(gracefulShutdown)
	}

	return nil
}

func main() {
	if err := execute(); err != nil {
		os.Exit(1)
	}
}
