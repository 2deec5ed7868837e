package login

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/medcampus/analytics-dashboard/internal/business"
	"github.com/medcampus/analytics-dashboard/internal/cmdutils"
	"github.com/medcampus/analytics-dashboard/internal/config"
	"github.com/medcampus/analytics-dashboard/internal/session"
)

func Cmd(buildInfo string) *cobra.Command {
	var creds session.Credentials

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the analytics backend",
		Long:  "Signs in and stores the session. The password is read from stdin when --password is not given.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if creds.Password == "" {
				password, err := readLine(cmd)
				if err != nil {
					return err
				}
				creds.Password = password
			}

			cfg, err := cmdutils.LoadConfig(buildInfo)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			return cmdutils.RunAsJob(cmd.Context(), func(ctx context.Context, cfg *config.Config) error {
				return business.LoginMain(ctx, cfg, creds, cmd.OutOrStdout())
			}, cfg)
		},
	}

	cmd.Flags().StringVar(&creds.Email, "email", "", "account email")
	cmd.Flags().StringVar(&creds.Password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func readLine(cmd *cobra.Command) (string, error) {
	_, _ = fmt.Fprint(cmd.ErrOrStderr(), "Password: ")

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.Join(errors.New("no password given"), err)
	}

	return line, nil
}
