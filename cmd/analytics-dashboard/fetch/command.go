package fetch

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/medcampus/analytics-dashboard/internal/analytics"
	"github.com/medcampus/analytics-dashboard/internal/business"
	"github.com/medcampus/analytics-dashboard/internal/cmdutils"
	"github.com/medcampus/analytics-dashboard/internal/config"
)

func Cmd(buildInfo string) *cobra.Command {
	var (
		q      analytics.Query
		output string
	)

	names := make([]string, 0, len(analytics.Resources()))
	for _, r := range analytics.Resources() {
		names = append(names, string(r))
	}

	cmd := &cobra.Command{
		Use:       "fetch <resource>",
		Short:     "Fetch one analytics resource",
		Long:      "Fetches one of " + strings.Join(names, ", ") + " and prints the resulting store state.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: names,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdutils.LoadConfig(buildInfo)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			return cmdutils.RunAsJob(cmd.Context(), func(ctx context.Context, cfg *config.Config) error {
				return business.FetchMain(ctx, cfg, args[0], q, output, cmd.OutOrStdout())
			}, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&q.CollegeID, "college", "", "college id")
	f.StringVar(&q.StartDate, "start-date", "", "range start, YYYY-MM-DD")
	f.StringVar(&q.EndDate, "end-date", "", "range end, YYYY-MM-DD")
	f.IntVar(&q.Page, "page", 0, "page number")
	f.IntVar(&q.Limit, "limit", 0, "page size")
	f.StringVar(&q.Search, "search", "", "search term")
	f.StringVar(&q.Subject, "subject", "", "content subject")
	f.StringVar(&q.Difficulty, "difficulty", "", "content difficulty")
	f.StringVar(&q.Status, "status", "", "student status")
	f.StringVarP(&output, "output", "o", business.OutputJSON, "output format, json or yaml")

	return cmd
}
