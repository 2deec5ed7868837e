package tokenrefresher

import (
	"github.com/spf13/cobra"

	"github.com/medcampus/analytics-dashboard/internal/business"
	"github.com/medcampus/analytics-dashboard/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"token-refresher",
		"Analytics Dashboard Token Refresh job",
		"Analytics Dashboard Token Refresh job refreshes the stored access token before it expires",
		buildInfo,
		cmdutils.RunAsService,
		business.TokenRefresherMain,
	)
}
