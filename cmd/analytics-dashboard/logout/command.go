package logout

import (
	"github.com/spf13/cobra"

	"github.com/medcampus/analytics-dashboard/internal/business"
	"github.com/medcampus/analytics-dashboard/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"logout",
		"Sign out",
		"Clears the stored session and every cached analytics resource",
		buildInfo,
		cmdutils.RunAsJob,
		business.LogoutMain,
	)
}
