package migrate

import (
	"github.com/spf13/cobra"

	"github.com/medcampus/analytics-dashboard/internal/business"
	"github.com/medcampus/analytics-dashboard/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"migrate",
		"Analytics Dashboard migrations",
		"Creates the client storage table used by the postgres storage backend",
		buildInfo,
		cmdutils.RunAsJob,
		business.MigrateMain,
	)
}
