package apiserver

import (
	"github.com/spf13/cobra"

	"github.com/medcampus/analytics-dashboard/internal/business"
	"github.com/medcampus/analytics-dashboard/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"api-server",
		"Analytics Dashboard API server",
		"Analytics Dashboard API server exposes the cached analytics stores, the session and the preferences over local HTTP",
		buildInfo,
		cmdutils.RunAsService,
		business.Main,
	)
}
