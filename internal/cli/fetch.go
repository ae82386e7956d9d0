package cli

import (
	"github.com/spf13/cobra"

	"pm25watcher/internal/app"
)

var fetchDryRun bool

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch and merge one batch of readings, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().FetchOnce(cmd.Context(), app.FetchOptions{DryRun: fetchDryRun})
	},
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchDryRun, "dry-run", false, "Report what would be merged without writing the series")
}
