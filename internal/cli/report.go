package cli

import (
	"github.com/spf13/cobra"

	"pm25watcher/internal/app"
)

var reportOutputDir string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a report from the persisted series without polling",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Report(cmd.Context(), app.ReportOptions{OutputDir: reportOutputDir})
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportOutputDir, "output-dir", "", "Directory for report artifacts (defaults to config)")
}
