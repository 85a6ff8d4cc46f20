package cmd

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show roadwatch service status",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	var status map[string]any
	if err := apiGet("/system/status", &status); err != nil {
		PrintError(err.Error(), true)
		return
	}
	printJSON(status)
}
