// Package cmd contains the CLI commands for roadctl.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Used for flags
	serverURL string
	verbose   bool
	output    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "roadctl",
	Short: "roadctl - roadwatch operations CLI",
	Long: `roadctl talks to a running roadwatch server over its REST API.

Use it to inspect road topology, submit sensor reading batches, and
manage the incident lifecycle from the terminal.

Examples:
  # List open incidents
  roadctl incidents list --status OPEN

  # Resolve an incident with a note
  roadctl incidents resolve 4f1c... --note "lane cleared"

  # Submit a batch of readings from a JSON file
  roadctl submit readings.json

  # Show service status
  roadctl status`,
	Run: func(cmd *cobra.Command, args []string) {
		// Show help by default
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "roadwatch server base URL")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (table, json)")
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

// GetOutput returns the output format.
func GetOutput() string {
	return output
}

// PrintError prints an error message and exits if fatal is true.
func PrintError(msg string, fatal bool) {
	fmt.Fprintln(os.Stderr, "Error:", msg)
	if fatal {
		os.Exit(1)
	}
}

// PrintVerbose prints a message only if verbose mode is enabled.
func PrintVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Printf(format+"\n", args...)
	}
}
