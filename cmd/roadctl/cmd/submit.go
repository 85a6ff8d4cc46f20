package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/roadwatch/internal/ingest"
)

var submitCmd = &cobra.Command{
	Use:   "submit <file.json>",
	Short: "Submit a batch of sensor readings",
	Long: `Submit a batch of sensor readings from a JSON file.

The file holds a JSON array of readings:

  [
    {"sensor_id": 10, "timestamp": "2026-08-31T07:00:00Z",
     "payload": {"vehicles_per_minute": 42.5}}
  ]

The batch is atomic: one invalid reading rejects the whole file.`,
	Args: cobra.ExactArgs(1),
	Run:  runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) {
	data, err := os.ReadFile(args[0])
	if err != nil {
		PrintError(fmt.Sprintf("read %s: %v", args[0], err), true)
		return
	}

	var readings []ingest.ReadingInput
	if err := json.Unmarshal(data, &readings); err != nil {
		PrintError(fmt.Sprintf("parse %s: %v", args[0], err), true)
		return
	}
	PrintVerbose("submitting %d readings", len(readings))

	var result ingest.Result
	if err := apiPost("/readings/batch", map[string]any{"readings": readings}, &result); err != nil {
		PrintError(err.Error(), true)
		return
	}

	if GetOutput() == "json" {
		printJSON(result)
		return
	}
	fmt.Printf("inserted %d readings, %d new incidents\n", result.Inserted, len(result.NewIncidentIDs))
	for _, id := range result.NewIncidentIDs {
		fmt.Println("  " + id)
	}
}
