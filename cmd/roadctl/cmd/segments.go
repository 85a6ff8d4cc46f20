package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/roadwatch/internal/models"
)

var segmentsCmd = &cobra.Command{
	Use:   "segments",
	Short: "List road segments",
	Run:   runSegmentsList,
}

var sensorsCmd = &cobra.Command{
	Use:   "sensors [segment-id]",
	Short: "List sensors, optionally scoped to one segment",
	Args:  cobra.MaximumNArgs(1),
	Run:   runSensorsList,
}

func init() {
	rootCmd.AddCommand(segmentsCmd)
	rootCmd.AddCommand(sensorsCmd)
}

func runSegmentsList(cmd *cobra.Command, args []string) {
	var list []*models.RoadSegment
	if err := apiGet("/segments/", &list); err != nil {
		PrintError(err.Error(), true)
		return
	}

	if GetOutput() == "json" {
		printJSON(list)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCODE\tNAME\tDIRECTION")
	for _, seg := range list {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", seg.ID, seg.Code, seg.Name, seg.Direction)
	}
	w.Flush()
}

func runSensorsList(cmd *cobra.Command, args []string) {
	path := "/sensors"
	if len(args) == 1 {
		path = "/segments/" + args[0] + "/sensors"
	}

	var list []*models.Sensor
	if err := apiGet(path, &list); err != nil {
		PrintError(err.Error(), true)
		return
	}

	if GetOutput() == "json" {
		printJSON(list)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tSEGMENT\tACTIVE")
	for _, sensor := range list {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%t\n",
			sensor.ID, sensor.Name, sensor.Type, sensor.RoadSegmentID, sensor.Active)
	}
	w.Flush()
}
