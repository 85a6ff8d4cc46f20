package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/roadwatch/internal/models"
)

var (
	incidentStatus string
	incidentLimit  int
	resolveNote    string
)

var incidentsCmd = &cobra.Command{
	Use:   "incidents",
	Short: "Inspect and resolve incidents",
}

var incidentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List incidents, newest first",
	Run:   runIncidentsList,
}

var incidentsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one incident with its segment and recent readings",
	Args:  cobra.ExactArgs(1),
	Run:   runIncidentsGet,
}

var incidentsResolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Resolve an open incident",
	Args:  cobra.ExactArgs(1),
	Run:   runIncidentsResolve,
}

func init() {
	rootCmd.AddCommand(incidentsCmd)
	incidentsCmd.AddCommand(incidentsListCmd)
	incidentsCmd.AddCommand(incidentsGetCmd)
	incidentsCmd.AddCommand(incidentsResolveCmd)

	incidentsListCmd.Flags().StringVar(&incidentStatus, "status", "", "filter by status (OPEN, RESOLVED)")
	incidentsListCmd.Flags().IntVar(&incidentLimit, "limit", 0, "maximum incidents to return")
	incidentsResolveCmd.Flags().StringVar(&resolveNote, "note", "", "resolution note")
}

func runIncidentsList(cmd *cobra.Command, args []string) {
	path := "/incidents/"
	sep := "?"
	if incidentStatus != "" {
		path += sep + "status=" + incidentStatus
		sep = "&"
	}
	if incidentLimit > 0 {
		path += fmt.Sprintf("%slimit=%d", sep, incidentLimit)
	}

	var list []*models.Incident
	if err := apiGet(path, &list); err != nil {
		PrintError(err.Error(), true)
		return
	}

	if GetOutput() == "json" {
		printJSON(list)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSEGMENT\tTYPE\tSEVERITY\tSTATUS\tCREATED")
	for _, inc := range list {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			inc.ID, inc.RoadSegmentID, inc.Type, inc.Severity, inc.Status,
			inc.CreatedAt.Local().Format(time.RFC3339))
	}
	w.Flush()
}

func runIncidentsGet(cmd *cobra.Command, args []string) {
	var detail map[string]any
	if err := apiGet("/incidents/"+args[0], &detail); err != nil {
		PrintError(err.Error(), true)
		return
	}
	printJSON(detail)
}

func runIncidentsResolve(cmd *cobra.Command, args []string) {
	body := map[string]string{}
	if resolveNote != "" {
		body["resolution_note"] = resolveNote
	}

	var inc models.Incident
	if err := apiPost("/incidents/"+args[0]+"/resolve", body, &inc); err != nil {
		PrintError(err.Error(), true)
		return
	}

	if GetOutput() == "json" {
		printJSON(inc)
		return
	}
	fmt.Printf("incident %s resolved\n", inc.ID)
}
