package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nelsonpires5/sisifo/internal/core"
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue records",
		RunE:  runStatus,
	}
	cmd.Flags().String("id", "", "Show only this task id")
	cmd.Flags().Bool("json", false, "Emit JSON instead of a table")
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	id, _ := cmd.Flags().GetString("id")
	asJSON, _ := cmd.Flags().GetBool("json")

	a, err := newApp(cmd)
	if err != nil {
		return exitf(1, err)
	}

	var records []*core.TaskRecord
	if id != "" {
		rec, err := a.store.Get(id)
		if err != nil {
			return exitf(1, err)
		}
		if rec == nil {
			return exitf(1, core.New(core.KindUnknownTaskID, fmt.Sprintf("no task with id %q", id)))
		}
		records = []*core.TaskRecord{rec}
	} else {
		records, err = a.store.List()
		if err != nil {
			return exitf(1, err)
		}
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		return enc.Encode(records)
	}
	return printStatusTable(cmd.OutOrStdout(), records)
}

func printStatusTable(out io.Writer, records []*core.TaskRecord) error {
	w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tBRANCH\tATTEMPT\tUPDATED_AT")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", r.ID, r.Status, r.Branch, r.Attempt, r.UpdatedAt)
	}
	return w.Flush()
}
