package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"incident-portal/internal/audit"

	"github.com/spf13/cobra"
)

var trailJSON bool

var trailCmd = &cobra.Command{
	Use:   "trail <report-id>",
	Short: "Print the audit trail of a report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := audit.NewService(audit.NewPostgresRepo(db)).Trail(ctx, args[0])
		if err != nil {
			return err
		}
		return printTrail(cmd, entries)
	},
}

func init() {
	trailCmd.Flags().BoolVar(&trailJSON, "json", false, "print entries as JSON")
	rootCmd.AddCommand(trailCmd)
}

func printTrail(cmd *cobra.Command, entries []audit.Entry) error {
	out := cmd.OutOrStdout()
	if trailJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tENTITY\tACTION\tACTOR\tSEVERITY")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s/%s\t%s\t%s:%s\t%s\n",
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.EntityType, e.EntityID,
			e.ActionType,
			e.ActorType, e.ActorID,
			e.SeverityLevel,
		)
	}
	return tw.Flush()
}
