package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/apesavax/wAvaxApes/internal/journal"
)

var deploymentsCmd = &cobra.Command{
	Use:   "deployments",
	Short: "List recorded deployments",
	Long: `List the deployments recorded in the journal, oldest first. With
--target only that target's deployments are listed.`,
	Args: cobra.NoArgs,
	RunE: runDeployments,
}

func init() {
	rootCmd.AddCommand(deploymentsCmd)
}

func runDeployments(cmd *cobra.Command, _ []string) error {
	j, err := journal.Open(cfg.JournalDir)
	if err != nil {
		return err
	}

	var names []string
	if targetName != "" {
		reg, err := registry()
		if err != nil {
			return err
		}
		t, err := reg.Resolve(targetName)
		if err != nil {
			return err
		}
		names = []string{t.Name}
	} else if names, err = j.Targets(); err != nil {
		return err
	}

	var records []journal.Record
	for _, name := range names {
		recs, err := j.List(name)
		if err != nil {
			return err
		}
		records = append(records, recs...)
	}

	if jsonOut {
		if records == nil {
			records = []journal.Record{}
		}
		return printJSON(cmd.OutOrStdout(), records)
	}

	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No deployments recorded.")
		return nil
	}

	w := newTable(cmd.OutOrStdout())
	printTableHeader(w, "ID", "TARGET", "CONTRACT", "ADDRESS", "DEPLOYED", "VERIFIED")
	for _, r := range records {
		verified := "no"
		if r.VerifiedURL != "" {
			verified = colorGreen("yes")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Target, r.Contract, r.Address.Hex(),
			deployedAt(r).Local().Format(time.DateTime), verified)
	}
	return w.Flush()
}

// deployedAt falls back to the time in the record ID for records written
// without a timestamp.
func deployedAt(r journal.Record) time.Time {
	if !r.DeployedAt.IsZero() {
		return r.DeployedAt
	}
	if ts, err := journal.IDTime(r.ID); err == nil {
		return ts
	}
	return r.DeployedAt
}
