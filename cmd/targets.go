package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/apesavax/wAvaxApes/internal/target"
)

var targetsCmd = &cobra.Command{
	Use:     "targets",
	Aliases: []string{"networks"},
	Short:   "List deployment targets",
	Long: `List the configured deployment targets. The default target is marked
with an asterisk.`,
	Args: cobra.NoArgs,
	RunE: runTargetsList,
}

var targetsShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show a deployment target",
	Long: `Show one target as YAML. Without a name the --target flag, or the
default target, is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTargetsShow,
}

func init() {
	targetsCmd.AddCommand(targetsShowCmd)
	rootCmd.AddCommand(targetsCmd)
}

func runTargetsList(cmd *cobra.Command, _ []string) error {
	reg, err := registry()
	if err != nil {
		return err
	}

	targets := make([]target.Target, 0, reg.Len())
	for _, name := range reg.Names() {
		t, err := reg.Resolve(name)
		if err != nil {
			return err
		}
		targets = append(targets, t)
	}

	if jsonOut {
		return printJSON(cmd.OutOrStdout(), targets)
	}

	w := newTable(cmd.OutOrStdout())
	printTableHeader(w, "NAME", "CHAIN ID", "RPC", "CREDENTIAL", "VERIFICATION")
	for _, t := range targets {
		name := t.Name
		if name == reg.Default() {
			name += " *"
		}
		service := "-"
		if t.Verification != nil {
			service = t.Verification.Service
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", name, t.ChainID, truncate(t.Endpoint(), 48), t.Credential, service)
	}
	return w.Flush()
}

func runTargetsShow(cmd *cobra.Command, args []string) error {
	reg, err := registry()
	if err != nil {
		return err
	}
	name := targetName
	if len(args) > 0 {
		name = args[0]
	}
	t, err := reg.Resolve(name)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(cmd.OutOrStdout(), t)
	}
	// Name is not a field in the config file, it is the map key.
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(map[string]target.Target{t.Name: t}); err != nil {
		return err
	}
	return enc.Close()
}
