package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/apesavax/wAvaxApes/internal/artifact"
)

type artifactInfo struct {
	Name       string `json:"name"`
	Source     string `json:"source"`
	Compiler   string `json:"compiler,omitempty"`
	Profile    string `json:"profile"`
	BuildError string `json:"buildError,omitempty"`
}

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "List compiled contracts",
	Long: `List the contracts in the artifacts directory and check each build
against the configured solidity profile (version, optimizer runs, EVM version).`,
	Args: cobra.NoArgs,
	RunE: runArtifacts,
}

func init() {
	rootCmd.AddCommand(artifactsCmd)
}

func runArtifacts(cmd *cobra.Command, _ []string) error {
	store := artifact.NewStore(cfg.ArtifactsDir)
	entries, err := store.List()
	if err != nil {
		return err
	}

	infos := make([]artifactInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, inspectArtifact(store, e))
	}

	if jsonOut {
		return printJSON(cmd.OutOrStdout(), infos)
	}

	w := newTable(cmd.OutOrStdout())
	printTableHeader(w, "CONTRACT", "SOURCE", "COMPILER", "PROFILE")
	for _, info := range infos {
		profile := colorGreen(info.Profile)
		if info.Profile != "ok" {
			profile = colorYellow(info.Profile)
		}
		compiler := info.Compiler
		if compiler == "" {
			compiler = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", info.Name, info.Source, compiler, profile)
	}
	return w.Flush()
}

func inspectArtifact(store *artifact.Store, e artifact.Entry) artifactInfo {
	info := artifactInfo{Name: e.ContractName, Source: e.SourceName, Profile: "unknown"}

	a, err := artifact.ReadFile(e.Path)
	if err != nil {
		info.BuildError = err.Error()
		return info
	}
	bi, err := store.BuildInfo(a)
	if err != nil {
		info.BuildError = err.Error()
		return info
	}
	info.Compiler = bi.CompilerVersion()
	if err := bi.CheckCompiler(cfg.Solidity); err != nil {
		info.Profile = "mismatch"
		info.BuildError = err.Error()
		return info
	}
	info.Profile = "ok"
	return info
}
