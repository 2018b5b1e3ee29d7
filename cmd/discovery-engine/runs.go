// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/discovery-engine/internal/store"
	"github.com/pdiddy/discovery-engine/pkg/types"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect archived discovery runs",
	Long: `Runs reads the SQLite run archive written by discover. Use list to
see all archived runs and show to inspect one run's corpus, per-stage
progress, and fallback queue.`,
}

// --- list subcommand ---

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived runs, newest first",
	RunE:  runRunsList,
}

func runRunsList(cmd *cobra.Command, args []string) error {
	st, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(context.Background())
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No archived runs.")
		return nil
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	fmt.Fprintf(os.Stdout, "%-4s  %-20s  %-6s  %-8s  %-6s  %-32s  %s\n",
		"ID", "Created", "Stages", "Relevant", "Corpus", "Stopped", "Topic")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 110))
	for _, r := range runs {
		reason := r.SaturationReason
		if len(reason) > 32 {
			reason = reason[:29] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-4d  %-20s  %-6d  %-8d  %-6d  %-32s  %s\n",
			r.ID, r.CreatedAt, r.Stages, r.TotalRelevant, r.FinalCorpusSize, reason, r.Topic)
	}
	return nil
}

// --- show subcommand ---

var runsShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show one run's corpus, stages, and fallback queue",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	runID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid run ID %q", args[0])
	}

	st, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	all, _ := cmd.Flags().GetBool("all")
	papers, err := st.RunPapers(ctx, runID, !all)
	if err != nil {
		return err
	}
	stages, err := st.RunStages(ctx, runID)
	if err != nil {
		return err
	}
	queue, err := st.RunFallbackQueue(ctx, runID)
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		out := struct {
			Papers        []types.Paper             `json:"papers"`
			Stages        []types.DiffusionStage    `json:"stages"`
			FallbackQueue []types.FallbackCandidate `json:"fallback_queue"`
		}{papers, stages, queue}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(os.Stdout, "Run %d: %d paper(s), %d stage(s), %d fallback candidate(s)\n\n",
		runID, len(papers), len(stages), len(queue))

	for _, stg := range stages {
		fmt.Fprintf(os.Stdout, "Stage %d: %d seed(s), +%d forward +%d backward, %d relevant, %d rejected, coverage %.2f\n",
			stg.Stage, len(stg.SeedDOIs), stg.ForwardFound, stg.BackwardFound,
			len(stg.NewRelevant), len(stg.NewRejected), stg.CoverageDelta)
	}
	if len(stages) > 0 {
		fmt.Fprintln(os.Stdout)
	}

	for _, p := range papers {
		title := p.Title
		if len(title) > 60 {
			title = title[:57] + "..."
		}
		fmt.Fprintf(os.Stdout, "  %.2f  s%d  %-10s  %s  %s\n",
			p.RelevanceScore, p.DiscoveryStage, p.DiscoveryMethod, p.DOI, title)
	}

	if len(queue) > 0 {
		fmt.Fprintf(os.Stdout, "\nFallback queue:\n")
		for i, c := range queue {
			fmt.Fprintf(os.Stdout, "  %2d. %.2f  %-14s  %s\n", i+1, c.RelevanceScore, c.Source, c.DOI)
		}
	}
	return nil
}

// --- export subcommand ---

var runsExportCmd = &cobra.Command{
	Use:   "export [run-id]",
	Short: "Export one run to YAML or JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsExport,
}

func runRunsExport(cmd *cobra.Command, args []string) error {
	runID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid run ID %q", args[0])
	}

	st, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	format, _ := cmd.Flags().GetString("format")
	out, _ := cmd.Flags().GetString("out")

	switch format {
	case "yaml", "":
		if out == "" {
			out = fmt.Sprintf("run-%d.yaml", runID)
		}
		if err := st.ExportYAML(context.Background(), runID, out); err != nil {
			return err
		}
	case "json":
		if out == "" {
			out = fmt.Sprintf("run-%d.json", runID)
		}
		if err := st.ExportJSON(context.Background(), runID, out); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}

	fmt.Printf("Exported run %d to %s\n", runID, out)
	return nil
}

// --- shared helpers ---

func openArchive(cmd *cobra.Command) (*store.Store, error) {
	archiveDir, _ := cmd.Flags().GetString("archive-dir")
	if archiveDir == "" {
		archiveDir = "runs"
	}
	return store.NewStore(archiveDir)
}

func init() {
	// Shared flags on the parent command, inherited by subcommands.
	runsCmd.PersistentFlags().String("archive-dir", "runs", "directory holding the run archive database")
	runsCmd.PersistentFlags().Bool("json", false, "output as JSON")

	runsShowCmd.Flags().Bool("all", false, "include papers trimmed from the final corpus")

	runsExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	runsExportCmd.Flags().String("out", "", "output path (default run-<id>.<format>)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsExportCmd)

	rootCmd.AddCommand(runsCmd)
}
