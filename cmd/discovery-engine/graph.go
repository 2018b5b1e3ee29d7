// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/discovery-engine/internal/citegraph"
)

var graphCmd = &cobra.Command{
	Use:   "graph [run-id]",
	Short: "Explore an archived run's citation graph",
	Long: `Graph rebuilds the citation graph of an archived run and reports its
structure: seminal papers by in-corpus citation count, recent impactful
papers, bridging papers by betweenness centrality, and topic clusters.`,
	Args: cobra.ExactArgs(1),
	RunE: runGraph,
}

func init() {
	graphCmd.Flags().String("archive-dir", "runs", "directory holding the run archive database")
	graphCmd.Flags().Int("top", 10, "how many papers to list per ranking")
	graphCmd.Flags().Bool("bridging", false, "include bridging papers (betweenness centrality)")
	graphCmd.Flags().String("clusters", "", "cluster the graph: label_propagation or louvain")

	rootCmd.AddCommand(graphCmd)
}

func runGraph(cmd *cobra.Command, args []string) error {
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
	papers, err := st.RunPapers(ctx, runID, false)
	if err != nil {
		return err
	}
	edges, err := st.RunEdges(ctx, runID)
	if err != nil {
		return err
	}

	g := citegraph.New()
	for _, p := range papers {
		g.AddPaper(p.DOI, p)
	}
	for _, e := range edges {
		g.AddCitation(e.CitingDOI, e.CitedDOI, e.EdgeType)
	}

	titles := make(map[string]string, len(papers))
	for _, p := range papers {
		titles[p.DOI] = p.Title
	}

	fmt.Fprintf(os.Stdout, "Run %d graph: %d node(s), %d edge(s)\n\n",
		runID, g.NodeCount(), g.EdgeCount())

	topN, _ := cmd.Flags().GetInt("top")

	fmt.Fprintln(os.Stdout, "Seminal papers (in-corpus citations):")
	for _, doi := range g.SeminalPapers(topN) {
		fmt.Fprintf(os.Stdout, "  %3d  %s  %s\n", g.InDegree(doi), doi, titles[doi])
	}

	recent := g.RecentImpactful(3, topN, time.Now().Year())
	if len(recent) > 0 {
		fmt.Fprintln(os.Stdout, "\nRecent impactful papers (citations per year):")
		for _, doi := range recent {
			fmt.Fprintf(os.Stdout, "  %3d  %s  %s\n", g.InDegree(doi), doi, titles[doi])
		}
	}

	if bridging, _ := cmd.Flags().GetBool("bridging"); bridging {
		fmt.Fprintln(os.Stdout, "\nBridging papers (betweenness centrality):")
		for _, doi := range g.BridgingPapers(topN) {
			fmt.Fprintf(os.Stdout, "  %s  %s\n", doi, titles[doi])
		}
	}

	if algorithm, _ := cmd.Flags().GetString("clusters"); algorithm != "" {
		clusters, err := g.IdentifyClusters(algorithm)
		if err != nil {
			return err
		}
		ids := make([]int, 0, len(clusters))
		for id := range clusters {
			ids = append(ids, id)
		}
		sort.Ints(ids)

		fmt.Fprintf(os.Stdout, "\n%d cluster(s) via %s:\n", len(clusters), algorithm)
		for _, id := range ids {
			members := clusters[id]
			fmt.Fprintf(os.Stdout, "  Cluster %d (%d paper(s)):\n", id, len(members))
			for _, doi := range members {
				fmt.Fprintf(os.Stdout, "    %s  %s\n", doi, titles[doi])
			}
		}
	}
	return nil
}
