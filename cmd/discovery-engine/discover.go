package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/discovery-engine/internal/citefetch"
	"github.com/pdiddy/discovery-engine/internal/diffusion"
	"github.com/pdiddy/discovery-engine/internal/score"
	"github.com/pdiddy/discovery-engine/internal/store"
	"github.com/pdiddy/discovery-engine/pkg/types"
)

const (
	defaultModel     = "claude-sonnet-4-5-20250929"
	defaultUserAgent = "discovery-engine/0.1"
	scoringTimeout   = 120 * time.Second
)

var discoverCmd = &cobra.Command{
	Use:   "discover [seed DOIs...]",
	Short: "Run citation diffusion from seed DOIs",
	Long: `Discover grows a corpus outward from the given seed DOIs. Each stage
fetches forward and backward citations of the current seeds, scores the
candidates against the research topic with Claude, admits the relevant
ones, and selects the next stage's seeds from the citation graph. The
loop stops at saturation: candidate exhaustion, the stage ceiling, the
corpus budget, or consecutive low-coverage stages.

The finished run is archived to a SQLite database under --archive-dir
and can be inspected later with the runs and graph commands.`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().String("topic", "", "research topic guiding relevance scoring (required)")
	discoverCmd.Flags().StringArray("question", nil, "research question refining the topic (repeatable)")
	discoverCmd.Flags().String("tier", "standard", "quality tier: draft, standard, or thorough")
	discoverCmd.Flags().Int("max-stages", 0, "diffusion stage ceiling (overrides tier)")
	discoverCmd.Flags().Int("max-papers", 0, "corpus size budget (overrides tier)")
	discoverCmd.Flags().Float64("saturation-threshold", 0, "minimum per-stage coverage delta (overrides tier)")
	discoverCmd.Flags().Int("min-citations", -1, "citation-count floor for non-recent forward citations (overrides tier)")
	discoverCmd.Flags().Int("recency-years", 0, "years within which forward citations skip the citation filter (overrides tier)")
	discoverCmd.Flags().Bool("batch", false, "use chunked batch scoring (overrides tier)")
	discoverCmd.Flags().String("language", "", "target output language ISO code (non-English inflates the internal budget)")

	discoverCmd.Flags().String("provider", "", "bibliographic provider: semantic_scholar or openalex")
	discoverCmd.Flags().Int("per-seed-limit", 0, "papers fetched per seed per direction (default 50)")
	discoverCmd.Flags().Int("concurrency", 0, "simultaneous per-seed fetches (default 5)")
	discoverCmd.Flags().Duration("timeout", 0, "HTTP request timeout for citation fetches (default 30s)")
	discoverCmd.Flags().String("s2-api-key", "", "Semantic Scholar API key (default: .secrets/semantic-scholar-api-key)")
	discoverCmd.Flags().String("openalex-email", "", "email for the OpenAlex polite pool (default: .secrets/openalex-email)")

	discoverCmd.Flags().String("model", "", "Claude model for relevance scoring")
	discoverCmd.Flags().String("api-key", "", "Anthropic API key (default: .secrets/anthropic-api-key)")

	discoverCmd.Flags().String("archive-dir", "runs", "directory for the run archive database")
	discoverCmd.Flags().Bool("no-archive", false, "skip archiving the run")
	discoverCmd.Flags().Bool("json", false, "print the run result as JSON")

	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("provide one or more seed DOIs")
	}
	topic, _ := cmd.Flags().GetString("topic")
	if topic == "" {
		topic = viper.GetString("topic")
	}
	if topic == "" {
		return fmt.Errorf("--topic is required")
	}

	quality, err := qualityFromFlags(cmd)
	if err != nil {
		return err
	}
	fetchCfg := fetchConfigFromFlags(cmd)
	scoringCfg, err := scoringConfigFromFlags(cmd)
	if err != nil {
		return err
	}

	provider, err := citefetch.NewProvider(fetchCfg)
	if err != nil {
		return err
	}
	fetcher := citefetch.New(provider, quality, fetchCfg)

	backend := &score.ClaudeBackend{
		APIKey: scoringCfg.APIKey,
		Model:  scoringCfg.Model,
		Client: &http.Client{Timeout: scoringTimeout},
	}
	questions, _ := cmd.Flags().GetStringArray("question")
	scorer := score.New(backend, score.Request{Topic: topic, Questions: questions}, scoringCfg, quality.UseBatchAPI)

	req := diffusion.Request{
		Seeds:     args,
		Topic:     topic,
		Questions: questions,
		Quality:   quality,
	}
	if lang, _ := cmd.Flags().GetString("language"); lang != "" {
		req.Language = &types.LanguageConfig{Code: lang}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Fprintf(os.Stdout, "Discovering from %d seed(s), provider %s\n", len(args), provider.Name())
	res, err := diffusion.New(fetcher, scorer, provider).Run(ctx, req, os.Stdout)
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		if err := printResultJSON(res); err != nil {
			return err
		}
	} else {
		printResult(res)
	}

	if noArchive, _ := cmd.Flags().GetBool("no-archive"); noArchive {
		return nil
	}
	archiveDir, _ := cmd.Flags().GetString("archive-dir")
	return archiveRun(topic, archiveDir, res)
}

// qualityFromFlags resolves the tier preset, then applies explicit flag
// overrides on top of it.
func qualityFromFlags(cmd *cobra.Command) (types.QualitySettings, error) {
	tier, _ := cmd.Flags().GetString("tier")
	quality, ok := types.TierSettings(types.QualityTier(tier))
	if !ok {
		return quality, fmt.Errorf("unknown tier %q: use draft, standard, or thorough", tier)
	}

	if cmd.Flags().Changed("max-stages") {
		quality.MaxStages, _ = cmd.Flags().GetInt("max-stages")
	}
	if cmd.Flags().Changed("max-papers") {
		quality.MaxPapers, _ = cmd.Flags().GetInt("max-papers")
	}
	if cmd.Flags().Changed("saturation-threshold") {
		quality.SaturationThreshold, _ = cmd.Flags().GetFloat64("saturation-threshold")
	}
	if cmd.Flags().Changed("min-citations") {
		quality.MinCitationsFilter, _ = cmd.Flags().GetInt("min-citations")
	}
	if cmd.Flags().Changed("recency-years") {
		quality.RecencyYears, _ = cmd.Flags().GetInt("recency-years")
	}
	if cmd.Flags().Changed("batch") {
		quality.UseBatchAPI, _ = cmd.Flags().GetBool("batch")
	}
	return quality, nil
}

func fetchConfigFromFlags(cmd *cobra.Command) types.FetchConfig {
	provider, _ := cmd.Flags().GetString("provider")
	if provider == "" {
		provider = viper.GetString("fetch.provider")
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	perSeed, _ := cmd.Flags().GetInt("per-seed-limit")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	s2Key, _ := cmd.Flags().GetString("s2-api-key")
	email, _ := cmd.Flags().GetString("openalex-email")

	return types.FetchConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   timeout,
			UserAgent: defaultUserAgent,
		},
		Provider:              provider,
		MaxConcurrentSeeds:    concurrency,
		PerSeedLimit:          perSeed,
		SemanticScholarAPIKey: secretDefault("semantic-scholar-api-key", s2Key),
		OpenAlexEmail:         secretDefault("openalex-email", email),
	}
}

func scoringConfigFromFlags(cmd *cobra.Command) (types.ScoringConfig, error) {
	model, _ := cmd.Flags().GetString("model")
	if model == "" {
		model = viper.GetString("scoring.model")
	}
	if model == "" {
		model = defaultModel
	}
	apiKey, _ := cmd.Flags().GetString("api-key")

	cfg := types.ScoringConfig{
		Model:  model,
		APIKey: secretDefault("anthropic-api-key", apiKey),
	}
	if cfg.APIKey == "" {
		return cfg, fmt.Errorf("anthropic API key required: pass --api-key or create .secrets/anthropic-api-key")
	}
	return cfg, nil
}

func printResult(res *diffusion.Result) {
	st := res.Diffusion
	fmt.Fprintf(os.Stdout, "\nRun finished after %d stage(s): %s\n", st.CurrentStage, st.SaturationReason)
	fmt.Fprintf(os.Stdout, "Discovered %d, relevant %d, rejected %d\n",
		st.TotalDiscovered, st.TotalRelevant, st.TotalRejected)
	fmt.Fprintf(os.Stdout, "Final corpus: %d paper(s), fallback queue: %d\n\n",
		len(res.FinalCorpusDOIs), len(res.FallbackQueue))

	for _, doi := range res.FinalCorpusDOIs {
		p := res.PaperCorpus[doi]
		title := p.Title
		if title == "" {
			title = "(no title)"
		}
		fmt.Fprintf(os.Stdout, "  %.2f  s%d  %-10s  %s  %s\n",
			p.RelevanceScore, p.DiscoveryStage, p.DiscoveryMethod, doi, title)
	}
}

func printResultJSON(res *diffusion.Result) error {
	out := struct {
		FinalCorpus   []types.Paper             `json:"final_corpus"`
		Diffusion     types.DiffusionState      `json:"diffusion"`
		FallbackQueue []types.FallbackCandidate `json:"fallback_queue"`
	}{
		Diffusion:     res.Diffusion,
		FallbackQueue: res.FallbackQueue,
	}
	for _, doi := range res.FinalCorpusDOIs {
		out.FinalCorpus = append(out.FinalCorpus, res.PaperCorpus[doi])
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func archiveRun(topic, archiveDir string, res *diffusion.Result) error {
	st, err := store.NewStore(archiveDir)
	if err != nil {
		return err
	}
	defer st.Close()

	runID, err := st.SaveRun(context.Background(), topic, res)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "\nRun archived as %d (%s)\n", runID, archiveDir)
	return nil
}
