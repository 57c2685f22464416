package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/tadoEng/EtabExtension/internal/config"
	"github.com/tadoEng/EtabExtension/internal/embeddings"
	"github.com/tadoEng/EtabExtension/internal/models"
	"github.com/tadoEng/EtabExtension/internal/ollama"
)

var (
	searchBranch string
	searchLimit  int
	searchOut    outputFlags
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search versions using hybrid keyword and semantic search",
	Long: `Search version messages, authors and branch names using hybrid search.

Combines keyword matching with semantic similarity (if embeddings available).
Automatically uses semantic search when versions have embeddings.

Example:
  etabext search "steel columns"
  etabext search --branch main "drift"

Search modes:
  - Keyword only: When embeddings unavailable or Ollama not running
  - Hybrid: Combines keyword (30%) + semantic (70%) when embeddings available`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchOut.register(searchCmd)

	searchCmd.Flags().StringVarP(&searchBranch, "branch", "b", "", "Filter by branch")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "Maximum number of results")
}

type searchResult struct {
	Branch        string  `json:"branch"`
	Version       string  `json:"version"`
	Message       string  `json:"message"`
	Author        string  `json:"author,omitempty"`
	Timestamp     string  `json:"timestamp"`
	Score         float64 `json:"score"`
	KeywordScore  int     `json:"keywordScore"`
	SemanticScore float64 `json:"semanticScore,omitempty"`
	UsedSemantic  bool    `json:"usedSemantic"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	_, repo, err := openProject()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	query := args[0]
	queryWords := strings.Fields(strings.ToLower(query))

	state := repo.State()
	type candidate struct {
		branch  string
		version *models.Version
	}
	var candidates []candidate
	for _, name := range state.BranchNames() {
		if searchBranch != "" && name != searchBranch {
			continue
		}
		for _, v := range state.Branches[name].Versions {
			candidates = append(candidates, candidate{branch: name, version: v})
		}
	}

	if len(candidates) == 0 {
		fmt.Println("No versions found")
		return nil
	}

	queryEmbedding := queryVector(ctx, query)
	if !searchOut.json && !searchOut.toon {
		if queryEmbedding != nil {
			fmt.Println("Using hybrid search (keyword + semantic)")
		} else {
			fmt.Println("Using keyword search only")
		}
	}

	keywordWeight := config.GetKeywordWeight()
	semanticWeight := config.GetSemanticWeight()
	vectors := embeddingStore(repo)

	p := pool.NewWithResults[searchResult]().WithMaxGoroutines(8)
	for _, c := range candidates {
		p.Go(func() searchResult {
			return scoreVersion(c.branch, c.version, queryWords, queryEmbedding, vectors, keywordWeight, semanticWeight)
		})
	}

	var results []searchResult
	for _, r := range p.Wait() {
		if r.Score > 0 || r.KeywordScore > 0 {
			results = append(results, r)
		}
	}

	// Sort by combined score (highest first), newest first on ties
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Timestamp > results[j].Timestamp
	})
	if searchLimit > 0 && len(results) > searchLimit {
		results = results[:searchLimit]
	}

	if done, err := searchOut.emit(results); done {
		return err
	}

	if len(results) == 0 {
		fmt.Println("No versions match the search query")
		return nil
	}

	fmt.Printf("\nFound %d matching version(s):\n\n", len(results))
	for i, r := range results {
		scoreDisplay := fmt.Sprintf("%.1f", r.Score)
		if r.UsedSemantic {
			scoreDisplay += fmt.Sprintf(" (keyword: %d, semantic: %.1f%%)", r.KeywordScore, r.SemanticScore)
		} else {
			scoreDisplay += " (keyword only)"
		}

		fmt.Printf("%d. %s/%s [score: %s]\n", i+1, r.Branch, r.Version, scoreDisplay)
		fmt.Printf("   Message: %s\n", truncate(r.Message, 80))
		fmt.Printf("   Saved:   %s\n", r.Timestamp)
		if r.Author != "" {
			fmt.Printf("   Author:  %s\n", r.Author)
		}
		fmt.Println()
	}

	return nil
}

// queryVector embeds the query, or returns nil when semantic search is off
// or Ollama cannot be reached.
func queryVector(ctx context.Context, query string) []float64 {
	if !config.GetEmbeddingsEnabled() {
		return nil
	}
	client, err := ollama.NewClient(config.GetOllamaURL(), config.GetEmbeddingModel())
	if err != nil || !client.Available(ctx) {
		return nil
	}
	vec, err := client.Embed(ctx, query)
	if err != nil {
		getLogger().Warn("failed to embed query", "err", err)
		return nil
	}
	return vec
}

func scoreVersion(branch string, v *models.Version, words []string, query []float64, vectors *embeddings.Store, keywordWeight, semanticWeight float64) searchResult {
	text := fmt.Sprintf("%s %s %s", v.ID, v.Message, v.Author)
	keyword := embeddings.KeywordScore(words, branch, text)

	r := searchResult{
		Branch:       branch,
		Version:      v.ID,
		Message:      v.Message,
		Author:       v.Author,
		Timestamp:    v.Timestamp.Local().Format("2006-01-02 15:04"),
		Score:        float64(keyword),
		KeywordScore: keyword,
	}

	if query == nil || !vectors.Has(branch, v.ID) {
		return r
	}
	vec, err := vectors.Get(branch, v.ID)
	if err != nil {
		return r
	}
	sim, err := embeddings.CosineSimilarity(query, vec)
	if err != nil {
		return r
	}

	r.SemanticScore = embeddings.SemanticScore(sim)
	r.Score = embeddings.Combine(keyword, r.SemanticScore, keywordWeight, semanticWeight)
	r.UsedSemantic = true
	return r
}
