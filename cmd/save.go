package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tadoEng/EtabExtension/internal/config"
	"github.com/tadoEng/EtabExtension/internal/facade"
	"github.com/tadoEng/EtabExtension/internal/ollama"
	"github.com/tadoEng/EtabExtension/internal/vcs"
)

var (
	saveMessage string
	saveBranch  string
	saveAuthor  string
	saveNoE2K   bool
	saveNoEmbed bool
)

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save the working file as a new version",
	Long: `Snapshot a branch's working file as an immutable version.

The working file is exported to E2K first (unless --no-e2k) and the export is
stored with the version, which is what makes it comparable with diff. If the
export fails nothing is saved.

When embeddings are enabled and Ollama is running, the version message is
embedded for semantic search.

Examples:
  etabext save -m "Initial design"
  etabext save -m "Bigger steel columns" --branch steel-columns
  etabext save -m "WIP" --no-e2k`,
	Args: cobra.NoArgs,
	RunE: runSave,
}

func init() {
	rootCmd.AddCommand(saveCmd)

	saveCmd.Flags().StringVarP(&saveMessage, "message", "m", "", "Version message (required)")
	saveCmd.Flags().StringVarP(&saveBranch, "branch", "b", "", "Branch to save (default: current branch)")
	saveCmd.Flags().StringVar(&saveAuthor, "author", "", "Author (default: project.default_author)")
	saveCmd.Flags().BoolVar(&saveNoE2K, "no-e2k", false, "Skip the E2K export")
	saveCmd.Flags().BoolVar(&saveNoEmbed, "no-embed", false, "Skip embedding generation")
}

func runSave(cmd *cobra.Command, args []string) error {
	svc, repo, err := openProject()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	branch := branchOrCurrent(repo, saveBranch)

	fmt.Printf("Saving %s...\n", branch)

	resp, err := svc.SaveVersion(ctx, facade.SaveVersionRequest{
		ProjectPath: repo.Path(),
		BranchName:  branch,
		Message:     saveMessage,
		Author:      saveAuthor,
		GenerateE2k: !saveNoE2K,
	})
	if err != nil {
		return err
	}

	success("Saved %s/%s", branch, styleHeading.Render(resp.VersionID))
	fmt.Printf("  Commit: %s\n", shortHash(resp.CommitHash))
	fmt.Printf("  Size:   %s\n", formatBytes(resp.FileSize))
	if resp.E2kGenerated {
		fmt.Println("  E2K:    exported")
	} else {
		fmt.Println("  E2K:    " + styleMuted.Render("skipped (version cannot be diffed)"))
	}

	if !saveNoEmbed && config.GetEmbeddingsEnabled() {
		if err := embedVersion(ctx, repo, branch, resp.VersionID, saveMessage); err != nil {
			warn("failed to generate embedding: %v", err)
		}
	}

	return nil
}

// embedVersion stores the embedding of a version message. It is skipped
// quietly when Ollama is not running.
func embedVersion(ctx context.Context, repo *vcs.Repository, branch, versionID, message string) error {
	client, err := ollama.NewClient(config.GetOllamaURL(), config.GetEmbeddingModel())
	if err != nil {
		return err
	}
	if !client.Available(ctx) {
		fmt.Println("  Embedding: " + styleMuted.Render("skipped (Ollama not running)"))
		return nil
	}
	if err := client.CheckModel(ctx); err != nil {
		return err
	}

	vec, err := client.Embed(ctx, message)
	if err != nil {
		return err
	}
	if err := embeddingStore(repo).Put(branch, versionID, vec); err != nil {
		return err
	}

	fmt.Printf("  Embedding: %d dimensions (%s)\n", len(vec), client.Model())
	getLogger().Debug("embedding stored", "branch", branch, "version", versionID)
	return nil
}
