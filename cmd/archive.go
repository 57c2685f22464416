package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tadoEng/EtabExtension/internal/facade"
	"github.com/tadoEng/EtabExtension/internal/models"
	"github.com/tadoEng/EtabExtension/internal/vcs"
)

var (
	archiveOutput string
	archiveDelete bool
)

var archiveCmd = &cobra.Command{
	Use:   "archive <branch...|all>",
	Short: "Bundle branches for external storage",
	Long: `Create one tar.gz archive per branch for backup or transfer. Each
archive holds the branch's manifest entry and every saved version.

With --delete the branches are removed once archived (main is kept).

Examples:
  etabext archive steel-columns
  etabext archive steel-columns --output columns.tar.gz
  etabext archive all --delete`,
	Args: cobra.MinimumNArgs(1),
	RunE: runArchive,
}

func init() {
	rootCmd.AddCommand(archiveCmd)

	archiveCmd.Flags().StringVarP(&archiveOutput, "output", "o", "", "Output file path (single branch only; default: etabext-<project>-<branch>.tar.gz)")
	archiveCmd.Flags().BoolVar(&archiveDelete, "delete", false, "Delete branches after archiving them")
}

func runArchive(cmd *cobra.Command, args []string) error {
	svc, repo, err := openProject()
	if err != nil {
		return err
	}
	state := repo.State()

	selected := args
	if len(args) == 1 && args[0] == "all" {
		selected = state.BranchNames()
	}
	for _, name := range selected {
		if _, ok := state.Branches[name]; !ok {
			return fmt.Errorf("branch %s does not exist", name)
		}
	}
	if archiveOutput != "" && len(selected) > 1 {
		return fmt.Errorf("--output needs exactly one branch, got %d", len(selected))
	}

	fmt.Printf("Archiving %d branch(es)\n\n", len(selected))

	var archived []string
	for i, name := range selected {
		outputFile := archiveOutput
		if outputFile == "" {
			outputFile = fmt.Sprintf("etabext-%s-%s.tar.gz", filepath.Base(repo.Path()), name)
		}

		fmt.Printf("  [%d/%d] Archiving %s...\n", i+1, len(selected), name)
		files, err := writeArchive(repo, name, outputFile)
		if err != nil {
			return fmt.Errorf("failed to archive %s: %w", name, err)
		}

		size := ""
		if info, err := os.Stat(outputFile); err == nil {
			size = " (" + formatBytes(info.Size()) + ")"
		}
		fmt.Printf("    %s %s, %d file(s)%s\n", styleOK.Render("✓"), outputFile, files, size)
		archived = append(archived, name)
	}

	if archiveDelete {
		fmt.Println("\nDeleting archived branches...")
		for _, name := range archived {
			if name == models.MainBranch {
				fmt.Printf("  Keeping %s\n", name)
				continue
			}
			if _, err := svc.DeleteBranch(commandContext(cmd), facade.DeleteBranchRequest{
				ProjectPath: repo.Path(),
				BranchName:  name,
			}); err != nil {
				fmt.Printf("  %s %s: %v\n", styleError.Render("Error:"), name, err)
				continue
			}
			fmt.Printf("  %s Deleted %s\n", styleOK.Render("✓"), name)
		}
	}

	fmt.Println()
	success("Archived %d branch(es)", len(archived))
	return nil
}

func writeArchive(repo *vcs.Repository, branch, filename string) (int, error) {
	outFile, err := os.Create(filename)
	if err != nil {
		return 0, err
	}

	files, err := repo.ArchiveBranch(branch, outFile)
	if cerr := outFile.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(filename)
		return 0, err
	}
	return files, nil
}
