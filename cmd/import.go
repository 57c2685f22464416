package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tadoEng/EtabExtension/internal/errs"
	"github.com/tadoEng/EtabExtension/internal/etabs"
)

var (
	importBranch string
	importForce  bool
)

var importCmd = &cobra.Command{
	Use:   "import <file.edb>",
	Short: "Replace a branch's working file with an outside model",
	Long: `Copy a design file edited outside the project into a branch as its
working file. The branch is marked as having unsaved changes unless the
content matches its last saved or checked out version; save it to keep it.

Examples:
  etabext import ~/Desktop/tower-rev2.edb
  etabext import tower.edb --branch steel-columns --force`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVarP(&importBranch, "branch", "b", "", "Branch (default: current branch)")
	importCmd.Flags().BoolVar(&importForce, "force", false, "Overwrite unsaved changes")
}

func runImport(cmd *cobra.Command, args []string) error {
	_, repo, err := openProject()
	if err != nil {
		return err
	}
	branch := branchOrCurrent(repo, importBranch)

	source := args[0]
	if !strings.EqualFold(filepath.Ext(source), etabs.DesignExt) {
		return errs.E(errs.SourceInvalid, "%s is not an ETABS design file (%s)", source, etabs.DesignExt)
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", source, err)
	}

	state, err := repo.Refresh()
	if err != nil {
		return err
	}
	if b, ok := state.Branches[branch]; ok && b.HasUnsavedChanges() && !importForce {
		return fmt.Errorf("branch %s has unsaved changes (save them first or use --force)", branch)
	}

	wf, err := repo.ImportWorkingFile(branch, data)
	if err != nil {
		return err
	}

	success("Imported %s into %s (%s)", source, branch, formatBytes(int64(len(data))))
	if wf.HasUnsavedChanges {
		fmt.Println(`  Working file has unsaved changes: etabext save -m "<message>"`)
	} else {
		fmt.Println("  Content matches the last saved version")
	}
	return nil
}
