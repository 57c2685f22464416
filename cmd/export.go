package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tadoEng/EtabExtension/internal/etabs"
	"github.com/tadoEng/EtabExtension/internal/facade"
)

var (
	exportBranch    string
	exportOutput    string
	exportOverwrite bool
	exportOut       outputFlags
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a branch's working file to E2K",
	Long: `Run the sidecar CLI to export a branch's working file as E2K text.

The export is written to <branch>-<design>.e2k in the current directory
unless --output is given. It is not stored with any version: use save for
that.

Examples:
  etabext export
  etabext export --branch steel-columns --output columns.e2k --overwrite`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportOut.register(exportCmd)

	exportCmd.Flags().StringVarP(&exportBranch, "branch", "b", "", "Branch (default: current branch)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file path")
	exportCmd.Flags().BoolVar(&exportOverwrite, "overwrite", false, "Replace an existing output file")
}

func runExport(cmd *cobra.Command, args []string) error {
	svc, repo, err := openProject()
	if err != nil {
		return err
	}
	branch := branchOrCurrent(repo, exportBranch)

	b, ok := repo.State().Branches[branch]
	if !ok {
		return fmt.Errorf("branch %s does not exist", branch)
	}
	if b.WorkingFile == nil || !b.WorkingFile.Exists {
		return fmt.Errorf("branch %s has no working file", branch)
	}

	output := exportOutput
	if output == "" {
		design := strings.TrimSuffix(repo.DesignFile(), filepath.Ext(repo.DesignFile()))
		output = fmt.Sprintf("%s-%s%s", branch, design, etabs.ExportExt)
	}
	output, err = filepath.Abs(output)
	if err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}

	resp, err := svc.GenerateE2k(commandContext(cmd), facade.GenerateE2kRequest{
		EdbPath:    repo.Store().WorkingFilePath(branch, repo.DesignFile()),
		OutputPath: output,
		Overwrite:  exportOverwrite,
	})
	if err != nil {
		return err
	}

	if done, err := exportOut.emit(resp); done {
		return err
	}

	success("Exported %s to %s (%s)", branch, resp.E2kPath, formatBytes(resp.FileSize))
	for _, m := range resp.Messages {
		fmt.Printf("  %s\n", styleMuted.Render(m))
	}
	return nil
}
