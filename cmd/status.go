package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tadoEng/EtabExtension/internal/etabs"
	"github.com/tadoEng/EtabExtension/internal/facade"
	"github.com/tadoEng/EtabExtension/internal/models"
)

var statusOut outputFlags

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the project, its branches and their working files",
	Long: `Show the current branch, every branch's latest version and whether its
working file has unsaved changes. Working-file flags are re-derived from disk
before printing.

Examples:
  etabext status
  etabext status --json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusOut.register(statusCmd)
}

type statusReport struct {
	State *models.ProjectState `json:"state"`
	Etabs etabs.Status         `json:"etabs"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	svc, repo, err := openProject()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	resp, err := svc.GetProjectState(ctx, facade.ProjectRequest{ProjectPath: repo.Path()})
	if err != nil {
		return err
	}
	report := statusReport{State: resp.State, Etabs: repo.ToolStatus()}

	if done, err := statusOut.emit(report); done {
		return err
	}

	state := report.State
	heading(fmt.Sprintf("Project %s", state.ProjectName))
	fmt.Printf("Path:           %s\n", state.ProjectPath)
	fmt.Printf("Current branch: %s\n", styleOK.Render(state.CurrentBranch))
	if report.Etabs.IsRunning {
		fmt.Printf("ETABS:          running (pid %d) %s\n", report.Etabs.ProcessID, report.Etabs.OpenFilePath)
	} else {
		fmt.Printf("ETABS:          %s\n", styleMuted.Render("not running"))
	}
	fmt.Println()

	for _, name := range state.BranchNames() {
		b := state.Branches[name]
		marker := "  "
		if name == state.CurrentBranch {
			marker = styleOK.Render("* ")
		}
		fmt.Printf("%s%s\n", marker, name)
		fmt.Printf("    Versions: %d", len(b.Versions))
		if b.LatestVersion != "" {
			fmt.Printf(" (latest %s)", b.LatestVersion)
		}
		fmt.Println()
		fmt.Printf("    Working:  %s\n", describeWorkingFile(b.WorkingFile))
	}

	return nil
}

func describeWorkingFile(w *models.WorkingFile) string {
	if w == nil || !w.Exists {
		return styleMuted.Render("none")
	}
	desc := "clean"
	if w.HasUnsavedChanges {
		desc = styleWarn.Render("unsaved changes")
	}
	if w.SourceVersion != "" {
		desc += fmt.Sprintf(" (from %s/%s)", w.SourceBranch, w.SourceVersion)
	}
	if w.IsOpen {
		desc += ", open in ETABS"
	}
	if w.LastModified != nil {
		desc += ", modified " + formatAge(*w.LastModified)
	}
	return desc
}
