package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tadoEng/EtabExtension/internal/facade"
	"github.com/tadoEng/EtabExtension/internal/models"
)

var (
	logOut   outputFlags
	logSince string
	logLimit int
)

var logCmd = &cobra.Command{
	Use:   "log [branch]",
	Short: "List the versions of a branch",
	Long: `List a branch's versions, newest first.

Examples:
  etabext log
  etabext log steel-columns --since 2025-10-01
  etabext log --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLog,
}

func init() {
	rootCmd.AddCommand(logCmd)
	logOut.register(logCmd)

	logCmd.Flags().StringVar(&logSince, "since", "", "Show versions since date (YYYY-MM-DD)")
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 0, "Show at most n versions")
}

func runLog(cmd *cobra.Command, args []string) error {
	svc, repo, err := openProject()
	if err != nil {
		return err
	}
	branch := repo.State().CurrentBranch
	if len(args) > 0 {
		branch = args[0]
	}

	var since time.Time
	if logSince != "" {
		since, err = time.ParseInLocation("2006-01-02", logSince, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --since date format (use YYYY-MM-DD): %w", err)
		}
	}

	resp, err := svc.ListVersions(commandContext(cmd), facade.BranchRequest{ProjectPath: repo.Path(), BranchName: branch})
	if err != nil {
		return err
	}

	// newest first
	versions := make([]*models.Version, 0, len(resp.Versions))
	for i := len(resp.Versions) - 1; i >= 0; i-- {
		v := resp.Versions[i]
		if !since.IsZero() && v.Timestamp.Before(since) {
			continue
		}
		versions = append(versions, v)
		if logLimit > 0 && len(versions) == logLimit {
			break
		}
	}
	resp.Versions = versions

	if done, err := logOut.emit(resp); done {
		return err
	}

	if len(versions) == 0 {
		fmt.Printf("No versions on %s\n", branch)
		return nil
	}

	fmt.Printf("Found %d version(s) on %s:\n\n", len(versions), branch)
	for _, v := range versions {
		fmt.Printf("  %s  %s\n", styleHeading.Render(v.ID), v.Message)
		fmt.Printf("    Saved:  %s (%s)\n", v.Timestamp.Local().Format("2006-01-02 15:04"), formatAge(v.Timestamp))
		if v.Author != "" {
			fmt.Printf("    Author: %s\n", v.Author)
		}
		fmt.Printf("    Commit: %s  %s\n", shortHash(v.CommitHash), formatBytes(v.FileSize))
		if !v.HasExport() {
			fmt.Printf("    %s\n", styleMuted.Render("no E2K export"))
		}
		if v.Analyzed && v.AnalysisResults != nil {
			ar := v.AnalysisResults
			fmt.Printf("    Analysis: drift %.2f%%, base shear %.0f kN, %d/%d members passed\n",
				ar.MaxDrift, ar.BaseShear, ar.PassedMembers, ar.PassedMembers+ar.FailedMembers)
		}
		fmt.Println()
	}

	if w := resp.WorkingFile; w != nil && w.HasUnsavedChanges {
		fmt.Println(styleWarn.Render("Working file has unsaved changes"))
	}

	return nil
}
