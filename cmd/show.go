package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tadoEng/EtabExtension/internal/models"
)

var (
	showOut      outputFlags
	analysisFile string
)

var showCmd = &cobra.Command{
	Use:   "show <version>",
	Short: "Show metadata for a version",
	Long: `Display everything recorded for a version: message, author, content
hashes, E2K export and analysis results.

Example:
  etabext show main/v3`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

var analysisCmd = &cobra.Command{
	Use:   "analysis <version>",
	Short: "Attach structural analysis results to a version",
	Long: `Record analysis results for a saved version from a JSON file with the
fields maxDisplacement, maxDrift, baseShear, overturningMoment,
maxColumnForce, maxBeamMoment, maxShellStress, passedMembers,
failedMembers, utilizationRatio and reportPaths. The version's content is
not changed.

Example:
  etabext analysis main/v3 --file results.json`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalysis,
}

func init() {
	rootCmd.AddCommand(showCmd, analysisCmd)
	showOut.register(showCmd)

	analysisCmd.Flags().StringVarP(&analysisFile, "file", "f", "", "Analysis results JSON file (required)")
	analysisCmd.MarkFlagRequired("file")
}

func runShow(cmd *cobra.Command, args []string) error {
	_, repo, err := openProject()
	if err != nil {
		return err
	}
	ref, err := parseVersionRef(repo, args[0])
	if err != nil {
		return err
	}
	v, err := repo.Version(ref.Branch, ref.VersionID)
	if err != nil {
		return err
	}

	if done, err := showOut.emit(v); done {
		return err
	}

	fmt.Printf("Version: %s\n\n", styleHeading.Render(ref.String()))
	fmt.Printf("Message:     %s\n", v.Message)
	fmt.Printf("Saved:       %s\n", v.Timestamp.Local().Format("2006-01-02 15:04:05"))
	if v.Author != "" {
		fmt.Printf("Author:      %s\n", v.Author)
	}
	fmt.Printf("Commit:      %s\n", v.CommitHash)
	fmt.Printf("Size:        %s\n", formatBytes(v.FileSize))
	if v.HasExport() {
		fmt.Printf("E2K export:  %s (%s)\n", shortHash(v.Export.Digest()), formatBytes(v.ExportSize))
	} else {
		fmt.Printf("E2K export:  %s\n", styleMuted.Render("none"))
	}
	if embeddingStore(repo).Has(ref.Branch, ref.VersionID) {
		fmt.Printf("Embedding:   %s\n", embeddingStore(repo).Path(ref.Branch, ref.VersionID))
	}

	if ar := v.AnalysisResults; v.Analyzed && ar != nil {
		fmt.Printf("\nAnalysis (%s):\n", ar.Timestamp.Local().Format("2006-01-02 15:04"))
		fmt.Printf("  Max displacement:   %.2f mm\n", ar.MaxDisplacement)
		fmt.Printf("  Max drift:          %.3f %%\n", ar.MaxDrift)
		fmt.Printf("  Base shear:         %.1f kN\n", ar.BaseShear)
		fmt.Printf("  Overturning moment: %.1f kN·m\n", ar.OverturningMoment)
		fmt.Printf("  Max column force:   %.1f kN\n", ar.MaxColumnForce)
		fmt.Printf("  Max beam moment:    %.1f kN·m\n", ar.MaxBeamMoment)
		fmt.Printf("  Max shell stress:   %.2f MPa\n", ar.MaxShellStress)
		fmt.Printf("  Members:            %d passed, %d failed\n", ar.PassedMembers, ar.FailedMembers)
		fmt.Printf("  Utilization:        %.1f %%\n", ar.UtilizationRatio)
		for _, p := range ar.ReportPaths {
			fmt.Printf("  Report: %s\n", p)
		}
	}

	return nil
}

func runAnalysis(cmd *cobra.Command, args []string) error {
	_, repo, err := openProject()
	if err != nil {
		return err
	}
	ref, err := parseVersionRef(repo, args[0])
	if err != nil {
		return err
	}

	data, err := os.ReadFile(analysisFile)
	if err != nil {
		return fmt.Errorf("failed to read analysis results: %w", err)
	}
	var results models.AnalysisResults
	if err := json.Unmarshal(data, &results); err != nil {
		return fmt.Errorf("failed to parse analysis results: %w", err)
	}
	if results.Timestamp.IsZero() {
		results.Timestamp = time.Now().UTC()
	}

	if err := repo.RecordAnalysis(ref.Branch, ref.VersionID, &results); err != nil {
		return err
	}

	success("Recorded analysis for %s", ref)
	fmt.Printf("  %d passed, %d failed, max drift %.3f %%\n", results.PassedMembers, results.FailedMembers, results.MaxDrift)
	return nil
}
