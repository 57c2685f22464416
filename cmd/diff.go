package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tadoEng/EtabExtension/internal/facade"
	"github.com/tadoEng/EtabExtension/internal/models"
	"github.com/tadoEng/EtabExtension/internal/vcs"
)

var (
	diffOut     outputFlags
	diffType    string
	diffContext int
	diffRaw     bool
)

var diffCmd = &cobra.Command{
	Use:   "diff <version1> <version2>",
	Short: "Compare two versions",
	Long: `Compare the E2K exports of two versions and show differences in:
  - Materials, sections, members, loads, analysis and design settings
  - Derived geometry (members added, removed or moved)

Versions are given as branch/vN, or vN on the current branch. Both versions
must have been saved with an E2K export.

Examples:
  etabext diff main/v1 steel-columns/v1
  etabext diff v1 v2 --type geometry
  etabext diff v1 v2 --raw`,
	Args: cobra.ExactArgs(2),
	RunE: runDiff,
}

func init() {
	rootCmd.AddCommand(diffCmd)
	diffOut.register(diffCmd)

	diffCmd.Flags().StringVar(&diffType, "type", string(models.DiffBoth), "Diff type: e2k|geometry|both")
	diffCmd.Flags().IntVar(&diffContext, "context", 0, "Context lines in the raw diff (default: diff.context)")
	diffCmd.Flags().BoolVar(&diffRaw, "raw", false, "Print the raw unified E2K diff")
}

func runDiff(cmd *cobra.Command, args []string) error {
	svc, repo, err := openProject()
	if err != nil {
		return err
	}

	ref1, err := parseVersionRef(repo, args[0])
	if err != nil {
		return err
	}
	ref2, err := parseVersionRef(repo, args[1])
	if err != nil {
		return err
	}

	result, err := svc.CompareVersions(commandContext(cmd), facade.CompareVersionsRequest{
		ProjectPath: repo.Path(),
		Version1:    ref1,
		Version2:    ref2,
		DiffType:    models.DiffType(diffType),
		Context:     diffContext,
	})
	if err != nil {
		return err
	}

	if done, err := diffOut.emit(result); done {
		return err
	}

	if diffRaw && result.E2KDiff != nil {
		fmt.Print(colorizeUnified(result.E2KDiff.RawDiff))
		return nil
	}

	printComparison(ref1, ref2, result)
	return nil
}

func printComparison(ref1, ref2 vcs.VersionRef, result *vcs.CompareResult) {
	heading("Version Comparison")
	fmt.Printf("Version 1: %s\n", ref1)
	fmt.Printf("Version 2: %s\n", ref2)
	fmt.Println()

	if d := result.E2KDiff; d != nil {
		fmt.Println(styleHeading.Render("E2K"))
		fmt.Printf("  %s added, %s removed, %d modified\n",
			styleAdded.Render(fmt.Sprint(d.Added)), styleRemoved.Render(fmt.Sprint(d.Removed)), d.Modified)
		fmt.Printf("  %d line(s) inserted, %d deleted in %d hunk(s)\n",
			d.LineStats.Insertions, d.LineStats.Deletions, d.LineStats.Hunks)
		if len(d.Changes) == 0 {
			fmt.Println("  (no structural changes)")
		}
		for _, c := range d.Changes {
			fmt.Printf("  %s [%s] %s (line %d)\n", changeMarker(c.Type), c.Category, c.Description, c.LineNumber)
			if c.Type == models.ChangeModify {
				fmt.Printf("      %s → %s\n", truncate(c.OldValue, 60), truncate(c.NewValue, 60))
			}
		}
		fmt.Println()
	}

	if g := result.GeometryDiff; g != nil {
		fmt.Println(styleHeading.Render("Geometry"))
		fmt.Printf("  %d change(s)\n", g.TotalChanges)
		for _, e := range g.MembersAdded {
			fmt.Printf("  %s %s %s\n", changeMarker(models.ChangeAdd), e.Type, e.ID)
		}
		for _, e := range g.MembersRemoved {
			fmt.Printf("  %s %s %s\n", changeMarker(models.ChangeRemove), e.Type, e.ID)
		}
		for _, e := range g.MembersModified {
			fmt.Printf("  %s %s %s\n", changeMarker(models.ChangeModify), e.Type, e.ID)
		}
	}
}

func changeMarker(t models.ChangeType) string {
	switch t {
	case models.ChangeAdd:
		return styleAdded.Render("+")
	case models.ChangeRemove:
		return styleRemoved.Render("-")
	default:
		return styleWarn.Render("~")
	}
}

func colorizeUnified(raw string) string {
	var b strings.Builder
	for _, line := range strings.SplitAfter(raw, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			b.WriteString(styleHeading.Render(strings.TrimSuffix(line, "\n")))
		case strings.HasPrefix(line, "+"):
			b.WriteString(styleAdded.Render(strings.TrimSuffix(line, "\n")))
		case strings.HasPrefix(line, "-"):
			b.WriteString(styleRemoved.Render(strings.TrimSuffix(line, "\n")))
		case strings.HasPrefix(line, "@@"):
			b.WriteString(styleMuted.Render(strings.TrimSuffix(line, "\n")))
		default:
			b.WriteString(strings.TrimSuffix(line, "\n"))
		}
		if strings.HasSuffix(line, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
