package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tadoEng/EtabExtension/internal/config"
	"github.com/tadoEng/EtabExtension/internal/facade"
	"github.com/tadoEng/EtabExtension/internal/vcs"
)

var (
	pruneDryRun bool
	pruneForce  bool
	pruneDays   int
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove inactive branches based on retention policy",
	Long: `Remove branches with no activity within the retention period.

The retention policy is configured in ~/.config/etabext/config.toml:
  [retention]
  days = 90
  preserve_branches = ["main", "permit-set"]

main, preserved branches, the current branch and branches with unsaved
changes are never pruned.

Example:
  etabext prune              # Show what would be pruned
  etabext prune --force      # Actually prune branches`,
	Args: cobra.NoArgs,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)

	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", true, "Show what would be pruned without deleting")
	pruneCmd.Flags().BoolVar(&pruneForce, "force", false, "Actually delete branches (overrides dry-run)")
	pruneCmd.Flags().IntVar(&pruneDays, "days", 0, "Retention period in days (default: retention.days)")
}

func runPrune(cmd *cobra.Command, args []string) error {
	svc, repo, err := openProject()
	if err != nil {
		return err
	}
	if _, err := repo.Refresh(); err != nil {
		return err
	}

	retentionDays := pruneDays
	if retentionDays <= 0 {
		retentionDays = config.GetRetentionDays()
	}
	retention := time.Duration(retentionDays) * 24 * time.Hour

	fmt.Printf("Retention policy: %d days\n", retentionDays)
	fmt.Printf("Preserve branches: %v\n", config.GetPreserveBranches())
	fmt.Printf("Cutoff date: %s\n\n", time.Now().Add(-retention).Format("2006-01-02"))

	candidates := repo.PruneCandidates(retention, config.ShouldPreserve)

	var toPrune, toPreserve []vcs.PruneCandidate
	for _, c := range candidates {
		if c.Prune {
			toPrune = append(toPrune, c)
		} else {
			toPreserve = append(toPreserve, c)
		}
	}

	if len(toPrune) == 0 {
		fmt.Println("No branches to prune")
		return nil
	}

	fmt.Printf("Branches to prune (%d):\n\n", len(toPrune))
	for _, c := range toPrune {
		printPruneCandidate(c)
	}

	if len(toPreserve) > 0 {
		fmt.Printf("Branches to preserve (%d):\n\n", len(toPreserve))
		for _, c := range toPreserve {
			printPruneCandidate(c)
		}
	}

	// --force overrides the default dry run, not an explicit --dry-run
	dryRun := !pruneForce || (cmdFlagChanged(cmd, "dry-run") && pruneDryRun)
	if dryRun {
		fmt.Println("\nThis is a dry run. Use --force to actually prune branches.")
		return nil
	}

	fmt.Println("Pruning branches...")
	pruned := 0
	var freed int64
	for _, c := range toPrune {
		fmt.Printf("  Deleting %s...\n", c.Branch)
		resp, err := svc.DeleteBranch(commandContext(cmd), facade.DeleteBranchRequest{
			ProjectPath: repo.Path(),
			BranchName:  c.Branch,
		})
		if err != nil {
			fmt.Printf("    %s %v\n", styleError.Render("Error:"), err)
			continue
		}
		pruned++
		freed += resp.FreedSpaceBytes
		fmt.Printf("    %s Deleted (%d versions, %s)\n", styleOK.Render("✓"), len(resp.DeletedVersions), formatBytes(resp.FreedSpaceBytes))
	}
	fmt.Println()
	success("Pruned %d branch(es), freed %s", pruned, formatBytes(freed))

	return nil
}

func printPruneCandidate(c vcs.PruneCandidate) {
	fmt.Printf("  %s\n", c.Branch)
	fmt.Printf("    Last activity: %s (%s)\n", c.LastActivity.Local().Format("2006-01-02"), formatDuration(c.Age))
	fmt.Printf("    Versions:      %d\n", c.Versions)
	fmt.Printf("    Reason:        %s\n", c.Reason)
	fmt.Println()
}

func cmdFlagChanged(cmd *cobra.Command, name string) bool {
	return cmd != nil && cmd.Flags().Changed(name)
}
