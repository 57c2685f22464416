package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tadoEng/EtabExtension/internal/facade"
)

var (
	branchListOut     outputFlags
	branchFrom        string
	branchFromVersion string
	branchDescription string
	branchForce       bool
	branchCloseEtabs  bool
)

var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "List, create, delete and switch branches",
	Long: `Branches are independent lines of design development. Each one starts
from a saved version of another branch and owns its own working file.

Examples:
  etabext branch
  etabext branch create steel-columns --from main --from-version v3
  etabext branch switch steel-columns
  etabext branch delete steel-columns`,
	Args: cobra.NoArgs,
	RunE: runBranchList,
}

var branchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List branches",
	Args:  cobra.NoArgs,
	RunE:  runBranchList,
}

var branchCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a branch from a saved version",
	Long: `Create a branch whose working file starts as a copy of a saved version.

Without --from the current branch is used; without --from-version its latest
version is used.`,
	Args: cobra.ExactArgs(1),
	RunE: runBranchCreate,
}

var branchDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a branch and all of its versions",
	Long: `Delete a branch, its versions and its working file. main cannot be
deleted. A branch with unsaved changes, or whose working file is open in
ETABS, is only deleted with --force (ETABS is then closed without saving).`,
	Args: cobra.ExactArgs(1),
	RunE: runBranchDelete,
}

var branchSwitchCmd = &cobra.Command{
	Use:   "switch <name>",
	Short: "Make a branch current",
	Args:  cobra.ExactArgs(1),
	RunE:  runBranchSwitch,
}

func init() {
	rootCmd.AddCommand(branchCmd)
	branchCmd.AddCommand(branchListCmd, branchCreateCmd, branchDeleteCmd, branchSwitchCmd)

	branchListOut.register(branchCmd)
	branchListOut.register(branchListCmd)

	branchCreateCmd.Flags().StringVar(&branchFrom, "from", "", "Parent branch (default: current branch)")
	branchCreateCmd.Flags().StringVar(&branchFromVersion, "from-version", "", "Parent version (default: latest)")
	branchCreateCmd.Flags().StringVarP(&branchDescription, "description", "d", "", "Branch description")

	branchDeleteCmd.Flags().BoolVar(&branchForce, "force", false, "Delete even with unsaved changes or an open ETABS session")

	branchSwitchCmd.Flags().BoolVar(&branchCloseEtabs, "close", false, "Close ETABS if it has another branch's file open")
}

func runBranchList(cmd *cobra.Command, args []string) error {
	svc, repo, err := openProject()
	if err != nil {
		return err
	}

	resp, err := svc.ListBranches(commandContext(cmd), facade.ProjectRequest{ProjectPath: repo.Path()})
	if err != nil {
		return err
	}

	if done, err := branchListOut.emit(resp); done {
		return err
	}

	fmt.Printf("Found %d branch(es):\n\n", len(resp.Branches))
	for _, b := range resp.Branches {
		marker := "  "
		if b.Name == resp.CurrentBranch {
			marker = styleOK.Render("* ")
		}
		fmt.Printf("%s%s\n", marker, b.Name)
		if b.ParentBranch != "" {
			fmt.Printf("    From:     %s/%s\n", b.ParentBranch, b.ParentVersion)
		}
		fmt.Printf("    Created:  %s\n", b.Created.Local().Format("2006-01-02 15:04"))
		fmt.Printf("    Versions: %d\n", len(b.Versions))
		if b.Description != "" {
			fmt.Printf("    About:    %s\n", truncate(b.Description, 60))
		}
		if b.HasUnsavedChanges() {
			fmt.Printf("    %s\n", styleWarn.Render("unsaved changes"))
		}
		fmt.Println()
	}

	return nil
}

func runBranchCreate(cmd *cobra.Command, args []string) error {
	svc, repo, err := openProject()
	if err != nil {
		return err
	}

	from := branchOrCurrent(repo, branchFrom)
	fromVersion := branchFromVersion
	if fromVersion == "" {
		parent, ok := repo.State().Branches[from]
		if !ok {
			return fmt.Errorf("branch %s does not exist", from)
		}
		if parent.LatestVersion == "" {
			return fmt.Errorf("branch %s has no saved versions to branch from", from)
		}
		fromVersion = parent.LatestVersion
	}

	resp, err := svc.CreateBranch(commandContext(cmd), facade.CreateBranchRequest{
		ProjectPath: repo.Path(),
		BranchName:  args[0],
		FromBranch:  from,
		FromVersion: fromVersion,
		Description: strings.TrimSpace(branchDescription),
	})
	if err != nil {
		return err
	}

	success("Created branch %s from %s/%s", resp.BranchName, resp.ParentBranch, resp.ParentVersion)
	if resp.WorkingFileCreated {
		fmt.Println("  Working file ready")
	}
	fmt.Printf("  Switch to it with: etabext branch switch %s\n", resp.BranchName)
	return nil
}

func runBranchDelete(cmd *cobra.Command, args []string) error {
	svc, repo, err := openProject()
	if err != nil {
		return err
	}

	resp, err := svc.DeleteBranch(commandContext(cmd), facade.DeleteBranchRequest{
		ProjectPath: repo.Path(),
		BranchName:  args[0],
		ForceDelete: branchForce,
	})
	if err != nil {
		return err
	}

	success("Deleted branch %s", args[0])
	fmt.Printf("  Versions removed: %d\n", len(resp.DeletedVersions))
	fmt.Printf("  Space freed:      %s\n", formatBytes(resp.FreedSpaceBytes))
	if resp.EtabsClosed {
		fmt.Println("  ETABS was closed without saving")
	}
	return nil
}

func runBranchSwitch(cmd *cobra.Command, args []string) error {
	svc, repo, err := openProject()
	if err != nil {
		return err
	}

	resp, err := svc.SwitchBranch(commandContext(cmd), facade.SwitchBranchRequest{
		ProjectPath:      repo.Path(),
		BranchName:       args[0],
		CloseCurrentFile: branchCloseEtabs,
	})
	if err != nil {
		return err
	}

	success("Switched to branch %s", resp.CurrentBranch)
	if !resp.WorkingFileReady {
		fmt.Println("  No working file yet: check out a version with: etabext checkout <version>")
	}
	if resp.EtabsWasClosed {
		fmt.Println("  ETABS was closed")
	}
	return nil
}
