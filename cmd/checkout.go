package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tadoEng/EtabExtension/internal/facade"
)

var (
	checkoutOpen  bool
	checkoutForce bool
)

var checkoutCmd = &cobra.Command{
	Use:   "checkout <version>",
	Short: "Replace a branch's working file with a saved version",
	Long: `Copy a saved version over its branch's working file.

The version is given as branch/vN, or vN on the current branch. Checkout
discards unsaved changes in the working file, so it refuses to run when
there are any unless --force is given.

Examples:
  etabext checkout v2
  etabext checkout steel-columns/v1 --open`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckout,
}

func init() {
	rootCmd.AddCommand(checkoutCmd)

	checkoutCmd.Flags().BoolVar(&checkoutOpen, "open", false, "Open the working file in ETABS afterwards")
	checkoutCmd.Flags().BoolVar(&checkoutForce, "force", false, "Discard unsaved changes")
}

func runCheckout(cmd *cobra.Command, args []string) error {
	svc, repo, err := openProject()
	if err != nil {
		return err
	}
	ref, err := parseVersionRef(repo, args[0])
	if err != nil {
		return err
	}

	state, err := repo.Refresh()
	if err != nil {
		return err
	}
	if b, ok := state.Branches[ref.Branch]; ok && b.HasUnsavedChanges() && !checkoutForce {
		return fmt.Errorf("branch %s has unsaved changes (save them first or use --force)", ref.Branch)
	}

	resp, err := svc.CheckoutVersion(commandContext(cmd), facade.CheckoutVersionRequest{
		ProjectPath: repo.Path(),
		BranchName:  ref.Branch,
		VersionID:   ref.VersionID,
		OpenInEtabs: checkoutOpen,
	})
	if err != nil {
		return err
	}

	success("Checked out %s", ref)
	fmt.Printf("  Working file: %s\n", resp.WorkingFilePath)
	if resp.EtabsOpened {
		fmt.Printf("  Opened in ETABS (pid %d)\n", resp.ProcessID)
	}
	if resp.Warning != "" {
		warn("%s", resp.Warning)
	}
	return nil
}
