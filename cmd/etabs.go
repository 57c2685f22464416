package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tadoEng/EtabExtension/internal/facade"
)

var (
	etabsBranch    string
	etabsSave      bool
	etabsStatusOut outputFlags
	etabsCheckOut  outputFlags
)

var etabsCmd = &cobra.Command{
	Use:   "etabs",
	Short: "Control ETABS and its sidecar CLI",
	Long: `Open branch files in ETABS, close it, and query the sidecar CLI.

Examples:
  etabext etabs open
  etabext etabs open v2 --branch main   # read-only copy of a saved version
  etabext etabs close --save
  etabext etabs status
  etabext etabs validate ./model.edb`,
}

var etabsOpenCmd = &cobra.Command{
	Use:   "open [version]",
	Short: "Open a branch's working file, or a copy of a saved version",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runEtabsOpen,
}

var etabsCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Close ETABS",
	Args:  cobra.NoArgs,
	RunE:  runEtabsClose,
}

var etabsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether ETABS is running and which file it has open",
	Args:  cobra.NoArgs,
	RunE:  runEtabsStatus,
}

var etabsValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a design file with the sidecar CLI",
	Args:  cobra.ExactArgs(1),
	RunE:  runEtabsValidate,
}

var etabsCLICmd = &cobra.Command{
	Use:   "cli",
	Short: "Show whether the sidecar CLI is installed and its version",
	Args:  cobra.NoArgs,
	RunE:  runEtabsCLI,
}

func init() {
	rootCmd.AddCommand(etabsCmd)
	etabsCmd.AddCommand(etabsOpenCmd, etabsCloseCmd, etabsStatusCmd, etabsValidateCmd, etabsCLICmd)

	etabsOpenCmd.Flags().StringVarP(&etabsBranch, "branch", "b", "", "Branch (default: current branch)")
	etabsCloseCmd.Flags().BoolVar(&etabsSave, "save", false, "Save the model before closing")
	etabsStatusOut.register(etabsStatusCmd)
	etabsCheckOut.register(etabsValidateCmd)
	etabsCheckOut.register(etabsCLICmd)
}

func runEtabsOpen(cmd *cobra.Command, args []string) error {
	svc, repo, err := openProject()
	if err != nil {
		return err
	}

	req := facade.OpenInEtabsRequest{
		ProjectPath: repo.Path(),
		BranchName:  branchOrCurrent(repo, etabsBranch),
	}
	if len(args) > 0 {
		ref, err := parseVersionRef(repo, args[0])
		if err != nil {
			return err
		}
		if etabsBranch == "" {
			req.BranchName = ref.Branch
		}
		req.VersionID = ref.VersionID
	}

	resp, err := svc.OpenInEtabs(commandContext(cmd), req)
	if err != nil {
		return err
	}

	success("Opened %s in ETABS (pid %d)", resp.FilePath, resp.EtabsProcessID)
	if resp.ReadOnly {
		fmt.Println("  " + styleWarn.Render("This is a copy of a saved version: changes to it are not versioned"))
	}
	return nil
}

func runEtabsClose(cmd *cobra.Command, args []string) error {
	svc, repo, err := openProject()
	if err != nil {
		return err
	}

	resp, err := svc.CloseEtabs(commandContext(cmd), facade.CloseEtabsRequest{
		ProjectPath: repo.Path(),
		SaveChanges: etabsSave,
	})
	if err != nil {
		return err
	}

	if resp.ChangesSaved {
		success("ETABS closed, changes saved")
	} else {
		success("ETABS closed")
	}
	return nil
}

func runEtabsStatus(cmd *cobra.Command, args []string) error {
	svc, repo, err := openProject()
	if err != nil {
		return err
	}

	status, err := svc.GetEtabsStatus(commandContext(cmd), facade.EtabsStatusRequest{ProjectPath: repo.Path()})
	if err != nil {
		return err
	}

	if done, err := etabsStatusOut.emit(status); done {
		return err
	}

	if !status.IsRunning {
		fmt.Println("ETABS is " + styleMuted.Render("not running"))
		return nil
	}
	fmt.Printf("ETABS is %s (pid %d)\n", styleOK.Render("running"), status.ProcessID)
	if status.OpenFilePath != "" {
		fmt.Printf("  File: %s\n", status.OpenFilePath)
	}
	return nil
}

func runEtabsValidate(cmd *cobra.Command, args []string) error {
	report, err := newService().ValidateEtabsFile(commandContext(cmd), facade.ValidateFileRequest{FilePath: args[0]})
	if err != nil {
		return err
	}

	if done, err := etabsCheckOut.emit(report); done {
		return err
	}

	if report.Valid {
		success("%s is a valid ETABS file", args[0])
	} else {
		fmt.Printf("%s %s is not valid", styleError.Render("✗"), args[0])
		if report.Error != "" {
			fmt.Printf(": %s", report.Error)
		}
		fmt.Println()
	}
	if v := report.Data.EtabsVersion; v != "" {
		fmt.Printf("  ETABS version: %s\n", v)
	}
	for _, m := range report.Data.ValidationMessages {
		fmt.Printf("  - %s\n", m)
	}
	return nil
}

func runEtabsCLI(cmd *cobra.Command, args []string) error {
	info, err := newService().CLIInfo(commandContext(cmd), struct{}{})
	if err != nil {
		return err
	}

	if done, err := etabsCheckOut.emit(info); done {
		return err
	}

	if !info.Available {
		fmt.Println("Sidecar CLI is " + styleWarn.Render("not installed"))
		return nil
	}
	fmt.Printf("Sidecar CLI available: %s\n", info.Version)
	return nil
}
