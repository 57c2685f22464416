package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	openPath      string
	openOverwrite bool
)

var openCmd = &cobra.Command{
	Use:   "open <version>",
	Short: "Copy a saved version out of the project",
	Long: `Write the design file of a saved version to a separate path for viewing
or sharing, without touching any branch's working file.

Example:
  etabext open steel-columns/v2

This writes ./steel-columns-v2.edb by default.`,
	Args: cobra.ExactArgs(1),
	RunE: runOpen,
}

func init() {
	rootCmd.AddCommand(openCmd)

	openCmd.Flags().StringVar(&openPath, "path", "", "Output path (default: ./<branch>-<version><ext>)")
	openCmd.Flags().BoolVar(&openOverwrite, "overwrite", false, "Replace an existing file")
}

func runOpen(cmd *cobra.Command, args []string) error {
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
	data, err := repo.Store().GetSnapshot(v.Snapshot)
	if err != nil {
		return err
	}

	path := openPath
	if path == "" {
		path = fmt.Sprintf("%s-%s%s", ref.Branch, ref.VersionID, filepath.Ext(repo.DesignFile()))
	}
	if _, err := os.Stat(path); err == nil && !openOverwrite {
		return fmt.Errorf("%s already exists (use --overwrite)", path)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	success("Wrote %s (%s) to %s", ref, formatBytes(int64(len(data))), path)
	fmt.Println("  " + styleMuted.Render("Changes to this copy are not versioned"))
	return nil
}
