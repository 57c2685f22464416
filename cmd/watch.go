package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tadoEng/EtabExtension/internal/watch"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Track edits to working files made outside etabext",
	Long: `Watch every branch's working file and update the project when one
changes on disk, typically because ETABS saved the open model. Branches whose
working file no longer matches its last saved or checked out content are
flagged as having unsaved changes.

Runs until interrupted.

Example:
  etabext watch`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Coalesce bursts of writes within this window")
}

func runWatch(cmd *cobra.Command, args []string) error {
	_, repo, err := openProject()
	if err != nil {
		return err
	}

	w, err := watch.New(repo.Store().BranchesDir(), repo.DesignFile(), repo, watch.Options{
		Debounce: watchDebounce,
		Logger:   getLogger(),
		OnSync: func(branches []string) {
			state := repo.State()
			for _, name := range branches {
				b, ok := state.Branches[name]
				if !ok {
					continue
				}
				fmt.Printf("%s  %-20s %s\n", time.Now().Format("15:04:05"), name, describeWorkingFile(b.WorkingFile))
			}
		},
	})
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Watching %s (Ctrl+C to stop)\n", repo.Path())
	if err := w.Run(ctx); err != nil {
		return fmt.Errorf("watcher stopped: %w", err)
	}
	fmt.Println("\nStopped watching")
	return nil
}
