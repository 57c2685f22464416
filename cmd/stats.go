package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var statsOut outputFlags

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show project statistics and analytics",
	Long: `Display statistics about the project including:
  - Branch and version counts
  - Storage used by snapshots
  - E2K export, analysis and embedding coverage
  - Versions per author
  - Timeline distribution

Examples:
  etabext stats
  etabext stats --json
  etabext stats --toon`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsOut.register(statsCmd)
}

type projectStats struct {
	TotalBranches  int             `json:"total_branches"`
	TotalVersions  int             `json:"total_versions"`
	StorageBytes   int64           `json:"storage_bytes"`
	ByBranch       []branchStat    `json:"by_branch"`
	ByAuthor       map[string]int  `json:"by_author"`
	WithExport     int             `json:"with_export"`
	Analyzed       int             `json:"analyzed"`
	WithEmbeddings int             `json:"with_embeddings"`
	OldestVersion  *time.Time      `json:"oldest_version,omitempty"`
	NewestVersion  *time.Time      `json:"newest_version,omitempty"`
	DailyActivity  []dailyActivity `json:"daily_activity"`
}

type branchStat struct {
	Branch       string `json:"branch"`
	Versions     int    `json:"versions"`
	StorageBytes int64  `json:"storage_bytes"`
	Unsaved      bool   `json:"unsaved"`
}

type dailyActivity struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

func runStats(cmd *cobra.Command, args []string) error {
	_, repo, err := openProject()
	if err != nil {
		return err
	}

	state := repo.State()
	vectors := embeddingStore(repo)
	st := repo.Store()

	stats := &projectStats{
		TotalBranches: len(state.Branches),
		ByAuthor:      make(map[string]int),
	}
	byDate := make(map[string]int)

	for _, name := range state.BranchNames() {
		b := state.Branches[name]
		size, err := st.DirSize(st.ObjectsDir(name))
		if err != nil {
			getLogger().Warn("failed to size branch storage", "branch", name, "err", err)
		}
		stats.StorageBytes += size
		stats.ByBranch = append(stats.ByBranch, branchStat{
			Branch:       name,
			Versions:     len(b.Versions),
			StorageBytes: size,
			Unsaved:      b.HasUnsavedChanges(),
		})

		for _, v := range b.Versions {
			stats.TotalVersions++

			// Track oldest/newest
			if stats.OldestVersion == nil || v.Timestamp.Before(*stats.OldestVersion) {
				t := v.Timestamp
				stats.OldestVersion = &t
			}
			if stats.NewestVersion == nil || v.Timestamp.After(*stats.NewestVersion) {
				t := v.Timestamp
				stats.NewestVersion = &t
			}

			author := v.Author
			if author == "" {
				author = "(unknown)"
			}
			stats.ByAuthor[author]++

			if v.HasExport() {
				stats.WithExport++
			}
			if v.Analyzed {
				stats.Analyzed++
			}
			if vectors.Has(name, v.ID) {
				stats.WithEmbeddings++
			}

			byDate[v.Timestamp.Local().Format("2006-01-02")]++
		}
	}

	for date, count := range byDate {
		stats.DailyActivity = append(stats.DailyActivity, dailyActivity{Date: date, Count: count})
	}
	sort.Slice(stats.DailyActivity, func(i, j int) bool {
		return stats.DailyActivity[i].Date > stats.DailyActivity[j].Date
	})

	if done, err := statsOut.emit(stats); done {
		return err
	}

	heading("Project Statistics")

	fmt.Printf("Branches: %d\n", stats.TotalBranches)
	fmt.Printf("Versions: %d\n", stats.TotalVersions)
	fmt.Printf("Storage:  %s\n", formatBytes(stats.StorageBytes))
	if stats.OldestVersion != nil && stats.NewestVersion != nil {
		fmt.Printf("Range:    %s to %s\n",
			stats.OldestVersion.Local().Format("2006-01-02"),
			stats.NewestVersion.Local().Format("2006-01-02"))
	}
	fmt.Println()

	fmt.Println("By Branch:")
	for _, b := range stats.ByBranch {
		flag := ""
		if b.Unsaved {
			flag = styleWarn.Render(" (unsaved)")
		}
		fmt.Printf("  %-20s %3d  %10s%s\n", b.Branch, b.Versions, formatBytes(b.StorageBytes), flag)
	}
	fmt.Println()

	if stats.TotalVersions > 0 {
		fmt.Println("Coverage:")
		for _, c := range []struct {
			label string
			n     int
		}{
			{"E2K exports", stats.WithExport},
			{"Analyzed", stats.Analyzed},
			{"Embeddings", stats.WithEmbeddings},
		} {
			percentage := float64(c.n) / float64(stats.TotalVersions) * 100
			fmt.Printf("  %-12s %3d  (%.1f%%)\n", c.label, c.n, percentage)
		}
		fmt.Println()
	}

	if len(stats.ByAuthor) > 0 {
		fmt.Println("By Author:")
		authors := make([]string, 0, len(stats.ByAuthor))
		for a := range stats.ByAuthor {
			authors = append(authors, a)
		}
		sort.Slice(authors, func(i, j int) bool {
			if stats.ByAuthor[authors[i]] != stats.ByAuthor[authors[j]] {
				return stats.ByAuthor[authors[i]] > stats.ByAuthor[authors[j]]
			}
			return authors[i] < authors[j]
		})
		for _, a := range authors {
			fmt.Printf("  %-20s %3d\n", a, stats.ByAuthor[a])
		}
		fmt.Println()
	}

	// Recent activity
	if len(stats.DailyActivity) > 0 {
		fmt.Println("Recent Activity:")
		limit := min(7, len(stats.DailyActivity))
		for i := 0; i < limit; i++ {
			da := stats.DailyActivity[i]
			bar := ""
			for j := 0; j < da.Count && j < 20; j++ {
				bar += "█"
			}
			fmt.Printf("  %s  %3d  %s\n", da.Date, da.Count, bar)
		}
	}

	return nil
}
