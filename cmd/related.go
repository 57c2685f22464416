package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tadoEng/EtabExtension/internal/embeddings"
	"github.com/tadoEng/EtabExtension/internal/models"
	"github.com/tadoEng/EtabExtension/internal/vcs"
)

var relatedOut outputFlags

var relatedCmd = &cobra.Command{
	Use:   "related <version>",
	Short: "Find related versions",
	Long: `Find versions related to a given version based on:
  - Branch lineage (branches started from it, the version it started from)
  - Neighbouring versions on the same branch
  - Identical design content
  - Message similarity (when both versions have embeddings)

Results are ranked by relevance.

Example:
  etabext related main/v2`,
	Args: cobra.ExactArgs(1),
	RunE: runRelated,
}

func init() {
	rootCmd.AddCommand(relatedCmd)
	relatedOut.register(relatedCmd)
}

type relatedVersion struct {
	Branch  string `json:"branch"`
	Version string `json:"version"`
	Message string `json:"message"`
	Score   int    `json:"score"`
	Reason  string `json:"reason"`
}

func runRelated(cmd *cobra.Command, args []string) error {
	_, repo, err := openProject()
	if err != nil {
		return err
	}
	target, err := parseVersionRef(repo, args[0])
	if err != nil {
		return err
	}
	tv, err := repo.Version(target.Branch, target.VersionID)
	if err != nil {
		return err
	}

	state := repo.State()
	vectors := embeddingStore(repo)
	targetVec, _ := vectors.Get(target.Branch, target.VersionID)

	var related []relatedVersion
	for _, name := range state.BranchNames() {
		b := state.Branches[name]
		for i, v := range b.Versions {
			ref := vcs.VersionRef{Branch: name, VersionID: v.ID}
			if ref == target {
				continue
			}

			score, reasons := relationTo(target, tv, state, b, i)

			if targetVec != nil {
				if vec, err := vectors.Get(name, v.ID); err == nil {
					if sim, err := embeddings.CosineSimilarity(targetVec, vec); err == nil && sim > 0.5 {
						score += int(embeddings.SemanticScore(sim) / 2)
						reasons = append(reasons, fmt.Sprintf("similar message (%.0f%%)", sim*100))
					}
				}
			}

			// Only include if there's some relationship
			if score > 0 {
				related = append(related, relatedVersion{
					Branch:  name,
					Version: v.ID,
					Message: v.Message,
					Score:   score,
					Reason:  strings.Join(reasons, ", "),
				})
			}
		}
	}

	// Sort by score (highest first)
	sort.SliceStable(related, func(i, j int) bool {
		return related[i].Score > related[j].Score
	})

	if done, err := relatedOut.emit(related); done {
		return err
	}

	if len(related) == 0 {
		fmt.Println("No related versions found")
		return nil
	}

	fmt.Printf("Found %d related version(s) for %s:\n\n", len(related), target)
	for i, r := range related {
		fmt.Printf("%d. %s/%s [score: %d]\n", i+1, r.Branch, r.Version, r.Score)
		fmt.Printf("   Relationship: %s\n", r.Reason)
		fmt.Printf("   Message:      %s\n", truncate(r.Message, 60))
		fmt.Println()
	}

	return nil
}

// relationTo scores the structural relationship between the target version
// and the i-th version of branch b.
func relationTo(target vcs.VersionRef, tv *models.Version, state *models.ProjectState, b *models.Branch, i int) (int, []string) {
	v := b.Versions[i]
	score := 0
	var reasons []string

	// b was started from the target
	if i == 0 && b.ParentBranch == target.Branch && b.ParentVersion == target.VersionID {
		score += 100
		reasons = append(reasons, "branched from it")
	}

	// the target's branch was started from v
	if tb, ok := state.Branches[target.Branch]; ok && tb.ParentBranch == b.Name && tb.ParentVersion == v.ID {
		if len(tb.Versions) > 0 && tb.Versions[0].ID == target.VersionID {
			score += 100
			reasons = append(reasons, "its branch point")
		}
	}

	if b.Name == target.Branch {
		if seq, ok := models.VersionSequence(v.ID); ok {
			if tseq, ok := models.VersionSequence(target.VersionID); ok && (seq == tseq-1 || seq == tseq+1) {
				score += 20
				reasons = append(reasons, "adjacent version")
			}
		}
	}

	if v.CommitHash == tv.CommitHash {
		score += 50
		reasons = append(reasons, "identical design")
	}

	return score, reasons
}
