package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/tadoEng/EtabExtension/internal/config"
	"github.com/tadoEng/EtabExtension/internal/embeddings"
	"github.com/tadoEng/EtabExtension/internal/etabs"
	"github.com/tadoEng/EtabExtension/internal/facade"
	"github.com/tadoEng/EtabExtension/internal/models"
	"github.com/tadoEng/EtabExtension/internal/vcs"
)

// newTool builds the ETABS bridge. Tests replace it with a fake.
var newTool = func() facade.Tool {
	return etabs.New(etabs.Options{
		Executable:    config.GetEtabsExecutable(),
		CLI:           config.GetCLIPath(),
		ExportTimeout: config.GetExportTimeout(),
		Logger:        getLogger(),
		SessionFile:   sessionFile(),
	})
}

// sessionFile is where the launched ETABS process is recorded, so every
// etabext invocation sees the same session.
func sessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir(home), "etabs-session.json")
}

// newService returns a facade over the OS filesystem.
func newService() *facade.Service {
	return facade.New(facade.Options{
		Fs:            afero.NewOsFs(),
		Tool:          newTool(),
		DesignFile:    config.GetDesignFileName(),
		DefaultAuthor: config.GetDefaultAuthor(),
		DiffContext:   config.GetDiffContext(),
		Logger:        getLogger(),
	})
}

// openProject opens the project selected by --project.
func openProject() (*facade.Service, *vcs.Repository, error) {
	svc := newService()
	repo, err := svc.Project(projectDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open project at %s: %w", projectDir, err)
	}
	return svc, repo, nil
}

// embeddingStore returns the embedding storage of a project.
func embeddingStore(repo *vcs.Repository) *embeddings.Store {
	return embeddings.NewStore(repo.Store().Fs(), repo.Store().BranchesDir())
}

// commandContext tolerates the nil commands tests pass to run functions.
func commandContext(cmd *cobra.Command) context.Context {
	if cmd == nil || cmd.Context() == nil {
		return context.Background()
	}
	return cmd.Context()
}

// branchOrCurrent falls back to the current branch.
func branchOrCurrent(repo *vcs.Repository, branch string) string {
	if branch != "" {
		return branch
	}
	return repo.State().CurrentBranch
}

// parseVersionRef accepts "branch/v3", "branch@v3" or a bare "v3" on the
// current branch.
func parseVersionRef(repo *vcs.Repository, s string) (vcs.VersionRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return vcs.VersionRef{}, fmt.Errorf("empty version reference")
	}
	if i := strings.LastIndexAny(s, "/@"); i >= 0 {
		branch, id := s[:i], s[i+1:]
		if branch == "" || id == "" {
			return vcs.VersionRef{}, fmt.Errorf("invalid version reference %q (use branch/vN)", s)
		}
		return vcs.VersionRef{Branch: branch, VersionID: id}, nil
	}
	if _, ok := models.VersionSequence(s); !ok {
		return vcs.VersionRef{}, fmt.Errorf("invalid version reference %q (use branch/vN)", s)
	}
	return vcs.VersionRef{Branch: repo.State().CurrentBranch, VersionID: s}, nil
}
