// Package facade exposes the engine and the ETABS bridge as request/response
// operations. Every operation validates its request, resolves the project by
// path and returns plain data or a classified error; Invoke wraps the outcome
// in the uniform Result envelope for callers speaking JSON.
package facade

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"

	"github.com/tadoEng/EtabExtension/internal/errs"
	"github.com/tadoEng/EtabExtension/internal/etabs"
	"github.com/tadoEng/EtabExtension/internal/logging"
	"github.com/tadoEng/EtabExtension/internal/vcs"
)

// Tool is the ETABS surface the facade needs.
type Tool interface {
	vcs.Tool
	Validate(ctx context.Context, path string) (*etabs.ValidationReport, error)
	CLIAvailable() bool
	CLIVersion(ctx context.Context) (string, error)
}

var _ Tool = (*etabs.Bridge)(nil)

// Options configures a Service.
type Options struct {
	Fs afero.Fs
	// Tool may be nil; ETABS operations then fail with ToolUnavailable.
	Tool          Tool
	DesignFile    string
	DefaultAuthor string
	DiffContext   int
	Logger        *log.Logger
	Now           func() time.Time
}

// Service holds the open projects, keyed by absolute path. There is no
// current project: every request names the one it acts on.
type Service struct {
	opts     Options
	log      *log.Logger
	validate *validator.Validate
	handlers map[string]handler

	mu       sync.Mutex
	projects map[string]*vcs.Repository
}

// New returns a Service.
func New(opts Options) *Service {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DiffContext <= 0 {
		opts.DiffContext = 3
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	s := &Service{
		opts:     opts,
		log:      logging.OrDiscard(opts.Logger).WithPrefix("facade"),
		validate: v,
		projects: make(map[string]*vcs.Repository),
	}
	s.handlers = s.commands()
	return s
}

// Project returns the open handle for the project at path, opening it on
// first use.
func (s *Service) Project(path string) (*vcs.Repository, error) {
	key, err := projectKey(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if repo, ok := s.projects[key]; ok {
		return repo, nil
	}
	repo, err := vcs.Open(key, s.repoOptions())
	if err != nil {
		return nil, err
	}
	s.projects[key] = repo
	s.log.Debug("project opened", "path", key)
	return repo, nil
}

// CloseProject forgets the handle of a project. Later requests reopen it.
func (s *Service) CloseProject(path string) {
	key, err := projectKey(path)
	if err != nil {
		return
	}
	s.mu.Lock()
	delete(s.projects, key)
	s.mu.Unlock()
}

// CreateProject initialises a project, optionally seeding main's working
// file from an existing .edb file.
func (s *Service) CreateProject(_ context.Context, req CreateProjectRequest) (*CreateProjectResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	var initial []byte
	if req.InitialEdbFile != "" {
		if !strings.EqualFold(filepath.Ext(req.InitialEdbFile), etabs.DesignExt) {
			return nil, errs.E(errs.SourceInvalid, "%s is not an ETABS design file (%s)", req.InitialEdbFile, etabs.DesignExt)
		}
		data, err := afero.ReadFile(s.opts.Fs, req.InitialEdbFile)
		if err != nil {
			if ok, _ := afero.Exists(s.opts.Fs, req.InitialEdbFile); !ok {
				return nil, errs.E(errs.NotFound, "initial design file %s not found", req.InitialEdbFile)
			}
			return nil, errs.IO(err, "failed to read %s", req.InitialEdbFile)
		}
		initial = data
	}

	repo, err := vcs.Create(req.ProjectPath, req.ProjectName, initial, s.repoOptions())
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.projects[repo.Path()] = repo
	s.mu.Unlock()

	state := repo.State()
	return &CreateProjectResponse{
		ProjectPath:     state.ProjectPath,
		ProjectName:     state.ProjectName,
		CreatedBranches: state.BranchNames(),
		State:           state,
	}, nil
}

// OpenProject loads a project and re-derives its working-file flags.
func (s *Service) OpenProject(_ context.Context, req ProjectRequest) (*OpenProjectResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	repo, err := s.Project(req.ProjectPath)
	if err != nil {
		return nil, err
	}
	state, err := repo.Refresh()
	if err != nil {
		return nil, err
	}
	return &OpenProjectResponse{State: state, LastModified: state.LastModified}, nil
}

// GetProjectState is the polling endpoint: it refreshes and returns the
// full state.
func (s *Service) GetProjectState(_ context.Context, req ProjectRequest) (*ProjectStateResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	repo, err := s.Project(req.ProjectPath)
	if err != nil {
		return nil, err
	}
	state, err := repo.Refresh()
	if err != nil {
		return nil, err
	}
	return &ProjectStateResponse{State: state}, nil
}

// CreateBranch forks a branch from a saved version.
func (s *Service) CreateBranch(_ context.Context, req CreateBranchRequest) (*CreateBranchResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	repo, err := s.Project(req.ProjectPath)
	if err != nil {
		return nil, err
	}
	b, err := repo.CreateBranch(req.BranchName, req.FromBranch, req.FromVersion, req.Description)
	if err != nil {
		return nil, err
	}
	return &CreateBranchResponse{
		BranchName:         b.Name,
		ParentBranch:       b.ParentBranch,
		ParentVersion:      b.ParentVersion,
		Created:            b.Created,
		WorkingFileCreated: b.WorkingFile != nil && b.WorkingFile.Exists,
	}, nil
}

// SwitchBranch changes the current branch.
func (s *Service) SwitchBranch(ctx context.Context, req SwitchBranchRequest) (*SwitchBranchResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	repo, err := s.Project(req.ProjectPath)
	if err != nil {
		return nil, err
	}
	res, err := repo.SwitchBranch(ctx, req.BranchName, req.CloseCurrentFile)
	if err != nil {
		return nil, err
	}
	wf := repo.State().Branches[req.BranchName].WorkingFile
	return &SwitchBranchResponse{
		CurrentBranch:    res.CurrentBranch,
		WorkingFileReady: wf != nil && wf.Exists,
		EtabsWasClosed:   res.EtabsWasClosed,
	}, nil
}

// ListBranches returns every branch of the project.
func (s *Service) ListBranches(_ context.Context, req ProjectRequest) (*ListBranchesResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	repo, err := s.Project(req.ProjectPath)
	if err != nil {
		return nil, err
	}
	return &ListBranchesResponse{
		Branches:      repo.Branches(),
		CurrentBranch: repo.State().CurrentBranch,
	}, nil
}

// DeleteBranch removes a branch and its storage.
func (s *Service) DeleteBranch(ctx context.Context, req DeleteBranchRequest) (*DeleteBranchResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	repo, err := s.Project(req.ProjectPath)
	if err != nil {
		return nil, err
	}
	res, err := repo.DeleteBranch(ctx, req.BranchName, req.ForceDelete)
	if err != nil {
		return nil, err
	}
	return &DeleteBranchResponse{Deleted: true, DeleteResult: *res}, nil
}

// SaveVersion snapshots a branch's working file, exporting E2K when asked.
func (s *Service) SaveVersion(ctx context.Context, req SaveVersionRequest) (*SaveVersionResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	repo, err := s.Project(req.ProjectPath)
	if err != nil {
		return nil, err
	}
	author := strings.TrimSpace(req.Author)
	if author == "" {
		author = s.opts.DefaultAuthor
	}
	v, err := repo.SaveVersion(ctx, vcs.SaveOptions{
		Branch:      req.BranchName,
		Message:     req.Message,
		Author:      author,
		GenerateE2K: req.GenerateE2k,
	})
	if err != nil {
		return nil, err
	}
	return &SaveVersionResponse{
		VersionID:    v.ID,
		CommitHash:   v.CommitHash,
		E2kGenerated: v.HasExport(),
		FileSize:     v.FileSize,
		Timestamp:    v.Timestamp,
	}, nil
}

// ListVersions returns a branch's versions in creation order.
func (s *Service) ListVersions(_ context.Context, req BranchRequest) (*ListVersionsResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	repo, err := s.Project(req.ProjectPath)
	if err != nil {
		return nil, err
	}
	versions, err := repo.Versions(req.BranchName)
	if err != nil {
		return nil, err
	}
	return &ListVersionsResponse{
		Versions:    versions,
		WorkingFile: repo.State().Branches[req.BranchName].WorkingFile,
	}, nil
}

// CheckoutVersion restores a version into the working file.
func (s *Service) CheckoutVersion(_ context.Context, req CheckoutVersionRequest) (*CheckoutVersionResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	repo, err := s.Project(req.ProjectPath)
	if err != nil {
		return nil, err
	}
	res, err := repo.CheckoutVersion(req.BranchName, req.VersionID, req.OpenInEtabs)
	if err != nil {
		return nil, err
	}
	return &CheckoutVersionResponse{CheckedOut: true, CheckoutResult: *res}, nil
}

// CompareVersions diffs two versions' E2K exports.
func (s *Service) CompareVersions(ctx context.Context, req CompareVersionsRequest) (*vcs.CompareResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	repo, err := s.Project(req.ProjectPath)
	if err != nil {
		return nil, err
	}
	lines := req.Context
	if lines == 0 {
		lines = s.opts.DiffContext
	}
	return repo.Compare(ctx, req.Version1, req.Version2, req.DiffType, vcs.CompareOptions{Context: lines})
}

// OpenInEtabs launches ETABS on a branch or version.
func (s *Service) OpenInEtabs(_ context.Context, req OpenInEtabsRequest) (*OpenInEtabsResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	repo, err := s.Project(req.ProjectPath)
	if err != nil {
		return nil, err
	}
	res, err := repo.OpenInTool(req.BranchName, req.VersionID)
	if err != nil {
		return nil, err
	}
	return &OpenInEtabsResponse{
		Opened:         res.Opened,
		FilePath:       res.Path,
		EtabsProcessID: res.ProcessID,
		ReadOnly:       res.ReadOnly,
	}, nil
}

// CloseEtabs stops the tracked ETABS process.
func (s *Service) CloseEtabs(ctx context.Context, req CloseEtabsRequest) (*etabs.CloseResult, error) {
	if req.ProjectPath != "" {
		repo, err := s.Project(req.ProjectPath)
		if err != nil {
			return nil, err
		}
		return repo.CloseTool(ctx, req.SaveChanges)
	}
	tool, err := s.tool()
	if err != nil {
		return nil, err
	}
	return tool.Close(ctx, req.SaveChanges)
}

// GetEtabsStatus polls ETABS. With a project path the project's isOpen flags
// are refreshed as well.
func (s *Service) GetEtabsStatus(_ context.Context, req EtabsStatusRequest) (*etabs.Status, error) {
	if req.ProjectPath != "" {
		repo, err := s.Project(req.ProjectPath)
		if err != nil {
			return nil, err
		}
		if _, err := repo.Refresh(); err != nil {
			return nil, err
		}
		st := repo.ToolStatus()
		return &st, nil
	}
	st := etabs.Status{}
	if s.opts.Tool != nil {
		st = s.opts.Tool.Status()
	}
	return &st, nil
}

// GenerateE2k exports any .edb file outside the version history.
func (s *Service) GenerateE2k(ctx context.Context, req GenerateE2kRequest) (*GenerateE2kResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	tool, err := s.tool()
	if err != nil {
		return nil, err
	}
	res, err := tool.Export(ctx, req.EdbPath, req.OutputPath, req.Overwrite)
	if err != nil {
		return nil, err
	}
	return &GenerateE2kResponse{
		Success:          true,
		E2kPath:          res.OutputPath,
		FileSize:         res.SizeBytes,
		GenerationTimeMs: res.DurationMs,
		Messages:         res.Messages,
	}, nil
}

// ValidateEtabsFile checks a file with the sidecar CLI.
func (s *Service) ValidateEtabsFile(ctx context.Context, req ValidateFileRequest) (*etabs.ValidationReport, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	tool, err := s.tool()
	if err != nil {
		return nil, err
	}
	return tool.Validate(ctx, req.FilePath)
}

// CLIInfo reports whether the sidecar CLI is installed and its version.
func (s *Service) CLIInfo(ctx context.Context, _ struct{}) (*CLIInfoResponse, error) {
	tool, err := s.tool()
	if err != nil {
		return nil, err
	}
	info := &CLIInfoResponse{Available: tool.CLIAvailable()}
	if !info.Available {
		return info, nil
	}
	if info.Version, err = tool.CLIVersion(ctx); err != nil {
		return nil, err
	}
	return info, nil
}

func (s *Service) tool() (Tool, error) {
	if s.opts.Tool == nil {
		return nil, errs.E(errs.ToolUnavailable, "ETABS integration is not configured")
	}
	return s.opts.Tool, nil
}

func (s *Service) repoOptions() vcs.Options {
	opts := vcs.Options{
		Fs:         s.opts.Fs,
		DesignFile: s.opts.DesignFile,
		Logger:     s.opts.Logger,
		Now:        s.opts.Now,
	}
	// A nil *Tool stored in the interface would not compare equal to nil.
	if s.opts.Tool != nil {
		opts.Tool = s.opts.Tool
	}
	return opts
}

// check validates a request, reporting every failed field at once.
func (s *Service) check(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errs.Wrap(errs.InvalidRequest, err, "invalid request")
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = describe(fe)
	}
	return errs.E(errs.InvalidRequest, "invalid request: %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s fails %s=%s", field, fe.Tag(), fe.Param())
	}
}

func projectKey(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errs.E(errs.InvalidRequest, "projectPath is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errs.Wrap(errs.InvalidRequest, err, "invalid project path %q", path)
	}
	return abs, nil
}
