package facade

import (
	"time"

	"github.com/tadoEng/EtabExtension/internal/models"
	"github.com/tadoEng/EtabExtension/internal/vcs"
)

// CreateProjectRequest is the input of create_project.
type CreateProjectRequest struct {
	ProjectPath string `json:"projectPath" validate:"required"`
	ProjectName string `json:"projectName"`
	// InitialEdbFile is copied in as main's working file.
	InitialEdbFile string `json:"initialEdbFile,omitempty"`
}

// CreateProjectResponse describes a newly created project.
type CreateProjectResponse struct {
	ProjectPath     string               `json:"projectPath"`
	ProjectName     string               `json:"projectName"`
	CreatedBranches []string             `json:"createdBranches"`
	State           *models.ProjectState `json:"state"`
}

// ProjectRequest names a project for commands that need nothing else.
type ProjectRequest struct {
	ProjectPath string `json:"projectPath" validate:"required"`
}

// OpenProjectResponse is the state of an opened project.
type OpenProjectResponse struct {
	State        *models.ProjectState `json:"state"`
	LastModified time.Time            `json:"lastModified"`
}

// ProjectStateResponse is the refreshed state of a project.
type ProjectStateResponse struct {
	State *models.ProjectState `json:"state"`
}

// CreateBranchRequest forks BranchName from FromBranch at FromVersion.
type CreateBranchRequest struct {
	ProjectPath string `json:"projectPath" validate:"required"`
	BranchName  string `json:"branchName" validate:"required"`
	FromBranch  string `json:"fromBranch" validate:"required"`
	FromVersion string `json:"fromVersion" validate:"required"`
	Description string `json:"description,omitempty"`
}

// CreateBranchResponse describes a created branch and its parent.
type CreateBranchResponse struct {
	BranchName         string    `json:"branchName"`
	ParentBranch       string    `json:"parentBranch"`
	ParentVersion      string    `json:"parentVersion"`
	Created            time.Time `json:"created"`
	WorkingFileCreated bool      `json:"workingFileCreated"`
}

// SwitchBranchRequest makes BranchName current, closing ETABS first when
// CloseCurrentFile is set.
type SwitchBranchRequest struct {
	ProjectPath      string `json:"projectPath" validate:"required"`
	BranchName       string `json:"branchName" validate:"required"`
	CloseCurrentFile bool   `json:"closeCurrentFile"`
}

// SwitchBranchResponse reports the new current branch.
type SwitchBranchResponse struct {
	CurrentBranch    string `json:"currentBranch"`
	WorkingFileReady bool   `json:"workingFileReady"`
	EtabsWasClosed   bool   `json:"etabsWasClosed"`
}

// ListBranchesResponse lists every branch, main first.
type ListBranchesResponse struct {
	Branches      []*models.Branch `json:"branches"`
	CurrentBranch string           `json:"currentBranch"`
}

// DeleteBranchRequest removes a branch; ForceDelete discards unsaved work.
type DeleteBranchRequest struct {
	ProjectPath string `json:"projectPath" validate:"required"`
	BranchName  string `json:"branchName" validate:"required"`
	ForceDelete bool   `json:"forceDelete"`
}

// DeleteBranchResponse reports the removed versions and freed space.
type DeleteBranchResponse struct {
	Deleted bool `json:"deleted"`
	vcs.DeleteResult
}

// SaveVersionRequest leaves Message unvalidated: a blank message is an
// EmptyMessage failure of the engine, not a malformed request.
type SaveVersionRequest struct {
	ProjectPath string `json:"projectPath" validate:"required"`
	BranchName  string `json:"branchName" validate:"required"`
	Message     string `json:"message"`
	Author      string `json:"author,omitempty"`
	GenerateE2k bool   `json:"generateE2k"`
}

// SaveVersionResponse describes the saved version.
type SaveVersionResponse struct {
	VersionID    string    `json:"versionId"`
	CommitHash   string    `json:"commitHash"`
	E2kGenerated bool      `json:"e2kGenerated"`
	FileSize     int64     `json:"fileSize"`
	Timestamp    time.Time `json:"timestamp"`
}

// BranchRequest names a branch of a project.
type BranchRequest struct {
	ProjectPath string `json:"projectPath" validate:"required"`
	BranchName  string `json:"branchName" validate:"required"`
}

// ListVersionsResponse holds a branch's versions and its working file.
type ListVersionsResponse struct {
	Versions    []*models.Version   `json:"versions"`
	WorkingFile *models.WorkingFile `json:"workingFile"`
}

// CheckoutVersionRequest restores a version into its branch's working file.
type CheckoutVersionRequest struct {
	ProjectPath string `json:"projectPath" validate:"required"`
	BranchName  string `json:"branchName" validate:"required"`
	VersionID   string `json:"versionId" validate:"required"`
	OpenInEtabs bool   `json:"openInEtabs"`
}

// CheckoutVersionResponse reports the checkout. A failed ETABS launch leaves
// EtabsOpened false and sets Warning; the checkout itself still happened.
type CheckoutVersionResponse struct {
	CheckedOut bool `json:"checkedOut"`
	vcs.CheckoutResult
}

// CompareVersionsRequest compares two versions, possibly on different
// branches.
type CompareVersionsRequest struct {
	ProjectPath string          `json:"projectPath" validate:"required"`
	Version1    vcs.VersionRef  `json:"version1"`
	Version2    vcs.VersionRef  `json:"version2"`
	DiffType    models.DiffType `json:"diffType" validate:"required,oneof=e2k geometry both"`
	// Context overrides the number of context lines in rawDiff.
	Context int `json:"context,omitempty" validate:"gte=0"`
}

// OpenInEtabsRequest opens a branch's working file, or a read copy of
// VersionID when set.
type OpenInEtabsRequest struct {
	ProjectPath string `json:"projectPath" validate:"required"`
	BranchName  string `json:"branchName" validate:"required"`
	VersionID   string `json:"versionId,omitempty"`
}

// OpenInEtabsResponse reports which file ETABS opened.
type OpenInEtabsResponse struct {
	Opened         bool   `json:"opened"`
	FilePath       string `json:"filePath"`
	EtabsProcessID int    `json:"etabsProcessId,omitempty"`
	ReadOnly       bool   `json:"readOnly"`
}

// CloseEtabsRequest may name a project; its working-file flags are then
// re-derived after ETABS exits.
type CloseEtabsRequest struct {
	ProjectPath string `json:"projectPath,omitempty"`
	SaveChanges bool   `json:"saveChanges"`
}

// EtabsStatusRequest may name a project whose flags are refreshed too.
type EtabsStatusRequest struct {
	ProjectPath string `json:"projectPath,omitempty"`
}

// GenerateE2kRequest exports an .edb file to E2K.
type GenerateE2kRequest struct {
	EdbPath    string `json:"edbPath" validate:"required"`
	OutputPath string `json:"outputPath,omitempty"`
	Overwrite  bool   `json:"overwrite"`
}

// GenerateE2kResponse reports an E2K export.
type GenerateE2kResponse struct {
	Success          bool     `json:"success"`
	E2kPath          string   `json:"e2kPath"`
	FileSize         int64    `json:"fileSize"`
	GenerationTimeMs int64    `json:"generationTimeMs"`
	Messages         []string `json:"messages"`
}

// ValidateFileRequest asks the sidecar to check a file.
type ValidateFileRequest struct {
	FilePath string `json:"filePath" validate:"required"`
}

// CLIInfoResponse reports whether the sidecar CLI is installed.
type CLIInfoResponse struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
}
