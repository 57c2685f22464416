package cmd

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/tadoEng/EtabExtension/internal/config"
	"github.com/tadoEng/EtabExtension/internal/facade"
	"github.com/tadoEng/EtabExtension/internal/models"
	"github.com/tadoEng/EtabExtension/internal/testutil"
)

// fakeTool backs every command run by the tests in this package.
var fakeTool = testutil.NewFakeTool()

func TestMain(m *testing.M) {
	home, err := os.MkdirTemp("", "etabext-home-*")
	if err != nil {
		panic(err)
	}
	os.Setenv("HOME", home)
	os.Setenv("USERPROFILE", home)

	config.Defaults()
	newTool = func() facade.Tool { return fakeTool }

	code := m.Run()
	os.RemoveAll(home)
	os.Exit(code)
}

// resetFlags restores every command flag to its default
func resetFlags() {
	projectDir = "."

	initName, initFrom = "", ""
	saveMessage, saveBranch, saveAuthor = "", "", ""
	saveNoE2K, saveNoEmbed = false, false
	branchFrom, branchFromVersion, branchDescription = "", "", ""
	branchForce, branchCloseEtabs = false, false
	checkoutOpen, checkoutForce = false, false
	diffType, diffContext, diffRaw = string(models.DiffBoth), 0, false
	etabsBranch, etabsSave = "", false
	exportBranch, exportOutput, exportOverwrite = "", "", false
	logSince, logLimit = "", 0
	searchBranch, searchLimit = "", 10
	pruneDryRun, pruneForce, pruneDays = true, false, 0
	archiveOutput, archiveDelete = "", false
	openPath, openOverwrite = "", false
	importBranch, importForce = "", false
	analysisFile = ""
	invokeList, invokePretty = false, false

	for _, o := range []*outputFlags{
		&branchListOut, &diffOut, &etabsStatusOut, &etabsCheckOut, &exportOut,
		&logOut, &searchOut, &relatedOut, &showOut, &statsOut, &statusOut,
	} {
		*o = outputFlags{}
	}

	fakeTool.Reset()
}

// setupProject creates a project in a temp directory, seeded with a design
// whose column is a W14X90, and changes into it.
func setupProject(t *testing.T) *testutil.TempProject {
	t.Helper()
	resetFlags()

	p := testutil.NewTempProject(t)
	t.Cleanup(p.Cleanup)
	p.Chdir()

	initFrom = p.CreateFile("seed/tower.edb", testutil.SampleE2K("W14X90"))
	if err := runInit(nil, nil); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	resetFlags()
	return p
}

// saveVersion saves the working file of a branch
func saveVersion(t *testing.T, branch, message string) {
	t.Helper()
	saveBranch, saveMessage = branch, message
	defer func() { saveBranch, saveMessage = "", "" }()
	if err := runSave(nil, nil); err != nil {
		t.Fatalf("save on %s failed: %v", branch, err)
	}
}

// createBranch branches from the latest version of from
func createBranch(t *testing.T, name, from string) {
	t.Helper()
	branchFrom = from
	defer func() { branchFrom = "" }()
	if err := runBranchCreate(nil, []string{name}); err != nil {
		t.Fatalf("branch create %s failed: %v", name, err)
	}
}

// setupTwoBranches saves main/v1 and steel-columns/v1, where the branch
// upgrades the column to a W14X120.
func setupTwoBranches(t *testing.T) *testutil.TempProject {
	t.Helper()
	p := setupProject(t)
	saveVersion(t, "main", "Initial design")
	createBranch(t, "steel-columns", "main")
	p.WriteWorkingFile("steel-columns", config.GetDesignFileName(), testutil.SampleE2K("W14X120"))
	saveVersion(t, "steel-columns", "Bigger steel columns")
	return p
}

// captureStdout returns what fn prints to stdout
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w

	done := make(chan []byte)
	go func() {
		var buf bytes.Buffer
		io.Copy(&buf, r)
		done <- buf.Bytes()
	}()

	runErr := fn()
	w.Close()
	os.Stdout = orig
	out := <-done
	r.Close()
	return string(out), runErr
}
