// Package etabs controls the ETABS application and its sidecar CLI.
//
// A Bridge tracks at most one ETABS process. Its status is advisory and
// polled: the process may exit at any time without the bridge being told.
// With a session file the tracked process outlives the command that
// launched it, so a later invocation can report on it and close it.
package etabs

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/tadoEng/EtabExtension/internal/errs"
	"github.com/tadoEng/EtabExtension/internal/logging"
)

// DesignExt is the extension of ETABS design files.
const DesignExt = ".edb"

// ExportExt is the extension of E2K text exports.
const ExportExt = ".e2k"

// Options configures a Bridge. Zero values fall back to defaults.
type Options struct {
	Executable    string
	CLI           string
	ExportTimeout time.Duration
	Runner        Runner
	Fs            afero.Fs
	Logger        *log.Logger
	// SessionFile records the launched process across invocations. Empty
	// keeps the session in memory only.
	SessionFile string
}

// Status is a point-in-time view of the tracked process.
type Status struct {
	IsRunning    bool   `json:"isRunning"`
	OpenFilePath string `json:"openFilePath,omitempty"`
	ProcessID    int    `json:"processId,omitempty"`
	CanSave      bool   `json:"canSave"`
}

// OpenResult reports a launch.
type OpenResult struct {
	Opened    bool `json:"opened"`
	ProcessID int  `json:"processId,omitempty"`
}

// CloseResult reports a shutdown.
type CloseResult struct {
	Closed       bool `json:"closed"`
	ChangesSaved bool `json:"changesSaved"`
}

// ExportResult reports an E2K export. Messages are informational only.
type ExportResult struct {
	OutputPath string   `json:"outputPath"`
	SizeBytes  int64    `json:"sizeBytes"`
	DurationMs int64    `json:"durationMs"`
	Messages   []string `json:"messages"`
}

// ValidationReport is the outcome of validating a file with the sidecar.
type ValidationReport struct {
	Valid bool           `json:"valid"`
	Error string         `json:"error,omitempty"`
	Data  ValidationData `json:"data"`
}

type session struct {
	proc   Process
	path   string
	done   chan struct{}
	waited error
}

func newSession(proc Process, path string) *session {
	s := &session{proc: proc, path: path, done: make(chan struct{})}
	go func() {
		s.waited = proc.Wait()
		close(s.done)
	}()
	return s
}

// sessionRecord is the persisted form of a session.
type sessionRecord struct {
	PID     int       `json:"pid"`
	Path    string    `json:"path"`
	Started time.Time `json:"started"`
}

func (s *session) exited() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Bridge manages one ETABS session and runs sidecar CLI commands.
type Bridge struct {
	opts Options
	log  *log.Logger

	mu  sync.Mutex
	cur *session
}

// New creates a Bridge.
func New(opts Options) *Bridge {
	if opts.Executable == "" {
		opts.Executable = "ETABS.exe"
	}
	if opts.CLI == "" {
		opts.CLI = "etab-cli"
	}
	if opts.ExportTimeout <= 0 {
		opts.ExportTimeout = 5 * time.Minute
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	return &Bridge{opts: opts, log: logging.OrDiscard(opts.Logger).WithPrefix("etabs")}
}

// Status polls the tracked process.
func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.live()
	if s == nil {
		return Status{}
	}
	return Status{
		IsRunning:    true,
		OpenFilePath: s.path,
		ProcessID:    s.proc.Pid(),
		CanSave:      s.path != "",
	}
}

// live returns the running session, forgetting one that has exited.
// Without a session in memory it adopts the one recorded in the session
// file, if that process is still alive. Callers hold b.mu.
func (b *Bridge) live() *session {
	if b.cur == nil {
		b.cur = b.adopt()
	}
	if b.cur != nil && b.cur.exited() {
		b.log.Debug("ETABS process exited", "pid", b.cur.proc.Pid(), "err", b.cur.waited)
		b.forget(b.cur.proc.Pid())
		b.cur = nil
	}
	return b.cur
}

func (b *Bridge) adopt() *session {
	if b.opts.SessionFile == "" {
		return nil
	}
	data, err := afero.ReadFile(b.opts.Fs, b.opts.SessionFile)
	if err != nil {
		return nil
	}
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil || rec.PID <= 0 {
		b.log.Warn("ignoring unreadable ETABS session file", "path", b.opts.SessionFile, "err", err)
		b.forget(0)
		return nil
	}
	proc, err := b.opts.Runner.Attach(rec.PID)
	if err != nil {
		b.log.Debug("recorded ETABS process is gone", "pid", rec.PID, "err", err)
		b.forget(rec.PID)
		return nil
	}
	b.log.Debug("attached to ETABS", "pid", rec.PID, "path", rec.Path)
	return newSession(proc, rec.Path)
}

func (b *Bridge) record(s *session) {
	if b.opts.SessionFile == "" {
		return
	}
	data, err := json.Marshal(sessionRecord{PID: s.proc.Pid(), Path: s.path, Started: time.Now().UTC()})
	if err == nil {
		if err = b.opts.Fs.MkdirAll(filepath.Dir(b.opts.SessionFile), 0o755); err == nil {
			err = afero.WriteFile(b.opts.Fs, b.opts.SessionFile, data, 0o644)
		}
	}
	if err != nil {
		b.log.Warn("failed to record ETABS session", "path", b.opts.SessionFile, "err", err)
	}
}

// forget removes the session file if it still names pid. Zero removes it
// unconditionally.
func (b *Bridge) forget(pid int) {
	if b.opts.SessionFile == "" {
		return
	}
	if pid != 0 {
		data, err := afero.ReadFile(b.opts.Fs, b.opts.SessionFile)
		if err != nil {
			return
		}
		var rec sessionRecord
		if json.Unmarshal(data, &rec) == nil && rec.PID != pid {
			return
		}
	}
	if err := b.opts.Fs.Remove(b.opts.SessionFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		b.log.Warn("failed to remove ETABS session file", "path", b.opts.SessionFile, "err", err)
	}
}

// Open launches ETABS on path.
func (b *Bridge) Open(path string) (*OpenResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s := b.live(); s != nil {
		return nil, errs.E(errs.AlreadyRunning, "ETABS is already running (pid %d, %s)", s.proc.Pid(), s.path)
	}

	exe, err := b.opts.Runner.LookPath(b.opts.Executable)
	if err != nil {
		return nil, errs.Wrap(errs.ToolUnavailable, err, "ETABS executable %q not found", b.opts.Executable)
	}

	if ok, err := afero.Exists(b.opts.Fs, path); err != nil {
		return nil, errs.IO(err, "failed to check %s", path)
	} else if !ok {
		return nil, errs.E(errs.NotFound, "file %s does not exist", path)
	}

	proc, err := b.opts.Runner.Start(exe, path)
	if err != nil {
		return nil, errs.Wrap(errs.LaunchFailed, err, "failed to launch ETABS")
	}

	s := newSession(proc, path)
	b.cur = s
	b.record(s)

	b.log.Info("ETABS launched", "pid", proc.Pid(), "path", path)
	return &OpenResult{Opened: true, ProcessID: proc.Pid()}, nil
}

// Close stops the tracked process, saving the open model first when save is
// set.
func (b *Bridge) Close(ctx context.Context, save bool) (*CloseResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.live()
	if s == nil {
		return nil, errs.E(errs.NotRunning, "no ETABS instance is running")
	}

	result := &CloseResult{}
	if save {
		if err := b.saveModel(ctx, s.path); err != nil {
			return nil, err
		}
		result.ChangesSaved = true
	}

	if err := s.proc.Kill(); err != nil && !s.exited() {
		return nil, errs.Wrap(errs.Internal, err, "failed to stop ETABS (pid %d)", s.proc.Pid())
	}
	<-s.done
	b.cur = nil
	b.forget(s.proc.Pid())
	result.Closed = true

	b.log.Info("ETABS closed", "pid", s.proc.Pid(), "saved", result.ChangesSaved)
	return result, nil
}

func (b *Bridge) saveModel(ctx context.Context, path string) error {
	out, err := b.runCLI(ctx, "save", "--file", path)
	if errors.Is(err, errs.ErrToolUnavailable) {
		return err
	}
	r, decErr := decodeResult[SaveData](out)
	if decErr != nil {
		if err != nil {
			return errs.Wrap(errs.IOFailure, err, "failed to save model in ETABS")
		}
		return errs.Wrap(errs.IOFailure, decErr, "failed to save model in ETABS")
	}
	if !r.Success {
		return errs.E(errs.IOFailure, "failed to save model in ETABS: %s", r.Error)
	}
	return nil
}

// DefaultOutput is the export path used when none is given.
func DefaultOutput(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + ExportExt
}

// Export generates an E2K file from an .edb design file.
func (b *Bridge) Export(ctx context.Context, input, output string, overwrite bool) (*ExportResult, error) {
	if !strings.EqualFold(filepath.Ext(input), DesignExt) {
		return nil, errs.E(errs.SourceInvalid, "%s is not an ETABS design file (%s)", input, DesignExt)
	}
	if ok, err := afero.Exists(b.opts.Fs, input); err != nil {
		return nil, errs.IO(err, "failed to check %s", input)
	} else if !ok {
		return nil, errs.E(errs.SourceInvalid, "input file %s does not exist", input)
	}

	if output == "" {
		output = DefaultOutput(input)
	}
	if ok, err := afero.Exists(b.opts.Fs, output); err != nil {
		return nil, errs.IO(err, "failed to check %s", output)
	} else if ok && !overwrite {
		return nil, errs.E(errs.OutputExists, "output file %s already exists", output)
	}

	args := []string{"generate-e2k", "--file", input, "--output", output}
	if overwrite {
		args = append(args, "--overwrite")
	}

	ctx, cancel := context.WithTimeout(ctx, b.opts.ExportTimeout)
	defer cancel()

	start := time.Now()
	out, runErr := b.runCLI(ctx, args...)
	elapsed := time.Since(start)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, errs.E(errs.ExportFailed, "E2K export timed out after %s", b.opts.ExportTimeout)
	}
	if errors.Is(runErr, errs.ErrToolUnavailable) {
		return nil, runErr
	}

	r, err := decodeResult[GenerateE2KData](out)
	if err != nil {
		if runErr != nil {
			return nil, errs.Wrap(errs.ExportFailed, runErr, "E2K export failed")
		}
		return nil, errs.Wrap(errs.ExportFailed, err, "E2K export failed")
	}
	if !r.Success || r.Data == nil || (r.Data.GenerationSuccessful != nil && !*r.Data.GenerationSuccessful) {
		msg := r.Error
		if msg == "" {
			msg = "generation unsuccessful"
		}
		return nil, errs.E(errs.ExportFailed, "E2K export failed: %s", msg)
	}

	result := &ExportResult{
		OutputPath: output,
		SizeBytes:  r.Data.FileSizeBytes,
		DurationMs: r.Data.GenerationTimeMs,
		Messages:   r.Data.Messages,
	}
	if r.Data.OutputFile != "" {
		result.OutputPath = r.Data.OutputFile
	}
	if result.DurationMs == 0 {
		result.DurationMs = elapsed.Milliseconds()
	}
	if info, err := b.opts.Fs.Stat(result.OutputPath); err == nil {
		result.SizeBytes = info.Size()
	} else if result.SizeBytes == 0 {
		return nil, errs.E(errs.ExportFailed, "E2K export reported success but %s is missing", result.OutputPath)
	}
	if result.Messages == nil {
		result.Messages = []string{}
	}

	b.log.Info("E2K exported", "input", input, "output", result.OutputPath, "bytes", result.SizeBytes, "ms", result.DurationMs)
	return result, nil
}

// Validate asks the sidecar whether path is a usable ETABS file.
func (b *Bridge) Validate(ctx context.Context, path string) (*ValidationReport, error) {
	out, runErr := b.runCLI(ctx, "validate", "--file", path)
	if errors.Is(runErr, errs.ErrToolUnavailable) {
		return nil, runErr
	}

	r, err := decodeResult[ValidationData](out)
	if err != nil {
		if runErr != nil {
			return nil, errs.Wrap(errs.Internal, runErr, "validation failed")
		}
		return nil, errs.Wrap(errs.Internal, err, "validation failed")
	}

	report := &ValidationReport{Valid: r.Success, Error: r.Error}
	if r.Data != nil {
		report.Data = *r.Data
		if r.Data.FileValid != nil && !*r.Data.FileValid {
			report.Valid = false
		}
	}
	if report.Data.ValidationMessages == nil {
		report.Data.ValidationMessages = []string{}
	}
	return report, nil
}

// CLIAvailable reports whether the sidecar CLI can be found.
func (b *Bridge) CLIAvailable() bool {
	_, err := b.opts.Runner.LookPath(b.opts.CLI)
	return err == nil
}

// CLIVersion returns the sidecar's version string.
func (b *Bridge) CLIVersion(ctx context.Context) (string, error) {
	out, err := b.runCLI(ctx, "--version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (b *Bridge) runCLI(ctx context.Context, args ...string) ([]byte, error) {
	cli, err := b.opts.Runner.LookPath(b.opts.CLI)
	if err != nil {
		return nil, errs.Wrap(errs.ToolUnavailable, err, "ETABS CLI %q not found", b.opts.CLI)
	}
	b.log.Debug("running CLI", "cli", cli, "args", args)
	out, err := b.opts.Runner.Output(ctx, cli, args...)
	if err != nil {
		b.log.Warn("CLI command failed", "args", args, "err", err)
		return out, err
	}
	return out, nil
}

