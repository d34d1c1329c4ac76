// Package session holds the view state of one analyst session: the active
// screen, the loaded analysis and the upload, filter and export flows that
// change them.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/netty/analyst/internal/api"
	"github.com/netty/analyst/internal/models"
)

var (
	ErrBusy           = errors.New("session: a request is already in progress")
	ErrNoAnalysis     = errors.New("session: no analysis loaded")
	ErrExportInFlight = errors.New("session: an export is already in progress")
)

// Service is the part of the analysis service the orchestrator drives
type Service interface {
	Upload(ctx context.Context, path string) (*models.UploadResponse, error)
	Current(ctx context.Context) (*models.UploadResponse, error)
	Filter(ctx context.Context, protocol string) (*models.FilterResult, error)
	Export(ctx context.Context, kind api.ExportKind) (*api.Export, error)
}

// UploadDoneMsg resolves SubmitFile and Resume
type UploadDoneMsg struct {
	Path     string
	Response *models.UploadResponse
	Err      error
}

type FilterDoneMsg struct {
	Protocol string
	Result   *models.FilterResult
	Err      error
	gen      uint64
}

type ExportDoneMsg struct {
	Kind api.ExportKind
	Path string
	Err  error
}

// Orchestrator owns the session state. All methods run on the event loop;
// network calls happen only inside the returned commands.
type Orchestrator struct {
	svc    Service
	save   Saver
	logger *log.Logger

	screen   Screen
	analysis *models.AnalysisResult
	fileName string
	loading  bool
	err      string

	// gen counts loaded analyses so filter results for a replaced one are dropped
	gen            uint64
	filtering      bool
	filterProtocol string
	filterResult   *models.FilterResult
	filterErr      string

	exporting  bool
	lastExport string
}

func New(svc Service, save Saver, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if save == nil {
		save = DirSaver("")
	}
	return &Orchestrator{
		svc:    svc,
		save:   save,
		logger: logger,
		screen: ScreenUpload,
	}
}

// SubmitFile starts analysing the capture at path
func (o *Orchestrator) SubmitFile(ctx context.Context, path string) (tea.Cmd, error) {
	path = strings.TrimSpace(path)
	if o.loading {
		return nil, ErrBusy
	}
	if path == "" {
		o.err = "Please select a capture file to upload."
		return nil, nil
	}
	o.loading = true
	o.err = ""
	o.logger.Info("Uploading capture", "path", path)

	svc := o.svc
	return func() (msg tea.Msg) {
		defer recoverInto(&msg, func(err error) tea.Msg { return UploadDoneMsg{Path: path, Err: err} })
		res, err := svc.Upload(ctx, path)
		return UploadDoneMsg{Path: path, Response: res, Err: err}
	}, nil
}

// Resume loads the analysis the service already holds
func (o *Orchestrator) Resume(ctx context.Context) (tea.Cmd, error) {
	if o.loading {
		return nil, ErrBusy
	}
	o.loading = true
	o.err = ""
	o.logger.Info("Loading current analysis")

	svc := o.svc
	return func() (msg tea.Msg) {
		defer recoverInto(&msg, func(err error) tea.Msg { return UploadDoneMsg{Err: err} })
		res, err := svc.Current(ctx)
		return UploadDoneMsg{Response: res, Err: err}
	}, nil
}

// Navigate switches screens. Screens other than upload need a loaded
// analysis; a refused switch leaves the state untouched and returns false.
func (o *Orchestrator) Navigate(target Screen) bool {
	if !target.valid() {
		return false
	}
	if target.needsAnalysis() && o.analysis == nil {
		return false
	}
	o.screen = target
	return true
}

// ApplyFilter re-runs the analysis restricted to protocol
func (o *Orchestrator) ApplyFilter(ctx context.Context, protocol string) (tea.Cmd, error) {
	if o.analysis == nil {
		return nil, ErrNoAnalysis
	}
	if o.filtering || o.loading {
		return nil, ErrBusy
	}
	protocol = strings.ToUpper(strings.TrimSpace(protocol))
	o.filtering = true
	o.filterProtocol = protocol
	o.filterErr = ""

	svc, gen := o.svc, o.gen
	return func() (msg tea.Msg) {
		defer recoverInto(&msg, func(err error) tea.Msg { return FilterDoneMsg{Protocol: protocol, Err: err, gen: gen} })
		res, err := svc.Filter(ctx, protocol)
		return FilterDoneMsg{Protocol: protocol, Result: res, Err: err, gen: gen}
	}, nil
}

// RequestExport downloads a report and saves it. It never touches the
// screen, the analysis or the loading flag.
func (o *Orchestrator) RequestExport(ctx context.Context, kind api.ExportKind) (tea.Cmd, error) {
	if o.analysis == nil {
		return nil, ErrNoAnalysis
	}
	if o.exporting {
		return nil, ErrExportInFlight
	}
	o.exporting = true
	o.logger.Info("Exporting report", "format", kind)

	svc, save := o.svc, o.save
	return func() (msg tea.Msg) {
		defer recoverInto(&msg, func(err error) tea.Msg { return ExportDoneMsg{Kind: kind, Err: err} })
		exp, err := svc.Export(ctx, kind)
		if err != nil {
			return ExportDoneMsg{Kind: kind, Err: err}
		}
		path, err := save(exp)
		return ExportDoneMsg{Kind: kind, Path: path, Err: err}
	}, nil
}

// Handle applies the result of a flow started by the orchestrator and reports
// whether msg was one.
func (o *Orchestrator) Handle(msg tea.Msg) bool {
	switch msg := msg.(type) {
	case UploadDoneMsg:
		o.finishUpload(msg)
	case FilterDoneMsg:
		o.finishFilter(msg)
	case ExportDoneMsg:
		o.finishExport(msg)
	default:
		return false
	}
	return true
}

func (o *Orchestrator) finishUpload(msg UploadDoneMsg) {
	defer func() { o.loading = false }()

	if msg.Err != nil {
		o.logger.Error("Upload failed", "path", msg.Path, "kind", api.KindOf(msg.Err), "error", msg.Err)
		o.err = msg.Err.Error()
		return
	}
	if msg.Response == nil || msg.Response.Analysis == nil {
		o.logger.Warn("Service returned no analysis", "path", msg.Path)
		if msg.Path == "" {
			o.err = "No analysis is available yet. Upload a capture file first."
		} else {
			o.err = "The service returned no analysis for this file."
		}
		return
	}

	name := msg.Response.Filename
	if name == "" && msg.Path != "" {
		name = filepath.Base(msg.Path)
	}
	o.analysis = msg.Response.Analysis
	o.fileName = name
	o.gen++
	o.filterResult = nil
	o.filterProtocol = ""
	o.filterErr = ""
	o.screen = ScreenDashboard
	o.logger.Info("Analysis loaded", "file", name)
}

func (o *Orchestrator) finishFilter(msg FilterDoneMsg) {
	o.filtering = false
	if msg.gen != o.gen {
		o.logger.Debug("Dropping filter result for a replaced analysis", "protocol", msg.Protocol)
		return
	}
	if msg.Err != nil {
		o.logger.Error("Filter failed", "protocol", msg.Protocol, "error", msg.Err)
		o.filterErr = msg.Err.Error()
		return
	}
	o.filterResult = msg.Result
	if msg.Result != nil && msg.Result.Empty() {
		o.logger.Info("Filter matched no traffic", "protocol", msg.Protocol)
	}
}

func (o *Orchestrator) finishExport(msg ExportDoneMsg) {
	o.exporting = false
	if msg.Err != nil {
		o.logger.Error("Export failed", "format", msg.Kind, "error", msg.Err)
		o.err = msg.Err.Error()
		return
	}
	o.lastExport = msg.Path
	o.logger.Info("Report saved", "format", msg.Kind, "path", msg.Path)
}

// recoverInto turns a panic inside a command into that command's failure message
func recoverInto(msg *tea.Msg, fail func(error) tea.Msg) {
	if r := recover(); r != nil {
		*msg = fail(fmt.Errorf("unexpected failure: %v", r))
	}
}

func (o *Orchestrator) Screen() Screen {
	return o.screen
}

func (o *Orchestrator) Analysis() *models.AnalysisResult {
	return o.analysis
}

func (o *Orchestrator) HasAnalysis() bool {
	return o.analysis != nil
}

func (o *Orchestrator) FileName() string {
	return o.fileName
}

func (o *Orchestrator) Loading() bool {
	return o.loading
}

// Err is the global error message, empty when there is none
func (o *Orchestrator) Err() string {
	return o.err
}

func (o *Orchestrator) Filtering() bool {
	return o.filtering
}

func (o *Orchestrator) FilterProtocol() string {
	return o.filterProtocol
}

func (o *Orchestrator) FilterResult() *models.FilterResult {
	return o.filterResult
}

func (o *Orchestrator) FilterErr() string {
	return o.filterErr
}

func (o *Orchestrator) Exporting() bool {
	return o.exporting
}

// LastExport is the path the most recent report was saved to
func (o *Orchestrator) LastExport() string {
	return o.lastExport
}

// ClearError dismisses the global error message
func (o *Orchestrator) ClearError() {
	o.err = ""
}
