package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/netty/analyst/internal/api"
	"github.com/netty/analyst/internal/chat"
	"github.com/netty/analyst/internal/models"
	"github.com/netty/analyst/internal/session"
)

// HealthFunc probes the analysis service
type HealthFunc func(ctx context.Context) (bool, error)

type Options struct {
	ServiceURL string
	Health     HealthFunc
	Logger     *log.Logger
	// Location is the zone timeline labels are shown in; nil means local time
	Location *time.Location
}

type Model struct {
	ctx     context.Context
	session *session.Orchestrator
	chat    *chat.Store
	health  HealthFunc
	logger  *log.Logger
	loc     *time.Location

	width        int
	height       int
	scrollOffset int
	chatScroll   int
	protocolIdx  int
	showHelp     bool
	notice       string

	serviceURL    string
	serviceStatus string
	serviceUp     bool

	pathInput textinput.Model
	chatInput textinput.Model
	spinner   spinner.Model
}

type healthMsg struct {
	ok  bool
	err error
}

func NewModel(ctx context.Context, sess *session.Orchestrator, store *chat.Store, opts Options) *Model {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	path := textinput.New()
	path.Placeholder = "/path/to/capture.pcap"
	path.Prompt = "File: "
	path.CharLimit = 4096
	path.Focus()

	input := textinput.New()
	input.Placeholder = "Ask about your network traffic..."
	input.Prompt = "> "
	input.CharLimit = 2000

	spin := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(accentStyle))

	return &Model{
		ctx:           ctx,
		session:       sess,
		chat:          store,
		health:        opts.Health,
		logger:        logger,
		loc:           opts.Location,
		serviceURL:    opts.ServiceURL,
		serviceStatus: "Checking service...",
		pathInput:     path,
		chatInput:     input,
		spinner:       spin,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.checkHealth(),
	)
}

func (m *Model) checkHealth() tea.Cmd {
	if m.health == nil {
		return nil
	}
	health, ctx := m.health, m.ctx
	return func() tea.Msg {
		ok, err := health(ctx)
		return healthMsg{ok: ok, err: err}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.pathInput.Width = max(msg.Width-12, 10)
		m.chatInput.Width = max(msg.Width-6, 10)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case healthMsg:
		m.serviceUp = msg.ok && msg.err == nil
		switch {
		case m.serviceUp:
			m.serviceStatus = "Service online"
		case msg.err != nil:
			m.serviceStatus = "Service unreachable"
			m.logger.Warn("Health check failed", "error", msg.err)
		default:
			m.serviceStatus = "Service unhealthy"
		}
		return m, nil

	case session.UploadDoneMsg:
		m.session.Handle(msg)
		if msg.Err == nil && m.session.Screen() == session.ScreenDashboard {
			m.scrollOffset = 0
			m.pathInput.Reset()
			m.syncFocus()
		}
		return m, nil

	case session.ExportDoneMsg:
		m.session.Handle(msg)
		if msg.Err == nil {
			m.notice = fmt.Sprintf("%s report saved to %s", strings.ToUpper(string(msg.Kind)), m.session.LastExport())
		}
		return m, nil

	case chat.ReplyMsg:
		m.chat.Handle(msg)
		m.chatScroll = 0
		return m, nil
	}

	if m.session.Handle(msg) {
		return m, nil
	}
	return m, m.updateInputs(msg)
}

func (m *Model) updateInputs(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch m.session.Screen() {
	case session.ScreenUpload:
		m.pathInput, cmd = m.pathInput.Update(msg)
	case session.ScreenChat:
		m.chatInput, cmd = m.chatInput.Update(msg)
	}
	return cmd
}

func (m *Model) typing() bool {
	switch m.session.Screen() {
	case session.ScreenUpload:
		return m.pathInput.Focused()
	case session.ScreenChat:
		return m.chatInput.Focused()
	}
	return false
}

func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}

	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "q":
		if !m.typing() {
			return m, tea.Quit
		}

	case "?":
		if !m.typing() {
			m.showHelp = true
			return m, nil
		}

	case "esc":
		m.session.ClearError()
		m.notice = ""
		return m, nil

	case "tab":
		m.cycleScreen(1)
		return m, nil

	case "shift+tab":
		m.cycleScreen(-1)
		return m, nil

	case "ctrl+p":
		return m, m.export(api.ExportPDF)

	case "ctrl+e":
		return m, m.export(api.ExportCSV)
	}

	switch m.session.Screen() {
	case session.ScreenUpload:
		return m, m.handleUploadKey(msg)
	case session.ScreenDashboard:
		m.handleScrollKey(msg)
		return m, nil
	case session.ScreenChat:
		return m, m.handleChatKey(msg)
	case session.ScreenFilter:
		return m, m.handleFilterKey(msg)
	}
	return m, nil
}

func (m *Model) cycleScreen(step int) {
	current := int(m.session.Screen())
	n := len(session.Screens)
	for i := 1; i < n; i++ {
		next := session.Screens[((current+step*i)%n+n)%n]
		if m.session.Navigate(next) {
			m.scrollOffset = 0
			m.syncFocus()
			return
		}
	}
}

func (m *Model) syncFocus() {
	m.pathInput.Blur()
	m.chatInput.Blur()
	switch m.session.Screen() {
	case session.ScreenUpload:
		m.pathInput.Focus()
	case session.ScreenChat:
		m.chatInput.Focus()
	}
}

func (m *Model) export(kind api.ExportKind) tea.Cmd {
	cmd, err := m.session.RequestExport(m.ctx, kind)
	switch {
	case errors.Is(err, session.ErrNoAnalysis):
		m.notice = "Upload a capture before exporting a report."
	case errors.Is(err, session.ErrExportInFlight):
		m.notice = "An export is already running."
	case err == nil:
		m.notice = fmt.Sprintf("Exporting %s report...", strings.ToUpper(string(kind)))
	}
	return cmd
}

func (m *Model) handleUploadKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "enter":
		cmd, err := m.session.SubmitFile(m.ctx, m.pathInput.Value())
		if errors.Is(err, session.ErrBusy) {
			m.notice = "An analysis is already running."
		}
		return cmd
	case "ctrl+r":
		cmd, err := m.session.Resume(m.ctx)
		if errors.Is(err, session.ErrBusy) {
			m.notice = "An analysis is already running."
		}
		return cmd
	}
	var cmd tea.Cmd
	m.pathInput, cmd = m.pathInput.Update(msg)
	return cmd
}

func (m *Model) handleChatKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "enter":
		cmd, err := m.chat.SendAndAwait(m.ctx, m.chatInput.Value())
		switch {
		case errors.Is(err, chat.ErrInFlight):
			m.notice = "Waiting for the previous answer."
			return nil
		case errors.Is(err, chat.ErrEmptyMessage):
			return nil
		}
		m.chatInput.Reset()
		m.chatScroll = 0
		return cmd
	case "pgup", "ctrl+u":
		m.chatScroll = min(m.chatScroll+max(m.viewportHeight()/2, 1), m.maxChatScroll())
		return nil
	case "pgdown", "ctrl+d":
		m.chatScroll = max(min(m.chatScroll, m.maxChatScroll())-max(m.viewportHeight()/2, 1), 0)
		return nil
	}
	var cmd tea.Cmd
	m.chatInput, cmd = m.chatInput.Update(msg)
	return cmd
}

func (m *Model) handleFilterKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "j", "down":
		if m.protocolIdx < len(models.Protocols)-1 {
			m.protocolIdx++
		}
	case "k", "up":
		if m.protocolIdx > 0 {
			m.protocolIdx--
		}
	case "enter":
		cmd, err := m.session.ApplyFilter(m.ctx, models.Protocols[m.protocolIdx].Name)
		if errors.Is(err, session.ErrBusy) {
			m.notice = "A request is already running."
		}
		m.scrollOffset = 0
		return cmd
	default:
		m.handleScrollKey(msg)
	}
	return nil
}

func (m *Model) handleScrollKey(msg tea.KeyMsg) {
	switch msg.String() {
	case "j", "down":
		m.scrollDown(1)
	case "k", "up":
		m.scrollUp(1)
	case "ctrl+d", "pgdown":
		m.scrollDown(m.viewportHeight() / 2)
	case "ctrl+u", "pgup":
		m.scrollUp(m.viewportHeight() / 2)
	case "g":
		m.scrollOffset = 0
	case "G":
		m.scrollOffset = m.maxScroll()
	}
}

func (m *Model) scrollDown(lines int) {
	m.scrollOffset = min(m.scrollOffset+max(lines, 1), m.maxScroll())
}

func (m *Model) scrollUp(lines int) {
	m.scrollOffset -= max(lines, 1)
	if m.scrollOffset < 0 {
		m.scrollOffset = 0
	}
}

func (m *Model) viewportHeight() int {
	// header, tabs, banner and footer
	return max(m.height-6, 3)
}
