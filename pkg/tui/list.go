// Package tui is the interactive scroll host for paginated lists. It keeps
// the fetch controller on the bubbletea event loop: every fetch runs as a
// command and its result comes back as a message.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zfogg/feedline/pkg/errors"
	"github.com/zfogg/feedline/pkg/feed"
	"github.com/zfogg/feedline/pkg/logger"
	"github.com/zfogg/feedline/pkg/output"
	"github.com/zfogg/feedline/pkg/pagecache"
	"github.com/zfogg/feedline/pkg/pagination"
)

// DefaultThreshold is the sentinel distance, in rows, at which the next
// page is requested.
const DefaultThreshold = 8

// chrome is the number of rows taken by the header and status line.
const chrome = 2

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#D7D8A2"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	freshStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#DDC074"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E06C75"))
	endStyle    = lipgloss.NewStyle().Faint(true)
)

// RefreshMsg asks the model to re-read the controller, e.g. after the
// session re-keyed the list or the server announced new items.
type RefreshMsg struct{}

type recoveredMsg struct{ err error }

type pageMsg[T any] struct {
	req  feed.Request
	page *pagination.Page[T]
	err  error
}

// Notifier forwards out-of-loop changes to a running program.
type Notifier struct {
	p atomic.Pointer[tea.Program]
}

// Notify sends RefreshMsg to the attached program, if any.
func (n *Notifier) Notify() {
	if p := n.p.Load(); p != nil {
		p.Send(RefreshMsg{})
	}
}

func (n *Notifier) attach(p *tea.Program) { n.p.Store(p) }

// Options configures a list model.
type Options[T any] struct {
	Title  string
	Render func(T) string
	Keep   func(T) bool

	// Recover runs before a reset that follows a failed fetch. A non-nil
	// error keeps the list as it is and is shown instead.
	Recover func(ctx context.Context, err error) error
}

// Model renders one list and feeds scroll position to its controller.
type Model[T any] struct {
	ctx    context.Context
	ctrl   *feed.Controller[T]
	title  string
	render func(T) string
	keep   func(T) bool
	recov  func(context.Context, error) error
	notice string

	viewport viewport.Model
	spinner  spinner.Model
	ready    bool
}

func New[T any](ctx context.Context, ctrl *feed.Controller[T], opts Options[T]) Model[T] {
	if opts.Render == nil {
		opts.Render = func(item T) string { return fmt.Sprint(item) }
	}

	s := spinner.New()
	s.Spinner = spinner.Dot

	return Model[T]{
		ctx:      ctx,
		ctrl:     ctrl,
		title:    opts.Title,
		render:   opts.Render,
		keep:     opts.Keep,
		recov:    opts.Recover,
		viewport: viewport.New(80, 20),
		spinner:  s,
	}
}

func (m Model[T]) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.load())
}

// load begins the first page when the list has nothing yet.
func (m Model[T]) load() tea.Cmd {
	fs := m.ctrl.FetchState()
	if fs.Pages > 0 || fs.State != feed.Idle {
		return nil
	}
	req, ok := m.ctrl.Begin()
	if !ok {
		return nil
	}
	return m.fetch(req)
}

func (m Model[T]) fetch(req feed.Request) tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		page, err := ctrl.Execute(ctx, req)
		return pageMsg[T]{req: req, page: page, err: err}
	}
}

// Distance is how many rows of content remain below the viewport.
func (m Model[T]) Distance() int {
	d := m.viewport.TotalLineCount() - (m.viewport.YOffset + m.viewport.Height)
	if d < 0 {
		return 0
	}
	return d
}

// observe reports the sentinel position and returns the fetch it started.
func (m Model[T]) observe() tea.Cmd {
	if !m.ready {
		return nil
	}
	req, ok := m.ctrl.Approach(float64(m.Distance()))
	if !ok {
		return nil
	}
	return m.fetch(req)
}

func (m Model[T]) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chrome, 1)
		m.ready = true
		m.refresh()
		cmds = append(cmds, m.observe())

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			if fs := m.ctrl.FetchState(); fs.State == feed.Error && m.recov != nil {
				cmds = append(cmds, m.recoverSession(fs.LastError))
				break
			}
			cmds = append(cmds, m.restart())
		case "g", "home":
			m.viewport.GotoTop()
		case "G", "end":
			m.viewport.GotoBottom()
			cmds = append(cmds, m.observe())
		default:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd, m.observe())
		}

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd, m.observe())

	case pageMsg[T]:
		outcome, err := m.ctrl.Complete(msg.req, msg.page, msg.err)
		if err != nil {
			logger.Error("Applying page", "kind", m.ctrl.Kind(), "error", err)
		}
		m.refresh()
		if outcome == feed.Appended {
			cmds = append(cmds, m.observe())
		}

	case recoveredMsg:
		if msg.err != nil {
			logger.Warn("Session recovery failed", "kind", m.ctrl.Kind(), "error", msg.err)
			m.notice = errors.Short(msg.err)
			m.refresh()
			break
		}
		cmds = append(cmds, m.restart())

	case RefreshMsg:
		m.refresh()
		cmds = append(cmds, m.load(), m.observe())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model[T]) restart() tea.Cmd {
	m.notice = ""
	m.ctrl.Reset()
	m.viewport.GotoTop()
	m.refresh()
	return m.load()
}

func (m Model[T]) recoverSession(lastErr error) tea.Cmd {
	recov, ctx := m.recov, m.ctx
	return func() tea.Msg {
		return recoveredMsg{err: recov(ctx, lastErr)}
	}
}

func (m *Model[T]) refresh() {
	m.viewport.SetContent(m.content())
}

func (m Model[T]) content() string {
	snap := m.ctrl.Snapshot()
	items := snap.Items
	if m.keep != nil {
		items = pagecache.Filter(items, m.keep)
	}

	lines := make([]string, 0, len(items)+1)
	for _, it := range items {
		lines = append(lines, m.render(it))
	}

	switch {
	case !snap.Enabled:
		lines = append(lines, statusStyle.Render("Not logged in. Run 'feedline auth login'."))
	case snap.State == feed.Exhausted && len(items) == 0:
		lines = append(lines, endStyle.Render("Nothing here yet."))
	case snap.State == feed.Exhausted:
		lines = append(lines, endStyle.Render("· end ·"))
	case snap.State == feed.Error && m.notice != "":
		lines = append(lines, errorStyle.Render(m.notice))
	case snap.State == feed.Error:
		lines = append(lines, errorStyle.Render(errors.Short(snap.LastError)))
	}
	return strings.Join(lines, "\n")
}

func (m Model[T]) status() string {
	fs := m.ctrl.FetchState()

	parts := []string{fmt.Sprintf("%s items", output.Count(fs.Items)), fmt.Sprintf("%d pages", fs.Pages)}
	switch {
	case fs.IsInitialLoading:
		parts = append(parts, m.spinner.View()+" loading")
	case fs.IsFetchingNext:
		parts = append(parts, m.spinner.View()+" loading more")
	default:
		parts = append(parts, fs.State.String())
	}
	line := statusStyle.Render(strings.Join(parts, " · "))

	if fs.FreshItems > 0 {
		line += "  " + freshStyle.Render(fmt.Sprintf("%d new, press r to refresh", fs.FreshItems))
	}
	return line
}

func (m Model[T]) View() string {
	if !m.ready {
		return "\n  " + m.spinner.View() + " starting…"
	}
	header := titleStyle.Render(m.title)
	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), m.status())
}

// Run shows the list until the user quits. The notifier, when given, is
// attached to the running program.
func Run[T any](ctx context.Context, ctrl *feed.Controller[T], n *Notifier, opts Options[T]) error {
	p := tea.NewProgram(New(ctx, ctrl, opts), tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	if n != nil {
		n.attach(p)
		defer n.attach(nil)
	}
	_, err := p.Run()
	return err
}
