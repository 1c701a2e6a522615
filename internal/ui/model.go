package ui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/five82/gridder/internal/crud"
	"github.com/five82/gridder/internal/grid"
	"github.com/five82/gridder/internal/grouping"
	"github.com/five82/gridder/internal/notify"
	"github.com/five82/gridder/internal/prefs"
	"github.com/five82/gridder/internal/state"
)

// mode is what currently receives key presses.
type mode int

const (
	modeTable mode = iota
	modeSearch
	modeFilter
	modeExport
	modeDetail
	modeHelp
)

const (
	defaultTick   = 250 * time.Millisecond
	actionTimeout = 2 * time.Minute
	perPageStep   = 25
)

// Options configures the UI.
type Options struct {
	Context   context.Context
	Grid      *grid.Grid
	Toasts    *notify.Queue
	Logger    *zap.Logger
	Tick      time.Duration
	ThemeName string
	PrefsPath string
	// Refresh requests an immediate refresh. Nil calls Grid.Refresh directly.
	Refresh func()
	// Live reports whether the realtime feed is connected. Nil hides the
	// indicator.
	Live func() bool
}

// line is one selectable entry of the body: a group header or a record.
type line struct {
	group  *grouping.Group
	record crud.Record
}

// Model is the root application state for Bubble Tea.
type Model struct {
	ctx       context.Context
	grid      *grid.Grid
	toasts    *notify.Queue
	logger    *zap.Logger
	prefsPath string
	tick      time.Duration
	refresh   func()
	live      func() bool

	keys   keyMap
	theme  Theme
	width  int
	height int
	ready  bool
	mode   mode

	// Latest view of the grid, taken on every tick.
	snapshot state.Snapshot
	st       state.Grid
	columns  []string
	lines    []line
	matrix   grouping.Matrix
	info     grid.PageInfo

	cursor    int
	colCursor int
	offset    int // first visible body line

	input       textinput.Model
	exportScope string
	detail      viewport.Model
	spinner     spinner.Model
	link        string
	busy        string // running action, shown in the footer
}

// New creates the Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	tick := opts.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}

	input := textinput.New()
	input.CharLimit = 256

	spin := spinner.New()
	spin.Spinner = spinner.MiniDot

	m := Model{
		ctx:       ctx,
		grid:      opts.Grid,
		toasts:    opts.Toasts,
		logger:    logger,
		prefsPath: prefsPath,
		tick:      tick,
		refresh:   opts.Refresh,
		live:      opts.Live,
		keys:      DefaultKeyMap(),
		theme:     GetTheme(opts.ThemeName),
		input:     input,
		spinner:   spin,
	}
	m.sync()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(m.tick), m.spinner.Tick)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.detail = viewport.New(msg.Width, m.bodyHeight())
		} else {
			m.detail.Width = msg.Width
			m.detail.Height = m.bodyHeight()
		}
		m.ready = true
		return m, nil

	case tickMsg:
		m.sync()
		return m, tickCmd(m.tick)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case detailMsg:
		if msg.err != nil {
			notify.Notifyf(m.toasts, notify.Error, "Load %s: %v", msg.id, msg.err)
			m.mode = modeTable
			return m, nil
		}
		m.detail.SetContent(renderDetail(msg.record, m.detailFields(msg.record), m.theme.Styles()))
		m.detail.GotoTop()
		return m, nil

	case actionDoneMsg:
		m.busy = ""
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.logger.Debug("action finished with error", zap.String("action", msg.name), zap.Error(msg.err))
		}
		m.sync()
		return m, nil
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.mode == modeHelp {
		return m.renderHelp()
	}
	return m.renderMain()
}

// sync copies the grid's current state and result into the model.
func (m *Model) sync() {
	if m.grid == nil {
		return
	}
	m.snapshot = m.grid.Snapshot()
	m.st = m.grid.State()
	m.columns = m.grid.VisibleColumns()
	m.info = m.grid.PageInfo()
	m.lines = nil
	m.matrix = grouping.Matrix{}

	switch {
	case m.st.ViewMode == state.ViewMatrix && m.grid.GroupingActive():
		m.matrix = m.grid.Matrix()
		for i := range m.matrix.Rows {
			g := m.matrix.Rows[i].Group
			m.lines = append(m.lines, line{group: &g})
		}
	case m.grid.GroupingActive():
		for _, g := range m.grid.Groups() {
			m.lines = append(m.lines, line{group: &g})
			if g.Expanded {
				for _, r := range g.Rows {
					m.lines = append(m.lines, line{record: r})
				}
			}
		}
	default:
		for _, r := range m.snapshot.Items {
			m.lines = append(m.lines, line{record: r})
		}
	}
	m.clampCursor()
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.lines) {
		m.cursor = len(m.lines) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.colCursor >= len(m.columns) {
		m.colCursor = len(m.columns) - 1
	}
	if m.colCursor < 0 {
		m.colCursor = 0
	}
	height := m.bodyHeight() - 1 // header row
	if height < 1 {
		height = 1
	}
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+height {
		m.offset = m.cursor - height + 1
	}
}

// bodyHeight is the room left after header, filter bar and footer.
func (m Model) bodyHeight() int {
	h := m.height - 4
	if h < 1 {
		return 1
	}
	return h
}

func (m Model) currentLine() (line, bool) {
	if m.cursor < 0 || m.cursor >= len(m.lines) {
		return line{}, false
	}
	return m.lines[m.cursor], true
}

func (m Model) currentColumn() (string, bool) {
	if m.colCursor < 0 || m.colCursor >= len(m.columns) {
		return "", false
	}
	return m.columns[m.colCursor], true
}

// handleKey routes key presses to the active mode.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) && (msg.String() == "ctrl+c" || m.mode == modeTable) {
		return m, tea.Quit
	}
	switch m.mode {
	case modeHelp:
		m.mode = modeTable
		return m, nil
	case modeSearch, modeFilter, modeExport:
		return m.handleInputKey(msg)
	case modeDetail:
		return m.handleDetailKey(msg)
	}
	return m.handleTableKey(msg)
}

func (m Model) handleTableKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	g := m.grid
	var err error

	switch {
	case key.Matches(msg, m.keys.Help):
		m.mode = modeHelp
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		if m.prefsPath != "" {
			if err := prefs.Save(m.prefsPath, prefs.Prefs{Theme: m.theme.Name}); err != nil {
				m.logger.Warn("save theme", zap.Error(err))
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		return m, m.refreshCmd()

	case key.Matches(msg, m.keys.Escape):
		m.link = ""
		err = g.ClearSelection()

	case key.Matches(msg, m.keys.Up):
		m.cursor--
	case key.Matches(msg, m.keys.Down):
		m.cursor++
	case key.Matches(msg, m.keys.Top):
		m.cursor = 0
	case key.Matches(msg, m.keys.Bottom):
		m.cursor = len(m.lines) - 1
	case key.Matches(msg, m.keys.Left):
		m.colCursor--
	case key.Matches(msg, m.keys.Right):
		m.colCursor++
	case key.Matches(msg, m.keys.NextPage):
		if m.info.HasNext {
			err = g.NextPage()
			m.cursor = 0
		}
	case key.Matches(msg, m.keys.PrevPage):
		err = g.PrevPage()
		m.cursor = 0

	case key.Matches(msg, m.keys.Search):
		m.openInput(modeSearch, "/ ", m.st.Search)
		return m, textinput.Blink
	case key.Matches(msg, m.keys.Filter):
		seed := ""
		if col, ok := m.currentColumn(); ok {
			seed = col + " "
		}
		m.openInput(modeFilter, "filter ", seed)
		return m, textinput.Blink
	case key.Matches(msg, m.keys.ClearFilters):
		err = g.ClearFilters()
	case key.Matches(msg, m.keys.Sort), key.Matches(msg, m.keys.SortMulti):
		if col, ok := m.currentColumn(); ok {
			err = g.ToggleSort(col, key.Matches(msg, m.keys.SortMulti))
		}
	case key.Matches(msg, m.keys.MorePerPage):
		err = g.SetPerPage(m.st.PerPage + perPageStep)
	case key.Matches(msg, m.keys.LessPerPage):
		if m.st.PerPage > perPageStep {
			err = g.SetPerPage(m.st.PerPage - perPageStep)
		}

	case key.Matches(msg, m.keys.ToggleColumn):
		if col, ok := m.currentColumn(); ok {
			err = g.ToggleColumn(col)
		}
	case key.Matches(msg, m.keys.CycleView):
		err = g.SetViewMode(nextViewMode(m.st.ViewMode))
		m.cursor = 0
	case key.Matches(msg, m.keys.ToggleGroup):
		if l, ok := m.currentLine(); ok && l.group != nil {
			err = g.ToggleGroup(l.group.ID)
		}
	case key.Matches(msg, m.keys.ExpandAll):
		err = g.ExpandAll()
	case key.Matches(msg, m.keys.CollapseAll):
		err = g.CollapseAll()
	case key.Matches(msg, m.keys.Reset):
		err = g.ResetState()
		m.cursor, m.colCursor = 0, 0
	case key.Matches(msg, m.keys.CopyLink):
		m.link = "?" + g.Location().Encode()

	case key.Matches(msg, m.keys.Detail):
		if l, ok := m.currentLine(); ok {
			if l.group != nil {
				err = g.ToggleGroup(l.group.ID)
				break
			}
			id := l.record.ID(g.IDField())
			m.mode = modeDetail
			m.detail.SetContent(m.theme.Styles().MutedText.Render("Loading " + id + "..."))
			return m, m.detailCmd(id)
		}

	case key.Matches(msg, m.keys.Select):
		if l, ok := m.currentLine(); ok && l.record != nil {
			err = g.ToggleRow(l.record.ID(g.IDField()))
			m.cursor++
		}
	case key.Matches(msg, m.keys.SelectAll):
		err = g.SelectAll()
	case key.Matches(msg, m.keys.Delete):
		if len(m.st.SelectedRows) == 0 {
			notify.Notifyf(m.toasts, notify.Warning, "Select rows first")
			return m, nil
		}
		m.busy = "delete"
		return m, m.bulkCmd("delete")
	case key.Matches(msg, m.keys.Export):
		m.openInput(modeExport, "export query as ", "csv")
		m.exportScope = grid.ScopeQuery
		return m, textinput.Blink
	case key.Matches(msg, m.keys.ExportSel):
		m.openInput(modeExport, "export selection as ", "csv")
		m.exportScope = grid.ScopeSelected
		return m, textinput.Blink
	}

	if err != nil {
		m.logger.Debug("grid mutation failed", zap.Error(err))
	}
	m.sync()
	return m, nil
}

func nextViewMode(current state.ViewMode) state.ViewMode {
	switch current {
	case state.ViewFlat:
		return state.ViewGrouped
	case state.ViewGrouped:
		return state.ViewMatrix
	default:
		return state.ViewFlat
	}
}

func (m *Model) openInput(md mode, prompt, value string) {
	m.mode = md
	m.input.Prompt = prompt
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.input.Focus()
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeTable
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		value := m.input.Value()
		md := m.mode
		m.mode = modeTable
		m.input.Blur()
		return m.submitInput(md, value)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.mode == modeSearch {
		if err := m.grid.SetSearchDebounced(m.input.Value()); err != nil {
			m.logger.Debug("search", zap.Error(err))
		}
	}
	return m, cmd
}

func (m Model) submitInput(md mode, value string) (tea.Model, tea.Cmd) {
	switch md {
	case modeSearch:
		if err := m.grid.SetSearch(value); err != nil {
			m.logger.Debug("search", zap.Error(err))
		}
		m.cursor = 0
	case modeFilter:
		f, err := parseFilter(value, m.grid.Columns())
		if err != nil {
			notify.Notifyf(m.toasts, notify.Warning, "%v", err)
			return m, nil
		}
		if err := m.grid.AddFilter(f); err != nil {
			m.logger.Debug("add filter", zap.Error(err))
		}
		m.cursor = 0
	case modeExport:
		m.busy = "export"
		return m, m.exportCmd(value, m.exportScope)
	}
	m.sync()
	return m, nil
}

func (m Model) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Escape) || key.Matches(msg, m.keys.Quit) || msg.Type == tea.KeyEnter {
		m.mode = modeTable
		return m, nil
	}
	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

// detailFields orders record fields: declared columns first, then the rest.
func (m Model) detailFields(rec crud.Record) []string {
	return detailOrder(m.grid.Columns(), rec)
}

// Messages

type tickMsg time.Time

type detailMsg struct {
	id     string
	record crud.Record
	err    error
}

type actionDoneMsg struct {
	name string
	err  error
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) refreshCmd() tea.Cmd {
	if m.refresh != nil {
		m.refresh()
		return nil
	}
	g, ctx := m.grid, m.ctx
	return func() tea.Msg {
		return actionDoneMsg{name: "refresh", err: g.Refresh(ctx)}
	}
}

func (m Model) detailCmd(id string) tea.Cmd {
	g, ctx := m.grid, m.ctx
	return func() tea.Msg {
		rec, err := g.FetchDetail(ctx, id)
		return detailMsg{id: id, record: rec, err: err}
	}
}

func (m Model) bulkCmd(action string) tea.Cmd {
	g, parent := m.grid, m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, actionTimeout)
		defer cancel()
		_, err := g.RunBulkAction(ctx, action)
		return actionDoneMsg{name: action, err: err}
	}
}

func (m Model) exportCmd(format, scope string) tea.Cmd {
	g, ctx, toasts := m.grid, m.ctx, m.toasts
	return func() tea.Msg {
		// Polling is bounded by the export's own poll timeout.
		out, err := g.Export(ctx, format, scope)
		if err == nil && len(out.Body) > 0 {
			if err = saveExport(out); err != nil {
				notify.Notifyf(toasts, notify.Error, "%v", err)
			}
		}
		return actionDoneMsg{name: "export", err: err}
	}
}

// Run starts the Bubble Tea program.
func Run(opts Options) error {
	m := New(opts)
	progOpts := []tea.ProgramOption{tea.WithAltScreen()}
	if opts.Context != nil {
		progOpts = append(progOpts, tea.WithContext(opts.Context))
	}
	_, err := tea.NewProgram(m, progOpts...).Run()
	if errors.Is(err, tea.ErrProgramKilled) && opts.Context != nil && opts.Context.Err() != nil {
		return nil
	}
	return err
}
