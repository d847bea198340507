package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/go-logr/logr"

	"github.com/farbodahm/sqldash/ai"
	"github.com/farbodahm/sqldash/bq"
	"github.com/farbodahm/sqldash/config"
	"github.com/farbodahm/sqldash/logging"
	"github.com/farbodahm/sqldash/pg"
	"github.com/farbodahm/sqldash/placeholder"
	"github.com/farbodahm/sqldash/store"
	"github.com/farbodahm/sqldash/ui"
	"github.com/farbodahm/sqldash/warehouse"
)

const (
	settingThemeVariant = "theme_variant"
	historyLimit        = 200
	recentLimit         = 20
	schemaTimeout       = 30 * time.Second
	toolResultSummary   = 80
)

type App struct {
	window fyne.Window
	store  *store.Store
	mgr    *warehouse.Manager
	cfg    *config.Config
	log    logr.Logger

	assistantClient *ai.Client
	assistantErr    error

	explorer  *ui.Explorer
	editor    *ui.Editor
	results   *ui.Results
	schema    *ui.SchemaView
	history   *ui.History
	reports   *ui.Reports
	assistant *ui.Assistant

	ctx context.Context

	mu         sync.Mutex
	cancelRun  context.CancelFunc
	cancelChat context.CancelFunc
	conns      map[int64]store.Connection
	schemas    map[int64]*placeholder.SchemaIndex
}

func newManager(cfg *config.Config, log logr.Logger) *warehouse.Manager {
	return warehouse.NewManager(log,
		warehouse.WithLimits(cfg.Query.RowLimit, cfg.Query.MaxRows),
		warehouse.WithOpener(warehouse.KindPostgres, pg.Open),
		warehouse.WithOpener(warehouse.KindBigQuery, bq.Open),
	)
}

// connectionConfig converts a saved connection into what connectors open.
func connectionConfig(c store.Connection) warehouse.Config {
	return warehouse.Config{
		Kind:     c.Kind,
		Host:     c.Host,
		Port:     c.Port,
		Database: c.Database,
		User:     c.User,
		Password: c.Password,
		SSLMode:  c.SSLMode,
		Project:  c.Project,
		Dataset:  c.Dataset,
	}
}

func connectionFromForm(d ui.ConnectionFormData) store.Connection {
	return store.Connection{
		ID:       d.ID,
		Name:     d.Name,
		Kind:     d.Config.Kind,
		Host:     d.Config.Host,
		Port:     d.Config.Port,
		Database: d.Config.Database,
		User:     d.Config.User,
		Password: d.Config.Password,
		SSLMode:  d.Config.SSLMode,
		Project:  d.Config.Project,
		Dataset:  d.Config.Dataset,
	}
}

// selectTemplate builds a starter report for table using placeholders.
func selectTemplate(table string, columns []string) string {
	sel := "*"
	if len(columns) > 0 {
		refs := make([]string, len(columns))
		for i, c := range columns {
			refs[i] = "${" + table + "." + c + "}"
		}
		sel = strings.Join(refs, ",\n       ")
	}
	return fmt.Sprintf("SELECT %s\nFROM ${%s}", sel, table)
}

// recordHistory stores one execution. Failures only get logged.
func recordHistory(st *store.Store, sqlText, connection string, dur time.Duration, res *warehouse.Result, runErr error) {
	var (
		rows   int64
		errStr string
	)
	if runErr != nil {
		errStr = runErr.Error()
	} else if res != nil {
		rows = res.RowCount
	}
	if err := st.AddHistory(sqlText, connection, dur, rows, errStr); err != nil {
		logging.GetGlobalLogger().Error(err, "failed to record history", "connection", connection)
	}
}

func runGUI(ctx context.Context, cfg *config.Config) error {
	log := *logging.FromContext(ctx)
	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer st.Close()

	variant := cfg.UI.Theme
	if saved, err := st.GetSetting(settingThemeVariant); err == nil && saved != "" {
		variant = saved
	}
	appTheme.SetVariant(themeVariant(variant))

	fyneApp := app.NewWithID("com.farbodahm.sqldash")
	fyneApp.Settings().SetTheme(appTheme)

	window := fyneApp.NewWindow("SQLDash")
	window.Resize(fyne.NewSize(1280, 800))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	application := NewApp(ctx, window, st, cfg, log)
	defer application.Close()

	window.SetContent(application.BuildUI())
	application.Load()

	window.ShowAndRun()
	return nil
}

func NewApp(ctx context.Context, window fyne.Window, st *store.Store, cfg *config.Config, log logr.Logger) *App {
	a := &App{
		window:  window,
		store:   st,
		mgr:     newManager(cfg, log),
		cfg:     cfg,
		log:     log.WithName("app"),
		ctx:     ctx,
		conns:   make(map[int64]store.Connection),
		schemas: make(map[int64]*placeholder.SchemaIndex),
	}
	a.assistantClient, a.assistantErr = ai.New(cfg.AI.Model, log.WithName("ai"))
	if a.assistantErr != nil {
		a.log.Info("assistant disabled", "reason", a.assistantErr.Error())
	}

	a.explorer = ui.NewExplorer(log.WithName("explorer"))
	a.editor = ui.NewEditor(ui.QueryEditorOptions{
		MaxVisible: cfg.Editor.MaxVisible,
		AutoClose:  cfg.Editor.AutoClose,
		Logger:     log.WithName("editor"),
	})
	a.results = ui.NewResults()
	a.schema = ui.NewSchemaView()
	a.history = ui.NewHistory()
	a.reports = ui.NewReports()
	a.assistant = ui.NewAssistant()

	a.wireCallbacks()
	return a
}

func (a *App) wireCallbacks() {
	// Explorer
	a.explorer.LoadSchema = a.fetchSchema
	a.explorer.OnConnectionSelected = a.editor.SelectConnection
	a.explorer.OnTableSelected = func(connID int64, table string) {
		a.mu.Lock()
		idx := a.schemas[connID]
		a.mu.Unlock()
		a.editor.OpenReport(ui.ReportDraft{
			SQL:          selectTemplate(table, idx.Columns(table)),
			ConnectionID: connID,
		})
	}
	a.explorer.OnColumnSelected = func(_ int64, table, column string) {
		a.editor.InsertSQL("${" + table + "." + column + "}")
	}
	a.explorer.OnNewConnection = func() {
		a.showConnectionForm("New Connection", ui.ConnectionFormData{})
	}
	a.explorer.OnEditConnection = func(id int64) {
		c, ok := a.connection(id)
		if !ok {
			return
		}
		a.showConnectionForm("Edit Connection", ui.ConnectionFormData{ID: c.ID, Name: c.Name, Config: connectionConfig(c)})
	}
	a.explorer.OnDeleteConnection = a.confirmDeleteConnection

	// Editor
	a.editor.RunQuery = func(connID int64, sql string) {
		go a.runQuery(connID, sql)
	}
	a.editor.OnStop = a.stopQuery
	a.editor.OnSave = a.saveReport
	a.editor.OnConnectionChanged = func(connID int64) {
		go a.loadConnectionSchema(connID)
	}

	// Schema
	a.schema.OnInsert = a.editor.InsertSQL

	// History
	a.history.OnSelect = a.editor.SetSQL
	a.history.OnRefresh = func() {
		go a.refreshHistory()
	}
	a.history.OnClear = func() {
		if err := a.store.ClearHistory(); err != nil {
			a.showError(err)
			return
		}
		go a.refreshRecentConnections()
	}

	// Reports
	a.reports.OnSelect = func(e ui.ReportEntry) {
		a.editor.OpenReport(ui.ReportDraft{ID: e.ID, Name: e.Name, SQL: e.SQL, ConnectionID: e.ConnectionID})
	}
	a.reports.OnDelete = a.confirmDeleteReport
	a.reports.OnRefresh = func() {
		go a.refreshReports()
	}

	// Assistant
	a.assistant.OnSendMessage = func(msg string) {
		a.assistant.AddMessage("user", msg, "")
		go a.chat()
	}
	a.assistant.OnRunSQL = func(sql string) {
		go a.runQuery(a.editor.GetCurrentConnection(), sql)
	}
	a.assistant.OnInsertSQL = a.editor.InsertSQL
	a.assistant.OnNewChat = func() {
		a.mu.Lock()
		if a.cancelChat != nil {
			a.cancelChat()
		}
		a.mu.Unlock()
	}
}

// Load fills the panes from the local store.
func (a *App) Load() {
	go func() {
		a.refreshConnections()
		a.refreshReports()
		a.refreshHistory()
		a.refreshRecentConnections()
	}()
}

func (a *App) connection(id int64) (store.Connection, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.conns[id]
	return c, ok
}

func (a *App) refreshConnections() {
	conns, err := a.store.ListConnections()
	if err != nil {
		a.log.Error(err, "failed to list connections")
		return
	}
	byID := make(map[int64]store.Connection, len(conns))
	opts := make([]ui.ConnectionOption, len(conns))
	for i, c := range conns {
		byID[c.ID] = c
		opts[i] = ui.ConnectionOption{ID: c.ID, Name: c.Name}
	}
	a.mu.Lock()
	a.conns = byID
	a.mu.Unlock()

	a.explorer.SetConnections(opts)
	a.editor.SetConnections(opts)
}

// fetchSchema introspects a connection and hands the snapshot to the
// editor tabs and the schema pane.
func (a *App) fetchSchema(connID int64) (*placeholder.SchemaIndex, error) {
	c, ok := a.connection(connID)
	if !ok {
		return nil, fmt.Errorf("connection %d: %w", connID, store.ErrNotFound)
	}
	ctx, cancel := context.WithTimeout(a.ctx, schemaTimeout)
	defer cancel()
	idx, err := a.mgr.Schema(ctx, connID, connectionConfig(c))
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.schemas[connID] = idx
	a.mu.Unlock()

	a.editor.SetSchema(connID, idx)
	a.schema.SetSchema(c.Name, idx)
	return idx, nil
}

func (a *App) loadConnectionSchema(connID int64) {
	c, ok := a.connection(connID)
	if !ok {
		return
	}
	a.assistant.SetContext(c.Name, c.Kind)
	a.results.SetStatus("Loading schema of " + c.Name + "...")
	idx, err := a.fetchSchema(connID)
	if err != nil {
		a.log.Error(err, "failed to load schema", "connection", c.Name)
		a.results.SetStatus(fmt.Sprintf("Schema error: %v", err))
		return
	}
	a.explorer.CacheSchema(connID, idx)
	a.results.SetStatus(fmt.Sprintf("%s: %d tables", c.Name, idx.Len()))
}

func (a *App) runQuery(connID int64, sqlText string) {
	c, ok := a.connection(connID)
	if !ok {
		a.results.SetStatus("Select a connection first")
		return
	}

	ctx, cancel := context.WithTimeout(a.ctx, a.cfg.Query.Timeout)
	a.mu.Lock()
	if a.cancelRun != nil {
		a.cancelRun()
	}
	a.cancelRun = cancel
	a.mu.Unlock()
	defer cancel()

	a.results.SetStatus("Running query...")
	start := time.Now()
	res, err := a.mgr.Run(ctx, connID, connectionConfig(c), sqlText)
	recordHistory(a.store, sqlText, c.Name, time.Since(start), res, err)

	switch {
	case errors.Is(err, context.Canceled):
		a.results.SetStatus("Query cancelled")
	case err != nil:
		a.results.SetStatus(fmt.Sprintf("Error: %v", err))
	default:
		a.results.SetResult(res)
	}
	a.refreshHistory()
	a.refreshRecentConnections()
}

func (a *App) stopQuery() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancelRun != nil {
		a.cancelRun()
	}
}

func (a *App) refreshHistory() {
	entries, err := a.store.ListHistory(historyLimit)
	if err != nil {
		a.log.Error(err, "failed to list history")
		return
	}
	uiEntries := make([]ui.HistoryEntry, len(entries))
	for i, e := range entries {
		uiEntries[i] = ui.HistoryEntry{
			ID:         e.ID,
			SQL:        e.SQL,
			Connection: e.Connection,
			Timestamp:  e.Timestamp,
			Duration:   e.Duration,
			RowCount:   e.RowCount,
			Error:      e.Error,
		}
	}
	a.history.SetEntries(uiEntries)
}

func (a *App) refreshRecentConnections() {
	names, err := a.store.ListRecentConnections(recentLimit)
	if err != nil {
		a.log.Error(err, "failed to list recent connections")
		return
	}
	a.explorer.SetRecentConnections(names)
}

func (a *App) refreshReports() {
	reports, err := a.store.ListReports(0)
	if err != nil {
		a.log.Error(err, "failed to list reports")
		return
	}
	entries := make([]ui.ReportEntry, len(reports))
	for i, r := range reports {
		c, _ := a.connection(r.ConnectionID)
		entries[i] = ui.ReportEntry{
			ID:           r.ID,
			Name:         r.Name,
			SQL:          r.SQL,
			ConnectionID: r.ConnectionID,
			Connection:   c.Name,
			UpdatedAt:    r.UpdatedAt,
		}
	}
	a.reports.SetEntries(entries)
}

// saveReport stores the draft, asking for a name first when it has none.
func (a *App) saveReport(d ui.ReportDraft) {
	if strings.TrimSpace(d.SQL) == "" {
		return
	}
	if d.Name != "" {
		go a.persistReport(d)
		return
	}

	nameEntry := widget.NewEntry()
	nameEntry.SetPlaceHolder("Report name")
	dialog.ShowForm("Save Report", "Save", "Cancel",
		[]*widget.FormItem{widget.NewFormItem("Name", nameEntry)},
		func(ok bool) {
			name := strings.TrimSpace(nameEntry.Text)
			if !ok || name == "" {
				return
			}
			d.Name = name
			go a.persistReport(d)
		},
		a.window,
	)
}

func (a *App) persistReport(d ui.ReportDraft) {
	id, err := a.store.SaveReport(store.Report{
		ID:           d.ID,
		Name:         d.Name,
		SQL:          d.SQL,
		ConnectionID: d.ConnectionID,
	})
	if err != nil {
		a.showError(err)
		return
	}
	a.editor.MarkSaved(id, d.Name)
	a.refreshReports()
}

func (a *App) confirmDeleteReport(id int64) {
	dialog.ShowConfirm("Delete Report", "Delete this report?", func(ok bool) {
		if !ok {
			return
		}
		if err := a.store.DeleteReport(id); err != nil {
			a.showError(err)
			return
		}
		go a.refreshReports()
	}, a.window)
}

func (a *App) showConnectionForm(title string, data ui.ConnectionFormData) {
	f := ui.NewConnectionForm(a.mgr.Kinds(), data)
	f.OnTest = func(cfg warehouse.Config) error {
		ctx, cancel := context.WithTimeout(a.ctx, schemaTimeout)
		defer cancel()
		return a.mgr.Ping(ctx, cfg)
	}
	f.ListProjects = func() ([]string, error) {
		ctx, cancel := context.WithTimeout(a.ctx, schemaTimeout)
		defer cancel()
		return bq.ListProjects(ctx)
	}
	f.ListDatasets = func(project string) ([]string, error) {
		ctx, cancel := context.WithTimeout(a.ctx, schemaTimeout)
		defer cancel()
		return bq.ListProjectDatasets(ctx, project)
	}
	f.ShowDialog(title, a.window, func(d ui.ConnectionFormData) {
		go a.saveConnection(d)
	})
}

func (a *App) saveConnection(d ui.ConnectionFormData) {
	id, err := a.store.SaveConnection(connectionFromForm(d))
	if err != nil {
		a.showError(err)
		return
	}
	a.mgr.Forget(id)
	a.explorer.Forget(id)
	a.refreshConnections()
	a.refreshReports()
	a.editor.SelectConnection(id)
	a.loadConnectionSchema(id)
}

func (a *App) confirmDeleteConnection(id int64) {
	c, ok := a.connection(id)
	if !ok {
		return
	}
	msg := fmt.Sprintf("Delete connection %q? Its reports are deleted too.", c.Name)
	dialog.ShowConfirm("Delete Connection", msg, func(ok bool) {
		if !ok {
			return
		}
		go func() {
			if err := a.store.DeleteConnection(id); err != nil {
				a.showError(err)
				return
			}
			a.mgr.Forget(id)
			a.explorer.Forget(id)
			a.mu.Lock()
			delete(a.schemas, id)
			a.mu.Unlock()
			a.schema.Clear()
			a.refreshConnections()
			a.refreshReports()
		}()
	}, a.window)
}

// chat sends the conversation to the model with tools bound to the
// current tab's connection.
func (a *App) chat() {
	if a.assistantClient == nil {
		a.assistant.AddMessage("assistant", "The assistant is unavailable: "+a.assistantErr.Error(), "")
		return
	}

	connID := a.editor.GetCurrentConnection()
	c, ok := a.connection(connID)
	if !ok {
		a.assistant.AddMessage("assistant", "Select a connection first so I can see its schema.", "")
		return
	}
	cfg := connectionConfig(c)

	ctx, cancel := context.WithCancel(a.ctx)
	a.mu.Lock()
	if a.cancelChat != nil {
		a.cancelChat()
	}
	a.cancelChat = cancel
	a.mu.Unlock()
	defer cancel()

	msgs := a.assistant.Messages()
	history := make([]ai.Message, len(msgs))
	for i, m := range msgs {
		history[i] = ai.Message{Role: m.Role, Content: m.Content}
	}

	executor := ai.ToolExecutor{
		Schema: func(ctx context.Context) (*placeholder.SchemaIndex, error) {
			return a.mgr.Schema(ctx, connID, cfg)
		},
		RunSQL: func(ctx context.Context, sql string) (*warehouse.Result, error) {
			return a.mgr.Run(ctx, connID, cfg, sql)
		},
	}
	onToolCall := func(info ai.ToolCallInfo, result string, isError bool) {
		if len(result) > toolResultSummary {
			result = result[:toolResultSummary] + "..."
		}
		a.assistant.AddToolCallMessage(info.Name, info.Input, result, isError)
	}

	res, err := a.assistantClient.ChatWithTools(ctx, ai.SystemPrompt(c.Name, c.Kind), history, executor, a.assistant.SetStatus, onToolCall)
	a.assistant.SetStatus("")
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			a.assistant.AddMessage("assistant", "Error: "+err.Error(), "")
		}
		return
	}
	a.assistant.AddMessage("assistant", res.Response, ui.ExtractSQL(res.Response))
}

func (a *App) toggleTheme() {
	name := "dark"
	if appTheme.Variant() == theme.VariantDark {
		name = "light"
	}
	appTheme.SetVariant(themeVariant(name))
	if err := a.store.SetSetting(settingThemeVariant, name); err != nil {
		a.log.Error(err, "failed to persist theme")
	}
	fyne.CurrentApp().Settings().SetTheme(appTheme)
}

func (a *App) runCurrent() {
	connID := a.editor.GetCurrentConnection()
	sql := a.editor.GetCurrentSQL()
	if connID != 0 && sql != "" {
		go a.runQuery(connID, sql)
	}
}

func (a *App) BuildUI() fyne.CanvasObject {
	// Bottom tabs: Results | Schema | History | Reports
	bottomTabs := container.NewAppTabs(
		container.NewTabItem("Results", a.results.Container),
		container.NewTabItem("Schema", a.schema.Container),
		container.NewTabItem("History", a.history.Container),
		container.NewTabItem("Reports", a.reports.Container),
	)

	centerSplit := container.NewVSplit(a.editor.Container, bottomTabs)
	centerSplit.Offset = 0.45

	rightSplit := container.NewHSplit(centerSplit, a.assistant.Container)
	rightSplit.Offset = 0.72

	mainSplit := container.NewHSplit(a.explorer.Container, rightSplit)
	mainSplit.Offset = 0.2

	runBtn := widget.NewButtonWithIcon("Run", theme.Icon(theme.IconNameMediaPlay), a.runCurrent)
	runBtn.Importance = widget.HighImportance

	stopBtn := widget.NewButtonWithIcon("Stop", theme.Icon(theme.IconNameMediaStop), a.stopQuery)
	stopBtn.Importance = widget.DangerImportance

	toolbar := container.NewHBox(
		runBtn,
		stopBtn,
		widget.NewButtonWithIcon("Save Report", theme.Icon(theme.IconNameDocumentSave), func() {
			a.saveReport(a.editor.CurrentReport())
		}),
		widget.NewButtonWithIcon("New Connection", theme.Icon(theme.IconNameContentAdd), func() {
			a.showConnectionForm("New Connection", ui.ConnectionFormData{})
		}),
		layout.NewSpacer(),
		widget.NewButtonWithIcon("", theme.Icon(theme.IconNameColorPalette), a.toggleTheme),
	)

	a.window.Canvas().AddShortcut(
		&desktop.CustomShortcut{KeyName: fyne.KeyReturn, Modifier: fyne.KeyModifierControl},
		func(fyne.Shortcut) { a.runCurrent() },
	)
	a.window.Canvas().AddShortcut(
		&desktop.CustomShortcut{KeyName: fyne.KeyS, Modifier: fyne.KeyModifierShortcutDefault},
		func(fyne.Shortcut) { a.saveReport(a.editor.CurrentReport()) },
	)

	return container.NewBorder(toolbar, nil, nil, nil, mainSplit)
}

func (a *App) showError(err error) {
	a.log.Error(err, "operation failed")
	fyne.Do(func() {
		dialog.ShowError(err, a.window)
	})
}

func (a *App) Close() {
	a.mu.Lock()
	if a.cancelRun != nil {
		a.cancelRun()
	}
	if a.cancelChat != nil {
		a.cancelChat()
	}
	a.mu.Unlock()
	a.mgr.Close()
}
