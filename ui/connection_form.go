package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/farbodahm/sqldash/warehouse"
)

// ConnectionFormData is what the connection dialog edits. ID is zero for a
// new connection.
type ConnectionFormData struct {
	ID     int64
	Name   string
	Config warehouse.Config
}

var sslModes = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}

type ConnectionForm struct {
	id int64

	name     *widget.Entry
	kind     *widget.Select
	host     *widget.Entry
	port     *widget.Entry
	database *widget.Entry
	user     *widget.Entry
	password *widget.Entry
	sslMode  *widget.Select
	project  *widget.SelectEntry
	dataset  *widget.SelectEntry
	status   *widget.Label

	pgItems []*widget.FormItem
	bqItems []*widget.FormItem
	form    *widget.Form

	// OnTest pings the configuration. ListProjects and ListDatasets fill
	// the BigQuery pickers; they may be nil.
	OnTest       func(cfg warehouse.Config) error
	ListProjects func() ([]string, error)
	ListDatasets func(project string) ([]string, error)

	Container fyne.CanvasObject
}

func NewConnectionForm(kinds []string, data ConnectionFormData) *ConnectionForm {
	f := &ConnectionForm{
		id:       data.ID,
		name:     widget.NewEntry(),
		host:     widget.NewEntry(),
		port:     widget.NewEntry(),
		database: widget.NewEntry(),
		user:     widget.NewEntry(),
		password: widget.NewPasswordEntry(),
		sslMode:  widget.NewSelect(sslModes, nil),
		project:  widget.NewSelectEntry(nil),
		dataset:  widget.NewSelectEntry(nil),
		status:   widget.NewLabel(""),
	}
	f.status.Wrapping = fyne.TextWrapWord

	cfg := data.Config
	f.name.SetText(data.Name)
	f.name.SetPlaceHolder("Connection name")
	f.host.SetText(cfg.Host)
	f.host.SetPlaceHolder("localhost")
	if cfg.Port != 0 {
		f.port.SetText(strconv.Itoa(cfg.Port))
	}
	f.port.SetPlaceHolder("5432")
	f.database.SetText(cfg.Database)
	f.user.SetText(cfg.User)
	f.password.SetText(cfg.Password)
	f.sslMode.SetSelected(cfg.SSLMode)
	f.sslMode.PlaceHolder = "prefer"
	f.project.SetText(cfg.Project)
	f.project.SetPlaceHolder("GCP project ID")
	f.dataset.SetText(cfg.Dataset)
	f.project.OnChanged = func(string) {
		f.dataset.SetOptions(nil)
	}

	loadProjects := widget.NewButton("Load", f.loadProjects)
	loadDatasets := widget.NewButton("Load", f.loadDatasets)

	f.pgItems = []*widget.FormItem{
		widget.NewFormItem("Host", f.host),
		widget.NewFormItem("Port", f.port),
		widget.NewFormItem("Database", f.database),
		widget.NewFormItem("User", f.user),
		widget.NewFormItem("Password", f.password),
		widget.NewFormItem("SSL mode", f.sslMode),
	}
	f.bqItems = []*widget.FormItem{
		widget.NewFormItem("Project", container.NewBorder(nil, nil, nil, loadProjects, f.project)),
		widget.NewFormItem("Dataset", container.NewBorder(nil, nil, nil, loadDatasets, f.dataset)),
	}

	f.form = widget.NewForm()
	f.kind = widget.NewSelect(kinds, f.showKind)

	testBtn := widget.NewButton("Test Connection", f.test)
	f.Container = container.NewBorder(nil, container.NewVBox(testBtn, f.status), nil, nil, f.form)

	kind := cfg.Kind
	if kind == "" && len(kinds) > 0 {
		kind = kinds[0]
	}
	f.kind.Selected = kind
	f.showKind(kind)
	return f
}

func (f *ConnectionForm) showKind(kind string) {
	items := []*widget.FormItem{
		widget.NewFormItem("Name", f.name),
		widget.NewFormItem("Kind", f.kind),
	}
	switch kind {
	case warehouse.KindPostgres:
		items = append(items, f.pgItems...)
	case warehouse.KindBigQuery:
		items = append(items, f.bqItems...)
	}
	f.form.Items = items
	f.form.Refresh()
	f.status.SetText("")
}

// Data reads the form. It fails when the name is empty or the configuration
// is incomplete for its kind.
func (f *ConnectionForm) Data() (ConnectionFormData, error) {
	cfg, err := f.config()
	if err != nil {
		return ConnectionFormData{}, err
	}
	name := strings.TrimSpace(f.name.Text)
	if name == "" {
		return ConnectionFormData{}, errors.New("connection name is required")
	}
	if err := cfg.Validate(); err != nil {
		return ConnectionFormData{}, err
	}
	return ConnectionFormData{ID: f.id, Name: name, Config: cfg}, nil
}

func (f *ConnectionForm) config() (warehouse.Config, error) {
	cfg := warehouse.Config{Kind: f.kind.Selected}
	switch cfg.Kind {
	case warehouse.KindPostgres:
		if p := strings.TrimSpace(f.port.Text); p != "" {
			n, err := strconv.Atoi(p)
			if err != nil {
				return cfg, fmt.Errorf("invalid port %q", p)
			}
			cfg.Port = n
		}
		cfg.Host = strings.TrimSpace(f.host.Text)
		cfg.Database = strings.TrimSpace(f.database.Text)
		cfg.User = strings.TrimSpace(f.user.Text)
		cfg.Password = f.password.Text
		cfg.SSLMode = f.sslMode.Selected
	case warehouse.KindBigQuery:
		cfg.Project = strings.TrimSpace(f.project.Text)
		cfg.Dataset = strings.TrimSpace(f.dataset.Text)
	}
	return cfg, nil
}

func (f *ConnectionForm) setStatus(text string) {
	fyne.Do(func() { f.status.SetText(text) })
}

func (f *ConnectionForm) test() {
	data, err := f.Data()
	if err != nil {
		f.setStatus(err.Error())
		return
	}
	if f.OnTest == nil {
		return
	}
	f.setStatus("Connecting...")
	go func() {
		if err := f.OnTest(data.Config); err != nil {
			f.setStatus("Failed: " + err.Error())
			return
		}
		f.setStatus("Connection OK")
	}()
}

func (f *ConnectionForm) loadProjects() {
	if f.ListProjects == nil {
		return
	}
	f.setStatus("Loading projects...")
	go func() {
		projects, err := f.ListProjects()
		if err != nil {
			f.setStatus("Failed to list projects: " + err.Error())
			return
		}
		fyne.Do(func() {
			f.project.SetOptions(projects)
			f.status.SetText(fmt.Sprintf("%d projects", len(projects)))
		})
	}()
}

func (f *ConnectionForm) loadDatasets() {
	project := strings.TrimSpace(f.project.Text)
	if f.ListDatasets == nil || project == "" {
		return
	}
	f.setStatus("Loading datasets...")
	go func() {
		datasets, err := f.ListDatasets(project)
		if err != nil {
			f.setStatus("Failed to list datasets: " + err.Error())
			return
		}
		fyne.Do(func() {
			f.dataset.SetOptions(datasets)
			f.status.SetText(fmt.Sprintf("%d datasets in %s", len(datasets), project))
		})
	}()
}

// ShowDialog opens the form in a dialog and passes valid data to onSave.
// Invalid data keeps the dialog open with the error shown.
func (f *ConnectionForm) ShowDialog(title string, win fyne.Window, onSave func(ConnectionFormData)) {
	var d dialog.Dialog
	save := widget.NewButton("Save", func() {
		data, err := f.Data()
		if err != nil {
			f.status.SetText(err.Error())
			return
		}
		d.Hide()
		onSave(data)
	})
	save.Importance = widget.HighImportance
	cancel := widget.NewButton("Cancel", func() { d.Hide() })

	content := container.NewBorder(nil, container.NewGridWithColumns(2, cancel, save), nil, nil, f.Container)
	d = dialog.NewCustomWithoutButtons(title, content, win)
	d.Resize(fyne.NewSize(480, 0))
	d.Show()
}
