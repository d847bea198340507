package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/farbodahm/sqldash/config"
	"github.com/farbodahm/sqldash/logging"
	"github.com/farbodahm/sqldash/placeholder"
	"github.com/farbodahm/sqldash/store"
	"github.com/farbodahm/sqldash/ui"
	"github.com/farbodahm/sqldash/warehouse"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

// setup loads the configuration and initializes the global logger.
func (o *rootOptions) setup() (*config.Config, logr.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, logr.Discard(), err
	}
	level := cfg.Log.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return nil, logr.Discard(), err
	}
	return cfg, *logging.Get(lvl, cfg.Log.Path), nil
}

// openBackend opens the local store and a warehouse manager for
// subcommands that talk to saved connections.
func (o *rootOptions) openBackend() (*store.Store, *warehouse.Manager, *config.Config, error) {
	cfg, log, err := o.setup()
	if err != nil {
		return nil, nil, nil, err
	}
	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	return st, newManager(cfg, log), cfg, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "sqldash",
		Short:         "SQL report editor with ${table} and ${table.column} suggestions",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.setup()
			if err != nil {
				return err
			}
			return runGUI(logging.WithLogger(cmd.Context(), &log), cfg)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default: <user config dir>/sqldash/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	cmd.AddCommand(
		newSuggestCmd(),
		newResolveCmd(),
		newSchemaCmd(opts),
		newConnectionsCmd(opts),
		newRunCmd(opts),
	)
	return cmd
}

type suggestOptions struct {
	caret     int // -1 means end of text
	selectIdx int // -1 means list only
	autoClose bool
	measurer  placeholder.GridMeasurer
}

func newSuggestCmd() *cobra.Command {
	var (
		schemaPath string
		opts       = suggestOptions{measurer: placeholder.GridMeasurer{TabWidth: 4}}
	)
	cmd := &cobra.Command{
		Use:   "suggest TEXT",
		Short: "Show placeholder suggestions for TEXT at a caret position",
		Long: `Runs the suggestion engine against a schema file and prints the
candidates and the popup anchor. With --select the chosen candidate is
accepted and the resulting text and caret are printed.`,
		Example: `  sqldash suggest --schema schema.yaml 'SELECT ${us'
  sqldash suggest --schema schema.json --select 0 'SELECT ${users.'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := loadSchemaFile(cmd.Context(), schemaPath)
			if err != nil {
				return err
			}
			return runSuggest(cmd.OutOrStdout(), args[0], idx, opts)
		},
	}
	cmd.Flags().StringVar(&schemaPath, "schema", "", "schema file, JSON or YAML by extension")
	cmd.Flags().IntVar(&opts.caret, "caret", -1, "caret byte offset (default: end of text)")
	cmd.Flags().IntVar(&opts.selectIdx, "select", -1, "accept the suggestion at this index")
	cmd.Flags().BoolVar(&opts.autoClose, "auto-close", false, "close accepted placeholders with }")
	cmd.Flags().IntVar(&opts.measurer.Columns, "columns", 0, "wrap width in cells (0: no wrapping)")
	cmd.Flags().Float32Var(&opts.measurer.CellWidth, "cell-width", 8, "cell width in pixels")
	cmd.Flags().Float32Var(&opts.measurer.LineHeight, "line-height", 16, "line height in pixels")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}

// loadSchemaFile reads a schema snapshot; .yaml and .yml files are parsed
// as YAML, everything else as JSON. Malformed entries are logged and
// skipped, only an unreadable file is an error.
func loadSchemaFile(ctx context.Context, path string) (*placeholder.SchemaIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	var idx *placeholder.SchemaIndex
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		idx, err = placeholder.ParseSchemaYAML(data)
	default:
		idx, err = placeholder.ParseSchemaJSON(data)
	}
	if err != nil {
		if !errors.Is(err, placeholder.ErrMalformedSchema) {
			return nil, err
		}
		logging.FromContext(ctx).Info("skipped malformed schema entries", "path", path, "error", err.Error(), "tables", idx.Len())
	}
	return idx, nil
}

func runSuggest(w io.Writer, text string, idx *placeholder.SchemaIndex, opts suggestOptions) error {
	caret := opts.caret
	if caret < 0 {
		caret = len(text)
	}
	ed := placeholder.NewEditor(
		placeholder.WithMeasurer(opts.measurer),
		placeholder.WithAutoClose(opts.autoClose),
	)
	ed.SetSchema(idx)
	ed.TextChanged(text, caret)

	st := ed.State()
	if !st.Suggesting() {
		_, _ = fmt.Fprintln(w, "(no suggestions)")
		if opts.selectIdx >= 0 {
			return errors.New("nothing to select")
		}
		return nil
	}
	for i, s := range st.Suggestions {
		_, _ = fmt.Fprintf(w, "%d\t%s\n", i, s)
	}
	_, _ = fmt.Fprintf(w, "anchor: %g,%g\n", st.Anchor.X, st.Anchor.Y)

	if opts.selectIdx < 0 {
		return nil
	}
	if !ed.Click(opts.selectIdx) {
		return fmt.Errorf("no suggestion at index %d", opts.selectIdx)
	}
	st = ed.State()
	_, _ = fmt.Fprintf(w, "text: %s\ncaret: %d\n", st.Text, st.Caret)
	return nil
}

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [QUERY]",
		Short: "Print QUERY with placeholders replaced by their identifiers",
		Long:  "Reads the query from the argument, or from stdin when none is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var query string
			if len(args) == 1 {
				query = args[0]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				query = string(data)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), placeholder.Resolve(query))
			return err
		},
	}
}

func newSchemaCmd(root *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "schema CONNECTION",
		Short: "Introspect a saved connection and print its schema snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, mgr, _, err := root.openBackend()
			if err != nil {
				return err
			}
			defer st.Close()
			defer mgr.Close()

			conn, err := st.GetConnectionByName(args[0])
			if err != nil {
				return err
			}
			idx, err := mgr.Schema(cmd.Context(), conn.ID, connectionConfig(conn))
			if err != nil {
				return err
			}
			return writeSchema(cmd.OutOrStdout(), idx, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or table")
	return cmd
}

func writeSchema(w io.Writer, idx *placeholder.SchemaIndex, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(idx)
	case "table":
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Table", "Columns"})
		for _, tbl := range idx.Tables() {
			t.AppendRow(table.Row{tbl.Name, strings.Join(tbl.Columns, ", ")})
		}
		t.Render()
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func newConnectionsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "connections",
		Short: "List saved connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := root.setup()
			if err != nil {
				return err
			}
			st, err := store.New(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			conns, err := st.ListConnections()
			if err != nil {
				return err
			}
			writeConnections(cmd.OutOrStdout(), conns)
			return nil
		},
	}
}

func writeConnections(w io.Writer, conns []store.Connection) {
	if len(conns) == 0 {
		_, _ = fmt.Fprintln(w, "(no connections)")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Name", "Kind", "Target"})
	for _, c := range conns {
		t.AppendRow(table.Row{c.Name, c.Kind, connectionTarget(c)})
	}
	t.Render()
}

// connectionTarget is a short, password-free description of where c points.
func connectionTarget(c store.Connection) string {
	switch c.Kind {
	case warehouse.KindBigQuery:
		return c.Project + "." + c.Dataset
	default:
		if c.Port != 0 {
			return fmt.Sprintf("%s@%s:%d/%s", c.User, c.Host, c.Port, c.Database)
		}
		return fmt.Sprintf("%s@%s/%s", c.User, c.Host, c.Database)
	}
}

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		reportName string
		format     string
	)
	cmd := &cobra.Command{
		Use:   "run CONNECTION [QUERY]",
		Short: "Run a query or saved report on a saved connection",
		Example: `  sqldash run shop 'SELECT ${users.name} FROM ${users}'
  sqldash run shop --report "Active users"`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, mgr, cfg, err := root.openBackend()
			if err != nil {
				return err
			}
			defer st.Close()
			defer mgr.Close()

			conn, err := st.GetConnectionByName(args[0])
			if err != nil {
				return err
			}
			query, err := queryToRun(st, conn.ID, args[1:], reportName)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Query.Timeout)
			defer cancel()
			start := time.Now()
			res, err := mgr.Run(ctx, conn.ID, connectionConfig(conn), query)
			recordHistory(st, query, conn.Name, time.Since(start), res, err)
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), res, format)
		},
	}
	cmd.Flags().StringVarP(&reportName, "report", "r", "", "run the saved report with this name")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table or json")
	return cmd
}

// queryToRun picks the query from the positional argument or the named
// report of connection connID. Exactly one must be given.
func queryToRun(st *store.Store, connID int64, args []string, reportName string) (string, error) {
	switch {
	case len(args) == 1 && reportName != "":
		return "", errors.New("give either QUERY or --report, not both")
	case len(args) == 1:
		return args[0], nil
	case reportName == "":
		return "", errors.New("QUERY or --report is required")
	}
	reports, err := st.ListReports(connID)
	if err != nil {
		return "", err
	}
	for _, r := range reports {
		if r.Name == reportName {
			return r.SQL, nil
		}
	}
	return "", fmt.Errorf("report %q: %w", reportName, store.ErrNotFound)
}

func writeResult(w io.Writer, res *warehouse.Result, format string) error {
	switch format {
	case "json":
		out := make([]map[string]string, len(res.Rows))
		for i, row := range res.Rows {
			m := make(map[string]string, len(res.Columns))
			for j, col := range res.Columns {
				if j < len(row) {
					m[col] = row[j]
				}
			}
			out[i] = m
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "table":
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleLight)
		header := make(table.Row, len(res.Columns))
		for i, c := range res.Columns {
			header[i] = c
		}
		t.AppendHeader(header)
		for _, row := range res.Rows {
			r := make(table.Row, len(row))
			for i, v := range row {
				r[i] = v
			}
			t.AppendRow(r)
		}
		t.Render()
		_, _ = fmt.Fprintln(w, ui.ResultStatus(res))
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
