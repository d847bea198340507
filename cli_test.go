package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farbodahm/sqldash/config"
	"github.com/farbodahm/sqldash/placeholder"
	"github.com/farbodahm/sqldash/store"
	"github.com/farbodahm/sqldash/warehouse"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "sqldash.db")
	return cfg
}

func testLogger() logr.Logger { return logr.Discard() }

func shopIndex() *placeholder.SchemaIndex {
	return placeholder.NewSchemaIndex(
		placeholder.Table{Name: "users", Columns: []string{"id", "name"}},
		placeholder.Table{Name: "orders", Columns: []string{"id", "user_id"}},
	)
}

var testGrid = placeholder.GridMeasurer{CellWidth: 8, LineHeight: 16}

func TestRunSuggest(t *testing.T) {
	tests := []struct {
		name string
		text string
		opts suggestOptions
		want string
	}{
		{
			name: "tables at end of text",
			text: "SELECT ${us",
			opts: suggestOptions{caret: -1, selectIdx: -1, measurer: testGrid},
			want: "0\tusers\nanchor: 88,16\n",
		},
		{
			name: "columns of every matching table",
			text: "${s.i",
			opts: suggestOptions{caret: -1, selectIdx: -1, measurer: testGrid},
			want: "0\tid\n1\tid\n2\tuser_id\nanchor: 40,16\n",
		},
		{
			name: "caret before the placeholder",
			text: "SELECT ${us",
			opts: suggestOptions{caret: 3, selectIdx: -1, measurer: testGrid},
			want: "(no suggestions)\n",
		},
		{
			name: "second line",
			text: "SELECT *\nFROM ${",
			opts: suggestOptions{caret: -1, selectIdx: -1, measurer: testGrid},
			want: "0\tusers\n1\torders\nanchor: 56,32\n",
		},
		{
			name: "select column",
			text: "SELECT ${users.",
			opts: suggestOptions{caret: -1, selectIdx: 1, measurer: testGrid},
			want: "0\tid\n1\tname\nanchor: 120,16\ntext: SELECT ${users.name\ncaret: 19\n",
		},
		{
			name: "selection extends the partial",
			text: "${us",
			opts: suggestOptions{caret: -1, selectIdx: 0, measurer: testGrid},
			want: "0\tusers\nanchor: 32,16\ntext: ${ususers\ncaret: 9\n",
		},
		{
			name: "select with auto close",
			text: "SELECT ${ FROM x",
			opts: suggestOptions{caret: 9, selectIdx: 0, autoClose: true, measurer: testGrid},
			want: "0\tusers\n1\torders\nanchor: 72,16\ntext: SELECT ${users} FROM x\ncaret: 15\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			require.NoError(t, runSuggest(&out, tt.text, shopIndex(), tt.opts))
			assert.Equal(t, tt.want, out.String())
		})
	}
}

func TestRunSuggest_BadSelection(t *testing.T) {
	var out bytes.Buffer
	err := runSuggest(&out, "${us", shopIndex(), suggestOptions{caret: -1, selectIdx: 5, measurer: testGrid})
	assert.ErrorContains(t, err, "no suggestion at index 5")

	out.Reset()
	err = runSuggest(&out, "SELECT 1", shopIndex(), suggestOptions{caret: -1, selectIdx: 0, measurer: testGrid})
	assert.Error(t, err)
}

func TestRunSuggest_MissingMetricsFallsBackToOrigin(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runSuggest(&out, "${or", shopIndex(), suggestOptions{caret: -1, selectIdx: -1}))
	assert.Equal(t, "0\torders\nanchor: 0,0\n", out.String())
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func executeCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSuggestCmd_YAMLSchema(t *testing.T) {
	schema := writeFile(t, "schema.yaml", `
tables:
  users:
    columns: [id, name]
  orders:
    columns: [id, user_id]
`)
	out, err := executeCmd(t, "", "suggest", "--schema", schema, "--select", "1", "--auto-close", "SELECT ${orders.")
	require.NoError(t, err)
	assert.Equal(t, "0\tid\n1\tuser_id\nanchor: 128,16\ntext: SELECT ${orders.user_id}\ncaret: 24\n", out)
}

func TestSuggestCmd_JSONSchemaAndWrapping(t *testing.T) {
	schema := writeFile(t, "schema.json", `{"tables": {"users": {"columns": ["id"]}}}`)
	out, err := executeCmd(t, "", "suggest", "--schema", schema, "--columns", "6", "SELECT ${")
	require.NoError(t, err)
	assert.Equal(t, "0\tusers\nanchor: 24,32\n", out)
}

func TestSuggestCmd_MalformedSchema(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		schema string
		want   string
	}{
		{
			name:   "bad entry skipped",
			file:   "schema.json",
			schema: `{"tables":{"users":{"columns":["id"]},"bad":5}}`,
			want:   "0\tusers\n1\tbad\nanchor: 16,16\n",
		},
		{
			name:   "missing tables",
			file:   "schema.json",
			schema: `{}`,
			want:   "(no suggestions)\n",
		},
		{
			name:   "not json",
			file:   "schema.json",
			schema: `not a schema`,
			want:   "(no suggestions)\n",
		},
		{
			name:   "yaml without tables",
			file:   "schema.yaml",
			schema: "views: []\n",
			want:   "(no suggestions)\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema := writeFile(t, tt.file, tt.schema)
			out, err := executeCmd(t, "", "suggest", "--schema", schema, "${")
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestLoadSchemaFile_KeepsValidTables(t *testing.T) {
	path := writeFile(t, "schema.json", `{"tables":{"users":{"columns":["id"]},"bad":5}}`)
	idx, err := loadSchemaFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, idx.Columns("users"))
}

func TestSuggestCmd_RequiresSchema(t *testing.T) {
	_, err := executeCmd(t, "", "suggest", "${")
	assert.Error(t, err)

	_, err = executeCmd(t, "", "suggest", "--schema", filepath.Join(t.TempDir(), "missing.json"), "${")
	assert.ErrorContains(t, err, "failed to read schema")
}

func TestResolveCmd(t *testing.T) {
	out, err := executeCmd(t, "", "resolve", "SELECT ${ users.id } FROM ${users}")
	require.NoError(t, err)
	assert.Equal(t, "SELECT users.id FROM users\n", out)

	out, err = executeCmd(t, "SELECT ${orders.id} FROM ${orders}", "resolve")
	require.NoError(t, err)
	assert.Equal(t, "SELECT orders.id FROM orders\n", out)
}

func TestConnectionsCmd(t *testing.T) {
	cfg := testConfig(t)
	st, err := store.New(cfg.Store.Path)
	require.NoError(t, err)
	_, err = st.SaveConnection(store.Connection{Name: "shop", Kind: warehouse.KindPostgres, Host: "db", Port: 5432, Database: "shop", User: "app", Password: "secret"})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	configPath := writeFile(t, "config.yaml", "store:\n  path: "+cfg.Store.Path+"\n")
	out, err := executeCmd(t, "", "--config", configPath, "connections")
	require.NoError(t, err)
	assert.Contains(t, out, "shop")
	assert.Contains(t, out, "app@db:5432/shop")
	assert.NotContains(t, out, "secret")
}

func TestConnectionTarget(t *testing.T) {
	assert.Equal(t, "acme.events", connectionTarget(store.Connection{Kind: warehouse.KindBigQuery, Project: "acme", Dataset: "events"}))
	assert.Equal(t, "u@h/d", connectionTarget(store.Connection{Kind: warehouse.KindPostgres, Host: "h", Database: "d", User: "u"}))
}

func TestWriteConnections_Empty(t *testing.T) {
	var out bytes.Buffer
	writeConnections(&out, nil)
	assert.Equal(t, "(no connections)\n", out.String())
}

func TestQueryToRun(t *testing.T) {
	st := newTestStore(t)
	connID, err := st.SaveConnection(store.Connection{Name: "shop", Kind: warehouse.KindPostgres, Host: "h", Database: "d", User: "u"})
	require.NoError(t, err)
	_, err = st.SaveReport(store.Report{Name: "Users", SQL: "SELECT ${users.id} FROM ${users}", ConnectionID: connID})
	require.NoError(t, err)

	q, err := queryToRun(st, connID, []string{"SELECT 1"}, "")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", q)

	q, err = queryToRun(st, connID, nil, "Users")
	require.NoError(t, err)
	assert.Equal(t, "SELECT ${users.id} FROM ${users}", q)

	_, err = queryToRun(st, connID, nil, "Missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = queryToRun(st, connID, []string{"SELECT 1"}, "Users")
	assert.Error(t, err)

	_, err = queryToRun(st, connID, nil, "")
	assert.Error(t, err)
}

func TestWriteResult(t *testing.T) {
	res := &warehouse.Result{
		Columns:  []string{"id", "name"},
		Rows:     [][]string{{"1", "Alice"}, {"2", "Bob"}},
		RowCount: 2,
	}

	var out bytes.Buffer
	require.NoError(t, writeResult(&out, res, "json"))
	var decoded []map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, []map[string]string{{"id": "1", "name": "Alice"}, {"id": "2", "name": "Bob"}}, decoded)

	out.Reset()
	require.NoError(t, writeResult(&out, res, "table"))
	assert.Contains(t, out.String(), "Alice")
	assert.True(t, strings.HasSuffix(out.String(), "2 rows | 0s\n"), out.String())

	assert.Error(t, writeResult(&out, res, "xml"))
}

func TestWriteSchema(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, writeSchema(&out, shopIndex(), "json"))
	idx, err := placeholder.ParseSchemaJSON(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, shopIndex().Tables(), idx.Tables())

	out.Reset()
	require.NoError(t, writeSchema(&out, shopIndex(), "table"))
	assert.Contains(t, out.String(), "id, user_id")
}
