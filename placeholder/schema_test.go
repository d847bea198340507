package placeholder

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSchemaIndexOrderAndDuplicates(t *testing.T) {
	idx := NewSchemaIndex(
		Table{Name: "zeta", Columns: []string{"a"}},
		Table{Name: "alpha", Columns: []string{"b"}},
		Table{Name: "zeta", Columns: []string{"c", "d"}},
	)
	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, []string{"zeta", "alpha"}, idx.TableNames())
	assert.Equal(t, []string{"c", "d"}, idx.Columns("zeta"))
	assert.Nil(t, idx.Columns("missing"))
}

func TestSchemaIndexNil(t *testing.T) {
	var idx *SchemaIndex
	assert.True(t, idx.IsEmpty())
	assert.Nil(t, idx.TableNames())
	assert.Nil(t, idx.Tables())
	assert.Nil(t, idx.Columns("x"))
}

func TestSchemaIndexDoesNotAlias(t *testing.T) {
	cols := []string{"id"}
	idx := NewSchemaIndex(Table{Name: "t", Columns: cols})
	cols[0] = "changed"
	assert.Equal(t, []string{"id"}, idx.Columns("t"))

	got := idx.Columns("t")
	got[0] = "changed"
	assert.Equal(t, []string{"id"}, idx.Columns("t"))
}

func TestParseSchemaJSONKeepsOrder(t *testing.T) {
	data := []byte(`{"tables": {
		"users":  {"columns": ["id", "name"]},
		"orders": {"columns": ["id", "user_id"]},
		"audit":  {"columns": []}
	}}`)
	idx, err := ParseSchemaJSON(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"users", "orders", "audit"}, idx.TableNames())
	assert.Equal(t, []string{"id", "user_id"}, idx.Columns("orders"))
	assert.Empty(t, idx.Columns("audit"))
}

func TestParseSchemaJSONIgnoresOtherKeys(t *testing.T) {
	idx, err := ParseSchemaJSON([]byte(`{"version": 2, "meta": {"a": [1]}, "tables": {"t": {"columns": ["c"]}}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"t"}, idx.TableNames())
}

func TestParseSchemaJSONMalformed(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		tables []string
	}{
		{name: "empty input", data: ``},
		{name: "not an object", data: `[1, 2]`},
		{name: "missing tables", data: `{"other": {}}`},
		{name: "tables is an array", data: `{"tables": ["users"]}`},
		{name: "truncated", data: `{"tables": {"users": {"columns": ["id"`},
		{name: "columns not an array", data: `{"tables": {"users": {"columns": "id"}, "orders": {"columns": ["id"]}}}`, tables: []string{"users", "orders"}},
		{name: "entry not an object", data: `{"tables": {"users": 3}}`, tables: []string{"users"}},
		{name: "non-string column", data: `{"tables": {"users": {"columns": ["id", 7, "name"]}}}`, tables: []string{"users"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, err := ParseSchemaJSON([]byte(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedSchema)
			require.NotNil(t, idx)
			if tt.tables == nil {
				assert.True(t, idx.IsEmpty())
				return
			}
			assert.Equal(t, tt.tables, idx.TableNames())
		})
	}
}

func TestParseSchemaJSONPartialColumns(t *testing.T) {
	idx, _ := ParseSchemaJSON([]byte(`{"tables": {"users": {"columns": ["id", 7, "name"]}, "x": {"columns": "id"}}}`))
	assert.Equal(t, []string{"id", "name"}, idx.Columns("users"))
	assert.Empty(t, idx.Columns("x"))
	assert.Empty(t, Suggest(Parse("${x.", 4), idx))
}

func TestParseSchemaYAML(t *testing.T) {
	data := []byte(`
tables:
  users:
    columns: [id, name]
  orders:
    columns:
      - id
      - user_id
  broken:
    columns: id
`)
	idx, err := ParseSchemaYAML(data)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedSchema)
	assert.Equal(t, []string{"users", "orders", "broken"}, idx.TableNames())
	assert.Equal(t, []string{"id", "user_id"}, idx.Columns("orders"))
	assert.Empty(t, idx.Columns("broken"))
}

func TestParseSchemaYAMLMissingTables(t *testing.T) {
	for _, data := range []string{"", "tables: 3", "- a\n- b", "tables: [a"} {
		idx, err := ParseSchemaYAML([]byte(data))
		assert.ErrorIs(t, err, ErrMalformedSchema, "input %q", data)
		assert.True(t, idx.IsEmpty())
	}
}

func TestSchemaIndexMarshalJSON(t *testing.T) {
	idx := NewSchemaIndex(
		Table{Name: "users", Columns: []string{"id", "name"}},
		Table{Name: "empty"},
	)
	data, err := json.Marshal(idx)
	require.NoError(t, err)
	assert.Equal(t, `{"tables":{"users":{"columns":["id","name"]},"empty":{"columns":[]}}}`, string(data))

	back, err := ParseSchemaJSON(data)
	require.NoError(t, err)
	assert.Equal(t, idx.Tables(), back.Tables())
}
