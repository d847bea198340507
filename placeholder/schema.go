package placeholder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Table is one entry of a SchemaIndex.
type Table struct {
	Name    string   `json:"name" yaml:"name"`
	Columns []string `json:"columns" yaml:"columns"`
}

// SchemaIndex maps table names to their columns, keeping insertion order.
// It is a read-only snapshot; callers replace it wholesale instead of
// editing it. A nil *SchemaIndex is a valid empty index.
type SchemaIndex struct {
	tables []Table
	byName map[string]int
}

// NewSchemaIndex builds an index from tables in the given order. A repeated
// name replaces the earlier columns but keeps the earlier position.
func NewSchemaIndex(tables ...Table) *SchemaIndex {
	idx := &SchemaIndex{byName: make(map[string]int, len(tables))}
	for _, t := range tables {
		idx.add(t.Name, t.Columns)
	}
	return idx
}

func (s *SchemaIndex) add(name string, cols []string) {
	cp := make([]string, len(cols))
	copy(cp, cols)
	if i, ok := s.byName[name]; ok {
		s.tables[i].Columns = cp
		return
	}
	s.byName[name] = len(s.tables)
	s.tables = append(s.tables, Table{Name: name, Columns: cp})
}

// Len returns the number of tables.
func (s *SchemaIndex) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tables)
}

func (s *SchemaIndex) IsEmpty() bool { return s.Len() == 0 }

// Tables returns a copy of the tables in index order.
func (s *SchemaIndex) Tables() []Table {
	if s == nil {
		return nil
	}
	out := make([]Table, len(s.tables))
	for i, t := range s.tables {
		out[i] = Table{Name: t.Name, Columns: append([]string(nil), t.Columns...)}
	}
	return out
}

func (s *SchemaIndex) TableNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.tables))
	for i, t := range s.tables {
		names[i] = t.Name
	}
	return names
}

// Columns returns the columns of the named table, or nil if unknown.
func (s *SchemaIndex) Columns(table string) []string {
	if s == nil {
		return nil
	}
	i, ok := s.byName[table]
	if !ok {
		return nil
	}
	return append([]string(nil), s.tables[i].Columns...)
}

// each walks tables in order without copying.
func (s *SchemaIndex) each(fn func(t Table)) {
	if s == nil {
		return
	}
	for _, t := range s.tables {
		fn(t)
	}
}

// MarshalJSON writes {"tables":{"name":{"columns":[...]}}} in index order.
func (s *SchemaIndex) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"tables":{`)
	for i, t := range s.Tables() {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(t.Name)
		if err != nil {
			return nil, err
		}
		cols := t.Columns
		if cols == nil {
			cols = []string{}
		}
		colsJSON, err := json.Marshal(cols)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteString(`:{"columns":`)
		buf.Write(colsJSON)
		buf.WriteByte('}')
	}
	buf.WriteString(`}}`)
	return buf.Bytes(), nil
}

// ErrMalformedSchema is wrapped by the errors returned from ParseSchemaJSON
// and ParseSchemaYAML when parts of the input had to be skipped.
var ErrMalformedSchema = errors.New("malformed schema")

// ParseSchemaJSON decodes the wire format keeping the key order of
// "tables". Bad entries are skipped; the returned index is never nil and the
// error only reports what was dropped.
func ParseSchemaJSON(data []byte) (*SchemaIndex, error) {
	idx := NewSchemaIndex()
	dec := json.NewDecoder(bytes.NewReader(data))

	var problems []error
	fail := func(err error) (*SchemaIndex, error) {
		problems = append(problems, err)
		return idx, fmt.Errorf("%w: %w", ErrMalformedSchema, errors.Join(problems...))
	}

	if err := expectDelim(dec, '{'); err != nil {
		return fail(err)
	}
	found := false
	for dec.More() {
		key, err := stringToken(dec)
		if err != nil {
			return fail(err)
		}
		if key != "tables" {
			if err := skipValue(dec); err != nil {
				return fail(err)
			}
			continue
		}
		found = true
		if err := expectDelim(dec, '{'); err != nil {
			return fail(fmt.Errorf("tables: %w", err))
		}
		for dec.More() {
			name, err := stringToken(dec)
			if err != nil {
				return fail(err)
			}
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return fail(fmt.Errorf("table %q: %w", name, err))
			}
			cols, err := decodeTableJSON(raw)
			if err != nil {
				problems = append(problems, fmt.Errorf("table %q: %w", name, err))
			}
			idx.add(name, cols)
		}
		if _, err := dec.Token(); err != nil {
			return fail(err)
		}
	}
	if !found {
		problems = append(problems, errors.New(`missing "tables"`))
	}
	if len(problems) > 0 {
		return idx, fmt.Errorf("%w: %w", ErrMalformedSchema, errors.Join(problems...))
	}
	return idx, nil
}

// decodeTableJSON reads one {"columns": [...]} value. A non-object value or
// non-array columns yields no columns.
func decodeTableJSON(raw json.RawMessage) ([]string, error) {
	var entry map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, errors.New("entry is not an object")
	}
	colsRaw, ok := entry["columns"]
	if !ok {
		return nil, errors.New(`missing "columns"`)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(colsRaw, &items); err != nil {
		return nil, errors.New(`"columns" is not an array`)
	}
	var (
		cols []string
		errs []error
	)
	for i, it := range items {
		var c string
		if err := json.Unmarshal(it, &c); err != nil {
			errs = append(errs, fmt.Errorf("column %d is not a string", i))
			continue
		}
		cols = append(cols, c)
	}
	return cols, errors.Join(errs...)
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty document")
		}
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func stringToken(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	s, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return s, nil
}

func skipValue(dec *json.Decoder) error {
	var discard json.RawMessage
	return dec.Decode(&discard)
}

// ParseSchemaYAML decodes the same layout as ParseSchemaJSON from YAML,
// keeping mapping order.
func ParseSchemaYAML(data []byte) (*SchemaIndex, error) {
	idx := NewSchemaIndex()
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return idx, fmt.Errorf("%w: %w", ErrMalformedSchema, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return idx, fmt.Errorf("%w: empty document", ErrMalformedSchema)
	}
	root := doc.Content[0]
	tables := mappingValue(root, "tables")
	if tables == nil || tables.Kind != yaml.MappingNode {
		return idx, fmt.Errorf(`%w: missing "tables"`, ErrMalformedSchema)
	}

	var problems []error
	for i := 0; i+1 < len(tables.Content); i += 2 {
		name := tables.Content[i].Value
		cols, err := decodeTableYAML(tables.Content[i+1])
		if err != nil {
			problems = append(problems, fmt.Errorf("table %q: %w", name, err))
		}
		idx.add(name, cols)
	}
	if len(problems) > 0 {
		return idx, fmt.Errorf("%w: %w", ErrMalformedSchema, errors.Join(problems...))
	}
	return idx, nil
}

func decodeTableYAML(n *yaml.Node) ([]string, error) {
	if n.Kind != yaml.MappingNode {
		return nil, errors.New("entry is not a mapping")
	}
	seq := mappingValue(n, "columns")
	if seq == nil {
		return nil, errors.New(`missing "columns"`)
	}
	if seq.Kind != yaml.SequenceNode {
		return nil, errors.New(`"columns" is not a sequence`)
	}
	var (
		cols []string
		errs []error
	)
	for i, c := range seq.Content {
		if c.Kind != yaml.ScalarNode {
			errs = append(errs, fmt.Errorf("column %d is not a scalar", i))
			continue
		}
		cols = append(cols, c.Value)
	}
	return cols, errors.Join(errs...)
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}
