package ai

import (
	"fmt"
	"strings"

	"github.com/farbodahm/sqldash/placeholder"
	"github.com/farbodahm/sqldash/warehouse"
)

// SystemPrompt describes the active connection and the placeholder syntax
// reports are written in.
func SystemPrompt(connection, kind string) string {
	var b strings.Builder
	b.WriteString("You help write SQL reports for a dashboard.\n")
	fmt.Fprintf(&b, "The active connection is %q (%s).\n", connection, kind)
	b.WriteString(`Reports refer to tables as ${table} and to columns as ${table.column}.
Before running, each placeholder is replaced by its inner text, so ${users.name} becomes users.name.
Always write final queries with placeholders for every table and column reference.
Use the tools to look up tables and columns instead of guessing names.
Queries you run are limited to a few rows; use them to check your work.
Reply with the final query in a single sql code block.
`)
	return b.String()
}

func formatSchema(idx *placeholder.SchemaIndex) string {
	if idx.IsEmpty() {
		return "no tables"
	}
	var b strings.Builder
	for _, t := range idx.Tables() {
		fmt.Fprintf(&b, "%s: %s\n", t.Name, strings.Join(t.Columns, ", "))
	}
	return b.String()
}

func formatResult(res *warehouse.Result) string {
	var b strings.Builder
	b.WriteString(strings.Join(res.Columns, "\t"))
	b.WriteByte('\n')
	for _, row := range res.Rows {
		b.WriteString(strings.Join(row, "\t"))
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "(%d rows)", res.RowCount)
	return b.String()
}
