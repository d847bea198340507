package placeholder

import "strings"

// Suggest returns the candidates for m. Without a dot it lists table names
// containing the table part; with a dot it lists the bare column names of
// every matching table that contain the column part. Both follow index
// order and duplicate columns from different tables are kept.
func Suggest(m Match, idx *SchemaIndex) []string {
	if !m.Open || idx.IsEmpty() {
		return nil
	}

	var out []string
	idx.each(func(t Table) {
		if !strings.Contains(t.Name, m.TablePart) {
			return
		}
		if !m.HasColumn {
			out = append(out, t.Name)
			return
		}
		for _, c := range t.Columns {
			if strings.Contains(c, m.ColumnPart) {
				out = append(out, c)
			}
		}
	})
	return out
}
