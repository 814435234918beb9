package output

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
	"text/tabwriter"
)

// TableFormatter formats data as an aligned table.
// Supports Table, map[string]string and structs; anything else falls
// back to JSON.
type TableFormatter struct {
	NoHeaders bool
}

// Format formats data as a table.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	if data == nil {
		return nil
	}

	var table *Table
	switch d := data.(type) {
	case *Table:
		table = d
	case Table:
		table = &d
	case map[string]string:
		table = KVTable(d)
	default:
		v := reflect.Indirect(reflect.ValueOf(data))
		if v.Kind() != reflect.Struct {
			return (&JSONFormatter{}).Format(w, data)
		}
		table = structToTable(v)
	}
	return table.RenderWithOptions(w, f.NoHeaders)
}

// KVTable renders entries sorted by key.
func KVTable(entries map[string]string) *Table {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := &Table{Headers: []string{"KEY", "VALUE"}}
	for _, k := range keys {
		t.AddRow(k, entries[k])
	}
	return t
}

// structToTable lists exported fields as FIELD/VALUE rows, named by
// their json tag.
func structToTable(v reflect.Value) *Table {
	table := &Table{Headers: []string{"FIELD", "VALUE"}}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag, _, _ := strings.Cut(field.Tag.Get("json"), ","); tag == "-" {
			continue
		} else if tag != "" {
			name = tag
		}
		table.AddRow(name, formatValue(v.Field(i)))
	}
	return table
}

// formatValue formats a field for display. Empty values render as "-".
func formatValue(v reflect.Value) string {
	if !v.IsValid() {
		return "-"
	}
	if v.Kind() == reflect.Interface || v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return "-"
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.String:
		if v.Len() == 0 {
			return "-"
		}
		return v.String()
	case reflect.Slice, reflect.Array, reflect.Map:
		if v.Len() == 0 {
			return "-"
		}
		return fmt.Sprintf("%v", v.Interface())
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

// Table represents tabular data.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Render renders the table to the writer.
func (t *Table) Render(w io.Writer) error {
	return t.RenderWithOptions(w, false)
}

// RenderWithOptions renders the table, optionally without headers.
func (t *Table) RenderWithOptions(w io.Writer, noHeaders bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if !noHeaders && len(t.Headers) > 0 {
		fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// Records returns one map per row keyed by lower-cased header.
func (t *Table) Records() []map[string]string {
	out := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]string, len(t.Headers))
		for i, h := range t.Headers {
			if i < len(row) {
				rec[strings.ToLower(h)] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out
}
