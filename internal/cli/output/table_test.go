package output

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
)

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func TestTableFormatter_KV(t *testing.T) {
	var buf bytes.Buffer
	err := (&TableFormatter{}).Format(&buf, map[string]string{"b": "2", "a": "1"})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	got := lines(buf.String())
	if len(got) != 3 {
		t.Fatalf("got %d lines: %q", len(got), buf.String())
	}
	if !strings.HasPrefix(got[0], "KEY") || !strings.HasPrefix(got[1], "a") || !strings.HasPrefix(got[2], "b") {
		t.Errorf("rows not sorted by key: %q", got)
	}
}

func TestTableFormatter_Struct(t *testing.T) {
	type status struct {
		NodeID  string   `json:"node_id"`
		Address string   `json:"store_address,omitempty"`
		Peers   int      `json:"peers"`
		Tags    []string `json:"tags"`
		Secret  string   `json:"-"`
		hidden  string
	}
	var buf bytes.Buffer
	err := (&TableFormatter{}).Format(&buf, &status{NodeID: "node-a", Peers: 2, Secret: "x", hidden: "y"})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"node_id", "node-a", "store_address", "peers", "tags"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Secret") || strings.Contains(out, "hidden") {
		t.Errorf("output leaked skipped fields:\n%s", out)
	}
	if len(lines(out)) != 5 {
		t.Errorf("expected header plus 4 rows:\n%s", out)
	}
}

func TestTableFormatter_Fallback(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, []int{1, 2}); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if !strings.Contains(buf.String(), "[") {
		t.Errorf("expected JSON fallback, got %q", buf.String())
	}

	buf.Reset()
	if err := (&TableFormatter{}).Format(&buf, nil); err != nil || buf.Len() != 0 {
		t.Errorf("nil data: err = %v, output = %q", err, buf.String())
	}
}

func TestTable_RenderWithOptions(t *testing.T) {
	tbl := Table{Headers: []string{"A", "B"}}
	tbl.AddRow("x", "y")

	var buf bytes.Buffer
	if err := (&TableFormatter{NoHeaders: true}).Format(&buf, tbl); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if got := lines(buf.String()); len(got) != 1 || strings.Fields(got[0])[0] != "x" {
		t.Errorf("no-headers output = %q", buf.String())
	}

	buf.Reset()
	if err := tbl.Render(&buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got := strings.Fields(lines(buf.String())[0]); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("header = %v", got)
	}
}

func TestFormatValue(t *testing.T) {
	var nilPtr *int
	n := 7
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"empty string", "", "-"},
		{"string", "v", "v"},
		{"int", 3, "3"},
		{"bool", true, "true"},
		{"nil pointer", nilPtr, "-"},
		{"pointer", &n, "7"},
		{"empty slice", []string{}, "-"},
		{"slice", []string{"a", "b"}, "[a b]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatValue(reflect.ValueOf(tt.in)); got != tt.want {
				t.Errorf("formatValue(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
