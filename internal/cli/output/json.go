package output

import (
	"encoding/json"
	"io"
)

// JSONFormatter prints indented JSON. Tables become an array of objects
// keyed by lower-cased header.
type JSONFormatter struct{}

func (f *JSONFormatter) Format(w io.Writer, data any) error {
	switch t := data.(type) {
	case *Table:
		data = t.Records()
	case Table:
		data = t.Records()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(data)
}
