package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/knadh/koanf/parsers/yaml"
)

// YAMLFormatter formats data as YAML.
type YAMLFormatter struct{}

// Format converts data to a generic map through its JSON form, so json
// tags name the YAML keys, then marshals it.
func (f *YAMLFormatter) Format(w io.Writer, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	m, ok := generic.(map[string]any)
	if !ok {
		m = map[string]any{"value": generic}
	}
	out, err := yaml.Parser().Marshal(m)
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	_, err = w.Write(out)
	return err
}
