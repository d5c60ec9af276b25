package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/roach88/dictdb/internal/storage"
	"github.com/roach88/dictdb/internal/worker"
)

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string `json:"status"`          // "ok" or "error"
	Data   any    `json:"data,omitempty"`  // success payload
	Error  string `json:"error,omitempty"` // error details
}

// Value outputs a single decoded value.
func (f *OutputFormatter) Value(v any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: v})
	}
	_, err := fmt.Fprintln(f.Writer, renderScalar(v))
	return err
}

// Keys outputs a key listing, one per line in text mode.
func (f *OutputFormatter) Keys(keys []string) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: keys})
	}
	for _, k := range keys {
		if _, err := fmt.Fprintln(f.Writer, k); err != nil {
			return err
		}
	}
	return nil
}

// Items outputs decoded key-value pairs, "key = value" per line in text mode.
func (f *OutputFormatter) Items(items []storage.Item) error {
	if f.Format == "json" {
		data := make([]map[string]any, len(items))
		for i, it := range items {
			data[i] = map[string]any{"key": it.Key, "value": it.Value}
		}
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	for _, it := range items {
		if _, err := fmt.Fprintf(f.Writer, "%s = %s\n", it.Key, renderScalar(it.Value)); err != nil {
			return err
		}
	}
	return nil
}

// Rows outputs a raw query result matrix, tab-separated in text mode.
func (f *OutputFormatter) Rows(res *worker.Result) error {
	if f.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: res.Rows}
		if res.Err != nil {
			resp.Status = "error"
			resp.Error = res.Err.Error()
			resp.Data = nil
		}
		return json.NewEncoder(f.Writer).Encode(resp)
	}
	if res.Err != nil {
		_, err := fmt.Fprintf(f.Writer, "error: %v\n", res.Err)
		return err
	}
	for _, row := range res.Rows {
		for i, col := range row {
			if i > 0 {
				if _, err := fmt.Fprint(f.Writer, "\t"); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprint(f.Writer, renderScalar(col)); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(f.Writer); err != nil {
			return err
		}
	}
	return nil
}

// renderScalar renders one value the way a user expects to read it back:
// strings bare, byte slices as text, everything else via JSON encoding.
func renderScalar(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case []byte:
		return string(t)
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
