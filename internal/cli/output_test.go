package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dictdb/internal/storage"
	"github.com/roach88/dictdb/internal/worker"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
}

func TestOutputFormatter_ItemsText(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &buf}

	items := []storage.Item{
		{Key: "a", Value: json.Number("1")},
		{Key: "b", Value: "two"},
		{Key: "c", Value: []any{"x", json.Number("2")}},
		{Key: "d", Value: nil},
	}
	require.NoError(t, f.Items(items))

	newGoldie(t).Assert(t, "items_text", buf.Bytes())
}

func TestOutputFormatter_RowsText(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &buf}

	res := &worker.Result{Rows: [][]any{
		{int64(1), "x", nil},
		{int64(2), []byte("y"), 3.5},
	}}
	require.NoError(t, f.Rows(res))

	newGoldie(t).Assert(t, "rows_text", buf.Bytes())
}

func TestOutputFormatter_ValueJSON(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	require.NoError(t, f.Value(json.Number("42")))
	assert.JSONEq(t, `{"status":"ok","data":42}`, buf.String())
}

func TestOutputFormatter_RowsJSONError(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	res := &worker.Result{Err: errors.New("no such table: nope")}
	require.NoError(t, f.Rows(res))
	assert.JSONEq(t, `{"status":"error","error":"no such table: nope"}`, buf.String())
}

func TestOutputFormatter_RowsTextError(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &buf}

	res := &worker.Result{Err: errors.New("no such table: nope")}
	require.NoError(t, f.Rows(res))
	assert.Equal(t, "error: no such table: nope\n", buf.String())
}

func TestOutputFormatter_KeysText(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &buf}

	require.NoError(t, f.Keys([]string{"a", "b"}))
	assert.Equal(t, "a\nb\n", buf.String())
}

func TestRenderScalar(t *testing.T) {
	assert.Equal(t, "null", renderScalar(nil))
	assert.Equal(t, "plain", renderScalar("plain"))
	assert.Equal(t, "bytes", renderScalar([]byte("bytes")))
	assert.Equal(t, "1.5", renderScalar(json.Number("1.5")))
	assert.Equal(t, "true", renderScalar(true))
	assert.Equal(t, `{"k":"v"}`, renderScalar(map[string]any{"k": "v"}))
}
