package importer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/warp/inventory-ledger/ledger"
)

func newFakeSheets(t *testing.T, values [][]interface{}) (*SheetSource, *string) {
	t.Helper()
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if strings.Contains(r.URL.Path, "missing") {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": 404, "message": "Requested entity was not found."}})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"range":          "Stock!A1:B10",
			"majorDimension": "ROWS",
			"values":         values,
		})
	}))
	t.Cleanup(srv.Close)

	src, err := NewSheetSourceWithOptions(context.Background(), nil,
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return src, &gotPath
}

func TestSheetSource_Lines(t *testing.T) {
	src, gotPath := newFakeSheets(t, [][]interface{}{
		{"sku", "qty"},
		{"TEE-RED-M", "12"},
		{"TEE-RED-L", "x"},
	})

	lines, failures, err := src.Lines(context.Background(), "sheet-123", "Stock!A1:B10")
	require.NoError(t, err)

	assert.Contains(t, *gotPath, "sheet-123")
	assert.Equal(t, []ledger.BulkLine{{SKU: "TEE-RED-M", TargetQty: 12, Row: 2}}, lines)
	require.Len(t, failures, 1)
	assert.Equal(t, 3, failures[0].Row)
}

func TestSheetSource_Errors(t *testing.T) {
	src, _ := newFakeSheets(t, nil)

	_, _, err := src.Lines(context.Background(), "missing", "Stock!A1:B10")
	assert.Error(t, err)

	_, err = src.ReadRange(context.Background(), "", "Stock!A1:B10")
	assert.Error(t, err)
}
