package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appintegration "github.com/erp/syncengine/internal/application/integration"
)

var (
	runStart  = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	runStart2 = time.Date(2026, 3, 1, 13, 30, 0, 0, time.UTC)
)

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func render(t *testing.T, format string, v any) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: format, Writer: buf}
	require.NoError(t, formatter.Print(v))
	return buf.Bytes()
}

func TestOutputFormatter_RunsTable(t *testing.T) {
	runs := runsView{
		{ID: 7, SyncType: "CUSTOMER", Status: "SUCCESS", Processed: 3, Succeeded: 3, DurationMs: 1500},
		{ID: 8, SyncType: "STOCK", Status: "FAILED", Processed: 10, Succeeded: 8, Failed: 2, DurationMs: 2000,
			ErrorMessage: "2 records failed"},
	}
	newGoldie(t).Assert(t, "runs_table", render(t, FormatTable, runs))
}

func TestOutputFormatter_StatusTable(t *testing.T) {
	success := &appintegration.SyncRunResponse{Status: "SUCCESS", StartTime: runStart}
	failed := &appintegration.SyncRunResponse{Status: "FAILED", StartTime: runStart2}
	status := statusView{appintegration.SyncStatusResponse{
		Types: []appintegration.TypeStatusResponse{
			{SyncType: "CUSTOMER", LastRun: success, LastSuccessful: success},
			{SyncType: "STOCK", LastRun: failed, LastSuccessful: success},
			{SyncType: "INVOICE"},
		},
		FailedRecords:   map[string]int64{"FAILED": 2, "IGNORED": 1},
		PendingApproval: 3,
	}}
	newGoldie(t).Assert(t, "status_table", render(t, FormatTable, status))
}

func TestOutputFormatter_YAML(t *testing.T) {
	result := reconcileView{&appintegration.ReconcileResult{RunsReset: 2, RecordsReleased: 5}}
	newGoldie(t).Assert(t, "reconcile_yaml", render(t, FormatYAML, result))
}

func TestOutputFormatter_YAMLKeepsStringsQuotedWhereNeeded(t *testing.T) {
	out := string(render(t, FormatYAML, map[string]any{"quantity": "-12", "sku": "SKU-1", "note": ""}))
	assert.Contains(t, out, `quantity: "-12"`)
	assert.Contains(t, out, "sku: SKU-1")
	assert.Contains(t, out, `note: ""`)
	assert.NotContains(t, out, "{")
}

func TestOutputFormatter_JSON(t *testing.T) {
	out := render(t, FormatJSON, reconcileView{&appintegration.ReconcileResult{RunsReset: 1}})

	var decoded map[string]int64
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, map[string]int64{"runs_reset": 1, "records_released": 0}, decoded)
}

func TestOutputFormatter_PlainValue(t *testing.T) {
	assert.Equal(t, "done\n", string(render(t, FormatTable, "done")))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "-", truncate(""))
	assert.Equal(t, "short", truncate("short"))

	long := truncate(string(bytes.Repeat([]byte("x"), 100)))
	assert.Len(t, long, maxMessageWidth)
	assert.True(t, len(long) > 3 && long[len(long)-3:] == "...")
}

func TestMigrationView(t *testing.T) {
	view := newMigrationView(2, false, []uint{1, 2, 3, 4})
	assert.Equal(t, migrationView{Version: 2, Latest: 4, Pending: 2}, view)

	fresh := newMigrationView(0, false, []uint{1, 2})
	assert.Equal(t, uint(2), fresh.Latest)
	assert.Equal(t, 2, fresh.Pending)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))

	wrapped := WrapExitError(ExitFailure, "sync failed", errors.New("target down"))
	assert.Equal(t, "sync failed: target down", wrapped.Error())
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
}
