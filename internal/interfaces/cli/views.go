package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	appintegration "github.com/erp/syncengine/internal/application/integration"
)

const (
	timeLayout      = "2006-01-02 15:04:05"
	maxMessageWidth = 60
)

type runsView []appintegration.SyncRunResponse

func (v runsView) Header() []string {
	return []string{"ID", "TYPE", "STATUS", "PROCESSED", "SUCCEEDED", "FAILED", "DURATION", "ERROR"}
}

func (v runsView) Rows() [][]string {
	rows := make([][]string, len(v))
	for i, r := range v {
		rows[i] = []string{
			strconv.FormatInt(r.ID, 10),
			r.SyncType,
			r.Status,
			strconv.Itoa(r.Processed),
			strconv.Itoa(r.Succeeded),
			strconv.Itoa(r.Failed),
			(time.Duration(r.DurationMs) * time.Millisecond).String(),
			truncate(r.ErrorMessage),
		}
	}
	return rows
}

type retryView struct {
	*appintegration.RetryPassResult
}

func (v retryView) Header() []string {
	return []string{"CLAIMED", "RESOLVED", "FAILED", "IGNORED", "RELEASED"}
}

func (v retryView) Rows() [][]string {
	return [][]string{{
		strconv.Itoa(v.Claimed),
		strconv.Itoa(v.Resolved),
		strconv.Itoa(v.Failed),
		strconv.Itoa(v.Ignored),
		strconv.Itoa(v.Released),
	}}
}

type failedRecordsView struct {
	Records  []appintegration.FailedRecordResponse `json:"records"`
	Total    int64                                 `json:"total"`
	Page     int                                   `json:"page"`
	PageSize int                                   `json:"page_size"`
}

func (v failedRecordsView) Header() []string {
	return []string{"ID", "TYPE", "RECORD", "STATUS", "RETRIES", "CODE", "NEXT_RETRY", "ERROR"}
}

func (v failedRecordsView) Rows() [][]string {
	rows := make([][]string, len(v.Records))
	for i, r := range v.Records {
		rows[i] = []string{
			strconv.FormatInt(r.ID, 10),
			r.RecordType,
			r.RecordID,
			r.Status,
			strconv.Itoa(r.RetryCount),
			r.ErrorCode,
			formatTime(r.NextRetryAt),
			truncate(r.ErrorMessage),
		}
	}
	return rows
}

type adjustmentsView struct {
	Adjustments []appintegration.PendingAdjustmentResponse `json:"adjustments"`
	Total       int64                                      `json:"total"`
	Page        int                                        `json:"page"`
	PageSize    int                                        `json:"page_size"`
}

func (v adjustmentsView) Header() []string {
	return []string{"ID", "SKU", "LOCATION", "QUANTITY", "STATUS", "REQUESTED_BY", "DECIDED_BY", "REASON"}
}

func (v adjustmentsView) Rows() [][]string {
	rows := make([][]string, len(v.Adjustments))
	for i, a := range v.Adjustments {
		decidedBy := a.ApprovedBy
		if decidedBy == "" {
			decidedBy = a.RejectedBy
		}
		rows[i] = []string{
			strconv.FormatInt(a.ID, 10),
			a.SKU,
			dash(a.LocationCode),
			a.Quantity.String(),
			a.Status,
			dash(a.RequestedBy),
			dash(decidedBy),
			truncate(a.Reason),
		}
	}
	return rows
}

type reconcileView struct {
	*appintegration.ReconcileResult
}

func (v reconcileView) Header() []string {
	return []string{"RUNS_RESET", "RECORDS_RELEASED"}
}

func (v reconcileView) Rows() [][]string {
	return [][]string{{
		strconv.FormatInt(v.RunsReset, 10),
		strconv.FormatInt(v.RecordsReleased, 10),
	}}
}

type statusView struct {
	appintegration.SyncStatusResponse
}

func (v statusView) RenderText(w io.Writer) error {
	types := make([][]string, len(v.Types))
	for i, t := range v.Types {
		row := []string{t.SyncType, "-", "-", "-"}
		if t.LastRun != nil {
			row[1] = t.LastRun.StartTime.UTC().Format(timeLayout)
			row[2] = t.LastRun.Status
		}
		if t.LastSuccessful != nil {
			row[3] = t.LastSuccessful.StartTime.UTC().Format(timeLayout)
		}
		types[i] = row
	}
	if err := writeTable(w, staticTable{
		header: []string{"TYPE", "LAST_RUN", "STATUS", "LAST_SUCCESS"},
		rows:   types,
	}); err != nil {
		return err
	}

	fmt.Fprintln(w)
	queue := [][]string{}
	for _, status := range []string{"FAILED", "RETRYING", "RESOLVED", "IGNORED"} {
		queue = append(queue, []string{"failed records " + status, strconv.FormatInt(v.FailedRecords[status], 10)})
	}
	queue = append(queue, []string{"pending approval", strconv.FormatInt(v.PendingApproval, 10)})
	return writeTable(w, staticTable{header: []string{"QUEUE", "COUNT"}, rows: queue})
}

type migrationView struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
	Latest  uint `json:"latest"`
	Pending int  `json:"pending"`
}

func (v migrationView) Header() []string {
	return []string{"VERSION", "DIRTY", "LATEST", "PENDING"}
}

func (v migrationView) Rows() [][]string {
	return [][]string{{
		strconv.FormatUint(uint64(v.Version), 10),
		strconv.FormatBool(v.Dirty),
		strconv.FormatUint(uint64(v.Latest), 10),
		strconv.Itoa(v.Pending),
	}}
}

type staticTable struct {
	header []string
	rows   [][]string
}

func (t staticTable) Header() []string { return t.header }
func (t staticTable) Rows() [][]string { return t.rows }

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxMessageWidth {
		return dash(s)
	}
	return string(r[:maxMessageWidth-3]) + "..."
}
