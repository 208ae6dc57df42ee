package odbc

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

var (
	scratchRebinds  = metrics.NewCounter(`odbc_scratch_rebinds_total`)
	deferredChunks  = metrics.NewCounter(`odbc_deferred_chunks_total`)
	deferredBytes   = metrics.NewCounter(`odbc_deferred_bytes_total`)
	getDataCalls    = metrics.NewCounter(`odbc_getdata_calls_total`)
	columnReadBytes = metrics.NewHistogram(`odbc_column_read_bytes`)
	paramBatches    = metrics.NewCounter(`odbc_param_batches_total`)
	batchRestarts   = metrics.NewCounter(`odbc_param_batch_restarts_total`)
	tvpRows         = metrics.NewCounter(`odbc_tvp_rows_total`)
	bulkRows        = metrics.NewCounter(`odbc_bulk_rows_total`)
	callErrors      = metrics.NewCounter(`odbc_call_errors_total`)
)

// WriteMetrics writes the marshaling counters in Prometheus text format.
func WriteMetrics(w io.Writer) {
	metrics.WritePrometheus(w, false)
}
