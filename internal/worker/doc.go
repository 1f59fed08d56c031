// Package worker drains the processing queue, turning each pending original
// into its HLS rendition, preview clip and poster frame.
//
// One worker runs per content root. The lock file under the data directory
// enforces this across processes; within a process the loop is a single
// goroutine. A job's outcome is always recorded on its row, so transcoder
// failures never stop the loop. Only store failures do.
package worker
