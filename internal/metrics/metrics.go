package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Simple Prometheus-style metrics for the scan service.
// This is intentionally minimal and in-memory only.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)

	scansTotal        = make(map[scanKey]int64)
	scanRetriesTotal  = make(map[string]int64)
	scansCancelled    int64
	scansSkippedTotal int64

	rateLimitDenials  = make(map[string]int64)
	rateLimitDegraded int64

	retentionScansDeleted = make(map[string]int64)

	queueDepth = make(map[string]int64)
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

type scanKey struct {
	Mode   string
	Status string
}

// RecordRequest increments request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	rk := reqKey{Method: method, Path: path, Status: status}
	requestsTotal[rk]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordScan increments the scan outcome counter for a mode/status pair.
func RecordScan(mode, status string) {
	mu.Lock()
	defer mu.Unlock()
	scansTotal[scanKey{Mode: mode, Status: status}]++
}

// RecordScanRetry counts retry attempts per scan mode.
func RecordScanRetry(mode string) {
	mu.Lock()
	defer mu.Unlock()
	scanRetriesTotal[mode]++
}

// RecordScanCancelled counts user-initiated cancellations.
func RecordScanCancelled() {
	mu.Lock()
	defer mu.Unlock()
	scansCancelled++
}

// RecordScanSkipped counts dequeued entries skipped because their
// status record was already cancelled.
func RecordScanSkipped() {
	mu.Lock()
	defer mu.Unlock()
	scansSkippedTotal++
}

// RecordRateLimitDenied counts quota denials per tier.
func RecordRateLimitDenied(tier string) {
	mu.Lock()
	defer mu.Unlock()
	rateLimitDenials[tier]++
}

// RecordRateLimitDegraded counts fail-open events caused by an
// unreachable window store.
func RecordRateLimitDegraded() {
	mu.Lock()
	defer mu.Unlock()
	rateLimitDegraded++
}

// RecordRetentionScans increments the counter of scans deleted by the
// retention sweeper for a given tier.
func RecordRetentionScans(tier string, deleted int64) {
	if deleted <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	retentionScansDeleted[tier] += deleted
}

// SetQueueDepth records the last observed length of a queue lane.
func SetQueueDepth(lane string, depth int64) {
	mu.Lock()
	defer mu.Unlock()
	queueDepth[lane] = depth
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP scanq_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE scanq_http_requests_total counter\n")

	// Sort keys for stable output
	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})

	for _, k := range reqKeys {
		v := requestsTotal[k]
		fmt.Fprintf(&b, "scanq_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, v)
	}

	b.WriteString("# HELP scanq_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE scanq_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP scanq_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE scanq_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})

	for _, k := range latKeys {
		fmt.Fprintf(&b, "scanq_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsSum[k])
		fmt.Fprintf(&b, "scanq_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsCount[k])
	}

	b.WriteString("# HELP scanq_scans_total Scan outcomes by mode and final status\n")
	b.WriteString("# TYPE scanq_scans_total counter\n")

	var scanKeys []scanKey
	for k := range scansTotal {
		scanKeys = append(scanKeys, k)
	}
	sort.Slice(scanKeys, func(i, j int) bool {
		if scanKeys[i].Mode != scanKeys[j].Mode {
			return scanKeys[i].Mode < scanKeys[j].Mode
		}
		return scanKeys[i].Status < scanKeys[j].Status
	})

	for _, k := range scanKeys {
		fmt.Fprintf(&b, "scanq_scans_total{mode=\"%s\",status=\"%s\"} %d\n",
			k.Mode, k.Status, scansTotal[k])
	}

	b.WriteString("# HELP scanq_scan_retries_total Retry attempts by scan mode\n")
	b.WriteString("# TYPE scanq_scan_retries_total counter\n")
	for _, mode := range sortedKeys(scanRetriesTotal) {
		fmt.Fprintf(&b, "scanq_scan_retries_total{mode=\"%s\"} %d\n", mode, scanRetriesTotal[mode])
	}

	b.WriteString("# HELP scanq_scans_cancelled_total User-initiated scan cancellations\n")
	b.WriteString("# TYPE scanq_scans_cancelled_total counter\n")
	fmt.Fprintf(&b, "scanq_scans_cancelled_total %d\n", scansCancelled)

	b.WriteString("# HELP scanq_scans_skipped_total Dequeued entries skipped as already cancelled\n")
	b.WriteString("# TYPE scanq_scans_skipped_total counter\n")
	fmt.Fprintf(&b, "scanq_scans_skipped_total %d\n", scansSkippedTotal)

	b.WriteString("# HELP scanq_rate_limit_denials_total Quota denials by tier\n")
	b.WriteString("# TYPE scanq_rate_limit_denials_total counter\n")
	for _, t := range sortedKeys(rateLimitDenials) {
		fmt.Fprintf(&b, "scanq_rate_limit_denials_total{tier=\"%s\"} %d\n", t, rateLimitDenials[t])
	}

	b.WriteString("# HELP scanq_rate_limit_degraded_total Fail-open events from an unreachable window store\n")
	b.WriteString("# TYPE scanq_rate_limit_degraded_total counter\n")
	fmt.Fprintf(&b, "scanq_rate_limit_degraded_total %d\n", rateLimitDegraded)

	b.WriteString("# HELP scanq_retention_scans_deleted_total Scans removed by the retention sweeper\n")
	b.WriteString("# TYPE scanq_retention_scans_deleted_total counter\n")
	for _, t := range sortedKeys(retentionScansDeleted) {
		fmt.Fprintf(&b, "scanq_retention_scans_deleted_total{tier=\"%s\"} %d\n", t, retentionScansDeleted[t])
	}

	b.WriteString("# HELP scanq_queue_depth Last observed queue length by lane\n")
	b.WriteString("# TYPE scanq_queue_depth gauge\n")
	for _, lane := range sortedKeys(queueDepth) {
		fmt.Fprintf(&b, "scanq_queue_depth{lane=\"%s\"} %d\n", lane, queueDepth[lane])
	}

	return b.String()
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
