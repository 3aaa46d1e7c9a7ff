package metrics

import (
	"strings"
	"testing"
)

func TestRecordRequestAndExport(t *testing.T) {
	// Record a single request and ensure it appears in the export.
	RecordRequest("POST", "/v1/scans", 201, 42)

	out := Export()
	if !strings.Contains(out, "scanq_http_requests_total{method=\"POST\",path=\"/v1/scans\",status=\"201\"}") {
		t.Fatalf("expected HTTP request metric for POST /v1/scans in export, got:\n%s", out)
	}
	if !strings.Contains(out, "scanq_http_request_duration_ms_sum") || !strings.Contains(out, "scanq_http_request_duration_ms_count") {
		t.Fatalf("expected latency metrics headers in export, got:\n%s", out)
	}
}

func TestRecordScanMetrics(t *testing.T) {
	RecordScan("fast", "completed")
	RecordScan("fast", "failed")
	RecordScanRetry("fast")

	out := Export()
	if !strings.Contains(out, "scanq_scans_total{mode=\"fast\",status=\"completed\"}") {
		t.Fatalf("expected completed scan counter, got:\n%s", out)
	}
	if !strings.Contains(out, "scanq_scans_total{mode=\"fast\",status=\"failed\"}") {
		t.Fatalf("expected failed scan counter, got:\n%s", out)
	}
	if !strings.Contains(out, "scanq_scan_retries_total{mode=\"fast\"}") {
		t.Fatalf("expected retry counter, got:\n%s", out)
	}
}

func TestRecordRateLimitMetrics(t *testing.T) {
	RecordRateLimitDenied("free")
	RecordRateLimitDegraded()

	out := Export()
	if !strings.Contains(out, "scanq_rate_limit_denials_total{tier=\"free\"}") {
		t.Fatalf("expected denial counter for free tier, got:\n%s", out)
	}
	if !strings.Contains(out, "scanq_rate_limit_degraded_total") {
		t.Fatalf("expected degraded counter, got:\n%s", out)
	}
}

func TestRetentionAndQueueMetrics(t *testing.T) {
	RecordRetentionScans("free", 3)
	RecordRetentionScans("free", 0) // no-op
	SetQueueDepth("high", 2)
	SetQueueDepth("normal", 7)

	out := Export()
	if !strings.Contains(out, "scanq_retention_scans_deleted_total{tier=\"free\"} 3") {
		t.Fatalf("expected retention counter at 3, got:\n%s", out)
	}
	if !strings.Contains(out, "scanq_queue_depth{lane=\"high\"} 2") {
		t.Fatalf("expected high lane depth, got:\n%s", out)
	}
	if !strings.Contains(out, "scanq_queue_depth{lane=\"normal\"} 7") {
		t.Fatalf("expected normal lane depth, got:\n%s", out)
	}
}
