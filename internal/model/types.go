package model

// Severity labels emitted by the scan engine. These values must match
// the text values produced in engine output, lowercase.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// Vulnerability is a single finding reported by the scan engine.
type Vulnerability struct {
	Type           string `json:"type"`
	Severity       string `json:"severity"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation,omitempty"`
}

// ScanResult is the structured output of one engine run against a
// target. The engine is opaque; this is the whole contract.
type ScanResult struct {
	Target           string          `json:"target"`
	Vulnerabilities  []Vulnerability `json:"vulnerabilities"`
	PlatformDetected string          `json:"platform_detected,omitempty"`
	Confidence       float64         `json:"confidence,omitempty"`
	ScanDate         string          `json:"scan_date,omitempty"`
}

// SeverityCounts is a histogram of findings by severity label.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Count tallies the findings of a result into a severity histogram.
// Unknown severity labels are ignored rather than rejected.
func (r *ScanResult) Count() SeverityCounts {
	var c SeverityCounts
	for _, v := range r.Vulnerabilities {
		switch v.Severity {
		case SeverityCritical:
			c.Critical++
		case SeverityHigh:
			c.High++
		case SeverityMedium:
			c.Medium++
		case SeverityLow:
			c.Low++
		}
	}
	return c
}

// Total returns the number of findings across all severities that were
// recognized by Count.
func (c SeverityCounts) Total() int {
	return c.Critical + c.High + c.Medium + c.Low
}
