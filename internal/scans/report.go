package scans

import (
	"fmt"
	"strings"

	"scanq/internal/model"
)

const reportRule = "================================================================================"
const reportSubRule = "--------------------------------------------------------------------------------"

// TextReport renders a human-readable report from an engine result.
func TextReport(result *model.ScanResult) string {
	var b strings.Builder

	b.WriteString(reportRule + "\n")
	b.WriteString("SECURITY SCAN REPORT\n")
	b.WriteString(reportRule + "\n\n")

	b.WriteString("SUMMARY\n")
	b.WriteString(reportSubRule + "\n")
	fmt.Fprintf(&b, "Target: %s\n", orUnknown(result.Target))
	fmt.Fprintf(&b, "Platform: %s\n", orUnknown(result.PlatformDetected))
	fmt.Fprintf(&b, "Confidence: %.2f\n", result.Confidence)
	fmt.Fprintf(&b, "Scan Date: %s\n\n", orUnknown(result.ScanDate))

	counts := result.Count()
	b.WriteString("VULNERABILITY COUNTS\n")
	b.WriteString(reportSubRule + "\n")
	fmt.Fprintf(&b, "Critical: %d\n", counts.Critical)
	fmt.Fprintf(&b, "High: %d\n", counts.High)
	fmt.Fprintf(&b, "Medium: %d\n", counts.Medium)
	fmt.Fprintf(&b, "Low: %d\n", counts.Low)
	fmt.Fprintf(&b, "Total: %d\n\n", counts.Total())

	if len(result.Vulnerabilities) > 0 {
		b.WriteString("DETAILED FINDINGS\n")
		b.WriteString(reportSubRule + "\n")
		for i, v := range result.Vulnerabilities {
			fmt.Fprintf(&b, "\n%d. %s\n", i+1, orUnknown(v.Type))
			fmt.Fprintf(&b, "   Severity: %s\n", strings.ToUpper(orUnknown(v.Severity)))
			desc := v.Description
			if desc == "" {
				desc = "No description"
			}
			fmt.Fprintf(&b, "   Description: %s\n", desc)
			if v.Recommendation != "" {
				fmt.Fprintf(&b, "   Recommendation: %s\n", v.Recommendation)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString(reportRule + "\n")
	b.WriteString("END OF REPORT\n")
	b.WriteString(reportRule + "\n")

	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
