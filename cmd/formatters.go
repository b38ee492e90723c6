package cmd

import (
	"fmt"
	"io"
	"strings"

	"argus/core"
	"argus/detect"
)

type validationResult struct {
	Dir     string                   `json:"dir"`
	Files   int                      `json:"files"`
	Valid   []string                 `json:"valid"`
	Skipped []detect.SkippedDocument `json:"skipped"`
}

func validationOutput(report *detect.LoadReport) validationResult {
	out := validationResult{
		Dir:     report.Dir,
		Files:   report.Files,
		Valid:   make([]string, 0, len(report.Rules)),
		Skipped: report.Skipped,
	}
	if out.Skipped == nil {
		out.Skipped = []detect.SkippedDocument{}
	}
	for _, r := range report.Rules {
		out.Valid = append(out.Valid, r.ID)
	}
	return out
}

// renderLoadReport displays loaded rules and skipped documents
func renderLoadReport(w io.Writer, report *detect.LoadReport) {
	headerColor.Fprintf(w, "RULES in %s (%d files)\n", report.Dir, report.Files)
	fmt.Fprintln(w, strings.Repeat("=", 100))
	renderRuleRows(w, report.Rules)

	if len(report.Skipped) == 0 {
		successColor.Fprintf(w, "%d rule(s) valid\n", len(report.Rules))
		return
	}

	fmt.Fprintln(w)
	errorColor.Fprintf(w, "SKIPPED (%d)\n", len(report.Skipped))
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, s := range report.Skipped {
		id := s.RuleID
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(w, "%s #%d [%s]: %s\n", s.File, s.Index, id, s.Reason)
	}
}

// renderPendingTable displays candidate rules awaiting review
func renderPendingTable(w io.Writer, rules []*core.RuleDefinition) {
	if len(rules) == 0 {
		warningColor.Fprintln(w, "No rules pending review")
		return
	}
	headerColor.Fprintf(w, "PENDING RULES (%d)\n", len(rules))
	fmt.Fprintln(w, strings.Repeat("=", 100))
	renderRuleRows(w, rules)
}

func renderRuleRows(w io.Writer, rules []*core.RuleDefinition) {
	if len(rules) == 0 {
		return
	}
	fmt.Fprintf(w, "%-36s %-9s %-14s %s\n", "ID", "Severity", "Frequency", "Selection")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, r := range rules {
		fmt.Fprintf(w, "%-36s %-9s %-14s %s\n", truncate(r.ID, 36), r.Severity, formatFrequency(r.Frequency), formatSelection(r))
	}
}

func formatFrequency(f *core.Frequency) string {
	if f == nil {
		return "-"
	}
	return fmt.Sprintf("%d/%s", f.Threshold, f.Window)
}

func formatSelection(r *core.RuleDefinition) string {
	parts := make([]string, 0, len(r.Selection))
	for _, k := range r.SelectionFields() {
		parts = append(parts, fmt.Sprintf("%s=%v", k, r.Selection[k]))
	}
	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
