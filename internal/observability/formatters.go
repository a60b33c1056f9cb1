// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/cv-tailor/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // verbose output; write errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %s │\n", pad(title, boxWidth-4))
	fmt.Fprintf(p.out, "├%s┤\n", border)
	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %s │\n", pad(line, boxWidth-4))
	}
	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// pad cuts or right-pads s to exactly width runes.
func pad(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n > width {
		r := []rune(s)
		return string(r[:width-3]) + "..."
	}
	return s + strings.Repeat(" ", width-n)
}

// PrintResult outputs the outcome of a generation: the failure, the deferred
// contract or the merge report.
func (p *Printer) PrintResult(result *types.GenerationResult) {
	if result == nil {
		return
	}
	switch result.Status {
	case types.StatusFailed:
		p.printFailure(result)
	case types.StatusDeferred:
		p.PrintDeferred(result.Deferred)
	default:
		p.PrintMergeReport(result.Merge, result.Outcome)
	}
}

func (p *Printer) printFailure(result *types.GenerationResult) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Kind:  %s\n", result.ErrorKind))
	sb.WriteString(fmt.Sprintf("Error: %s", result.ErrorMessage))
	if result.ErrorHint != "" {
		sb.WriteString(fmt.Sprintf("\nHint:  %s", result.ErrorHint))
	}
	if result.RawText != "" {
		sb.WriteString("\n\nModel output:\n")
		sb.WriteString(firstLines(result.RawText, maxItemsToShow))
	}
	p.printBox("GENERATION FAILED", sb.String())
}

// PrintDeferred outputs what the device must run.
func (p *Printer) PrintDeferred(contract *types.DeferredContract) {
	if contract == nil {
		return
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Model:       %s (%s)\n", contract.ModelID, contract.ModelClass))
	sb.WriteString(fmt.Sprintf("Temperature: %.2f\n", contract.Temperature))
	sb.WriteString(fmt.Sprintf("Max tokens:  %d\n", contract.MaxTokens))
	sb.WriteString(fmt.Sprintf("Prompt:      %d characters", utf8.RuneCountInString(contract.Prompt)))
	p.printBox("DEFERRED TO DEVICE", sb.String())
}

// PrintMergeReport outputs the matched entities per section and every discarded
// patch entry.
func (p *Printer) PrintMergeReport(report *types.MergeReport, outcome types.ErrorKind) {
	if report == nil {
		return
	}

	var sb strings.Builder
	if outcome == types.OutcomeMergeNoOp {
		sb.WriteString("Nothing matched; the document is unchanged.\n")
	}

	perSection := map[types.SectionID]map[types.MergeStrategy]int{}
	for _, m := range report.Matched {
		if perSection[m.Section] == nil {
			perSection[m.Section] = map[types.MergeStrategy]int{}
		}
		perSection[m.Section][m.Strategy]++
	}
	for _, section := range types.AllSections {
		counts, ok := perSection[section]
		if !ok {
			continue
		}
		sb.WriteString(fmt.Sprintf("✓ %s: %s\n", section, formatCounts(counts)))
	}

	if len(report.Discarded) > 0 {
		sb.WriteString(fmt.Sprintf("\nDiscarded %d entries:\n", len(report.Discarded)))
		count := min(len(report.Discarded), maxItemsToShow)
		for _, d := range report.Discarded[:count] {
			sb.WriteString(fmt.Sprintf("  ✗ %s: %s\n", d.Section, d.Hint))
		}
		if len(report.Discarded) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(report.Discarded)-maxItemsToShow))
		}
	}

	if len(report.Ignored) > 0 {
		ignored := make([]string, len(report.Ignored))
		for i, s := range report.Ignored {
			ignored[i] = string(s)
		}
		sb.WriteString(fmt.Sprintf("\nIgnored untargeted sections: %s\n", strings.Join(ignored, ", ")))
	}

	p.printBox("MERGE REPORT", strings.TrimSuffix(sb.String(), "\n"))
}

func formatCounts(counts map[types.MergeStrategy]int) string {
	strategies := make([]string, 0, len(counts))
	for s := range counts {
		strategies = append(strategies, string(s))
	}
	sort.Strings(strategies)

	parts := make([]string, len(strategies))
	for i, s := range strategies {
		parts[i] = fmt.Sprintf("%d by %s", counts[types.MergeStrategy(s)], s)
	}
	return strings.Join(parts, ", ")
}

func firstLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[:n], "\n") + fmt.Sprintf("\n... and %d more lines", len(lines)-n)
}
