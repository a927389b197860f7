// Package observability provides the structured logger and formatted output
// utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/evanhsu/dealthread/internal/types"
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
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintThread outputs a human-readable summary of a thread.
func (p *Printer) PrintThread(thread *types.Thread) {
	if thread == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Kind:    %s\n", thread.Kind))
	sb.WriteString(fmt.Sprintf("Stage:   %d (%s)\n", thread.Stage, types.StageName(thread.Stage)))
	if thread.Segment != nil {
		sb.WriteString(fmt.Sprintf("Segment: %s (match %.2f)\n", thread.Segment.SegmentID, thread.Segment.MatchScore))
	}
	if thread.LeadSource != "" {
		sb.WriteString(fmt.Sprintf("Source:  %s\n", thread.LeadSource))
	}
	if thread.Terminal {
		sb.WriteString("Status:  terminal\n")
	}

	p.printBox(fmt.Sprintf("Thread %s", thread.ID), strings.TrimRight(sb.String(), "\n"))
}

// PrintActions outputs a thread's action trail in order.
func (p *Printer) PrintActions(actions []types.Action) {
	if len(actions) == 0 {
		return
	}

	var sb strings.Builder
	for i, a := range actions {
		line := fmt.Sprintf("%d. %s [%s]", i+1, a.Type, a.Status)
		if a.Result != "" {
			line += " -> " + a.Result
		}
		sb.WriteString(line + "\n")
	}

	p.printBox("Actions", strings.TrimRight(sb.String(), "\n"))
}

// PrintCanvas outputs a summary of canvas entries, capped for readability.
func (p *Printer) PrintCanvas(entries []types.CanvasEntry) {
	if len(entries) == 0 {
		return
	}

	var sb strings.Builder
	shown := entries
	if len(shown) > maxItemsToShow {
		shown = shown[:maxItemsToShow]
	}
	for _, e := range shown {
		sb.WriteString(fmt.Sprintf("%-24s %s %.2f (v%d, %d refs)\n",
			e.ID, e.Status, e.Confidence, e.Version, len(e.EvidenceRefs)))
	}
	if len(entries) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("... and %d more\n", len(entries)-maxItemsToShow))
	}

	p.printBox("Canvas", strings.TrimRight(sb.String(), "\n"))
}

// PrintMatch outputs the result of a segment match.
func (p *Printer) PrintMatch(result *types.MatchResult) {
	if result == nil {
		return
	}
	p.printBox("Segment match",
		fmt.Sprintf("Segment: %s\nScore:   %.2f", result.SegmentID, result.Score))
}
