// Package cli renders thread and canvas state for terminal output.
package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/evanhsu/dealthread/internal/campaign"
	"github.com/evanhsu/dealthread/internal/engine"
	"github.com/evanhsu/dealthread/internal/types"
)

var (
	green  = lipgloss.Color("#8BC34A")
	red    = lipgloss.Color("#e53935")
	yellow = lipgloss.Color("#FFC107")
	blue   = lipgloss.Color("#2196F3")
	grey   = lipgloss.Color("243")

	titleStyle    = lipgloss.NewStyle().Bold(true)
	labelStyle    = lipgloss.NewStyle().Foreground(grey).Width(12)
	terminalStyle = lipgloss.NewStyle().Foreground(red).Bold(true)
	stageStyle    = lipgloss.NewStyle().Foreground(blue)
	mutedStyle    = lipgloss.NewStyle().Foreground(grey)
	headerStyle   = lipgloss.NewStyle().Bold(true).Underline(true)

	statusStyles = map[string]lipgloss.Style{
		types.CanvasStatusValidated:  lipgloss.NewStyle().Foreground(green),
		types.CanvasStatusChallenged: lipgloss.NewStyle().Foreground(red),
		types.CanvasStatusUntested:   lipgloss.NewStyle().Foreground(yellow),
		types.ActionStatusCompleted:  lipgloss.NewStyle().Foreground(green),
		types.ActionStatusPending:    lipgloss.NewStyle().Foreground(yellow),
		types.ActionStatusInProgress: lipgloss.NewStyle().Foreground(blue),
		types.ActionStatusSkipped:    lipgloss.NewStyle().Foreground(grey),
	}
)

func styledStatus(status string) string {
	if style, ok := statusStyles[status]; ok {
		return style.Render(status)
	}
	return status
}

func row(label, value string) string {
	return labelStyle.Render(label) + " " + value
}

// RenderThread returns a styled summary of a thread's state.
func RenderThread(t *types.Thread) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Thread "+t.ID.String()) + "\n")
	sb.WriteString(row("kind", string(t.Kind)) + "\n")
	stage := fmt.Sprintf("%d (%s)", t.Stage, types.StageName(t.Stage))
	sb.WriteString(row("stage", stageStyle.Render(stage)) + "\n")
	if t.Segment != nil {
		sb.WriteString(row("segment", fmt.Sprintf("%s (score %.2f)", t.Segment.SegmentID, t.Segment.MatchScore)) + "\n")
	}
	if t.LeadSource != "" {
		sb.WriteString(row("source", t.LeadSource) + "\n")
	}
	if t.CurrentActionID != nil {
		sb.WriteString(row("action", t.CurrentActionID.String()) + "\n")
	}
	if len(t.CanvasRefs) > 0 {
		sb.WriteString(row("canvas", strings.Join(t.CanvasRefs, ", ")) + "\n")
	}
	if t.Terminal {
		sb.WriteString(row("state", terminalStyle.Render("terminal")) + "\n")
	}
	return sb.String()
}

// RenderActions returns the thread's action log, one line per action in
// dispatch order.
func RenderActions(actions []types.Action) string {
	if len(actions) == 0 {
		return mutedStyle.Render("no actions") + "\n"
	}
	var sb strings.Builder
	sb.WriteString(headerStyle.Render("Actions") + "\n")
	for i, a := range actions {
		line := fmt.Sprintf("%d. %s [%s]", i+1, a.Type, styledStatus(a.Status))
		if a.Result != "" {
			line += " -> " + a.Result
		}
		if a.HumanRequired && a.Open() {
			line += " " + mutedStyle.Render("(awaiting human)")
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

// RenderCanvas returns the canvas entries as an aligned table.
func RenderCanvas(entries []types.CanvasEntry) string {
	if len(entries) == 0 {
		return mutedStyle.Render("canvas is empty") + "\n"
	}
	titleWidth := len("TITLE")
	for _, e := range entries {
		if len(e.Title) > titleWidth {
			titleWidth = len(e.Title)
		}
	}
	var sb strings.Builder
	sb.WriteString(headerStyle.Render(fmt.Sprintf("%-*s  %-10s  %10s  %8s  %8s",
		titleWidth, "TITLE", "STATUS", "CONFIDENCE", "EVIDENCE", "VERSION")) + "\n")
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("%-*s  %-10s  %10.2f  %8d  %8d\n",
			titleWidth, e.Title, styledStatus(e.Status), e.Confidence, len(e.EvidenceRefs), e.Version))
	}
	return sb.String()
}

// RenderStats returns campaign response counters.
func RenderStats(campaignID string, stats campaign.Stats) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Campaign "+campaignID) + "\n")
	sb.WriteString(row("interested", fmt.Sprintf("%d", stats.Interested)) + "\n")
	sb.WriteString(row("not_now", fmt.Sprintf("%d", stats.NotNow)) + "\n")
	sb.WriteString(row("unsubscribed", fmt.Sprintf("%d", stats.Unsubscribed)) + "\n")
	return sb.String()
}

// RenderNextStep describes the dispatcher's answer to a submitted result.
func RenderNextStep(next *engine.NextStep) string {
	if next.StageComplete {
		return statusStyles[types.ActionStatusCompleted].Render("stage complete") + "\n"
	}
	return fmt.Sprintf("next action: %s (%s)\n", next.NewAction.Type, next.NewAction.ID)
}
