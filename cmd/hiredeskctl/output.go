package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/hiredesk/hiredesk/internal/auditlog"
	"github.com/hiredesk/hiredesk/internal/catalog"
	"github.com/hiredesk/hiredesk/internal/decision"
)

// renderState renders an application's pipeline state after a decision
// operation.
func renderState(s *decision.State) string {
	lines := []string{
		fmt.Sprintf("%s %s", labelStyle.Render("Application:"), s.ApplicationID),
		fmt.Sprintf("%s %s", labelStyle.Render("Stage:"), s.CurrentStageID),
		fmt.Sprintf("%s %s", labelStyle.Render("Status:"), s.Status),
		fmt.Sprintf("%s %s", labelStyle.Render("Outcome:"), formatOutcome(s.OutcomeType, s.IsTerminal)),
		fmt.Sprintf("%s %s", labelStyle.Render("Entered Stage At:"), s.EnteredStageAt.Format(time.RFC3339)),
		fmt.Sprintf("%s %s", labelStyle.Render("Updated At:"), s.UpdatedAt.Format(time.RFC3339)),
	}
	return strings.Join(lines, "\n")
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F5F"))
	warnStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F5A623"))
	labelStyle   = lipgloss.NewStyle().Bold(true)
)

// formatOutcome renders an outcome badge colorized by outcome type.
func formatOutcome(outcome catalog.OutcomeType, isTerminal bool) string {
	label := string(outcome)
	if isTerminal {
		label += " (terminal)"
	}
	switch outcome {
	case catalog.OutcomeSuccess:
		return successStyle.Render(label)
	case catalog.OutcomeFailure:
		return errorStyle.Render(label)
	case catalog.OutcomeHold:
		return warnStyle.Render(label)
	default:
		return label
	}
}

// renderDecisionLog renders a table of execution log entries, newest first.
func renderDecisionLog(entries []auditlog.Entry) string {
	headers := []string{"ID", "Action", "Stage", "Outcome", "Executed By", "Executed At"}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.ID.String(),
			e.ActionCode,
			stageLabel(e),
			formatOutcome(e.OutcomeType, e.IsTerminal),
			executorLabel(e),
			e.ExecutedAt.Format(time.RFC3339),
		})
	}

	widths := columnWidths(headers, rows)
	var lines []string
	lines = append(lines, headerStyle.Render(formatRow(headers, widths)))
	for _, row := range rows {
		lines = append(lines, formatRow(row, widths))
	}
	return strings.Join(lines, "\n")
}

// renderDecisionLogEntry renders a single execution log entry in detail,
// including the evaluated signal-gate conditions.
func renderDecisionLogEntry(e auditlog.Entry) string {
	lines := []string{
		fmt.Sprintf("%s %s", labelStyle.Render("ID:"), e.ID),
		fmt.Sprintf("%s %s", labelStyle.Render("Action:"), e.ActionCode),
		fmt.Sprintf("%s %s", labelStyle.Render("Outcome:"), formatOutcome(e.OutcomeType, e.IsTerminal)),
		fmt.Sprintf("%s %s", labelStyle.Render("Stage:"), stageLabel(e)),
		fmt.Sprintf("%s %s -> %s", labelStyle.Render("Transition:"), e.FromStageID, e.ToStageID),
		fmt.Sprintf("%s %s", labelStyle.Render("Executed By:"), executorLabel(e)),
		fmt.Sprintf("%s %s", labelStyle.Render("Executed At:"), e.ExecutedAt.Format(time.RFC3339)),
	}

	if e.DecisionNote != nil && *e.DecisionNote != "" {
		lines = append(lines, fmt.Sprintf("%s %s", labelStyle.Render("Note:"), *e.DecisionNote))
	}
	if e.OverrideReason != nil && *e.OverrideReason != "" {
		lines = append(lines, fmt.Sprintf("%s %s", labelStyle.Render("Override Reason:"), *e.OverrideReason))
	}
	if e.ReviewedBy != nil {
		lines = append(lines, fmt.Sprintf("%s %s", labelStyle.Render("Reviewed By:"), *e.ReviewedBy))
	}
	if e.ApprovedBy != nil {
		lines = append(lines, fmt.Sprintf("%s %s", labelStyle.Render("Approved By:"), *e.ApprovedBy))
	}

	if len(e.ConditionsEvaluated) > 0 {
		lines = append(lines, labelStyle.Render("Signal Gate:"))
		lines = append(lines, renderConditions(e.ConditionsEvaluated))
	}

	return strings.Join(lines, "\n")
}

// renderConditions renders the list of evaluated signal-gate clauses,
// highlighting the ones that failed the gate in red.
func renderConditions(conditions []auditlog.ConditionResult) string {
	var lines []string
	for _, c := range conditions {
		line := fmt.Sprintf("  %s %s %s (actual=%s, on_missing=%s)", c.Signal, c.Operator, c.Expected, c.Actual, c.OnMissing)
		switch {
		case c.Warning:
			line = warnStyle.Render(line + " [warning]")
		case !c.Met:
			line = errorStyle.Render(line + " [failed: " + c.Reason + "]")
		default:
			line = successStyle.Render(line + " [met]")
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// stageLabel prefers the read-time stage name enrichment over the raw
// stage id.
func stageLabel(e auditlog.Entry) string {
	if e.StageName != nil && *e.StageName != "" {
		return *e.StageName
	}
	return e.StageID.String()
}

// executorLabel prefers the read-time user email enrichment over the
// raw user id.
func executorLabel(e auditlog.Entry) string {
	if e.ExecutedByEmail != nil && *e.ExecutedByEmail != "" {
		return *e.ExecutedByEmail
	}
	return e.ExecutedBy.String()
}

func formatJSON(value any) string {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}

func columnWidths(headers []string, rows [][]string) []int {
	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = len(header)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	return widths
}

func formatRow(cells []string, widths []int) string {
	parts := make([]string, 0, len(cells))
	for i, cell := range cells {
		parts = append(parts, padRight(cell, widths[i]+2))
	}
	return strings.TrimRight(strings.Join(parts, ""), " ")
}

func padRight(value string, width int) string {
	if len(value) >= width {
		return value
	}
	return fmt.Sprintf("%-*s", width, value)
}
