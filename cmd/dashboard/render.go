package main

import (
	"fmt"
	"strconv"
	"strings"

	"loaddash/pkg/result"
	"loaddash/pkg/session"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const barWidth = 40

var (
	styleTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	styleHeader = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	styleCell   = lipgloss.NewStyle().Padding(0, 1)
	styleMuted  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleBar    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

var tableHeaders = []string{
	"Timestamp", "URL", "# Requests", "# Fails",
	"Median (ms)", "90 %ile", "99 %ile", "Average (ms)", "Min (ms)", "Max (ms)",
	"Average size (bytes)", "Error Rate (%)", "Current RPS", "Failures per sec",
}

func tableRow(r result.Record, ts result.TimestampFormatter) []string {
	return []string{
		ts(r.Timestamp),
		r.URL,
		strconv.FormatInt(r.TotalRequests, 10),
		strconv.FormatInt(r.FailedRequests, 10),
		result.FormatMillis(r.MedianLatency),
		result.FormatMillis(r.P90Latency),
		result.FormatMillis(r.P99Latency),
		result.FormatMillis(r.AvgLatency),
		result.FormatMillis(r.MinLatency),
		result.FormatMillis(r.MaxLatency),
		result.FormatFixed(r.AvgSize),
		result.FormatFixed(r.ErrorRate),
		result.FormatFixed(r.CurrentRPS),
		result.FormatFixed(r.CurrentFailuresPerSec),
	}
}

// renderResults draws the result history in store order
func renderResults(records []result.Record, ts result.TimestampFormatter) string {
	var b strings.Builder
	b.WriteString(styleTitle.Render("Test Results") + "\n")

	if len(records) == 0 {
		b.WriteString(styleMuted.Render("No results yet") + "\n")
		return b.String()
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(tableHeaders...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader
			}
			return styleCell
		})
	for _, r := range records {
		t.Row(tableRow(r, ts)...)
	}

	b.WriteString(t.Render() + "\n")
	return b.String()
}

// renderProgress draws a one-line progress bar for the session
func renderProgress(st session.Status) string {
	filled := int(st.Progress() * barWidth)
	if filled > barWidth {
		filled = barWidth
	}
	bar := styleBar.Render(strings.Repeat("█", filled)) + styleMuted.Render(strings.Repeat("░", barWidth-filled))

	return fmt.Sprintf("%s %s %d/%ds %s", st.State, bar, st.Elapsed, st.Planned, st.URL)
}
