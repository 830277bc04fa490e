// Package ui renders daemon status snapshots for terminal output.
package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"reportpush/pkg/service"
)

// theme groups reusable styles for status output regions.
type theme struct {
	header  lipgloss.Style
	ok      lipgloss.Style
	bad     lipgloss.Style
	warn    lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	section lipgloss.Style
}

func defaultTheme() theme {
	return theme{
		header: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("25")),
		ok: lipgloss.NewStyle().
			Foreground(lipgloss.Color("114")).
			Bold(true),
		bad: lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")).
			Bold(true),
		warn: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),
		label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),
		value: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
		section: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("110")),
	}
}

// RenderStatus formats one status snapshot as styled terminal text.
func RenderStatus(status service.StatusResponse) string {
	t := defaultTheme()
	var b strings.Builder

	b.WriteString(t.header.Render("reportpush"))
	b.WriteString(" ")
	b.WriteString(statusStyle(t, status.Status).Render(status.Status))
	b.WriteString("\n")

	uptime := time.Duration(status.UptimeSeconds) * time.Second
	b.WriteString(t.label.Render("uptime: "))
	b.WriteString(t.value.Render(uptime.String()))
	b.WriteString("\n\n")

	b.WriteString(t.section.Render("channels"))
	b.WriteString("\n")
	for _, name := range sortedKeys(status.Channels) {
		b.WriteString("  ")
		b.WriteString(t.value.Render(name))
		b.WriteString(" ")
		b.WriteString(t.ok.Render("configured"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(t.section.Render("tasks"))
	b.WriteString("\n")
	for _, name := range sortedKeys(status.Tasks) {
		task := status.Tasks[name]
		b.WriteString("  ")
		b.WriteString(t.value.Render(name))
		b.WriteString(" ")
		b.WriteString(resultStyle(t, task.LastResult).Render(displayResult(task.LastResult)))
		if task.LastStartedAt != "" {
			b.WriteString(t.label.Render(" last: "))
			b.WriteString(t.value.Render(task.LastStartedAt))
		}
		b.WriteString(t.label.Render(" deliveries: "))
		b.WriteString(t.value.Render(fmt.Sprintf("%d", task.Deliveries)))
		if task.Error != "" {
			b.WriteString("\n    ")
			b.WriteString(t.bad.Render(task.Stage + ": " + task.Error))
		}
		b.WriteString("\n")
	}

	return b.String()
}

func statusStyle(t theme, status string) lipgloss.Style {
	switch status {
	case "ok", "ready":
		return t.ok
	default:
		return t.bad
	}
}

func resultStyle(t theme, result string) lipgloss.Style {
	switch result {
	case "ok":
		return t.ok
	case "failed":
		return t.bad
	case "running":
		return t.warn
	default:
		return t.label
	}
}

func displayResult(result string) string {
	if result == "" {
		return "idle"
	}
	return result
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
