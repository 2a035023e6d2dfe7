package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/jpalmerr/pulsedeck/model"
)

var (
	colorGreen  = lipgloss.Color("#22c55e")
	colorRed    = lipgloss.Color("#ef4444")
	colorYellow = lipgloss.Color("#eab308")
	colorMuted  = lipgloss.Color("#6b7280")

	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(colorMuted)
)

// newTable returns a rounded table with the shared header and cell styles.
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func statusStyle(status model.ServiceStatus) lipgloss.Style {
	switch status {
	case model.StatusHealthy:
		return lipgloss.NewStyle().Foreground(colorGreen)
	case model.StatusUnhealthy:
		return lipgloss.NewStyle().Foreground(colorRed)
	case model.StatusMaintenance:
		return lipgloss.NewStyle().Foreground(colorYellow)
	default:
		return lipgloss.NewStyle().Foreground(colorMuted)
	}
}

func severityStyle(sev model.Severity) lipgloss.Style {
	switch sev {
	case model.SeverityCritical, model.SeverityError:
		return lipgloss.NewStyle().Foreground(colorRed)
	case model.SeverityWarning:
		return lipgloss.NewStyle().Foreground(colorYellow)
	default:
		return lipgloss.NewStyle().Foreground(colorMuted)
	}
}

// renderServices renders one row per service.
func renderServices(services []model.Service) string {
	t := newTable("ID", "NAME", "TYPE", "STATUS", "CONTAINER", "LAST CHECKED")
	for _, s := range services {
		t.Row(
			strconv.Itoa(s.ID),
			s.Name,
			s.ServiceType,
			statusStyle(s.Status).Render(string(s.Status)),
			s.ContainerName,
			formatTime(s.LastChecked),
		)
	}
	return t.String()
}

// renderStats renders the service totals on one line.
func renderStats(stats *model.ServiceStats) string {
	if stats == nil {
		return ""
	}
	return fmt.Sprintf("%d services: %s, %s",
		stats.TotalServices,
		statusStyle(model.StatusHealthy).Render(fmt.Sprintf("%d healthy", stats.HealthyServices)),
		statusStyle(model.StatusUnhealthy).Render(fmt.Sprintf("%d unhealthy", stats.UnhealthyServices)),
	)
}

// renderEvents renders at most limit events, newest first.
func renderEvents(events []model.Event, limit int) string {
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	t := newTable("TIME", "SEVERITY", "SERVICE", "TITLE")
	for _, e := range events {
		t.Row(
			formatTime(&e.Timestamp),
			severityStyle(e.Severity).Render(string(e.Severity)),
			e.ServiceName,
			e.Title,
		)
	}
	return t.String()
}

func formatTime(ts *time.Time) string {
	if ts == nil || ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}
