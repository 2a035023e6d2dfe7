package main

import (
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/pulsedeck/model"
)

func TestRenderServices(t *testing.T) {
	checked := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	out := renderServices([]model.Service{
		{ID: 7, Name: "gateway", ServiceType: "http", Status: model.StatusHealthy, LastChecked: &checked},
		{ID: 8, Name: "queue", ServiceType: "docker", Status: model.StatusMaintenance, ContainerName: "queue-1"},
	})

	for _, want := range []string{"ID", "LAST CHECKED", "gateway", "queue-1", "maintenance", "7", "8"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\nGot:\n%s", want, out)
		}
	}
}

func TestRenderStats(t *testing.T) {
	if got := renderStats(nil); got != "" {
		t.Errorf("renderStats(nil) = %q, want empty", got)
	}

	got := renderStats(&model.ServiceStats{TotalServices: 5, HealthyServices: 3, UnhealthyServices: 2})
	for _, want := range []string{"5 services", "3 healthy", "2 unhealthy"} {
		if !strings.Contains(got, want) {
			t.Errorf("renderStats() = %q, missing %q", got, want)
		}
	}
}

func TestRenderEvents(t *testing.T) {
	events := []model.Event{
		{ID: 3, Title: "disk full", Severity: model.SeverityCritical, ServiceName: "db"},
		{ID: 2, Title: "slow response", Severity: model.SeverityWarning, ServiceName: "api"},
		{ID: 1, Title: "deployed", Severity: model.SeverityInfo, ServiceName: "api"},
	}

	tests := []struct {
		name    string
		limit   int
		want    []string
		notWant []string
	}{
		{"unlimited", 0, []string{"disk full", "slow response", "deployed"}, nil},
		{"limited", 2, []string{"disk full", "slow response"}, []string{"deployed"}},
		{"limit above length", 10, []string{"deployed"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := renderEvents(events, tt.limit)
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q", w)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(out, w) {
					t.Errorf("output should not contain %q", w)
				}
			}
		})
	}
}

func TestFormatTime(t *testing.T) {
	if got := formatTime(nil); got != "-" {
		t.Errorf("formatTime(nil) = %q, want -", got)
	}
	zero := time.Time{}
	if got := formatTime(&zero); got != "-" {
		t.Errorf("formatTime(zero) = %q, want -", got)
	}

	ts := time.Date(2024, 5, 1, 12, 30, 45, 0, time.UTC)
	want := ts.Local().Format("2006-01-02 15:04:05")
	if got := formatTime(&ts); got != want {
		t.Errorf("formatTime() = %q, want %q", got, want)
	}
}
