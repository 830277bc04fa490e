package ui

import (
	"strings"
	"testing"

	"reportpush/pkg/service"
)

func TestRenderStatusListsChannelsAndTasks(t *testing.T) {
	status := service.StatusResponse{
		Status:        "ok",
		UptimeSeconds: 90,
		Channels: map[string]service.ChannelState{
			"wecom": {Configured: true},
		},
		Tasks: map[string]service.TaskState{
			"daily-sales": {LastResult: "ok", LastStartedAt: "2026-08-25T08:30:00Z", Deliveries: 3},
			"weekly":      {},
		},
	}

	out := RenderStatus(status)

	for _, want := range []string{"reportpush", "wecom", "daily-sales", "weekly", "idle", "1m30s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderStatusShowsFailureDetail(t *testing.T) {
	status := service.StatusResponse{
		Status: "ok",
		Tasks: map[string]service.TaskState{
			"broken": {LastResult: "failed", Stage: "render", Error: "render command: exit status 1"},
		},
	}

	out := RenderStatus(status)

	if !strings.Contains(out, "failed") {
		t.Fatalf("output missing failed marker:\n%s", out)
	}
	if !strings.Contains(out, "render command") {
		t.Fatalf("output missing error detail:\n%s", out)
	}
}
