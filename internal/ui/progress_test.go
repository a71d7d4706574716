package ui

import (
	"errors"
	"strings"
	"testing"

	"abicheck/internal/pipeline"
)

func TestProgressTracksUnits(t *testing.T) {
	ch := make(chan pipeline.Event)
	m := NewProgressModel("dump libfoo", []string{"a.json", "b.json"}, pipeline.StageBuild, ch).(*progressModel)

	m.Update(eventMsg{Stage: pipeline.StageBuild, Status: pipeline.StatusWorking})
	m.Update(eventMsg{Unit: "a.json", Stage: pipeline.StageBuild, Status: pipeline.StatusCached})
	m.Update(eventMsg{Unit: "b.json", Stage: pipeline.StageRead, Status: pipeline.StatusDone})
	m.Update(eventMsg{Unit: "unknown.json", Stage: pipeline.StageBuild, Status: pipeline.StatusDone})

	if !m.items[0].finished || m.items[1].finished {
		t.Fatalf("items = %+v", m.items)
	}
	if got := m.percent(); got < 0.59 || got > 0.61 {
		t.Fatalf("percent = %v", got)
	}
	view := m.View()
	for _, want := range []string{"dump libfoo (building)", "cached", "a.json", "b.json"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}

	close(ch)
	msg := m.listenForEvent()()
	if _, ok := msg.(doneMsg); !ok {
		t.Fatalf("closed channel produced %T", msg)
	}
	m.Update(msg)
	if !strings.Contains(m.View(), "done: dump libfoo") {
		t.Fatalf("final view:\n%s", m.View())
	}
}

func TestProgressMarksFailure(t *testing.T) {
	m := NewProgressModel("diff", []string{"old.json"}, pipeline.StageRead, nil).(*progressModel)
	m.Update(eventMsg{Unit: "old.json", Stage: pipeline.StageRead, Status: pipeline.StatusError, Err: errors.New("boom")})
	m.Update(doneMsg{})
	if view := m.View(); !strings.Contains(view, "failed: diff") || !strings.Contains(view, "error") {
		t.Fatalf("view:\n%s", view)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("include/very/long/path.h", 10); got != "include..." {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
}
