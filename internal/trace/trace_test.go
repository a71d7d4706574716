package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestLevelScopes(t *testing.T) {
	cases := []struct {
		level Level
		scope Scope
		want  bool
	}{
		{LevelOff, ScopeCommand, false},
		{LevelStage, ScopeStage, true},
		{LevelStage, ScopeUnit, false},
		{LevelUnit, ScopeUnit, true},
		{LevelUnit, ScopeEntity, false},
		{LevelDebug, ScopeEntity, true},
	}
	for _, tc := range cases {
		if got := tc.level.ShouldEmit(tc.scope); got != tc.want {
			t.Errorf("%s.ShouldEmit(%s) = %v, want %v", tc.level, tc.scope, got, tc.want)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatalf("ParseLevel accepted an unknown level")
	}
}

func TestStreamNDJSON(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelUnit, FormatNDJSON)
	ctx := WithTracer(context.Background(), tr)

	ctx, stage := StartSpan(ctx, ScopeStage, "link")
	_, unit := StartSpan(ctx, ScopeUnit, "unit:a.json")
	unit.WithExtra("types", "3").End("")
	_, hidden := StartSpan(ctx, ScopeEntity, "entity")
	hidden.End("")
	stage.End("ok")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d events:\n%s", len(lines), buf.String())
	}
	var ev struct {
		Kind     string            `json:"kind"`
		Name     string            `json:"name"`
		ParentID uint64            `json:"parent_id"`
		Extra    map[string]string `json:"extra"`
	}
	if err := json.Unmarshal([]byte(lines[2]), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Kind != "end" || ev.Name != "unit:a.json" || ev.ParentID != stage.ID() || ev.Extra["types"] != "3" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestChromeStreamIsJSON(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelDebug, FormatChrome)
	ctx, span := StartSpan(WithTracer(context.Background(), tr), ScopeCommand, "dump")
	Point(ctx, ScopeStage, "cache", "hit")
	span.End("")
	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}
	var doc struct {
		TraceEvents []map[string]any `json:"traceEvents"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("chrome output is not JSON: %v\n%s", err, buf.String())
	}
	if len(doc.TraceEvents) != 3 {
		t.Fatalf("events = %v", doc.TraceEvents)
	}
}

func TestRingKeepsLastEvents(t *testing.T) {
	r := NewRingTracer(2, LevelStage)
	ctx := WithTracer(context.Background(), r)
	for _, name := range []string{"read", "build", "link"} {
		Point(ctx, ScopeStage, name, "")
	}
	snap := r.Snapshot()
	if len(snap) != 2 || snap[0].Name != "build" || snap[1].Name != "link" {
		t.Fatalf("snapshot = %+v", snap)
	}
	var buf bytes.Buffer
	if err := r.Dump(&buf, FormatText); err != nil {
		t.Fatal(err)
	}
	if r.Dropped() != 1 || !strings.HasPrefix(buf.String(), "... 1 earlier events overwritten\n") || !strings.Contains(buf.String(), "• link") {
		t.Fatalf("dump = %q", buf.String())
	}
}

func TestNewPicksFormatFromPath(t *testing.T) {
	if FormatFromPath("t.ndjson") != FormatNDJSON || FormatFromPath("t.json") != FormatChrome || FormatFromPath("t.log") != FormatText {
		t.Fatalf("FormatFromPath mismatch")
	}
	tr, err := New(Config{Level: LevelOff})
	if err != nil || tr.Enabled() {
		t.Fatalf("LevelOff tracer: %v %v", tr, err)
	}
	var buf bytes.Buffer
	tr, err = New(Config{Level: LevelStage, Mode: ModeBoth, Output: &buf})
	if err != nil {
		t.Fatal(err)
	}
	multi, ok := tr.(*MultiTracer)
	if !ok || multi.Ring() == nil {
		t.Fatalf("ModeBoth tracer = %T", tr)
	}
	Point(WithTracer(context.Background(), tr), ScopeStage, "diff", "")
	if buf.Len() == 0 || len(multi.Ring().Snapshot()) != 1 {
		t.Fatalf("event not fanned out")
	}

	tr, err = New(Config{Level: LevelError, Mode: ModeStream})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.(*RingTracer); !ok {
		t.Fatalf("error level tracer = %T", tr)
	}
}

func TestUnitSpansGetOwnLane(t *testing.T) {
	r := NewRingTracer(16, LevelUnit)
	ctx := WithTracer(context.Background(), r)
	ctx, stage := StartSpan(ctx, ScopeStage, "build")
	_, a := StartSpan(ctx, ScopeUnit, "unit:a.json")
	_, b := StartSpan(ctx, ScopeUnit, "unit:b.json")
	before := OpenSpans()
	a.End("")
	if a.End("") != 0 {
		t.Fatalf("second End emitted")
	}
	b.End("")
	stage.End("")
	if OpenSpans() != before-1-2 {
		t.Fatalf("open spans = %d, want %d", OpenSpans(), before-3)
	}

	lanes := map[string]uint64{}
	for _, ev := range r.Snapshot() {
		if ev.Kind == KindSpanBegin {
			lanes[ev.Name] = ev.Lane
		}
	}
	if lanes["unit:a.json"] == lanes["unit:b.json"] || lanes["unit:a.json"] == lanes["build"] {
		t.Fatalf("lanes = %v", lanes)
	}
}

func TestHeartbeatStops(t *testing.T) {
	r := NewRingTracer(64, LevelStage)
	h := StartHeartbeat(r, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	h.Stop()
	h.Stop()
	n := len(r.Snapshot())
	if n == 0 || r.Snapshot()[0].Kind != KindHeartbeat {
		t.Fatalf("no heartbeat recorded")
	}
	time.Sleep(5 * time.Millisecond)
	if len(r.Snapshot()) != n {
		t.Fatalf("heartbeat kept running after Stop")
	}
	if StartHeartbeat(Nop, time.Millisecond) != nil {
		t.Fatalf("heartbeat on a disabled tracer")
	}
}
