package status

import (
	"testing"

	"farmhand"
)

func TestProgressOf(t *testing.T) {
	tests := []struct {
		name    string
		current int
		total   int
		want    float64
	}{
		{name: "first of ten", current: 1, total: 10, want: 10.0},
		{name: "half done", current: 5, total: 10, want: 50.0},
		{name: "all done", current: 10, total: 10, want: 100.0},
		{name: "clamped above total", current: 15, total: 10, want: 100.0},
		{name: "rounded to two decimals", current: 1, total: 3, want: 33.33},
		{name: "two thirds", current: 2, total: 3, want: 66.67},
		{name: "single output", current: 1, total: 1, want: 100.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := progressOf(tt.current, tt.total); got != tt.want {
				t.Errorf("progressOf(%d, %d): got %v, want %v", tt.current, tt.total, got, tt.want)
			}
		})
	}
}

func TestTrackerRenderFlow(t *testing.T) {
	var reports []farmhand.Status
	tr := New(func(s farmhand.Status) { reports = append(reports, s) })

	tr.BeginRender()
	if !tr.Rendering() {
		t.Fatal("Rendering after BeginRender: got false, want true")
	}

	tr.SetOutputs(1, 10)
	for i := 0; i < 9; i++ {
		tr.OutputComplete()
	}
	tr.Complete("RENDER COMPLETE")

	if tr.Rendering() {
		t.Fatal("Rendering after Complete: got true, want false")
	}
	if len(reports) == 0 {
		t.Fatal("no status reports emitted")
	}

	// Progress must be monotone and bounded for a single render.
	prev := -1.0
	for i, r := range reports {
		if r.Progress < 0 || r.Progress > 100 {
			t.Errorf("report %d: progress %v out of [0, 100]", i, r.Progress)
		}
		if r.Progress < prev {
			t.Errorf("report %d: progress %v decreased from %v", i, r.Progress, prev)
		}
		prev = r.Progress
	}

	final := reports[len(reports)-1]
	if final.Progress != 100 || final.Message != "RENDER COMPLETE" {
		t.Errorf("final report: got %+v, want progress=100 message=RENDER COMPLETE", final)
	}
}

func TestTrackerCompleteReportsOnce(t *testing.T) {
	finals := 0
	tr := New(func(s farmhand.Status) {
		if s.Progress == 100 && s.Message != "" {
			finals++
		}
	})

	tr.BeginRender()
	tr.Complete("RENDER COMPLETE")
	tr.Complete("RENDER COMPLETE")

	if finals != 1 {
		t.Errorf("completion reports: got %d, want 1", finals)
	}
}

func TestTrackerOutputCompleteOutsideRender(t *testing.T) {
	var reports []farmhand.Status
	tr := New(func(s farmhand.Status) { reports = append(reports, s) })

	// Script loading writes outputs before any render starts; those must
	// not produce progress reports.
	tr.OutputComplete()
	tr.OutputComplete()

	if len(reports) != 0 {
		t.Errorf("reports while not rendering: got %d, want 0", len(reports))
	}
}

func TestTrackerSetOutputsClampsZeroCurrent(t *testing.T) {
	var reports []farmhand.Status
	tr := New(func(s farmhand.Status) { reports = append(reports, s) })

	// The worker's first progress line reports "outputs 0-N of T"; it must
	// still push a report.
	tr.BeginRender()
	tr.SetOutputs(0, 10)

	if len(reports) != 1 {
		t.Fatalf("reports for zero-current span: got %d, want 1", len(reports))
	}
	if got := reports[0].Progress; got != 10.0 {
		t.Errorf("first report progress: got %v, want 10 (current clamped to 1)", got)
	}
}

func TestTrackerSetOutputsIgnoresZeroTotal(t *testing.T) {
	var reports []farmhand.Status
	tr := New(func(s farmhand.Status) { reports = append(reports, s) })

	tr.SetOutputs(3, 0)

	if len(reports) != 0 {
		t.Errorf("reports for zero-total span: got %d, want 0", len(reports))
	}
	if got := tr.Progress(); got != 100.0 {
		t.Errorf("Progress with untouched counters: got %v, want 100", got)
	}
}

func TestTrackerBeginRenderResetsCounters(t *testing.T) {
	tr := New(nil)

	tr.BeginRender()
	tr.SetOutputs(5, 10)
	tr.Complete("RENDER COMPLETE")

	tr.BeginRender()
	if got := tr.Progress(); got != 100.0 {
		t.Errorf("Progress after reset: got %v, want 100 (counters back to 1/1)", got)
	}
	tr.SetOutputs(1, 4)
	if got := tr.Progress(); got != 25.0 {
		t.Errorf("Progress after new span: got %v, want 25", got)
	}
}
