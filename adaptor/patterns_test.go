package adaptor

import (
	"strings"
	"testing"

	"farmhand"
	"farmhand/status"
)

func scannerForInit(initData map[string]any, reporter status.Reporter) *Supervisor {
	s := New(reporter, nil)
	s.initData = initData
	return s
}

func TestErrorVariantsCaptureOneFailure(t *testing.T) {
	lines := []string{
		"ERROR: Read1: /missing.exr: no such file or directory",
		"Error: failed to allocate frame buffer",
		"Write1 Error : out of disk space",
		"Eddy[ERROR] simulation diverged",
	}

	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			s := scannerForInit(map[string]any{"continue_on_error": false}, nil)
			scanner := s.newScanner()

			scanner.Feed(line)
			scanner.Feed(line) // a second matching line must not overwrite

			err := s.failure.check()
			if err == nil {
				t.Fatal("no pending failure captured")
			}
			if !strings.Contains(err.Error(), line) {
				t.Errorf("failure %q does not embed the line %q", err, line)
			}
		})
	}
}

func TestErrorIgnoredWhenContinueOnError(t *testing.T) {
	// continue_on_error defaults to true when absent.
	for _, initData := range []map[string]any{
		{"continue_on_error": true},
		{},
	} {
		s := scannerForInit(initData, nil)
		s.newScanner().Feed("ERROR: Read1: missing input")

		if err := s.failure.check(); err != nil {
			t.Errorf("init data %v: unexpected pending failure: %v", initData, err)
		}
	}
}

func TestProgressLineUpdatesTracker(t *testing.T) {
	tests := []struct {
		name string
		line string
		want float64
	}{
		{
			name: "mid render",
			line: "NukeClient: Creating outputs 5-6 of 10 total outputs.",
			want: 50,
		},
		{
			name: "first span",
			line: "NukeClient: Creating outputs 1-2 of 10 total outputs.",
			want: 10,
		},
		{
			name: "current above total clamps",
			line: "NukeClient: Creating outputs 12-13 of 10 total outputs.",
			want: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var last farmhand.Status
			s := scannerForInit(map[string]any{}, func(st farmhand.Status) { last = st })
			s.newScanner().Feed(tt.line)

			if last.Progress != tt.want {
				t.Errorf("progress: got %v, want %v", last.Progress, tt.want)
			}
		})
	}
}

func TestOutputCompleteReportsOnlyWhileRendering(t *testing.T) {
	var reports int
	s := scannerForInit(map[string]any{}, func(farmhand.Status) { reports++ })
	scanner := s.newScanner()

	// Outputs written while loading the script are counted but not reported.
	scanner.Feed("Writing /out/precomp.0001.exr took 0.10 seconds")
	if reports != 0 {
		t.Fatalf("reports before rendering: got %d, want 0", reports)
	}

	s.tracker.BeginRender()
	scanner.Feed("Writing /out/shot.0001.exr took 0.42 seconds")
	if reports != 1 {
		t.Errorf("reports while rendering: got %d, want 1", reports)
	}
}

func TestCompleteLineVariants(t *testing.T) {
	for _, line := range []string{
		"NukeClient: Finished Rendering Frame 7",
		"NukeClient: Finished Rendering Frames 1-10",
	} {
		var last farmhand.Status
		s := scannerForInit(map[string]any{}, func(st farmhand.Status) { last = st })
		s.tracker.BeginRender()

		s.newScanner().Feed(line)

		if s.tracker.Rendering() {
			t.Errorf("line %q: still rendering", line)
		}
		if last.Progress != 100 || last.Message != "RENDER COMPLETE" {
			t.Errorf("line %q: final report %+v", line, last)
		}
	}
}

func TestValidateRunData(t *testing.T) {
	tests := []struct {
		name    string
		runData map[string]any
		wantErr bool
	}{
		{name: "range", runData: map[string]any{"frame_range": "5-10"}},
		{name: "single frame", runData: map[string]any{"frame_range": "7"}},
		{name: "missing", runData: map[string]any{}, wantErr: true},
		{name: "words", runData: map[string]any{"frame_range": "first-last"}, wantErr: true},
		{name: "negative", runData: map[string]any{"frame_range": "-3"}, wantErr: true},
		{name: "wrong type", runData: map[string]any{"frame_range": 7}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRunData(tt.runData)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRunData(%v): got %v, wantErr %v", tt.runData, err, tt.wantErr)
			}
		})
	}
}
