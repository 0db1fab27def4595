package client

import "testing"

func TestParseFrameRange(t *testing.T) {
	tests := []struct {
		in      string
		want    FrameRange
		wantErr bool
	}{
		{in: "5-10", want: FrameRange{Start: 5, End: 10}},
		{in: "7", want: FrameRange{Start: 7, End: 7}},
		{in: "001-010", want: FrameRange{Start: 1, End: 10}},
		{in: "", wantErr: true},
		{in: "first-last", wantErr: true},
		{in: "5-", wantErr: true},
		{in: "-10", wantErr: true},
		{in: "5-10-15", wantErr: true},
		{in: "5 - 10", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFrameRange(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseFrameRange(%q): got %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFrameRange(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseFrameRange(%q): got %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFrameRangeString(t *testing.T) {
	if got := (FrameRange{Start: 5, End: 10}).String(); got != "5-10" {
		t.Errorf("range: got %q, want %q", got, "5-10")
	}
	if got := (FrameRange{Start: 7, End: 7}).String(); got != "7" {
		t.Errorf("single: got %q, want %q", got, "7")
	}
}
