package cmdutil

import (
	"os"
	"path/filepath"
	"testing"

	"farmhand/config"
)

func TestLoadDataArgInline(t *testing.T) {
	data, err := LoadDataArg("script_file: /jobs/comp.nk\nproxy: true")
	if err != nil {
		t.Fatalf("LoadDataArg() error = %v", err)
	}
	if data["script_file"] != "/jobs/comp.nk" {
		t.Errorf("script_file = %v", data["script_file"])
	}
	if data["proxy"] != true {
		t.Errorf("proxy = %v", data["proxy"])
	}
}

func TestLoadDataArgFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run-data.yaml")
	if err := os.WriteFile(path, []byte("frame_range: '5-10'\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	data, err := LoadDataArg("file://" + path)
	if err != nil {
		t.Fatalf("LoadDataArg() error = %v", err)
	}
	if data["frame_range"] != "5-10" {
		t.Errorf("frame_range = %v", data["frame_range"])
	}
}

func TestLoadDataArgEmpty(t *testing.T) {
	data, err := LoadDataArg("")
	if err != nil {
		t.Fatalf("LoadDataArg() error = %v", err)
	}
	if len(data) != 0 {
		t.Errorf("data = %v, want empty", data)
	}
}

func TestLoadDataArgErrors(t *testing.T) {
	if _, err := LoadDataArg("file:///does/not/exist.yaml"); err == nil {
		t.Error("missing file: error = nil")
	}
	if _, err := LoadDataArg(": not yaml ["); err == nil {
		t.Error("bad yaml: error = nil")
	}
}

func TestJournalPathUnderDataRoot(t *testing.T) {
	cfg := &config.Config{DataRoot: "/var/lib/farmhand"}
	if got := JournalPath(cfg); got != "/var/lib/farmhand/journal.db" {
		t.Errorf("JournalPath() = %q", got)
	}
}

func TestNewSupervisorAppliesConfig(t *testing.T) {
	cfg := &config.Config{Executable: "/opt/nuke/nuke"}
	if sup := NewSupervisor(cfg); sup == nil {
		t.Fatal("NewSupervisor() = nil")
	}
}
