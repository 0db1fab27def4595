package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileMissingReturnsZeroConfig(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Executable != "" || len(cfg.PathMapping) != 0 {
		t.Errorf("got %+v, want zero config", cfg)
	}
}

func TestLoadFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
executable: /opt/nuke/Nuke15.1/Nuke15.1
client-script: /opt/farmhand/client/nuke_client.py
python-path:
  - /opt/farmhand/python
path-mapping:
  - source: /mnt/projects
    destination: /projects
timeouts:
  worker-start: 10m
data-root: /var/lib/farmhand
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Executable != "/opt/nuke/Nuke15.1/Nuke15.1" {
		t.Errorf("executable: got %q", cfg.Executable)
	}
	if cfg.Timeouts.WorkerStart != 10*time.Minute {
		t.Errorf("worker-start timeout: got %v, want 10m", cfg.Timeouts.WorkerStart)
	}
	if got := cfg.ResolveDataRoot(); got != "/var/lib/farmhand" {
		t.Errorf("data root: got %q", got)
	}
}

func TestMapperPrefixRules(t *testing.T) {
	cfg := &Config{PathMapping: []PathMappingRule{
		{Source: "/mnt/projects", Destination: "/projects"},
		{Source: "/mnt/assets/", Destination: "/assets"},
	}}
	m := cfg.Mapper()

	tests := []struct {
		in   string
		want string
	}{
		{"/mnt/projects/shot/shot.nk", "/projects/shot/shot.nk"},
		{"/mnt/projects", "/projects"},
		{"/mnt/assets/tex.exr", "/assets/tex.exr"},
		// A prefix match inside a path segment must not rewrite.
		{"/mnt/projectsarchive/old.nk", "/mnt/projectsarchive/old.nk"},
		{"/elsewhere/file.nk", "/elsewhere/file.nk"},
	}
	for _, tt := range tests {
		if got := m.MapPath(tt.in); got != tt.want {
			t.Errorf("MapPath(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMapperNilWhenNoRules(t *testing.T) {
	if m := (&Config{}).Mapper(); m != nil {
		t.Errorf("got %v, want nil mapper", m)
	}
}
