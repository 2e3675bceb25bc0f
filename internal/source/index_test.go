package source

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseWaveformFilename(t *testing.T) {
	tests := []struct {
		name      string
		wantOK    bool
		wantSta   string
		wantStart time.Time
	}{
		{"TX.PB28..HHZ.M.2024.001.000000.SAC", true, "PB28", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"TX.PB28.00.HHZ.D.2024.060.134507.SAC", true, "PB28", time.Date(2024, 2, 29, 13, 45, 7, 0, time.UTC)},
		{"/tmp/stage/IU.ANMO.10.BHZ.M.2023.365.235959.SAC", true, "ANMO", time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC)},
		{"random.SAC", false, "", time.Time{}},
		{"TX.PB28..HHZ.M.2024.400.000000.SAC", false, "", time.Time{}},
	}

	for _, tt := range tests {
		f, ok := ParseWaveformFilename(tt.name)
		if ok != tt.wantOK {
			t.Errorf("%s: ok = %v, want %v", tt.name, ok, tt.wantOK)
			continue
		}
		if f.Name != filepath.Base(tt.name) {
			t.Errorf("%s: name = %q", tt.name, f.Name)
		}
		if !ok {
			continue
		}
		if f.Station != tt.wantSta {
			t.Errorf("%s: station = %q, want %q", tt.name, f.Station, tt.wantSta)
		}
		if !f.Start.Equal(tt.wantStart) {
			t.Errorf("%s: start = %v, want %v", tt.name, f.Start, tt.wantStart)
		}
	}
}

func TestIsSACFile(t *testing.T) {
	tests := map[string]bool{
		"a.SAC":      true,
		"a.sac":      true,
		"a.SAC.bak":  false,
		"README.txt": false,
		"sac":        false,
		"dir/b.Sac":  true,
	}
	for name, want := range tests {
		if got := IsSACFile(name); got != want {
			t.Errorf("IsSACFile(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestIndexDirOrdersByStart(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"TX.PB28..HHZ.M.2024.002.000000.SAC",
		"TX.PB28..HHZ.M.2024.001.120000.SAC",
		"TX.PB28..HHZ.M.2024.001.000000.SAC",
		"notes.txt",
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0644); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "nested", "TX.PB28..HHZ.M.2024.003.000000.SAC"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	idx, err := IndexDir(dir)
	if err != nil {
		t.Fatalf("IndexDir failed: %v", err)
	}
	if idx.Count() != 4 {
		t.Fatalf("count = %d, want 4", idx.Count())
	}

	want := []string{
		"TX.PB28..HHZ.M.2024.001.000000.SAC",
		"TX.PB28..HHZ.M.2024.001.120000.SAC",
		"TX.PB28..HHZ.M.2024.002.000000.SAC",
		"TX.PB28..HHZ.M.2024.003.000000.SAC",
	}
	for i, f := range idx.Files() {
		if f.Name != want[i] {
			t.Errorf("file %d = %s, want %s", i, f.Name, want[i])
		}
	}
}

func TestIndexDirMissing(t *testing.T) {
	if _, err := IndexDir(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("expected error for missing directory")
	}
}
