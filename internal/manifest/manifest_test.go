package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuildAndVerify(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "flight.bbl")
	csvPath := filepath.Join(dir, "flight.csv")
	if err := os.WriteFile(logPath, []byte("log-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(csvPath, []byte("a,b\n1,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := Build([]string{logPath, csvPath})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(m.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(m.Items))
	}
	if m.Items[0].Type != "log" || m.Items[1].Type != "export" {
		t.Errorf("types = %s/%s", m.Items[0].Type, m.Items[1].Type)
	}

	mismatched, err := Verify(m)
	if err != nil || len(mismatched) != 0 {
		t.Fatalf("fresh bundle mismatches = %v, %v", mismatched, err)
	}

	if err := os.WriteFile(csvPath, []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}
	mismatched, err = Verify(m)
	if err != nil || len(mismatched) != 1 {
		t.Fatalf("tampered bundle mismatches = %v, %v", mismatched, err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "flight.bbl")
	if err := os.WriteFile(src, []byte("log"), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := Build([]string{src})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	out := filepath.Join(dir, "manifest.json")
	if err := Save(m, out); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(out)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Items) != 1 || loaded.Items[0].Sha256 != m.Items[0].Sha256 {
		t.Fatalf("round trip = %+v", loaded)
	}
}
