package wb

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	out, err := os.Create(path)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	zw := zip.NewWriter(out)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create entry %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
}

func readZipEntries(t *testing.T, path string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open merged zip: %v", err)
	}
	defer zr.Close()

	entries := map[string]string{}
	for _, f := range zr.File {
		r, err := f.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			t.Fatalf("read entry %s: %v", f.Name, err)
		}
		entries[f.Name] = string(data)
	}
	return entries
}

func TestMergeArchives_SubfolderPerSource(t *testing.T) {
	dir := t.TempDir()

	a := filepath.Join(dir, "123-Week-SegmentA.zip")
	b := filepath.Join(dir, "123-Week-SegmentB.zip")
	writeZip(t, a, map[string]string{"report.xlsx": "aaa"})
	writeZip(t, b, map[string]string{"report.xlsx": "bbb", "meta.txt": "info"})

	merged, err := MergeArchives([]string{a, b}, 123, dir)
	if err != nil {
		t.Fatalf("MergeArchives error: %v", err)
	}
	if filepath.Base(merged) != "123-merged.zip" {
		t.Fatalf("unexpected merged name: %s", merged)
	}

	entries := readZipEntries(t, merged)
	if entries["Week-SegmentA/report.xlsx"] != "aaa" {
		t.Fatalf("segment A content wrong: %+v", entries)
	}
	if entries["Week-SegmentB/report.xlsx"] != "bbb" || entries["Week-SegmentB/meta.txt"] != "info" {
		t.Fatalf("segment B content wrong: %+v", entries)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	// Source archives are consumed by the merge.
	for _, src := range []string{a, b} {
		if _, err := os.Stat(src); !os.IsNotExist(err) {
			t.Fatalf("source archive %s should be deleted", src)
		}
	}
}

func TestMergeArchives_NoFiles(t *testing.T) {
	if _, err := MergeArchives(nil, 123, t.TempDir()); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestMergeArchives_DamagedSourceSkipped(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "55-Month-All.zip")
	bad := filepath.Join(dir, "55-Month-Broken.zip")
	writeZip(t, good, map[string]string{"data.xlsx": "ok"})
	if err := os.WriteFile(bad, []byte("not a zip"), 0o644); err != nil {
		t.Fatalf("write damaged file: %v", err)
	}

	merged, err := MergeArchives([]string{good, bad}, 55, dir)
	if err != nil {
		t.Fatalf("MergeArchives error: %v", err)
	}

	entries := readZipEntries(t, merged)
	if entries["Month-All/data.xlsx"] != "ok" {
		t.Fatalf("good archive missing from merge: %+v", entries)
	}
	if len(entries) != 1 {
		t.Fatalf("damaged archive should contribute nothing: %+v", entries)
	}

	// Only the merged source is consumed; the damaged one stays on disk.
	if _, err := os.Stat(good); !os.IsNotExist(err) {
		t.Fatalf("merged source %s should be deleted", good)
	}
	if _, err := os.Stat(bad); err != nil {
		t.Fatalf("damaged source %s should be kept: %v", bad, err)
	}
}

func TestGenerateUniqueID_DeterministicAndBounded(t *testing.T) {
	a := GenerateUniqueID(111111111, 222222222)
	b := GenerateUniqueID(111111111, 222222222)
	if a != b {
		t.Fatalf("expected deterministic id, got %d and %d", a, b)
	}
	if a < 0 || a >= 1_000_000_000 {
		t.Fatalf("id out of range: %d", a)
	}

	c := GenerateUniqueID(222222222, 111111111)
	if c == a {
		t.Fatalf("order should change the id, both are %d", a)
	}
}

func TestGenerateUniqueID_Empty(t *testing.T) {
	if got := GenerateUniqueID(); got != 0 {
		t.Fatalf("expected 0 for no input, got %d", got)
	}
}

func TestNewExportID_Stable(t *testing.T) {
	if NewExportID() != NewExportID() {
		t.Fatal("export id must be stable across calls")
	}
}
