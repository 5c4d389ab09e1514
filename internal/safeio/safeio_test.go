package safeio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSafeFSAllowsAbsoluteUnderRoot(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "firmware.bin")
	if err := os.WriteFile(p, []byte("\x00\x01"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	fs, err := NewSafeFS(dir)
	if err != nil {
		t.Fatalf("NewSafeFS: %v", err)
	}
	if _, err := fs.SafeStat(p); err != nil {
		t.Fatalf("SafeStat absolute: %v", err)
	}
	if err := fs.SafeReadable("firmware.bin"); err != nil {
		t.Fatalf("SafeReadable relative: %v", err)
	}
	if got := fs.Rel(filepath.Join(fs.Root(), "firmware.bin")); got != "firmware.bin" {
		t.Fatalf("Rel=%q", got)
	}
}

func TestSafeFSRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewSafeFS(dir)
	if err != nil {
		t.Fatalf("NewSafeFS: %v", err)
	}
	if _, err := fs.SafeStat("../outside"); err == nil {
		t.Fatalf("expected traversal error")
	}
	if _, err := fs.SafeReadDir(filepath.Dir(fs.Root())); err == nil {
		t.Fatalf("expected outside-root error")
	}
}

func TestSafeFSRejectsEscapingSymlink(t *testing.T) {
	outside := t.TempDir()
	target := filepath.Join(outside, "secret.elf")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	dir := t.TempDir()
	link := filepath.Join(dir, "link.elf")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlink unsupported: %v", err)
	}
	fs, err := NewSafeFS(dir)
	if err != nil {
		t.Fatalf("NewSafeFS: %v", err)
	}
	if err := fs.SafeReadable("link.elf"); err == nil {
		t.Fatalf("expected symlink escape to be rejected")
	}
}

func TestSafeReadableRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "Debug"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	fs, err := NewSafeFS(dir)
	if err != nil {
		t.Fatalf("NewSafeFS: %v", err)
	}
	if err := fs.SafeReadable("Debug"); err == nil {
		t.Fatalf("expected directory to be rejected")
	}
}

func TestWriteFileAtomicReplacesContent(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "wokwi.toml")
	if err := os.WriteFile(p, []byte("old"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteFileAtomic(p, []byte("new"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "new" {
		t.Fatalf("content=%q", b)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the target file, got %d entries", len(entries))
	}
}

func TestWriteFileAtomicLeavesNothingOnFailure(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "missing-dir", "diagram.json")
	if err := WriteFileAtomic(p, []byte("{}"), 0o644); err == nil {
		t.Fatalf("expected error for missing parent dir")
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Fatalf("expected no output file, stat err=%v", err)
	}
}

func TestStatCacheServesRepeatLookups(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "Debug", "app.elf")
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte("elf"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c := NewStatCache(16)
	fs, err := NewSafeFS(dir)
	if err != nil {
		t.Fatalf("NewSafeFS: %v", err)
	}
	fs.WithCache(c)

	if _, err := fs.SafeReadDir("Debug"); err != nil {
		t.Fatalf("SafeReadDir: %v", err)
	}
	// Same folder and file, reached by absolute path as the resolver does.
	if _, err := c.ReadDir(filepath.Join(fs.Root(), "Debug")); err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if _, err := c.Stat(filepath.Join(fs.Root(), "Debug", "app.elf")); err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if _, err := c.Stat(filepath.Join(fs.Root(), "Debug", "app.elf")); err != nil {
		t.Fatalf("Stat: %v", err)
	}
	hits, misses := c.Counts()
	// SafeReadDir: stat dir + list dir (2 misses); ReadDir hit; Stat miss then hit.
	if hits != 2 || misses != 3 {
		t.Fatalf("hits=%d misses=%d", hits, misses)
	}

	if _, err := c.Stat(filepath.Join(dir, "missing.bin")); err == nil {
		t.Fatalf("expected missing file error")
	}
	var nilCache *StatCache
	if _, err := nilCache.Stat(p); err != nil {
		t.Fatalf("nil cache Stat: %v", err)
	}
}
