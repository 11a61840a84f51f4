package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")

	content := []byte("hello world")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CopyFile(src, dst); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: got %q, want %q", got, content)
	}
}

func TestCopyFileVerified(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CopyFileVerified(src, dst); err != nil {
		t.Fatalf("CopyFileVerified: %v", err)
	}
	a, _ := Fingerprint(src)
	b, _ := Fingerprint(dst)
	if a == "" || a != b {
		t.Fatalf("fingerprints differ: %q vs %q", a, b)
	}
	if err := CopyFileVerified(filepath.Join(dir, "missing"), dst); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestSizeFileAndDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a"), make([]byte, 10), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 32), 0o644); err != nil {
		t.Fatal(err)
	}

	size, err := Size(dir)
	if err != nil || size != 42 {
		t.Fatalf("dir size = %d, %v", size, err)
	}
	size, err = Size(filepath.Join(dir, "a"))
	if err != nil || size != 10 {
		t.Fatalf("file size = %d, %v", size, err)
	}
	if _, err := Size(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("expected error for missing path")
	}

	if ok, isDir := Exists(dir); !ok || !isDir {
		t.Fatalf("Exists(dir) = %v %v", ok, isDir)
	}
	if ok, _ := Exists(filepath.Join(dir, "missing")); ok {
		t.Fatal("expected missing path")
	}
}

func TestFingerprintKnownValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Fingerprint(path)
	if err != nil {
		t.Fatal(err)
	}
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Fatalf("Fingerprint = %s", got)
	}
}
