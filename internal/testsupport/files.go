package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills path with size bytes of a repeating pattern, creating
// parent directories. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, min(size, chunkSize))
	for i := range buf {
		buf[i] = 0x42
	}
	for remaining := size; remaining > 0; {
		n := min(remaining, int64(len(buf)))
		if _, err := f.Write(buf[:n]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= n
	}
}

// WriteTree creates the files below root with the given sizes and returns
// the sum of their sizes.
func WriteTree(t testing.TB, root string, files map[string]int64) int64 {
	t.Helper()

	var total int64
	for rel, size := range files {
		WriteFile(t, filepath.Join(root, rel), size)
		total += max(size, 1)
	}
	return total
}
