// Package fileutil provides the filesystem helpers the runner and its steps
// share: copying with verification, recursive sizing, and content
// fingerprints.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// CopyFile streams src to dst with default permissions (0o644).
func CopyFile(src, dst string) error {
	return CopyFileMode(src, dst, 0o644)
}

// CopyFileMode streams src to dst, setting the given file mode on dst.
func CopyFileMode(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// CopyFileVerified copies src to dst and compares SHA-256 digests of what was
// read and what was written. dst is removed on mismatch.
func CopyFileVerified(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	srcHasher := sha256.New()
	dstHasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, dstHasher), io.TeeReader(in, srcHasher))
	if err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if written != srcInfo.Size() {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcInfo.Size(), written)
	}
	if !bytes.Equal(srcHasher.Sum(nil), dstHasher.Sum(nil)) {
		_ = os.Remove(dst)
		return errors.New("copy hash mismatch: file corrupted during copy")
	}
	return nil
}

// Exists reports whether path exists, and whether it is a directory.
func Exists(path string) (exists bool, isDir bool) {
	info, err := os.Stat(path)
	if err != nil {
		return false, false
	}
	return true, info.IsDir()
}

// Size returns the length of a file or the recursive size of a directory.
func Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	return DirSize(path)
}

// DirSize sums the sizes of all regular files below root.
func DirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}

// Fingerprint returns the hex SHA-256 digest of a file's contents.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
