package packaging

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrArchiveExists reports a refusal to overwrite an existing archive.
var ErrArchiveExists = errors.New("archive already exists")

// writeArchive serializes the tree rooted at root into a zip file at dst.
// Without allowOverwrite an existing dst is left byte-for-byte untouched.
// A failure mid-write removes the partial archive.
func writeArchive(root, dst string, allowOverwrite bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !allowOverwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	out, err := os.OpenFile(dst, flags, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrArchiveExists, dst)
		}
		return fmt.Errorf("creating archive %s: %w", dst, err)
	}

	zw := zip.NewWriter(out)
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		entry, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(entry, in)
		return err
	})
	if walkErr == nil {
		walkErr = zw.Close()
	} else {
		zw.Close()
	}
	if walkErr != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("writing archive %s: %w", dst, walkErr)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("writing archive %s: %w", dst, err)
	}
	return nil
}
