package packaging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// maxCopyDepth bounds skeleton recursion so a symlink cycle cannot run away.
const maxCopyDepth = 64

// copyTree clones src into dst, following symlinks. A broken symlink or an
// entry of unsupported type is a hard error; packaging must never silently
// deliver an incomplete tree.
func copyTree(src, dst string, depth int) error {
	if depth <= 0 {
		return fmt.Errorf("copying %s: exceeded maximum directory depth %d", src, maxCopyDepth)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("listing %s: %w", src, err)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		// Stat follows symlinks; a dangling one fails here.
		info, err := os.Stat(srcPath)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", srcPath, err)
		}

		switch {
		case info.IsDir():
			if err := copyTree(srcPath, dstPath, depth-1); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if err := copyFile(srcPath, dstPath); err != nil {
				return err
			}
		default:
			return fmt.Errorf("copying %s: unsupported file type %s", srcPath, info.Mode().Type())
		}
	}
	return nil
}

// copyFile copies one regular file, preserving its permission bits so
// private keys keep their restrictive mode.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("inspecting %s: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", dst, err)
	}
	return nil
}
