package downloader

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"spiderfetch/internal/errs"
)

const maxNameAttempts = 100

var errSourceGone = errors.New("source file is gone")

// moveFile moves src into dir as name without ever overwriting an existing file.
// A taken name gets a " (n)" suffix. The returned path is the final location.
// Moving a source that no longer exists returns errSourceGone, so a repeated
// finalize of the same artifact is harmless.
func moveFile(src, dir, name string) (string, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", errSourceGone
		}

		return "", fmt.Errorf("%w: stat source: %w", errs.ErrMoveFailed, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create destination: %w", errs.ErrMoveFailed, err)
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	for n := range maxNameAttempts {
		dst := filepath.Join(dir, name)
		if n > 0 {
			dst = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", base, n, ext))
		}

		err := place(src, dst, srcInfo)
		switch {
		case err == nil:
			if rmErr := os.Remove(src); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				return dst, fmt.Errorf("%w: remove source: %w", errs.ErrMoveFailed, rmErr)
			}

			return dst, nil
		case errors.Is(err, fs.ErrExist):
			continue
		default:
			return "", fmt.Errorf("%w: %w", errs.ErrMoveFailed, err)
		}
	}

	return "", fmt.Errorf("%w: no free name for %q in %s", errs.ErrMoveFailed, name, dir)
}

// place makes dst refer to the content of src. It fails with fs.ErrExist when
// dst is taken by another file.
func place(src, dst string, srcInfo fs.FileInfo) error {
	err := os.Link(src, dst)
	if err == nil {
		return nil
	}

	if errors.Is(err, fs.ErrExist) {
		if dstInfo, statErr := os.Stat(dst); statErr == nil && os.SameFile(srcInfo, dstInfo) {
			return nil
		}

		return err
	}

	// cross-device or no hard link support
	return copyExclusive(src, dst, srcInfo.Mode().Perm())
}

func copyExclusive(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)

		return fmt.Errorf("copy: %w", err)
	}

	if err := out.Close(); err != nil {
		os.Remove(dst)

		return fmt.Errorf("close destination: %w", err)
	}

	return nil
}
