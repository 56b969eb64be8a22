package toolchain

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"spiderfetch/internal/errs"

	"github.com/ulikunitz/xz"
)

type archiveKind int

const (
	archiveNone archiveKind = iota
	archiveZip
	archiveTarXZ
	archiveTarGZ
)

func kindOf(url string) archiveKind {
	switch {
	case strings.HasSuffix(url, ".zip"):
		return archiveZip
	case strings.HasSuffix(url, ".tar.xz"):
		return archiveTarXZ
	case strings.HasSuffix(url, ".tar.gz"), strings.HasSuffix(url, ".tgz"):
		return archiveTarGZ
	default:
		return archiveNone
	}
}

// download fetches url into the bins directory. Plain binaries are renamed to targets[0];
// archives have only targets extracted. It returns the installed paths.
func (m *Manager) download(ctx context.Context, url string, targets []string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	tmpFile, err := os.CreateTemp(m.cfg.BinsDir, "download-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	tmpPath := tmpFile.Name()

	defer func() {
		tmpFile.Close()
		os.Remove(tmpPath)
	}()

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		return nil, fmt.Errorf("write file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	kind := kindOf(url)
	if kind == archiveNone {
		dst := filepath.Join(m.cfg.BinsDir, targets[0])
		if err := os.Rename(tmpPath, dst); err != nil {
			return nil, fmt.Errorf("rename: %w", err)
		}

		return []string{dst}, nil
	}

	return extract(kind, tmpPath, m.cfg.BinsDir, targets)
}

func extract(kind archiveKind, archivePath, destDir string, targets []string) ([]string, error) {
	switch kind {
	case archiveZip:
		return extractZip(archivePath, destDir, targets)
	case archiveTarXZ, archiveTarGZ:
		return extractTar(kind, archivePath, destDir, targets)
	default:
		return nil, errs.ErrUnsupportedArchive
	}
}

func extractZip(zipPath, destDir string, targets []string) ([]string, error) {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer reader.Close()

	var installed []string

	for _, file := range reader.File {
		name := file.FileInfo().Name()
		if file.FileInfo().IsDir() || !slices.Contains(targets, name) || slices.Contains(installed, name) {
			continue
		}

		src, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s in zip: %w", name, err)
		}

		err = writeExecutable(filepath.Join(destDir, name), src)
		src.Close()

		if err != nil {
			return nil, err
		}

		installed = append(installed, name)
	}

	return installedPaths(destDir, targets, installed)
}

func extractTar(kind archiveKind, archivePath, destDir string, targets []string) ([]string, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	var stream io.Reader

	if kind == archiveTarXZ {
		if stream, err = xz.NewReader(file); err != nil {
			return nil, fmt.Errorf("create xz reader: %w", err)
		}
	} else {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		defer gz.Close()

		stream = gz
	}

	tarReader := tar.NewReader(stream)

	var installed []string

	for len(installed) < len(targets) {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("read tar header: %w", err)
		}

		name := filepath.Base(header.Name)
		if header.Typeflag != tar.TypeReg || !slices.Contains(targets, name) || slices.Contains(installed, name) {
			continue
		}

		if err := writeExecutable(filepath.Join(destDir, name), tarReader); err != nil {
			return nil, err
		}

		installed = append(installed, name)
	}

	return installedPaths(destDir, targets, installed)
}

func writeExecutable(dst string, src io.Reader) error {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermExecutable)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(dst), err)
	}

	if _, err := io.Copy(out, src); err != nil {
		out.Close()

		return fmt.Errorf("extract %s: %w", filepath.Base(dst), err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(dst), err)
	}

	return nil
}

// installedPaths fails when any target was absent from the archive.
func installedPaths(destDir string, targets, installed []string) ([]string, error) {
	paths := make([]string, 0, len(targets))

	for _, name := range targets {
		if !slices.Contains(installed, name) {
			return nil, fmt.Errorf("%s not found in archive", name)
		}

		paths = append(paths, filepath.Join(destDir, name))
	}

	return paths, nil
}
